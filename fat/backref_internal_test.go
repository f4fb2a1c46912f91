package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/pcdisk"
	"github.com/dargueta/pcdisk/bytestream"
)

// TestWriteBackReferences_WarnsOnCrossLinkedSector exercises
// writeBackReferences directly (package-internal, since the public API never
// hands out two FileTable entries sharing an LBA under normal decoding) to
// confirm a sector already attributed to one file index produces a warning
// when a second file's chain claims it too.
func TestWriteBackReferences_WarnsOnCrossLinkedSector(t *testing.T) {
	grid := pcdisk.DiskGrid{{{
		{Cylinder: 0, Head: 0, ID: 1, Length: 512},
		{Cylinder: 0, Head: 0, ID: 2, Length: 512},
	}}}
	stream := bytestream.New(grid, false)
	warnings := pcdisk.NewWarnings("test.img")

	d := NewDecoder(stream, 1, 2, warnings)
	vol := &pcdisk.VolInfo{IVolume: 0, CBSector: 512}
	files := pcdisk.FileTable{
		{Path: `\A.TXT`, ALBA: []int{0}},
		{Path: `\B.TXT`, ALBA: []int{0}},
	}

	d.writeBackReferences(vol, files)

	sector, err := seekLBA(stream, d.geometry, 0)
	require.NoError(t, err)
	assert.True(t, sector.FileInfoSet)
	assert.Equal(t, 1, sector.FileIndex, "second writer wins the stamp")

	require.Equal(t, 1, warnings.Len())
	assert.Contains(t, warnings.List()[0], "cross-linked")
}

// TestWriteBackReferences_NilWarningsDoesNotPanic confirms the cross-link
// path itself -- not just the ordinary decode paths -- tolerates a nil
// *pcdisk.Warnings.
func TestWriteBackReferences_NilWarningsDoesNotPanic(t *testing.T) {
	grid := pcdisk.DiskGrid{{{
		{Cylinder: 0, Head: 0, ID: 1, Length: 512},
	}}}
	stream := bytestream.New(grid, false)

	d := NewDecoder(stream, 1, 1, nil)
	vol := &pcdisk.VolInfo{IVolume: 0, CBSector: 512}
	files := pcdisk.FileTable{
		{Path: `\A.TXT`, ALBA: []int{0}},
		{Path: `\B.TXT`, ALBA: []int{0}},
	}

	assert.NotPanics(t, func() {
		d.writeBackReferences(vol, files)
	})
}
