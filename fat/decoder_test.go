package fat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/pcdisk"
	"github.com/dargueta/pcdisk/bytestream"
	"github.com/dargueta/pcdisk/fat"
)

// TestDecoder_PartitionedFixedDisk builds a single-partition 10 MB FAT12
// image via fat.Build (targetKB picked so the exact-match rule in §4.5 step
// 2 lands on the "10mb" template) and confirms the decoder finds it as
// volume 1 through the MBR, with a FAT12 width and a plausible cluster
// count for that template's data area.
func TestDecoder_PartitionedFixedDisk(t *testing.T) {
	root := []pcdisk.FileDescriptor{
		{Name: "README.TXT", Size: 4, Data: []byte("hi\r\n")},
	}

	img, err := fat.Build(root, 10404, "fixed.img")
	require.NoError(t, err)

	stream := bytestream.New(img.Grid, false)
	decoder := fat.NewDecoder(stream, img.Geometry.Heads, img.Geometry.SectorsPerTrack, img.Warnings)

	vol0, _, err := decoder.BuildVolume(0)
	require.NoError(t, err)
	assert.Nil(t, vol0, "an MBR-only boot sector has no unpartitioned volume 0")

	vol1, files, err := decoder.BuildVolume(1)
	require.NoError(t, err)
	require.NotNil(t, vol1)

	assert.Equal(t, 1, vol1.IVolume)
	assert.Equal(t, 0, vol1.IPartition)
	assert.True(t, vol1.IsFAT12())
	// 10mb template: data starts at 1 + 2*8 + 32 = 49, so (20808-49)/8 clusters.
	assert.Equal(t, 2594, vol1.ClusTotal)
	assert.Equal(t, byte('C'), vol1.DriveLetter())
	require.Len(t, files, 1)
	assert.Equal(t, `\README.TXT`, files[0].Path)
}

// lbaToCHS mirrors chsGeometry.lbaToCHS (unexported in package fat) so this
// external test can look a back-referenced sector up directly.
func lbaToCHS(heads, sectorsPerTrack, lba int) (cylinder, head, id int) {
	perCylinder := heads * sectorsPerTrack
	cylinder = lba / perCylinder
	remainder := lba % perCylinder
	head = remainder / sectorsPerTrack
	id = remainder%sectorsPerTrack + 1
	return
}

// TestDecoder_WritesBackReferencesForFileChain confirms §4.4's back-reference
// write-back: every sector a file's LBA chain touches is stamped with the
// file's index and its byte offset within the file, satisfying §8's
// sum_of_sector_back_references(file) == ceil(file.size/cbSector) invariant.
func TestDecoder_WritesBackReferencesForFileChain(t *testing.T) {
	payload := make([]byte, 1500)
	for i := range payload {
		payload[i] = byte(i)
	}
	root := []pcdisk.FileDescriptor{
		{Name: "BIG.BIN", Size: int64(len(payload)), Data: payload},
	}

	img, err := fat.Build(root, 360, "floppy.img")
	require.NoError(t, err)

	stream := bytestream.New(img.Grid, false)
	decoder := fat.NewDecoder(stream, img.Geometry.Heads, img.Geometry.SectorsPerTrack, img.Warnings)

	vol, files, err := decoder.BuildVolume(0)
	require.NoError(t, err)
	require.Len(t, files, 1)

	entry := files[0]
	require.NotEmpty(t, entry.ALBA)

	backRefCount := 0
	for offset, lba := range entry.ALBA {
		c, h, id := lbaToCHS(img.Geometry.Heads, img.Geometry.SectorsPerTrack, lba)
		sector, err := stream.Seek(c, h, id)
		require.NoError(t, err)

		assert.True(t, sector.FileInfoSet)
		assert.Equal(t, 0, sector.FileIndex)
		assert.Equal(t, int64(offset)*int64(vol.CBSector), sector.FileOffset)
		backRefCount++
	}

	expected := (len(payload) + vol.CBSector - 1) / vol.CBSector
	assert.Equal(t, expected, backRefCount)
}

// TestDecoder_TolerateNilWarnings confirms a Decoder built with a nil
// *pcdisk.Warnings (the Geometry Resolver's documented "may be nil" case)
// decodes volume 0 of a freshly built floppy without panicking or returning
// an error.
func TestDecoder_TolerateNilWarnings(t *testing.T) {
	root := []pcdisk.FileDescriptor{
		{Name: "A.TXT", Size: 4, Data: []byte("aaaa")},
	}
	img, err := fat.Build(root, 360, "floppy.img")
	require.NoError(t, err)

	stream := bytestream.New(img.Grid, false)
	decoder := fat.NewDecoder(stream, img.Geometry.Heads, img.Geometry.SectorsPerTrack, nil)

	assert.NotPanics(t, func() {
		_, _, err := decoder.BuildVolume(0)
		assert.NoError(t, err)
	})
}
