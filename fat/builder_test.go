package fat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/pcdisk"
	"github.com/dargueta/pcdisk/bytestream"
	"github.com/dargueta/pcdisk/diskimg"
	"github.com/dargueta/pcdisk/fat"
)

// TestBuild_SingleFileOnFloppy matches the spec scenario: a single small
// file with a 160 KB target selects the 160 KB template, the root entry
// points at cluster 2, and the file occupies exactly that one cluster.
func TestBuild_SingleFileOnFloppy(t *testing.T) {
	root := []pcdisk.FileDescriptor{
		{Name: "HELLO.TXT", Size: 13, Data: []byte("Hello, world!")},
	}

	img, err := fat.Build(root, 160, "hello.img")
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, 163840, len(diskimg.GetData(img)))

	stream := bytestream.New(img.Grid, false)
	vol, files, err := fat.NewDecoder(stream, img.Geometry.Heads, img.Geometry.SectorsPerTrack, img.Warnings).
		BuildVolume(0)
	require.NoError(t, err)
	require.NotNil(t, vol)
	require.Len(t, files, 1)

	assert.Equal(t, `\HELLO.TXT`, files[0].Path)
	assert.Equal(t, 2, files[0].StartCluster)
	assert.Equal(t, []int{vol.VBAData}, files[0].ALBA)
}

func TestBuild_RejectsOversizedTree(t *testing.T) {
	root := []pcdisk.FileDescriptor{
		{Name: "BIG.BIN", Size: 10_000_000, Data: make([]byte, 10_000_000)},
	}

	_, err := fat.Build(root, 160, "big.img")
	assert.ErrorIs(t, err, pcdisk.ErrUnsupportedCapacity)
}

func TestBuild_SubdirectoryGetsDotEntries(t *testing.T) {
	root := []pcdisk.FileDescriptor{
		{
			Name: "SUBDIR",
			Size: -1,
			Files: []pcdisk.FileDescriptor{
				{Name: "A.TXT", Size: 1, Data: []byte("x")},
			},
		},
	}

	img, err := fat.Build(root, 160, "subdir.img")
	require.NoError(t, err)

	stream := bytestream.New(img.Grid, false)
	_, files, err := fat.NewDecoder(stream, img.Geometry.Heads, img.Geometry.SectorsPerTrack, img.Warnings).
		BuildVolume(0)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.Path)
	}
	assert.Contains(t, names, `\SUBDIR`)
	assert.Contains(t, names, `\SUBDIR\A.TXT`)

	// The subdirectory's first sector opens with "." (its own cluster) and
	// ".." (cluster 0, the root).
	var subdir *pcdisk.FileInfo
	for i := range files {
		if files[i].Path == `\SUBDIR` {
			subdir = &files[i]
		}
	}
	require.NotNil(t, subdir)
	require.NotEmpty(t, subdir.ALBA)
	c, h, id := lbaToCHS(img.Geometry.Heads, img.Geometry.SectorsPerTrack, subdir.ALBA[0])
	dirSector, err := stream.ReadSector(c, h, id)
	require.NoError(t, err)
	assert.Equal(t, ".       ", string(dirSector[0:8]))
	assert.Equal(t, uint16(subdir.StartCluster), uint16(dirSector[26])|uint16(dirSector[27])<<8)
	assert.Equal(t, "..      ", string(dirSector[32:40]))
	assert.Equal(t, uint16(0), uint16(dirSector[58])|uint16(dirSector[59])<<8)
}
