package present_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/pcdisk"
	"github.com/dargueta/pcdisk/bytestream"
	"github.com/dargueta/pcdisk/fat"
	"github.com/dargueta/pcdisk/present"
)

func buildSample(t *testing.T) (*pcdisk.VolInfo, pcdisk.FileTable, *fat.Decoder) {
	t.Helper()
	root := []pcdisk.FileDescriptor{
		{Name: "HELLO.TXT", Size: 13, Data: []byte("Hello, world!")},
		{
			Name: "SUBDIR",
			Size: -1,
			Files: []pcdisk.FileDescriptor{
				{Name: "A.TXT", Size: 1, Data: []byte("x")},
			},
		},
	}

	img, err := fat.Build(root, 160, "sample.img")
	require.NoError(t, err)

	stream := bytestream.New(img.Grid, false)
	decoder := fat.NewDecoder(stream, img.Geometry.Heads, img.Geometry.SectorsPerTrack, img.Warnings)
	vol, files, err := decoder.BuildVolume(0)
	require.NoError(t, err)
	require.NotNil(t, vol)

	return vol, files, decoder
}

func TestDirectoryListing_ShowsFilesAndSubdirectory(t *testing.T) {
	vol, files, _ := buildSample(t)

	listing := present.DirectoryListing(vol, files)

	assert.Contains(t, listing, `Directory of A:\`)
	assert.Contains(t, listing, "HELLO")
	assert.Contains(t, listing, "TXT")
	assert.Contains(t, listing, "<DIR>")
	assert.Contains(t, listing, "bytes free")
	assert.NotContains(t, listing, " . ")
	assert.NotContains(t, listing, " .. ")
}

func TestLookup_FindsEntryAcrossTables(t *testing.T) {
	_, files, _ := buildSample(t)

	fi, idx, ok := present.Lookup([]pcdisk.FileTable{files}, `\SUBDIR\A.TXT`)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, `\SUBDIR\A.TXT`, fi.Path)

	_, _, ok = present.Lookup([]pcdisk.FileTable{files}, `\NOPE.TXT`)
	assert.False(t, ok)
}

func TestExtendedJSON_OmitsRedundantKeysAndDotEntries(t *testing.T) {
	root := []pcdisk.FileDescriptor{
		{Name: "HELLO.TXT", Size: 13, Data: []byte("Hello, world!")},
	}
	img, err := fat.Build(root, 160, "sample.img")
	require.NoError(t, err)

	stream := bytestream.New(img.Grid, false)
	vol, files, err := fat.NewDecoder(stream, img.Geometry.Heads, img.Geometry.SectorsPerTrack, img.Warnings).
		BuildVolume(0)
	require.NoError(t, err)

	out, err := present.ExtendedJSON(img, "sample.img", []pcdisk.VolInfo{*vol}, files)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &doc))

	fileTable := doc["fileTable"].([]interface{})
	require.Len(t, fileTable, 1)
	entry := fileTable[0].(map[string]interface{})
	assert.Equal(t, `\HELLO.TXT`, entry["path"])
	_, hasName := entry["name"]
	assert.False(t, hasName, "name should be omitted when path already ends with it")
}
