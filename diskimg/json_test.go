package diskimg_test

import (
	"encoding/json"
	"testing"

	"github.com/dargueta/pcdisk/diskimg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFromJSON_Legacy(t *testing.T) {
	raw := []byte(`[[[{"c":0,"h":0,"s":1,"length":4,"data":[65]}]]]`)

	img, err := diskimg.BuildFromJSON(raw, "legacy.json", false)
	require.NoError(t, err)
	require.Equal(t, 1, img.Grid.CylinderCount())
	assert.Equal(t, uint32(65), img.Grid[0][0][0].Data[0])
}

func TestBuildFromJSON_LegacyFieldNames(t *testing.T) {
	raw := []byte(`[[[{"cylinder":1,"head":0,"sector":3,"length":8,"data":[1,2],"pattern":9}]]]`)

	img, err := diskimg.BuildFromJSON(raw, "legacy.json", false)
	require.NoError(t, err)

	sector := img.Grid[0][0][0]
	assert.Equal(t, 1, sector.Cylinder)
	assert.Equal(t, 3, sector.ID)
	assert.Equal(t, []uint32{1, 2, 9}, sector.Data)
}

func TestBuildFromJSON_Extended(t *testing.T) {
	raw := []byte(`{
		"imageInfo": {"type": "CHS", "cylinders": 1, "heads": 1},
		"diskData": [[[{"c":0,"h":0,"s":1,"length":4,"data":[7]}]]]
	}`)

	img, err := diskimg.BuildFromJSON(raw, "extended.json", false)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), img.Grid[0][0][0].Data[0])
}

func TestMarshalExtendedJSON_RoundTrips(t *testing.T) {
	buffer := make([]byte, 163840)
	img, err := diskimg.BuildFromBuffer(buffer, "test.img", diskimg.BuildOptions{})
	require.NoError(t, err)

	out, err := diskimg.MarshalExtendedJSON(img, "test.img")
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, "CHS", doc["imageInfo"].(map[string]interface{})["type"])

	back, err := diskimg.BuildFromJSON(out, "test.img", false)
	require.NoError(t, err)
	assert.Equal(t, img.Grid, back.Grid)
}
