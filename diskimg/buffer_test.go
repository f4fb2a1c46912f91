package diskimg_test

import (
	"testing"

	"github.com/dargueta/pcdisk"
	"github.com/dargueta/pcdisk/diskimg"
	"github.com/dargueta/pcdisk/pcdisktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFromBuffer_160KB(t *testing.T) {
	buffer := make([]byte, 163840)
	img, err := diskimg.BuildFromBuffer(buffer, "test.img", diskimg.BuildOptions{Writable: true})
	require.NoError(t, err)

	assert.Equal(t, 40, img.Grid.CylinderCount())
	assert.Equal(t, 1, img.Grid.HeadCount(0))
	assert.Equal(t, 8, img.Grid.SectorCount(0, 0))
	assert.Equal(t, pcdisk.MediaID160KB, img.Geometry.MediaID)
}

func TestBuildFromStream_RoundTripsViaGetData(t *testing.T) {
	original := make([]byte, 163840)
	original[512] = 0x41 // first byte of cylinder 0, head 0, sector 2

	stream := pcdisktest.NewImageFromBytes(t, original)
	img, err := diskimg.BuildFromStream(stream, "test.img", diskimg.BuildOptions{Writable: true})
	require.NoError(t, err)

	restored := diskimg.GetData(img)
	assert.Equal(t, original, restored)
}

func TestBuildFromBuffer_RejectsTooSmall(t *testing.T) {
	_, err := diskimg.BuildFromBuffer(make([]byte, 4), "tiny.img", diskimg.BuildOptions{})
	assert.ErrorIs(t, err, pcdisk.ErrImpossibleBPB)
}

func TestBuildFromBuffer_SectorOverlayStampsLengthCRCMarkAndData(t *testing.T) {
	buffer := make([]byte, 163840)
	img, err := diskimg.BuildFromBuffer(buffer, "test.img", diskimg.BuildOptions{
		Writable: true,
		SectorOverlays: []diskimg.SectorOverlay{
			{
				Cylinder:    0,
				Head:        0,
				Sector:      0,
				HasDataCRC:  true,
				DataCRC:     0xDEADBEEF,
				HasDataMark: true,
				DataMark:    0xFB,
				Data:        []byte("AAAA"),
			},
		},
	})
	require.NoError(t, err)

	sector := img.Grid[0][0][0]
	assert.True(t, sector.HasDataCRC)
	assert.Equal(t, uint32(0xDEADBEEF), sector.DataCRC)
	assert.True(t, sector.HasDataMark)
	assert.Equal(t, byte(0xFB), sector.DataMark)
	assert.Equal(t, 4, sector.Length)
	assert.Equal(t, 0, sector.Cylinder)
	assert.Equal(t, 0, sector.Head)
	assert.Equal(t, 1, sector.ID)
}

func TestBuildFromBuffer_SectorOverlayOutOfRangeIsIgnored(t *testing.T) {
	buffer := make([]byte, 163840)
	img, err := diskimg.BuildFromBuffer(buffer, "test.img", diskimg.BuildOptions{
		Writable: true,
		SectorOverlays: []diskimg.SectorOverlay{
			{Cylinder: 999, Head: 0, Sector: 0, HasDataMark: true, DataMark: 0xFE},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 40, img.Grid.CylinderCount())
}
