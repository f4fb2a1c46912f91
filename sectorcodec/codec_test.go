package sectorcodec_test

import (
	"testing"

	"github.com/dargueta/pcdisk"
	"github.com/dargueta/pcdisk/sectorcodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromBuffer_CompressesTrailingRun(t *testing.T) {
	buf := make([]byte, 512)
	// First 8 bytes are distinct; the rest is the trailing run of zeroes.
	buf[0] = 0x41
	buf[4] = 0x42

	sector := sectorcodec.FromBuffer(0, 0, 1, 512, buf, 0)
	assert.LessOrEqual(t, len(sector.Data), 512/4)
	assert.Equal(t, uint32(0x41), sector.Data[0])
	assert.Equal(t, uint32(0x42), sector.Data[1])

	decompressed := sectorcodec.Decompress(&sector)
	assert.Equal(t, buf, decompressed)
}

func TestReadByte_OutOfRange(t *testing.T) {
	sector := sectorcodec.FromBuffer(0, 0, 1, 512, make([]byte, 512), 0)
	_, err := sectorcodec.ReadByte(&sector, 512)
	assert.ErrorIs(t, err, pcdisk.ErrOffsetOutOfRange)
}

// S6: write byte 0x41 at offset 100 of a sector whose current content is
// zeros; expect cModify=1, iModify=25. A subsequent write of 0x42 at offset
// 50 extends iModify to 12 and cModify to 14.
func TestWriteByte_TracksModifiedRange(t *testing.T) {
	sector := sectorcodec.FromBuffer(0, 0, 1, 512, make([]byte, 512), 0)

	err := sectorcodec.WriteByte(&sector, 100, 0x41, true)
	require.NoError(t, err)
	assert.Equal(t, 1, sector.CModify)
	assert.Equal(t, 25, sector.IModify)

	err = sectorcodec.WriteByte(&sector, 50, 0x42, true)
	require.NoError(t, err)
	assert.Equal(t, 12, sector.IModify)
	assert.Equal(t, 14, sector.CModify)

	b, err := sectorcodec.ReadByte(&sector, 100)
	require.NoError(t, err)
	assert.Equal(t, byte(0x41), b)

	b, err = sectorcodec.ReadByte(&sector, 50)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), b)
}

func TestWriteByte_RejectsWhenNotWritable(t *testing.T) {
	sector := sectorcodec.FromBuffer(0, 0, 1, 512, make([]byte, 512), 0)
	err := sectorcodec.WriteByte(&sector, 0, 1, false)
	assert.ErrorIs(t, err, pcdisk.ErrNotWritable)
}

func TestChecksum_ExcludesTrailingPatternWhenCompressed(t *testing.T) {
	buf := make([]byte, 512)
	buf[0] = 0x01
	sector := sectorcodec.FromBuffer(0, 0, 1, 512, buf, 0)

	grid := pcdisk.DiskGrid{{{sector}}}
	checksum := sectorcodec.Checksum(grid)

	// Only the one distinct leading word should count; the repeated zero
	// pattern that fills the rest of the sector is excluded.
	assert.Equal(t, uint32(0x01), checksum)
}

func TestChecksum_IncludesAllWordsWhenFull(t *testing.T) {
	buf := make([]byte, 8)
	buf[0] = 0x01
	buf[4] = 0x02
	sector := sectorcodec.FromBuffer(0, 0, 1, 8, buf, 0)
	require.Equal(t, 2, len(sector.Data))

	grid := pcdisk.DiskGrid{{{sector}}}
	checksum := sectorcodec.Checksum(grid)
	assert.Equal(t, uint32(0x01+0x02), checksum)
}
