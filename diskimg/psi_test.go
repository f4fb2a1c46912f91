package diskimg_test

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/dargueta/pcdisk/diskimg"
	"github.com/dargueta/pcdisk/sectorcodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var psiCRCTable = crc32.MakeTable(crc32.Castagnoli)

func psiChunk(fourCC string, payload []byte) []byte {
	header := make([]byte, 12)
	copy(header[0:4], fourCC)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(payload)))

	crcInput := append(append([]byte{}, header[4:8]...), payload...)
	crc := crc32.Checksum(crcInput, psiCRCTable)
	binary.LittleEndian.PutUint32(header[8:12], crc)

	return append(header, payload...)
}

// S4: a SECT chunk with flag bit 2 set produces a sector whose dataError is
// -1 and whose data reads as an error.
func TestBuildFromPSI_DataErrorFlag(t *testing.T) {
	sectPayload := make([]byte, 10)
	sectPayload[0] = 0 // cylinder
	sectPayload[1] = 0 // head
	sectPayload[2] = 1 // id
	sectPayload[3] = 2 // sizeCode -> 128<<2 = 512
	binary.LittleEndian.PutUint16(sectPayload[4:6], 0x0004)

	var raw []byte
	raw = append(raw, psiChunk("SECT", sectPayload)...)
	raw = append(raw, psiChunk("END ", nil)...)

	img, err := diskimg.BuildFromPSI(raw, "test.psi", false)
	require.NoError(t, err)
	require.Equal(t, 1, img.Grid.CylinderCount())

	sector := img.Grid[0][0][0]
	assert.Equal(t, -1, sector.DataError)
	assert.True(t, sector.ReadsAsError())
}

func TestBuildFromPSI_DataChunkFillsSector(t *testing.T) {
	sectPayload := make([]byte, 10)
	sectPayload[2] = 1
	sectPayload[3] = 2 // 512 bytes

	dataPayload := make([]byte, 512)
	dataPayload[0] = 0xAB

	var raw []byte
	raw = append(raw, psiChunk("SECT", sectPayload)...)
	raw = append(raw, psiChunk("DATA", dataPayload)...)
	raw = append(raw, psiChunk("END ", nil)...)

	img, err := diskimg.BuildFromPSI(raw, "test.psi", false)
	require.NoError(t, err)

	sector := img.Grid[0][0][0]
	decoded := sectorcodec.Decompress(&sector)
	assert.Equal(t, dataPayload, decoded)
}

func TestBuildFromPSI_CRCMismatchStopsParsing(t *testing.T) {
	sectPayload := make([]byte, 10)
	sectPayload[2] = 1
	sectPayload[3] = 2

	chunk := psiChunk("SECT", sectPayload)
	chunk[11] ^= 0xFF // corrupt the stored CRC

	img, err := diskimg.BuildFromPSI(chunk, "test.psi", false)
	require.NoError(t, err)
	assert.False(t, img.Warnings.Empty())
	assert.Equal(t, 0, img.Grid.CylinderCount())
}
