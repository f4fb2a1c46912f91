package geometry_test

import (
	"testing"

	"github.com/dargueta/pcdisk"
	"github.com/dargueta/pcdisk/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1: a 163840-byte buffer with no BPB resolves via the geometry table alone.
func TestResolve_GeometryTableOnly(t *testing.T) {
	buffer := make([]byte, 163840)

	result, err := geometry.Resolve(buffer, geometry.Options{})
	require.NoError(t, err)

	assert.Equal(t, 40, result.Cylinders)
	assert.Equal(t, 1, result.Heads)
	assert.Equal(t, 8, result.SectorsPerTrack)
	assert.Equal(t, 512, result.BytesPerSector)
	assert.Equal(t, pcdisk.MediaID160KB, result.MediaID)
}

// S2: a 368640-byte buffer whose BPB is zeroed. The engine selects the
// 360 KB default BPB, rewrites bytes 0x0B..0x023, and flags bpbModified.
func TestResolve_DefaultBPBRepair(t *testing.T) {
	buffer := make([]byte, 368640)

	result, err := geometry.Resolve(buffer, geometry.Options{})
	require.NoError(t, err)

	assert.Equal(t, 40, result.Cylinders)
	assert.Equal(t, 2, result.Heads)
	assert.Equal(t, 9, result.SectorsPerTrack)
	assert.Equal(t, pcdisk.MediaID360KB, result.MediaID)
	assert.True(t, result.BPBModified)

	// Bytes 0x03..0x0A (the preserved pre-2.0 date string region) must be
	// untouched by a non-forced repair.
	for i := geometry.OffOEMName; i < geometry.OffOEMName+8; i++ {
		assert.Equal(t, byte(0), buffer[i])
	}
	assert.Equal(t, uint16(512), readU16(buffer, geometry.OffBytesPerSector))
}

func TestResolve_RejectsTinyBuffer(t *testing.T) {
	_, err := geometry.Resolve(make([]byte, 10), geometry.Options{})
	assert.ErrorIs(t, err, pcdisk.ErrImpossibleBPB)
}

func readU16(buffer []byte, offset int) uint16 {
	return uint16(buffer[offset]) | uint16(buffer[offset+1])<<8
}
