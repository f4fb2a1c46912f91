// Package pcdisktest provides in-memory disk image fixtures shared by this
// module's tests.
//
// Grounded on the teacher's testing/images.go, which wrapped a decompressed
// byte slice in a bytesextra.NewReadWriteSeeker for use as a fake block
// device; that package's compression dependency doesn't apply here (a
// Sector's run-length compression is decoded through sectorcodec, not a
// byte-stream codec), so these fixtures build the backing buffer directly.
package pcdisktest

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// NewBlankImage returns a writable in-memory stream of totalBytes zero
// bytes.
func NewBlankImage(t *testing.T, totalBytes int) io.ReadWriteSeeker {
	t.Helper()
	require.Greater(t, totalBytes, 0, "image size must be positive")
	return bytesextra.NewReadWriteSeeker(make([]byte, totalBytes))
}

// NewImageFromBytes returns a writable in-memory stream seeded with a copy
// of data, so mutating the stream never affects the caller's slice.
func NewImageFromBytes(t *testing.T, data []byte) io.ReadWriteSeeker {
	t.Helper()
	require.Greater(t, len(data), 0, "image data is empty")
	buf := make([]byte, len(data))
	copy(buf, data)
	return bytesextra.NewReadWriteSeeker(buf)
}
