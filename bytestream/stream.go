// Package bytestream implements §4.7 Runtime Access: locating a sector
// within a DiskGrid by (cylinder, head, id) and the dynamic expansion
// behavior a formatting operation triggers when it writes past the grid's
// current shape.
//
// Grounded on the teacher's drivers/common/blockstream.go BlockStream, whose
// bounds-checked "address by ID, seek, read/write whole units" shape is
// generalized here from a flat linear block device to the cylinder/head/
// track-indexed, non-uniformly-shaped grid this spec requires.
package bytestream

import (
	"github.com/dargueta/pcdisk"
	"github.com/dargueta/pcdisk/sectorcodec"
)

// Stream provides sector-addressed access to a DiskGrid, including the
// weak-bit "same ID requested twice in a row" cycling behavior and the
// dynamic second-side/ninth-sector expansion described in §4.7.
type Stream struct {
	grid     pcdisk.DiskGrid
	writable bool

	// lastCylinder/lastHead/lastIndex/lastID record the previous Seek's
	// result, so a repeated request for the same ID advances to the next
	// occurrence in the track instead of returning the same sector again.
	hasLast      bool
	lastCylinder int
	lastHead     int
	lastIndex    int
	lastID       int
}

// New wraps grid for sector-addressed access. writable controls whether
// Write (and the dynamic expansion it triggers) is permitted.
func New(grid pcdisk.DiskGrid, writable bool) *Stream {
	return &Stream{grid: grid, writable: writable}
}

// Grid returns the underlying grid, e.g. so a caller can recompute VolInfo
// after a format pass.
func (s *Stream) Grid() pcdisk.DiskGrid {
	return s.grid
}

// Seek finds the sector with the given id on track (cylinder, head) by
// linear scan, since sectors are not numerically sorted and copy-protected
// disks may contain duplicate IDs. When the immediately preceding Seek
// returned the same (cylinder, head, id), the next occurrence of that ID in
// the track is returned instead of the same one again, so weak-bit
// sequences cycle through their duplicates rather than getting stuck.
func (s *Stream) Seek(cylinder, head, id int) (*pcdisk.Sector, error) {
	if cylinder < 0 || cylinder >= s.grid.CylinderCount() {
		return nil, pcdisk.ErrOffsetOutOfRange
	}
	if head < 0 || head >= s.grid.HeadCount(cylinder) {
		return nil, pcdisk.ErrOffsetOutOfRange
	}
	track := s.grid[cylinder][head]

	startAt := 0
	if s.hasLast && s.lastCylinder == cylinder && s.lastHead == head && s.lastID == id {
		startAt = s.lastIndex + 1
	}

	for offset := 0; offset < len(track); offset++ {
		i := (startAt + offset) % len(track)
		if track[i].ID == id {
			s.hasLast = true
			s.lastCylinder, s.lastHead, s.lastIndex, s.lastID = cylinder, head, i, id
			return &track[i], nil
		}
	}
	return nil, pcdisk.ErrNotFound
}

// ReadSector decompresses and returns the full payload of the sector at
// (cylinder, head, id), or an error if the sector's DataError marks it
// unreadable.
func (s *Stream) ReadSector(cylinder, head, id int) ([]byte, error) {
	sector, err := s.Seek(cylinder, head, id)
	if err != nil {
		return nil, err
	}
	if sector.ReadsAsError() {
		return nil, pcdisk.ErrCorruptDirectoryTree
	}
	return sectorcodec.Decompress(sector), nil
}

// WriteSector writes data byte-by-byte into the sector at (cylinder, head,
// id) via the Sector Codec, so per-byte modify tracking stays accurate.
func (s *Stream) WriteSector(cylinder, head, id int, data []byte) error {
	sector, err := s.Seek(cylinder, head, id)
	if err != nil {
		return err
	}
	if len(data) != sector.Length {
		return pcdisk.ErrOffsetOutOfRange
	}
	for i, b := range data {
		if err := sectorcodec.WriteByte(sector, i, b, s.writable); err != nil {
			return err
		}
	}
	return nil
}

// ExpandSecondSide implements the "formatting a second side of a previously
// single-sided disk" half of §4.7's dynamic expansion: when head is not yet
// present on cylinder (and head < 2), a fresh track of blankCount sectors
// (IDs 1..blankCount, each sectorLength bytes of zeros) is synthesized and
// nHeads is effectively bumped by growing the grid.
func (s *Stream) ExpandSecondSide(cylinder, head, blankCount, sectorLength int) error {
	if !s.writable {
		return pcdisk.ErrNotWritable
	}
	if cylinder < 0 || cylinder >= s.grid.CylinderCount() {
		return pcdisk.ErrOffsetOutOfRange
	}
	if head >= 2 {
		return pcdisk.ErrOffsetOutOfRange
	}
	if head < s.grid.HeadCount(cylinder) {
		return nil
	}

	track := make([]pcdisk.Sector, blankCount)
	blank := make([]byte, sectorLength)
	for i := 0; i < blankCount; i++ {
		track[i] = sectorcodec.FromBuffer(cylinder, head, i+1, sectorLength, blank, 0)
	}

	for head >= len(s.grid[cylinder]) {
		s.grid[cylinder] = append(s.grid[cylinder], nil)
	}
	s.grid[cylinder][head] = track
	return nil
}

// AppendSector implements the "formatting sector 9 on an 8-sector track"
// half of §4.7's dynamic expansion: append a fresh blank sector with the
// given id to the end of the (cylinder, head) track, bumping nSectors.
func (s *Stream) AppendSector(cylinder, head, id, sectorLength int) error {
	if !s.writable {
		return pcdisk.ErrNotWritable
	}
	if cylinder < 0 || cylinder >= s.grid.CylinderCount() {
		return pcdisk.ErrOffsetOutOfRange
	}
	if head < 0 || head >= s.grid.HeadCount(cylinder) {
		return pcdisk.ErrOffsetOutOfRange
	}

	blank := make([]byte, sectorLength)
	newSector := sectorcodec.FromBuffer(cylinder, head, id, sectorLength, blank, 0)
	s.grid[cylinder][head] = append(s.grid[cylinder][head], newSector)
	return nil
}
