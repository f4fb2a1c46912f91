// Package geometry implements §4.2: recovering cylinder/head/sector/media
// layout from a raw image buffer by chaining a sequence of probes, each of
// which fills in whatever the previous ones left unknown.
package geometry

import (
	"encoding/binary"

	"github.com/dargueta/pcdisk"
)

// XDFTotalSectors is the sentinel totalSectors value that triggers XDF
// detection in step 4.
const XDFTotalSectors = 3680

// xdfVariableSectorIDs, xdfVariableSectorSizes and the two per-head size
// orders describe the variable-size XDF track used on cylinders >= 1, per
// §4.2 step 4.
var (
	xdfVariableSectorIDs    = []int{2, 3, 4, 6}
	xdfVariableSectorSizes  = []int{512, 1024, 2048, 8192}
	xdfHead0Order           = []int{1024, 512, 2048, 8192}
	xdfHead1Order           = []int{8192, 2048, 1024, 512}
)

// Result is everything the resolver was able to recover from a buffer, per
// the fields §4.2 and §6 name: heads/sectorsPerTrack/totalSectors/
// hiddenSectors/cylinders/mediaID, plus whether XDF mode applies and whether
// the BPB bytes were rewritten (so callers can decide whether to preserve
// the original bytes for JSON round-tripping).
type Result struct {
	Heads           int
	SectorsPerTrack int
	TotalSectors    int
	HiddenSectors   int
	Cylinders       int
	BytesPerSector  int
	MediaID         int
	BootOffset      int
	XDFMode         bool
	BPBModified     bool
	BPBFound        bool
	HasGeometry     bool
}

// Options carries the caller-supplied flags §4.2 mentions: forceBPB (step 5)
// and whether XDF support is enabled (step 4).
type Options struct {
	ForceBPB    bool
	EnableXDF   bool
	Warnings    *pcdisk.Warnings
}

// Resolve runs the full probe chain over buffer and returns what it found.
// warnings receives cross-check mismatches and anomalies; it may be nil.
func Resolve(buffer []byte, opts Options) (*Result, error) {
	if len(buffer) < 512 {
		return nil, pcdisk.ErrImpossibleBPB
	}

	r := &Result{BytesPerSector: 512}

	bootOffset, hasMBR := mbrProbe(buffer)
	r.BootOffset = bootOffset

	var bpb *RawBPB
	if bootOffset+0x24 <= len(buffer) {
		parsed := ParseBPB(buffer, bootOffset)
		if parsed.HasJmpOpcode() && parsed.BytesPerSector > 0 {
			bpb = &parsed
			r.BPBFound = true
			r.BytesPerSector = parsed.BytesPerSector
			r.MediaID = parsed.MediaID
			if parsed.TotalHeads != 0 && parsed.TrackSecs != 0 {
				r.Heads = parsed.TotalHeads
				r.SectorsPerTrack = parsed.TrackSecs
				r.TotalSectors = parsed.TotalSectors()
				r.HiddenSectors = parsed.HiddenSecs
				if r.Heads*r.SectorsPerTrack > 0 {
					r.Cylinders = (r.HiddenSectors + r.TotalSectors) / (r.Heads * r.SectorsPerTrack)
				}
				r.HasGeometry = true
			}
		}
	}

	tableMatches := LookupByBufferLength(len(buffer))
	applyTableLookup(r, tableMatches, opts.Warnings)

	if opts.EnableXDF && r.TotalSectors == XDFTotalSectors {
		r.XDFMode = true
	}

	if !r.HasGeometry || bpbNeedsRepair(bpb) {
		repairDefaultBPB(buffer, r, bpb, opts, len(buffer))
	}

	shrinkToLogical(r)

	if !r.HasGeometry {
		damagedBootHeuristic(buffer, r, bootOffset)
	}

	if !r.HasGeometry {
		dskHeaderFallback(buffer, r)
	}

	if bpb != nil && bpb.HasBootSignature && bootOffset+0x24 <= len(buffer) {
		if OverwriteOEMString(buffer, bootOffset) {
			r.BPBModified = true
		}
	}

	if !r.HasGeometry {
		return r, pcdisk.ErrUnsupportedCapacity
	}
	_ = hasMBR
	return r, nil
}

// mbrProbe implements §4.2 step 1: for buffers large enough to plausibly
// carry a partition table, check the 0x55AA signature and pick the first
// active (status >= 0x80) of the four primary partition entries.
func mbrProbe(buffer []byte) (bootOffset int, found bool) {
	const mbrMinSize = 3 * 1024 * 1024
	if len(buffer) < mbrMinSize {
		return 0, false
	}
	if buffer[0x1FE] != 0x55 || buffer[0x1FF] != 0xAA {
		return 0, false
	}

	for _, entryOffset := range []int{0x1BE, 0x1CE, 0x1DE, 0x1EE} {
		status := buffer[entryOffset]
		if status >= 0x80 {
			lbaFirst := binary.LittleEndian.Uint32(buffer[entryOffset+8:])
			return int(lbaFirst) * 512, true
		}
	}
	return 0, false
}

// applyTableLookup implements §4.2 step 3: cross-check a geometry-table hit
// against whatever the BPB probe already produced, warning on mismatch, and
// filling in geometry when the BPB alone didn't provide it.
func applyTableLookup(r *Result, matches []Template, warnings *pcdisk.Warnings) {
	if len(matches) == 0 {
		return
	}
	t := matches[0]

	if r.HasGeometry {
		if r.Heads != t.Heads || r.SectorsPerTrack != t.SectorsPerTrack || r.Cylinders != t.Cylinders {
			if warnings != nil {
				warnings.Addf("geometry table entry %q disagrees with BPB-derived geometry", t.Slug)
			}
		}
		return
	}

	r.Heads = t.Heads
	r.SectorsPerTrack = t.SectorsPerTrack
	r.Cylinders = t.Cylinders
	r.TotalSectors = t.TotalSectors
	r.BytesPerSector = t.BytesPerSector
	r.MediaID = t.MediaID
	r.HiddenSectors = t.HiddenSectors
	r.HasGeometry = true
}

// bpbNeedsRepair reports whether the BPB found by the probe is missing or
// internally inconsistent enough that step 5 should attempt a replacement.
func bpbNeedsRepair(bpb *RawBPB) bool {
	if bpb == nil {
		return true
	}
	return bpb.TotalHeads == 0 || bpb.TrackSecs == 0
}

// repairDefaultBPB implements §4.2 step 5: locate a BPB template whose
// mediaID and totalSectors*512 match the buffer length, and, when the
// rewrite conditions are satisfied, patch the buffer's BPB region in place.
func repairDefaultBPB(buffer []byte, r *Result, bpb *RawBPB, opts Options, bufferLength int) {
	var candidates []Template
	if bpb != nil {
		candidates = LookupByMediaAndSize(bpb.MediaID, bufferLength)
	}
	if len(candidates) == 0 {
		candidates = LookupByBufferLength(bufferLength)
	}
	if len(candidates) == 0 {
		return
	}

	t := candidates[0]
	if bpb != nil && bpb.ClusterSecs != 0 {
		for _, cand := range candidates {
			if cand.ClusterSecs == bpb.ClusterSecs {
				t = cand
				break
			}
		}
	}

	r.Heads = t.Heads
	r.SectorsPerTrack = t.SectorsPerTrack
	r.Cylinders = t.Cylinders
	r.TotalSectors = t.TotalSectors
	r.BytesPerSector = t.BytesPerSector
	r.MediaID = t.MediaID
	r.HiddenSectors = t.HiddenSectors
	r.HasGeometry = true

	if r.BootOffset+0x24 > len(buffer) {
		return
	}

	jmpTargetsFar := buffer[r.BootOffset] == 0xEB && int(buffer[r.BootOffset+1])+2 >= 0x22
	if jmpTargetsFar || opts.ForceBPB {
		WriteFromTemplate(buffer, r.BootOffset, &t, true)
	} else {
		WriteFromTemplate(buffer, r.BootOffset, &t, false)
	}
	r.BPBModified = true
}

// shrinkToLogical implements §4.2 step 6: a logical media ID that names a
// smaller format physically embedded in a larger one (160 KB inside 180 KB,
// 320 KB inside 360 KB) shrinks sectorsPerTrack to the smaller template.
func shrinkToLogical(r *Result) {
	var smaller *Template
	switch r.MediaID {
	case pcdisk.MediaID160KB:
		smaller = templateBySlug("160kb")
	case pcdisk.MediaID320KB:
		smaller = templateBySlug("320kb")
	default:
		return
	}
	if smaller == nil {
		return
	}
	r.SectorsPerTrack = smaller.SectorsPerTrack
}

func templateBySlug(slug string) *Template {
	for i := range Templates {
		if Templates[i].Slug == slug {
			return &Templates[i]
		}
	}
	return nil
}

// damagedBootHeuristic implements §4.2 step 7: a boot sector whose first two
// bytes are both 0xF6, paired with a FAT media byte >= 0xF8 in the following
// sector, is treated as a damaged boot sector and repaired from the matching
// default BPB.
func damagedBootHeuristic(buffer []byte, r *Result, bootOffset int) {
	if bootOffset+1 >= len(buffer) {
		return
	}
	if buffer[bootOffset] != 0xF6 || buffer[bootOffset+1] != 0xF6 {
		return
	}
	fatSectorOffset := bootOffset + 512
	if fatSectorOffset >= len(buffer) {
		return
	}
	fatMediaByte := int(buffer[fatSectorOffset])
	if fatMediaByte < 0xF8 {
		return
	}

	candidates := LookupByMediaAndSize(fatMediaByte, len(buffer)-bootOffset)
	if len(candidates) == 0 {
		return
	}
	t := candidates[0]
	r.Heads = t.Heads
	r.SectorsPerTrack = t.SectorsPerTrack
	r.Cylinders = t.Cylinders
	r.TotalSectors = t.TotalSectors
	r.BytesPerSector = t.BytesPerSector
	r.MediaID = t.MediaID
	r.HiddenSectors = t.HiddenSectors
	r.HasGeometry = true
	WriteFromTemplate(buffer, bootOffset, &t, false)
	r.BPBModified = true
}

// dskHeaderFallback implements §4.2 step 8: when no heads have been
// determined and byte 0 is 0x00 or 0x01, interpret the first 8 bytes as the
// private DSK header (heads, cylinders, sectors/track, bytes/sector). When
// the sector-count and byte-count fields are both zero, only heads and
// cylinders are recorded; the variable-size track table at offset 8 is not
// read.
func dskHeaderFallback(buffer []byte, r *Result) {
	if len(buffer) < 8 {
		return
	}
	if buffer[0] != 0x00 && buffer[0] != 0x01 {
		return
	}

	cylinders := int(buffer[1])
	heads := int(buffer[2])
	sectorsPerTrack := int(buffer[3])
	bytesPerSector := int(binary.LittleEndian.Uint16(buffer[4:]))

	if sectorsPerTrack == 0 && bytesPerSector == 0 {
		// Variable-geometry DSK: a track table follows at offset 8. It is
		// not read; only heads and cylinders are recorded, and
		// SectorsPerTrack stays 0.
		r.Heads = heads
		r.Cylinders = cylinders
		r.BytesPerSector = 512
		r.HasGeometry = heads > 0 && cylinders > 0
		return
	}

	r.Heads = heads
	r.Cylinders = cylinders
	r.SectorsPerTrack = sectorsPerTrack
	r.BytesPerSector = bytesPerSector
	r.TotalSectors = cylinders * heads * sectorsPerTrack
	r.HasGeometry = heads > 0 && cylinders > 0 && sectorsPerTrack > 0
}

// XDFSectorSizesForHead returns the ordered sector sizes for a non-zero XDF
// cylinder's track on the given head, per §4.2 step 4.
func XDFSectorSizesForHead(head int) []int {
	if head == 0 {
		return xdfHead0Order
	}
	return xdfHead1Order
}

// XDFVariableSectorIDs returns the sector IDs {2,3,4,6} used on XDF
// cylinders >= 1.
func XDFVariableSectorIDs() []int {
	return xdfVariableSectorIDs
}
