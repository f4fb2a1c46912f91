// Package diskimg implements §4.3's three parsers (raw buffer, JSON, PSI)
// and §4.7's Runtime Access image type, all sharing the Sector Codec and
// Geometry Resolver underneath.
package diskimg

import (
	"io"

	"github.com/dargueta/pcdisk"
	"github.com/dargueta/pcdisk/geometry"
	"github.com/dargueta/pcdisk/sectorcodec"
)

// Image is the parsed, in-memory form of a disk image: the Sector grid plus
// the geometry that produced it and whatever warnings the parse generated.
type Image struct {
	Grid        pcdisk.DiskGrid
	Geometry    *geometry.Result
	Warnings    *pcdisk.Warnings
	Writable    bool
	OriginalBPB []byte // captured when Geometry.BPBModified, for get_data restoration
}

// BuildOptions mirrors geometry.Options plus the per-sector overlay lists
// §4.3 describes (sectorID/sectorError edits, each "C:H:S:newID" or
// "C:H:S:errByte", plus the richer supplementary-data overlays carrying
// length/CRC/data-mark/content overrides).
type BuildOptions struct {
	ForceBPB         bool
	EnableXDF        bool
	Writable         bool
	SectorIDEdits    []SectorEdit
	SectorErrorEdits []SectorEdit
	SectorOverlays   []SectorOverlay
}

// SectorEdit is one parsed "C:H:S:value" overlay entry.
type SectorEdit struct {
	Cylinder int
	Head     int
	Sector   int
	Value    int
}

// SectorOverlay is one parsed supplementary-data overlay entry, per §4.3's
// "Supplementary-data overlays (MFM metadata from annotated text)": a
// (cylinder, head, sector) triple plus any subset of length, data CRC,
// data-mark, and replacement payload content to stamp onto the matching
// sector. The Has* flags distinguish "leave this field alone" from "set it
// to the zero value", since a real overlay may legitimately want to zero a
// CRC or mark.
type SectorOverlay struct {
	Cylinder int
	Head     int
	Sector   int

	Length    int
	HasLength bool

	DataCRC    uint32
	HasDataCRC bool

	DataMark    byte
	HasDataMark bool

	// Data, when non-nil, replaces the sector's payload entirely; it is
	// re-encoded through the Sector Codec (Compress) so run-length
	// compression of the new content is preserved, exactly as buildUniformGrid
	// does for the initial parse.
	Data []byte
}

// BuildFromStream reads stream to the end, rewinds it, and parses the
// resulting bytes with BuildFromBuffer. This is the production entry point
// for an open image file or any other io.ReadWriteSeeker source (e.g. an
// in-memory bytesextra buffer).
func BuildFromStream(stream io.ReadWriteSeeker, diskName string, opts BuildOptions) (*Image, error) {
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	buffer, err := io.ReadAll(stream)
	if err != nil {
		return nil, err
	}
	return BuildFromBuffer(buffer, diskName, opts)
}

// BuildFromBuffer implements §4.3's "From raw buffer": resolve geometry,
// then walk cylinders -> heads -> sectors, slicing the appropriate byte
// range into each sector via the Sector Codec. XDF mode uses the variable
// sector-size tables from the Geometry Resolver and reduced sector counts
// for cylinder 0.
func BuildFromBuffer(buffer []byte, diskName string, opts BuildOptions) (*Image, error) {
	warnings := pcdisk.NewWarnings(diskName)

	// geometry.Resolve patches the BPB region in place when it repairs or
	// overwrites it; snapshot the whole buffer first so get_data can restore
	// the pre-repair bytes later (§4.3, §6 "restores the original BPB bytes
	// if captured"). The bootOffset itself is only known after Resolve runs
	// (it depends on the MBR probe), so the snapshot is taken over the
	// buffer as a whole rather than a specific slice.
	preRepair := make([]byte, len(buffer))
	copy(preRepair, buffer)

	geomResult, err := geometry.Resolve(buffer, geometry.Options{
		ForceBPB:  opts.ForceBPB,
		EnableXDF: opts.EnableXDF,
		Warnings:  warnings,
	})
	if err != nil {
		return nil, err
	}

	var grid pcdisk.DiskGrid
	if geomResult.XDFMode {
		grid = buildXDFGrid(buffer, geomResult)
	} else {
		grid = buildUniformGrid(buffer, geomResult)
	}

	applySectorIDEdits(grid, opts.SectorIDEdits)
	applySectorErrorEdits(grid, opts.SectorErrorEdits)
	applySectorOverlays(grid, opts.SectorOverlays)

	img := &Image{
		Grid:     grid,
		Geometry: geomResult,
		Warnings: warnings,
		Writable: opts.Writable,
	}
	if geomResult.BPBModified && geomResult.BootOffset+0x24 <= len(preRepair) {
		captured := make([]byte, 0x24)
		copy(captured, preRepair[geomResult.BootOffset:geomResult.BootOffset+0x24])
		img.OriginalBPB = captured
	}
	return img, nil
}

// buildUniformGrid lays out a fixed-size-sector image: every cylinder has
// Heads tracks of SectorsPerTrack sectors each, IDs 1..SectorsPerTrack,
// BytesPerSector bytes apiece.
func buildUniformGrid(buffer []byte, g *geometry.Result) pcdisk.DiskGrid {
	grid := make(pcdisk.DiskGrid, g.Cylinders)
	offset := 0

	for c := 0; c < g.Cylinders; c++ {
		grid[c] = make([][]pcdisk.Sector, g.Heads)
		for h := 0; h < g.Heads; h++ {
			track := make([]pcdisk.Sector, g.SectorsPerTrack)
			for i := 0; i < g.SectorsPerTrack; i++ {
				length := g.BytesPerSector
				if offset+length > len(buffer) {
					length = len(buffer) - offset
				}
				if length <= 0 {
					track[i] = pcdisk.Sector{Cylinder: c, Head: h, ID: i + 1, Length: g.BytesPerSector}
					continue
				}
				track[i] = sectorcodec.FromBuffer(c, h, i+1, g.BytesPerSector, buffer, offset)
				offset += length
			}
			grid[c][h] = track
		}
	}
	return grid
}

// buildXDFGrid lays out an XDF image per §4.2 step 4: cylinder 0 is 19
// sectors/track of 512 bytes; cylinders >= 1 use 4 variable-size sectors
// with IDs {2,3,4,6} whose per-head size order differs.
func buildXDFGrid(buffer []byte, g *geometry.Result) pcdisk.DiskGrid {
	const cylZeroSectorsPerTrack = 19
	const cylZeroSectorSize = 512

	grid := make(pcdisk.DiskGrid, g.Cylinders)
	offset := 0

	for c := 0; c < g.Cylinders; c++ {
		grid[c] = make([][]pcdisk.Sector, g.Heads)
		for h := 0; h < g.Heads; h++ {
			var track []pcdisk.Sector
			if c == 0 {
				track = make([]pcdisk.Sector, cylZeroSectorsPerTrack)
				for i := 0; i < cylZeroSectorsPerTrack; i++ {
					track[i] = sectorcodec.FromBuffer(c, h, i+1, cylZeroSectorSize, buffer, offset)
					offset += cylZeroSectorSize
				}
			} else {
				ids := geometry.XDFVariableSectorIDs()
				sizes := geometry.XDFSectorSizesForHead(h)
				track = make([]pcdisk.Sector, len(ids))
				for i, id := range ids {
					track[i] = sectorcodec.FromBuffer(c, h, id, sizes[i], buffer, offset)
					offset += sizes[i]
				}
			}
			grid[c][h] = track
		}
	}
	return grid
}

func applySectorIDEdits(grid pcdisk.DiskGrid, edits []SectorEdit) {
	for _, e := range edits {
		if e.Cylinder < 0 || e.Cylinder >= grid.CylinderCount() {
			continue
		}
		if e.Head < 0 || e.Head >= grid.HeadCount(e.Cylinder) {
			continue
		}
		track := grid[e.Cylinder][e.Head]
		if e.Sector < 0 || e.Sector >= len(track) {
			continue
		}
		track[e.Sector].ID = e.Value
	}
}

func applySectorErrorEdits(grid pcdisk.DiskGrid, edits []SectorEdit) {
	for _, e := range edits {
		if e.Cylinder < 0 || e.Cylinder >= grid.CylinderCount() {
			continue
		}
		if e.Head < 0 || e.Head >= grid.HeadCount(e.Cylinder) {
			continue
		}
		track := grid[e.Cylinder][e.Head]
		if e.Sector < 0 || e.Sector >= len(track) {
			continue
		}
		track[e.Sector].DataError = -e.Value
	}
}

// applySectorOverlays implements §4.3's supplementary-data overlays: each
// entry targets one (cylinder, head, sector) triple and stamps whichever of
// length/CRC/data-mark/content it carries, leaving the rest of the sector
// (including its existing back-references and error state) untouched.
func applySectorOverlays(grid pcdisk.DiskGrid, overlays []SectorOverlay) {
	for _, ov := range overlays {
		if ov.Cylinder < 0 || ov.Cylinder >= grid.CylinderCount() {
			continue
		}
		if ov.Head < 0 || ov.Head >= grid.HeadCount(ov.Cylinder) {
			continue
		}
		track := grid[ov.Cylinder][ov.Head]
		if ov.Sector < 0 || ov.Sector >= len(track) {
			continue
		}
		sector := &track[ov.Sector]

		if ov.Data != nil {
			length := len(ov.Data)
			if ov.HasLength {
				length = ov.Length
			}
			data := ov.Data
			if length > len(data) {
				padded := make([]byte, length)
				copy(padded, data)
				data = padded
			}
			fresh := sectorcodec.FromBuffer(sector.Cylinder, sector.Head, sector.ID, length, data, 0)
			sector.Length = fresh.Length
			sector.Data = fresh.Data
		} else if ov.HasLength {
			sector.Length = ov.Length
		}

		if ov.HasDataCRC {
			sector.DataCRC = ov.DataCRC
			sector.HasDataCRC = true
		}
		if ov.HasDataMark {
			sector.DataMark = ov.DataMark
			sector.HasDataMark = true
		}
	}
}

// GetData implements §6's get_data: serialize the grid back to a contiguous
// buffer, restoring the original BPB bytes if they were captured.
func GetData(img *Image) []byte {
	var totalLength int
	for c := 0; c < img.Grid.CylinderCount(); c++ {
		for h := 0; h < img.Grid.HeadCount(c); h++ {
			for _, s := range img.Grid[c][h] {
				totalLength += s.Length
			}
		}
	}

	out := make([]byte, 0, totalLength)
	for c := 0; c < img.Grid.CylinderCount(); c++ {
		for h := 0; h < img.Grid.HeadCount(c); h++ {
			for i := range img.Grid[c][h] {
				out = append(out, sectorcodec.Decompress(&img.Grid[c][h][i])...)
			}
		}
	}

	if img.OriginalBPB != nil && img.Geometry.BootOffset+len(img.OriginalBPB) <= len(out) {
		copy(out[img.Geometry.BootOffset:], img.OriginalBPB)
	}
	return out
}
