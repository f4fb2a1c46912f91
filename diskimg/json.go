package diskimg

import (
	"encoding/json"
	"strings"

	"github.com/dargueta/pcdisk"
	"github.com/dargueta/pcdisk/sectorcodec"
)

// jsonSector is the canonical short-key sector form used both by the legacy
// bare-array format and the extended format's diskData.
type jsonSector struct {
	C       int      `json:"c"`
	H       int      `json:"h"`
	S       int      `json:"s"`
	Length  int      `json:"length"`
	Data    []uint32 `json:"data"`
	Pattern *uint32  `json:"pattern,omitempty"`

	// Legacy field names, accepted on input only.
	LegacyCylinder *int `json:"cylinder,omitempty"`
	LegacyHead     *int `json:"head,omitempty"`
	LegacySector   *int `json:"sector,omitempty"`
}

// migrateLegacyFields folds cylinder/head/sector/pattern (legacy names) into
// the canonical c/h/s/data fields, per §4.3 ("migrate legacy field names to
// the canonical short keys, and if a pattern was separately stored, append
// it as the final word of data").
func (s *jsonSector) migrateLegacyFields() {
	if s.LegacyCylinder != nil {
		s.C = *s.LegacyCylinder
	}
	if s.LegacyHead != nil {
		s.H = *s.LegacyHead
	}
	if s.LegacySector != nil {
		s.S = *s.LegacySector
	}
	if s.Pattern != nil {
		s.Data = append(s.Data, *s.Pattern)
	}
}

func (s *jsonSector) toSector() pcdisk.Sector {
	length := s.Length
	if length == 0 {
		length = len(s.Data) * 4
	}
	data := make([]uint32, len(s.Data))
	copy(data, s.Data)
	return pcdisk.Sector{
		Cylinder: s.C,
		Head:     s.H,
		ID:       s.S,
		Length:   length,
		Data:     data,
	}
}

// imageInfo mirrors §4.6's imageInfo block.
type imageInfo struct {
	Type          string `json:"type"`
	Name          string `json:"name,omitempty"`
	Hash          string `json:"hash,omitempty"`
	Checksum      uint32 `json:"checksum"`
	Cylinders     int    `json:"cylinders"`
	Heads         int    `json:"heads"`
	TrackDefault  int    `json:"trackDefault"`
	SectorDefault int    `json:"sectorDefault"`
	DiskSize      int    `json:"diskSize"`
	BootSector    []byte `json:"bootSector,omitempty"`
	Version       string `json:"version,omitempty"`
	Repository    string `json:"repository,omitempty"`
	Command       string `json:"command,omitempty"`
}

// extendedDocument mirrors §4.6's extended JSON shape:
// {imageInfo, volTable, fileTable, diskData}.
type extendedDocument struct {
	ImageInfo imageInfo         `json:"imageInfo"`
	VolTable  []pcdisk.VolInfo  `json:"volTable,omitempty"`
	FileTable []jsonFileEntry   `json:"fileTable,omitempty"`
	DiskData  [][][]jsonSector  `json:"diskData"`
}

// jsonFileEntry mirrors the omit-when-redundant rules in §4.6: name is
// omitted when path already ends with it, and size/vol are omitted when
// zero.
type jsonFileEntry struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
	Attr int    `json:"attr"`
	Size int64  `json:"size,omitempty"`
	Vol  int    `json:"vol,omitempty"`
}

// fileEntryFromInfo converts a decoded FileInfo to its JSON form, applying
// the redundant-key omission rules: name is dropped since path always ends
// with it (§4.6), and a directory's size is zeroed so `omitempty` drops it.
func fileEntryFromInfo(fi *pcdisk.FileInfo) jsonFileEntry {
	entry := jsonFileEntry{
		Path: fi.Path,
		Name: fi.Name,
		Attr: fi.Attr,
		Size: fi.Size,
		Vol:  fi.IVolume,
	}
	if strings.HasSuffix(fi.Path, fi.Name) {
		entry.Name = ""
	}
	if fi.IsDir() {
		entry.Size = 0
	}
	return entry
}

// BuildFromJSON implements §4.3's "From JSON": accept either the legacy
// bare [[[sector,...],...],...] array or the extended
// {imageInfo, volTable?, fileTable?, diskData} document.
func BuildFromJSON(raw []byte, diskName string, writable bool) (*Image, error) {
	warnings := pcdisk.NewWarnings(diskName)

	var legacy [][][]jsonSector
	if err := json.Unmarshal(raw, &legacy); err == nil {
		return gridFromJSONSectors(legacy, warnings, writable), nil
	}

	var doc extendedDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, pcdisk.ErrMalformedJSON.Wrap(err)
	}
	return gridFromJSONSectors(doc.DiskData, warnings, writable), nil
}

func gridFromJSONSectors(raw [][][]jsonSector, warnings *pcdisk.Warnings, writable bool) *Image {
	grid := make(pcdisk.DiskGrid, len(raw))
	for c, heads := range raw {
		grid[c] = make([][]pcdisk.Sector, len(heads))
		for h, sectors := range heads {
			track := make([]pcdisk.Sector, len(sectors))
			for i := range sectors {
				s := sectors[i]
				s.migrateLegacyFields()
				track[i] = s.toSector()
			}
			grid[c][h] = track
		}
	}
	return &Image{Grid: grid, Warnings: warnings, Writable: writable}
}

// sectorToJSON renders a Sector in the canonical short-key form, emitting its
// stored word array as is (already compressed by the Sector Codec).
func sectorToJSON(s *pcdisk.Sector) jsonSector {
	return jsonSector{
		C:      s.Cylinder,
		H:      s.Head,
		S:      s.ID,
		Length: s.Length,
		Data:   s.Data,
	}
}

// MarshalLegacyJSON renders the image as the legacy bare CHS array.
func MarshalLegacyJSON(img *Image) ([]byte, error) {
	out := make([][][]jsonSector, img.Grid.CylinderCount())
	for c := range out {
		out[c] = make([][]jsonSector, img.Grid.HeadCount(c))
		for h := range out[c] {
			track := img.Grid[c][h]
			row := make([]jsonSector, len(track))
			for i := range track {
				row[i] = sectorToJSON(&track[i])
			}
			out[c][h] = row
		}
	}
	return json.Marshal(out)
}

// MarshalExtendedJSON renders the image as the extended document, with
// imageInfo.checksum computed from the Sector Codec's image-wide checksum.
// volTable/fileTable are empty: a caller with FAT-decoded tables wants
// MarshalExtendedJSONWithTables instead.
func MarshalExtendedJSON(img *Image, name string) ([]byte, error) {
	return json.Marshal(buildExtendedDoc(img, name, nil, nil))
}

// MarshalExtendedJSONWithTables is MarshalExtendedJSON plus the decoded
// volTable/fileTable entries §4.6 says the extended document carries. The
// FAT Volume Decoder lives in a separate package from Image (it depends on
// Image, not the other way around), so this is the seam the Presenters
// package calls through rather than Image knowing about FAT decoding
// itself.
func MarshalExtendedJSONWithTables(img *Image, name string, volTable []pcdisk.VolInfo, fileTable pcdisk.FileTable) ([]byte, error) {
	doc := buildExtendedDoc(img, name, volTable, fileTable)
	return json.Marshal(doc)
}

func buildExtendedDoc(img *Image, name string, volTable []pcdisk.VolInfo, fileTable pcdisk.FileTable) extendedDocument {
	doc := extendedDocument{
		ImageInfo: imageInfo{
			Type:     "CHS",
			Name:     name,
			Checksum: sectorcodec.Checksum(img.Grid),
		},
		VolTable: volTable,
	}
	if img.Geometry != nil {
		doc.ImageInfo.Cylinders = img.Geometry.Cylinders
		doc.ImageInfo.Heads = img.Geometry.Heads
		doc.ImageInfo.TrackDefault = img.Geometry.SectorsPerTrack
		doc.ImageInfo.SectorDefault = img.Geometry.BytesPerSector
		doc.ImageInfo.DiskSize = img.Geometry.TotalSectors * img.Geometry.BytesPerSector
		if img.Geometry.BPBModified {
			doc.ImageInfo.BootSector = img.OriginalBPB
		}
	}

	for i := range fileTable {
		fi := &fileTable[i]
		if fi.Name == "." || fi.Name == ".." {
			continue
		}
		doc.FileTable = append(doc.FileTable, fileEntryFromInfo(fi))
	}

	doc.DiskData = make([][][]jsonSector, img.Grid.CylinderCount())
	for c := range doc.DiskData {
		doc.DiskData[c] = make([][]jsonSector, img.Grid.HeadCount(c))
		for h := range doc.DiskData[c] {
			track := img.Grid[c][h]
			row := make([]jsonSector, len(track))
			for i := range track {
				row[i] = sectorToJSON(&track[i])
			}
			doc.DiskData[c][h] = row
		}
	}

	return doc
}
