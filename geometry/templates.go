package geometry

import (
	_ "embed"
	"strings"

	"github.com/gocarina/gocsv"
)

//go:embed templates.csv
var templatesRawCSV string

// Template is one row of the BPB template table described in §4.2 step 5 and
// §6's geometry table, and reused as the candidate list the FAT Volume
// Builder iterates in §4.5 step 2. Grounded on disks/disks.go's
// go:embed + gocsv.UnmarshalToCallback pattern in the teacher, generalized
// from its word-addressable-device geometry model to the CHS/BPB model this
// spec actually needs.
type Template struct {
	Slug            string `csv:"slug"`
	MediaID         int    `csv:"media_id"`
	BytesPerSector  int    `csv:"bytes_per_sector"`
	SectorsPerTrack int    `csv:"sectors_per_track"`
	Heads           int    `csv:"heads"`
	Cylinders       int    `csv:"cylinders"`
	TotalSectors    int    `csv:"total_sectors"`
	HiddenSectors   int    `csv:"hidden_sectors"`
	ClusterSecs     int    `csv:"cluster_secs"`
	TotalFATs       int    `csv:"total_fats"`
	FATSecs         int    `csv:"fat_secs"`
	RootEntries     int    `csv:"root_entries"`
}

// NominalImageSize returns the raw size, in bytes, of a disk image matching
// this template as read from a plain IMG/IMA buffer: totalSectors is already
// the full disk size for these rows (hiddenSectors is 0 for every
// unpartitioned floppy template), so this is what §4.2 step 3 matches
// bufferLength against.
func (t *Template) NominalImageSize() int {
	return t.TotalSectors * t.BytesPerSector
}

// BuilderBufferSize returns the buffer size the FAT Volume Builder allocates
// for this template: totalSectors*cbSector, plus one reserved cylinder
// (sectorsPerTrack*heads*cbSector) for templates with hiddenSectors > 0
// (fixed/partitioned media). The hiddenSectors count itself adds nothing to
// the size. Plain floppy templates get no reserved band, so for them this
// equals NominalImageSize.
func (t *Template) BuilderBufferSize() int {
	reserve := 0
	if t.HiddenSectors > 0 {
		reserve = t.SectorsPerTrack * t.Heads * t.BytesPerSector
	}
	return reserve + t.TotalSectors*t.BytesPerSector
}

// Templates is the full set of known BPB templates, in the order listed in
// templates.csv -- §4.5 step 2 iterates "the ordered BPB template table", so
// order here is significant (smaller capacities first).
var Templates []Template

func init() {
	Templates = nil
	err := gocsv.UnmarshalToCallback(
		strings.NewReader(templatesRawCSV),
		func(row Template) error {
			Templates = append(Templates, row)
			return nil
		},
	)
	if err != nil {
		panic("geometry: embedded templates.csv failed to parse: " + err.Error())
	}
}

// LookupByBufferLength returns every template whose nominal buffer length
// matches the given size, per §4.2 step 3 ("match bufferLength against a
// fixed table of common capacities").
func LookupByBufferLength(length int) []Template {
	var out []Template
	for _, t := range Templates {
		if t.NominalImageSize() == length {
			out = append(out, t)
		}
	}
	return out
}

// LookupByMediaAndSize returns templates whose media ID and total capacity
// (totalSectors*bytesPerSector) both match, per §4.2 step 5 ("search a
// static table of BPB templates for one whose mediaID and
// totalSectors*512 match bufferLength").
func LookupByMediaAndSize(mediaID, diskSizeBytes int) []Template {
	var out []Template
	for _, t := range Templates {
		if t.MediaID == mediaID && t.TotalSectors*t.BytesPerSector == diskSizeBytes {
			out = append(out, t)
		}
	}
	return out
}
