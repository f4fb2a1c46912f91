// Package fat implements §4.4 (FAT Volume Decoder) and §4.5 (FAT Volume
// Builder): walking a FAT12/FAT16 boot sector and directory tree into
// pcdisk.VolInfo/pcdisk.FileInfo tables, and the reverse operation of
// packing a host file tree into a fresh volume image.
//
// Grounded on the teacher's drivers/fat/{common,dirent,driverbase}.go, whose
// raw-struct decode, date/time conversion, and short-name handling this
// package reuses almost verbatim -- generalized from the teacher's streaming
// os.FileInfo-backed driver to this spec's table-building, back-reference-
// writing model.
package fat

import (
	"strings"
	"time"

	"github.com/dargueta/pcdisk"
)

const direntSize = 32

// rawDirent is the on-disk 32-byte directory entry layout.
type rawDirent struct {
	Name             [8]byte
	Extension        [3]byte
	AttributeFlags   byte
	reserved         byte
	createTimeMillis byte
	createTime       uint16
	createDate       uint16
	lastAccessDate   uint16
	clusterHigh      uint16
	modifyTime       uint16
	modifyDate       uint16
	clusterLow       uint16
	fileSize         uint32
}

func parseRawDirent(data []byte) rawDirent {
	d := rawDirent{
		AttributeFlags:   data[11],
		reserved:         data[12],
		createTimeMillis: data[13],
		createTime:       leUint16(data[14:16]),
		createDate:       leUint16(data[16:18]),
		lastAccessDate:   leUint16(data[18:20]),
		clusterHigh:      leUint16(data[20:22]),
		modifyTime:       leUint16(data[22:24]),
		modifyDate:       leUint16(data[24:26]),
		clusterLow:       leUint16(data[26:28]),
		fileSize:         leUint32(data[28:32]),
	}
	copy(d.Name[:], data[0:8])
	copy(d.Extension[:], data[8:11])
	return d
}

func leUint16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// direntStatus classifies the first byte of a 32-byte directory slot per
// §4.4: 0x00 terminates the scan, 0xE5 marks deleted, anything else is a
// live (or special) entry.
type direntStatus int

const (
	direntLive direntStatus = iota
	direntDeleted
	direntEndOfDirectory
)

func classifyDirent(data []byte) direntStatus {
	switch data[0] {
	case 0x00:
		return direntEndOfDirectory
	case 0xE5:
		return direntDeleted
	default:
		return direntLive
	}
}

// dateFromFAT decodes a FAT date word into a time.Time at midnight UTC, per
// the teacher's DateFromInt.
func dateFromFAT(value uint16) time.Time {
	day := int(value & 0x1F)
	month := time.Month((value >> 5) & 0x0F)
	year := 1980 + int(value>>9)
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// timestampFromFAT combines a FAT date and time word into a single
// time.Time, per the teacher's TimestampFromParts.
func timestampFromFAT(datePart, timePart uint16) time.Time {
	d := dateFromFAT(datePart)
	seconds := int(timePart&0x1F) * 2
	minutes := int((timePart >> 5) & 0x3F)
	hours := int(timePart >> 11)
	return time.Date(d.Year(), d.Month(), d.Day(), hours, minutes, seconds, 0, time.UTC)
}

// clampFATYear implements the §4.5 Builder rule: years outside [1980, 2099]
// clamp to the nearest boundary.
func clampFATYear(year int) int {
	if year < 1980 {
		return 1980
	}
	if year > 2099 {
		return 2099
	}
	return year
}

// dateToFAT encodes a time.Time as a FAT date word, clamping the year.
func dateToFAT(t time.Time) uint16 {
	year := clampFATYear(t.Year())
	return uint16((year-1980)<<9) | uint16(t.Month())<<5 | uint16(t.Day())
}

// timeToFAT encodes a time.Time's time-of-day as a FAT time word.
func timeToFAT(t time.Time) uint16 {
	return uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
}

// shortNameCharset is the set of characters a FAT short name may contain
// outside A-Z0-9, per §4.5.
const shortNameCharset = "!#$%&'()-@^_`{}~"

func isValidShortNameChar(c byte) bool {
	if c >= 'A' && c <= 'Z' {
		return true
	}
	if c >= '0' && c <= '9' {
		return true
	}
	return strings.IndexByte(shortNameCharset, c) >= 0
}

// toShortName implements §4.5's short-name transformation: uppercase, strip
// or replace any character outside the allowed set with "_", truncate base
// to 8 and extension to 3. Volume labels take the first 11 chars with no
// period (handled separately by ToVolumeLabel).
func toShortName(name string) (base string, ext string) {
	upper := strings.ToUpper(name)
	dot := strings.LastIndex(upper, ".")

	baseRaw := upper
	extRaw := ""
	if dot >= 0 {
		baseRaw = upper[:dot]
		extRaw = upper[dot+1:]
	}

	base = sanitizeShortNameComponent(baseRaw, 8)
	ext = sanitizeShortNameComponent(extRaw, 3)
	return base, ext
}

func sanitizeShortNameComponent(s string, maxLen int) string {
	var b strings.Builder
	for i := 0; i < len(s) && b.Len() < maxLen; i++ {
		c := s[i]
		if isValidShortNameChar(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ToVolumeLabel implements the volume-label variant of the short-name rule:
// first 11 characters, uppercased, sanitized, with no period.
func ToVolumeLabel(name string) string {
	upper := strings.ToUpper(name)
	return sanitizeShortNameComponent(strings.ReplaceAll(upper, ".", ""), 11)
}

// parsedDirent is the decoded, user-friendly form of one directory slot.
type parsedDirent struct {
	Name         string
	Attr         int
	Modified     time.Time
	FirstCluster int
	Size         int64
}

func newParsedDirent(raw rawDirent) parsedDirent {
	name := strings.TrimRight(string(raw.Name[:]), " ")
	ext := strings.TrimRight(string(raw.Extension[:]), " ")
	if ext != "" {
		name = name + "." + ext
	}

	return parsedDirent{
		Name:         name,
		Attr:         int(raw.AttributeFlags),
		Modified:     timestampFromFAT(raw.modifyDate, raw.modifyTime),
		FirstCluster: int(raw.clusterHigh)<<16 | int(raw.clusterLow),
		Size:         int64(raw.fileSize),
	}
}

func (d *parsedDirent) IsDir() bool {
	return d.Attr&pcdisk.AttrSubdirectory != 0
}
