package geometry

import "encoding/binary"

// BPB layout offsets, per §6 (from offset 0 of the boot sector).
const (
	OffJmpBoot         = 0x000
	OffOEMName         = 0x003
	OffBytesPerSector  = 0x00B
	OffClusterSecs     = 0x00D
	OffReservedSecs    = 0x00E
	OffTotalFATs       = 0x010
	OffRootDirents     = 0x011
	OffTotalSecs16     = 0x013
	OffMediaID         = 0x015
	OffFATSecs         = 0x016
	OffTrackSecs       = 0x018
	OffTotalHeads      = 0x01A
	OffHiddenSecs      = 0x01C
	OffLargeSecs       = 0x020
	OffBootSignature   = 0x1FE
	BootSignatureValue = 0xAA55

	// OEMStringValue is the string §4.2 writes into 0x03..0x0A when a valid
	// BPB is found: "rewrite bytes 0x03..0x0A with 'PCJS.ORG' unless already
	// present".
	OEMStringValue = "PCJS.ORG"
)

// RawBPB is the parsed form of the boot-sector BIOS Parameter Block
// described in §6.
type RawBPB struct {
	JmpOpcode       byte
	OEMName         [8]byte
	BytesPerSector  int
	ClusterSecs     int
	ReservedSecs    int
	TotalFATs       int
	RootDirents     int
	TotalSecs16     int
	MediaID         int
	FATSecs         int
	TrackSecs       int
	TotalHeads      int
	HiddenSecs      int
	LargeSecs       int
	HasBootSignature bool
}

// TotalSectors returns TotalSecs16, or LargeSecs when the 16-bit field is
// zero (DOS 3.31+ large-disk form), per §6.
func (b *RawBPB) TotalSectors() int {
	if b.TotalSecs16 != 0 {
		return b.TotalSecs16
	}
	return b.LargeSecs
}

// ParseBPB reads a BPB from the 0x24-byte header beginning at offset in
// buffer. It does not validate the boot signature or JMP opcode; callers
// apply those checks per the specific probe step they're implementing
// (§4.2 steps 2, 5, 7).
func ParseBPB(buffer []byte, offset int) RawBPB {
	b := RawBPB{
		JmpOpcode:      buffer[offset+OffJmpBoot],
		BytesPerSector: int(binary.LittleEndian.Uint16(buffer[offset+OffBytesPerSector:])),
		ClusterSecs:    int(buffer[offset+OffClusterSecs]),
		ReservedSecs:   int(binary.LittleEndian.Uint16(buffer[offset+OffReservedSecs:])),
		TotalFATs:      int(buffer[offset+OffTotalFATs]),
		RootDirents:    int(binary.LittleEndian.Uint16(buffer[offset+OffRootDirents:])),
		TotalSecs16:    int(binary.LittleEndian.Uint16(buffer[offset+OffTotalSecs16:])),
		MediaID:        int(buffer[offset+OffMediaID]),
		FATSecs:        int(binary.LittleEndian.Uint16(buffer[offset+OffFATSecs:])),
		TrackSecs:      int(binary.LittleEndian.Uint16(buffer[offset+OffTrackSecs:])),
		TotalHeads:     int(binary.LittleEndian.Uint16(buffer[offset+OffTotalHeads:])),
		HiddenSecs:     int(binary.LittleEndian.Uint16(buffer[offset+OffHiddenSecs:])),
	}
	copy(b.OEMName[:], buffer[offset+OffOEMName:offset+OffOEMName+8])
	if offset+OffLargeSecs+4 <= len(buffer) {
		b.LargeSecs = int(binary.LittleEndian.Uint32(buffer[offset+OffLargeSecs:]))
	}
	if offset+OffBootSignature+2 <= len(buffer) {
		sig := binary.LittleEndian.Uint16(buffer[offset+OffBootSignature:])
		b.HasBootSignature = sig == BootSignatureValue
	}
	return b
}

// HasJmpOpcode reports whether the first byte is a short or near JMP, per
// §4.2 step 2 ("require byte 0x00 in {0xEB, 0xE9}").
func (b *RawBPB) HasJmpOpcode() bool {
	return b.JmpOpcode == 0xEB || b.JmpOpcode == 0xE9
}

// WriteFromTemplate serializes a geometry Template into the BPB region of
// buffer starting at offset, for use by §4.2 step 5 (default-BPB repair) and
// the FAT Volume Builder (§4.5 step 5).
//
// When fromOffsetZero is true the whole 0x24-byte region (including the JMP
// opcode and OEM string) is overwritten and the 0xAA55 boot signature is
// written at 0x1FE, matching "when forced, the template is copied from
// offset 0"; otherwise only bytes from SECTOR_BYTES (0x0B) through the end
// of the 0x24-byte region are touched, preserving the pre-2.0 date string in
// 0x03..0x0A.
func WriteFromTemplate(buffer []byte, offset int, t *Template, fromOffsetZero bool) {
	if fromOffsetZero {
		buffer[offset+OffJmpBoot] = 0xEB
		buffer[offset+OffJmpBoot+1] = 0x3C
		buffer[offset+OffJmpBoot+2] = 0x90
		copy(buffer[offset+OffOEMName:offset+OffOEMName+8], OEMStringValue)
	}

	binary.LittleEndian.PutUint16(buffer[offset+OffBytesPerSector:], uint16(t.BytesPerSector))
	buffer[offset+OffClusterSecs] = byte(t.ClusterSecs)
	binary.LittleEndian.PutUint16(buffer[offset+OffReservedSecs:], 1)
	buffer[offset+OffTotalFATs] = byte(t.TotalFATs)
	binary.LittleEndian.PutUint16(buffer[offset+OffRootDirents:], uint16(t.RootEntries))
	if t.TotalSectors <= 0xFFFF {
		binary.LittleEndian.PutUint16(buffer[offset+OffTotalSecs16:], uint16(t.TotalSectors))
	}
	buffer[offset+OffMediaID] = byte(t.MediaID)
	binary.LittleEndian.PutUint16(buffer[offset+OffFATSecs:], uint16(t.FATSecs))
	binary.LittleEndian.PutUint16(buffer[offset+OffTrackSecs:], uint16(t.SectorsPerTrack))
	binary.LittleEndian.PutUint16(buffer[offset+OffTotalHeads:], uint16(t.Heads))
	binary.LittleEndian.PutUint16(buffer[offset+OffHiddenSecs:], uint16(t.HiddenSectors))
	if fromOffsetZero && offset+OffBootSignature+2 <= len(buffer) {
		binary.LittleEndian.PutUint16(buffer[offset+OffBootSignature:], BootSignatureValue)
	}
}

// OverwriteOEMString implements the §4.2 "OEM-string overwrite": when a
// valid BPB exists with the 0xAA55 signature, rewrite bytes 0x03..0x0A with
// "PCJS.ORG" unless already present, and report whether a change was made
// (callers use this to set bpbModified so the original bytes can be
// preserved in JSON output).
func OverwriteOEMString(buffer []byte, offset int) bool {
	current := string(buffer[offset+OffOEMName : offset+OffOEMName+8])
	if current == OEMStringValue {
		return false
	}
	copy(buffer[offset+OffOEMName:offset+OffOEMName+8], OEMStringValue)
	return true
}
