package diskimg

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/dargueta/pcdisk"
	"github.com/dargueta/pcdisk/sectorcodec"
)

// psiCRCTable uses the reflected CRC-32 with polynomial 0x1EDC6F41, which is
// exactly hash/crc32's predefined Castagnoli table -- no third-party CRC
// library in the example pack implements this specific reflected polynomial,
// so this is the one place this module reaches for the standard library
// over an ecosystem dependency (documented in DESIGN.md).
var psiCRCTable = crc32.MakeTable(crc32.Castagnoli)

const psiHeaderSize = 12

// PSI fourCC chunk tags, per §4.3.
const (
	psiFourCCFile = "PSI "
	psiFourCCSect = "SECT"
	psiFourCCData = "DATA"
	psiFourCCIBMM = "IBMM"
	psiFourCCOffs = "OFFS"
	psiFourCCText = "TEXT"
	psiFourCCEnd  = "END "
)

// psiSectFlag bits, per §4.3: bit 0 fill, bit 2 data-error.
const (
	psiSectFlagFill      = 1 << 0
	psiSectFlagDataError = 1 << 2
)

// BuildFromPSI implements §4.3's "From PSI": a chunked stream of 12-byte
// headers (fourCC, size, ..., crc32). Cylinders/heads grow the disk grid
// lazily as SECT chunks reference them.
func BuildFromPSI(raw []byte, diskName string, writable bool) (*Image, error) {
	warnings := pcdisk.NewWarnings(diskName)
	grid := pcdisk.DiskGrid{}

	offset := 0
	var pendingSector *pcdisk.Sector
	var pendingFillFlag bool

	for offset+psiHeaderSize <= len(raw) {
		fourCC := string(raw[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(raw[offset+4:]))
		storedCRC := binary.LittleEndian.Uint32(raw[offset+8:])

		payloadStart := offset + psiHeaderSize
		payloadEnd := payloadStart + size
		if payloadEnd > len(raw) {
			return nil, pcdisk.ErrMalformedPSI
		}
		payload := raw[payloadStart:payloadEnd]

		computedCRC := crc32.Checksum(raw[offset+4:offset+8], psiCRCTable)
		computedCRC = crc32.Update(computedCRC, psiCRCTable, payload)
		if computedCRC != storedCRC {
			// §4.3: "a PSI CRC mismatch treated as end-of-stream."
			warnings.Addf("PSI CRC mismatch in %q chunk at offset %d; stopping", fourCC, offset)
			break
		}

		switch fourCC {
		case psiFourCCFile:
			// file format word, sector format word: acknowledged, no state
			// kept beyond validating the stream is well-formed.

		case psiFourCCSect:
			if len(payload) < 10 {
				return nil, pcdisk.ErrMalformedPSI
			}
			cylinder := int(payload[0])
			head := int(payload[1])
			id := int(payload[2])
			sizeCode := int(payload[3])
			flags := int(binary.LittleEndian.Uint16(payload[4:6]))
			fillPattern := binary.LittleEndian.Uint16(payload[6:8])

			sectorLength := 128 << uint(sizeCode)
			growGridForSector(&grid, cylinder, head)

			sector := pcdisk.Sector{
				Cylinder: cylinder,
				Head:     head,
				ID:       id,
				Length:   sectorLength,
			}
			if flags&psiSectFlagDataError != 0 {
				sector.DataError = -1
			}
			if flags&^(psiSectFlagFill|psiSectFlagDataError) != 0 {
				warnings.Addf("SECT chunk at c=%d h=%d id=%d has unrecognized flag bits %#x", cylinder, head, id, flags)
			}

			if flags&psiSectFlagFill != 0 {
				words := make([]uint32, sectorLength/4)
				pattern := uint32(fillPattern) | uint32(fillPattern)<<16
				for i := range words {
					words[i] = pattern
				}
				sector.Data = sectorcodec.Compress(words)
			}

			grid[cylinder][head] = append(grid[cylinder][head], sector)
			pendingSector = &grid[cylinder][head][len(grid[cylinder][head])-1]
			pendingFillFlag = flags&psiSectFlagFill != 0

		case psiFourCCData:
			if pendingSector == nil {
				return nil, pcdisk.ErrMalformedPSI
			}
			if pendingFillFlag {
				warnings.Addf("DATA chunk conflicts with fill pattern on c=%d h=%d id=%d", pendingSector.Cylinder, pendingSector.Head, pendingSector.ID)
			}
			numWords := len(payload) / 4
			words := make([]uint32, numWords)
			for i := 0; i < numWords; i++ {
				words[i] = binary.LittleEndian.Uint32(payload[i*4 : i*4+4])
			}
			pendingSector.Data = sectorcodec.Compress(words)
			pendingSector = nil
			pendingFillFlag = false

		case psiFourCCIBMM, psiFourCCOffs, psiFourCCText:
			// Acknowledged, ignored.

		case psiFourCCEnd:
			offset = len(raw)
			continue

		default:
			warnings.Addf("unrecognized PSI chunk %q at offset %d", fourCC, offset)
		}

		offset = payloadEnd
	}

	return &Image{Grid: grid, Warnings: warnings, Writable: writable}, nil
}

// growGridForSector lazily extends grid so cylinder/head both exist.
func growGridForSector(grid *pcdisk.DiskGrid, cylinder, head int) {
	for cylinder >= len(*grid) {
		*grid = append(*grid, nil)
	}
	for head >= len((*grid)[cylinder]) {
		(*grid)[cylinder] = append((*grid)[cylinder], nil)
	}
}
