// Package sectorcodec implements §4.1: encoding a raw byte buffer into a
// Sector's run-length-compressed word array, decoding individual bytes back
// out of it, writing bytes into a writable sector, and computing the
// image-wide checksum.
//
// The compression scheme here is unrelated to the teacher's byte-oriented
// RLE8/RLE90 utilities (which encode literal repeat-runs as triplets); a
// Sector's "compression" is trailing-word elision, so it's implemented
// directly against the word array rather than reusing a byte-run codec.
package sectorcodec

import (
	"encoding/binary"

	"github.com/dargueta/pcdisk"
)

// FromBuffer builds a Sector by reading length/4 little-endian 32-bit words
// from buffer starting at offset, then truncating the trailing run of
// equal-valued words so the stored array is the shortest prefix whose last
// word, repeated, reconstructs the full sector (§4.1 "Build from buffer").
func FromBuffer(cylinder, head, id, length int, buffer []byte, offset int) pcdisk.Sector {
	numWords := length / 4
	words := make([]uint32, numWords)
	for i := 0; i < numWords; i++ {
		words[i] = binary.LittleEndian.Uint32(buffer[offset+i*4 : offset+i*4+4])
	}

	stored := Compress(words)

	return pcdisk.Sector{
		Cylinder: cylinder,
		Head:     head,
		ID:       id,
		Length:   length,
		Data:     stored,
	}
}

// Compress returns the shortest prefix of words whose last element, repeated,
// reproduces the rest of the slice -- the same trailing-run truncation
// FromBuffer applies, exposed for parsers (e.g. PSI) that build a sector's
// word array from a source other than a flat byte buffer.
func Compress(words []uint32) []uint32 {
	n := len(words)
	if n == 0 {
		return words
	}
	last := words[n-1]
	end := n
	for end > 1 && words[end-2] == last {
		end--
	}
	out := make([]uint32, end)
	copy(out, words[:end])
	return out
}

// wordAt returns the value of word index i of a sector's logical (fully
// decompressed) word array, applying the repeat-pattern rule in §4.1.
func wordAt(s *pcdisk.Sector, i int) uint32 {
	if i < len(s.Data) {
		return s.Data[i]
	}
	return s.Data[len(s.Data)-1]
}

// ReadByte returns the byte at byteIndex within the sector, per §4.1: index
// data[byteIndex/4] (or data[last] if out of stored range) and shift by
// (byteIndex mod 4)*8. Returns (0, pcdisk.ErrOffsetOutOfRange) when
// byteIndex >= s.Length, mirroring the spec's "-1 on out of range" contract
// via a Go error instead of a sentinel value.
func ReadByte(s *pcdisk.Sector, byteIndex int) (byte, error) {
	if byteIndex < 0 || byteIndex >= s.Length {
		return 0, pcdisk.ErrOffsetOutOfRange
	}
	word := wordAt(s, byteIndex/4)
	shift := uint((byteIndex % 4) * 8)
	return byte(word >> shift), nil
}

// ReadBytes decodes count bytes from the sector starting at byteIndex,
// returning pcdisk.ErrOffsetOutOfRange if the range would run past s.Length.
func ReadBytes(s *pcdisk.Sector, byteIndex, count int) ([]byte, error) {
	if byteIndex < 0 || count < 0 || byteIndex+count > s.Length {
		return nil, pcdisk.ErrOffsetOutOfRange
	}
	out := make([]byte, count)
	for i := 0; i < count; i++ {
		b, err := ReadByte(s, byteIndex+i)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// WriteByte writes value at byteIndex in the sector. writable must be true or
// the write is rejected with pcdisk.ErrNotWritable, per §4.1 ("rejects when
// the image is not writable").
//
// When the new byte differs from the current one, the stored word array is
// expanded (using the current repeat pattern to fill any newly-materialized
// words) up to the target word, the word is updated, and IModify/CModify are
// adjusted to cover the minimum contiguous range of modified words touched so
// far across the sector's lifetime.
func WriteByte(s *pcdisk.Sector, byteIndex int, value byte, writable bool) error {
	if !writable {
		return pcdisk.ErrNotWritable
	}
	if byteIndex < 0 || byteIndex >= s.Length {
		return pcdisk.ErrOffsetOutOfRange
	}

	current, err := ReadByte(s, byteIndex)
	if err != nil {
		return err
	}
	if current == value {
		return nil
	}

	wordIndex := byteIndex / 4
	shift := uint((byteIndex % 4) * 8)

	if wordIndex >= len(s.Data) {
		fillPattern := s.Data[len(s.Data)-1]
		expanded := make([]uint32, wordIndex+1)
		copy(expanded, s.Data)
		for i := len(s.Data); i <= wordIndex; i++ {
			expanded[i] = fillPattern
		}
		s.Data = expanded
	}

	s.Data[wordIndex] &^= 0xFF << shift
	s.Data[wordIndex] |= uint32(value) << shift

	recordModification(s, wordIndex)
	return nil
}

// recordModification widens s's [IModify, IModify+CModify) range to also
// cover wordIndex.
func recordModification(s *pcdisk.Sector, wordIndex int) {
	if s.CModify == 0 {
		s.IModify = wordIndex
		s.CModify = 1
		return
	}

	first := s.IModify
	last := s.IModify + s.CModify - 1
	if wordIndex < first {
		first = wordIndex
	}
	if wordIndex > last {
		last = wordIndex
	}
	s.IModify = first
	s.CModify = last - first + 1
}

// countedDataWords returns cdw from §4.1's checksum rule: the full stored
// word count, unless the sector was compressed (fewer words stored than
// length/4 implies), in which case it's one fewer -- the final repeated
// pattern word is excluded. This asymmetry between "full" and "less than
// full" sectors is retained for compatibility with legacy images and must
// not be "fixed" (Design Notes, Open Questions).
func countedDataWords(s *pcdisk.Sector) int {
	if len(s.Data) < s.Length/4 {
		return len(s.Data) - 1
	}
	return len(s.Data)
}

// SectorChecksumComponent returns one sector's contribution to the
// image-wide checksum: the two's-complement sum of words [0, cdw).
func SectorChecksumComponent(s *pcdisk.Sector) uint32 {
	cdw := countedDataWords(s)
	var sum uint32
	for i := 0; i < cdw; i++ {
		sum += s.Data[i]
	}
	return sum
}

// Checksum computes the image-wide checksum described in §4.1: the 32-bit
// two's-complement sum over all sectors of each sector's checksum component.
func Checksum(grid pcdisk.DiskGrid) uint32 {
	var total uint32
	for _, cyl := range grid {
		for _, track := range cyl {
			for i := range track {
				total += SectorChecksumComponent(&track[i])
			}
		}
	}
	return total
}

// Decompress returns the fully expanded Length-byte payload of a sector.
func Decompress(s *pcdisk.Sector) []byte {
	out := make([]byte, s.Length)
	numWords := s.Length / 4
	for i := 0; i < numWords; i++ {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], wordAt(s, i))
	}
	return out
}
