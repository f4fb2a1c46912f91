package fat

import (
	"github.com/dargueta/pcdisk"
	"github.com/dargueta/pcdisk/bytestream"
)

// chsGeometry is the minimal shape the LBA<->CHS translation needs: how many
// heads and sectors/track the volume uses. Both the Decoder and Builder work
// in terms of LBAs (per §4.4's vbaData/clusTotal math); this converts those
// to the (cylinder, head, id) triples bytestream.Stream.Seek expects.
type chsGeometry struct {
	Heads           int
	SectorsPerTrack int
}

func (g chsGeometry) lbaToCHS(lba int) (cylinder, head, sectorID int) {
	perCylinder := g.Heads * g.SectorsPerTrack
	pcdisk.AssertInvariant(perCylinder > 0 && lba >= 0,
		"invalid LBA translation geometry: heads=%d sectorsPerTrack=%d lba=%d",
		g.Heads, g.SectorsPerTrack, lba)
	cylinder = lba / perCylinder
	remainder := lba % perCylinder
	head = remainder / g.SectorsPerTrack
	sectorID = remainder%g.SectorsPerTrack + 1
	return
}

// readLBA reads the full Length bytes of the sector at logical block address
// lba from stream, translating through g.
func readLBA(stream *bytestream.Stream, g chsGeometry, lba int) ([]byte, error) {
	c, h, id := g.lbaToCHS(lba)
	return stream.ReadSector(c, h, id)
}

func writeLBA(stream *bytestream.Stream, g chsGeometry, lba int, data []byte) error {
	c, h, id := g.lbaToCHS(lba)
	return stream.WriteSector(c, h, id, data)
}

// seekLBA returns the underlying *pcdisk.Sector at logical block address
// lba, translating through g. Unlike readLBA, this hands back the sector
// itself rather than its decompressed bytes, so a caller can stamp its
// FileIndex/FileOffset/FileInfoSet back-reference fields in place.
func seekLBA(stream *bytestream.Stream, g chsGeometry, lba int) (*pcdisk.Sector, error) {
	c, h, id := g.lbaToCHS(lba)
	return stream.Seek(c, h, id)
}
