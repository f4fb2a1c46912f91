package fat

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/noxer/bytewriter"

	"github.com/dargueta/pcdisk"
	"github.com/dargueta/pcdisk/diskimg"
	"github.com/dargueta/pcdisk/geometry"
)

// assignedNode pairs one input FileDescriptor with the cluster chain the
// Builder allocated for it (0 for an empty file), and its own children once
// the second pass has recursed into it.
type assignedNode struct {
	desc         *pcdisk.FileDescriptor
	cluster      int
	clusterCount int
	children     []*assignedNode
}

// builder holds the geometry and buffer state shared across every step of
// §4.5 once a template has been chosen.
type builder struct {
	template     *geometry.Template
	buffer       []byte
	reserve      int // byte offset of the volume's own boot sector within buffer
	clusterBytes int
	cbSector     int
	vbaData      int
	nFATBits     int
	eocMarker    int
	fatBytes     []byte
}

// Build implements §4.5 end to end: choose a BPB template for the given
// file tree (and optional target capacity in KB), lay out MBR/boot
// sector/FAT/root directory/file data, and re-parse the result through
// diskimg.BuildFromBuffer to produce a validated Image.
func Build(root []pcdisk.FileDescriptor, targetKB int, diskName string) (*diskimg.Image, error) {
	tmpl, err := selectTemplate(root, targetKB)
	if err != nil {
		return nil, err
	}

	b := &builder{
		template:     tmpl,
		buffer:       make([]byte, tmpl.BuilderBufferSize()),
		clusterBytes: tmpl.ClusterSecs * tmpl.BytesPerSector,
		cbSector:     tmpl.BytesPerSector,
	}

	if tmpl.HiddenSectors > 0 {
		b.reserve = tmpl.SectorsPerTrack * tmpl.Heads * tmpl.BytesPerSector
		b.writeMBR()
	}

	geometry.WriteFromTemplate(b.buffer[b.reserve:], 0, tmpl, true)

	rootDirSectors := (tmpl.RootEntries*direntSize + tmpl.BytesPerSector - 1) / tmpl.BytesPerSector
	vbaRoot := 1 + tmpl.TotalFATs*tmpl.FATSecs
	b.vbaData = vbaRoot + rootDirSectors
	dataSectors := tmpl.TotalSectors - b.vbaData
	clusTotal := dataSectors / tmpl.ClusterSecs

	b.nFATBits = 16
	b.eocMarker = 0xFFFF
	highMask := 0xFF00
	reservedCell1 := 0xFFFF
	if clusTotal < 4085 {
		b.nFATBits = 12
		b.eocMarker = 0xFFF
		highMask = 0xF00
		reservedCell1 = 0xFFF
	}

	b.fatBytes = make([]byte, tmpl.FATSecs*tmpl.BytesPerSector)
	setFATCell(b.fatBytes, 0, (tmpl.MediaID&0xFF)|highMask, b.nFATBits)
	setFATCell(b.fatBytes, 1, reservedCell1, b.nFATBits)

	alloc := newClusterAllocator(clusTotal)
	nodes, err := b.assignClusters(alloc, root)
	if err != nil {
		return nil, err
	}

	b.writeFATCopies()
	b.writeRootDirectory(root, nodes, rootDirSectors)

	if err := b.writeTree(nodes, 0); err != nil {
		return nil, err
	}

	pcdisk.AssertInvariant(len(b.buffer) == tmpl.BuilderBufferSize(),
		"finished buffer is %d bytes, expected %d", len(b.buffer), tmpl.BuilderBufferSize())

	return diskimg.BuildFromBuffer(b.buffer, diskName, diskimg.BuildOptions{Writable: true})
}

// selectTemplate implements §4.5 step 2: walk the ordered BPB template
// table, skip templates of the wrong disk class, reject templates with too
// few root entries or too little data area, and (when the target capacity
// forces an exact match on a partitioned template) require
// totalSectors == targetKB*2.
func selectTemplate(root []pcdisk.FileDescriptor, targetKB int) (*geometry.Template, error) {
	wantFixed := pcdisk.ClassifyMediaByCapacity(targetKB) == pcdisk.MediaClassFixed

	for i := range geometry.Templates {
		t := &geometry.Templates[i]
		tFixed := t.HiddenSectors > 0
		if tFixed != wantFixed {
			continue
		}
		if t.RootEntries < len(root) {
			continue
		}
		if targetKB != 0 && t.HiddenSectors > 0 && t.TotalSectors != targetKB*2 {
			continue
		}

		clusterBytes := t.ClusterSecs * t.BytesPerSector
		rootDirSectors := (t.RootEntries*direntSize + t.BytesPerSector - 1) / t.BytesPerSector
		vbaData := 1 + t.TotalFATs*t.FATSecs + rootDirSectors
		dataBytes := (t.TotalSectors - vbaData) * t.BytesPerSector

		if computeTreeSize(root, clusterBytes) <= dataBytes {
			return t, nil
		}
	}
	return nil, pcdisk.ErrUnsupportedCapacity
}

// computeTreeSize implements §4.5 step 1: round each file up to
// clusterBytes and sum; a directory contributes (childCount+2)*32 bytes
// (rounded the same way) plus its children's recursive total.
func computeTreeSize(entries []pcdisk.FileDescriptor, clusterBytes int) int {
	var total int
	for i := range entries {
		e := &entries[i]
		if e.IsDir() {
			total += roundUpToCluster((len(e.Files)+2)*direntSize, clusterBytes)
			total += computeTreeSize(e.Files, clusterBytes)
		} else {
			total += roundUpToCluster(len(e.Data), clusterBytes)
		}
	}
	return total
}

func roundUpToCluster(n, clusterBytes int) int {
	if n == 0 {
		return 0
	}
	return (n + clusterBytes - 1) / clusterBytes * clusterBytes
}

func clustersNeeded(n, clusterBytes int) int {
	if n == 0 {
		return 0
	}
	return (n + clusterBytes - 1) / clusterBytes
}

// assignClusters implements §4.5 step 6's two-pass tree walk: the first
// pass allocates a cluster chain (and writes its FAT cells) for every
// non-empty entry at this level; the second pass then recurses into each
// subdirectory to do the same for its children. Siblings at one level
// therefore always get contiguous cluster numbers before any of them
// descend, matching a conventional FORMAT's layout.
func (b *builder) assignClusters(alloc *clusterAllocator, entries []pcdisk.FileDescriptor) ([]*assignedNode, error) {
	nodes := make([]*assignedNode, len(entries))
	for i := range entries {
		nodes[i] = &assignedNode{desc: &entries[i]}
	}

	for _, n := range nodes {
		count := clusterCountFor(n.desc, b.clusterBytes)
		if count == 0 {
			continue
		}
		start, err := alloc.allocateChain(count)
		if err != nil {
			return nil, err
		}
		n.cluster = start
		n.clusterCount = count
		b.writeChainCells(start, count)
	}

	for _, n := range nodes {
		if n.desc.IsDir() {
			children, err := b.assignClusters(alloc, n.desc.Files)
			if err != nil {
				return nil, err
			}
			n.children = children
		}
	}

	return nodes, nil
}

func clusterCountFor(d *pcdisk.FileDescriptor, clusterBytes int) int {
	if d.IsDir() {
		return clustersNeeded((len(d.Files)+2)*direntSize, clusterBytes)
	}
	return clustersNeeded(len(d.Data), clusterBytes)
}

// writeChainCells writes count FAT cells starting at cluster start, each
// pointing at its successor, with the last set to the EOC marker.
func (b *builder) writeChainCells(start, count int) {
	for i := 0; i < count; i++ {
		cluster := start + i
		if i == count-1 {
			setFATCell(b.fatBytes, cluster, b.eocMarker, b.nFATBits)
		} else {
			setFATCell(b.fatBytes, cluster, cluster+1, b.nFATBits)
		}
	}
}

// writeFATCopies implements §4.5 step 7.
func (b *builder) writeFATCopies() {
	fatRegionStart := b.reserve + b.cbSector
	w := bytewriter.New(b.buffer[fatRegionStart:])
	for i := 0; i < b.template.TotalFATs; i++ {
		w.Write(b.fatBytes)
	}
}

// writeRootDirectory implements §4.5 step 8: build the root directory's
// entries (no "." or ".." -- the root has neither), write them, and fill
// whatever's left of the root directory region with 0xE5 for DOS 1.0
// compatibility.
func (b *builder) writeRootDirectory(root []pcdisk.FileDescriptor, nodes []*assignedNode, rootDirSectors int) {
	rootDirStart := b.reserve + b.cbSector + b.template.TotalFATs*len(b.fatBytes)
	rootDirBytes := rootDirSectors * b.cbSector
	pcdisk.AssertInvariant(rootDirBytes%b.cbSector == 0,
		"root directory region %d bytes is not a multiple of sector size %d", rootDirBytes, b.cbSector)

	entries := entriesBytes(root, nodes)
	w := bytewriter.New(b.buffer[rootDirStart : rootDirStart+rootDirBytes])
	w.Write(entries)
	if pad := rootDirBytes - len(entries); pad > 0 {
		w.Write(bytesRepeat(0xE5, pad))
	}
}

func bytesRepeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

// writeTree implements §4.5 step 9: write every file's data and every
// subdirectory's synthesized "."/".." directory table, in the same
// depth-first order the FAT pass used.
func (b *builder) writeTree(nodes []*assignedNode, parentCluster int) error {
	for _, n := range nodes {
		if n.desc.IsDir() {
			if n.cluster != 0 {
				table := synthesizeDirectory(n.cluster, parentCluster, entriesBytes(n.desc.Files, n.children))
				b.writeClusterChain(n.cluster, n.clusterCount, table)
			}
			if err := b.writeTree(n.children, n.cluster); err != nil {
				return err
			}
		} else if n.cluster != 0 {
			b.writeClusterChain(n.cluster, n.clusterCount, n.desc.Data)
		}
	}
	return nil
}

// writeClusterChain copies data into the clusterCount clusters starting at
// startCluster, in cluster-sized pieces (the final piece short-filled, the
// rest of the buffer already zeroed).
func (b *builder) writeClusterChain(startCluster, clusterCount int, data []byte) {
	base := b.reserve + b.vbaData*b.cbSector
	written := 0
	for i := 0; i < clusterCount; i++ {
		cluster := startCluster + i
		off := base + (cluster-2)*b.clusterBytes
		n := b.clusterBytes
		if written+n > len(data) {
			n = len(data) - written
		}
		if n > 0 {
			copy(b.buffer[off:off+n], data[written:written+n])
			written += n
		}
	}
}

// writeMBR implements §4.5 step 4: one active FAT12 partition entry at
// 0x1EE, CHS addresses derived from the template's heads/sectorsPerTrack,
// and the 0xAA55 signature, replicated across the hidden band.
//
// The partition's LBA-first is the reserved band's own sector count
// (b.reserve/cbSector), not a literal 1: the reserved band is exactly the
// "hidden" sectors this partition sits behind, and the entry must agree
// with where the volume's own boot sector actually lands in the buffer, or
// the final re-parse in step 10 can't find it.
func (b *builder) writeMBR() {
	t := b.template
	const entryOff = mbrFirstEntryOffset + 3*mbrEntrySize
	lbaFirst := b.reserve / t.BytesPerSector

	b.buffer[entryOff] = 0x80
	b.buffer[entryOff+4] = mbrTypeFAT12

	start := lbaToCHSBytes(lbaFirst, t.Heads, t.SectorsPerTrack)
	copy(b.buffer[entryOff+1:entryOff+4], start[:])
	end := lbaToCHSBytes(lbaFirst+t.TotalSectors-1, t.Heads, t.SectorsPerTrack)
	copy(b.buffer[entryOff+5:entryOff+8], end[:])

	pcdisk.AssertInvariant(chsBytesToLBA(start, t.Heads, t.SectorsPerTrack) == lbaFirst,
		"MBR partition start CHS %v does not back-translate to LBA %d", start, lbaFirst)

	binary.LittleEndian.PutUint32(b.buffer[entryOff+8:], uint32(lbaFirst))
	binary.LittleEndian.PutUint32(b.buffer[entryOff+12:], uint32(t.TotalSectors))
	binary.LittleEndian.PutUint16(b.buffer[0x1FE:], geometry.BootSignatureValue)

	sectorSize := t.BytesPerSector
	mbrSector := make([]byte, sectorSize)
	copy(mbrSector, b.buffer[:sectorSize])
	w := bytewriter.New(b.buffer[sectorSize:b.reserve])
	for off := sectorSize; off < b.reserve; off += sectorSize {
		w.Write(mbrSector)
	}
}

func lbaToCHSBytes(lba, heads, sectorsPerTrack int) [3]byte {
	perCylinder := heads * sectorsPerTrack
	cylinder := lba / perCylinder
	rem := lba % perCylinder
	head := rem / sectorsPerTrack
	sector := rem%sectorsPerTrack + 1

	var out [3]byte
	out[0] = byte(head)
	out[1] = byte((cylinder>>8)&0x3)<<6 | byte(sector&0x3F)
	out[2] = byte(cylinder & 0xFF)
	return out
}

// chsBytesToLBA reverses lbaToCHSBytes, used only to assert that the CHS
// triple this builder just wrote agrees with the LBA it was derived from.
func chsBytesToLBA(chs [3]byte, heads, sectorsPerTrack int) int {
	head := int(chs[0])
	cylinder := (int(chs[1]&0xC0) << 2) | int(chs[2])
	sector := int(chs[1] & 0x3F)
	return cylinder*heads*sectorsPerTrack + head*sectorsPerTrack + (sector - 1)
}

// entriesBytes encodes entries (with their already-assigned clusters in
// assigned) as a flat run of 32-byte directory slots, in order.
func entriesBytes(entries []pcdisk.FileDescriptor, assigned []*assignedNode) []byte {
	out := make([]byte, len(entries)*direntSize)
	for i := range entries {
		d := &entries[i]
		slot := out[i*direntSize : (i+1)*direntSize]

		base, ext := toShortName(d.Name)
		attr := d.Attr
		var size int64
		if d.IsDir() {
			attr |= pcdisk.AttrSubdirectory
		} else {
			size = int64(len(d.Data))
		}
		writeDirentSlot(slot, base, ext, attr, assigned[i].cluster, size, d.Date)
	}
	return out
}

// synthesizeDirectory builds a subdirectory's on-disk table: a "." entry
// pointing at selfCluster, a ".." entry pointing at parentCluster (0 for
// the root), then the already-encoded child entries.
func synthesizeDirectory(selfCluster, parentCluster int, children []byte) []byte {
	out := make([]byte, 2*direntSize+len(children))
	writeSpecialDirent(out[0:direntSize], ".", selfCluster)
	writeSpecialDirent(out[direntSize:2*direntSize], "..", parentCluster)
	copy(out[2*direntSize:], children)
	return out
}

func writeSpecialDirent(slot []byte, name string, cluster int) {
	copy(slot[0:8], padRight(name, 8))
	copy(slot[8:11], padRight("", 3))
	slot[11] = byte(pcdisk.AttrSubdirectory)
	binary.LittleEndian.PutUint16(slot[20:22], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(slot[26:28], uint16(cluster&0xFFFF))
}

// writeDirentSlot encodes one 32-byte directory entry: short name, extension,
// attributes, modification date/time, starting cluster, and size.
func writeDirentSlot(slot []byte, base, ext string, attr, cluster int, size int64, date time.Time) {
	copy(slot[0:8], padRight(base, 8))
	copy(slot[8:11], padRight(ext, 3))
	slot[11] = byte(attr)

	d := dateToFAT(date)
	tm := timeToFAT(date)
	binary.LittleEndian.PutUint16(slot[14:16], tm)
	binary.LittleEndian.PutUint16(slot[16:18], d)
	binary.LittleEndian.PutUint16(slot[18:20], d)
	binary.LittleEndian.PutUint16(slot[20:22], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(slot[22:24], tm)
	binary.LittleEndian.PutUint16(slot[24:26], d)
	binary.LittleEndian.PutUint16(slot[26:28], uint16(cluster&0xFFFF))
	binary.LittleEndian.PutUint32(slot[28:32], uint32(size))
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}
