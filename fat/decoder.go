package fat

import (
	"github.com/dargueta/pcdisk"
	"github.com/dargueta/pcdisk/bytestream"
	"github.com/dargueta/pcdisk/geometry"
)

// maxPartitionScanIterations is the circuit breaker from §4.4 ("a circuit
// breaker limits total iterations (48)").
const maxPartitionScanIterations = 48

// maxEntriesPerPhase caps how many of the four MBR entries each scan phase
// considers, per §4.4 ("iterating beyond four entries per phase terminates
// that phase") -- all four are legal, so this equals the slot count, but is
// named so the circuit-breaker logic reads the same way as the spec text.
const maxEntriesPerPhase = 4

// Decoder walks one or more FAT12/FAT16 volumes out of a Stream, building
// the VolInfo/FileInfo tables §4.4 describes.
type Decoder struct {
	stream   *bytestream.Stream
	geometry chsGeometry
	warnings *pcdisk.Warnings
}

// NewDecoder creates a Decoder. geometryHeads/geometrySectorsPerTrack come
// from the Geometry Resolver and are used to translate the LBAs this
// package computes into the (cylinder, head, id) triples Stream.Seek wants.
func NewDecoder(stream *bytestream.Stream, heads, sectorsPerTrack int, warnings *pcdisk.Warnings) *Decoder {
	return &Decoder{
		stream:   stream,
		geometry: chsGeometry{Heads: heads, SectorsPerTrack: sectorsPerTrack},
		warnings: warnings,
	}
}

// BuildVolume builds the VolInfo/FileTable pair for the volume at the given
// index (0-based), per §4.4. It returns (nil, nil, nil) once build_volume
// would return a null or partition-less result -- i.e. there is no
// volumeIndex'th volume -- which the caller uses as the loop terminator.
func (d *Decoder) BuildVolume(volumeIndex int) (*pcdisk.VolInfo, pcdisk.FileTable, error) {
	if volumeIndex == 0 {
		return d.buildVolumeZero()
	}
	return d.buildHigherVolume(volumeIndex)
}

func (d *Decoder) buildVolumeZero() (*pcdisk.VolInfo, pcdisk.FileTable, error) {
	bootSector, err := readLBA(d.stream, d.geometry, 0)
	if err != nil {
		return nil, nil, err
	}

	bpb := geometry.ParseBPB(bootSector, 0)

	trusted := bpb.BytesPerSector == len(bootSector) && isRecognizedFATMedia(bpb.MediaID)
	if !trusted {
		fatID, err := d.firstFATByte(bpb, 0)
		if err != nil {
			d.warnings.Addf("volume 0: could not read first FAT sector to recover pre-BPB geometry: %v", err)
			return nil, nil, nil
		}
		candidates := geometry.LookupByMediaAndSize(fatID, bpb.TotalSectors()*bpb.BytesPerSector)
		if len(candidates) == 0 {
			return nil, nil, nil
		}
		t := candidates[0]
		bpb.ClusterSecs = t.ClusterSecs
		bpb.TotalFATs = t.TotalFATs
		bpb.RootDirents = t.RootEntries
		bpb.FATSecs = t.FATSecs
		bpb.MediaID = t.MediaID
	}

	return d.buildFromBPB(0, 0, bpb)
}

func (d *Decoder) buildHigherVolume(volumeIndex int) (*pcdisk.VolInfo, pcdisk.FileTable, error) {
	lbaPrimary := 0
	iterations := 0
	foundCount := 0

	for iterations < maxPartitionScanIterations {
		bootSector, err := readLBA(d.stream, d.geometry, lbaPrimary)
		if err != nil || !hasBootSignature(bootSector) {
			return nil, nil, nil
		}
		entries := parseMBREntries(bootSector)

		// Phase 0: primary FAT12/FAT16 partitions.
		for i := 0; i < maxEntriesPerPhase && iterations < maxPartitionScanIterations; i++ {
			iterations++
			e := entries[i]
			if !e.isActive() || !e.isPrimaryFAT() {
				continue
			}
			foundCount++
			if foundCount-1 == volumeIndex-1 {
				partitionBoot, err := readLBA(d.stream, d.geometry, lbaPrimary+e.LBAFirst)
				if err != nil {
					return nil, nil, err
				}
				bpb := geometry.ParseBPB(partitionBoot, 0)
				return d.buildFromBPB(volumeIndex, lbaPrimary+e.LBAFirst, bpb)
			}
		}

		// Phase 1: follow EXTENDED partitions.
		extended := -1
		for i := 0; i < maxEntriesPerPhase && iterations < maxPartitionScanIterations; i++ {
			iterations++
			if entries[i].isExtended() {
				extended = i
				break
			}
		}
		if extended < 0 {
			return nil, nil, nil
		}
		lbaPrimary = lbaPrimary + entries[extended].LBAFirst
	}

	d.warnings.Addf("partition scan hit the %d-iteration circuit breaker before resolving volume %d", maxPartitionScanIterations, volumeIndex)
	return nil, nil, nil
}

func isRecognizedFATMedia(mediaID int) bool {
	switch mediaID {
	case pcdisk.MediaID160KB, pcdisk.MediaID180KB, pcdisk.MediaID320KB, pcdisk.MediaID360KB,
		pcdisk.MediaID720KB, pcdisk.MediaID1440KB, pcdisk.MediaIDFixed:
		return true
	default:
		return false
	}
}

// firstFATByte reads the first byte of the first FAT sector, used as the
// fatId lookup key for pre-BPB media per §4.4. lbaStart is the partition's
// own base LBA (0 for an unpartitioned disk).
func (d *Decoder) firstFATByte(bpb geometry.RawBPB, lbaStart int) (int, error) {
	reservedSecs := bpb.ReservedSecs
	if reservedSecs == 0 {
		reservedSecs = 1
	}
	fatSector, err := readLBA(d.stream, d.geometry, lbaStart+reservedSecs)
	if err != nil {
		return 0, err
	}
	return int(fatSector[0]), nil
}

// buildFromBPB implements the shared tail of §4.4 once a partition's boot
// sector (with a trustworthy BPB) has been located: compute vbaData/
// clusTotal, choose nFATBits, validate fatId == mediaId, and walk the root
// directory.
func (d *Decoder) buildFromBPB(volumeIndex, lbaStart int, bpb geometry.RawBPB) (*pcdisk.VolInfo, pcdisk.FileTable, error) {
	if bpb.ClusterSecs == 0 || bpb.BytesPerSector == 0 {
		return nil, nil, nil
	}

	rootDirSectors := (bpb.RootDirents*direntSize + bpb.BytesPerSector - 1) / bpb.BytesPerSector
	vbaRoot := bpb.ReservedSecs + bpb.TotalFATs*bpb.FATSecs
	vbaData := vbaRoot + rootDirSectors
	dataSectors := bpb.TotalSectors() - vbaData
	clusTotal := dataSectors / bpb.ClusterSecs
	clusMax := clusTotal + 1

	nFATBits := 16
	if clusTotal < 4085 {
		nFATBits = 12
	}

	if bpb.MediaID != 0 {
		fatID, err := d.firstFATByte(bpb, lbaStart)
		if err == nil && fatID != bpb.MediaID {
			d.warnings.Addf("volume %d: FAT media byte %#x does not match BPB mediaID %#x", volumeIndex, fatID, bpb.MediaID)
		}
	}

	vol := &pcdisk.VolInfo{
		IVolume:    volumeIndex,
		IPartition: volumeIndex - 1,
		IDMedia:    bpb.MediaID,
		LBAStart:   lbaStart,
		LBATotal:   bpb.TotalSectors(),
		NFATBits:   nFATBits,
		VBAFAT:     bpb.ReservedSecs,
		VBARoot:    vbaRoot,
		VBAData:    vbaData,
		NEntries:   bpb.RootDirents,
		ClusSecs:   bpb.ClusterSecs,
		ClusMax:    clusMax,
		ClusTotal:  clusTotal,
		CBSector:   bpb.BytesPerSector,
	}

	fatBytes, err := d.readFATRegion(vol)
	if err != nil {
		return nil, nil, err
	}

	freeCount, badCount := classifyFreeAndBad(fatBytes, vol)
	vol.ClusFree = freeCount
	vol.ClusBad = badCount

	rootLBAs := make([]int, rootDirSectors)
	for i := range rootLBAs {
		rootLBAs[i] = vol.LBAStart + vol.VBARoot + i
	}

	files, err := d.walkDirectoryLBAs(vol, fatBytes, rootLBAs, `\`)
	if err != nil {
		return nil, nil, err
	}

	d.writeBackReferences(vol, files)

	return vol, files, nil
}

// writeBackReferences implements §4.4's back-reference write-back: once the
// file table is built, every sector an LBA chain touches gets its
// FileIndex/FileOffset/FileInfoSet stamped, with a warning when a sector is
// already attributed to a different file (a cross-link). Each entry's ALBA
// contributes exactly one back-reference per sector, stamped here, including
// any unused sectors of a file's last cluster; so a file's back-reference
// count equals §8's ceil(file.size/cbSector) when clusters are one sector
// long.
func (d *Decoder) writeBackReferences(vol *pcdisk.VolInfo, files pcdisk.FileTable) {
	for idx := range files {
		entry := &files[idx]
		for offset, lba := range entry.ALBA {
			sector, err := seekLBA(d.stream, d.geometry, lba)
			if err != nil {
				continue
			}
			if sector.FileInfoSet && sector.FileIndex != idx {
				d.warnings.Addf("volume %d: sector at LBA %d is cross-linked between file %q and file %q",
					vol.IVolume, lba, files[sector.FileIndex].Path, entry.Path)
			}
			sector.FileIndex = idx
			sector.FileOffset = int64(offset) * int64(vol.CBSector)
			sector.FileInfoSet = true
		}
	}
}

// readFATRegion reads the first FAT copy into one flattened buffer, so
// per-cell access (including the FAT12 cell that straddles a sector
// boundary) is a simple byte-offset lookup rather than a two-sector fetch;
// this produces identical values to the split fetch §4.4 describes.
//
// VBAFAT/VBARoot/VBAData are all volume-relative (0 for the first sector of
// the volume's own boot sector); vol.LBAStart is added here to get the
// absolute LBA a partitioned volume needs.
func (d *Decoder) readFATRegion(vol *pcdisk.VolInfo) ([]byte, error) {
	fatSecs := vol.VBARoot - vol.VBAFAT
	buf := make([]byte, 0, fatSecs*vol.CBSector)
	for i := 0; i < fatSecs; i++ {
		data, err := readLBA(d.stream, d.geometry, vol.LBAStart+vol.VBAFAT+i)
		if err != nil {
			return nil, err
		}
		buf = append(buf, data...)
	}
	return buf, nil
}

// classifyFreeAndBad implements §4.4's free/bad accounting: for cluster in
// [2, clusTotal+1], classify as free (0), bad (the width's bad-cluster
// marker from vol.BadClusterValue(): 0xFF7 or 0xFFF7), or allocated.
func classifyFreeAndBad(fatBytes []byte, vol *pcdisk.VolInfo) (free, bad int) {
	badValue := vol.BadClusterValue()
	for cluster := 2; cluster <= vol.ClusTotal+1; cluster++ {
		cell := fetchFATCell(fatBytes, cluster, vol.NFATBits)
		switch {
		case cell == pcdisk.FATCellFree:
			free++
		case cell == badValue:
			bad++
		}
	}
	return free, bad
}

// clusterChainToLBAs implements §4.4's Cluster-to-LBA walk: starting from
// startCluster, compute vba = vbaData + (cluster-2)*clusSecs, push clusSecs
// LBAs per cluster, and follow the FAT chain until the entry is < 2, >
// clusMax, or bad/EOC.
func (d *Decoder) clusterChainToLBAs(vol *pcdisk.VolInfo, fatBytes []byte, startCluster int) []int {
	var lbas []int
	cluster := startCluster
	visited := map[int]bool{}

	for cluster >= 2 && cluster <= vol.ClusMax {
		if visited[cluster] {
			d.warnings.Addf("volume %d: cluster chain starting at %d loops back on itself", vol.IVolume, startCluster)
			break
		}
		visited[cluster] = true

		vba := vol.LBAStart + vol.VBAData + (cluster-2)*vol.ClusSecs
		for i := 0; i < vol.ClusSecs; i++ {
			lbas = append(lbas, vba+i)
		}

		next := fetchFATCell(fatBytes, cluster, vol.NFATBits)
		if next == pcdisk.FATCellFree || next == vol.BadClusterValue() {
			d.warnings.Addf("volume %d: invalid cluster %d encountered mid-chain from %d", vol.IVolume, cluster, startCluster)
			break
		}
		if next >= vol.EOCThreshold() {
			break
		}
		cluster = next
	}
	return lbas
}

// walkDirectoryLBAs implements §4.4's directory scan: for each directory
// sector in lbas, for each 32-byte slot, classify the entry, build a
// FileInfo, and recurse into subdirectories (skipping "." and ".."). The
// root directory's own LBAs are a contiguous run; a subdirectory's are
// whatever clusterChainToLBAs returned for it, so both are expressed as a
// plain LBA list here.
func (d *Decoder) walkDirectoryLBAs(
	vol *pcdisk.VolInfo, fatBytes []byte, lbas []int, dirPath string,
) (pcdisk.FileTable, error) {
	var table pcdisk.FileTable

	for _, lba := range lbas {
		sectorData, err := readLBA(d.stream, d.geometry, lba)
		if err != nil {
			return nil, err
		}

		numEntries := len(sectorData) / direntSize
	slotLoop:
		for i := 0; i < numEntries; i++ {
			slot := sectorData[i*direntSize : (i+1)*direntSize]
			switch classifyDirent(slot) {
			case direntEndOfDirectory:
				break slotLoop
			case direntDeleted:
				continue
			}

			raw := parseRawDirent(slot)
			parsed := newParsedDirent(raw)
			if parsed.Name == "." || parsed.Name == ".." {
				continue
			}

			fullPath := dirPath + parsed.Name
			if dirPath != `\` {
				fullPath = dirPath + `\` + parsed.Name
			}
			entry := pcdisk.FileInfo{
				IVolume:      vol.IVolume,
				Path:         fullPath,
				Name:         parsed.Name,
				Attr:         parsed.Attr,
				Date:         parsed.Modified,
				Size:         parsed.Size,
				StartCluster: parsed.FirstCluster,
			}

			// Every non-root entry's cluster chain is recorded on ALBA,
			// files and directories alike, so writeBackReferences can walk
			// the whole table uniformly afterward.
			var childLBAs []int
			if parsed.FirstCluster != 0 {
				chainLBAs := d.clusterChainToLBAs(vol, fatBytes, parsed.FirstCluster)
				entry.ALBA = chainLBAs
				if parsed.IsDir() {
					childLBAs = chainLBAs
				}
			}

			table = append(table, entry)

			if parsed.IsDir() && len(childLBAs) > 0 {
				children, err := d.walkDirectoryLBAs(vol, fatBytes, childLBAs, fullPath)
				if err != nil {
					return nil, err
				}
				table = append(table, children...)
			}
		}
	}

	return table, nil
}
