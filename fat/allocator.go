package fat

import (
	bitmap "github.com/boljen/go-bitmap"

	"github.com/dargueta/pcdisk"
)

// clusterAllocator tracks which data clusters of a volume under
// construction are already spoken for. Grounded on the teacher's
// drivers/common.Allocator: the same bitmap-backed first-fit run search,
// generalized from 0-based block IDs to FAT cluster numbers, which start
// at 2.
type clusterAllocator struct {
	bits      bitmap.Bitmap
	clusTotal int
}

func newClusterAllocator(clusTotal int) *clusterAllocator {
	return &clusterAllocator{bits: bitmap.New(clusTotal), clusTotal: clusTotal}
}

// allocateChain finds the first contiguous run of count free clusters,
// marks them allocated, and returns the first cluster number (2-based). The
// Builder always requests chains, never single scattered clusters, since
// §4.5 step 6 writes each cell pointing at cluster+1.
func (a *clusterAllocator) allocateChain(count int) (int, error) {
	if count == 0 {
		return 0, nil
	}

	runSize := 0
	runStart := 0
	for i := 0; i < a.clusTotal; i++ {
		if a.bits.Get(i) {
			runSize = 0
			continue
		}
		if runSize == 0 {
			runStart = i
		}
		runSize++
		if runSize == count {
			for j := runStart; j < runStart+count; j++ {
				a.bits.Set(j, true)
			}
			return runStart + 2, nil
		}
	}
	return 0, pcdisk.ErrUnsupportedCapacity
}
