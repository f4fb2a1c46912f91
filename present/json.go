package present

import (
	"github.com/dargueta/pcdisk"
	"github.com/dargueta/pcdisk/diskimg"
)

// ExtendedJSON renders img's extended JSON document (§4.6) including the
// decoded volTable/fileTable, via diskimg.MarshalExtendedJSONWithTables.
func ExtendedJSON(img *diskimg.Image, name string, volTable []pcdisk.VolInfo, fileTable pcdisk.FileTable) ([]byte, error) {
	return diskimg.MarshalExtendedJSONWithTables(img, name, volTable, fileTable)
}

// Lookup resolves a backslash-separated path against every volume's
// FileTable in turn, returning the first match and the index of the
// FileTable it came from. It's the "symbol lookup" half of §4.6's
// presentation concerns: a caller with a multi-volume fixed disk's full set
// of decoded tables wants to resolve a path without knowing which partition
// it lives on.
func Lookup(tables []pcdisk.FileTable, path string) (*pcdisk.FileInfo, int, bool) {
	for i, ft := range tables {
		if fi, ok := ft.Lookup(path); ok {
			return fi, i, true
		}
	}
	return nil, -1, false
}
