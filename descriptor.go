package pcdisk

import "time"

// FileDescriptor is one input node to the FAT Volume Builder (§4.5): a file
// descriptor tree the caller assembles before calling fat.Build. A negative
// Size marks a directory, whose children live in Files; everything else is
// a plain file whose bytes live in Data.
type FileDescriptor struct {
	Name  string
	Attr  int
	Date  time.Time
	Size  int64
	Data  []byte
	Files []FileDescriptor
}

// IsDir reports whether this descriptor is a directory, per §4.5
// ("directories recurse via files and carry size < 0").
func (fd *FileDescriptor) IsDir() bool {
	return fd.Size < 0
}
