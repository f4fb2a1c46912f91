// Package present implements §4.6: rendering a decoded volume and its
// FileTable as a DOS-style directory listing or as the extended JSON
// document's volTable/fileTable sections. Neither the Geometry Resolver nor
// the Image Parsers know anything about FAT's VolInfo/FileTable -- those are
// produced by the FAT Volume Decoder, one layer up -- so this package is the
// seam where decoded tables and an Image come together for a caller. No
// direct teacher analog exists for this package; its plain
// struct-to-rendered-string style follows the teacher's own formatting code
// in disks.DiskGeometry.
package present

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dargueta/pcdisk"
)

// DirectoryListing renders every directory in fileTable as a DOS-style "DIR"
// block: "Directory of <drive>:<path>", one line per entry (short name,
// size or "<DIR>", modification date/time), a per-directory "N file(s) M
// bytes" line, then a volume-wide total and a free-bytes line.
func DirectoryListing(vol *pcdisk.VolInfo, fileTable pcdisk.FileTable) string {
	var out strings.Builder

	var totalFiles int
	var totalBytes int64

	for _, dirPath := range directoryPaths(fileTable) {
		fmt.Fprintf(&out, "Directory of %c:%s\n\n", vol.DriveLetter(), dirPath)

		var nFiles int
		var nBytes int64
		for _, fi := range fileTable.Children(dirPath) {
			base, ext := splitShortName(fi.Name)
			sizeCol := "<DIR>"
			if !fi.IsDir() {
				sizeCol = strconv.FormatInt(fi.Size, 10)
				nBytes += fi.Size
			}
			fmt.Fprintf(&out, "%-8s %-3s %12s  %s\n",
				base, ext, sizeCol, fi.Date.Format("01-02-06  3:04p"))
			nFiles++
		}

		fmt.Fprintf(&out, "%16d file(s) %14d bytes\n\n", nFiles, nBytes)
		totalFiles += nFiles
		totalBytes += nBytes
	}

	fmt.Fprintf(&out, "%16d file(s) total, %14d bytes\n", totalFiles, totalBytes)
	fmt.Fprintf(&out, "%30d bytes free\n", vol.FreeBytes())

	return out.String()
}

// directoryPaths returns the root ("\") followed by every subdirectory path
// present in fileTable, in sorted order after the root.
func directoryPaths(fileTable pcdisk.FileTable) []string {
	seen := map[string]bool{`\`: true}
	dirs := []string{`\`}
	for i := range fileTable {
		fi := &fileTable[i]
		if fi.IsDir() && !seen[fi.Path] {
			seen[fi.Path] = true
			dirs = append(dirs, fi.Path)
		}
	}
	sort.Strings(dirs[1:])
	return dirs
}

// splitShortName splits a FAT short name ("HELLO.TXT") back into its base
// and extension columns for the listing; an extensionless name (a volume
// label, or a subdirectory) returns an empty extension.
func splitShortName(name string) (base, ext string) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return name, ""
	}
	return name[:idx], name[idx+1:]
}
