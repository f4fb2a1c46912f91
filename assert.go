package pcdisk

import "github.com/dsoprea/go-logging"

// AssertInvariant guards the handful of structural invariants named by the
// error model: sector-offset bounds during LBA/CHS translation, a directory
// region's length being a multiple of the sector size, a builder's finished
// buffer matching its precomputed size, and CHS/LBA agreement when a back
// reference is recomputed. These never fire on malformed caller input --
// that's what DriverError and Warnings are for -- only on a bug in this
// module itself, so they panic instead of returning an error. Grounded on
// dsoprea-go-exfat's log.PanicIf/log.Panicf idiom (structures.go).
func AssertInvariant(cond bool, format string, args ...interface{}) {
	if !cond {
		log.Panicf(format, args...)
	}
}
