package pcdisk

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Warnings accumulates the recoverable diagnostics described in §7: BPB
// geometry disagreeing with physical geometry, an unrecognized boot sector,
// FAT ID not matching the media ID, sector size varying within a track, a
// non-standard sector ID, a cross-linked sector, an invalid cluster mid-chain,
// a PSI CRC mismatch treated as end-of-stream, and so on.
//
// Unlike an error, a Warnings value never stops an entry point from returning
// a result; it's only ever informational. An empty *Warnings (Empty reports
// true, as it also does for nil) means the parse was clean.
type Warnings struct {
	diskName string
	errs     *multierror.Error
}

// NewWarnings creates an accumulator that prefixes every message with
// diskName, per §7 ("All user-visible messages carry the disk name as a
// prefix where meaningful").
func NewWarnings(diskName string) *Warnings {
	return &Warnings{diskName: diskName}
}

// Addf records a new warning, formatted like fmt.Sprintf. A nil *Warnings
// silently discards the message, matching Empty/Len/List's nil-safety --
// the Geometry Resolver's Options.Warnings field is documented as "may be
// nil", so every caller downstream of it relies on this.
func (w *Warnings) Addf(format string, args ...interface{}) {
	if w == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if w.diskName != "" {
		msg = fmt.Sprintf("%s: %s", w.diskName, msg)
	}
	w.errs = multierror.Append(w.errs, fmt.Errorf("%s", msg))
}

// Empty reports whether no warnings have been recorded.
func (w *Warnings) Empty() bool {
	return w == nil || w.errs == nil || len(w.errs.Errors) == 0
}

// Len returns the number of recorded warnings.
func (w *Warnings) Len() int {
	if w == nil || w.errs == nil {
		return 0
	}
	return len(w.errs.Errors)
}

// List returns every warning message recorded so far, in the order they were
// added.
func (w *Warnings) List() []string {
	if w.Empty() {
		return nil
	}
	messages := make([]string, len(w.errs.Errors))
	for i, err := range w.errs.Errors {
		messages[i] = err.Error()
	}
	return messages
}

// Error implements the error interface so a *Warnings can be handed to
// callers that just want a single diagnostic string, e.g. for logging.
func (w *Warnings) Error() string {
	if w.Empty() {
		return ""
	}
	return w.errs.Error()
}

// Merge folds other's warnings into w, preserving order.
func (w *Warnings) Merge(other *Warnings) {
	if other.Empty() {
		return
	}
	for _, err := range other.errs.Errors {
		w.errs = multierror.Append(w.errs, err)
	}
}
