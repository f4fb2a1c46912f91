// Package pcdisk reads, constructs, and re-emits floppy and fixed-disk images
// used by early PC-compatible operating systems: raw sector streams, the PCE
// sector-image container, a JSON representation, and host file trees packed
// into a fresh FAT12/FAT16 volume.
package pcdisk

import (
	"fmt"
	"syscall"
)

// DriverError wraps a system errno code with a customizable message, exactly
// like a POSIX driver failure. Every hard error (§7 "error": the engine
// returns a nil/empty result from the entry point) returned by this module is
// either a *DriverError or a DiskoError.
type DriverError struct {
	ErrnoCode syscall.Errno
	message   string
}

func (e *DriverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.ErrnoCode.Error()
}

func (e *DriverError) Unwrap() error {
	return e.ErrnoCode
}

// NewDriverError creates a new DriverError with a default message derived
// from the system's error code.
func NewDriverError(errnoCode syscall.Errno) *DriverError {
	return &DriverError{ErrnoCode: errnoCode, message: errnoCode.Error()}
}

// NewDriverErrorWithMessage creates a new DriverError from a system error
// code with a custom message; the result reads "<errno text>: <message>".
func NewDriverErrorWithMessage(errnoCode syscall.Errno, message string) *DriverError {
	return &DriverError{
		ErrnoCode: errnoCode,
		message:   fmt.Sprintf("%s: %s", errnoCode.Error(), message),
	}
}

// DiskoError is a sentinel error identifying one of the named failure modes
// from §7. Comparing with errors.Is works directly against the sentinel, and
// WithMessage/Wrap produce a derived error that still satisfies errors.Is
// against the sentinel.
type DiskoError string

func (e DiskoError) Error() string { return string(e) }

// WithMessage returns a new error carrying both e's text and an additional
// detail string, still matching errors.Is(err, e).
func (e DiskoError) WithMessage(detail string) error {
	return &namedError{sentinel: e, message: fmt.Sprintf("%s: %s", e, detail)}
}

// Wrap returns a new error carrying both e's text and an underlying cause,
// still matching errors.Is(err, e) and errors.Is(err, cause).
func (e DiskoError) Wrap(cause error) error {
	return &namedError{
		sentinel: e,
		message:  fmt.Sprintf("%s: %s", e, cause.Error()),
		cause:    cause,
	}
}

type namedError struct {
	sentinel DiskoError
	message  string
	cause    error
}

func (e *namedError) Error() string { return e.message }

func (e *namedError) Is(target error) bool {
	return target == error(e.sentinel)
}

func (e *namedError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return e.sentinel
}

// Sentinel errors for the conditions named throughout §7 and the component
// sections. These are returned verbatim, or via WithMessage/Wrap, from the
// parsers, the FAT decoder, and the FAT builder.
const (
	ErrBootSectorNotFound   = DiskoError("cannot locate boot sector")
	ErrImpossibleBPB        = DiskoError("partition table produces an impossible BPB")
	ErrUnsupportedCapacity  = DiskoError("file set exceeds any supported BPB template")
	ErrNotWritable          = DiskoError("disk image is not writable")
	ErrOffsetOutOfRange     = DiskoError("byte offset is out of range for sector")
	ErrUnsupportedFATBits   = DiskoError("unsupported FAT bit width")
	ErrMalformedPSI         = DiskoError("malformed PSI chunk stream")
	ErrMalformedJSON        = DiskoError("malformed JSON disk image")
	ErrCorruptDirectoryTree = DiskoError("corrupt directory tree")
	ErrNotFound             = DiskoError("no such file or directory")
	ErrNotADirectory        = DiskoError("not a directory")
)
