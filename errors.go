package hibf

import "github.com/pkg/errors"

// Sentinel errors callers can test for with errors.Is.
var (
	// ErrVersionMismatch is returned by UnmarshalBinary when the stored
	// format version does not match the version this build writes.
	ErrVersionMismatch = errors.New("hibf: version mismatch")
	// ErrEmptyUserBin is returned by Build when InputFn produced no
	// hashes for some user bin, a construction invariant violation.
	ErrEmptyUserBin = errors.New("hibf: input_fn produced no hashes for a user bin")
)
