package dedup

import (
	"github.com/cockroachdb/errors"

	"github.com/MimeLyc/jobrelay/internal/persistence"
)

// ErrFatalState marks failures after which the in-memory dedup state can no
// longer be trusted to match disk.
var ErrFatalState = errors.New("dedup state is unverified")

// IsFatal reports whether err must terminate the process.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalState)
}

func markIfFatal(err error) error {
	if err == nil || !errors.Is(err, persistence.ErrVerification) {
		return err
	}
	err = errors.Mark(err, ErrFatalState)
	return errors.WithHint(err,
		"the active store file no longer matches memory; stop the pipeline and inspect the store directory before the next run")
}
