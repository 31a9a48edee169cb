//go:build !unix

package file

import "os"

// Advisory locking is a no-op where flock is unavailable.
func tryLock(_ *os.File) error { return nil }

func unlock(_ *os.File) error { return nil }
