//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package csvfile

import "os"

// Advisory locking is unavailable; only in-process serialization applies.
func lock(*os.File) error   { return nil }
func unlock(*os.File) error { return nil }
