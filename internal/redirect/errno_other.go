//go:build !unix

package redirect

import "syscall"

// Errno has no errno table to map to on this platform and returns 0.
func Errno(error) syscall.Errno { return 0 }
