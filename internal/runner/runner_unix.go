//go:build !windows

package runner

import "syscall"

// detachedSysProcAttr starts the child in its own session so it survives
// the daemon and never receives the daemon's terminal signals.
func detachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid: true,
	}
}
