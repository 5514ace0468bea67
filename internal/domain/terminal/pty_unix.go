//go:build unix

package terminal

import "syscall"

// controllingTerminal makes the shell a session leader with the PTY slave
// (its stdin) as controlling terminal.
func controllingTerminal() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}
}
