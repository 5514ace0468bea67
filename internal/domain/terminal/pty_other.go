//go:build !unix

package terminal

import "syscall"

func controllingTerminal() *syscall.SysProcAttr {
	return nil
}
