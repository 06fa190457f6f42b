//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// detachProcess puts the server in its own session so closing the terminal does not stop it
func detachProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
