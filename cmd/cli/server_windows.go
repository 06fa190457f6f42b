//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// detachProcess starts the server in a new process group without a console window
func detachProcess(cmd *exec.Cmd) {
	const createNoWindow = 0x08000000
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | createNoWindow,
	}
}
