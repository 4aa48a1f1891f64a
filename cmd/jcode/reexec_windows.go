//go:build windows

package main

import (
	"os"
	"os/exec"
)

// reexecSelf spawns a replacement process and exits this one, since
// Windows has no equivalent of exec(2) that preserves the PID. This is
// the "otherwise spawn-replace" fallback named in §4.7.
func reexecSelf() error {
	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	os.Exit(0)
	return nil
}
