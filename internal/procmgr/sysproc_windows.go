//go:build windows

package procmgr

import (
	"os"
	"os/exec"
)

func setDetachedProcessAttrs(cmd *exec.Cmd) {}

func terminate(p *os.Process) error {
	return p.Kill()
}

// IsRunning reports whether a process with pid is alive.
func IsRunning(pid int) bool {
	_, err := os.FindProcess(pid)
	return err == nil
}
