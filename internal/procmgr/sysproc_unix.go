//go:build !windows

package procmgr

import (
	"os"
	"os/exec"
	"syscall"
)

// setDetachedProcessAttrs starts the bridge in its own process group so it
// outlives the terminal that launched it.
func setDetachedProcessAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}

// IsRunning reports whether a process with pid is alive.
func IsRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes existence.
	return proc.Signal(syscall.Signal(0)) == nil
}
