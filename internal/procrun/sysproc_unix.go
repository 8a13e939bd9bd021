//go:build !windows

package procrun

import (
	"os/exec"
	"syscall"
)

// setProcessGroup keeps terminal signals aimed at deck away from the child.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
