//go:build windows

package procrun

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
