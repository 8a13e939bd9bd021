// Package procmgr runs the deck bridge in the background: starting it
// detached, tracking its PID, and stopping it again.
package procmgr

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// PidFileName is the bridge's PID file inside the data directory.
const PidFileName = "bridge.json"

// LogFileName is the bridge's log file inside the data directory.
const LogFileName = "bridge.log"

// PidEntry tracks a running bridge process.
type PidEntry struct {
	PID     int       `json:"pid"`
	Addr    string    `json:"addr"`
	Started time.Time `json:"started"`
}

// LoadPid reads the PID file in dir. ok is false when there is none.
func LoadPid(dir string) (entry PidEntry, ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(dir, PidFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return PidEntry{}, false, nil
		}
		return PidEntry{}, false, err
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return PidEntry{}, false, fmt.Errorf("parsing %s: %w", PidFileName, err)
	}
	return entry, true, nil
}

// SavePid writes the PID file in dir.
func SavePid(dir string, entry PidEntry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, PidFileName), data, 0o644)
}

// RemovePid deletes the PID file in dir.
func RemovePid(dir string) {
	os.Remove(filepath.Join(dir, PidFileName))
}

// Start launches binary with args as a background process whose output goes
// to logPath. It returns the PID.
func Start(binary string, args []string, logPath string) (int, error) {
	info, err := os.Stat(binary)
	if err != nil {
		return 0, fmt.Errorf("binary not found: %s", binary)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("binary path is a directory: %s", binary)
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return 0, fmt.Errorf("creating log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("creating log file: %w", err)
	}

	cmd := exec.Command(binary, args...)
	cmd.Env = os.Environ()
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	setDetachedProcessAttrs(cmd)

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return 0, fmt.Errorf("starting %s: %w", filepath.Base(binary), err)
	}

	go func() {
		cmd.Wait()
		logFile.Close()
	}()

	return cmd.Process.Pid, nil
}

// Stop asks the process to exit and waits up to grace before killing it.
func Stop(pid int, grace time.Duration) error {
	if !IsRunning(pid) {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := terminate(proc); err != nil {
		return nil // already gone
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !IsRunning(pid) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing pid %d: %w", pid, err)
	}
	return nil
}
