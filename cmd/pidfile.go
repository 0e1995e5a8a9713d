package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// daemonState is written next to the pid file so `daemon status` can find
// the API address of a daemon started with different flags.
type daemonState struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
	Provider  string    `json:"provider"`
	Window    string    `json:"window"`
}

// pidFile is the path of a daemon pid file. Its state lives at path+".json".
type pidFile string

func (p pidFile) statePath() string { return string(p) + ".json" }

// pid returns the recorded process ID.
func (p pidFile) pid() (int, error) {
	data, err := os.ReadFile(string(p)) //nolint:gosec // path comes from --pid-file
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s", p)
	}
	return pid, nil
}

// running returns the recorded pid when that process is still alive.
func (p pidFile) running() (int, bool) {
	pid, err := p.pid()
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}

// claim fails when a live daemon owns the file and clears a stale one.
func (p pidFile) claim() error {
	pid, err := p.pid()
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return err
	case processAlive(pid):
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}
	p.clear()
	return nil
}

func (p pidFile) write(st daemonState) error {
	if err := os.MkdirAll(filepath.Dir(string(p)), 0o750); err != nil {
		return fmt.Errorf("create daemon directory: %w", err)
	}
	if err := os.WriteFile(string(p), []byte(strconv.Itoa(st.PID)+"\n"), 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p.statePath(), append(data, '\n'), 0o600)
}

func (p pidFile) state() (daemonState, error) {
	var st daemonState
	data, err := os.ReadFile(p.statePath()) //nolint:gosec // path comes from --pid-file
	if err != nil {
		return st, err
	}
	err = json.Unmarshal(data, &st)
	return st, err
}

func (p pidFile) clear() {
	_ = os.Remove(string(p))
	_ = os.Remove(p.statePath())
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
