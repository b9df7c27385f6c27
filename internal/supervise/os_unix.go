//go:build !windows

package supervise

import (
	"bytes"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"syscall"
)

// configureDetached starts the worker in a new session (setsid) so it is
// detached from the controlling terminal and survives this invocation's exit.
// A new session implies a new process group, which stop signaling relies on.
func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// terminateProcess sends SIGTERM to the worker's process group.
func terminateProcess(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// killProcess sends SIGKILL to the worker's process group.
func killProcess(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// workerGone reports that no live worker remains for pid: the process either
// left the table or is a zombie awaiting reaping.
func workerGone(pid int) bool {
	if pid <= 0 {
		return true
	}
	if runtime.GOOS == "linux" {
		if isZombieLinux(pid) {
			return true
		}
		return syscall.Kill(pid, 0) != nil
	}
	// Non-Linux: probe the process group to catch quick exits.
	return syscall.Kill(-pid, 0) != nil
}

// isZombieLinux returns true if /proc/<pid>/status reports a zombie state (Z) on Linux.
func isZombieLinux(pid int) bool {
	path := "/proc/" + strconv.Itoa(pid) + "/status"
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
