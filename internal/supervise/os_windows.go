//go:build windows

package supervise

import (
	"os/exec"
	"syscall"
)

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

// Windows creation flags
const (
	CREATE_NEW_PROCESS_GROUP = 0x00000200
	DETACHED_PROCESS         = 0x00000008

	PROCESS_TERMINATE         = 0x0001
	PROCESS_QUERY_INFORMATION = 0x0400
)

// configureDetached creates the worker in its own process group without the
// parent's console, so it survives this invocation's exit.
func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: CREATE_NEW_PROCESS_GROUP | DETACHED_PROCESS,
	}
}

// terminateProcess has no graceful signal on Windows; it terminates directly.
func terminateProcess(pid int) error {
	return terminate(pid)
}

// killProcess terminates the worker process.
func killProcess(pid int) error {
	return terminate(pid)
}

func terminate(pid int) error {
	if pid <= 0 {
		return nil
	}
	handle, err := openProcess(PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		// If we can't open the process, it likely doesn't exist anymore.
		return nil
	}
	defer func() { _ = closeHandle(handle) }()
	ret, _, callErr := procTerminateProcess.Call(uintptr(handle), uintptr(1))
	if ret == 0 {
		return callErr
	}
	return nil
}

// workerGone reports that no process with pid exists.
func workerGone(pid int) bool {
	if pid <= 0 {
		return true
	}
	handle, err := openProcess(PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return true
	}
	_ = closeHandle(handle)
	return false
}

func openProcess(access uint32, inheritHandle bool, processID uint32) (syscall.Handle, error) {
	inherit := 0
	if inheritHandle {
		inherit = 1
	}
	ret, _, err := procOpenProcess.Call(
		uintptr(access),
		uintptr(inherit),
		uintptr(processID),
	)
	if ret == 0 {
		return 0, err
	}
	return syscall.Handle(ret), nil
}

func closeHandle(handle syscall.Handle) error {
	ret, _, err := procCloseHandle.Call(uintptr(handle))
	if ret == 0 {
		return err
	}
	return nil
}
