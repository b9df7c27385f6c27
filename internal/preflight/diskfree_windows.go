//go:build windows

package preflight

import (
	"syscall"
	"unsafe"
)

var (
	kernel32            = syscall.NewLazyDLL("kernel32.dll")
	procGetDiskFreeSpcW = kernel32.NewProc("GetDiskFreeSpaceExW")
)

// diskFreeMB reports free space on the volume holding dir.
func diskFreeMB(dir string) (int, bool) {
	p, err := syscall.UTF16PtrFromString(dir)
	if err != nil {
		return 0, false
	}
	var freeBytes uint64
	r1, _, _ := procGetDiskFreeSpcW.Call(
		uintptr(unsafe.Pointer(p)),
		uintptr(unsafe.Pointer(&freeBytes)),
		0, 0,
	)
	if r1 == 0 {
		return 0, false
	}
	return int(freeBytes / (1 << 20)), true
}
