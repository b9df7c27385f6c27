//go:build linux || darwin

package preflight

import "syscall"

// diskFreeMB reports free space on the filesystem holding dir.
func diskFreeMB(dir string) (int, bool) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		return 0, false
	}
	free := uint64(st.Bavail) * uint64(st.Bsize) / (1 << 20)
	return int(free), true
}
