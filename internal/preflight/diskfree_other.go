//go:build !linux && !darwin && !windows

package preflight

func diskFreeMB(string) (int, bool) {
	return 0, false
}
