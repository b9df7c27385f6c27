package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// TailLines writes the last n lines of the file at path to w. The worker may
// be appending while we read; a torn final line is acceptable for log
// inspection.
func TailLines(path string, n int, w io.Writer) error {
	if n <= 0 {
		return fmt.Errorf("line count must be positive, got %d", n)
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("worker log not found at %s (has the worker ever started?)", path)
		}
		return fmt.Errorf("open worker log: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	ring := make([]string, n)
	count := 0
	for scanner.Scan() {
		ring[count%n] = scanner.Text()
		count++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read worker log: %w", err)
	}

	start := 0
	lines := count
	if count > n {
		start = count % n
		lines = n
	}
	for i := 0; i < lines; i++ {
		fmt.Fprintln(w, ring[(start+i)%n])
	}
	return nil
}
