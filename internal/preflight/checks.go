// Package preflight validates the host before any supervision work starts.
package preflight

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrDependencyMissing is returned when a required host dependency fails its
// probe. It is fatal for the whole invocation.
var ErrDependencyMissing = errors.New("required dependency missing")

// Disk below this is a warning: a clone plus a provisioned virtualenv of a
// typical bot repo lands in the low hundreds of megabytes.
const minDiskMB = 500

// Check represents the result of a single preflight probe.
type Check struct {
	Name    string // Name of the probe
	Passed  bool   // Whether the probe passed
	Warning bool   // True if it's a warning (non-fatal)
	Message string // Additional context
}

// Result holds the results of all preflight probes.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Err converts a failed result into an error listing the failed probes.
func (r *Result) Err() error {
	if r.Passed {
		return nil
	}
	var failed []string
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c.Name)
		}
	}
	return fmt.Errorf("%w: %s", ErrDependencyMissing, strings.Join(failed, ", "))
}

// RunAll executes all preflight probes. python is the interpreter used to
// create the virtualenv, baseDir is the supervision state directory.
func RunAll(python, baseDir string) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}

	gitCheck := checkTool("git", "git", "--version")
	result.Checks = append(result.Checks, gitCheck)
	if !gitCheck.Passed {
		result.Passed = false
	}

	pyCheck := checkTool("python", python, "--version")
	result.Checks = append(result.Checks, pyCheck)
	if !pyCheck.Passed {
		result.Passed = false
	}

	dirCheck := checkBaseDir(baseDir)
	result.Checks = append(result.Checks, dirCheck)
	if !dirCheck.Passed {
		result.Passed = false
	}

	// Disk space check (warning only)
	result.Checks = append(result.Checks, checkDiskSpace(baseDir))

	return result
}

// checkTool verifies an external binary runs and extracts its version.
func checkTool(name, path string, arg string) Check {
	if path == "" {
		return Check{
			Name:    name,
			Passed:  false,
			Message: "no binary configured",
		}
	}
	cmd := exec.Command(path, arg)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}
	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("found at %s (%s)", path, toolVersion(output)),
	}
}

// toolVersion extracts a version token from "git version 2.43.0" or
// "Python 3.11.2" style banners.
func toolVersion(output []byte) string {
	line := strings.SplitN(strings.TrimSpace(string(output)), "\n", 2)[0]
	fields := strings.Fields(line)
	for _, f := range fields {
		if len(f) > 0 && f[0] >= '0' && f[0] <= '9' {
			return "version " + f
		}
	}
	if line == "" {
		return "version unknown"
	}
	return line
}

// checkBaseDir verifies the state directory exists and is writable.
func checkBaseDir(dir string) Check {
	if dir == "" {
		return Check{
			Name:    "base_dir",
			Passed:  false,
			Message: "no directory configured",
		}
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Check{
			Name:    "base_dir",
			Passed:  false,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}
	probe := filepath.Join(dir, ".preflight")
	if err := os.WriteFile(probe, []byte("ok\n"), 0o600); err != nil {
		return Check{
			Name:    "base_dir",
			Passed:  false,
			Message: fmt.Sprintf("not writable: %v", err),
		}
	}
	_ = os.Remove(probe)
	return Check{
		Name:    "base_dir",
		Passed:  true,
		Message: fmt.Sprintf("%s is writable", dir),
	}
}

// checkDiskSpace warns when the state directory's filesystem is low.
func checkDiskSpace(dir string) Check {
	freeMB, ok := diskFreeMB(dir)
	if !ok {
		return Check{
			Name:    "disk_space",
			Passed:  true,
			Warning: true,
			Message: "unable to check (unsupported platform)",
		}
	}
	return Check{
		Name:    "disk_space",
		Passed:  true, // Don't fail on this
		Warning: freeMB < minDiskMB,
		Message: fmt.Sprintf("%d MB free (recommend %d MB)", freeMB, minDiskMB),
	}
}

// PrintResults prints the preflight results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed probe.
func suggestFix(name string) string {
	switch name {
	case "git":
		return "install git (apt install git / brew install git)"
	case "python":
		return "install python3 with the venv module (apt install python3-venv)"
	case "base_dir":
		return "create the directory or point --dir at a writable location"
	default:
		return "see documentation"
	}
}
