package provision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/loykin/botsup/internal/config"
)

// ErrProvisionFailed is fatal for the whole invocation.
var ErrProvisionFailed = errors.New("environment provisioning failed")

// A downloaded font smaller than this is an error page, not a font.
const minFontBytes = 4096

const stampName = ".requirements.stamp"

// Provisioner ensures the isolated worker runtime: a virtualenv with the
// dependency manifest installed, plus the font asset the worker renders with.
// Every operation is idempotent.
type Provisioner struct {
	s    config.Settings
	log  *slog.Logger
	http *http.Client
}

func New(s config.Settings, log *slog.Logger) *Provisioner {
	return &Provisioner{s: s, log: log, http: &http.Client{Timeout: 60 * time.Second}}
}

// Ready reports whether the virtualenv exists with a usable interpreter.
func (p *Provisioner) Ready() bool {
	st, err := os.Stat(p.s.VenvPython())
	return err == nil && st.Mode()&0o111 != 0
}

// Ensure creates the virtualenv when absent and installs the dependency
// manifest when it changed since the last install. Safe to call when already
// satisfied.
func (p *Provisioner) Ensure(ctx context.Context) error {
	if !p.Ready() {
		p.log.Info("creating virtualenv", "dir", p.s.VenvDir, "python", p.s.Python)
		cmd := exec.CommandContext(ctx, p.s.Python, "-m", "venv", p.s.VenvDir)
		if out, err := runCapture(cmd); err != nil {
			return fmt.Errorf("%w: venv: %v: %s", ErrProvisionFailed, err, out)
		}
	}
	reqs := p.s.RequirementsPath()
	if _, err := os.Stat(reqs); err != nil {
		p.log.Warn("dependency manifest missing, skipping install", "path", reqs)
		return nil
	}
	if !p.manifestStale(reqs) {
		return nil
	}
	p.log.Info("installing worker dependencies", "manifest", reqs)
	cmd := exec.CommandContext(ctx, p.s.VenvPip(), "install", "-r", reqs)
	if out, err := runCapture(cmd); err != nil {
		return fmt.Errorf("%w: pip install: %v: %s", ErrProvisionFailed, err, tail(out))
	}
	if err := p.touchStamp(); err != nil {
		return fmt.Errorf("%w: %v", ErrProvisionFailed, err)
	}
	return nil
}

// EnsureFont fetches the watermark font into the working copy when missing.
func (p *Provisioner) EnsureFont(ctx context.Context) error {
	if _, err := os.Stat(p.s.FontFile); err == nil {
		return nil
	}
	p.log.Info("fetching font asset", "url", p.s.FontURL, "path", p.s.FontFile)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.s.FontURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvisionFailed, err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: fetch font: %v", ErrProvisionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: fetch font: unexpected status %s", ErrProvisionFailed, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: fetch font: %v", ErrProvisionFailed, err)
	}
	if len(body) < minFontBytes {
		return fmt.Errorf("%w: fetched font is %d bytes, refusing to install it", ErrProvisionFailed, len(body))
	}
	if err := os.MkdirAll(filepath.Dir(p.s.FontFile), 0o750); err != nil {
		return fmt.Errorf("%w: %v", ErrProvisionFailed, err)
	}
	tmp := p.s.FontFile + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrProvisionFailed, err)
	}
	if err := os.Rename(tmp, p.s.FontFile); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrProvisionFailed, err)
	}
	return nil
}

// FontPresent reports whether the font asset exists, for status.
func (p *Provisioner) FontPresent() bool {
	_, err := os.Stat(p.s.FontFile)
	return err == nil
}

// Remove deletes the virtualenv. Used by the reinstall flow.
func (p *Provisioner) Remove() error {
	if err := os.RemoveAll(p.s.VenvDir); err != nil {
		return fmt.Errorf("%w: %v", ErrProvisionFailed, err)
	}
	return nil
}

// manifestStale compares the manifest against the install stamp.
func (p *Provisioner) manifestStale(reqs string) bool {
	reqInfo, err := os.Stat(reqs)
	if err != nil {
		return false
	}
	stamp, err := os.Stat(p.stampPath())
	if err != nil {
		return true
	}
	return reqInfo.ModTime().After(stamp.ModTime())
}

func (p *Provisioner) touchStamp() error {
	return os.WriteFile(p.stampPath(), []byte(time.Now().Format(time.RFC3339)+"\n"), 0o644)
}

func (p *Provisioner) stampPath() string {
	return filepath.Join(p.s.VenvDir, stampName)
}

func runCapture(cmd *exec.Cmd) (string, error) {
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}

// tail keeps error output readable when pip dumps pages of text.
func tail(s string) string {
	const max = 2048
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
