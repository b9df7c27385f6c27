package env

import (
	"slices"
	"strings"
	"testing"
)

func lookup(pairs []string, key string) (string, bool) {
	for _, kv := range pairs {
		if v, ok := strings.CutPrefix(kv, key+"="); ok {
			return v, true
		}
	}
	return "", false
}

func TestEnvironOverridesHost(t *testing.T) {
	t.Setenv("BOTSUP_ENV_TEST", "host")
	b := New()
	b.Set("BOTSUP_ENV_TEST", "override")
	v, ok := lookup(b.Environ(), "BOTSUP_ENV_TEST")
	if !ok || v != "override" {
		t.Fatalf("override lost: %q %v", v, ok)
	}
}

func TestEnvironInheritsHost(t *testing.T) {
	t.Setenv("BOTSUP_ENV_INHERIT", "kept")
	v, ok := lookup(New().Environ(), "BOTSUP_ENV_INHERIT")
	if !ok || v != "kept" {
		t.Fatalf("host variable dropped: %q %v", v, ok)
	}
}

func TestEnvironExpandsReferences(t *testing.T) {
	t.Setenv("BOTSUP_ENV_BASE", "/opt/bot")
	b := New()
	b.Set("BOTSUP_ENV_CACHE", "${BOTSUP_ENV_BASE}/cache")
	v, _ := lookup(b.Environ(), "BOTSUP_ENV_CACHE")
	if v != "/opt/bot/cache" {
		t.Fatalf("expansion: %q", v)
	}
}

func TestEnvironExpansionIsSinglePass(t *testing.T) {
	b := New()
	b.Set("BOTSUP_ENV_A", "literal")
	b.Set("BOTSUP_ENV_B", "${BOTSUP_ENV_C}")
	b.Set("BOTSUP_ENV_C", "${BOTSUP_ENV_A}")
	out := b.Environ()
	// B sees C's raw value, not C's expansion.
	if v, _ := lookup(out, "BOTSUP_ENV_B"); v != "${BOTSUP_ENV_A}" {
		t.Fatalf("B expanded twice: %q", v)
	}
	if v, _ := lookup(out, "BOTSUP_ENV_C"); v != "literal" {
		t.Fatalf("C: %q", v)
	}
}

func TestEnvironUnknownReferenceVerbatim(t *testing.T) {
	b := New()
	b.Set("BOTSUP_ENV_X", "${NO_SUCH_VARIABLE_EVER}/x")
	v, _ := lookup(b.Environ(), "BOTSUP_ENV_X")
	if v != "${NO_SUCH_VARIABLE_EVER}/x" {
		t.Fatalf("unknown reference rewritten: %q", v)
	}
}

func TestSetPairs(t *testing.T) {
	b := New()
	b.SetPairs([]string{"BOTSUP_ENV_P=1", "malformed", "=nokey", "BOTSUP_ENV_P=2"})
	v, ok := lookup(b.Environ(), "BOTSUP_ENV_P")
	if !ok || v != "2" {
		t.Fatalf("last pair should win: %q %v", v, ok)
	}
	if _, ok := lookup(b.Environ(), "malformed"); ok {
		t.Fatalf("malformed entry kept")
	}
}

func TestEnvironSortedAndWellFormed(t *testing.T) {
	b := New()
	b.Set("BOTSUP_ENV_Z", "1")
	b.Set("BOTSUP_ENV_A", "2")
	b.Set("", "dropped")
	out := b.Environ()
	if !slices.IsSorted(out) {
		t.Fatalf("not sorted")
	}
	for _, kv := range out {
		if !strings.Contains(kv, "=") || strings.HasPrefix(kv, "=") {
			t.Fatalf("bad pair: %q", kv)
		}
	}
}

// FuzzEnviron feeds arbitrary override sets through the merge and checks the
// shape invariants hold regardless of input.
func FuzzEnviron(f *testing.F) {
	f.Add([]byte("A=1\nB=${A}-x"))
	f.Add([]byte("FOO=${FOO}"))
	f.Add([]byte("X=${Y\nY=${"))

	f.Fuzz(func(t *testing.T, raw []byte) {
		lines := strings.Split(string(raw), "\n")
		if len(lines) > 20 {
			lines = lines[:20]
		}
		b := New()
		b.SetPairs(lines)
		out := b.Environ()
		if !slices.IsSorted(out) {
			t.Fatalf("not sorted")
		}
		for _, kv := range out {
			if !strings.Contains(kv, "=") {
				t.Fatalf("bad pair: %q", kv)
			}
			if strings.HasPrefix(kv, "=") {
				t.Fatalf("empty key: %q", kv)
			}
		}
	})
}
