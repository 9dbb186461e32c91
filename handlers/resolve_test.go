package handlers

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", rel, err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return p
}

func TestResolveUnder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sub-001/figures/plot.svg", "<svg/>")

	cases := []struct {
		name    string
		rel     string
		wantErr error
	}{
		{"plain file", "sub-001/figures/plot.svg", nil},
		{"missing but inside", "sub-001/absent.html", nil},
		{"parent escape", "../escape.html", errTraversal},
		{"deep escape", "../../../../etc/passwd", errTraversal},
		{"dot segments inside", "sub-001/./figures/plot.svg", nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := resolveUnder(root, c.rel)
			if !errors.Is(err, c.wantErr) {
				t.Errorf("resolveUnder(%q) err = %v, want %v", c.rel, err, c.wantErr)
			}
		})
	}
}

func TestResolveUnderCollapsesDuplicateSubject(t *testing.T) {
	root := t.TempDir()
	want := writeFile(t, root, "sub-001/figures/plot.svg", "<svg/>")

	got, err := resolveUnder(root, "sub-001/sub-001/figures/plot.svg")
	if err != nil {
		t.Fatalf("resolveUnder: %v", err)
	}
	if resolved, err := filepath.EvalSymlinks(want); err == nil {
		want = resolved
	}
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveUnderSiblingPrefix(t *testing.T) {
	// /data/foo must never be accepted as inside /data/foobar.
	parent := t.TempDir()
	root := filepath.Join(parent, "data")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, parent, "data-extra/secret.txt", "x")

	_, err := resolveUnder(root, "../data-extra/secret.txt")
	if !errors.Is(err, errTraversal) {
		t.Errorf("sibling-prefix escape: err = %v, want errTraversal", err)
	}
}

func TestStatFile(t *testing.T) {
	root := t.TempDir()
	p := writeFile(t, root, "report.html", "<html></html>")

	if _, err := statFile(p); err != nil {
		t.Errorf("regular file: %v", err)
	}
	if _, err := statFile(root); !errors.Is(err, errNotFound) {
		t.Errorf("directory: err = %v, want errNotFound", err)
	}
	if _, err := statFile(filepath.Join(root, "absent")); !errors.Is(err, errNotFound) {
		t.Errorf("missing: err = %v, want errNotFound", err)
	}
}
