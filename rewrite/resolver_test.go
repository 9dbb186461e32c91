package rewrite

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// newTestRoot builds a data root with the given relative files present.
func newTestRoot(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", p, err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	return root
}

func newTestResolver(t *testing.T, root string) *Resolver {
	t.Helper()
	r, err := NewResolver(root)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func TestIsExternal(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"http://example.com/a", true},
		{"https://example.com/a", true},
		{"  HTTPS://EXAMPLE.COM/a", true},
		{"data:image/png;base64,AAAA", true},
		{"mailto:qc@example.org", true},
		{"javascript:void(0)", true},
		{"#ratings", true},
		{"sub-001/figures/plot.svg", false},
		{"../sub-001/figures/plot.svg", false},
		{"/mriqc_files/sub-001/figures/plot.svg", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsExternal(c.url); got != c.want {
			t.Errorf("IsExternal(%q) = %v, want %v", c.url, got, c.want)
		}
	}
}

func TestRepairMalformedScheme(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https:/example.com/x", "https://example.com/x"},
		{"http:/example.com/x", "http://example.com/x"},
		{"https://example.com/x", "https://example.com/x"},
		{"http://example.com/x", "http://example.com/x"},
		{"sub-001/figures/plot.svg", "sub-001/figures/plot.svg"},
	}
	for _, c := range cases {
		if got := RepairMalformedScheme(c.in); got != c.want {
			t.Errorf("RepairMalformedScheme(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCollapseParentRefs(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"../../sub-001/figures/a.svg", "../sub-001/figures/a.svg"},
		{"../../../a.svg", "../a.svg"},
		{"../a.svg", "../a.svg"},
		{"a/../../b", "a/../b"},
	}
	for _, c := range cases {
		if got := CollapseParentRefs(c.in); got != c.want {
			t.Errorf("CollapseParentRefs(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCollapseKnownBadPrefixes(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		// All malformed prefixes canonicalize to the literal sub-001 token,
		// whichever subject the link names.
		{"./sub-003/../../sub-003/figures/a.svg", "sub-001/figures/a.svg"},
		{"../sub-014/figures/a.svg", "sub-001/figures/a.svg"},
		{"sub-007/figures/a.svg", "sub-001/figures/a.svg"},
		{"./sub-007/figures/a.svg", "sub-001/figures/a.svg"},
		{"anat/sub-007_T1w.html", "anat/sub-007_T1w.html"},
	}
	for _, c := range cases {
		if got := CollapseKnownBadPrefixes(c.in); got != c.want {
			t.Errorf("CollapseKnownBadPrefixes(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeDuplicateSubjectSegments(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{
			"adjacent pair collapsed",
			[]string{"data", "sub-007", "sub-007", "figures", "a.svg"},
			[]string{"data", "sub-007", "figures", "a.svg"},
		},
		{
			"non-subject duplicates kept",
			[]string{"data", "figures", "figures", "a.svg"},
			[]string{"data", "figures", "figures", "a.svg"},
		},
		{
			"non-adjacent duplicates kept",
			[]string{"sub-007", "figures", "sub-007", "a.svg"},
			[]string{"sub-007", "figures", "sub-007", "a.svg"},
		},
		{
			// Single-pass policy: a triple duplicate loses exactly one
			// segment, not two.
			"triple duplicate loses one",
			[]string{"sub-007", "sub-007", "sub-007", "a.svg"},
			[]string{"sub-007", "sub-007", "a.svg"},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := NormalizeDuplicateSubjectSegments(c.in); !reflect.DeepEqual(got, c.want) {
				t.Errorf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestResolveRelativeLink(t *testing.T) {
	root := newTestRoot(t, "sub-001/report.html", "sub-001/figures/plot.svg")
	r := newTestResolver(t, root)

	resn, err := r.Resolve("../sub-001/figures/plot.svg", filepath.Join(root, "sub-001"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resn.External {
		t.Fatal("expected internal resolution")
	}
	if resn.Rel != "sub-001/figures/plot.svg" {
		t.Errorf("Rel = %q, want %q", resn.Rel, "sub-001/figures/plot.svg")
	}
}

func TestResolveExternalPassthrough(t *testing.T) {
	root := newTestRoot(t)
	r := newTestResolver(t, root)

	resn, err := r.Resolve("https://bids.neuroimaging.io/", root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !resn.External || resn.URL != "https://bids.neuroimaging.io/" {
		t.Errorf("got %+v, want unchanged external", resn)
	}
}

func TestResolveSchemeRepairStaysExternal(t *testing.T) {
	root := newTestRoot(t)
	r := newTestResolver(t, root)

	resn, err := r.Resolve("https:/example.com/x", root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !resn.External || resn.URL != "https://example.com/x" {
		t.Errorf("got %+v, want repaired external", resn)
	}
}

func TestResolveSubjectFiguresFallback(t *testing.T) {
	// The naive resolution misses (the link points at a directory layout
	// that does not exist) but the base name is present under the report's
	// own subject figures dir.
	root := newTestRoot(t, "sub-014/report.html", "sub-014/figures/carpet.svg")
	r := newTestResolver(t, root)

	resn, err := r.Resolve("anat/carpet.svg", filepath.Join(root, "sub-014"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resn.Rel != "sub-014/figures/carpet.svg" {
		t.Errorf("Rel = %q, want %q", resn.Rel, "sub-014/figures/carpet.svg")
	}
}

func TestResolveFallbackDefaultsToSub001(t *testing.T) {
	root := newTestRoot(t, "sub-001/figures/plot.svg")
	r := newTestResolver(t, root)

	// The HTML file lives directly under the root, naming no subject.
	resn, err := r.Resolve("missing/plot.svg", root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resn.Rel != "sub-001/figures/plot.svg" {
		t.Errorf("Rel = %q, want %q", resn.Rel, "sub-001/figures/plot.svg")
	}
}

func TestResolveUnresolvable(t *testing.T) {
	root := newTestRoot(t, "sub-001/report.html")
	r := newTestResolver(t, root)

	_, err := r.Resolve("../sub-001/figures/plot.svg", filepath.Join(root, "sub-001"))
	if !errors.Is(err, ErrUnresolvable) {
		t.Errorf("err = %v, want ErrUnresolvable", err)
	}
}

func TestResolveConfinement(t *testing.T) {
	root := newTestRoot(t, "sub-001/report.html")
	r := newTestResolver(t, root)

	// Whatever the input, Resolve never yields a path outside the root.
	for _, url := range []string{
		"../../../../etc/passwd",
		"../../etc/passwd",
		"/etc/passwd",
	} {
		resn, err := r.Resolve(url, filepath.Join(root, "sub-001"))
		if err == nil {
			t.Errorf("Resolve(%q) resolved to %q, want error", url, resn.Rel)
		}
	}
}

func TestResolveCanonicalIsStable(t *testing.T) {
	root := newTestRoot(t, "sub-002/figures/x.svg")
	r := newTestResolver(t, root)

	// Already-canonical links keep their own subject; the known-bad-prefix
	// collapse must not redirect them to sub-001.
	resn, err := r.Resolve("/mriqc_files/sub-002/figures/x.svg", filepath.Join(root, "sub-002"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resn.Rel != "sub-002/figures/x.svg" {
		t.Errorf("Rel = %q, want %q", resn.Rel, "sub-002/figures/x.svg")
	}
}

func TestResolveOutsideRoot(t *testing.T) {
	root := newTestRoot(t, "sub-001/report.html")
	r := newTestResolver(t, root)

	// A single parent ref from the root itself escapes the boundary and the
	// fallback has nothing to offer.
	_, err := r.Resolve("../escape.html", root)
	if !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("err = %v, want ErrOutsideRoot", err)
	}
}

func TestNewResolverRejectsMissingRoot(t *testing.T) {
	if _, err := NewResolver(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("expected error for missing data root")
	}
}
