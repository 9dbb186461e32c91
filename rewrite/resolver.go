// Package rewrite repairs the internal links of MRIQC HTML reports.
//
// MRIQC's report generator emits relative URLs that frequently do not resolve
// once the reports are served from a different directory layout: duplicated
// subject directories (sub-001/sub-001/figures/...), over-deep parent
// references, and scheme separators missing a slash. The resolver maps each
// candidate URL onto a real file confined to the data root; the rewriter then
// replaces the attribute with a canonical /mriqc_files/ URL.
package rewrite

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// PublicPrefix is the URL prefix under which resolved report files are served.
const PublicPrefix = "/mriqc_files/"

var (
	// ErrUnresolvable means no on-disk file matches the URL, even after the
	// subject/figures fallback. The caller should leave the link untouched.
	ErrUnresolvable = errors.New("rewrite: link target not found")
	// ErrOutsideRoot means the resolved path escapes the data root.
	ErrOutsideRoot = errors.New("rewrite: path escapes data root")
)

// externalPrefixes mark URLs the rewriter must never touch.
var externalPrefixes = []string{
	"http://", "https://", "data:", "mailto:", "javascript:", "#",
}

// schemeMissingSlashRe matches http:/ or https:/ followed by a non-slash,
// i.e. a scheme separator that lost one of its slashes.
var schemeMissingSlashRe = regexp.MustCompile(`^(https?:)/([^/])`)

// parentRunRe matches a run of one or more ../ segments. The whole run is
// replaced by a single ../ in one substitution pass; the replacement is
// deliberately not iterated to a fixed point.
var parentRunRe = regexp.MustCompile(`(?:\.\./)+`)

// badPrefixRules are applied in order to the known malformed relative
// prefixes MRIQC emits. Each rewrites the prefix to the literal
// "sub-001/figures/" regardless of the subject the link names; reports for
// other subjects have always been redirected this way and the behavior is
// kept for compatibility.
var badPrefixRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`^\./sub-[^/]+/(?:\.\./)+sub-[^/]+/figures/`), "sub-001/figures/"},
	{regexp.MustCompile(`^(?:\.\./)+sub-[^/]+/figures/`), "sub-001/figures/"},
	{regexp.MustCompile(`^(?:\./)?sub-[^/]+/figures/`), "sub-001/figures/"},
}

// Resolver maps candidate report URLs onto files confined to a data root.
// It is stateless beyond the configured root and safe for concurrent use.
type Resolver struct {
	dataRoot string
}

// NewResolver returns a Resolver confined to dataRoot.
// dataRoot must name an existing directory.
func NewResolver(dataRoot string) (*Resolver, error) {
	abs, err := filepath.Abs(dataRoot)
	if err != nil {
		return nil, fmt.Errorf("data root %q: %w", dataRoot, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("data root %q: %w", dataRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data root %q is not a directory", dataRoot)
	}
	return &Resolver{dataRoot: filepath.Clean(abs)}, nil
}

// DataRoot returns the absolute confinement directory.
func (r *Resolver) DataRoot() string { return r.dataRoot }

// Resolution is the outcome of resolving a single attribute URL.
type Resolution struct {
	// External is true for URLs the rewriter must not resolve (absolute
	// schemes, data:/mailto:/javascript: URIs, fragment anchors). URL then
	// holds the — possibly scheme-repaired — value to emit.
	External bool
	URL      string

	// Rel is the resolved path relative to the data root, forward-slash
	// separated. Only set when External is false.
	Rel string
}

// IsExternal reports whether a URL must be left untouched by the rewriter.
func IsExternal(url string) bool {
	u := strings.ToLower(strings.TrimSpace(url))
	for _, p := range externalPrefixes {
		if strings.HasPrefix(u, p) {
			return true
		}
	}
	return false
}

// RepairMalformedScheme restores the second slash in http:/host and
// https:/host URLs. Well-formed URLs pass through unchanged.
func RepairMalformedScheme(url string) string {
	return schemeMissingSlashRe.ReplaceAllString(url, "$1//$2")
}

// CollapseKnownBadPrefixes rewrites the malformed relative prefixes MRIQC is
// known to emit to the canonical "sub-001/figures/" form. Rules apply in
// order; the subject token in the replacement is intentionally literal.
func CollapseKnownBadPrefixes(url string) string {
	for _, rule := range badPrefixRules {
		url = rule.re.ReplaceAllString(url, rule.repl)
	}
	return url
}

// CollapseParentRefs replaces each run of ../ segments with a single ../ in
// one substitution pass.
func CollapseParentRefs(url string) string {
	return parentRunRe.ReplaceAllString(url, "../")
}

// NormalizeDuplicateSubjectSegments removes the first adjacent pair of
// identical segments whose first member starts with "sub-". Scanning stops at
// the first match: a triple duplicate loses exactly one segment.
func NormalizeDuplicateSubjectSegments(segments []string) []string {
	for i := 0; i+1 < len(segments); i++ {
		if strings.HasPrefix(segments[i], "sub-") && segments[i] == segments[i+1] {
			out := make([]string, 0, len(segments)-1)
			out = append(out, segments[:i+1]...)
			out = append(out, segments[i+2:]...)
			return out
		}
	}
	return segments
}

// CollapseDuplicateSubjectPath applies NormalizeDuplicateSubjectSegments to a
// slash-separated path string.
func CollapseDuplicateSubjectPath(p string) string {
	sep := string(filepath.Separator)
	return strings.Join(NormalizeDuplicateSubjectSegments(strings.Split(p, sep)), sep)
}

// Resolve maps a raw attribute URL found in an HTML file whose directory is
// htmlDir onto a file under the data root.
//
// External URLs are passed through (with the scheme repaired when malformed).
// Relative URLs go through prefix collapse, parent-ref collapse, and
// duplicate-subject normalization before the existence check. When the naive
// resolution misses, a fallback looks for a file with the same base name
// under the figures directory of the report's own subject.
func (r *Resolver) Resolve(rawURL, htmlDir string) (Resolution, error) {
	u := strings.TrimSpace(rawURL)
	if IsExternal(u) {
		return Resolution{External: true, URL: rawURL}, nil
	}

	u = RepairMalformedScheme(u)
	if IsExternal(u) {
		return Resolution{External: true, URL: u}, nil
	}

	// Links already in canonical /mriqc_files/ form resolve against the data
	// root directly and skip the malformed-prefix collapse, so rewriting a
	// rewritten document is a no-op.
	canonical := false
	if rest, ok := strings.CutPrefix(u, PublicPrefix); ok {
		u = rest
		htmlDir = r.dataRoot
		canonical = true
	}

	if !canonical {
		u = CollapseKnownBadPrefixes(u)
		u = CollapseParentRefs(u)
	}

	abs := filepath.Clean(filepath.Join(htmlDir, filepath.FromSlash(u)))
	abs = CollapseDuplicateSubjectPath(abs)

	outside := false
	rel, ok := r.relativeTo(abs)
	if ok {
		if fileExists(abs) {
			return Resolution{Rel: rel}, nil
		}
	} else {
		outside = true
	}

	// Fallback: same base name under the report's own subject figures dir.
	sub := r.subjectFor(htmlDir)
	cand := filepath.Join(r.dataRoot, sub, "figures", path.Base(u))
	if fileExists(cand) {
		return Resolution{Rel: sub + "/figures/" + path.Base(u)}, nil
	}

	if outside {
		return Resolution{}, ErrOutsideRoot
	}
	return Resolution{}, ErrUnresolvable
}

// relativeTo returns abs relative to the data root (forward slashes) and
// whether abs is the root itself or a descendant of it. Descent is decided
// with filepath.Rel, never a string-prefix comparison.
func (r *Resolver) relativeTo(abs string) (string, bool) {
	rel, err := filepath.Rel(r.dataRoot, abs)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// subjectFor returns the first "sub-" segment of htmlDir relative to the data
// root, defaulting to sub-001 when the directory names no subject.
func (r *Resolver) subjectFor(htmlDir string) string {
	rel, ok := r.relativeTo(filepath.Clean(htmlDir))
	if ok {
		for _, seg := range strings.Split(rel, "/") {
			if strings.HasPrefix(seg, "sub-") {
				return seg
			}
		}
	}
	return "sub-001"
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
