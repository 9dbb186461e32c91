package rewrite

import (
	"log"
	"path/filepath"
	"regexp"
	"strings"
)

// attrRe matches src/href/data attribute assignments with single- or
// double-quoted values. Attribute names match case-insensitively.
var attrRe = regexp.MustCompile(`(?i)\b(src|href|data)\s*=\s*("[^"]*"|'[^']*')`)

// dupSubjectPairRe finds adjacent subject path segments anywhere in text;
// the rewriter collapses the pair when both segments are identical.
var dupSubjectPairRe = regexp.MustCompile(`(sub-[A-Za-z0-9]+)/(sub-[A-Za-z0-9]+)/`)

// Rewriter rewrites the internal links of an HTML report to canonical
// /mriqc_files/ URLs. Unresolvable and external links are left byte-for-byte
// unchanged; unresolvable ones are additionally logged.
type Rewriter struct {
	res *Resolver
}

// NewRewriter returns a Rewriter backed by res.
func NewRewriter(res *Resolver) *Rewriter {
	return &Rewriter{res: res}
}

// Rewrite returns a copy of doc in which every resolvable src/href/data
// attribute has been replaced by its canonical public URL. htmlPath is the
// on-disk path of the document itself; relative links resolve against its
// directory.
func (rw *Rewriter) Rewrite(doc, htmlPath string) string {
	dir := filepath.Dir(htmlPath)

	out := attrRe.ReplaceAllStringFunc(doc, func(m string) string {
		groups := attrRe.FindStringSubmatch(m)
		attr, quoted := groups[1], groups[2]
		val := strings.TrimSpace(quoted[1 : len(quoted)-1])

		resn, err := rw.res.Resolve(val, dir)
		if err != nil {
			log.Printf("rewrite: leaving %s=%q in %s: %v", strings.ToLower(attr), val, htmlPath, err)
			return m
		}
		if resn.External {
			if resn.URL == val {
				return m
			}
			// Scheme was repaired; emit the corrected URL.
			return attr + `="` + resn.URL + `"`
		}
		return attr + `="` + PublicPrefix + resn.Rel + `"`
	})

	// Final safety pass: collapse any adjacent duplicate subject segment pair
	// the attribute-level normalization did not reach.
	return dupSubjectPairRe.ReplaceAllStringFunc(out, func(m string) string {
		groups := dupSubjectPairRe.FindStringSubmatch(m)
		if groups[1] == groups[2] {
			return groups[1] + "/"
		}
		return m
	})
}
