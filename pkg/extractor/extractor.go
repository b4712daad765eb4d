// Package extractor pulls container image references out of rendered
// manifest text.
package extractor

import (
	"bufio"
	"sort"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/northcutted/chart-scan/pkg/types"
)

// Marker is the case-sensitive key that introduces an image reference.
const Marker = "image:"

// Extract returns the distinct image references declared in manifest,
// sorted lexicographically. References are taken verbatim after the last
// marker on a line, minus surrounding whitespace and quotes; they are not
// validated. A manifest without markers yields an empty slice.
func Extract(manifest string) []types.ImageReference {
	seen := make(map[types.ImageReference]struct{})

	scanner := bufio.NewScanner(strings.NewReader(manifest))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ref, ok := referenceFromLine(scanner.Text()); ok {
			seen[ref] = struct{}{}
		}
	}
	// bufio only fails on lines over the buffer cap; fall back to a plain split
	if scanner.Err() != nil {
		for _, line := range strings.Split(manifest, "\n") {
			if ref, ok := referenceFromLine(line); ok {
				seen[ref] = struct{}{}
			}
		}
	}

	refs := make([]types.ImageReference, 0, len(seen))
	for ref := range seen {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs
}

func referenceFromLine(line string) (types.ImageReference, bool) {
	idx := strings.LastIndex(line, Marker)
	if idx < 0 {
		return "", false
	}
	ref := strings.TrimSpace(line[idx+len(Marker):])
	ref = strings.TrimSpace(strings.Trim(ref, `"'`))
	return types.ImageReference(ref), true
}

// Warning describes a reference that does not parse as an OCI image
// reference.
type Warning struct {
	Image  types.ImageReference
	Reason string
}

// Lint checks refs against the OCI reference grammar. It never filters;
// callers only log the result.
func Lint(refs []types.ImageReference) []Warning {
	var warnings []Warning
	for _, ref := range refs {
		if ref == "" {
			warnings = append(warnings, Warning{Image: ref, Reason: "empty image reference"})
			continue
		}
		if _, err := name.ParseReference(string(ref)); err != nil {
			warnings = append(warnings, Warning{Image: ref, Reason: err.Error()})
		}
	}
	return warnings
}
