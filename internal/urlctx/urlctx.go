// Package urlctx maintains the stack of effective BaseURL values combined
// with the manifest URL's query component, per spec.md §4.2. Grounded on
// the teacher's resolveURL/BuildInitSegmentURL/BuildSegmentURL
// (internal/dash/client.go), which already walk MPD->Period->BaseURL
// chains with net/url.ResolveReference; generalized here to also cover
// the AdaptationSet and Representation levels and multi-BaseURL failover
// lists.
package urlctx

import (
	"fmt"
	"net/url"

	"github.com/ericcug/dashget/internal/model"
)

// Stack resolves a chain of BaseURL levels (MPD, Period, AdaptationSet,
// Representation) against the manifest's own location.
type Stack struct {
	manifestURL *url.URL
}

// New builds a Stack rooted at the manifest's final (post-redirect) URL.
func New(manifestURL string) (*Stack, error) {
	u, err := url.Parse(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest URL %q: %w", manifestURL, err)
	}
	return &Stack{manifestURL: u}, nil
}

// Resolve walks levels in order (outermost first), taking the first
// BaseURL at each level that's present (the common case), and returns the
// final effective base. Use Alternatives for failover against the full
// cross-product.
func (s *Stack) Resolve(levels ...[]model.BaseURL) *url.URL {
	base := s.manifestURL
	for _, level := range levels {
		if len(level) == 0 {
			continue
		}
		base = resolveOne(base, level[0].Value)
	}
	return base
}

// Alternatives returns every combination of BaseURL choices across levels,
// in declaration order, for callers that want to retry against failover
// origins (spec.md §4.2: "multiple BaseURL siblings ... tried in
// declaration order").
func (s *Stack) Alternatives(levels ...[]model.BaseURL) []*url.URL {
	results := []*url.URL{s.manifestURL}
	for _, level := range levels {
		if len(level) == 0 {
			continue
		}
		next := make([]*url.URL, 0, len(results)*len(level))
		for _, base := range results {
			for _, bu := range level {
				next = append(next, resolveOne(base, bu.Value))
			}
		}
		results = next
	}
	return results
}

func resolveOne(base *url.URL, ref string) *url.URL {
	if ref == "" {
		return base
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return base
	}
	return base.ResolveReference(refURL)
}

// ResolvePath resolves a relative segment/init path against an already
// computed effective base.
func ResolvePath(base *url.URL, path string) (*url.URL, error) {
	refURL, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parsing path %q: %w", path, err)
	}
	return base.ResolveReference(refURL), nil
}

// AppendManifestQuery implements token-based-auth query inheritance: if
// the manifest URL carries a query string and segURL has none of its own,
// the manifest's query is appended; a segment URL with its own query is
// left unchanged.
func (s *Stack) AppendManifestQuery(segURL *url.URL) {
	if segURL.RawQuery != "" {
		return
	}
	segURL.RawQuery = s.manifestURL.RawQuery
}
