package addressing

import (
	"fmt"
	"math"
	"net/url"

	"github.com/ericcug/dashget/internal/errs"
	"github.com/ericcug/dashget/internal/model"
	"github.com/ericcug/dashget/internal/urlctx"
)

// Context carries everything needed to resolve one Representation's
// SegmentRefs: the BaseURL chain down to it, the Period's resolved
// duration, and the query-inheritance stack.
type Context struct {
	Stack        *urlctx.Stack
	MPDBaseURLs  []model.BaseURL
	Period       model.ResolvedPeriod
	AdaptationSet *model.AdaptationSet
	Representation *model.Representation
}

// Resolve is the addressing algebra's entry point: given a Representation
// after inheritance flattening, emit an ordered []SegmentRef. It holds
// at most one is_init ref, and that ref is first; a SegmentList or
// SegmentTemplate that declares no initialization yields media refs only.
func Resolve(ctx Context) ([]SegmentRef, error) {
	period, as, rep := ctx.Period, ctx.AdaptationSet, ctx.Representation

	base := ctx.Stack.Resolve(ctx.MPDBaseURLs, period.BaseURLs, as.BaseURLs, rep.BaseURLs)

	segBase := firstSegmentBase(rep.SegmentBase, as.SegmentBase, period.SegmentBase)
	segList := firstSegmentList(rep.SegmentList, as.SegmentList, period.SegmentList)
	tmpl := mergeTemplates(period.SegmentTemplate, as.SegmentTemplate, rep.SegmentTemplate)

	var refs []SegmentRef
	var err error
	switch {
	case segBase != nil:
		refs, err = resolveSegmentBase(ctx, base, segBase)
	case segList != nil:
		refs, err = resolveSegmentList(ctx, base, segList)
	case tmpl != nil:
		if tmpl.Timeline != nil {
			refs, err = resolveTimeTemplate(ctx, base, tmpl)
		} else {
			refs, err = resolveNumberTemplate(ctx, base, tmpl)
		}
	default:
		return nil, fmt.Errorf("%w: Representation %q has no segment description", errs.ErrParsing, rep.ID)
	}
	if err != nil {
		return nil, err
	}

	for _, r := range refs {
		if r.URL != nil {
			ctx.Stack.AppendManifestQuery(r.URL)
		}
	}
	return refs, nil
}

func firstSegmentBase(levels ...*model.SegmentBase) *model.SegmentBase {
	for _, l := range levels {
		if l != nil {
			return l
		}
	}
	return nil
}

func firstSegmentList(levels ...*model.SegmentList) *model.SegmentList {
	for _, l := range levels {
		if l != nil {
			return l
		}
	}
	return nil
}

// mergeTemplates field-wise merges SegmentTemplate across Period ->
// AdaptationSet -> Representation, per spec.md §9's "effective template"
// design note: a child's set fields override the parent's, unset fields
// inherit.
func mergeTemplates(levels ...*model.SegmentTemplate) *model.SegmentTemplate {
	var merged *model.SegmentTemplate
	for _, l := range levels {
		if l == nil {
			continue
		}
		if merged == nil {
			v := *l
			merged = &v
			continue
		}
		if l.Timescale != 0 {
			merged.Timescale = l.Timescale
		}
		if l.Duration != 0 {
			merged.Duration = l.Duration
		}
		if l.StartNumber != nil {
			merged.StartNumber = l.StartNumber
		}
		if l.Initialization != "" {
			merged.Initialization = l.Initialization
		}
		if l.Media != "" {
			merged.Media = l.Media
		}
		if l.Timeline != nil {
			merged.Timeline = l.Timeline
		}
	}
	return merged
}

func resolveInitRef(base *url.URL, stack *urlctx.Stack, repID, rawPath string, byteRange *ByteRange) (SegmentRef, error) {
	if rawPath == "" {
		return SegmentRef{}, nil
	}
	substituted, err := SubstituteTemplate(rawPath, repID, nil, nil, 0)
	if err != nil {
		return SegmentRef{}, err
	}
	if IsDataURL(substituted) {
		data, err := DecodeDataURL(substituted)
		if err != nil {
			return SegmentRef{}, err
		}
		return SegmentRef{InlineData: data, IsInit: true, Index: 0}, nil
	}
	u, err := urlctx.ResolvePath(base, substituted)
	if err != nil {
		return SegmentRef{}, err
	}
	return SegmentRef{URL: u, IsInit: true, Index: 0, ByteRange: byteRange}, nil
}

// resolveSegmentBase implements spec.md §4.3's SegmentBase+indexRange
// case: a single SegmentRef without byte range for the media payload
// (deliberately not split into piecewise requests), with the
// Initialization's own range (if any) honoured so callers can isolate
// just the init bytes.
func resolveSegmentBase(ctx Context, base *url.URL, sb *model.SegmentBase) ([]SegmentRef, error) {
	rep := ctx.Representation
	var initRef SegmentRef
	var err error

	if sb.Initialization != nil && sb.Initialization.SourceURL != "" {
		initRef, err = resolveInitRef(base, ctx.Stack, rep.ID, sb.Initialization.SourceURL, parseByteRange(sb.Initialization.Range))
	} else {
		// No separate init resource: the init bytes live in the same file,
		// isolated purely by byte range.
		initRef = SegmentRef{URL: base, IsInit: true, Index: 0, ByteRange: parseByteRangeOrNil(sb.Initialization)}
	}
	if err != nil {
		return nil, err
	}

	mediaRef := SegmentRef{URL: base, IsInit: false, Index: 1}
	return []SegmentRef{initRef, mediaRef}, nil
}

func parseByteRangeOrNil(init *model.URLWithRange) *ByteRange {
	if init == nil {
		return nil
	}
	return parseByteRange(init.Range)
}

// parseByteRange parses an HTTP-style "start-end" range.
func parseByteRange(s string) *ByteRange {
	if s == "" {
		return nil
	}
	var start, end int64
	if _, err := fmt.Sscanf(s, "%d-%d", &start, &end); err != nil {
		return nil
	}
	return &ByteRange{Start: start, End: end}
}

// resolveSegmentList implements spec.md §4.3's SegmentList case.
func resolveSegmentList(ctx Context, base *url.URL, sl *model.SegmentList) ([]SegmentRef, error) {
	rep := ctx.Representation
	refs := make([]SegmentRef, 0, len(sl.SegmentURLs)+1)

	if sl.Initialization != nil {
		initRef, err := resolveInitRef(base, ctx.Stack, rep.ID, sl.Initialization.SourceURL, parseByteRange(sl.Initialization.Range))
		if err != nil {
			return nil, err
		}
		if initRef.URL != nil || initRef.InlineData != nil {
			refs = append(refs, initRef)
		}
	}

	for i, su := range sl.SegmentURLs {
		path := su.Media
		if path == "" {
			if su.BaseURL == "" {
				return nil, fmt.Errorf("%w: SegmentURL[%d] has neither @media nor a BaseURL child", errs.ErrParsing, i)
			}
			path = su.BaseURL
		}
		u, err := urlctx.ResolvePath(base, path)
		if err != nil {
			return nil, err
		}
		refs = append(refs, SegmentRef{URL: u, ByteRange: parseByteRange(su.MediaRange), Index: i + 1})
	}
	return refs, nil
}

// resolveNumberTemplate implements spec.md §4.3's $Number$ SegmentTemplate
// case: startNumber defaults to 1, duration may be fractional, total
// segments = ceil(periodDurationSeconds * timescale / duration).
func resolveNumberTemplate(ctx Context, base *url.URL, tmpl *model.SegmentTemplate) ([]SegmentRef, error) {
	rep := ctx.Representation
	if tmpl.Timescale == 0 {
		return nil, fmt.Errorf("%w: SegmentTemplate missing timescale", errs.ErrParsing)
	}
	if tmpl.Duration == 0 {
		return nil, fmt.Errorf("%w: SegmentTemplate missing duration", errs.ErrParsing)
	}

	startNumber := uint64(1)
	if tmpl.StartNumber != nil {
		startNumber = uint64(*tmpl.StartNumber)
	}

	periodSeconds := ctx.Period.Duration.Seconds()
	total := int(math.Ceil(periodSeconds * tmpl.Timescale / tmpl.Duration))
	if total < 0 {
		total = 0
	}

	refs := make([]SegmentRef, 0, total+1)
	if tmpl.Initialization != "" {
		initRef, err := resolveInitRef(base, ctx.Stack, rep.ID, tmpl.Initialization, nil)
		if err != nil {
			return nil, err
		}
		refs = append(refs, initRef)
	}

	for i := 0; i < total; i++ {
		number := startNumber + uint64(i)
		mediaPath, err := SubstituteTemplate(tmpl.Media, rep.ID, &number, nil, rep.Bandwidth)
		if err != nil {
			return nil, err
		}
		u, err := urlctx.ResolvePath(base, mediaPath)
		if err != nil {
			return nil, err
		}
		refs = append(refs, SegmentRef{URL: u, Index: i + 1})
	}
	return refs, nil
}

// resolveTimeTemplate implements spec.md §4.3's $Time$+SegmentTimeline
// case, including the r=-1 "fill to next S or Period end" rule.
func resolveTimeTemplate(ctx Context, base *url.URL, tmpl *model.SegmentTemplate) ([]SegmentRef, error) {
	rep := ctx.Representation
	if tmpl.Timescale == 0 {
		return nil, fmt.Errorf("%w: SegmentTemplate missing timescale", errs.ErrParsing)
	}
	timescale := tmpl.Timescale

	periodEndTicks := uint64(ctx.Period.Duration.Seconds() * timescale)

	refs := make([]SegmentRef, 0, len(tmpl.Timeline.Segments)+1)
	if tmpl.Initialization != "" {
		initRef, err := resolveInitRef(base, ctx.Stack, rep.ID, tmpl.Initialization, nil)
		if err != nil {
			return nil, err
		}
		refs = append(refs, initRef)
	}

	var cursor uint64
	segs := tmpl.Timeline.Segments
	for si, s := range segs {
		if s.T != nil {
			cursor = *s.T
		}

		repeat := s.R
		if repeat < 0 {
			until := periodEndTicks
			if si+1 < len(segs) && segs[si+1].T != nil {
				until = *segs[si+1].T
			}
			if s.D == 0 {
				return nil, fmt.Errorf("%w: SegmentTimeline S[%d] has r=-1 but d=0", errs.ErrParsing, si)
			}
			if until > cursor {
				repeat = int((until-cursor)/s.D) - 1
			} else {
				repeat = 0
			}
		}

		for r := 0; r <= repeat; r++ {
			t := cursor
			mediaPath, err := SubstituteTemplate(tmpl.Media, rep.ID, nil, &t, rep.Bandwidth)
			if err != nil {
				return nil, err
			}
			u, err := urlctx.ResolvePath(base, mediaPath)
			if err != nil {
				return nil, err
			}
			refs = append(refs, SegmentRef{URL: u, Index: len(refs)})
			cursor += s.D
		}
	}
	return refs, nil
}
