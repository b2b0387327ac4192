// Package selector implements the track-selection pipeline spec.md §4.4
// describes: language -> role -> quality preference, producing one audio
// and one video Representation per Period plus zero or more subtitle
// Representations. Grounded on the teacher's selectRepresentations
// (internal/session/session.go), generalized from its "max bandwidth,
// skip TrickMode" heuristic into the full preference pipeline.
package selector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ericcug/dashget/internal/errs"
	"github.com/ericcug/dashget/internal/model"
)

// Quality selects among candidate Representations of equal content type.
type Quality string

const (
	QualityBest         Quality = "best"
	QualityWorst        Quality = "worst"
	QualityIntermediate Quality = "intermediate"
)

// Preferences is the immutable snapshot of selection options the builder
// hands to the selector, per spec.md §9's "global configuration ... an
// immutable snapshot object".
type Preferences struct {
	Quality            Quality
	PreferWidth         int // prefer_video_width(u); 0 = unset
	PreferHeight        int // prefer_video_height(u); 0 = unset
	Language            string
	Roles               []string
	FetchAudio          bool
	FetchVideo          bool
	FetchSubtitles      bool
}

// TrackCandidate pairs a Representation with the AdaptationSet it belongs
// to, since role/language/ContentProtection live on the AdaptationSet.
type TrackCandidate struct {
	AdaptationSet  *model.AdaptationSet
	Representation *model.Representation
}

type candidate = TrackCandidate

var recognizedSubtitleMimeTypes = map[string]bool{
	"text/vtt":                     true,
	"application/ttml+xml":         true,
	"application/smil+xml":         true,
	"application/mp4":              true, // carries stpp/wvtt in fragments
	"text/srt":                     true,
	"application/x-subrip":         true,
}

// Selection is the result of running the pipeline over one Period.
type Selection struct {
	Audio     *candidate
	Video     *candidate
	Subtitles []candidate
}

// AudioRep / VideoRep unwrap the chosen candidate's Representation, or nil.
func (s Selection) AudioRep() *model.Representation {
	if s.Audio == nil {
		return nil
	}
	return s.Audio.Representation
}

func (s Selection) VideoRep() *model.Representation {
	if s.Video == nil {
		return nil
	}
	return s.Video.Representation
}

func (s Selection) AudioSet() *model.AdaptationSet {
	if s.Audio == nil {
		return nil
	}
	return s.Audio.AdaptationSet
}

func (s Selection) VideoSet() *model.AdaptationSet {
	if s.Video == nil {
		return nil
	}
	return s.Video.AdaptationSet
}

// SubtitleReps returns the chosen subtitle (Representation, AdaptationSet)
// pairs in order.
func (s Selection) SubtitleReps() []struct {
	Rep *model.Representation
	Set *model.AdaptationSet
} {
	out := make([]struct {
		Rep *model.Representation
		Set *model.AdaptationSet
	}, len(s.Subtitles))
	for i, c := range s.Subtitles {
		out[i] = struct {
			Rep *model.Representation
			Set *model.AdaptationSet
		}{Rep: c.Representation, Set: c.AdaptationSet}
	}
	return out
}

// Select runs the full pipeline over one Period's AdaptationSets.
func Select(period *model.Period, prefs Preferences) (Selection, error) {
	var audioCands, videoCands, textCands []candidate

	for i := range period.AdaptationSets {
		as := &period.AdaptationSets[i]
		for j := range as.Representations {
			rep := &as.Representations[j]
			c := candidate{AdaptationSet: as, Representation: rep}
			switch contentType(as, rep) {
			case "audio":
				audioCands = append(audioCands, c)
			case "video":
				videoCands = append(videoCands, c)
			case "text":
				textCands = append(textCands, c)
			}
		}
	}

	var sel Selection

	if prefs.FetchAudio && len(audioCands) > 0 {
		filtered := filterByLanguage(audioCands, prefs.Language)
		filtered = filterByRole(filtered, prefs.Roles)
		chosen, err := pickByQuality(filtered, prefs)
		if err != nil {
			return sel, fmt.Errorf("%w: audio: %v", errs.ErrUnhandledMediaStream, err)
		}
		sel.Audio = chosen
	}

	if prefs.FetchVideo && len(videoCands) > 0 {
		filtered := filterByRole(videoCands, prefs.Roles)
		chosen, err := pickByQuality(filtered, prefs)
		if err != nil {
			return sel, fmt.Errorf("%w: video: %v", errs.ErrUnhandledMediaStream, err)
		}
		sel.Video = chosen
	}

	if prefs.FetchSubtitles {
		sel.Subtitles = selectSubtitles(textCands, prefs.Language)
	}

	return sel, nil
}

func contentType(as *model.AdaptationSet, rep *model.Representation) string {
	if as.ContentType != "" {
		return as.ContentType
	}
	mt := rep.MimeType
	if mt == "" {
		mt = as.MimeType
	}
	switch {
	case strings.HasPrefix(mt, "audio/"):
		return "audio"
	case strings.HasPrefix(mt, "video/"):
		return "video"
	case strings.HasPrefix(mt, "text/"), strings.Contains(mt, "ttml"):
		return "text"
	}
	if looksLikeSubtitleCodec(rep.Codecs) {
		return "text"
	}
	return ""
}

// filterByLanguage restricts to AdaptationSets whose @lang best-matches
// (exact > language-only). Falls through to the full list if nothing
// matches, per spec.md §4.4.
func filterByLanguage(cands []candidate, want string) []candidate {
	if want == "" {
		return cands
	}
	var exact, langOnly []candidate
	wantLang := strings.SplitN(want, "-", 2)[0]
	for _, c := range cands {
		lang := c.AdaptationSet.Lang
		if strings.EqualFold(lang, want) {
			exact = append(exact, c)
		} else if strings.EqualFold(strings.SplitN(lang, "-", 2)[0], wantLang) {
			langOnly = append(langOnly, c)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	if len(langOnly) > 0 {
		return langOnly
	}
	return cands
}

// filterByRole restricts to AdaptationSets matching the user's ordered
// role preference list: the first role in the list with any match wins;
// if none match, fall through to all candidates.
func filterByRole(cands []candidate, roles []string) []candidate {
	if len(roles) == 0 {
		return cands
	}
	for _, wanted := range roles {
		var matched []candidate
		for _, c := range cands {
			for _, r := range c.AdaptationSet.Roles {
				if strings.EqualFold(r.Value, wanted) {
					matched = append(matched, c)
					break
				}
			}
		}
		if len(matched) > 0 {
			return matched
		}
	}
	return cands
}

func pickByQuality(cands []candidate, prefs Preferences) (*candidate, error) {
	if len(cands) == 0 {
		return nil, fmt.Errorf("no candidates remain after language/role filtering")
	}
	if prefs.PreferWidth > 0 {
		return pickByDimension(cands, prefs.PreferWidth, func(r *model.Representation) int { return r.Width }), nil
	}
	if prefs.PreferHeight > 0 {
		return pickByDimension(cands, prefs.PreferHeight, func(r *model.Representation) int { return r.Height }), nil
	}

	switch prefs.Quality {
	case QualityWorst:
		return pickExtreme(cands, false), nil
	case QualityIntermediate:
		return pickIntermediate(cands), nil
	default: // QualityBest is the default
		return pickExtreme(cands, true), nil
	}
}

// rank returns the comparison key for best/worst: qualityRanking if
// present (smaller = higher quality, so we negate it to keep "larger is
// better" throughout), else bandwidth.
func rank(r *model.Representation) int {
	if r.QualityRanking != nil {
		return -*r.QualityRanking
	}
	return r.Bandwidth
}

func pickExtreme(cands []candidate, best bool) *candidate {
	ordered := append([]candidate(nil), cands...)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := rank(ordered[i].Representation), rank(ordered[j].Representation)
		if ri != rj {
			if best {
				return ri > rj
			}
			return ri < rj
		}
		pi := ordered[i].Representation.Width * ordered[i].Representation.Height
		pj := ordered[j].Representation.Width * ordered[j].Representation.Height
		if pi != pj {
			if best {
				return pi > pj
			}
			return pi < pj
		}
		// Stable tie-break: source order, per spec.md §9.
		return false
	})
	return &ordered[0]
}

func pickIntermediate(cands []candidate) *candidate {
	ordered := append([]candidate(nil), cands...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Representation.Bandwidth < ordered[j].Representation.Bandwidth
	})
	var total int
	for _, c := range ordered {
		total += c.Representation.Bandwidth
	}
	median := total / len(ordered)
	if len(ordered)%2 == 0 && len(ordered) > 0 {
		mid := len(ordered) / 2
		median = (ordered[mid-1].Representation.Bandwidth + ordered[mid].Representation.Bandwidth) / 2
	} else if len(ordered) > 0 {
		median = ordered[len(ordered)/2].Representation.Bandwidth
	}

	best := &ordered[0]
	bestDelta := abs(ordered[0].Representation.Bandwidth - median)
	for i := 1; i < len(ordered); i++ {
		d := abs(ordered[i].Representation.Bandwidth - median)
		if d < bestDelta {
			bestDelta = d
			best = &ordered[i]
		}
	}
	return best
}

func pickByDimension(cands []candidate, target int, dim func(*model.Representation) int) *candidate {
	best := &cands[0]
	bestDelta := abs(dim(cands[0].Representation) - target)
	for i := 1; i < len(cands); i++ {
		d := abs(dim(cands[i].Representation) - target)
		if d < bestDelta {
			bestDelta = d
			best = &cands[i]
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// selectSubtitles returns every text AdaptationSet/Representation pair
// whose mimeType is recognised, filtered by language if one is
// configured and at least one candidate matches.
func selectSubtitles(cands []candidate, lang string) []candidate {
	var recognized []candidate
	for _, c := range cands {
		mt := c.Representation.MimeType
		if mt == "" {
			mt = c.AdaptationSet.MimeType
		}
		if recognizedSubtitleMimeTypes[strings.ToLower(mt)] || looksLikeSubtitleCodec(c.Representation.Codecs) {
			recognized = append(recognized, c)
		}
	}
	if lang == "" {
		return recognized
	}
	var matched []candidate
	for _, c := range recognized {
		if strings.EqualFold(c.AdaptationSet.Lang, lang) {
			matched = append(matched, c)
		}
	}
	if len(matched) > 0 {
		return matched
	}
	return recognized
}

func looksLikeSubtitleCodec(codecs string) bool {
	c := strings.ToLower(codecs)
	switch {
	case strings.Contains(c, "stpp"), strings.Contains(c, "wvtt"), strings.Contains(c, "tx3g"):
		return true
	}
	return false
}
