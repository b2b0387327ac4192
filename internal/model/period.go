package model

import (
	"fmt"
	"time"

	"github.com/ericcug/dashget/internal/errs"
)

// ResolvedPeriod pairs a Period with its computed start offset and
// duration, the two quantities spec.md requires to be derivable: start
// defaults to the sum of earlier Periods' durations, duration defaults to
// next Period's start minus this one's (or the MPD's total duration for
// the last Period).
type ResolvedPeriod struct {
	*Period
	Start    time.Duration
	Duration time.Duration
}

// ResolvePeriods computes Start/Duration for every Period per spec.md §3:
// "if start is absent for Period i>0, start = Σ durations of earlier
// Periods". Periods whose resolved duration is zero are kept in the
// returned slice (callers that need to skip them per §4.7's
// minimum_period_duration filter do so explicitly).
func ResolvePeriods(mpd *MPD) ([]ResolvedPeriod, error) {
	var mpdDuration time.Duration
	if mpd.MediaPresentationDuration != "" {
		d, err := ParseISODuration(mpd.MediaPresentationDuration)
		if err != nil {
			return nil, err
		}
		mpdDuration = d
	}

	out := make([]ResolvedPeriod, len(mpd.Periods))
	var cursor time.Duration
	for i := range mpd.Periods {
		p := &mpd.Periods[i]
		path := fmt.Sprintf("Period[%d]", i)

		var start time.Duration
		if p.Start != "" {
			d, err := ParseISODuration(p.Start)
			if err != nil {
				return nil, errs.WithPath(path+".start", err)
			}
			start = d
		} else if i == 0 {
			start = 0
		} else {
			start = cursor
		}

		var dur time.Duration
		if p.Duration != "" {
			d, err := ParseISODuration(p.Duration)
			if err != nil {
				return nil, errs.WithPath(path+".duration", err)
			}
			dur = d
		} else if i+1 < len(mpd.Periods) && mpd.Periods[i+1].Start != "" {
			nextStart, err := ParseISODuration(mpd.Periods[i+1].Start)
			if err != nil {
				return nil, errs.WithPath(fmt.Sprintf("Period[%d].start", i+1), err)
			}
			dur = nextStart - start
		} else if i+1 == len(mpd.Periods) && mpdDuration > 0 {
			dur = mpdDuration - start
		}

		out[i] = ResolvedPeriod{Period: p, Start: start, Duration: dur}
		cursor = start + dur
	}

	if mpd.Type == "static" && mpdDuration == 0 {
		if len(out) == 0 {
			return nil, errs.WithPath("MPD", fmt.Errorf("%w: static manifest has no Periods and no derivable duration", errs.ErrParsing))
		}
		last := out[len(out)-1]
		if last.Duration == 0 {
			return nil, errs.WithPath("MPD", fmt.Errorf("%w: static manifest has no derivable duration", errs.ErrParsing))
		}
	}

	return out, nil
}
