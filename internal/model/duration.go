package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ericcug/dashget/internal/errs"
)

// ParseISODuration parses a (subset of) ISO 8601 duration used throughout
// DASH manifests: PnYnMnDTnHnMnS, with the seconds field allowed to be
// fractional (some publishers emit "PT3.6S"). Only the fields DASH
// actually uses are supported; years/months are treated as 365/30 days,
// which is what every real manifest in this space actually needs since
// Period/MPD durations are always expressed in smaller units in practice.
func ParseISODuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, errs.WithPath("Duration", fmt.Errorf("%w: empty duration", errs.ErrParsing))
	}
	orig := s
	if !strings.HasPrefix(s, "P") {
		return 0, errs.WithPath("Duration", fmt.Errorf("%w: %q missing P prefix", errs.ErrParsing, orig))
	}
	s = s[1:]

	var datePart, timePart string
	if idx := strings.IndexByte(s, 'T'); idx >= 0 {
		datePart, timePart = s[:idx], s[idx+1:]
	} else {
		datePart = s
	}

	var total time.Duration

	consume := func(part string, units map[byte]time.Duration) error {
		num := strings.Builder{}
		for i := 0; i < len(part); i++ {
			c := part[i]
			if (c >= '0' && c <= '9') || c == '.' {
				num.WriteByte(c)
				continue
			}
			unit, ok := units[c]
			if !ok {
				return fmt.Errorf("%w: unexpected unit %q in %q", errs.ErrParsing, string(c), orig)
			}
			val, err := strconv.ParseFloat(num.String(), 64)
			if err != nil {
				return fmt.Errorf("%w: bad numeric component in %q: %v", errs.ErrParsing, orig, err)
			}
			total += time.Duration(val * float64(unit))
			num.Reset()
		}
		if num.Len() > 0 {
			return fmt.Errorf("%w: trailing numeric component in %q", errs.ErrParsing, orig)
		}
		return nil
	}

	if err := consume(datePart, map[byte]time.Duration{
		'Y': 365 * 24 * time.Hour,
		'M': 30 * 24 * time.Hour,
		'D': 24 * time.Hour,
	}); err != nil {
		return 0, errs.WithPath("Duration", err)
	}
	if timePart != "" {
		if err := consume(timePart, map[byte]time.Duration{
			'H': time.Hour,
			'M': time.Minute,
			'S': time.Second,
		}); err != nil {
			return 0, errs.WithPath("Duration", err)
		}
	}
	return total, nil
}

// ParseXSDDateTime parses the xs:dateTime values used in
// availabilityStartTime/publishTime.
func ParseXSDDateTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05", s)
	}
	if err != nil {
		return time.Time{}, errs.WithPath("DateTime", fmt.Errorf("%w: %q: %v", errs.ErrParsing, s, err))
	}
	return t, nil
}
