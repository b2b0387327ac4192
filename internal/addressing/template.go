// Package addressing converts a Representation's segment description
// (SegmentBase/SegmentList/SegmentTemplate, optionally governed by a
// SegmentTimeline) into an ordered, finite list of SegmentRefs. This is
// the addressing algebra spec.md §4.3 describes; the teacher repo only
// ever handled the $Number$/$Time$ template case inline in
// dash/client.go and dash/timeline.go; this package generalizes that to
// every segment-description family plus SegmentBase/SegmentList and data
// URLs, while keeping the teacher's "resolve base, substitute template,
// build URL" pipeline shape.
package addressing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ericcug/dashget/internal/errs"
)

// SubstituteTemplate performs the single-pass $Name$/$Name%0Nd$
// substitution spec.md §4.3 describes. number and timeVal are pointers so
// templates that don't reference $Number$/$Time$ don't require callers to
// compute them.
func SubstituteTemplate(tmpl, repID string, number, timeVal *uint64, bandwidth int) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(tmpl) {
		c := tmpl[i]
		if c != '$' {
			out.WriteByte(c)
			i++
			continue
		}
		// Found a '$'. Look for the closing one.
		end := strings.IndexByte(tmpl[i+1:], '$')
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated '$' in template %q", errs.ErrParsing, tmpl)
		}
		token := tmpl[i+1 : i+1+end]
		i = i + 1 + end + 1

		if token == "" {
			// "$$" -> literal '$'
			out.WriteByte('$')
			continue
		}

		name, format, _ := strings.Cut(token, "%")
		if format != "" {
			format = "%" + format
		}

		switch name {
		case "RepresentationID":
			out.WriteString(repID)
		case "Number":
			if number == nil {
				return "", fmt.Errorf("%w: template references $Number$ but no segment number is available", errs.ErrParsing)
			}
			out.WriteString(formatUint(*number, format))
		case "Time":
			if timeVal == nil {
				return "", fmt.Errorf("%w: template references $Time$ but no presentation time is available", errs.ErrParsing)
			}
			out.WriteString(formatUint(*timeVal, format))
		case "Bandwidth":
			out.WriteString(formatUint(uint64(bandwidth), format))
		default:
			return "", fmt.Errorf("%w: unknown template identifier $%s$", errs.ErrParsing, name)
		}
	}
	return out.String(), nil
}

func formatUint(v uint64, format string) string {
	if format == "" {
		return strconv.FormatUint(v, 10)
	}
	return fmt.Sprintf(format, v)
}
