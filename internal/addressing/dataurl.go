package addressing

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/ericcug/dashget/internal/errs"
)

// IsDataURL reports whether raw is an RFC 2397 data: URL.
func IsDataURL(raw string) bool {
	return strings.HasPrefix(raw, "data:")
}

// DecodeDataURL decodes an RFC 2397 data: URL's payload inline. Init
// segments expressed this way are never fetched over the network, per
// spec.md §4.3.
func DecodeDataURL(raw string) ([]byte, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "data" {
		return nil, fmt.Errorf("%w: invalid data URL", errs.ErrParsing)
	}
	// url.Parse puts everything after "data:" into u.Opaque.
	rest := u.Opaque
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return nil, fmt.Errorf("%w: data URL missing comma separator", errs.ErrParsing)
	}
	meta, payload := rest[:comma], rest[comma+1:]

	if strings.HasSuffix(meta, ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding base64 data URL: %v", errs.ErrParsing, err)
		}
		return decoded, nil
	}

	unescaped, err := url.QueryUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding percent-escaped data URL: %v", errs.ErrParsing, err)
	}
	return []byte(unescaped), nil
}
