package model

import (
	"encoding/xml"
	"fmt"

	"github.com/ericcug/dashget/internal/errs"
)

// Parse unmarshals raw MPD XML bytes into the typed tree.
func Parse(data []byte) (*MPD, error) {
	var mpd MPD
	if err := xml.Unmarshal(data, &mpd); err != nil {
		return nil, errs.WithPath("MPD", fmt.Errorf("%w: %v", errs.ErrParsing, err))
	}
	if mpd.Type == "" {
		mpd.Type = "static"
	}
	return &mpd, nil
}
