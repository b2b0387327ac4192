package addressing

import "net/url"

// ByteRange is an inclusive [Start, End] HTTP byte range.
type ByteRange struct {
	Start, End int64
}

// SegmentRef is the ephemeral, resolved address of one segment: an
// absolute URL (or inline decoded bytes for data: URLs), an optional byte
// range, whether it's the init segment, and its ordinal within the
// Representation's sequence. Per spec.md §3, for a given Representation
// SegmentRefs are emitted in presentation order with the init segment
// first.
type SegmentRef struct {
	URL        *url.URL
	ByteRange  *ByteRange
	IsInit     bool
	Index      int
	InlineData []byte // set for data: URL init segments; URL is nil
}
