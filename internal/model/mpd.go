// Package model holds the typed tree the MPD unmarshals into: MPD,
// Period, AdaptationSet, Representation and the segment-description
// nodes, generalized from the teacher's flat SegmentTemplate-only model
// to also carry SegmentBase, SegmentList, ContentProtection and the
// XLink attributes every element may carry.
package model

import "encoding/xml"

// Xlink holds the xlink:href/actuate/show attributes any element in the
// manifest may carry. Embedded by value in every splice-able node.
type Xlink struct {
	Href    string `xml:"http://www.w3.org/1999/xlink href,attr,omitempty"`
	Actuate string `xml:"http://www.w3.org/1999/xlink actuate,attr,omitempty"`
	Show    string `xml:"http://www.w3.org/1999/xlink show,attr,omitempty"`
}

// ResolveToZeroHref is the well-known sentinel that removes the carrying
// element from its parent instead of resolving it remotely.
const ResolveToZeroHref = "urn:mpeg:dash:resolve-to-zero:2013"

// HasXlink reports whether this element still has an unresolved remote
// reference (onLoad, not already spliced).
func (x Xlink) HasXlink() bool {
	return x.Href != "" && (x.Actuate == "" || x.Actuate == "onLoad")
}

// IsResolveToZero reports whether the href is the resolve-to-zero sentinel.
func (x Xlink) IsResolveToZero() bool {
	return x.Href == ResolveToZeroHref
}

// MPD is the root element of a Media Presentation Description.
type MPD struct {
	XMLName                   xml.Name          `xml:"MPD"`
	Type                      string            `xml:"type,attr"`
	Profiles                  string            `xml:"profiles,attr"`
	MediaPresentationDuration string            `xml:"mediaPresentationDuration,attr,omitempty"`
	MinimumUpdatePeriod       string            `xml:"minimumUpdatePeriod,attr,omitempty"`
	TimeShiftBufferDepth      string            `xml:"timeShiftBufferDepth,attr,omitempty"`
	AvailabilityStartTime     string            `xml:"availabilityStartTime,attr,omitempty"`
	PublishTime               string            `xml:"publishTime,attr,omitempty"`
	MaxSegmentDuration        string            `xml:"maxSegmentDuration,attr,omitempty"`
	MinBufferTime             string            `xml:"minBufferTime,attr,omitempty"`
	BaseURLs                  []BaseURL         `xml:"BaseURL"`
	Location                  string            `xml:"Location,omitempty"`
	PatchLocation             string            `xml:"PatchLocation,omitempty"`
	ProgramInformation        *ProgramInfo      `xml:"ProgramInformation"`
	Periods                   []Period          `xml:"Period"`
}

// ProgramInfo carries the title/source/rights metadata later written as
// Dublin Core extended attributes on the final muxed output.
type ProgramInfo struct {
	Title     string `xml:"Title,omitempty"`
	Source    string `xml:"Source,omitempty"`
	Copyright string `xml:"Copyright,omitempty"`
}

// BaseURL is a failover alternative at some level of the inheritance
// chain; siblings at one level are tried in declaration order, annotated
// by ServiceLocation and Weight.
type BaseURL struct {
	Value           string `xml:",chardata"`
	ServiceLocation string `xml:"serviceLocation,attr,omitempty"`
	Weight          int    `xml:"weight,attr,omitempty"`
	// AvailabilityTimeOffset is parsed but, per spec, "INF" is treated as a
	// no-op rather than "always available" -- preserved, not honoured.
	AvailabilityTimeOffset string `xml:"availabilityTimeOffset,attr,omitempty"`
}

// Period represents a media content period.
type Period struct {
	Xlink
	ID              string          `xml:"id,attr,omitempty"`
	Start           string          `xml:"start,attr,omitempty"`
	Duration        string          `xml:"duration,attr,omitempty"`
	BaseURLs        []BaseURL       `xml:"BaseURL"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`
	SegmentBase     *SegmentBase    `xml:"SegmentBase"`
	SegmentList     *SegmentList    `xml:"SegmentList"`
	AdaptationSets  []AdaptationSet `xml:"AdaptationSet"`
	EventStreams    []EventStream   `xml:"EventStream"`
}

// EventStream is parsed and preserved but not acted upon: timed events
// driving live-edge signalling are out of scope for this engine.
type EventStream struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr,omitempty"`
	Timescale   uint64 `xml:"timescale,attr,omitempty"`
}

// Role describes an AdaptationSet's editorial role (main, alternate,
// commentary, dub, ...).
type Role struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr"`
}

// Descriptor models SupplementalProperty/EssentialProperty elements.
type Descriptor struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr,omitempty"`
}

// ContentProtection carries cenc/DRM scheme metadata. Only its presence
// matters to this engine: actual license acquisition is a Non-goal.
type ContentProtection struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr,omitempty"`
	DefaultKID  string `xml:"http://dashif.org/identifiers/content-protection default_KID,attr,omitempty"`
}

// AdaptationSet represents a set of interchangeable representations.
type AdaptationSet struct {
	Xlink
	ID                   string              `xml:"id,attr,omitempty"`
	ContentType          string              `xml:"contentType,attr,omitempty"`
	MimeType             string              `xml:"mimeType,attr,omitempty"`
	Lang                 string              `xml:"lang,attr,omitempty"`
	Label                string              `xml:"Label,omitempty"`
	SegmentAlignment     bool                `xml:"segmentAlignment,attr,omitempty"`
	StartWithSAP         int                 `xml:"startWithSAP,attr,omitempty"`
	MaxWidth             int                 `xml:"maxWidth,attr,omitempty"`
	MaxHeight            int                 `xml:"maxHeight,attr,omitempty"`
	Par                  string              `xml:"par,attr,omitempty"`
	BaseURLs             []BaseURL           `xml:"BaseURL"`
	Roles                []Role              `xml:"Role"`
	SupplementalProps    []Descriptor        `xml:"SupplementalProperty"`
	EssentialProps       []Descriptor        `xml:"EssentialProperty"`
	ContentProtections   []ContentProtection `xml:"ContentProtection"`
	SegmentTemplate      *SegmentTemplate    `xml:"SegmentTemplate"`
	SegmentBase          *SegmentBase        `xml:"SegmentBase"`
	SegmentList          *SegmentList        `xml:"SegmentList"`
	Representations      []Representation    `xml:"Representation"`
}

// Representation represents a specific media stream.
type Representation struct {
	ID                      string              `xml:"id,attr,omitempty"`
	Bandwidth               int                 `xml:"bandwidth,attr,omitempty"`
	QualityRanking          *int                `xml:"qualityRanking,attr"`
	Codecs                  string              `xml:"codecs,attr,omitempty"`
	MimeType                string              `xml:"mimeType,attr,omitempty"`
	Width                   int                 `xml:"width,attr,omitempty"`
	Height                  int                 `xml:"height,attr,omitempty"`
	FrameRate               string              `xml:"frameRate,attr,omitempty"`
	Sar                     string              `xml:"sar,attr,omitempty"`
	AudioSamplingRate       string              `xml:"audioSamplingRate,attr,omitempty"`
	PresentationTimeOffset  uint64              `xml:"presentationTimeOffset,attr,omitempty"`
	BaseURLs                []BaseURL           `xml:"BaseURL"`
	ContentProtections      []ContentProtection `xml:"ContentProtection"`
	SegmentTemplate         *SegmentTemplate    `xml:"SegmentTemplate"`
	SegmentBase             *SegmentBase        `xml:"SegmentBase"`
	SegmentList             *SegmentList        `xml:"SegmentList"`
}

// SegmentBase describes a single-file, byte-range-indexed representation.
type SegmentBase struct {
	IndexRange     string          `xml:"indexRange,attr,omitempty"`
	Timescale      int             `xml:"timescale,attr,omitempty"`
	Initialization *URLWithRange   `xml:"Initialization"`
	RepresentationIndex *URLWithRange `xml:"RepresentationIndex"`
}

// URLWithRange is the shared shape of Initialization/RepresentationIndex:
// an optional explicit @sourceURL plus an optional byte @range.
type URLWithRange struct {
	SourceURL string `xml:"sourceURL,attr,omitempty"`
	Range     string `xml:"range,attr,omitempty"`
}

// SegmentList enumerates explicit SegmentURL children.
type SegmentList struct {
	Timescale      int            `xml:"timescale,attr,omitempty"`
	Duration       int            `xml:"duration,attr,omitempty"`
	Initialization *URLWithRange  `xml:"Initialization"`
	SegmentURLs    []SegmentURL   `xml:"SegmentURL"`
}

// SegmentURL is one explicit entry in a SegmentList.
type SegmentURL struct {
	Media      string `xml:"media,attr,omitempty"`
	MediaRange string `xml:"mediaRange,attr,omitempty"`
	// BaseURL is non-standard but several publishers attach it when @media
	// is omitted, per spec.md §4.3 ("resolve the URL from the SegmentURL's
	// own BaseURL child").
	BaseURL string `xml:"BaseURL,omitempty"`
}

// SegmentTemplate defines the $Number$/$Time$ URL structure for segments.
type SegmentTemplate struct {
	Timescale      float64          `xml:"timescale,attr,omitempty"`
	Duration       float64          `xml:"duration,attr,omitempty"`
	StartNumber    *int64           `xml:"startNumber,attr"`
	Initialization string           `xml:"initialization,attr,omitempty"`
	Media          string           `xml:"media,attr,omitempty"`
	Timeline       *SegmentTimeline `xml:"SegmentTimeline"`
}

// SegmentTimeline defines the timeline of segments.
type SegmentTimeline struct {
	Segments []S `xml:"S"`
}

// S represents a single segment or a repeated run of segments:
// t=start, d=duration, r=repeat count (-1 means "until next S or Period end").
type S struct {
	T *uint64 `xml:"t,attr"`
	D uint64  `xml:"d,attr"`
	R int     `xml:"r,attr,omitempty"`
	K int     `xml:"k,attr,omitempty"`
	N *uint64 `xml:"n,attr"`
}
