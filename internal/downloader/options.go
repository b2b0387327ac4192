// Package downloader is the public façade: a Builder that captures every
// option spec.md §6 enumerates, and a Download entry point that wires
// together model parsing, XLink resolution, URL context, addressing,
// track selection, fetching, assembly, concatenation and muxing into one
// cancellable top-level task. Grounded on the teacher's session.Manager
// (internal/session/session.go), generalized from "manage one live
// channel's running state" into "drive one on-demand download to
// completion", and on config.Config (internal/config/config.go) for the
// snapshot-options idiom spec.md §9 calls for ("an immutable snapshot
// object handed to every component").
package downloader

import (
	"net/http"
	"time"

	"github.com/ericcug/dashget/internal/assemble"
	"github.com/ericcug/dashget/internal/fetch"
	"github.com/ericcug/dashget/internal/logger"
	"github.com/ericcug/dashget/internal/selector"
)

// Builder accumulates options before Build freezes them into an
// immutable Config. Every method returns the Builder so calls chain,
// matching the option-table shape of spec.md §6.
type Builder struct {
	cfg Config
}

// New starts a Builder with the documented defaults: best quality,
// audio+video fetched, subtitles off, static manifests only, the
// standard retry/error budgets.
func New() *Builder {
	return &Builder{cfg: Config{
		Quality:               selector.QualityBest,
		FetchAudio:            true,
		FetchVideo:            true,
		FetchSubtitles:        false,
		FragmentRetryCount:    10,
		MaxErrorCount:         30,
		ConcatenatePeriods:    true,
		ConcatHelperNames:     []string{"ffmpeg", "mkvmerge"},
		DecryptorHelperNames:  []string{"mp4decrypt", "shaka-packager"},
		MuxerPreference:       map[string][]string{},
		HelperLocations:       map[string]string{},
		XLinkMaxResolutions:   20,
		Verbosity:             0,
		FailFast:              true,
	}}
}

// Config is the immutable snapshot Build() produces. Every field mirrors
// one row of spec.md §6's option table.
type Config struct {
	Quality          selector.Quality
	PreferVideoWidth  int
	PreferVideoHeight int
	PreferLanguage    string
	PreferRoles       []string

	FetchAudio     bool
	FetchVideo     bool
	FetchSubtitles bool

	AllowLiveStreams bool
	ForceDuration    time.Duration

	FragmentRetryCount int
	MaxErrorCount      int

	SleepBetweenRequests time.Duration
	RateLimitBytesPerSec int64
	WithoutContentTypeChecks bool

	AuthUser, AuthPass string
	AuthBearer         string
	Referer            string
	UserAgent          string
	HTTPClient         *http.Client

	HelperLocations      map[string]string   // helper name -> path
	MuxerPreference      map[string][]string // extension -> ordered helper names
	ConcatHelperNames    []string
	DecryptorHelperNames []string

	DecryptionKeys map[string]assemble.Key // KID -> Key

	SaveFragmentsTo string
	KeepAudio       string
	KeepVideo       string

	XSLTStylesheet string

	MinimumPeriodDuration time.Duration
	ConcatenatePeriods    bool

	ConformityChecks     bool
	StrictConformity     bool
	RecordMetainformation bool

	Observers           []fetch.Observer
	Verbosity           int
	XLinkMaxResolutions int

	FailFast bool // default true; Period-level errors abort sibling Periods
}

// QualityPref sets best/worst/intermediate selection, per spec.md §6.
func (b *Builder) QualityPref(q string) *Builder {
	b.cfg.Quality = selector.Quality(q)
	return b
}

func (b *Builder) PreferVideoWidth(w int) *Builder  { b.cfg.PreferVideoWidth = w; return b }
func (b *Builder) PreferVideoHeight(h int) *Builder { b.cfg.PreferVideoHeight = h; return b }
func (b *Builder) PreferLanguage(tag string) *Builder { b.cfg.PreferLanguage = tag; return b }
func (b *Builder) PreferRoles(roles []string) *Builder { b.cfg.PreferRoles = roles; return b }

func (b *Builder) FetchAudioOpt(v bool) *Builder     { b.cfg.FetchAudio = v; return b }
func (b *Builder) FetchVideoOpt(v bool) *Builder     { b.cfg.FetchVideo = v; return b }
func (b *Builder) FetchSubtitlesOpt(v bool) *Builder { b.cfg.FetchSubtitles = v; return b }

// AudioOnly is the audio_only() shorthand: disables video and subtitles.
func (b *Builder) AudioOnly() *Builder {
	b.cfg.FetchAudio, b.cfg.FetchVideo, b.cfg.FetchSubtitles = true, false, false
	return b
}

// VideoOnly is the video_only() shorthand: disables audio and subtitles.
func (b *Builder) VideoOnly() *Builder {
	b.cfg.FetchAudio, b.cfg.FetchVideo, b.cfg.FetchSubtitles = false, true, false
	return b
}

func (b *Builder) AllowLiveStreams(v bool) *Builder { b.cfg.AllowLiveStreams = v; return b }
func (b *Builder) ForceDuration(d time.Duration) *Builder { b.cfg.ForceDuration = d; return b }

func (b *Builder) FragmentRetryCount(n int) *Builder { b.cfg.FragmentRetryCount = n; return b }
func (b *Builder) MaxErrorCount(n int) *Builder      { b.cfg.MaxErrorCount = n; return b }

func (b *Builder) SleepBetweenRequests(d time.Duration) *Builder {
	b.cfg.SleepBetweenRequests = d
	return b
}
func (b *Builder) WithRateLimit(bytesPerSec int64) *Builder {
	b.cfg.RateLimitBytesPerSec = bytesPerSec
	return b
}
func (b *Builder) WithoutContentTypeChecks() *Builder {
	b.cfg.WithoutContentTypeChecks = true
	return b
}

func (b *Builder) WithAuth(user, pass string) *Builder {
	b.cfg.AuthUser, b.cfg.AuthPass = user, pass
	return b
}
func (b *Builder) WithAuthBearer(token string) *Builder { b.cfg.AuthBearer = token; return b }
func (b *Builder) WithReferer(s string) *Builder        { b.cfg.Referer = s; return b }
func (b *Builder) WithUserAgent(s string) *Builder      { b.cfg.UserAgent = s; return b }
func (b *Builder) WithHTTPClient(c *http.Client) *Builder { b.cfg.HTTPClient = c; return b }

func (b *Builder) WithFfmpegLocation(path string) *Builder  { b.cfg.HelperLocations["ffmpeg"] = path; return b }
func (b *Builder) WithVlcLocation(path string) *Builder      { b.cfg.HelperLocations["vlc"] = path; return b }
func (b *Builder) WithMkvmergeLocation(path string) *Builder { b.cfg.HelperLocations["mkvmerge"] = path; return b }
func (b *Builder) WithMp4boxLocation(path string) *Builder   { b.cfg.HelperLocations["mp4box"] = path; return b }
func (b *Builder) WithMp4decryptLocation(path string) *Builder {
	b.cfg.HelperLocations["mp4decrypt"] = path
	return b
}
func (b *Builder) WithShakaPackagerLocation(path string) *Builder {
	b.cfg.HelperLocations["shaka-packager"] = path
	return b
}

func (b *Builder) WithMuxerPreference(ext string, helpers []string) *Builder {
	b.cfg.MuxerPreference[ext] = helpers
	return b
}
func (b *Builder) WithConcatHelper(names []string) *Builder    { b.cfg.ConcatHelperNames = names; return b }
func (b *Builder) WithDecryptorPreference(names []string) *Builder {
	b.cfg.DecryptorHelperNames = names
	return b
}

func (b *Builder) AddDecryptionKey(kid, key string) *Builder {
	if b.cfg.DecryptionKeys == nil {
		b.cfg.DecryptionKeys = map[string]assemble.Key{}
	}
	b.cfg.DecryptionKeys[kid] = assemble.Key{KID: kid, Key: key}
	return b
}

func (b *Builder) SaveFragmentsTo(dir string) *Builder { b.cfg.SaveFragmentsTo = dir; return b }
func (b *Builder) KeepAudio(path string) *Builder      { b.cfg.KeepAudio = path; return b }
func (b *Builder) KeepVideo(path string) *Builder      { b.cfg.KeepVideo = path; return b }

func (b *Builder) WithXSLTStylesheet(path string) *Builder { b.cfg.XSLTStylesheet = path; return b }

func (b *Builder) MinimumPeriodDuration(d time.Duration) *Builder {
	b.cfg.MinimumPeriodDuration = d
	return b
}
func (b *Builder) ConcatenatePeriods(v bool) *Builder { b.cfg.ConcatenatePeriods = v; return b }

func (b *Builder) ConformityChecks(v bool) *Builder { b.cfg.ConformityChecks = v; return b }
func (b *Builder) StrictConformity(v bool) *Builder { b.cfg.StrictConformity = v; return b }
func (b *Builder) RecordMetainformation(v bool) *Builder {
	b.cfg.RecordMetainformation = v
	return b
}

func (b *Builder) AddProgressObserver(o fetch.Observer) *Builder {
	b.cfg.Observers = append(b.cfg.Observers, o)
	return b
}
func (b *Builder) Verbosity(n int) *Builder { b.cfg.Verbosity = n; return b }

func (b *Builder) FailFast(v bool) *Builder { b.cfg.FailFast = v; return b }

// Build freezes the accumulated options into a Config and the
// Downloader that drives the engine with it.
func (b *Builder) Build() *Downloader {
	log := logger.FromVerbosity(b.cfg.Verbosity)
	return &Downloader{cfg: b.cfg, logger: log}
}
