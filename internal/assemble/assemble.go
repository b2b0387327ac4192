// Package assemble implements the Period assembler spec.md §4.6
// describes: for each selected track, fetch its init + media segments in
// order into a fresh temp file, then optionally decrypt and optionally
// convert subtitles. Grounded on the teacher's downloader loop
// (internal/dash/downloader.go) for the "fetch then write sequentially"
// shape, generalized to own the temp-file lifecycle and hand off to the
// decrypt/subtitle helpers instead of just streaming bytes to an HLS
// cache.
package assemble

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ericcug/dashget/internal/addressing"
	"github.com/ericcug/dashget/internal/errs"
	"github.com/ericcug/dashget/internal/fetch"
	"github.com/ericcug/dashget/internal/helper"
	"github.com/ericcug/dashget/internal/logger"
	"github.com/ericcug/dashget/internal/model"
)

// Key is a cenc decryption key, keyed by KID in the caller's map.
type Key struct {
	KID string
	Key string // hex-encoded, as add_decryption_key(kid, key) supplies it
}

// Options configures one Period's assembly.
type Options struct {
	TempDir                string // save_fragments_to(dir); empty uses os.TempDir()
	Keys                   map[string]Key
	DecryptorPreference    helper.Set
	SubtitleHelpers        helper.Set // MP4Box, for WVTT->SRT / STPP extraction
	KeepAudio, KeepVideo   string     // non-empty: copy the assembled track here before cleanup
}

// Track is one selected Representation's resolved segment list plus the
// metadata the assembler needs (content protection, mimeType, codec) to
// decide whether decryption or subtitle conversion applies.
type Track struct {
	Kind           string // "audio", "video", "text"
	AdaptationSet  *model.AdaptationSet
	Representation *model.Representation
	Refs           []addressing.SegmentRef
}

// Result is one Track's on-disk output after fetch, decrypt and subtitle
// conversion.
type Result struct {
	Kind string
	Path string
	// SidecarPath is set for subtitle tracks that produced an extra file
	// (e.g. a .ttml extracted alongside the main output) per spec.md §4.6.
	SidecarPath string
}

// Assembler runs one Period's track assembly.
type Assembler struct {
	fetcher *fetch.Fetcher
	logger  logger.Logger
	opts    Options
}

func New(fetcher *fetch.Fetcher, log logger.Logger, opts Options) *Assembler {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Assembler{fetcher: fetcher, logger: log, opts: opts}
}

// AssembleTrack implements spec.md §4.6 steps 1-2: build a fresh temp
// file, write the init segment first, then every media segment in
// order. The init segment is always written before any media segment,
// per spec.md §5's ordering guarantee.
func (a *Assembler) AssembleTrack(ctx context.Context, track Track) (Result, error) {
	path, err := a.tempPath(track.Kind, track.Representation.ID)
	if err != nil {
		return Result{}, err
	}

	f, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: creating temp file for track %s: %v", errs.ErrIO, track.Representation.ID, err)
	}
	defer f.Close()

	for _, ref := range track.Refs {
		data, err := a.fetcher.FetchSegment(ctx, track.Kind, ref)
		if err != nil {
			os.Remove(path)
			return Result{}, fmt.Errorf("fetching %s segment (init=%v, index=%d) for representation %s: %w", track.Kind, ref.IsInit, ref.Index, track.Representation.ID, err)
		}
		if _, err := f.Write(data); err != nil {
			os.Remove(path)
			return Result{}, fmt.Errorf("%w: writing segment to %s: %v", errs.ErrIO, path, err)
		}
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("%w: closing %s: %v", errs.ErrIO, path, err)
	}

	result := Result{Kind: track.Kind, Path: path}

	if a.needsDecryption(track) {
		decrypted, err := a.decrypt(ctx, path, track)
		if err != nil {
			return Result{}, err
		}
		result.Path = decrypted
	}

	if track.Kind == "text" {
		converted, sidecar, err := a.convertSubtitle(ctx, result.Path, track)
		if err != nil {
			a.logger.Warnf("assemble: subtitle conversion failed for %s, keeping raw output: %v", track.Representation.ID, err)
		} else {
			result.Path = converted
			result.SidecarPath = sidecar
		}
	}

	if err := a.keep(track.Kind, result.Path); err != nil {
		a.logger.Warnf("assemble: keep_%s failed: %v", track.Kind, err)
	}

	return result, nil
}

func (a *Assembler) tempPath(kind, repID string) (string, error) {
	if err := os.MkdirAll(a.opts.TempDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating temp dir %s: %v", errs.ErrIO, a.opts.TempDir, err)
	}
	name := fmt.Sprintf("dashget-%s-%s-%s.tmp", kind, sanitize(repID), uuid.NewString())
	return filepath.Join(a.opts.TempDir, name), nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, s)
}

// needsDecryption implements spec.md §4.6 step 3's gate: at least one
// ContentProtection element present on the selected track AND at least
// one decryption key configured. A content-protected track with no keys
// configured is left undecrypted rather than failing the download: the
// conjunction in spec.md §4.6 only invokes the decryptor when both
// halves hold.
func (a *Assembler) needsDecryption(track Track) bool {
	if len(a.opts.Keys) == 0 {
		return false
	}
	protections := track.Representation.ContentProtections
	if track.AdaptationSet != nil {
		protections = append(append([]model.ContentProtection(nil), track.AdaptationSet.ContentProtections...), protections...)
	}
	return len(protections) > 0
}

// decrypt invokes the ordered decryptor preference list against path,
// replacing it with the cleartext output.
func (a *Assembler) decrypt(ctx context.Context, path string, track Track) (string, error) {
	out := path + ".dec"
	name, _, err := a.opts.DecryptorPreference.RunFirst(ctx,
		func(r helper.Runner) []string { return a.decryptArgs(r, path, out, track) },
		func(r helper.Runner, res helper.Result) bool { return res.Succeeded(out, true) },
	)
	if err != nil {
		os.Remove(out)
		return "", fmt.Errorf("%w: %v", errs.ErrDecrypt, err)
	}
	a.logger.Debugf("assemble: decrypted %s with %s", track.Representation.ID, name)
	os.Remove(path)
	return out, nil
}

// decryptArgs builds the argument list for a decryptor helper. mp4decrypt
// takes one --key KID:KEY per protected track plus input/output paths;
// shaka-packager uses a different flag shape, handled by name.
func (a *Assembler) decryptArgs(r helper.Runner, in, out string, track Track) []string {
	switch r.Name {
	case "shaka-packager":
		args := []string{fmt.Sprintf("input=%s,stream=0,output=%s", in, out)}
		for _, k := range a.opts.Keys {
			args = append(args, "--keys", fmt.Sprintf("key_id=%s:key=%s", k.KID, k.Key))
		}
		return args
	default: // mp4decrypt
		args := make([]string, 0, len(a.opts.Keys)*2+2)
		for _, k := range a.opts.Keys {
			args = append(args, "--key", fmt.Sprintf("%s:%s", k.KID, k.Key))
		}
		return append(args, in, out)
	}
}

// convertSubtitle implements spec.md §4.6 step 4's subtitle
// post-processing: WVTT -> SRT via MP4Box; STPP fragmented MP4 is
// extracted to a .ttml sidecar; single-stream WebVTT/TTML/SAMI is kept
// verbatim.
func (a *Assembler) convertSubtitle(ctx context.Context, path string, track Track) (string, string, error) {
	codecs := strings.ToLower(track.Representation.Codecs)
	mimeType := track.Representation.MimeType
	if mimeType == "" && track.AdaptationSet != nil {
		mimeType = track.AdaptationSet.MimeType
	}

	switch {
	case strings.Contains(codecs, "wvtt"):
		out := strings.TrimSuffix(path, filepath.Ext(path)) + ".srt"
		_, res, err := a.subtitleHelperRun(ctx, path, out)
		if err != nil || !res.Succeeded(out, true) {
			return "", "", fmt.Errorf("converting wvtt to srt: %w", err)
		}
		return out, "", nil

	case strings.Contains(codecs, "stpp"):
		ttml := strings.TrimSuffix(path, filepath.Ext(path)) + ".ttml"
		_, res, err := a.subtitleHelperRun(ctx, path, ttml)
		if err != nil || !res.Succeeded(ttml, true) {
			// extraction failing is non-fatal: the raw fragmented mp4 is
			// still usable by some players directly.
			return path, "", nil
		}
		return path, ttml, nil

	case strings.Contains(mimeType, "vtt"):
		return renamedVerbatim(path, ".vtt")
	case strings.Contains(mimeType, "ttml"):
		return renamedVerbatim(path, ".ttml")
	case strings.Contains(mimeType, "smil"):
		return renamedVerbatim(path, ".smi")
	default:
		return path, "", nil
	}
}

func renamedVerbatim(path, ext string) (string, string, error) {
	out := strings.TrimSuffix(path, filepath.Ext(path)) + ext
	if out == path {
		return path, "", nil
	}
	if err := os.Rename(path, out); err != nil {
		return "", "", fmt.Errorf("%w: renaming %s to %s: %v", errs.ErrIO, path, out, err)
	}
	return out, "", nil
}

func (a *Assembler) subtitleHelperRun(ctx context.Context, in, out string) (string, helper.Result, error) {
	return a.opts.SubtitleHelpers.RunFirst(ctx,
		func(r helper.Runner) []string { return []string{"-srt", "1", in, "-out", out} },
		func(r helper.Runner, res helper.Result) bool { return res.Succeeded(out, true) },
	)
}

func (a *Assembler) keep(kind, path string) error {
	var dest string
	switch kind {
	case "audio":
		dest = a.opts.KeepAudio
	case "video":
		dest = a.opts.KeepVideo
	}
	if dest == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}
