package downloader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ericcug/dashget/internal/addressing"
	"github.com/ericcug/dashget/internal/assemble"
	"github.com/ericcug/dashget/internal/concat"
	"github.com/ericcug/dashget/internal/errs"
	"github.com/ericcug/dashget/internal/fetch"
	"github.com/ericcug/dashget/internal/helper"
	"github.com/ericcug/dashget/internal/logger"
	"github.com/ericcug/dashget/internal/model"
	"github.com/ericcug/dashget/internal/mux"
	"github.com/ericcug/dashget/internal/selector"
	"github.com/ericcug/dashget/internal/transport"
	"github.com/ericcug/dashget/internal/urlctx"
	"github.com/ericcug/dashget/internal/xattrs"
	"github.com/ericcug/dashget/internal/xlink"
)

// Downloader is the frozen, built engine: Config plus the logger derived
// from its verbosity. One Downloader drives exactly one Download call to
// completion; it holds no mutable state of its own between calls.
type Downloader struct {
	cfg    Config
	logger logger.Logger
}

// helperNames lists every helper this engine knows how to locate, used to
// build the runner map Download hands to mux/concat/assemble.
var helperNames = []string{"ffmpeg", "vlc", "mkvmerge", "mp4box", "mp4decrypt", "shaka-packager"}

func (d *Downloader) runners() map[string]helper.Runner {
	out := make(map[string]helper.Runner, len(helperNames))
	for _, name := range helperNames {
		out[name] = helper.New(name, d.cfg.HelperLocations[name])
	}
	return out
}

func (d *Downloader) helperSet(names []string, runners map[string]helper.Runner) helper.Set {
	set := helper.Set{}
	for _, name := range names {
		if r, ok := runners[name]; ok {
			set.Runners = append(set.Runners, r)
		}
	}
	return set
}

// Download runs the whole engine against manifestURL and writes the final
// muxed file(s) at outPath (extension taken from outPath, e.g. "out.mp4").
// It returns the list of output paths: one entry unless the Periods were
// not concatenated (incompatible, concatenation disabled, or every concat
// helper failed), in which case spec.md §4.7's numbered convention
// applies (out.mp4, out-p2.mp4, ...).
func (d *Downloader) Download(ctx context.Context, manifestURL, outPath string) ([]string, error) {
	client, err := transport.New(transport.Options{
		UserAgent:   d.cfg.UserAgent,
		Referer:     d.cfg.Referer,
		BasicUser:   d.cfg.AuthUser,
		BasicPass:   d.cfg.AuthPass,
		BearerToken: d.cfg.AuthBearer,
		HTTPClient:  d.cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: building http client: %v", errs.ErrNetwork, err)
	}

	raw, finalURL, err := client.FetchManifest(ctx, manifestURL, d.logger)
	if err != nil {
		return nil, err
	}

	if d.cfg.XSLTStylesheet != "" {
		filtered, err := d.applyXSLT(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: xslt pre-filter: %v", errs.ErrParsing, err)
		}
		raw = filtered
	}

	mpd, err := model.Parse(raw)
	if err != nil {
		return nil, err
	}

	if mpd.Type == "dynamic" && !d.cfg.AllowLiveStreams {
		return nil, fmt.Errorf("%w: manifest type=dynamic requires allow_live_streams(true)", errs.ErrConformity)
	}

	resolver := xlink.New(client, d.logger, d.cfg.XLinkMaxResolutions)
	if err := resolver.ResolveMPD(ctx, finalURL, mpd); err != nil {
		return nil, err
	}

	periods, err := model.ResolvePeriods(mpd)
	if err != nil {
		return nil, err
	}
	if d.cfg.ForceDuration > 0 && len(periods) > 0 {
		periods[len(periods)-1].Duration = d.cfg.ForceDuration - periods[len(periods)-1].Start
	}

	stack, err := urlctx.New(finalURL)
	if err != nil {
		return nil, err
	}

	runners := d.runners()

	var assemblies []concat.PeriodAssembly
	for i := range periods {
		period := periods[i]
		if period.Duration <= 0 {
			d.logger.Infof("downloader: skipping Period[%d], zero or negative duration", i)
			continue
		}

		assembly, err := d.assemblePeriod(ctx, client, stack, mpd, period, i, runners)
		if err != nil {
			if d.cfg.FailFast {
				return nil, fmt.Errorf("Period[%d]: %w", i, err)
			}
			d.logger.Errorf("downloader: Period[%d] failed, continuing (fail_fast disabled): %v", i, err)
			continue
		}
		assemblies = append(assemblies, assembly)
	}

	if len(assemblies) == 0 {
		return nil, fmt.Errorf("%w: no Period produced output", errs.ErrUnhandledMediaStream)
	}

	assemblies = concat.FilterShortPeriods(assemblies, d.cfg.MinimumPeriodDuration)

	muxed, err := d.muxAssemblies(ctx, assemblies, outPath, runners)
	if err != nil {
		return nil, err
	}

	placeSubtitleSidecars(assemblies, muxed, d.logger)

	if d.cfg.RecordMetainformation {
		for _, path := range muxed {
			xattrs.Write(path, manifestURL, mpd.ProgramInformation, d.logger)
		}
	}

	return muxed, nil
}

// assemblePeriod selects tracks, resolves addressing, fetches and
// assembles every selected track for one Period, returning the on-disk
// paths concat.Run needs to judge cross-Period compatibility.
func (d *Downloader) assemblePeriod(ctx context.Context, client *transport.Client, stack *urlctx.Stack, mpd *model.MPD, period model.ResolvedPeriod, index int, runners map[string]helper.Runner) (concat.PeriodAssembly, error) {
	prefs := selector.Preferences{
		Quality:        d.cfg.Quality,
		PreferWidth:    d.cfg.PreferVideoWidth,
		PreferHeight:   d.cfg.PreferVideoHeight,
		Language:       d.cfg.PreferLanguage,
		Roles:          d.cfg.PreferRoles,
		FetchAudio:     d.cfg.FetchAudio,
		FetchVideo:     d.cfg.FetchVideo,
		FetchSubtitles: d.cfg.FetchSubtitles,
	}

	sel, err := selector.Select(period.Period, prefs)
	if err != nil {
		return concat.PeriodAssembly{}, err
	}

	fetcher := fetch.New(client, d.logger, fetch.Options{
		FragmentRetryCount:       d.cfg.FragmentRetryCount,
		MaxErrorCount:            d.cfg.MaxErrorCount,
		SleepBetweenRequests:     d.cfg.SleepBetweenRequests,
		RateLimitBytesPerSec:     d.cfg.RateLimitBytesPerSec,
		WithoutContentTypeChecks: d.cfg.WithoutContentTypeChecks,
	})
	for _, o := range d.cfg.Observers {
		fetcher.AddObserver(o)
	}

	asm := assemble.New(fetcher, d.logger, assemble.Options{
		TempDir:             d.cfg.SaveFragmentsTo,
		Keys:                d.cfg.DecryptionKeys,
		DecryptorPreference: d.helperSet(d.cfg.DecryptorHelperNames, runners),
		SubtitleHelpers:     d.helperSet([]string{"mp4box"}, runners),
		KeepAudio:           d.cfg.KeepAudio,
		KeepVideo:           d.cfg.KeepVideo,
	})

	assembly := concat.PeriodAssembly{Index: index, Duration: period.Duration}

	// Audio, video and subtitles are three independent track streams that
	// share only the fetcher's client/bandwidth-meter/error-counter state
	// (guarded by its own mutexes); per spec.md §5 ("segment fetches for
	// distinct tracks execute concurrently") they run as concurrent
	// sub-tasks racing on that shared client, matching the teacher's
	// worker-goroutines-over-a-shared-client shape in dash.Downloader.
	// Within each track, segments are still fetched strictly sequentially
	// by assemble.AssembleTrack to preserve on-disk presentation order.
	var wg sync.WaitGroup
	var audioErr, videoErr error
	var audioRep *model.Representation
	var videoRep *model.Representation
	var audioPath, videoPath string
	var subtitlePaths []string

	if sel.Audio != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refs, err := addressing.Resolve(addressing.Context{
				Stack: stack, MPDBaseURLs: mpd.BaseURLs, Period: period,
				AdaptationSet: sel.AudioSet(), Representation: sel.AudioRep(),
			})
			if err != nil {
				audioErr = fmt.Errorf("resolving audio addressing: %w", err)
				return
			}
			res, err := asm.AssembleTrack(ctx, assemble.Track{Kind: "audio", AdaptationSet: sel.AudioSet(), Representation: sel.AudioRep(), Refs: refs})
			if err != nil {
				audioErr = fmt.Errorf("assembling audio track: %w", err)
				return
			}
			audioRep = sel.AudioRep()
			audioPath = res.Path
		}()
	}

	if sel.Video != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refs, err := addressing.Resolve(addressing.Context{
				Stack: stack, MPDBaseURLs: mpd.BaseURLs, Period: period,
				AdaptationSet: sel.VideoSet(), Representation: sel.VideoRep(),
			})
			if err != nil {
				videoErr = fmt.Errorf("resolving video addressing: %w", err)
				return
			}
			res, err := asm.AssembleTrack(ctx, assemble.Track{Kind: "video", AdaptationSet: sel.VideoSet(), Representation: sel.VideoRep(), Refs: refs})
			if err != nil {
				videoErr = fmt.Errorf("assembling video track: %w", err)
				return
			}
			videoRep = sel.VideoRep()
			videoPath = res.Path
		}()
	}

	if subs := sel.SubtitleReps(); len(subs) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, st := range subs {
				refs, err := addressing.Resolve(addressing.Context{
					Stack: stack, MPDBaseURLs: mpd.BaseURLs, Period: period,
					AdaptationSet: st.Set, Representation: st.Rep,
				})
				if err != nil {
					d.logger.Warnf("downloader: resolving subtitle addressing for %s failed, skipping: %v", st.Rep.ID, err)
					continue
				}
				res, err := asm.AssembleTrack(ctx, assemble.Track{Kind: "text", AdaptationSet: st.Set, Representation: st.Rep, Refs: refs})
				if err != nil {
					d.logger.Warnf("downloader: assembling subtitle track %s failed, skipping: %v", st.Rep.ID, err)
					continue
				}
				subtitlePaths = append(subtitlePaths, res.Path)
				if res.SidecarPath != "" {
					subtitlePaths = append(subtitlePaths, res.SidecarPath)
				}
			}
		}()
	}

	wg.Wait()

	if audioErr != nil {
		return assembly, audioErr
	}
	if videoErr != nil {
		return assembly, videoErr
	}

	assembly.AudioRep = audioRep
	assembly.AudioPath = audioPath
	assembly.VideoRep = videoRep
	assembly.VideoPath = videoPath
	assembly.SubtitlePaths = subtitlePaths

	return assembly, nil
}

// muxAssemblies runs the multi-Period concat decision, then muxes
// whichever set of tracks each resulting output represents.
func (d *Downloader) muxAssemblies(ctx context.Context, assemblies []concat.PeriodAssembly, outPath string, runners map[string]helper.Runner) ([]string, error) {
	concatOpts := concat.Options{
		ConcatenatePeriods:    d.cfg.ConcatenatePeriods,
		MinimumPeriodDuration: d.cfg.MinimumPeriodDuration,
		Helpers:               d.helperSet(d.cfg.ConcatHelperNames, runners),
	}

	ext := strings.TrimPrefix(filepath.Ext(outPath), ".")
	muxDriver := mux.New(runners, d.logger)
	for extKey, order := range d.cfg.MuxerPreference {
		muxDriver.SetPreference(extKey, order)
	}

	// concat.Run decides compatibility internally, but it expects
	// already-muxed containers as its inputs when concatenating; mux each
	// Period's raw tracks into an intermediate container first, then hand
	// those paths to concat.Run.
	muxedPerPeriod := make([]concat.PeriodAssembly, len(assemblies))
	for i, a := range assemblies {
		muxedPath, err := d.muxOnePeriod(ctx, muxDriver, a, ext, i)
		if err != nil {
			return nil, err
		}
		muxedPerPeriod[i] = a
		muxedPerPeriod[i].VideoPath = muxedPath
		muxedPerPeriod[i].AudioPath = ""
	}

	outputs, err := concat.Run(ctx, muxedPerPeriod, outPath, concatOpts, d.logger)
	if err != nil || len(outputs) != len(muxedPerPeriod) {
		return outputs, err
	}
	// Nothing was concatenated: move each Period's muxed file to the name
	// concat.Run reported for it.
	for i, out := range outputs {
		src := muxedPerPeriod[i].VideoPath
		if err := os.Rename(src, out); err != nil && copyFile(src, out) != nil {
			return nil, fmt.Errorf("%w: placing Period[%d] output at %s: %v", errs.ErrIO, muxedPerPeriod[i].Index, out, err)
		}
	}
	return outputs, nil
}

func (d *Downloader) muxOnePeriod(ctx context.Context, driver *mux.Driver, a concat.PeriodAssembly, ext string, index int) (string, error) {
	var inputs []mux.Input
	if a.VideoPath != "" {
		inputs = append(inputs, mux.Input{Kind: "video", Path: a.VideoPath, CopyCompatible: true})
	}
	if a.AudioPath != "" {
		inputs = append(inputs, mux.Input{Kind: "audio", Path: a.AudioPath, CopyCompatible: true})
	}
	if len(inputs) == 0 {
		return "", fmt.Errorf("%w: Period[%d] selected neither audio nor video", errs.ErrUnhandledMediaStream, a.Index)
	}

	tmp := fmt.Sprintf("%s.period%d.%s", strings.TrimSuffix(a.VideoPath, filepath.Ext(a.VideoPath)), index, ext)
	if a.VideoPath == "" {
		tmp = fmt.Sprintf("%s.period%d.%s", strings.TrimSuffix(a.AudioPath, filepath.Ext(a.AudioPath)), index, ext)
	}

	out, err := driver.Mux(ctx, ext, inputs, tmp)
	if err != nil {
		return "", fmt.Errorf("muxing Period[%d]: %w", a.Index, err)
	}
	return out, nil
}

// placeSubtitleSidecars copies each Period's subtitle output(s) next to
// the corresponding final output file, named after it with the
// subtitle's own extension, per spec.md §4.6's "saved alongside the main
// output" language. Copy failures are logged, not fatal: the main
// audio/video output already succeeded.
func placeSubtitleSidecars(assemblies []concat.PeriodAssembly, outputs []string, log logger.Logger) {
	for i, a := range assemblies {
		if len(a.SubtitlePaths) == 0 {
			continue
		}
		outIdx := i
		if outIdx >= len(outputs) {
			outIdx = len(outputs) - 1 // Periods were concatenated into one output
		}
		stem := strings.TrimSuffix(outputs[outIdx], filepath.Ext(outputs[outIdx]))
		for _, sub := range a.SubtitlePaths {
			dest := stem + filepath.Ext(sub)
			if err := copyFile(sub, dest); err != nil {
				log.Warnf("downloader: placing subtitle sidecar %s failed: %v", dest, err)
			}
		}
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// applyXSLT runs the configured stylesheet against raw manifest bytes
// via xsltproc, per spec.md §1's "optional XSLT pre-processing stage
// (invoked as a black-box filter)": the core only shells out to it and
// consumes its stdout, the transform itself is out of scope.
func (d *Downloader) applyXSLT(ctx context.Context, raw []byte) ([]byte, error) {
	tmp, err := os.CreateTemp("", "dashget-manifest-*.xml")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "xsltproc", d.cfg.XSLTStylesheet, tmp.Name())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("xsltproc %s: %w (stderr: %s)", d.cfg.XSLTStylesheet, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

