// Command dashget is the thin CLI front end that exercises the download
// engine's Builder: parse flags, build a logger, wire the Downloader,
// run, handle cancellation signals. Grounded on the teacher's
// cmd/server/main.go numbered-step layout, adapted from "start an HTTP
// server and wait for a shutdown signal" to "run each requested download
// in turn, cancellably, and exit".
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ericcug/dashget/internal/downloader"
	"github.com/ericcug/dashget/internal/logger"
)

// batchJob mirrors one entry of an optional JSON batch file, following
// the teacher's config.LoadConfig shape (read file -> encoding/json ->
// validate) even though the download engine itself has no on-disk
// config of its own — the builder pattern is the configuration layer.
type batchJob struct {
	ManifestURL string `json:"manifest_url"`
	Output      string `json:"output"`
	Quality     string `json:"quality,omitempty"`
	Language    string `json:"language,omitempty"`
}

func main() {
	// 1. Parse command-line arguments.
	manifestURL := flag.String("url", "", "MPD manifest URL to download")
	output := flag.String("o", "out.mp4", "output file path (extension selects the muxer)")
	quality := flag.String("quality", "best", "best, worst, or intermediate")
	language := flag.String("lang", "", "preferred audio/subtitle language (RFC 5646)")
	audioOnly := flag.Bool("audio-only", false, "fetch only the audio track")
	videoOnly := flag.Bool("video-only", false, "fetch only the video track")
	subtitles := flag.Bool("subtitles", false, "fetch subtitle tracks")
	allowLive := flag.Bool("allow-live", false, "permit type=dynamic manifests")
	retryCount := flag.Int("fragment-retry-count", 10, "per-segment non-transient retry budget")
	maxErrors := flag.Int("max-error-count", 30, "process-wide non-transient error budget")
	rateLimit := flag.String("rate-limit", "", "byte-per-second cap, e.g. 500000")
	batchFile := flag.String("batch", "", "path to a JSON batch job file (overrides -url/-o)")
	logLevel := flag.String("L", "info", "log level (error, warn, info, debug)")
	flag.Parse()

	// 2. Initialize logger.
	log := logger.NewLogger(*logLevel)
	log.Infof("dashget starting")

	jobs, err := loadJobs(*batchFile, *manifestURL, *output, *quality, *language)
	if err != nil {
		log.Errorf("failed to load jobs: %v", err)
		os.Exit(1)
	}

	// 3. Build a cancellable context tied to SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 4. Run each job in turn with the shared builder options.
	exitCode := 0
	for _, job := range jobs {
		b := downloader.New().
			QualityPref(job.Quality).
			PreferLanguage(job.Language).
			FetchSubtitlesOpt(*subtitles).
			AllowLiveStreams(*allowLive).
			FragmentRetryCount(*retryCount).
			MaxErrorCount(*maxErrors).
			Verbosity(verbosityFromLevel(*logLevel))

		if *audioOnly {
			b = b.AudioOnly()
		} else if *videoOnly {
			b = b.VideoOnly()
		}
		if *rateLimit != "" {
			bps, err := strconv.ParseInt(*rateLimit, 10, 64)
			if err != nil {
				log.Errorf("invalid -rate-limit %q: %v", *rateLimit, err)
				os.Exit(1)
			}
			b = b.WithRateLimit(bps)
		}

		dl := b.Build()
		log.Infof("downloading %s -> %s", job.ManifestURL, job.Output)

		outputs, err := dl.Download(ctx, job.ManifestURL, job.Output)
		if err != nil {
			log.Errorf("download failed for %s: %v", job.ManifestURL, err)
			exitCode = 1
			continue
		}
		log.Infof("wrote %s", strings.Join(outputs, ", "))
	}

	os.Exit(exitCode)
}

// loadJobs builds the list of downloads to run: either the single
// flag-specified job, or every entry in a batch file when -batch is set.
func loadJobs(batchPath, url, output, quality, language string) ([]batchJob, error) {
	if batchPath == "" {
		if url == "" {
			return nil, fmt.Errorf("either -url or -batch must be set")
		}
		return []batchJob{{ManifestURL: url, Output: output, Quality: quality, Language: language}}, nil
	}

	data, err := os.ReadFile(batchPath)
	if err != nil {
		return nil, fmt.Errorf("reading batch file %s: %w", batchPath, err)
	}
	var jobs []batchJob
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parsing batch file %s: %w", batchPath, err)
	}
	for i, j := range jobs {
		if j.ManifestURL == "" {
			return nil, fmt.Errorf("batch job[%d] missing manifest_url", i)
		}
		if j.Output == "" {
			jobs[i].Output = fmt.Sprintf("out-%d.mp4", i+1)
		}
		if j.Quality == "" {
			jobs[i].Quality = quality
		}
	}
	return jobs, nil
}

func verbosityFromLevel(level string) int {
	switch strings.ToLower(level) {
	case "debug":
		return 2
	case "info":
		return 1
	default:
		return 0
	}
}
