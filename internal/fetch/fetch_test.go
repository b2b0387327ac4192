package fetch_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/dashget/internal/addressing"
	"github.com/ericcug/dashget/internal/fetch"
	"github.com/ericcug/dashget/internal/logger"
	"github.com/ericcug/dashget/internal/transport"
)

func mustRef(t *testing.T, rawURL string) addressing.SegmentRef {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return addressing.SegmentRef{URL: u}
}

func newTestFetcher(t *testing.T, opts fetch.Options) *fetch.Fetcher {
	t.Helper()
	client, err := transport.New(transport.Options{})
	require.NoError(t, err)
	return fetch.New(client, logger.NewNop(), opts)
}

func TestFetchSegment_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		fmt.Fprint(w, "segment data")
	}))
	defer server.Close()

	f := newTestFetcher(t, fetch.Options{})
	data, err := f.FetchSegment(context.Background(), "video", mustRef(t, server.URL))
	require.NoError(t, err)
	assert.Equal(t, "segment data", string(data))
}

func TestFetchSegment_RetriesTransientThenSucceeds(t *testing.T) {
	var count int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&count, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	f := newTestFetcher(t, fetch.Options{FragmentRetryCount: 1})
	data, err := f.FetchSegment(context.Background(), "video", mustRef(t, server.URL))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(3), atomic.LoadInt32(&count))
}

func TestFetchSegment_NonTransientExhaustsRetryBudget(t *testing.T) {
	var count int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newTestFetcher(t, fetch.Options{FragmentRetryCount: 2})
	_, err := f.FetchSegment(context.Background(), "video", mustRef(t, server.URL))
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&count), "initial attempt + 2 retries")
}

func TestFetchSegment_MaxErrorCountAbortsAcrossSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newTestFetcher(t, fetch.Options{FragmentRetryCount: 0, MaxErrorCount: 1})
	_, err1 := f.FetchSegment(context.Background(), "video", mustRef(t, server.URL))
	require.Error(t, err1)

	_, err2 := f.FetchSegment(context.Background(), "video", mustRef(t, server.URL))
	require.Error(t, err2)
	assert.ErrorIs(t, err2, fetch.ErrMaxErrorsExceeded)
}

func TestFetchSegment_RejectsUnrecognizedContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "{}")
	}))
	defer server.Close()

	f := newTestFetcher(t, fetch.Options{FragmentRetryCount: 0})
	_, err := f.FetchSegment(context.Background(), "video", mustRef(t, server.URL))
	require.Error(t, err)
}

func TestFetchSegment_WithoutContentTypeChecksAcceptsAnything(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "not really a segment")
	}))
	defer server.Close()

	f := newTestFetcher(t, fetch.Options{WithoutContentTypeChecks: true})
	data, err := f.FetchSegment(context.Background(), "video", mustRef(t, server.URL))
	require.NoError(t, err)
	assert.Equal(t, "not really a segment", string(data))
}

func TestFetchSegment_ByteRangeHeaderSent(t *testing.T) {
	var gotRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.Header().Set("Content-Type", "video/mp4")
		fmt.Fprint(w, "x")
	}))
	defer server.Close()

	f := newTestFetcher(t, fetch.Options{})
	ref := mustRef(t, server.URL)
	ref.ByteRange = &addressing.ByteRange{Start: 0, End: 999}
	_, err := f.FetchSegment(context.Background(), "video", ref)
	require.NoError(t, err)
	assert.Equal(t, "bytes=0-999", gotRange)
}

func TestFetchSegment_InlineDataNeverFetched(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	f := newTestFetcher(t, fetch.Options{})
	ref := addressing.SegmentRef{InlineData: []byte("inline bytes")}
	data, err := f.FetchSegment(context.Background(), "video", ref)
	require.NoError(t, err)
	assert.Equal(t, "inline bytes", string(data))
	assert.False(t, called)
}

func TestFetchSegment_ContextCancellationStopsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := newTestFetcher(t, fetch.Options{})
	_, err := f.FetchSegment(ctx, "video", mustRef(t, server.URL))
	require.Error(t, err)
}

type recordingObserver struct {
	done []string
}

func (r *recordingObserver) OnChunk(track string, n int, bps float64) {}
func (r *recordingObserver) OnSegmentDone(track string, ref addressing.SegmentRef, total int, bps float64) {
	r.done = append(r.done, track)
}

func TestFetchSegment_NotifiesObserversOnCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mp4")
		fmt.Fprint(w, "a")
	}))
	defer server.Close()

	f := newTestFetcher(t, fetch.Options{})
	obs := &recordingObserver{}
	f.AddObserver(obs)

	_, err := f.FetchSegment(context.Background(), "audio", mustRef(t, server.URL))
	require.NoError(t, err)
	require.Len(t, obs.done, 1)
	assert.Equal(t, "audio", obs.done[0])
}
