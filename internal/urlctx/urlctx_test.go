package urlctx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/dashget/internal/model"
	"github.com/ericcug/dashget/internal/urlctx"
)

func TestResolve_InheritsThroughEmptyLevels(t *testing.T) {
	stack, err := urlctx.New("https://cdn.example.com/streams/manifest.mpd")
	require.NoError(t, err)

	base := stack.Resolve(nil, nil, nil)
	assert.Equal(t, "https://cdn.example.com/streams/manifest.mpd", base.String())
}

func TestResolve_MPDLevelBaseURLOverridesOrigin(t *testing.T) {
	stack, err := urlctx.New("https://cdn.example.com/streams/manifest.mpd")
	require.NoError(t, err)

	base := stack.Resolve(
		[]model.BaseURL{{Value: "https://other.example.com/root/"}},
		[]model.BaseURL{{Value: "period1/"}},
	)
	assert.Equal(t, "https://other.example.com/root/period1/", base.String())
}

func TestResolve_RelativePeriodBaseURLResolvesAgainstMPDBase(t *testing.T) {
	stack, err := urlctx.New("https://cdn.example.com/streams/manifest.mpd")
	require.NoError(t, err)

	base := stack.Resolve(
		nil,
		[]model.BaseURL{{Value: "segments/"}},
	)
	assert.Equal(t, "https://cdn.example.com/streams/segments/", base.String())
}

func TestAlternatives_CrossProductOfFailoverBaseURLs(t *testing.T) {
	stack, err := urlctx.New("https://cdn.example.com/manifest.mpd")
	require.NoError(t, err)

	alts := stack.Alternatives(
		[]model.BaseURL{{Value: "https://a.example.com/"}, {Value: "https://b.example.com/"}},
	)
	require.Len(t, alts, 2)
	assert.Equal(t, "https://a.example.com/", alts[0].String())
	assert.Equal(t, "https://b.example.com/", alts[1].String())
}

func TestResolvePath_ResolvesSegmentPathAgainstBase(t *testing.T) {
	stack, err := urlctx.New("https://cdn.example.com/streams/manifest.mpd")
	require.NoError(t, err)

	base := stack.Resolve(nil)
	seg, err := urlctx.ResolvePath(base, "chunk-1.m4s")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/streams/chunk-1.m4s", seg.String())
}

func TestAppendManifestQuery_AddsTokenWhenSegmentHasNoQuery(t *testing.T) {
	stack, err := urlctx.New("https://cdn.example.com/streams/manifest.mpd?token=abc123")
	require.NoError(t, err)

	base := stack.Resolve(nil)
	seg, err := urlctx.ResolvePath(base, "chunk-1.m4s")
	require.NoError(t, err)

	stack.AppendManifestQuery(seg)
	assert.Equal(t, "token=abc123", seg.RawQuery)
}

func TestAppendManifestQuery_LeavesExistingSegmentQueryUntouched(t *testing.T) {
	stack, err := urlctx.New("https://cdn.example.com/streams/manifest.mpd?token=abc123")
	require.NoError(t, err)

	base := stack.Resolve(nil)
	seg, err := urlctx.ResolvePath(base, "chunk-1.m4s?sig=xyz")
	require.NoError(t, err)

	stack.AppendManifestQuery(seg)
	assert.Equal(t, "sig=xyz", seg.RawQuery)
}
