package addressing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/dashget/internal/addressing"
	"github.com/ericcug/dashget/internal/model"
	"github.com/ericcug/dashget/internal/urlctx"
)

func mustStack(t *testing.T, manifestURL string) *urlctx.Stack {
	t.Helper()
	s, err := urlctx.New(manifestURL)
	require.NoError(t, err)
	return s
}

func TestResolveNumberTemplate_OffByOne(t *testing.T) {
	stack := mustStack(t, "https://x/m.mpd")
	startNumber := int64(1)
	rep := model.Representation{
		ID: "video-1",
		SegmentTemplate: &model.SegmentTemplate{
			Timescale:      90000,
			Duration:       540000,
			StartNumber:    &startNumber,
			Initialization: "init-$RepresentationID$.m4s",
			Media:          "seg-$RepresentationID$-$Number$.m4s",
		},
	}
	as := model.AdaptationSet{}
	period := model.ResolvedPeriod{Period: &model.Period{}, Duration: 30 * time.Second}

	refs, err := addressing.Resolve(addressing.Context{
		Stack:          stack,
		Period:         period,
		AdaptationSet:  &as,
		Representation: &rep,
	})
	require.NoError(t, err)

	require.Len(t, refs, 6) // init + 5 media
	assert.True(t, refs[0].IsInit)
	for _, r := range refs[1:] {
		assert.False(t, r.IsInit)
		assert.Contains(t, r.URL.Path, "seg-video-1-")
	}
	assert.Contains(t, refs[1].URL.Path, "seg-video-1-1.m4s")
	assert.Contains(t, refs[5].URL.Path, "seg-video-1-5.m4s")
}

func TestResolveTimeTemplate_NegativeRepeatFillsPeriodEnd(t *testing.T) {
	stack := mustStack(t, "https://x/m.mpd")
	tZero := uint64(0)
	rep := model.Representation{
		ID: "a1",
		SegmentTemplate: &model.SegmentTemplate{
			Timescale:      90000,
			Initialization: "init.m4s",
			Media:          "seg-$Time$.m4s",
			Timeline: &model.SegmentTimeline{
				Segments: []model.S{
					{T: &tZero, D: 90000, R: -1},
				},
			},
		},
	}
	period := model.ResolvedPeriod{Period: &model.Period{}, Duration: 10 * time.Second}

	refs, err := addressing.Resolve(addressing.Context{
		Stack:          stack,
		Period:         period,
		AdaptationSet:  &model.AdaptationSet{},
		Representation: &rep,
	})
	require.NoError(t, err)
	require.Len(t, refs, 11) // init + 10 media
	assert.True(t, refs[0].IsInit)
	assert.Contains(t, refs[1].URL.Path, "seg-0.m4s")
	assert.Contains(t, refs[10].URL.Path, "seg-810000.m4s")
}

func TestSegmentRefs_ExactlyOneInitFirst(t *testing.T) {
	stack := mustStack(t, "https://x/m.mpd")
	startNumber := int64(1)
	rep := model.Representation{
		ID: "v",
		SegmentTemplate: &model.SegmentTemplate{
			Timescale:      1,
			Duration:       2,
			StartNumber:    &startNumber,
			Initialization: "init.m4s",
			Media:          "seg-$Number$.m4s",
		},
	}
	period := model.ResolvedPeriod{Period: &model.Period{}, Duration: 6 * time.Second}
	refs, err := addressing.Resolve(addressing.Context{
		Stack: stack, Period: period,
		AdaptationSet: &model.AdaptationSet{}, Representation: &rep,
	})
	require.NoError(t, err)

	initCount := 0
	for i, r := range refs {
		if r.IsInit {
			initCount++
			assert.Equal(t, 0, i, "init must be first")
		}
	}
	assert.Equal(t, 1, initCount)
}

func TestQueryInheritance(t *testing.T) {
	stack := mustStack(t, "https://x/m.mpd?tok=abc")
	startNumber := int64(1)
	rep := model.Representation{
		ID: "v",
		SegmentTemplate: &model.SegmentTemplate{
			Timescale:   1,
			Duration:    1,
			StartNumber: &startNumber,
			Media:       "seg/$Number$.m4v",
		},
	}
	period := model.ResolvedPeriod{Period: &model.Period{}, Duration: 1 * time.Second}
	refs, err := addressing.Resolve(addressing.Context{
		Stack: stack, Period: period,
		AdaptationSet: &model.AdaptationSet{}, Representation: &rep,
	})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "tok=abc", refs[0].URL.RawQuery)
	assert.Equal(t, "/seg/1.m4v", refs[0].URL.Path)
}

func TestQueryInheritance_SegmentOwnQueryPreserved(t *testing.T) {
	stack := mustStack(t, "https://x/m.mpd?tok=abc")
	startNumber := int64(1)
	rep := model.Representation{
		ID: "v",
		SegmentTemplate: &model.SegmentTemplate{
			Timescale:   1,
			Duration:    1,
			StartNumber: &startNumber,
			Media:       "seg/$Number$.m4v?own=1",
		},
	}
	period := model.ResolvedPeriod{Period: &model.Period{}, Duration: 1 * time.Second}
	refs, err := addressing.Resolve(addressing.Context{
		Stack: stack, Period: period,
		AdaptationSet: &model.AdaptationSet{}, Representation: &rep,
	})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "own=1", refs[0].URL.RawQuery)
}

func TestSubstituteTemplate_PaddedNumber(t *testing.T) {
	out, err := addressing.SubstituteTemplate("chunk-$Number%05d$.m4s", "r", ptrU(7), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "chunk-00007.m4s", out)
}

func TestSubstituteTemplate_LiteralDollar(t *testing.T) {
	out, err := addressing.SubstituteTemplate("price$$-$RepresentationID$", "r1", nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "price$-r1", out)
}

func TestDecodeDataURL(t *testing.T) {
	data, err := addressing.DecodeDataURL("data:application/mp4;base64,AAAA")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func ptrU(v uint64) *uint64 { return &v }
