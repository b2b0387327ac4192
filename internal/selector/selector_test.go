package selector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/dashget/internal/model"
	"github.com/ericcug/dashget/internal/selector"
)

func rep(id string, bandwidth, width, height int) model.Representation {
	return model.Representation{ID: id, Bandwidth: bandwidth, Width: width, Height: height}
}

func TestSelect_PicksBestBandwidthByDefault(t *testing.T) {
	period := &model.Period{
		AdaptationSets: []model.AdaptationSet{
			{
				MimeType: "video/mp4",
				Representations: []model.Representation{
					rep("v-lo", 500_000, 640, 360),
					rep("v-hi", 4_000_000, 1920, 1080),
					rep("v-mid", 1_500_000, 1280, 720),
				},
			},
		},
	}

	sel, err := selector.Select(period, selector.Preferences{
		Quality: selector.QualityBest, FetchVideo: true,
	})
	require.NoError(t, err)
	require.NotNil(t, sel.VideoRep())
	assert.Equal(t, "v-hi", sel.VideoRep().ID)
}

func TestSelect_Worst(t *testing.T) {
	period := &model.Period{
		AdaptationSets: []model.AdaptationSet{
			{
				MimeType: "video/mp4",
				Representations: []model.Representation{
					rep("v-lo", 500_000, 640, 360),
					rep("v-hi", 4_000_000, 1920, 1080),
				},
			},
		},
	}

	sel, err := selector.Select(period, selector.Preferences{
		Quality: selector.QualityWorst, FetchVideo: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "v-lo", sel.VideoRep().ID)
}

func TestSelect_PreferHeightPicksClosest(t *testing.T) {
	period := &model.Period{
		AdaptationSets: []model.AdaptationSet{
			{
				MimeType: "video/mp4",
				Representations: []model.Representation{
					rep("v-360", 500_000, 640, 360),
					rep("v-720", 1_500_000, 1280, 720),
					rep("v-1080", 4_000_000, 1920, 1080),
				},
			},
		},
	}

	sel, err := selector.Select(period, selector.Preferences{
		FetchVideo: true, PreferHeight: 700,
	})
	require.NoError(t, err)
	assert.Equal(t, "v-720", sel.VideoRep().ID)
}

func TestSelect_LanguageExactBeatsLanguageOnly(t *testing.T) {
	period := &model.Period{
		AdaptationSets: []model.AdaptationSet{
			{MimeType: "audio/mp4", Lang: "en", Representations: []model.Representation{rep("a-en", 128_000, 0, 0)}},
			{MimeType: "audio/mp4", Lang: "en-US", Representations: []model.Representation{rep("a-en-us", 128_000, 0, 0)}},
		},
	}

	sel, err := selector.Select(period, selector.Preferences{
		FetchAudio: true, Language: "en-US",
	})
	require.NoError(t, err)
	assert.Equal(t, "a-en-us", sel.AudioRep().ID)
}

func TestSelect_LanguageFallsThroughWhenNoMatch(t *testing.T) {
	period := &model.Period{
		AdaptationSets: []model.AdaptationSet{
			{MimeType: "audio/mp4", Lang: "fr", Representations: []model.Representation{rep("a-fr", 128_000, 0, 0)}},
		},
	}

	sel, err := selector.Select(period, selector.Preferences{
		FetchAudio: true, Language: "de",
	})
	require.NoError(t, err)
	require.NotNil(t, sel.AudioRep())
	assert.Equal(t, "a-fr", sel.AudioRep().ID)
}

func TestSelect_RolePreferenceOrderedFirstMatchWins(t *testing.T) {
	period := &model.Period{
		AdaptationSets: []model.AdaptationSet{
			{
				MimeType:         "audio/mp4",
				Roles:            []model.Role{{Value: "alternate"}},
				Representations:  []model.Representation{rep("a-alt", 128_000, 0, 0)},
			},
			{
				MimeType:         "audio/mp4",
				Roles:            []model.Role{{Value: "main"}},
				Representations:  []model.Representation{rep("a-main", 128_000, 0, 0)},
			},
		},
	}

	sel, err := selector.Select(period, selector.Preferences{
		FetchAudio: true, Roles: []string{"commentary", "main"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a-main", sel.AudioRep().ID)
}

func TestSelect_QualityRankingOverridesBandwidth(t *testing.T) {
	lowRank, highRank := 1, 2
	hi := rep("v-hi-bw-lo-rank", 4_000_000, 1920, 1080)
	hi.QualityRanking = &lowRank
	lo := rep("v-lo-bw-hi-rank", 500_000, 640, 360)
	lo.QualityRanking = &highRank

	period := &model.Period{
		AdaptationSets: []model.AdaptationSet{
			{MimeType: "video/mp4", Representations: []model.Representation{lo, hi}},
		},
	}

	sel, err := selector.Select(period, selector.Preferences{
		Quality: selector.QualityBest, FetchVideo: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "v-hi-bw-lo-rank", sel.VideoRep().ID, "lower qualityRanking value wins regardless of bandwidth")
}

func TestSelect_SubtitlesRecognizedByMimeType(t *testing.T) {
	period := &model.Period{
		AdaptationSets: []model.AdaptationSet{
			{MimeType: "text/vtt", Lang: "en", Representations: []model.Representation{rep("sub-en", 1000, 0, 0)}},
			{MimeType: "application/octet-stream", Representations: []model.Representation{rep("sub-unknown", 1000, 0, 0)}},
		},
	}

	sel, err := selector.Select(period, selector.Preferences{FetchSubtitles: true})
	require.NoError(t, err)
	reps := sel.SubtitleReps()
	require.Len(t, reps, 1)
	assert.Equal(t, "sub-en", reps[0].Rep.ID)
}

func TestSelect_SubtitlesRecognizedByCodec(t *testing.T) {
	withCodec := rep("sub-stpp", 1000, 0, 0)
	withCodec.Codecs = "stpp"
	period := &model.Period{
		AdaptationSets: []model.AdaptationSet{
			{MimeType: "application/mp4", Representations: []model.Representation{withCodec}},
		},
	}

	sel, err := selector.Select(period, selector.Preferences{FetchSubtitles: true})
	require.NoError(t, err)
	require.Len(t, sel.Subtitles, 1)
}

func TestSelect_NoVideoCandidatesLeavesVideoNil(t *testing.T) {
	period := &model.Period{
		AdaptationSets: []model.AdaptationSet{
			{MimeType: "audio/mp4", Representations: []model.Representation{rep("a", 128_000, 0, 0)}},
		},
	}

	sel, err := selector.Select(period, selector.Preferences{FetchAudio: true, FetchVideo: true})
	require.NoError(t, err)
	assert.Nil(t, sel.VideoRep())
	assert.NotNil(t, sel.AudioRep())
}
