package xlink_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/dashget/internal/logger"
	"github.com/ericcug/dashget/internal/model"
	"github.com/ericcug/dashget/internal/transport"
	"github.com/ericcug/dashget/internal/xlink"
)

func newResolver(t *testing.T, handler http.HandlerFunc, maxResolutions int) (*xlink.Resolver, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	client, err := transport.New(transport.Options{})
	require.NoError(t, err)
	return xlink.New(client, logger.NewNop(), maxResolutions), server
}

func TestResolveMPD_SplicesRemotePeriod(t *testing.T) {
	resolver, server := newResolver(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<Period id="spliced"><AdaptationSet id="1"></AdaptationSet></Period>`)
	}, 0)
	defer server.Close()

	mpd := &model.MPD{
		Periods: []model.Period{
			{Xlink: model.Xlink{Href: server.URL}},
		},
	}

	err := resolver.ResolveMPD(context.Background(), server.URL+"/m.mpd", mpd)
	require.NoError(t, err)
	require.Len(t, mpd.Periods, 1)
	assert.Equal(t, "spliced", mpd.Periods[0].ID)
	require.Len(t, mpd.Periods[0].AdaptationSets, 1)
}

func TestResolveMPD_ManifestRelativeHrefResolvesAgainstManifestURL(t *testing.T) {
	resolver, server := newResolver(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/periods/p2.xml", r.URL.Path)
		fmt.Fprint(w, `<Period id="spliced"></Period>`)
	}, 0)
	defer server.Close()

	mpd := &model.MPD{
		Periods: []model.Period{
			{Xlink: model.Xlink{Href: "periods/p2.xml"}},
		},
	}

	err := resolver.ResolveMPD(context.Background(), server.URL+"/m.mpd", mpd)
	require.NoError(t, err)
	require.Len(t, mpd.Periods, 1)
	assert.Equal(t, "spliced", mpd.Periods[0].ID)
}

func TestResolveMPD_ResolveToZeroRemovesPeriod(t *testing.T) {
	resolver, server := newResolver(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("resolve-to-zero period must never be fetched")
	}, 0)
	defer server.Close()

	mpd := &model.MPD{
		Periods: []model.Period{
			{Xlink: model.Xlink{Href: model.ResolveToZeroHref}},
			{ID: "kept"},
		},
	}

	err := resolver.ResolveMPD(context.Background(), server.URL+"/m.mpd", mpd)
	require.NoError(t, err)
	require.Len(t, mpd.Periods, 1)
	assert.Equal(t, "kept", mpd.Periods[0].ID)
}

func TestResolveMPD_RecursionCapExceeded(t *testing.T) {
	var hits int
	resolver, server := newResolver(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprintf(w, `<Period xmlns:xlink="http://www.w3.org/1999/xlink" xlink:href="%s"></Period>`, r.URL.String())
	}, 3)
	defer server.Close()

	mpd := &model.MPD{
		Periods: []model.Period{
			{Xlink: model.Xlink{Href: server.URL}},
		},
	}

	err := resolver.ResolveMPD(context.Background(), server.URL+"/m.mpd", mpd)
	require.NoError(t, err)
	// the resolver logs and drops the subtree once the cap is hit rather
	// than propagating the error, so no Periods survive a chain that never
	// terminates within the budget.
	assert.Empty(t, mpd.Periods)
	assert.LessOrEqual(t, hits, 3)
}

func TestResolveMPD_NestedAdaptationSetXlinkResolves(t *testing.T) {
	resolver, server := newResolver(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<AdaptationSet id="resolved"></AdaptationSet>`)
	}, 0)
	defer server.Close()

	mpd := &model.MPD{
		Periods: []model.Period{
			{
				ID: "p0",
				AdaptationSets: []model.AdaptationSet{
					{Xlink: model.Xlink{Href: server.URL}},
				},
			},
		},
	}

	err := resolver.ResolveMPD(context.Background(), server.URL+"/m.mpd", mpd)
	require.NoError(t, err)
	require.Len(t, mpd.Periods[0].AdaptationSets, 1)
	assert.Equal(t, "resolved", mpd.Periods[0].AdaptationSets[0].ID)
}

func TestResolveMPD_NoXlinkLeavesPeriodUntouched(t *testing.T) {
	resolver, server := newResolver(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no network call expected when no xlink:href is present")
	}, 0)
	defer server.Close()

	mpd := &model.MPD{
		Periods: []model.Period{{ID: "plain"}},
	}

	err := resolver.ResolveMPD(context.Background(), server.URL+"/m.mpd", mpd)
	require.NoError(t, err)
	require.Len(t, mpd.Periods, 1)
	assert.Equal(t, "plain", mpd.Periods[0].ID)
}
