package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/nanato/wp-github-updates/internal/observe"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
)

func TestObserver(t *testing.T) {
	require.NoError(t, RegisterViews())
	defer view.Unregister(views...)

	ctx := context.Background()
	o := Observer()
	o.Observe(ctx, observe.Event{Kind: observe.ResponseReceived, Component: "github", StatusCode: 200, Fields: map[string]any{"rate_limit_remaining": 42}})
	o.Observe(ctx, observe.Event{Kind: observe.ResponseReceived, Component: "github", StatusCode: 404, Fields: map[string]any{"rate_limit_remaining": 41}})
	o.Observe(ctx, observe.Event{Kind: observe.FallbackTaken, Component: "resolver"})
	o.Observe(ctx, observe.Event{Kind: observe.FailureRaised, Component: "download", Err: errors.New("x")})
	RecordInstall(ctx, "plugin", nil)

	rows, err := view.RetrieveData("github_requests")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = view.RetrieveData("github_rate_limit_remaining")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, float64(41), rows[0].Data.(*view.LastValueData).Value)

	rows, err = view.RetrieveData("release_fallbacks")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0].Data.(*view.CountData).Value)

	rows, err = view.RetrieveData("downloads")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = view.RetrieveData("installs")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
