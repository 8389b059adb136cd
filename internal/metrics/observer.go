package metrics

import (
	"context"
	"strconv"

	"github.com/nanato/wp-github-updates/internal/observe"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

type observer struct{}

// Observer records pipeline events as opencensus measurements.
func Observer() observe.Observer {
	return observer{}
}

func record(ctx context.Context, key tag.Key, value string, m stats.Measurement) {
	_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(key, value)}, m)
}

func (observer) Observe(ctx context.Context, e observe.Event) {
	switch {
	case e.Kind == observe.ResponseReceived && e.Component == "github":
		record(ctx, TagStatus, strconv.Itoa(e.StatusCode), CounterGitHubRequests.M(1))
		if remaining, ok := e.Fields["rate_limit_remaining"].(int); ok {
			stats.Record(ctx, GaugeRateLimit.M(int64(remaining)))
		}
	case e.Kind == observe.ResponseReceived && e.Component == "mirror":
		record(ctx, TagResult, "mirror", CounterDownloads.M(1))
	case e.Kind == observe.ResponseReceived && e.Component == "download":
		record(ctx, TagResult, strconv.Itoa(e.StatusCode), CounterDownloads.M(1))
	case e.Kind == observe.FailureRaised && e.Component == "download":
		record(ctx, TagResult, "failed", CounterDownloads.M(1))
	case e.Kind == observe.FallbackTaken:
		stats.Record(ctx, CounterFallbacks.M(1))
	}
}

// RecordInstall counts a finished installation.
func RecordInstall(ctx context.Context, packageType string, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	_ = stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(TagPackageType, packageType),
		tag.Upsert(TagResult, result),
	}, CounterInstalls.M(1))
}
