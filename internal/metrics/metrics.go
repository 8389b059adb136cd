package metrics

import (
	"fmt"

	"contrib.go.opencensus.io/exporter/stackdriver"
	"github.com/nanato/wp-github-updates/internal/config"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	CounterGitHubRequests = stats.Int64("github_requests", "Number of GitHub API requests", "1")
	GaugeRateLimit        = stats.Int64("github_rate_limit_remaining", "Remaining GitHub API requests", "1")
	CounterDownloads      = stats.Int64("downloads", "Number of archive downloads", "1")
	CounterFallbacks      = stats.Int64("release_fallbacks", "Number of default branch fallbacks", "1")
	CounterInstalls       = stats.Int64("installs", "Number of package installations", "1")
	CounterCacheHit       = stats.Int64("cache_hits", "Number of cache hits", "1")
	CounterCacheMiss      = stats.Int64("cache_misses", "Number of cache misses", "1")

	TagStatus      = tag.MustNewKey("status")
	TagResult      = tag.MustNewKey("result")
	TagPackageType = tag.MustNewKey("package_type")
)

var views = []*view.View{
	{
		Name:        "github_requests",
		Measure:     CounterGitHubRequests,
		Description: "Number of GitHub API requests",
		TagKeys:     []tag.Key{TagStatus},
		Aggregation: view.Count(),
	},
	{
		Name:        "github_rate_limit_remaining",
		Measure:     GaugeRateLimit,
		Description: "Remaining GitHub API requests",
		Aggregation: view.LastValue(),
	},
	{
		Name:        "downloads",
		Measure:     CounterDownloads,
		Description: "Number of archive downloads",
		TagKeys:     []tag.Key{TagResult},
		Aggregation: view.Count(),
	},
	{
		Name:        "release_fallbacks",
		Measure:     CounterFallbacks,
		Description: "Number of default branch fallbacks",
		Aggregation: view.Count(),
	},
	{
		Name:        "installs",
		Measure:     CounterInstalls,
		Description: "Number of package installations",
		TagKeys:     []tag.Key{TagPackageType, TagResult},
		Aggregation: view.Count(),
	},
	{
		Name:        "cache_hits",
		Measure:     CounterCacheHit,
		Description: "Number of cache hits",
		Aggregation: view.Count(),
	},
	{
		Name:        "cache_misses",
		Measure:     CounterCacheMiss,
		Description: "Number of cache misses",
		Aggregation: view.Count(),
	},
}

func RegisterViews() error {
	return view.Register(views...)
}

func NewExporter(cfg *config.ServerConfig) (*stackdriver.Exporter, error) {
	err := RegisterViews()
	if err != nil {
		return nil, err
	}
	exporter, err := stackdriver.NewExporter(stackdriver.Options{
		ProjectID:    cfg.ProjectID,
		MetricPrefix: fmt.Sprintf("wp-github-updates/%s", cfg.Stage),
	})
	if err != nil {
		return nil, err
	}
	err = exporter.StartMetricsExporter()
	if err != nil {
		return nil, err
	}
	return exporter, nil
}
