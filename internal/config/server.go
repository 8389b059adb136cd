package config

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kelseyhightower/envconfig"
	"github.com/nanato/wp-github-updates/internal/download"
	"github.com/nanato/wp-github-updates/internal/githubapi"
	"github.com/nanato/wp-github-updates/internal/observe"
	"github.com/nanato/wp-github-updates/internal/store"
	"github.com/nanato/wp-github-updates/internal/wordpress"
)

type ServerConfig struct {
	Stage            string `envconfig:"STAGE" default:"dev"`
	ProjectID        string `envconfig:"GOOGLE_CLOUD_PROJECT_ID" default:"wp-github-updates"`
	Port             string `envconfig:"PORT" default:"8080"`
	BindAddress      string `envconfig:"BIND_ADDRESS"`
	AdminAccessToken string `envconfig:"ADMIN_ACCESS_TOKEN" required:"true"`

	// GitHubToken is used until a token is saved in the settings.
	GitHubToken      string        `envconfig:"GITHUB_TOKEN"`
	GitHubAPIURL     string        `envconfig:"GITHUB_API_URL" default:"https://api.github.com"`
	UserAgent        string        `envconfig:"USER_AGENT" default:"wp-github-updates"`
	APITimeout       time.Duration `envconfig:"API_TIMEOUT" default:"10s"`
	DownloadTimeout  time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"60s"`
	DownloadRetries  int           `envconfig:"DOWNLOAD_RETRIES" default:"0"`
	ZipValidation    string        `envconfig:"ZIP_VALIDATION" default:"structural"`
	DownloadTempDir  string        `envconfig:"DOWNLOAD_TEMP_DIR"`

	ContentDir    string `envconfig:"WP_CONTENT_DIR" required:"true"`
	WordPressPath string `envconfig:"WP_PATH"`
	WPCLIPath     string `envconfig:"WP_CLI_PATH" default:"wp"`

	StoreBackend      string `envconfig:"STORE_BACKEND" default:"file"`
	StoreFile         string `envconfig:"STORE_FILE" default:"data/wp-github-updates.yaml"`
	FirestorePrefix   string `envconfig:"FIRESTORE_COLLECTION_PREFIX" default:"dev"`
	ArchiveBucket     string `envconfig:"CLOUDFLARE_R2_BUCKET"`
	R2AccessKeyID     string `envconfig:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	R2SecretAccessKey string `envconfig:"CLOUDFLARE_R2_SECRET_ACCESS_KEY"`
	CloudflareAccount string `envconfig:"CLOUDFLARE_ACCOUNT_ID"`

	DisableRequestCache bool `envconfig:"DISABLE_REQUEST_CACHE"`
	DisableMetrics      bool `envconfig:"DISABLE_METRICS"`
	Version             string
}

func NewServerConfigFromEnv() (*ServerConfig, error) {
	var sCfg ServerConfig
	err := envconfig.Process("", &sCfg)
	if err != nil {
		return nil, err
	}
	if err := sCfg.validate(); err != nil {
		return nil, err
	}
	return &sCfg, nil
}

func (s *ServerConfig) validate() error {
	switch download.ValidationMode(s.ZipValidation) {
	case download.ModeStructural, download.ModeSignature:
	default:
		return fmt.Errorf("invalid ZIP_VALIDATION %q", s.ZipValidation)
	}
	switch s.StoreBackend {
	case "file", "firestore":
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", s.StoreBackend)
	}
	return nil
}

func (s *ServerConfig) GetServerAddr() string {
	return s.BindAddress + ":" + s.Port
}

func (s *ServerConfig) Paths() wordpress.Paths {
	return wordpress.NewPaths(s.ContentDir)
}

// EffectiveToken returns the token saved in the settings, falling back to GITHUB_TOKEN.
func (s *ServerConfig) EffectiveToken(settingsToken string) string {
	if settingsToken != "" {
		return settingsToken
	}
	return s.GitHubToken
}

func (s *ServerConfig) GitHubConfig(token string, observer observe.Observer) githubapi.Config {
	return githubapi.Config{
		Token:      token,
		APIBaseURL: s.GitHubAPIURL,
		UserAgent:  s.UserAgent,
		Timeout:    s.APITimeout,
		Observer:   observer,
	}
}

func (s *ServerConfig) DownloadConfig(token string, mirror *download.Mirror, observer observe.Observer) download.Config {
	return download.Config{
		Token:      token,
		APIBaseURL: s.GitHubAPIURL,
		UserAgent:  s.UserAgent,
		Timeout:    s.DownloadTimeout,
		RetryMax:   s.DownloadRetries,
		Validation: download.ValidationMode(s.ZipValidation),
		TempDir:    s.DownloadTempDir,
		Mirror:     mirror,
		Observer:   observer,
	}
}

func (s *ServerConfig) r2CloudflareEndpointResolver(_, _ string, _ ...interface{}) (aws.Endpoint, error) {
	return aws.Endpoint{
		URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", s.CloudflareAccount),
	}, nil
}

func (s *ServerConfig) CreateS3Client() (*s3.Client, error) {
	staticCredentialsProvider := credentials.NewStaticCredentialsProvider(
		s.R2AccessKeyID,
		s.R2SecretAccessKey,
		"",
	)
	s3Cfg, err := awsConfig.LoadDefaultConfig(context.TODO(),
		awsConfig.WithRegion("auto"),
		awsConfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(s.r2CloudflareEndpointResolver)),
		awsConfig.WithCredentialsProvider(staticCredentialsProvider),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(s3Cfg), nil
}

// CreateMirror returns the archive mirror, or nil if no bucket is configured.
func (s *ServerConfig) CreateMirror() (*download.Mirror, error) {
	if s.ArchiveBucket == "" {
		return nil, nil
	}
	client, err := s.CreateS3Client()
	if err != nil {
		return nil, err
	}
	return download.NewMirror(client, s.ArchiveBucket), nil
}

func (s *ServerConfig) CreateStore(ctx context.Context) (store.Store, error) {
	if s.StoreBackend == "firestore" {
		db, err := firestore.NewClient(ctx, s.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		return store.NewFirestore(db, s.FirestorePrefix), nil
	}
	return store.NewFile(s.StoreFile)
}

func (s *ServerConfig) Activator() *wordpress.WPCLI {
	return &wordpress.WPCLI{Binary: s.WPCLIPath, Path: s.WordPressPath}
}
