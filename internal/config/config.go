package config

import (
	"context"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/ytget/yt-download-proxy/internal/platform"
)

// Limits applied by Normalize
const (
	DefaultCleanupDelay      = 60 * time.Second
	DefaultJobTTL            = time.Hour
	DefaultSweepSchedule     = "@every 1h"
	DefaultEvictSchedule     = "@every 5m"
	DefaultProgressInterval  = 500 * time.Millisecond
	MinProgressInterval      = 100 * time.Millisecond
	DefaultRateLimit         = 100
	MaxRateLimit             = 10000
	DefaultClipboardMaxBytes = 100000
	MaxClipboardMaxBytes     = 10 << 20
	DefaultSubjectPrefix     = "ytproxy.jobs"
)

// Config holds runtime configuration for the proxy.
type Config struct {
	Addr    string `env:"ADDR,default=:8080"`
	TempDir string `env:"TEMP_DIR"`

	DefaultQuality   string        `env:"DEFAULT_QUALITY,default=best"`
	CleanupDelay     time.Duration `env:"CLEANUP_DELAY,default=60s"`
	SweepSchedule    string        `env:"SWEEP_SCHEDULE,default=@every 1h"`
	SweepMinAge      time.Duration `env:"SWEEP_MIN_AGE,default=0"`
	JobTTL           time.Duration `env:"JOB_TTL,default=1h"`
	EvictSchedule    string        `env:"JOB_EVICT_SCHEDULE,default=@every 5m"`
	GracePeriod      time.Duration `env:"GRACE_PERIOD,default=0"`
	DownloadTimeout  time.Duration `env:"DOWNLOAD_TIMEOUT,default=0"`
	ProgressInterval time.Duration `env:"PROGRESS_INTERVAL,default=500ms"`
	InstallYTDLP     bool          `env:"YTDLP_INSTALL,default=false"`

	AllowedOrigins     []string `env:"CORS_ALLOWED_ORIGINS,default=*"`
	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE,default=100"`

	OTLPEndpoint  string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	NATSURL       string `env:"NATS_URL"`
	SubjectPrefix string `env:"EVENTS_SUBJECT_PREFIX,default=ytproxy.jobs"`

	ClipboardBucket   string `env:"CLIPBOARD_BUCKET,default=mem://"`
	ClipboardMaxBytes int    `env:"CLIPBOARD_MAX_BYTES,default=100000"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=console"`
}

// Load returns a Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom returns a normalized Config read through lookuper.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, err
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize fills empty values with defaults and clamps out-of-range ones
func (c *Config) Normalize() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.TempDir == "" {
		c.TempDir = platform.DefaultTempDir()
	}
	c.DefaultQuality = strings.ToLower(strings.TrimSpace(c.DefaultQuality))
	if c.DefaultQuality == "" {
		c.DefaultQuality = "best"
	}
	if c.CleanupDelay < 0 {
		c.CleanupDelay = DefaultCleanupDelay
	}
	if c.SweepMinAge <= 0 {
		c.SweepMinAge = c.CleanupDelay
	}
	if c.JobTTL <= 0 {
		c.JobTTL = DefaultJobTTL
	}
	if strings.TrimSpace(c.SweepSchedule) == "" {
		c.SweepSchedule = DefaultSweepSchedule
	}
	if strings.TrimSpace(c.EvictSchedule) == "" {
		c.EvictSchedule = DefaultEvictSchedule
	}
	if c.GracePeriod < 0 {
		c.GracePeriod = 0
	}
	if c.DownloadTimeout < 0 {
		c.DownloadTimeout = 0
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
	if c.ProgressInterval < MinProgressInterval {
		c.ProgressInterval = MinProgressInterval
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = DefaultRateLimit
	}
	if c.RateLimitPerMinute > MaxRateLimit {
		c.RateLimitPerMinute = MaxRateLimit
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.ClipboardBucket == "" {
		c.ClipboardBucket = "mem://"
	}
	if c.ClipboardMaxBytes <= 0 {
		c.ClipboardMaxBytes = DefaultClipboardMaxBytes
	}
	if c.ClipboardMaxBytes > MaxClipboardMaxBytes {
		c.ClipboardMaxBytes = MaxClipboardMaxBytes
	}
}

// GraceMode reports whether POST /download waits for the artifact
func (c Config) GraceMode() bool {
	return c.GracePeriod > 0
}
