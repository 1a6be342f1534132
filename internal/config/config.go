// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Portal    PortalConfig    `mapstructure:"portal"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Preflight PreflightConfig `mapstructure:"preflight"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// SourceConfig locates the address workbook.
type SourceConfig struct {
	Provider string `mapstructure:"provider"`
	Path     string `mapstructure:"path"`
	Sheet    string `mapstructure:"sheet"`
	Column   string `mapstructure:"column"`
}

// LedgerConfig selects the completion ledger backend.
type LedgerConfig struct {
	Provider string `mapstructure:"provider"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
}

// PortalConfig describes the registry portal and the account used against it.
type PortalConfig struct {
	URL           string `mapstructure:"url"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	DocTab        string `mapstructure:"doc_tab"`
	DownloadXPath string `mapstructure:"download_xpath"`
	WaitSeconds   int    `mapstructure:"wait_seconds"`
}

// BrowserConfig governs the Chrome session.
type BrowserConfig struct {
	Headless     bool   `mapstructure:"headless"`
	WindowWidth  int    `mapstructure:"window_width"`
	WindowHeight int    `mapstructure:"window_height"`
	DownloadDir  string `mapstructure:"download_dir"`
}

// CrawlConfig governs run pacing and sizing.
type CrawlConfig struct {
	ChunkSize           int    `mapstructure:"chunk_size"`
	AddressDelaySeconds int    `mapstructure:"address_delay_seconds"`
	SettleSeconds       int    `mapstructure:"settle_seconds"`
	Unattended          bool   `mapstructure:"unattended"`
	ScreenshotDir       string `mapstructure:"screenshot_dir"`
}

// StorageConfig sets the artifact upload destination.
type StorageConfig struct {
	Provider        string             `mapstructure:"provider"`
	GCS             GCSStorageConfig   `mapstructure:"gcs"`
	Local           LocalStorageConfig `mapstructure:"local"`
	CredentialsJSON string             `mapstructure:"credentials_json"`
}

// GCSStorageConfig holds GCS bucket coordinates.
type GCSStorageConfig struct {
	BucketName string `mapstructure:"bucket_name"`
	Prefix     string `mapstructure:"prefix"`
}

// LocalStorageConfig holds the filesystem archive root.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// NotifyConfig holds metadata for publish-subscribe run reports.
type NotifyConfig struct {
	Provider string          `mapstructure:"provider"`
	GCP      GCPNotifyConfig `mapstructure:"gcp"`
}

// GCPNotifyConfig holds Pub/Sub coordinates.
type GCPNotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// PreflightConfig controls the portal reachability probe.
type PreflightConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
}

// ServerConfig controls the read-only status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features and on-disk history.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// MetricsConfig controls the batch metrics export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// Load builds a Config from disk/environment using a private Viper instance.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SEUMTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	BindLegacyEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	return unmarshal(v)
}

// FromGlobal builds a Config from the process-wide Viper state primed by
// pkg/config.InitConfig.
func FromGlobal() (Config, error) {
	return unmarshal(viper.GetViper())
}

func unmarshal(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults installs defaults on the given Viper instance. Headless and
// unattended behavior default on when the process runs under GitHub Actions,
// matching how scheduled archive runs are deployed.
func SetDefaults(v *viper.Viper) {
	ci := RunningInCI()

	v.SetDefault("source.provider", "excel")
	v.SetDefault("source.path", "압구정동 주소.xlsx")
	v.SetDefault("source.sheet", "")
	v.SetDefault("source.column", "주소")

	v.SetDefault("ledger.provider", "file")
	v.SetDefault("ledger.path", "processed.txt")

	v.SetDefault("portal.url", "https://www.eais.go.kr/")
	v.SetDefault("portal.doc_tab", "전유부")
	v.SetDefault("portal.download_xpath", "//button[contains(., '발급')]")
	v.SetDefault("portal.wait_seconds", 20)

	v.SetDefault("browser.headless", ci)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.download_dir", "downloads")

	v.SetDefault("crawl.chunk_size", 50)
	v.SetDefault("crawl.address_delay_seconds", 2)
	v.SetDefault("crawl.settle_seconds", 5)
	v.SetDefault("crawl.unattended", ci)
	v.SetDefault("crawl.screenshot_dir", ".")

	v.SetDefault("storage.provider", "noop")
	v.SetDefault("storage.gcs.prefix", "documents")

	v.SetDefault("notify.provider", "noop")

	v.SetDefault("preflight.enabled", true)
	v.SetDefault("preflight.timeout_seconds", 10)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)

	v.SetDefault("logging.development", !ci)
	v.SetDefault("logging.file", "")

	v.SetDefault("metrics.textfile", "")
}

// BindLegacyEnv maps the environment names the scheduled workflow already
// exports onto their config keys, so SEUMTER_ID keeps working alongside
// SEUMTER_PORTAL_USERNAME.
func BindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("portal.username", "SEUMTER_PORTAL_USERNAME", "SEUMTER_ID")
	_ = v.BindEnv("portal.password", "SEUMTER_PORTAL_PASSWORD", "SEUMTER_PW")
	_ = v.BindEnv("storage.credentials_json", "SEUMTER_STORAGE_CREDENTIALS_JSON", "GOOGLE_CREDENTIALS_JSON")
}

// RunningInCI reports whether the process runs under GitHub Actions.
func RunningInCI() bool {
	return os.Getenv("GITHUB_ACTIONS") == "true"
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Source.Path == "" {
		return fmt.Errorf("source.path must be set")
	}
	if c.Source.Column == "" {
		return fmt.Errorf("source.column must be set")
	}
	switch c.Ledger.Provider {
	case "file":
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger.path must be set when ledger provider is 'file'")
		}
	case "postgres":
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn must be set when ledger provider is 'postgres'")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown ledger provider: %s", c.Ledger.Provider)
	}
	if c.Portal.URL == "" {
		return fmt.Errorf("portal.url must be set")
	}
	if c.Portal.WaitSeconds <= 0 {
		return fmt.Errorf("portal.wait_seconds must be > 0")
	}
	if c.Crawl.ChunkSize <= 0 {
		return fmt.Errorf("crawl.chunk_size must be > 0")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCS.BucketName == "" {
		return fmt.Errorf("storage provider is 'gcs' but storage.gcs.bucket_name is not set")
	}
	if c.Storage.Provider == "local" && c.Storage.Local.BaseDir == "" {
		return fmt.Errorf("storage provider is 'local' but storage.local.base_dir is not set")
	}
	if c.Notify.Provider == "pubsub" && (c.Notify.GCP.ProjectID == "" || c.Notify.GCP.TopicID == "") {
		return fmt.Errorf("notify provider is 'pubsub' but project_id or topic_id is not set")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the status server is enabled")
	}
	return nil
}

// StepWait returns the per-element wait budget used against the portal DOM.
func (c Config) StepWait() time.Duration {
	return time.Duration(c.Portal.WaitSeconds) * time.Second
}

// AddressDelay returns the politeness pause between addresses.
func (c Config) AddressDelay() time.Duration {
	return time.Duration(c.Crawl.AddressDelaySeconds) * time.Second
}

// SettleWait returns how long downloads get to land on disk.
func (c Config) SettleWait() time.Duration {
	return time.Duration(c.Crawl.SettleSeconds) * time.Second
}

// PreflightTimeout returns the reachability probe budget.
func (c Config) PreflightTimeout() time.Duration {
	return time.Duration(c.Preflight.TimeoutSeconds) * time.Second
}
