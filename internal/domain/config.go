package domain

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	JobAPI       JobAPIConfig       `mapstructure:"job_api"`
	CDN          CDNConfig          `mapstructure:"cdn"`
	Store        StoreConfig        `mapstructure:"store"`
	Legacy       LegacyConfig       `mapstructure:"legacy"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains output layout and the end-to-end deadline
type DownloadConfig struct {
	BaseDir     string        `mapstructure:"base_dir"`
	LogsDir     string        `mapstructure:"logs_dir"`
	HardTimeout time.Duration `mapstructure:"hard_timeout"`
}

// DirFor returns the variant-specific output directory
func (c DownloadConfig) DirFor(variant Variant) string {
	return filepath.Join(c.BaseDir, variant.Dir())
}

// OutputPath returns the deterministic output path for a file stem
func (c DownloadConfig) OutputPath(variant Variant, stem string) string {
	return filepath.Join(c.DirFor(variant), stem+"."+variant.Ext())
}

// tempSuffixes mark files yt-dlp is still writing
var tempSuffixes = []string{".part", ".ytdl", ".temp"}

// FindExisting returns a non-empty local file for stem. The variant's own
// extension wins; otherwise any single-extension file for the stem counts,
// since the legacy tool keeps whatever container it downloaded.
func (c DownloadConfig) FindExisting(variant Variant, stem string) (string, bool) {
	if path := c.OutputPath(variant, stem); nonEmptyFile(path) {
		return path, true
	}

	matches, err := filepath.Glob(filepath.Join(c.DirFor(variant), stem+".*"))
	if err != nil {
		return "", false
	}
	for _, path := range matches {
		ext := filepath.Ext(path)
		if filepath.Base(path) != stem+ext || isTempSuffix(ext) {
			continue
		}
		if nonEmptyFile(path) {
			return path, true
		}
	}
	return "", false
}

func isTempSuffix(ext string) bool {
	for _, s := range tempSuffixes {
		if strings.EqualFold(ext, s) {
			return true
		}
	}
	return false
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// JobAPIConfig contains settings for the upstream job-based download API
type JobAPIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	SubmitPath     string        `mapstructure:"submit_path"`
	StatusPath     string        `mapstructure:"status_path"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	HTTPRetries    int           `mapstructure:"http_retries"`
	HTTPRetryDelay time.Duration `mapstructure:"http_retry_delay"`

	Cycles          int           `mapstructure:"cycles"`
	EmptyWait       time.Duration `mapstructure:"empty_wait"`
	NoCandidateWait time.Duration `mapstructure:"no_candidate_wait"`
	FetchFailWait   time.Duration `mapstructure:"fetch_fail_wait"`

	PollAttempts int           `mapstructure:"poll_attempts"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollBackoff  float64       `mapstructure:"poll_backoff"`

	// Locators starting with one of these are backend filesystem leaks
	InternalPathPrefixes []string `mapstructure:"internal_path_prefixes"`
}

// CDNConfig contains settings for streaming results from the CDN
type CDNConfig struct {
	Retries        int           `mapstructure:"retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	ChunkSize      int           `mapstructure:"chunk_size"`
}

// StoreConfig contains settings for the persistent content store
type StoreConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	DatabasePath     string        `mapstructure:"database_path"`
	ArchiveDir       string        `mapstructure:"archive_dir"`
	TransferInterval time.Duration `mapstructure:"transfer_interval"` // minimum spacing between transfers
	TransferBurst    int           `mapstructure:"transfer_burst"`
	ArchiveOnSuccess bool          `mapstructure:"archive_on_success"`
}

// LegacyConfig contains settings for the yt-dlp last-resort extractor
type LegacyConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	YTDLPBinary string `mapstructure:"ytdlp_binary"`
	CookiesDir  string `mapstructure:"cookies_dir"`
	AudioFormat string `mapstructure:"audio_format"`
	VideoFormat string `mapstructure:"video_format"`
	MaxFilesize string `mapstructure:"max_filesize"` // yt-dlp size syntax, e.g. 250M; empty disables
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Download: DownloadConfig{
			BaseDir:     "downloads",
			LogsDir:     "$HOME/.mediafetch/logs",
			HardTimeout: 3 * time.Minute,
		},
		JobAPI: JobAPIConfig{
			SubmitPath:           "download",
			StatusPath:           "jobStatus",
			RequestTimeout:       20 * time.Second,
			HTTPRetries:          3,
			HTTPRetryDelay:       time.Second,
			Cycles:               5,
			EmptyWait:            time.Second,
			NoCandidateWait:      4 * time.Second,
			FetchFailWait:        2 * time.Second,
			PollAttempts:         15,
			PollInterval:         2 * time.Second,
			PollBackoff:          1.1,
			InternalPathPrefixes: []string{"/root", "/home"},
		},
		CDN: CDNConfig{
			Retries:        3,
			RetryDelay:     2 * time.Second,
			AttemptTimeout: 5 * time.Minute,
			ChunkSize:      1024 * 1024,
		},
		Store: StoreConfig{
			Enabled:          true,
			DatabasePath:     "$HOME/.mediafetch/store.db",
			ArchiveDir:       "$HOME/.mediafetch/archive",
			TransferInterval: time.Second,
			TransferBurst:    5,
			ArchiveOnSuccess: true,
		},
		Legacy: LegacyConfig{
			Enabled:     true,
			YTDLPBinary: "yt-dlp",
			CookiesDir:  "cookies",
			AudioFormat: "bestaudio/best",
			VideoFormat: "(bestvideo[height<=?720][width<=?1280][ext=mp4])+(bestaudio[ext=m4a])",
			MaxFilesize: "250M",
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
