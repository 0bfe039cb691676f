package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/music-miko/t/internal/domain"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "MEDIAFETCH"

// envAliases are short environment names accepted next to the prefixed ones
var envAliases = map[string]string{
	"job_api.api_key":  "MEDIAFETCH_API_KEY",
	"job_api.base_url": "MEDIAFETCH_API_URL",
}

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.mediafetch")
		v.AddConfigPath("/etc/mediafetch")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only consults keys viper already knows about
	defaults, err := configToMap(config)
	if err != nil {
		return nil, err
	}
	for key := range flattenKeys("", defaults) {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	for key, env := range envAliases {
		if err := v.BindEnv(key, strings.ToUpper(EnvPrefix+"_"+strings.NewReplacer(".", "_").Replace(key)), env); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.BaseDir = expandPath(config.Download.BaseDir)
	config.Download.LogsDir = expandPath(config.Download.LogsDir)
	config.Store.DatabasePath = expandPath(config.Store.DatabasePath)
	config.Store.ArchiveDir = expandPath(config.Store.ArchiveDir)
	config.Legacy.CookiesDir = expandPath(config.Legacy.CookiesDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	if strings.Contains(path, "$HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.BaseDir == "" {
		return fmt.Errorf("download base directory not configured")
	}

	if config.Download.HardTimeout <= 0 {
		return fmt.Errorf("hard timeout must be positive")
	}

	if config.JobAPI.Cycles < 1 || config.JobAPI.PollAttempts < 1 || config.JobAPI.HTTPRetries < 1 {
		return fmt.Errorf("job api cycles, poll attempts and http retries must be at least 1")
	}

	if config.JobAPI.PollBackoff < 1 {
		return fmt.Errorf("poll backoff cannot be below 1: %v", config.JobAPI.PollBackoff)
	}

	if config.CDN.Retries < 1 {
		return fmt.Errorf("cdn retries must be at least 1")
	}

	if config.CDN.ChunkSize < 1 {
		return fmt.Errorf("cdn chunk size must be positive")
	}

	if config.Store.Enabled && (config.Store.DatabasePath == "" || config.Store.ArchiveDir == "") {
		return fmt.Errorf("store database path and archive dir must be set when the store is enabled")
	}

	if config.Legacy.Enabled && config.Legacy.YTDLPBinary == "" {
		return fmt.Errorf("legacy extractor enabled without a yt-dlp binary")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	values, err := configToMap(config)
	if err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range values {
		v.Set(key, value)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// configToMap converts config into nested maps keyed by mapstructure tags,
// with durations rendered as strings
func configToMap(config *domain.Config) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if err := mapstructure.Decode(config, &out); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return stringifyDurations(out), nil
}

func stringifyDurations(m map[string]interface{}) map[string]interface{} {
	for k, v := range m {
		switch val := v.(type) {
		case time.Duration:
			m[k] = val.String()
		case map[string]interface{}:
			m[k] = stringifyDurations(val)
		}
	}
	return m
}

func flattenKeys(prefix string, m map[string]interface{}) map[string]struct{} {
	keys := map[string]struct{}{}
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			for nk := range flattenKeys(key, nested) {
				keys[nk] = struct{}{}
			}
			continue
		}
		keys[key] = struct{}{}
	}
	return keys
}
