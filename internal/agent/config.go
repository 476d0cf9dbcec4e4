package agent

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config は印刷エージェントの設定です。
type Config struct {
	Server            string        `yaml:"server"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ClaimTTL          time.Duration `yaml:"claim_ttl"`
	WorkDir           string        `yaml:"work_dir"`
	QueueTimeout      time.Duration `yaml:"queue_timeout"`
	DownloadTimeout   time.Duration `yaml:"download_timeout"`
	GrayscaleTimeout  time.Duration `yaml:"grayscale_timeout"`
	ReportErrors      bool          `yaml:"report_errors"`
	Tools             ToolsConfig   `yaml:"tools"`
	Log               LogConfig     `yaml:"log"`
}

// ToolsConfig は外部ツールのパス指定です。空なら自動検出します。
type ToolsConfig struct {
	Ghostscript string `yaml:"ghostscript"`
	ImageMagick string `yaml:"imagemagick"`
	Sumatra     string `yaml:"sumatra"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server:            "http://localhost:5000",
		PollInterval:      5 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		ClaimTTL:          60 * time.Second,
		WorkDir:           filepath.Join(os.TempDir(), "print-agent"),
		QueueTimeout:      15 * time.Second,
		DownloadTimeout:   60 * time.Second,
		GrayscaleTimeout:  2 * time.Minute,
		Tools: ToolsConfig{
			Sumatra: "SumatraPDF.exe",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load は YAML ファイルと環境変数から設定を読み込みます。
// configPath が空、またはファイルが存在しない場合は既定値を使います。
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PRINT_AGENT_SERVER"); v != "" {
		c.Server = v
	}
	if v := os.Getenv("PRINT_AGENT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SUMATRA_CMD"); v != "" {
		c.Tools.Sumatra = v
	}
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server must be an http(s) URL, got %q", c.Server)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	if c.ClaimTTL <= 0 {
		return fmt.Errorf("claim_ttl must be positive")
	}
	if c.QueueTimeout <= 0 || c.DownloadTimeout <= 0 {
		return fmt.Errorf("queue_timeout and download_timeout must be positive")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work_dir is required")
	}
	return nil
}
