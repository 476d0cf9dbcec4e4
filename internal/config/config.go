// Package config は環境変数から印刷サーバーの設定を読み込みます。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config は印刷サーバーの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port     string // APIサーバーのポート番号
	GinMode  string // Ginの実行モード (debug, release, test)
	LogLevel string // debug, info, warn, error

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り、"*" で全許可）

	// ファイル設定
	UploadDir            string // 印刷ファイルの保存先
	PreviewDir           string // プレビューファイルの保存先
	MaxFileSize          int64  // 単一ファイルの最大サイズ（バイト）
	PreviewExpireMinutes int    // プレビューファイルの保持時間（分）

	// キュー設定
	QueueRedisURL      string // 空ならメモリ上のキューを使用
	PendingTTLMinutes  int    // pending ジョブの有効期限（分、0 で無効）
	PrintingTTLMinutes int    // claim 後に完了報告を待つ時間（分、0 で無効）
	HistoryLimit       int    // 終了済みジョブの保持件数
	HistoryTTLMinutes  int    // Redis 利用時の終了済みジョブ保持時間（分）

	// エージェント
	AgentOfflineSeconds int // 最後の ping からオフライン判定までの秒数

	// 変換設定
	OfficeTimeoutSeconds int
	ImageTimeoutSeconds  int
	LibreOfficePath      string
	ImageMagickPath      string
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		Port:     getEnv("PORT", "5000"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		UploadDir:            getEnv("UPLOAD_DIR", "uploads"),
		PreviewDir:           getEnv("PREVIEW_DIR", filepath.Join("uploads", "previews")),
		MaxFileSize:          getEnvAsInt64("MAX_FILE_SIZE", 104857600), // 100MB
		PreviewExpireMinutes: getEnvAsInt("PREVIEW_EXPIRE_MINUTES", 10),

		QueueRedisURL:      getEnv("QUEUE_REDIS_URL", ""),
		PendingTTLMinutes:  getEnvAsInt("PENDING_TTL_MINUTES", 60),
		PrintingTTLMinutes: getEnvAsInt("PRINTING_TTL_MINUTES", 30),
		HistoryLimit:       getEnvAsInt("HISTORY_LIMIT", 200),
		HistoryTTLMinutes:  getEnvAsInt("HISTORY_TTL_MINUTES", 1440),

		AgentOfflineSeconds: getEnvAsInt("AGENT_OFFLINE_SECONDS", 20),

		OfficeTimeoutSeconds: getEnvAsInt("OFFICE_TIMEOUT_SECONDS", 120),
		ImageTimeoutSeconds:  getEnvAsInt("IMAGE_TIMEOUT_SECONDS", 30),
		LibreOfficePath:      getEnv("LIBREOFFICE_CMD", ""),
		ImageMagickPath:      getEnv("IMAGEMAGICK_CMD", ""),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric: %q", c.Port)
	}
	if c.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR must not be empty")
	}
	if c.PreviewDir == "" {
		return fmt.Errorf("PREVIEW_DIR must not be empty")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if c.PendingTTLMinutes < 0 {
		return fmt.Errorf("PENDING_TTL_MINUTES must not be negative")
	}
	if c.PrintingTTLMinutes < 0 {
		return fmt.Errorf("PRINTING_TTL_MINUTES must not be negative")
	}
	if c.AgentOfflineSeconds <= 0 {
		return fmt.Errorf("AGENT_OFFLINE_SECONDS must be positive")
	}
	return nil
}

// PendingTTL は pending ジョブの有効期限です。0 は無効を表します。
func (c *Config) PendingTTL() time.Duration {
	return time.Duration(c.PendingTTLMinutes) * time.Minute
}

// PrintingTTL は printing のジョブが完了報告を待つ時間です。0 は無効を表します。
func (c *Config) PrintingTTL() time.Duration {
	return time.Duration(c.PrintingTTLMinutes) * time.Minute
}

// PreviewTTL はプレビューファイルの保持時間です。
func (c *Config) PreviewTTL() time.Duration {
	if c.PreviewExpireMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.PreviewExpireMinutes) * time.Minute
}

// HistoryTTL は Redis 上の終了済みジョブ保持時間です。
func (c *Config) HistoryTTL() time.Duration {
	return time.Duration(c.HistoryTTLMinutes) * time.Minute
}

// AgentOfflineAfter はエージェントをオフラインとみなすまでの時間です。
func (c *Config) AgentOfflineAfter() time.Duration {
	return time.Duration(c.AgentOfflineSeconds) * time.Second
}

// OfficeTimeout はオフィス文書変換のタイムアウトです。
func (c *Config) OfficeTimeout() time.Duration {
	return time.Duration(c.OfficeTimeoutSeconds) * time.Second
}

// ImageTimeout は画像変換のタイムアウトです。
func (c *Config) ImageTimeout() time.Duration {
	return time.Duration(c.ImageTimeoutSeconds) * time.Second
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
