package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port         int                `json:"port"`
	JWTSecret    string             `json:"jwt_secret"`
	CORSAllow    []string           `json:"cors_allow"`
	LogConfig    logger.LogConfig   `json:"log_config"`
	Database     DatabaseConfig     `json:"database"`
	FileStore    FileStoreConfig    `json:"file_store"`
	OCR          OCRConfig          `json:"ocr"`
	Verification VerificationConfig `json:"verification"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type OCRConfig struct {
	Engines []OCREngineConfig `json:"engines"`
}

type OCREngineConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type VerificationConfig struct {
	CodeTTLSeconds  int     `json:"code_ttl_seconds"`
	JobTimeoutSecs  int     `json:"job_timeout_seconds"`
	VideoMinSeconds float64 `json:"video_min_seconds"`
	VideoMaxSeconds float64 `json:"video_max_seconds"`
	FrameRate       float64 `json:"frame_rate"`
	MaxFrames       int     `json:"max_frames"`
	Workers         int     `json:"workers"`
	QueueSize       int     `json:"queue_size"`
	SubmitCooldown  int     `json:"submit_cooldown_seconds"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if len(cfg.OCR.Engines) == 0 {
		return nil, fmt.Errorf("ocr.engines is required")
	}
	applyVerificationDefaults(&cfg.Verification)
	return &cfg, nil
}

func applyVerificationDefaults(v *VerificationConfig) {
	if v.CodeTTLSeconds <= 0 {
		v.CodeTTLSeconds = 600
	}
	if v.JobTimeoutSecs <= 0 {
		v.JobTimeoutSecs = 120
	}
	if v.VideoMinSeconds <= 0 {
		v.VideoMinSeconds = 3
	}
	if v.VideoMaxSeconds <= 0 {
		v.VideoMaxSeconds = 90
	}
	if v.FrameRate <= 0 {
		v.FrameRate = 1
	}
	if v.MaxFrames <= 0 {
		v.MaxFrames = 30
	}
	if v.Workers <= 0 {
		v.Workers = 4
	}
	if v.QueueSize <= 0 {
		v.QueueSize = 64
	}
	if v.SubmitCooldown < 0 {
		v.SubmitCooldown = 0
	}
}
