package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              int
	DatabasePath      string
	UploadDirectory   string
	ResultDirectory   string
	LogDirectory      string
	MaxFileSize       int64
	AllowedExtensions []string

	DetectorBackend  string // "onnx" albo "remote"
	ModelPath        string
	DetectorEndpoint string

	ConfGlobal         float64
	MotorcycleConf     float64
	IoUThreshold       float64
	ProcessingInterval int // Co którą klatkę uruchamiać detektor (1=każdą)

	UploadRateLimit int    // Uploady na minutę z jednego adresu
	ChartAssetsHost string // Puste = CDN go-echarts

	Password   string
	JWTSecret  string
	SessionTTL time.Duration
}

// Load reads the optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	return &Config{
		Port:              getEnvAsInt("PORT", 5000),
		DatabasePath:      getEnv("DATABASE_PATH", filepath.Join(".", "data", "traffic_density.db")),
		UploadDirectory:   getEnv("UPLOAD_FOLDER", filepath.Join(".", "static", "uploads")),
		ResultDirectory:   getEnv("RESULT_FOLDER", filepath.Join(".", "static", "results")),
		LogDirectory:      getEnv("LOG_DIR", filepath.Join(".", "logs")),
		MaxFileSize:       getEnvAsInt64("MAX_FILE_SIZE", 209715200), // 200MB
		AllowedExtensions: getEnvAsList("ALLOWED_EXTENSIONS", []string{"jpg", "jpeg", "png", "mp4", "avi", "mov"}),

		DetectorBackend:  strings.ToLower(getEnv("DETECTOR_BACKEND", "onnx")),
		ModelPath:        getEnv("MODEL_PATH", filepath.Join(".", "models", "yolov8n.onnx")),
		DetectorEndpoint: getEnv("DETECTOR_ENDPOINT", "http://localhost:8001"),

		ConfGlobal:         getEnvAsFloat("CONF_GLOBAL", 0.6),
		MotorcycleConf:     getEnvAsFloat("MOTORCYCLE_CONF", 0.75),
		IoUThreshold:       getEnvAsFloat("IOU_THRESH", 0.3),
		ProcessingInterval: getEnvAsInt("PROCESSING_INTERVAL", 1),

		UploadRateLimit: getEnvAsInt("UPLOAD_RATE_LIMIT", 10),
		ChartAssetsHost: getEnv("CHART_ASSETS_HOST", ""),

		Password:   getEnv("PASSWORD", ""),
		JWTSecret:  getEnv("JWT_SECRET", ""),
		SessionTTL: getEnvAsDuration("SESSION_TTL", 24*time.Hour),
	}
}

// AuthEnabled reports whether the login page guards the application.
func (c *Config) AuthEnabled() bool {
	return c.Password != ""
}

// IsAllowedExtension reports whether ext (without the dot, any case) is whitelisted.
func (c *Config) IsAllowedExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return false
	}
	for _, allowed := range c.AllowedExtensions {
		if allowed == ext {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList parses a comma separated list, tolerating the {'a', 'b'} form
// used by older deployments.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	value = strings.Trim(value, "{}[] ")
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.Trim(part, " '\"."))
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
