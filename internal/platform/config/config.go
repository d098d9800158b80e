package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; rv:126.0) Gecko/20100101 Firefox/126.0"
	DefaultSite      = "https://www.nicovideo.jp"
)

// Config is the runtime configuration of the downloader binary.
type Config struct {
	LogLevel  string
	LogFormat string

	SessionFile string
	TempDir     string
	OutputDir   string
	KeepTemp    bool

	Workers      int
	SegmentDelay time.Duration
	StaggerDelay time.Duration
	MaxAttempts  int

	HeartbeatInterval time.Duration
	RequestsPerSecond float64

	UserAgent string
	Referer   string
	Origin    string

	StatusAddr string
	FFmpegPath string
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv builds a Config from the process environment, applying defaults
// for anything unset.
func FromEnv() Config {
	return Config{
		LogLevel:          GetEnv("LOG_LEVEL", "info"),
		LogFormat:         GetEnv("LOG_FORMAT", "json"),
		SessionFile:       GetEnv("SESSION_FILE", "session.json"),
		TempDir:           GetEnv("TEMP_DIR", "download_temp"),
		OutputDir:         GetEnv("OUTPUT_DIR", "."),
		KeepTemp:          GetEnvBool("KEEP_TEMP", false),
		Workers:           GetEnvInt("WORKERS", 4),
		SegmentDelay:      GetEnvDuration("SEGMENT_DELAY", 250*time.Millisecond),
		StaggerDelay:      GetEnvDuration("STAGGER_DELAY", 250*time.Millisecond),
		MaxAttempts:       GetEnvInt("MAX_ATTEMPTS", 10),
		HeartbeatInterval: GetEnvDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		RequestsPerSecond: GetEnvFloat("REQUESTS_PER_SECOND", 0),
		UserAgent:         GetEnv("USER_AGENT", DefaultUserAgent),
		Referer:           GetEnv("REFERER", DefaultSite),
		Origin:            GetEnv("ORIGIN", DefaultSite),
		StatusAddr:        GetEnv("STATUS_ADDR", ""),
		FFmpegPath:        GetEnv("FFMPEG_PATH", "ffmpeg"),
	}
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat is GetEnvInt for floating point values.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

// GetEnvBool accepts the forms understood by strconv.ParseBool plus "yes"/"no".
func GetEnvBool(key string, fallback bool) bool {
	s := strings.ToLower(os.Getenv(key))
	switch s {
	case "":
		return fallback
	case "yes", "y", "on":
		return true
	case "no", "n", "off":
		return false
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return fallback
}

// GetEnvDuration parses values such as "250ms" or "30s". A bare integer is
// taken as seconds.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
