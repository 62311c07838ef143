package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/DarriEy/delta-agent/pkg/logger"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress      string
	BackendBaseURL   string
	BackendToken     string
	UserID           int
	DefaultMode      string
	DeepgramAPIKey   string
	DeepgramTTSModel string
	LogLevel         string
	LogFormat        string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logger.Debugf("no .env file loaded: %v", err)
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	backendURL := os.Getenv("DELTA_BACKEND_URL")
	if backendURL == "" {
		backendURL = "http://localhost:8000"
		logger.Warnf("DELTA_BACKEND_URL not set - using %s", backendURL)
	}

	userID := 1
	if v := os.Getenv("DELTA_USER_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			userID = n
		} else {
			logger.Warnf("DELTA_USER_ID %q is not an integer - using %d", v, userID)
		}
	}

	mode := os.Getenv("DELTA_ACTIVE_MODE")
	if mode == "" {
		mode = "general"
	}

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	format := os.Getenv("LOG_FORMAT")
	if format == "" {
		format = "text"
	}

	return Config{
		HTTPAddress:      addr,
		BackendBaseURL:   backendURL,
		BackendToken:     os.Getenv("DELTA_API_TOKEN"),
		UserID:           userID,
		DefaultMode:      mode,
		DeepgramAPIKey:   os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramTTSModel: os.Getenv("DEEPGRAM_TTS_MODEL"),
		LogLevel:         level,
		LogFormat:        format,
	}
}
