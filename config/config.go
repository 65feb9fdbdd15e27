package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server  ServerConfig
	Session SessionConfig
	Archive ArchiveConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:3001)
}

// SessionConfig holds teacher session continuity settings.
type SessionConfig struct {
	// TeacherGraceTTL is how long a room survives after its teacher
	// disconnects before the room is torn down.
	TeacherGraceTTL time.Duration
}

// ArchiveConfig holds the optional completed-poll archive settings.
// An empty DatabaseURL disables archiving entirely; rooms then live
// purely in memory.
type ArchiveConfig struct {
	DatabaseURL string
}

// Enabled reports whether a poll archive database is configured.
func (c ArchiveConfig) Enabled() bool {
	return c.DatabaseURL != ""
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	graceSec := getEnvInt("TEACHER_GRACE_TTL_SEC", 300) // 5 minutes

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "4000"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Session: SessionConfig{
			TeacherGraceTTL: time.Duration(graceSec) * time.Second,
		},
		Archive: ArchiveConfig{
			DatabaseURL: getEnv("ARCHIVE_DATABASE_URL", ""),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
