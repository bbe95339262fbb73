package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	// Relay client settings
	RelayHTTPURL   string
	RelayWSURL     string
	ReconnectDelay time.Duration

	// Relay server settings
	ServerPort string
	Env        string

	// MariaDB settings (relay persistence; empty DBName means in-memory)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// CORS settings
	AllowedOrigins []string
}

// Load loads configuration from environment variables
func Load() Config {
	relayHTTPURL := os.Getenv("RELAY_HTTP_URL")
	if relayHTTPURL == "" {
		relayHTTPURL = "http://127.0.0.1:8000"
	}

	relayWSURL := os.Getenv("RELAY_WS_URL")
	if relayWSURL == "" {
		relayWSURL = "ws://127.0.0.1:8000"
	}

	reconnectDelay := 3000 * time.Millisecond
	if raw := os.Getenv("RECONNECT_DELAY_MS"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			reconnectDelay = time.Duration(ms) * time.Millisecond
		}
	}

	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "3306"
	}

	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8000"
	}

	env := os.Getenv("ENV")
	if env == "" {
		env = "development"
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://127.0.0.1:3000"
	}

	cfg := Config{
		RelayHTTPURL:   relayHTTPURL,
		RelayWSURL:     relayWSURL,
		ReconnectDelay: reconnectDelay,
		DBHost:         dbHost,
		DBPort:         dbPort,
		DBUser:         dbUser,
		DBPassword:     dbPassword,
		DBName:         dbName,
		ServerPort:     serverPort,
		Env:            env,
		AllowedOrigins: strings.Split(allowedOrigins, ","),
	}

	for i := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(cfg.AllowedOrigins[i])
	}

	return cfg
}
