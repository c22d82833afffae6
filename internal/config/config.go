package config

import (
	"flag"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type ServerConfig struct {
	RunAddress          string   `env:"RUN_ADDRESS"`
	LocalhostURL        string   `env:"POS_LOCALHOST_URL"`
	LANURLs             []string `env:"POS_LAN_URLS" envSeparator:","`
	CloudURL            string   `env:"POS_CLOUD_URL"`
	DatabasePath        string   `env:"DATABASE_PATH"`
	DashboardOrigin     string   `env:"DASHBOARD_ORIGIN"`
	Secret              string   `env:"SECRET"`
	AdminLogin          string   `env:"ADMIN_LOGIN"`
	AdminPasswordHash   string   `env:"ADMIN_PASSWORD_HASH"`
	AuthCookieExpiresIn int      `env:"AUTH_COOKIE_EXPIRES_IN"`
}

func NewConfig() (*ServerConfig, error) {

	// a missing .env is fine, the environment may be set by other means
	_ = godotenv.Load()

	var params ServerConfig
	err := env.Parse(&params)
	if err != nil {
		return nil, err
	}

	var commandLineParams ServerConfig
	var lanURLs string

	flag.StringVar(&commandLineParams.RunAddress, "a", "localhost:8081", "Address the admin facade listens on")
	flag.StringVar(&commandLineParams.LocalhostURL, "l", "http://localhost:5000", "Same-machine POS server URL")
	flag.StringVar(&lanURLs, "n", "", "Comma-separated LAN POS server URLs")
	flag.StringVar(&commandLineParams.CloudURL, "c", "", "Cloud POS server URL")
	flag.StringVar(&commandLineParams.DatabasePath, "d", "./pos-admin.db", "Path to the local order database")
	flag.StringVar(&commandLineParams.DashboardOrigin, "o", "http://localhost:3000", "Origin the dashboard UI is served from")
	flag.StringVar(&commandLineParams.Secret, "s", "", "Secret used to sign auth cookies")
	flag.StringVar(&commandLineParams.AdminLogin, "u", "admin", "Admin login")
	flag.StringVar(&commandLineParams.AdminPasswordHash, "p", "", "Bcrypt hash of the admin password")
	flag.IntVar(&commandLineParams.AuthCookieExpiresIn, "e", 86400, "Auth cookie lifetime in seconds")
	flag.Parse()

	if lanURLs != "" {
		commandLineParams.LANURLs = strings.Split(lanURLs, ",")
	}

	if params.RunAddress == "" {
		params.RunAddress = commandLineParams.RunAddress
	}
	if params.LocalhostURL == "" {
		params.LocalhostURL = commandLineParams.LocalhostURL
	}
	if len(params.LANURLs) == 0 {
		params.LANURLs = commandLineParams.LANURLs
	}
	if params.CloudURL == "" {
		params.CloudURL = commandLineParams.CloudURL
	}
	if params.DatabasePath == "" {
		params.DatabasePath = commandLineParams.DatabasePath
	}
	if params.DashboardOrigin == "" {
		params.DashboardOrigin = commandLineParams.DashboardOrigin
	}
	if params.Secret == "" {
		params.Secret = commandLineParams.Secret
	}
	if params.AdminLogin == "" {
		params.AdminLogin = commandLineParams.AdminLogin
	}
	if params.AdminPasswordHash == "" {
		params.AdminPasswordHash = commandLineParams.AdminPasswordHash
	}
	if params.AuthCookieExpiresIn == 0 {
		params.AuthCookieExpiresIn = commandLineParams.AuthCookieExpiresIn
	}

	return &params, nil
}
