package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/calmcash/auth-service/internal/logger"
)

const (
	defaultListenAddr         = "localhost:8080"
	defaultLoggingLevel       = logger.LevelInfo
	defaultEnvironment        = logger.EnvProduction
	defaultTokenIssuer        = "calmcash-auth"
	defaultTokenAudience      = "calmcash-api"
	defaultAccessTokenMinutes = 15
	defaultRefreshTokenDays   = 30
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the auth service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key to sign access tokens, must be at least 32 bytes
	SecretKey string

	// Issuer and audience claims stamped on access tokens
	TokenIssuer   string
	TokenAudience string

	// Token lifetimes
	AccessTokenMinutes int
	RefreshTokenDays   int

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:           defaultLoggingLevel,
		ListenAddr:         defaultListenAddr,
		TokenIssuer:        defaultTokenIssuer,
		TokenAudience:      defaultTokenAudience,
		AccessTokenMinutes: defaultAccessTokenMinutes,
		RefreshTokenDays:   defaultRefreshTokenDays,
		Environment:        defaultEnvironment,
	}
}

// Load variables from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}

	// Set int option if the value parses, skip it otherwise
	setInt := func(o *int) func(value string) {
		return func(value string) {
			if parsed, err := strconv.Atoi(value); err == nil {
				*o = parsed
			}
		}
	}

	envMap := map[string]func(string){
		"LISTEN_ADDRESS":       setString(&c.ListenAddr),
		"DATABASE_DSN":         setString(&c.DatabaseDSN),
		"SECRET_KEY":           setString(&c.SecretKey),
		"TOKEN_ISSUER":         setString(&c.TokenIssuer),
		"TOKEN_AUDIENCE":       setString(&c.TokenAudience),
		"ACCESS_TOKEN_MINUTES": setInt(&c.AccessTokenMinutes),
		"REFRESH_TOKEN_DAYS":   setInt(&c.RefreshTokenDays),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("authservice", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key to sign access tokens")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.TokenIssuer, "issuer", c.TokenIssuer, "Access token issuer claim")
	fs.StringVar(&c.TokenAudience, "audience", c.TokenAudience, "Access token audience claim")
	fs.IntVar(&c.AccessTokenMinutes, "access-minutes", c.AccessTokenMinutes, "Access token lifetime in minutes")
	fs.IntVar(&c.RefreshTokenDays, "refresh-days", c.RefreshTokenDays, "Refresh token lifetime in days")

	return fs.Parse(args)
}
