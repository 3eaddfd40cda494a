package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nicebartender/starinfo/command"
	"github.com/nicebartender/starinfo/discord"
	"github.com/nicebartender/starinfo/starblast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "STARINFO"

var errMissingToken = errors.New("missing bot token: set --token, STARINFO_TOKEN or DISCORD_TOKEN")

type Config struct {
	Token        string
	Prefix       string
	ListenAddr   string
	DirectoryURL string
	StatusURL    string
	GatewayURL   string
	APIURL       string
	HTTPTimeout  time.Duration
	LogLevel     slog.Level
}

// bindFlags registers the configuration flags on cmd and binds them, along
// with STARINFO_* environment variables, to v.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.PersistentFlags()
	f.String("config", "", "Config file (yaml, toml or json)")
	f.String("token", "", "Discord bot token")
	f.String("prefix", command.DefaultPrefix, "Command trigger")
	f.String("addr", defaultAddr(), "Health check listen address, empty to disable")
	f.String("directory-url", starblast.DirectoryURL, "Starblast directory document")
	f.String("status-url", starblast.StatusBaseURL, "Status API base URL")
	f.String("gateway-url", discord.DefaultGatewayURL, "Discord gateway URL")
	f.String("api-url", discord.DefaultAPIBaseURL, "Discord REST API base URL")
	f.Duration("http-timeout", starblast.DefaultTimeout, "Timeout for each outbound HTTP request")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")

	_ = v.BindPFlags(f)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("token", envPrefix+"_TOKEN", "DISCORD_TOKEN")
}

// LoadConfig resolves the configuration bound by bindFlags. Flags win over
// environment variables, which win over the config file.
func LoadConfig(v *viper.Viper) (Config, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return Config{}, fmt.Errorf("log level: %w", err)
	}

	cfg := Config{
		Token:        strings.TrimSpace(v.GetString("token")),
		Prefix:       strings.TrimSpace(v.GetString("prefix")),
		ListenAddr:   v.GetString("addr"),
		DirectoryURL: v.GetString("directory-url"),
		StatusURL:    strings.TrimSuffix(v.GetString("status-url"), "/"),
		GatewayURL:   v.GetString("gateway-url"),
		APIURL:       strings.TrimSuffix(v.GetString("api-url"), "/"),
		HTTPTimeout:  v.GetDuration("http-timeout"),
		LogLevel:     level,
	}

	if cfg.Prefix == "" || strings.ContainsAny(cfg.Prefix, " \t\n") {
		return Config{}, fmt.Errorf("invalid prefix %q", cfg.Prefix)
	}
	if cfg.HTTPTimeout <= 0 {
		return Config{}, fmt.Errorf("http timeout must be positive, got %s", cfg.HTTPTimeout)
	}
	return cfg, nil
}

// RequireToken reports errMissingToken when no bot token was configured.
func (c Config) RequireToken() error {
	if c.Token == "" {
		return errMissingToken
	}
	return nil
}

func defaultAddr() string {
	// Railway, Render, etc. set PORT
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":8090"
}
