package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nicebartender/starinfo/command"
	"github.com/nicebartender/starinfo/discord"
	"github.com/nicebartender/starinfo/starblast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:          "starinfo",
		Short:        "Discord bot that reports on Starblast.io game sessions",
		Long:         "starinfo connects to Discord and answers `!info <starblast link>` with the session's mode, uptime, players and join link.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(v)
			if err != nil {
				return err
			}
			setupLogging(os.Stdout, cfg.LogLevel)

			if err := cfg.RequireToken(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBot(ctx, cfg)
		},
	}

	bindFlags(rootCmd, v)
	rootCmd.AddCommand(newLookupCmd(v))

	return rootCmd
}

func setupLogging(w io.Writer, level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func newSystemsClient(cfg Config) *starblast.Client {
	return starblast.NewClient(
		starblast.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		starblast.WithDirectoryURL(cfg.DirectoryURL),
		starblast.WithStatusBaseURL(cfg.StatusURL),
	)
}

func runBot(ctx context.Context, cfg Config) error {
	rest, err := discord.NewREST(cfg.Token,
		discord.WithAPIBaseURL(cfg.APIURL),
		discord.WithRESTHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
	)
	if err != nil {
		return err
	}
	router := command.NewRouter(cfg.Prefix, rest, newSystemsClient(cfg))
	gateway := discord.NewGateway(cfg.Token, router.Handle, discord.WithGatewayURL(cfg.GatewayURL))
	router.SelfID = gateway.UserID

	if cfg.ListenAddr != "" {
		srv := &http.Server{Addr: cfg.ListenAddr, Handler: healthHandler(gateway)}
		go func() {
			slog.Info("health server listening", "addr", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("health server failed", "err", err)
			}
		}()
		defer srv.Close()
	}

	slog.Info("starinfo starting", "prefix", cfg.Prefix)
	err = gateway.Run(ctx)
	drainHandlers(gateway, shutdownWait(cfg))
	if err != nil {
		slog.Error("gateway stopped", "err", err)
		return err
	}
	slog.Info("starinfo stopped")
	return nil
}

type handlerDrainer interface {
	WaitHandlers(timeout time.Duration) bool
}

// shutdownWait bounds how long in-flight !info invocations may run after the
// gateway stops: placeholder, directory, status and edit each get one timeout.
func shutdownWait(cfg Config) time.Duration {
	return 4 * cfg.HTTPTimeout
}

func drainHandlers(d handlerDrainer, timeout time.Duration) bool {
	if d.WaitHandlers(timeout) {
		return true
	}
	slog.Warn("handlers still running at shutdown", "timeout", timeout)
	return false
}

type connectionState interface {
	IsConnected() bool
}

func healthHandler(gateway connectionState) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		state := "disconnected"
		if gateway.IsConnected() {
			state = "connected"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "gateway": state})
	})
	return mux
}
