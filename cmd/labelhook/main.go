package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/tracyhatemice/labelhook/internal/config"
	"github.com/tracyhatemice/labelhook/internal/credential"
	"github.com/tracyhatemice/labelhook/internal/forwarder"
	"github.com/tracyhatemice/labelhook/internal/receiver"
	"github.com/tracyhatemice/labelhook/internal/sender"
)

const defaultConfigPath = "config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath, *configPath != defaultConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		var nf *receiver.NotFoundError
		if errors.As(err, &nf) {
			logger.Error("label not found", "label", nf.Name, "labels", nf.Available)
		}
		logger.Error("labelhook failed", "error", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	recv, err := newReceiver(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer recv.Close()

	snd := sender.New(cfg.Webhook.URL, cfg.Webhook.Extra(), cfg.Webhook.Delay(), logger)
	fwd := forwarder.New(forwarder.Options{
		NewLabel:     cfg.NewLabel,
		OldLabel:     cfg.OldLabel,
		ErrorMessage: cfg.Webhook.ErrorMessage,
	}, recv, snd, logger)

	logger.Info("labelhook starting", "provider", cfg.Provider, "label", cfg.NewLabel)
	return fwd.Run(ctx, cfg.PollInterval())
}

func newReceiver(ctx context.Context, cfg *config.Config, logger *slog.Logger) (receiver.Receiver, error) {
	switch cfg.Provider {
	case "gmail":
		store, err := newTokenStore(cfg.Gmail)
		if err != nil {
			return nil, err
		}
		httpClient, err := credential.Client(ctx, cfg.Gmail.CredentialsFile, store,
			credential.Prompt{In: os.Stdin, Out: os.Stderr})
		if err != nil {
			return nil, fmt.Errorf("gmail credentials: %w", err)
		}
		srv, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
		if err != nil {
			return nil, fmt.Errorf("create gmail service: %w", err)
		}
		return receiver.NewGmail(srv, logger), nil
	case "imap":
		return receiver.NewIMAP(
			cfg.IMAP.Host, cfg.IMAP.Port,
			cfg.IMAP.Username, cfg.IMAP.Password,
			cfg.IMAP.UseTLS, logger,
		), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func newTokenStore(g config.Gmail) (credential.TokenStore, error) {
	if g.TokenStore == "keyring" {
		ring, err := credential.OpenKeyring(g.KeyringService)
		if err != nil {
			return nil, err
		}
		return credential.NewKeyringStore(ring, "gmail-token"), nil
	}
	return credential.FileStore{Path: g.TokenFile}, nil
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
