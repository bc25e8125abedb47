// Command birthdaysync mirrors contact birthdays into recurring all-day
// events on a dedicated calendar. It is built to run unattended from cron
// or a CI schedule: one invocation, one sync pass, exit.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/people/v1"

	"birthdaysync/internal/auth"
	"birthdaysync/internal/config"
	"birthdaysync/internal/dav"
	googleprovider "birthdaysync/internal/google"
	"birthdaysync/internal/graph"
	"birthdaysync/internal/sync"
)

func main() {
	app := &cli.App{
		Name:           "birthdaysync",
		Usage:          "Sync contact birthdays into a dedicated calendar.",
		DefaultCommand: "sync",
		Commands: []*cli.Command{
			syncCommand(),
			loginCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run one synchronization pass and exit.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Print what would change without writing to the calendar."},
			&cli.StringFlag{Name: "calendar-name", Usage: "Override the CALENDAR_NAME target calendar."},
			&cli.DurationFlag{Name: "timeout", Usage: "Overall deadline for the run (0 means none)."},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))

			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if name := c.String("calendar-name"); name != "" {
				cfg.CalendarName = name
			}

			report := setupSentry(cfg.SentryDSN, logger)
			defer sentry.Flush(2 * time.Second)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout := c.Duration("timeout"); timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			source, store, err := buildProvider(ctx, cfg, logger)
			if err != nil {
				return err
			}

			s := sync.New(os.Stdout, logger, source, store, cfg.CalendarName)
			s.DryRun = c.Bool("dry-run")
			s.Report = report

			if _, err := s.Run(ctx); err != nil {
				report(err)
				return err
			}
			return nil
		},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Run the interactive sign-in flow and cache the token.",
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))

			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if cfg.Provider == config.ProviderDAV {
				fmt.Println("The dav provider uses basic auth; there is no token to cache.")
				return nil
			}

			// Drop the cached token so the flow actually runs.
			if err := os.Remove(cfg.TokenPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove cached token: %w", err)
			}

			if _, _, err := buildProvider(c.Context, cfg, logger); err != nil {
				return err
			}
			logger.Info("Signed in, token cached", "path", cfg.TokenPath)
			return nil
		},
	}
}

// buildProvider wires the configured backend into the source/store pair the
// reconciler consumes. Interactive auth, if needed, happens here.
func buildProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (sync.ContactSource, sync.CalendarStore, error) {
	tokenStore := auth.NewFileTokenStore(cfg.TokenPath)

	switch cfg.Provider {
	case config.ProviderGraph:
		httpClient, err := auth.NewGraphSession(ctx, cfg, tokenStore)
		if err != nil {
			return nil, nil, err
		}
		client := graph.NewClient(httpClient, cfg.TargetUser)
		return graph.NewSource(client, logger), graph.NewStore(client), nil

	case config.ProviderGoogle:
		oauthConfig, err := googleOAuthConfig(cfg.GoogleCredentialsPath)
		if err != nil {
			return nil, nil, err
		}
		httpClient, err := auth.NewInteractiveSession(ctx, oauthConfig, tokenStore, readCodeFromStdin)
		if err != nil {
			return nil, nil, err
		}
		source, err := googleprovider.NewSource(ctx, httpClient, logger)
		if err != nil {
			return nil, nil, err
		}
		store, err := googleprovider.NewStore(ctx, httpClient)
		if err != nil {
			return nil, nil, err
		}
		return source, store, nil

	case config.ProviderDAV:
		source, err := dav.NewSource(cfg.DAVServerURL, cfg.DAVUsername, cfg.DAVPassword, cfg.DAVAddressBookURL, logger)
		if err != nil {
			return nil, nil, err
		}
		store, err := dav.NewStore(cfg.DAVServerURL, cfg.DAVUsername, cfg.DAVPassword)
		if err != nil {
			return nil, nil, err
		}
		return source, store, nil
	}

	return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

func googleOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	oauthConfig, err := oauthgoogle.ConfigFromJSON(data, calendar.CalendarScope, people.ContactsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return oauthConfig, nil
}

func readCodeFromStdin() (string, error) {
	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

// setupSentry initializes error reporting when a DSN is configured and
// returns the report hook for non-fatal errors. Without a DSN the hook is
// a no-op.
func setupSentry(dsn string, logger *slog.Logger) func(error) {
	if dsn == "" {
		return func(error) {}
	}
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
		logger.Warn("error reporting disabled", "error", err)
		return func(error) {}
	}
	return func(err error) {
		sentry.CaptureException(err)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}
