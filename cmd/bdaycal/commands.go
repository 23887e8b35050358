package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/bdaycal/internal/calendar"
	"github.com/nhle/bdaycal/internal/credential"
	"github.com/nhle/bdaycal/internal/extract"
	"github.com/nhle/bdaycal/internal/ledger"
	"github.com/nhle/bdaycal/internal/logger"
	"github.com/nhle/bdaycal/internal/mail"
	"github.com/nhle/bdaycal/internal/model"
	"github.com/nhle/bdaycal/internal/pipeline"
	"github.com/nhle/bdaycal/internal/store"
	"github.com/nhle/bdaycal/internal/theme"
)

type runFlags struct {
	dryRun     bool
	manualAuth bool
}

func newRootCmd() *cobra.Command {
	var envFile string
	var flags runFlags

	rootCmd := &cobra.Command{
		Use:   "bdaycal",
		Short: "Turn birthday emails into yearly calendar events",
		Long: "bdaycal reads unread mail for marked birthdays, records them in a CSV ledger\n" +
			"and adds each one to a Google Calendar as a yearly all-day event.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, envFile, flags)
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with settings")
	addRunFlags(rootCmd, &flags)

	rootCmd.AddCommand(runCmd(&envFile))
	rootCmd.AddCommand(authCmd(&envFile))
	rootCmd.AddCommand(ledgerCmd(&envFile))
	rootCmd.AddCommand(historyCmd(&envFile))

	return rootCmd
}

func addRunFlags(cmd *cobra.Command, flags *runFlags) {
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "record to the ledger but keep mail and create no events")
	cmd.Flags().BoolVar(&flags.manualAuth, "manual-auth", false, "paste the authorization code instead of using a local callback")
}

func runCmd(envFile *string) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process unread mail and sync the ledger to the calendar (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, *envFile, flags)
		},
	}
	addRunFlags(cmd, &flags)
	return cmd
}

func authCmd(envFile *string) *cobra.Command {
	var manual, reset bool

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize calendar access and cache the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := setup(cmd, *envFile)
			if err != nil {
				return err
			}

			tokens, err := openTokens(cfg)
			if err != nil {
				return err
			}
			if reset {
				if err := tokens.Delete(); err != nil {
					return err
				}
			}

			auth, err := newAuthenticator(cfg, tokens, manual, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if _, err := auth.Token(ctx); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Calendar access authorized.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&manual, "manual-auth", false, "paste the authorization code instead of using a local callback")
	cmd.Flags().BoolVar(&reset, "reset", false, "discard the cached token first")
	return cmd
}

func ledgerCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "Show the records in the CSV ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := setup(cmd, *envFile)
			if err != nil {
				return err
			}

			recs, err := ledger.New(cfg.LedgerPath).Load()
			if err != nil {
				return err
			}

			theme.NewPrinter(cmd.OutOrStdout()).Records(recs)
			return nil
		},
	}
}

func historyCmd(envFile *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := setup(cmd, *envFile)
			if err != nil {
				return err
			}
			if cfg.HistoryPath == "" {
				return errors.New("run history is disabled (HISTORY_PATH is empty)")
			}

			db, err := store.NewSQLiteStore(cfg.HistoryPath)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(ctx, limit)
			if err != nil {
				return err
			}

			theme.NewPrinter(cmd.OutOrStdout()).Runs(runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show (0 for all)")
	return cmd
}

// setup loads configuration and puts a configured logger in the command's
// context.
func setup(cmd *cobra.Command, envFile string) (context.Context, *model.AppConfig, error) {
	cfg, err := model.LoadConfig(envFile)
	if err != nil {
		return nil, nil, err
	}

	log := logger.New(cfg.LogLevel)
	ctx := logger.WithContext(cmd.Context(), log)
	cmd.SetContext(ctx)
	return ctx, cfg, nil
}

// failureLogger returns the logger set up by the command that failed, or an
// info logger when it failed before its settings were loaded.
func failureLogger(cmd *cobra.Command) zerolog.Logger {
	if cmd != nil {
		if log, ok := logger.Lookup(cmd.Context()); ok {
			return log
		}
	}
	return logger.New("")
}

func runPipeline(cmd *cobra.Command, envFile string, flags runFlags) error {
	ctx, cfg, err := setup(cmd, envFile)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)

	ex, err := extract.New(markers(cfg.Markers))
	if err != nil {
		return err
	}

	mailClient := mail.NewIMAPClient(
		cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username, cfg.Mail.Password, cfg.Mail.TLS,
	)
	mailbox := pipeline.MailConnectorFunc(func(ctx context.Context) (pipeline.Mailbox, error) {
		s, err := mailClient.Connect(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	out := cmd.OutOrStdout()
	cal := pipeline.CalendarConnectorFunc(func(ctx context.Context) (pipeline.Calendar, error) {
		tokens, err := openTokens(cfg)
		if err != nil {
			return nil, err
		}
		auth, err := newAuthenticator(cfg, tokens, flags.manualAuth, out)
		if err != nil {
			return nil, err
		}
		svc, err := auth.Authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return svc, nil
	})

	var history pipeline.History
	if cfg.HistoryPath != "" {
		db, err := store.NewSQLiteStore(cfg.HistoryPath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.HistoryPath).Msg("Run history disabled")
		} else {
			defer db.Close()
			history = db
		}
	}

	printer := theme.NewPrinter(out)
	runner := pipeline.NewRunner(
		pipeline.Options{CalendarID: cfg.Calendar.CalendarID, DryRun: flags.dryRun},
		mailbox,
		ledger.New(cfg.LedgerPath),
		cal,
		ex,
		printer,
		history,
	)

	res, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if res.Fetched > 0 {
		printer.Summary(res.RunCounts)
	}
	log.Debug().
		Str("run_id", res.RunID).
		Int("fetched", res.Fetched).
		Int("recorded", res.Recorded).
		Int("created", res.Created).
		Msg("Run finished")
	return nil
}

// markers overlays the configured marker tokens on the extractor defaults.
func markers(mc model.MarkerConfig) extract.Markers {
	m := extract.DefaultMarkers()
	if mc.Description != "" {
		m.Description = mc.Description
	}
	if mc.Date != "" {
		m.Date = mc.Date
	}
	if mc.Delimiter != "" {
		m.Delimiter = mc.Delimiter
	}
	return m
}

func openTokens(cfg *model.AppConfig) (*credential.TokenStore, error) {
	ring, err := credential.OpenKeyring(cfg.Calendar.KeyringBackend, cfg.Calendar.TokenDir)
	if err != nil {
		return nil, err
	}
	return credential.NewTokenStore(ring, credential.TokenKey), nil
}

func newAuthenticator(
	cfg *model.AppConfig, tokens calendar.TokenStore, manual bool, out io.Writer,
) (*calendar.Authenticator, error) {
	secret, err := calendar.LoadClientSecret(cfg.Calendar.ClientSecretPath)
	if err != nil {
		return nil, err
	}

	var consent calendar.Consent = &calendar.LoopbackConsent{Out: out}
	if manual {
		consent = &calendar.ManualConsent{Out: out}
	}

	return calendar.NewAuthenticator(secret, tokens, consent)
}
