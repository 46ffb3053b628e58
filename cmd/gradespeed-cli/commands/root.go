package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gradespeed-backend/internal/components/chrono"
	"gradespeed-backend/internal/components/telemetry"
	"gradespeed-backend/internal/gradeservice"
	"gradespeed-backend/internal/store"
	"gradespeed-backend/internal/transport"
	"gradespeed-backend/lib/configutil"

	"github.com/spf13/cobra"
)

type appState struct {
	config    Config
	clock     chrono.API
	tel       telemetry.API
	kv        store.KV
	providers telemetry.Providers
	service   *gradeservice.Service
}

var (
	configName *string
	verbose    *bool
	app        *appState
)

var rootCmd = &cobra.Command{
	Use:   "gradespeed-cli",
	Short: "gradespeed-cli fetches grades and attendance from GradeSpeed district portals.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		state, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		app = state
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app == nil {
			return
		}
		err := app.kv.Close()
		if err != nil {
			slog.Warn("failed to close store", "err", err)
		}
		err = app.providers.Shutdown(context.Background())
		if err != nil {
			slog.Warn("failed to shutdown telemetry", "err", err)
		}
	},
	SilenceUsage: true,
}

func init() {
	configName = rootCmd.PersistentFlags().String("config", "gradespeed.json5", "The config file to search for from the working directory upwards.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Show debug logs.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*appState, error) {
	config, err := configutil.ReadRecursively[Config](*configName)
	missing := errors.Is(err, os.ErrNotExist)
	if err != nil && !missing {
		return nil, fmt.Errorf("read config: %w", err)
	}

	telemetry.InitSlog(*verbose || config.Verbose)
	if missing {
		slog.Debug("no config file found, using defaults", "name", *configName)
	}

	providers, err := telemetry.Setup(ctx, "gradespeed-cli", config.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}

	clock, err := chrono.NewStandardImpl()
	if err != nil {
		return nil, err
	}
	tel := telemetry.SlogAPI{}

	kv, err := config.Store.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	service, err := gradeservice.NewService(ctx, gradeservice.Options{
		Store: store.NewStore(kv),
		NewTransport: func() (transport.Transport, error) {
			return transport.NewRestyTransport(config.Http.options(), tel)
		},
		Clock: clock,
		Tel:   tel,
	})
	if err != nil {
		kv.Close()
		return nil, err
	}

	return &appState{
		config:    config,
		clock:     clock,
		tel:       tel,
		kv:        kv,
		providers: providers,
		service:   service,
	}, nil
}

// activeHandle returns the handle of the active student, logging in with the
// configured credentials when nobody has logged in yet.
func activeHandle(ctx context.Context) (*gradeservice.Handle, error) {
	handle, found, err := app.service.ActiveIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if found {
		return handle, nil
	}
	if app.config.Username == "" {
		return nil, fmt.Errorf("nobody is logged in, run the login command first")
	}
	slog.Info("logging in with configured credentials", "district", app.config.District, "username", app.config.Username)
	return login(ctx, loginParams{
		district:  app.config.District,
		username:  app.config.Username,
		password:  app.config.Password,
		studentID: app.config.StudentID,
	})
}
