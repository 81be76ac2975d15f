package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/tiendalink/tiendasync/pkg/api"
	"github.com/tiendalink/tiendasync/pkg/config"
	"github.com/tiendalink/tiendasync/pkg/credstore"
	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/jsonx"
	"github.com/tiendalink/tiendasync/pkg/logger"
	"github.com/tiendalink/tiendasync/pkg/session"
	"github.com/tiendalink/tiendasync/pkg/store/core"
	"github.com/tiendalink/tiendasync/pkg/store/resolver"
	syncpkg "github.com/tiendalink/tiendasync/pkg/sync"
	"github.com/tiendalink/tiendasync/pkg/transform"

	// Import all engines to register them
	_ "github.com/tiendalink/tiendasync/pkg/store/mssql"
	_ "github.com/tiendalink/tiendasync/pkg/store/mysql"
	_ "github.com/tiendalink/tiendasync/pkg/store/postgres"
	_ "github.com/tiendalink/tiendasync/pkg/store/sqlite"
)

var version = "0.1.0"

// sourceFile holds the last connection settings that resolved
// successfully, so the next run can skip reconfiguration.
const sourceFile = ".tiendasync-source.yaml"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:     "tiendasync",
		Short:   "Sync local retail records to the cloud API",
		Version: version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "tiendasync.yaml", "configuration file")

	root.AddCommand(
		newSyncCmd(&configPath),
		newFetchCmd(&configPath),
		newProbeCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    cfg.Logging.Encoding,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newSyncCmd(configPath *string) *cobra.Command {
	var (
		tables []string
		every  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a sync, once or on a timer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if len(tables) > 0 {
				cfg.Sync.Tables = tables
			}
			if cmd.Flags().Changed("every") {
				cfg.Sync.Interval = every
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn, err := openSource(ctx, cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			orch := buildOrchestrator(cfg, conn)

			if cfg.Sync.Interval > 0 {
				logger.Info("timer sync started",
					zap.Duration("interval", cfg.Sync.Interval),
					zap.Strings("tables", cfg.Sync.Tables))
				orch.Schedule(ctx, cfg.Sync.Interval, cfg.Sync.Tables)
				return nil
			}

			summary, err := orch.Run(ctx, cfg.Sync.Tables)
			if err != nil {
				return err
			}
			if summary.Cancelled {
				fmt.Println("sync cancelled")
				return nil
			}
			for table, rows := range summary.Uploaded {
				fmt.Printf("%s: %d rows\n", table, rows)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tables, "tables", nil, "tables to sync (default: all known tables)")
	cmd.Flags().DurationVar(&every, "every", 0, "repeat the sync on this interval (0 runs once)")
	return cmd
}

func newFetchCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "fetch [producto|cliente|venta|detalleventa]",
		Short:     "Fetch remote records for display",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"producto", "cliente", "venta", "detalleventa"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			client := api.NewClient(&cfg.API)
			sess := session.NewManager(client.Login, terminalPrompt(),
				session.WithTokenTTL(cfg.Sync.TokenTTL))

			token, ok, err := sess.Ensure(ctx)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("fetch cancelled")
				return nil
			}

			var records interface{}
			switch strings.ToLower(args[0]) {
			case "producto":
				records, err = client.FetchProductos(ctx, token)
			case "cliente":
				records, err = client.FetchClientes(ctx, token)
			case "venta":
				records, err = client.FetchVentas(ctx, token)
			case "detalleventa":
				records, err = client.FetchDetalleVentas(ctx, token)
			}
			if err != nil {
				if errors.IsType(err, errors.ErrorTypeAuthentication) {
					sess.Invalidate()
				}
				return err
			}

			enc := jsonx.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		},
	}
}

func newProbeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Detect the local storage engine and list its tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			conn, err := openSource(ctx, cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			tables, err := conn.ListTables(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("engine: %s\n", conn.Engine())
			for _, table := range tables {
				fmt.Printf("  %s\n", table)
			}
			return nil
		},
	}
}

// openSource resolves the local database from the configured settings,
// falling back to the settings saved by the previous run when the
// config names no source. Settings that resolve are saved back.
func openSource(ctx context.Context, cfg *config.Config) (core.Connector, error) {
	store := credstore.NewFileStore(sourceFile)

	params := cfg.Source
	if params.Host == "" && params.Database == "" {
		saved, err := store.Load()
		if err != nil {
			return nil, errors.New(errors.ErrorTypeConfig, "no database source configured and no saved settings found")
		}
		params = saved
	}
	if params.Host == "" && params.Database == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "saved connection settings name no database source")
	}

	conn, err := resolver.New().Resolve(ctx, params)
	if err != nil {
		return nil, err
	}

	if err := store.Save(params); err != nil {
		logger.Warn("could not save connection settings", zap.Error(err))
	}
	return conn, nil
}

func buildOrchestrator(cfg *config.Config, conn core.Connector) *syncpkg.Orchestrator {
	client := api.NewClient(&cfg.API)
	sess := session.NewManager(client.Login, terminalPrompt(),
		session.WithTokenTTL(cfg.Sync.TokenTTL))
	return syncpkg.New(conn, transform.New(), client, sess)
}

// terminalPrompt reads credentials interactively. EOF on either field
// counts as a cancelled prompt.
func terminalPrompt() session.CredentialProvider {
	return session.CredentialProviderFunc(func(ctx context.Context) (session.Credentials, bool, error) {
		fmt.Print("Usuario: ")
		reader := bufio.NewReader(os.Stdin)
		username, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return session.Credentials{}, false, nil
		}
		username = strings.TrimSpace(username)
		if username == "" {
			return session.Credentials{}, false, nil
		}

		fmt.Print("Contraseña: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return session.Credentials{}, false, nil
		}

		return session.Credentials{Username: username, Password: string(password)}, true, nil
	})
}
