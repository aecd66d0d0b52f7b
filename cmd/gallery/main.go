package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gallery/internal/config"
	"gallery/internal/gallery"
	"gallery/internal/logging"
	"gallery/internal/store"
	"gallery/internal/store/backends"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

var version = "dev"

// app is the state shared by every subcommand, set up before they run.
type app struct {
	configPath string
	envFile    string
	driver     string
	dsn        string
	key        string
	logLevel   string
	lang       string

	cfg    config.Config
	logger *zap.Logger
	kv     store.KV
	docs   *store.Documents
	repo   *gallery.Repository
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "gallery",
		Short:         "Folder-based image gallery",
		Long:          "gallery keeps images, grouped in folders and tagged, in a single document\nstored in SQLite, Postgres, a JSON file or memory.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["store"] == "none" {
				return nil
			}
			return a.setup(cmd.Context(), cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "config file (default "+config.DefaultPath+" when present)")
	f.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	f.StringVar(&a.driver, "driver", "", "store driver: sqlite3, sqlite, postgres, file, memory")
	f.StringVar(&a.dsn, "dsn", "", "store connection string, or directory for the file driver")
	f.StringVar(&a.key, "key", "", "document key inside the store")
	f.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&a.lang, "lang", "", "BCP 47 language used to sort folder names")

	root.AddCommand(
		newServeCmd(a),
		newFoldersCmd(a),
		newMkdirCmd(a),
		newUploadCmd(a),
		newSearchCmd(a),
		newRmCmd(a),
		newResetCmd(a),
		newExportCmd(a),
		newSeedCmd(a),
		newHashPasswordCmd(),
	)
	return root
}

// setup loads configuration, applies flags and opens the store.
func (a *app) setup(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, a.envFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Store.Driver = a.driver
	}
	if flags.Changed("dsn") {
		cfg.Store.DSN = a.dsn
	}
	if flags.Changed("key") {
		cfg.Store.Key = a.key
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if a.logger == nil {
		a.logger, err = logging.New(cfg.Log.Level, cfg.Log.Development)
		if err != nil {
			return err
		}
	}

	a.kv, err = backends.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, a.logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.docs = store.NewDocuments(a.kv,
		store.WithKey(cfg.Store.Key),
		store.WithLogger(a.logger))

	opts := []gallery.Option{gallery.WithLogger(a.logger)}
	if a.lang != "" {
		tag, err := language.Parse(a.lang)
		if err != nil {
			return fmt.Errorf("--lang: %w", err)
		}
		opts = append(opts, gallery.WithLanguage(tag))
	}
	a.repo = gallery.Open(ctx, a.docs, opts...)
	a.logger.Debug("store opened",
		zap.String("driver", cfg.Store.Driver),
		zap.String("key", cfg.Store.Key),
		zap.Int("images", a.repo.Count()))
	return nil
}

func (a *app) close() error {
	var err error
	if a.kv != nil {
		err = a.kv.Close()
		a.kv = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		a.close()
		os.Exit(1)
	}
}
