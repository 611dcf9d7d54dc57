package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/joho/godotenv/autoload"
	elog "github.com/labstack/gommon/log"
	"github.com/spf13/cobra"

	"cinedex/pkg/catalog"
	"cinedex/pkg/config"
	"cinedex/pkg/poster"
	queuewebp "cinedex/pkg/queue/webp"
	"cinedex/pkg/server"
	"cinedex/pkg/source"
	"cinedex/pkg/utils"
	"cinedex/pkg/watch"
)

var flags struct {
	config  string
	dataDir string
	baseURL string
	listen  string
	watch   bool
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:           "cinedex",
	Short:         "Franchise movie catalog: browse, tier lists and viewing orders",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if flags.verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func main() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "config file (default ./"+config.DefaultFile+" if present)")
	pf.StringVar(&flags.dataDir, "data", "", "dataset directory")
	pf.StringVar(&flags.baseURL, "base-url", "", "fetch datasets from this URL instead of the data directory")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	serveCmd.Flags().StringVarP(&flags.listen, "listen", "l", "", "listen address (default :"+config.DefaultPort+")")
	serveCmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "reload when dataset files change")

	rootCmd.AddCommand(serveCmd, orderCmd, tiersCmd, searchCmd, diffCmd)

	if err := rootCmd.Execute(); err != nil {
		if code := config.Code(err); code != "" {
			log.Error("configuration error", "code", code, "error", err)
		} else {
			log.Error(err)
		}
		os.Exit(1)
	}
}

// setup loads the configuration and builds the catalog it describes.
func setup(cmd *cobra.Command) (config.Config, *catalog.Store, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(cwd, config.CLIArgs{
		ConfigPath: flags.config,
		DataDir:    flags.dataDir,
		BaseURL:    flags.baseURL,
		Listen:     flags.listen,
		Watch:      flags.watch,
		WatchSet:   cmd.Flags().Changed("watch"),
	})
	if err != nil {
		return cfg, nil, err
	}

	var src source.Source
	franchises := cfg.Franchises
	if cfg.Remote() {
		if src, err = source.NewHTTP(cfg.BaseURL, cfg.FetchTimeout); err != nil {
			return cfg, nil, err
		}
	} else {
		dir := source.NewDir(cfg.DataDir)
		src = dir
		if len(franchises) == 0 {
			if franchises, err = catalog.DiscoverFranchises(dir, cfg.CharacterFile); err != nil {
				return cfg, nil, fmt.Errorf("discovering franchises in %s: %w", cfg.DataDir, err)
			}
		}
	}
	if len(franchises) == 0 {
		return cfg, nil, fmt.Errorf("no franchises configured or found in %s", src)
	}

	store, err := catalog.NewStore(catalog.Options{
		Source:        src,
		Franchises:    franchises,
		CharacterFile: cfg.CharacterFile,
		TTL:           cfg.CacheTTL,
	})
	if err != nil {
		return cfg, nil, err
	}
	log.Debug("catalog configured", "source", src.String(), "franchises", len(franchises), "config", cfg.File)
	return cfg, store, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, done := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer done()

	cfg, store, err := setup(cmd)
	if err != nil {
		return err
	}

	if cfg.StateFile != "" && utils.Exists(cfg.StateFile) {
		if err := store.LoadState(cfg.StateFile); err != nil {
			log.Warn("failed to restore catalog baseline", "path", cfg.StateFile, "error", err)
		}
	}

	q := queuewebp.New(cfg.PosterQueue)
	q.Start()
	defer q.Stop()
	posters := poster.New(cfg.PosterDirs(), filepath.Join(cfg.CacheDir, "posters"), q)

	srv := server.NewServer(ctx, store, posters)
	srv.StateFile = cfg.StateFile
	if flags.verbose {
		srv.Echo.Logger.SetLevel(elog.DEBUG)
	} else {
		srv.Echo.Logger.SetLevel(elog.INFO)
	}

	if cfg.Watch {
		if cfg.Remote() {
			log.Warn("watch ignored for remote datasets", "base_url", cfg.BaseURL)
		} else {
			w := watch.New(cfg.DataDir, func(ctx context.Context, files []string) {
				log.Info("datasets changed, reloading", "files", files)
				store.Reload(ctx, nil)
			})
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("watching %s: %w", cfg.DataDir, err)
			}
			defer w.Stop()
		}
	}

	go func() {
		res := store.Reload(ctx, nil)
		if n := res.Failed(); n > 0 {
			log.Warn("some franchises failed to load", "failed", n, "of", len(res.Statuses))
		}
	}()

	finishedShutDown := make(chan struct{})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", "error", err)
		}
		close(finishedShutDown)
	}()

	if err := srv.Start(cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		done()
		<-finishedShutDown
		return err
	}
	<-finishedShutDown
	return nil
}
