// Command capwatch is the live caption translation daemon.
//
// Usage:
//
//	capwatch -config capwatch.yaml                      # meetings from YAML (and -db)
//	capwatch -url https://meet.google.com/x -lang fr    # one meeting, started at once
//	capwatch -replay ./frames -lang fr                  # HTML snapshots, no browser
//	capwatch -db capwatch.db -list                      # show the meetings table
//	capwatch -db capwatch.db -add standup -url https://meet.google.com/x -lang fr
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/capwatch"
	"github.com/hazyhaar/capwatch/caption"
	"github.com/hazyhaar/capwatch/internal/config"
	"github.com/hazyhaar/capwatch/internal/htmldoc"
	"github.com/hazyhaar/capwatch/internal/metrics"
	"github.com/hazyhaar/capwatch/internal/translate"
)

type options struct {
	configPath     string
	dbPath         string
	singleURL      string
	lang           string
	voice          string
	endpoint       string
	replayDir      string
	replayInterval time.Duration
	list           bool
	add            string
	addr           string
	lockPath       string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to capwatch.yaml config file")
	flag.StringVar(&o.dbPath, "db", "", "SQLite database holding the meetings table")
	flag.StringVar(&o.singleURL, "url", "", "caption a single meeting URL")
	flag.StringVar(&o.lang, "lang", "", "target language for -url, -replay and -add")
	flag.StringVar(&o.voice, "voice", "", "voice ID for synthesized audio")
	flag.StringVar(&o.endpoint, "endpoint", "", "translation endpoint (overrides config)")
	flag.StringVar(&o.replayDir, "replay", "", "replay a directory of HTML caption snapshots")
	flag.DurationVar(&o.replayInterval, "replay-interval", time.Second, "time between replay frames")
	flag.BoolVar(&o.list, "list", false, "print the meetings table and exit")
	flag.StringVar(&o.add, "add", "", "save meeting ID with -url and -lang to -db and exit")
	flag.StringVar(&o.addr, "addr", "", "control plane listen address (overrides config)")
	flag.StringVar(&o.lockPath, "lock", "", "lock file guarding the browser profile")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger := newLogger(*logLevel)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Error("capwatch: load .env", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("capwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
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
	opts := &slog.HandlerOptions{Level: lvl}
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	switch {
	case o.list:
		return runList(ctx, o)
	case o.add != "":
		return runAdd(ctx, o)
	}

	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	if o.replayDir == "" && o.dbPath == "" && len(cfg.Meetings) == 0 {
		fmt.Fprintln(os.Stderr, "usage: capwatch -config <file> | -url <url> -lang <lang> | -replay <dir> -lang <lang> | -db <file> -list")
		os.Exit(2)
	}
	return serve(ctx, logger, cfg, o)
}

// loadConfig merges the YAML file and flags. Meetings from the database
// are applied later through SyncMeetings so they can be removed again.
func loadConfig(o options) (*capwatch.Config, error) {
	cfg := &capwatch.Config{}
	if o.configPath != "" {
		c, err := capwatch.LoadConfigFile(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	} else {
		cfg.ApplyDefaults()
	}

	if o.endpoint != "" {
		cfg.Translate.Endpoint = o.endpoint
	}
	if o.addr != "" {
		cfg.HTTP.Addr = o.addr
	}
	if o.lang != "" {
		cfg.Translate.TargetLanguage = o.lang
	}
	if o.singleURL != "" {
		cfg.Meetings = append(cfg.Meetings, capwatch.MeetingConfig{
			ID:             "meeting",
			URL:            o.singleURL,
			TargetLanguage: cfg.Translate.TargetLanguage,
			VoiceID:        o.voice,
			AutoStart:      true,
		})
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(ctx context.Context, logger *slog.Logger, cfg *capwatch.Config, o options) error {
	// Before capwatch.New: instruments bind to the global provider once.
	shutdownMetrics, err := metrics.InitProvider()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer shutdownMetrics(context.Background())

	tr, err := translate.New(cfg.Translate.Endpoint,
		translate.WithAPIKey(os.Getenv("CAPWATCH_API_KEY")),
		translate.WithTimeout(cfg.Translate.Timeout),
		translate.WithLogger(logger))
	if err != nil {
		return err
	}

	sinks, overlay, err := capwatch.BuildSinks(cfg, nil, logger)
	if err != nil {
		return err
	}
	svc := capwatch.New(cfg, tr, logger, sinks...)

	var replay *htmldoc.Replay
	if o.replayDir != "" {
		replay, err = htmldoc.LoadDir(o.replayDir)
		if err != nil {
			return err
		}
		m := capwatch.MeetingConfig{ID: "replay", URL: "file://" + o.replayDir, TargetLanguage: cfg.Translate.TargetLanguage, VoiceID: o.voice}
		if err := svc.Attach(ctx, m, replay); err != nil {
			return err
		}
		if _, err := svc.StartMonitoring(ctx, m.ID, caption.Command{Command: caption.CommandStart}); err != nil {
			return err
		}
	} else {
		lock, err := lockProfile(cfg, o)
		if err != nil {
			return err
		}
		defer lock.Unlock()
		if err := svc.Start(ctx); err != nil {
			return err
		}
	}

	var db *sql.DB
	if o.dbPath != "" && replay == nil {
		db, err = config.OpenDB(o.dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		rows, err := config.LoadMeetings(ctx, db)
		if err != nil {
			return err
		}
		if err := svc.SyncMeetings(ctx, rows); err != nil {
			logger.Error("capwatch: some meetings failed to open", "error", err)
		}
	}

	var overlayHandler http.Handler
	if overlay != nil {
		overlayHandler = overlay
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           svc.Handler(overlayHandler, metrics.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("capwatch: control plane listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if replay != nil {
		g.Go(func() error { return advanceReplay(gctx, logger, replay, o.replayInterval) })
	}
	if db != nil {
		g.Go(func() error {
			return config.WatchMeetings(gctx, db, config.WatchOptions{Logger: logger},
				func(rows []config.MeetingConfig) error { return svc.SyncMeetings(gctx, rows) })
		})
	}

	err = g.Wait()
	svc.Stop()
	return err
}

// advanceReplay serves each frame for interval, then holds the last one.
func advanceReplay(ctx context.Context, logger *slog.Logger, r *htmldoc.Replay, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !r.Next() {
				logger.Info("capwatch: replay finished, holding last frame", "frames", r.Len())
				return nil
			}
			pos, name := r.Current()
			logger.Debug("capwatch: replay frame", "pos", pos, "name", name)
		}
	}
}

// lockProfile makes sure only one daemon drives a Chrome profile.
func lockProfile(cfg *capwatch.Config, o options) (*flock.Flock, error) {
	path := o.lockPath
	if path == "" && cfg.Browser.UserDataDir != "" {
		path = filepath.Join(cfg.Browser.UserDataDir, "capwatch.lock")
	}
	if path == "" {
		path = filepath.Join(os.TempDir(), "capwatch.lock")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lock dir: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another capwatch instance holds %s", path)
	}
	return lock, nil
}
