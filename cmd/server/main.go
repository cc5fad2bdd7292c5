package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"loop-streamer/internal/platform/config"
	"loop-streamer/internal/platform/cors"
	"loop-streamer/internal/platform/logger"
	"loop-streamer/internal/platform/metrics"
	"loop-streamer/internal/streamer"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var requiredEnv = []string{"YOUTUBE_STREAM_URL", "YOUTUBE_STREAM_KEY", "DEFAULT_VIDEO_PATH"}

var errMissingEnv = errors.New("missing required environment variables")

func main() {
	_ = config.Load()

	log := logger.New(config.GetEnv("LOG_LEVEL", "info"), config.GetEnv("LOG_FORMAT", "json"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	newEncoder := func(binPath string) streamer.Encoder { return streamer.NewFFmpeg(binPath) }
	if err := run(ctx, log, newEncoder); err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("server stopped")
}

// run serves until ctx is cancelled. The automatic stream is started only
// once the listener is bound.
func run(ctx context.Context, log *slog.Logger, newEncoder func(binPath string) streamer.Encoder) error {
	if missing := config.Missing(requiredEnv...); len(missing) > 0 {
		return fmt.Errorf("%w: %s", errMissingEnv, strings.Join(missing, ", "))
	}

	port := config.GetEnv("PORT", "3000")
	ffmpegPath := config.GetEnv("FFMPEG_PATH", "ffmpeg")
	audioDir := config.GetEnv("AUDIO_DIR", "assets")
	poolSize := config.GetEnvInt("AUDIO_POOL_SIZE", streamer.DefaultPoolSize)
	startLimit := config.GetEnvInt("START_RATE_LIMIT", 10)
	endDelay := config.GetEnvDuration("END_RESTART_DELAY", streamer.DefaultEndRestartDelay)
	killDelay := config.GetEnvDuration("KILL_RESTART_DELAY", streamer.DefaultKillRestartDelay)

	defaults := streamer.Defaults{
		StreamKey: os.Getenv("YOUTUBE_STREAM_KEY"),
		StreamURL: os.Getenv("YOUTUBE_STREAM_URL"),
		VideoPath: os.Getenv("DEFAULT_VIDEO_PATH"),
	}

	corsPolicy, err := cors.NewPolicy(config.GetEnvList("CORS_ORIGINS"))
	if err != nil {
		return fmt.Errorf("invalid CORS_ORIGINS: %w", err)
	}

	met := metrics.New()
	pool := streamer.NewAudioPool(audioDir, poolSize)
	mgr := streamer.NewManager(newEncoder(ffmpegPath), pool, log,
		streamer.WithMetrics(met),
		streamer.WithEncoderName(ffmpegPath),
		streamer.WithRestartDelays(endDelay, killDelay),
	)
	h := streamer.NewHandler(mgr, defaults, log)

	r := chi.NewRouter()
	r.Use(logger.Recoverer(log))
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Use(cors.Middleware(corsPolicy, log))
	r.Get(metrics.ScrapePath, func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSession(mgr.Active()) }).ServeHTTP(w, r)
	})
	r.Get("/", h.Health)
	r.Get("/status", h.Status)
	r.With(startRateLimit(startLimit)).Post("/start-stream", h.StartStream)

	ln, err := net.Listen("tcp", net.JoinHostPort("0.0.0.0", port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}

	log.Info("server running",
		slog.String("addr", ln.Addr().String()),
		slog.String("audio_dir", audioDir),
		slog.Int("audio_pool_size", pool.Size()),
		slog.Duration("end_restart_delay", endDelay),
		slog.Duration("kill_restart_delay", killDelay),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Info("starting automatic stream")
		if err := mgr.StartStream(gctx, defaults.Config(nil)); err != nil {
			log.Error("failed to start automatic stream", slog.String("error", err.Error()))
			return nil
		}
		log.Info("automatic stream started successfully")
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining connections")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := mgr.Close(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// startRateLimit bounds POST /start-stream per client IP; every call tears down the live broadcast.
func startRateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Too many requests"}` + "\n"))
		}),
	)
}
