package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diewo77/go-conventions/internal/assert"
	"github.com/diewo77/go-conventions/internal/config"
	"github.com/diewo77/go-conventions/internal/db"
	"github.com/diewo77/go-conventions/internal/lock"
	"github.com/diewo77/go-conventions/internal/logger"
	"github.com/diewo77/go-conventions/internal/tracing"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	goredislib "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	seedOnlyFlag    = flag.Bool("seed-only", false, "Run DB seed and exit")
	detectLateFlag  = flag.Bool("detect-late", false, "Mark overdue conventions EN_RETARD and exit")
)

func main() {
	flag.Parse()

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.App.LogMode, cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	assert.SetLogger(log)

	shutdownTracing, err := tracing.Init(cfg.App.Tracing, log)
	if err != nil {
		log.Fatal("tracing init failed", "error", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	dbConn, err := db.Connect(cfg.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}

	if *migrateOnlyFlag {
		if err := migrate(cfg, dbConn); err != nil {
			log.Fatal("migration failed", "error", err)
		}
		log.Info("migrations completed successfully")
		return
	}

	if *seedOnlyFlag {
		if err := db.Seed(dbConn); err != nil {
			log.Fatal("seeding failed", "error", err)
		}
		log.Info("seeding completed successfully")
		return
	}

	if cfg.App.Migrations {
		if err := migrate(cfg, dbConn); err != nil {
			log.Fatal("migration failed", "error", err)
		}
		log.Info("migrations completed")
	}
	if cfg.App.Seed {
		if err := db.Seed(dbConn); err != nil {
			log.Fatal("seeding failed", "error", err)
		}
	}

	locker, closeLocker := newLocker(cfg.Redis, log)
	defer closeLocker()

	svc := NewServices(dbConn, locker, log, cfg.App.DimensionCacheTTL)

	if *detectLateFlag {
		ids, err := svc.Conventions.DetecterRetards(context.Background())
		if err != nil {
			log.Fatal("late detection failed", "error", err)
		}
		log.Info("late detection completed", "marked", len(ids))
		return
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      withLogging(log.Component("http"), NewApp(svc)),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Server.Port, "dev", cfg.App.Dev)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
	log.Info("server stopped gracefully")
}

// migrate applies the versioned SQL files on Postgres when SQL_MIGRATIONS is
// set, and GORM AutoMigrate otherwise.
func migrate(cfg *config.Config, conn *gorm.DB) error {
	if cfg.App.SQLMigrations && cfg.Database.Driver == "postgres" {
		if err := db.RunSQLMigrations(cfg.App.MigrationsDir, cfg.Database.URL()); err != nil {
			return err
		}
		return db.CheckTables(conn)
	}
	return db.Migrate(conn)
}

// newLocker returns the redsync locker when Redis is enabled and the
// in-process locker otherwise.
func newLocker(cfg config.RedisConfig, log *logger.Logger) (lock.Locker, func()) {
	if !cfg.Enabled {
		log.Info("using in-process convention lock")
		return lock.NewLocalLocker(), func() {}
	}
	client := goredislib.NewClient(&goredislib.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	log.Info("using redis convention lock", "addr", cfg.Addr)
	return lock.NewRedisLocker(client, lock.DefaultOptions(), log), func() { _ = client.Close() }
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// withLogging tags each request with an id and logs it once served.
func withLogging(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("request",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
