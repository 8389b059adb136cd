package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nanato/wp-github-updates/internal/activity"
	"github.com/nanato/wp-github-updates/internal/config"
	"github.com/nanato/wp-github-updates/internal/metrics"
	"github.com/nanato/wp-github-updates/internal/observe"
	"github.com/nanato/wp-github-updates/internal/server"
	"github.com/sirupsen/logrus"
)

var version = "dev"

func setupLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return log
}

func run(log *logrus.Logger) error {
	cfg, err := config.NewServerConfigFromEnv()
	if err != nil {
		return err
	}
	cfg.Version = version
	log.Infof("starting wp-github-updates (version=%s, stage=%s)", version, cfg.Stage)

	if !cfg.DisableMetrics {
		log.Println("setting up metrics exporter...")
		exporter, err := metrics.NewExporter(cfg)
		if err != nil {
			return err
		}
		defer func() {
			exporter.Flush()
			exporter.StopMetricsExporter()
		}()
	}

	log.Printf("opening %s store...", cfg.StoreBackend)
	st, err := cfg.CreateStore(context.Background())
	if err != nil {
		return err
	}
	defer func() {
		log.Println("closing store...")
		if err := st.Close(); err != nil {
			log.Error(err)
		}
	}()

	settings, err := st.Settings(context.Background())
	if err != nil {
		return err
	}
	level, err := logrus.ParseLevel(settings.LogLevel)
	if err != nil {
		log.Warnf("invalid activity log level %q, using error", settings.LogLevel)
		level = logrus.ErrorLevel
	}
	hook := activity.NewHook(st, level)
	hook.Attach(log)

	mirror, err := cfg.CreateMirror()
	if err != nil {
		return err
	}
	if mirror != nil {
		log.Printf("mirroring release archives to bucket %s", cfg.ArchiveBucket)
	}

	log.Println("starting server...")
	srv := &http.Server{
		Addr: cfg.GetServerAddr(),
		Handler: server.New(log, cfg, server.Options{
			Store:    st,
			Hook:     hook,
			Mirror:   mirror,
			Observer: observe.Multi(observe.Logger(log), metrics.Observer()),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Error(err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	log.Println("stopping server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); errors.Is(err, context.DeadlineExceeded) {
		log.Println("closing server...")
		if closeErr := srv.Close(); closeErr != nil {
			return closeErr
		}
	} else if err != nil {
		return err
	}
	log.Println("server stopped!")
	return nil
}

func main() {
	log := setupLogger()
	if err := run(log); err != nil {
		log.Fatal(err)
	}
}
