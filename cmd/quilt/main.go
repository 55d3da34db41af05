package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"quiltplatform/quilt/config"
	"quiltplatform/quilt/obs"
	"quiltplatform/quilt/schema"
	"quiltplatform/quilt/services"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func initLogging(logFile *os.File) {
	log.SetFlags(log.Lshortfile | log.Ltime | log.Ldate)
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	slog.Info("logging initialized", "log_file", logFile.Name())
}

func initDb(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Panicf("error opening database connection: %v", err)
	}

	err = db.AutoMigrate(
		&schema.User{}, &schema.TaskTemplate{}, &schema.FieldDefinition{},
		&schema.Booking{}, &schema.AuditLog{},
	)
	if err != nil {
		log.Panicf("error migrating db schema: %v", err)
	}

	return db
}

func main() {
	configPath := flag.String("config", "", "Path to yaml config file")
	flag.Parse()

	c, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	logFile, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Panicf("error opening log file: %v", err)
	}
	defer logFile.Close()

	initLogging(logFile)
	obs.Init()

	quilt, err := services.NewQuilt(initDb(c.Dsn), c)
	if err != nil {
		log.Fatalf("error initializing services: %v", err)
	}

	quilt.InitAdmin(c.Admin, c.Tenant)

	r := chi.NewRouter()
	r.Mount("/", quilt.Routes())
	r.Handle("/metrics", obs.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%v", c.Port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		slog.Info("starting server", "port", c.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		slog.Info("shutdown signal received, draining connections")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
