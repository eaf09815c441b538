// Package main provides the entry point for the lace server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/runlace/core/internal/config"
	"github.com/runlace/core/internal/db"
	"github.com/runlace/core/internal/logging"
	"github.com/runlace/core/internal/provider"
	"github.com/runlace/core/internal/server"
	"github.com/runlace/core/internal/storage"
	"github.com/runlace/core/internal/task"
	"github.com/runlace/core/internal/thread"
	"github.com/runlace/core/internal/tool"
)

var (
	port      = flag.Int("port", 8080, "Server port")
	directory = flag.String("directory", "", "Working directory")
	version   = flag.Bool("version", false, "Print version and exit")
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("lace-server %s (%s)\n", Version, BuildTime)
		os.Exit(0)
	}

	workDir := *directory
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			log.Fatalf("failed to get working directory: %v", err)
		}
	}

	logging.Init(logging.DefaultConfig())
	defer logging.Close()

	logging.Info().Str("version", Version).Str("workDir", workDir).Msg("starting lace server")

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		log.Fatalf("failed to create data directories: %v", err)
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store := storage.New(paths.StoragePath())

	ctx := context.Background()
	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to initialize some providers")
	}

	toolReg := tool.DefaultRegistry(workDir, store)

	conn, err := db.Open(paths.Data)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer conn.Close()

	threadStore := thread.New(conn)
	taskStore := task.New(conn)
	toolReg.RegisterTaskManagementTools(taskStore)

	serverConfig := server.DefaultConfig()
	serverConfig.Port = *port
	serverConfig.Directory = workDir

	srv := server.New(serverConfig, appConfig, providerReg, toolReg, threadStore, taskStore)

	go func() {
		logging.Info().Int("port", *port).Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("server stopped")
}
