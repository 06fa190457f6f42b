package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/reel-extract-go/api"
	"github.com/yourusername/reel-extract-go/internal/app"
	"github.com/yourusername/reel-extract-go/internal/domain"
	"github.com/yourusername/reel-extract-go/internal/infrastructure"
	"github.com/yourusername/reel-extract-go/pkg/logger"
)

const version = "1.0.0"

var (
	serverMode = flag.Bool("server-mode", false, "Internal flag: run in server mode (called by daemon)")
	foreground = flag.Bool("foreground", false, "Run in the foreground instead of detaching")
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	if *serverMode || *foreground {
		runServer()
		return
	}

	startAsDaemon()
}

// startAsDaemon re-executes the binary in server mode, detached from the terminal
func startAsDaemon() {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	args := []string{"-server-mode"}
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}
	cmd := exec.Command(execPath, args...)
	cmd.Dir = cwd
	cmd.Env = os.Environ()
	detach(cmd)

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", os.DevNull, err)
		os.Exit(1)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", cmd.Process.Pid)
	os.Exit(0)
}

func runServer() {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
		Service:    "reel-extract",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Event logs: fetch outcomes and application errors, one file per day
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Logging.LogsDir,
	})
	if err != nil {
		log.Fatal("Failed to initialize event logs", zap.Error(err))
	}
	defer multiLog.Close()

	log.Info("Starting reel-extract server",
		zap.String("version", version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.Int64("max_size_bytes", config.Fetch.MaxSizeBytes),
		zap.Bool("proxy", config.HTTP.ProxyURL != ""),
		zap.Bool("auth", config.Server.AuthToken != ""))

	orchestrator, repo, err := buildOrchestrator(config, log, multiLog)
	if err != nil {
		log.Fatal("Failed to initialize fetcher", zap.Error(err))
	}
	if repo != nil {
		defer repo.Close()
	}

	api.Version = version
	options := api.RouterOptions{
		Server:  &config.Server,
		Fetcher: orchestrator,
		LogsDir: config.Logging.LogsDir,
		Logger:  log,
		Events:  multiLog,
	}
	if repo != nil {
		options.History = repo
	}
	router := api.SetupRouter(options)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// in-flight fetches get the request timeout to finish and clean up
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Fetch.RequestTimeout+5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// buildOrchestrator wires the HTTP client, strategies, temp files and history
func buildOrchestrator(config *domain.Config, log *zap.Logger, multiLog *logger.MultiLogger) (*app.FetchOrchestrator, *infrastructure.SQLiteFetchRepository, error) {
	client, err := infrastructure.NewHTTPClient(&config.HTTP)
	if err != nil {
		return nil, nil, err
	}

	strategies, err := app.BuildStrategies(config, client, log)
	if err != nil {
		return nil, nil, err
	}
	chains, err := app.BuildChains(config.Fetch.Chains, strategies)
	if err != nil {
		return nil, nil, err
	}
	for platform := range chains {
		log.Info("Fetch chain configured",
			zap.String("platform", string(platform)),
			zap.Strings("strategies", config.Fetch.Chains[string(platform)]))
	}

	temps, err := infrastructure.NewTempFileManager(config.Fetch.TempDir)
	if err != nil {
		return nil, nil, err
	}

	var repo *infrastructure.SQLiteFetchRepository
	var history domain.FetchRepository
	if config.History.Enabled {
		repo, err = infrastructure.NewSQLiteFetchRepository(config.History.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		history = repo
	}

	orchestrator := app.NewFetchOrchestrator(chains, temps, history, &config.Fetch, log.Named("fetch"), multiLog)
	return orchestrator, repo, nil
}
