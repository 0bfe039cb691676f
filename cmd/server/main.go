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

	"github.com/music-miko/t/api"
	"github.com/music-miko/t/api/handlers"
	"github.com/music-miko/t/internal/app"
	"github.com/music-miko/t/internal/domain"
	"github.com/music-miko/t/internal/infrastructure"
	"github.com/music-miko/t/pkg/logger"
)

var (
	serverMode = flag.Bool("server-mode", false, "Internal flag: run in server mode (called by daemon)")
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	if !*serverMode {
		startAsDaemon()
		return
	}

	runServer()
}

// startAsDaemon re-executes the binary detached, in server mode
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
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// acquire + error categories
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Download.LogsDir,
	})
	if err != nil {
		log.Fatal("Failed to initialize event logger", zap.Error(err))
	}
	defer multiLog.Close()

	log.Info("Starting mediafetch server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.Bool("store", config.Store.Enabled),
		zap.Bool("legacy", config.Legacy.Enabled),
		zap.Duration("hard_timeout", config.Download.HardTimeout))

	if err := createDirectories(config); err != nil {
		log.Fatal("Failed to create directories", zap.Error(err))
	}

	deps := app.PipelineDeps{
		JobAPI:     infrastructure.NewJobAPIClient(&config.JobAPI, log.Named("jobapi")),
		Normalizer: infrastructure.NewLocatorNormalizer(config.JobAPI.BaseURL, config.JobAPI.InternalPathPrefixes),
		Fetcher:    infrastructure.NewCDNFetcher(&config.CDN, log.Named("cdn")),
		Notifier:   infrastructure.NewNotificationService(&config.Notification, log),
		Stats:      app.NewStats(),
		Logger:     log.Named("pipeline"),
		Events:     multiLog,
	}

	if config.Store.Enabled {
		store, err := infrastructure.NewSQLiteContentStore(&config.Store)
		if err != nil {
			log.Fatal("Failed to initialize content store", zap.Error(err))
		}
		defer store.Close()
		deps.Store = store
	}

	if config.Legacy.Enabled {
		deps.Legacy = infrastructure.NewYTDLPExtractor(&config.Legacy, &config.Download, multiLog)
	}

	pipeline := app.NewAcquisitionPipeline(config, deps)

	readiness := map[string]handlers.ReadinessCheck{
		"job_api": func() error {
			if config.JobAPI.BaseURL == "" || config.JobAPI.APIKey == "" {
				return infrastructure.ErrAPINotConfigured
			}
			return nil
		},
	}

	router := api.SetupRouter(pipeline, readiness, log, multiLog, config.Download.LogsDir)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
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

	// in-flight acquisitions get up to one hard timeout to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Download.HardTimeout+5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

func createDirectories(config *domain.Config) error {
	dirs := []string{
		config.Download.DirFor(domain.VariantAudio),
		config.Download.DirFor(domain.VariantVideo),
		config.Download.LogsDir,
	}
	if config.Legacy.Enabled {
		dirs = append(dirs, config.Legacy.CookiesDir)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
