package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allsafeASM/rmap/internal/api"
	"github.com/allsafeASM/rmap/internal/azure"
	"github.com/allsafeASM/rmap/internal/config"
	"github.com/allsafeASM/rmap/internal/handlers"
	"github.com/allsafeASM/rmap/internal/logging"
	"github.com/allsafeASM/rmap/internal/notification"
	"github.com/allsafeASM/rmap/internal/probes"
	"github.com/allsafeASM/rmap/internal/scanners"
	"github.com/gin-gonic/gin"
	"github.com/projectdiscovery/gologger"
)

// shutdownTimeout bounds draining of in-flight HTTP streams
const shutdownTimeout = 15 * time.Second

// Application represents the main application structure
type Application struct {
	config           *config.Config
	scanner          *scanners.NetworkScanner
	httpServer       *http.Server
	serviceBusClient *azure.ServiceBusClient
	blobClient       *azure.BlobStorageClient
	progress         *azure.Publisher
	taskHandler      *handlers.TaskHandler
	ctx              context.Context
	cancel           context.CancelFunc
}

// NewApplication creates and initializes a new application instance
func NewApplication() (*Application, error) {
	app := &Application{}

	if err := app.initialize(); err != nil {
		return nil, err
	}

	return app, nil
}

// initialize sets up all application components
func (app *Application) initialize() error {
	app.config = config.Load()
	if err := app.config.Validate(); err != nil {
		return err
	}

	logging.Setup(app.config.App.LogLevel)

	app.ctx, app.cancel = context.WithCancel(context.Background())

	app.initializeScanner()
	app.initializeHTTPServer()

	if app.config.App.EnableQueueWorker {
		if err := app.initializeAzureClients(); err != nil {
			return err
		}
		app.initializeTaskHandler()
	}

	return nil
}

// initializeScanner loads the probe database and builds the scanning engine
func (app *Application) initializeScanner() {
	sc := app.config.Scanner

	loader := probes.NewLoader(sc.ProbeCacheDir, sc.ProbeSourceURL, time.Duration(sc.ProbeFetchTimeout)*time.Second)
	db := probes.Shared(app.ctx, loader)
	gologger.Info().Msgf("Service probes ready: %d from %s", db.Len(), db.Source())

	resolver := scanners.NewDNSXResolver(sc.DNSResolvers, sc.DNSRateLimit)

	app.scanner = scanners.NewNetworkScanner(db, resolver, scanners.Options{
		MaxConcurrentHosts: sc.MaxConcurrentHosts,
		MaxConcurrentDials: sc.MaxConcurrentDials,
		PortWorkersPerHost: sc.PortWorkersPerHost,
		ConnectRateLimit:   sc.ConnectRateLimit,
		StreamBuffer:       sc.StreamBuffer,
		MaxTargetHosts:     sc.MaxTargetHosts,
	})
}

func (app *Application) initializeHTTPServer() {
	if app.config.App.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	app.httpServer = &http.Server{
		Addr:              app.config.App.HTTPListenAddr,
		Handler:           api.NewServer(app.scanner).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return app.ctx },
	}
}

// initializeAzureClients creates Azure Service Bus and Blob Storage clients
func (app *Application) initializeAzureClients() error {
	var err error

	app.serviceBusClient, err = azure.NewServiceBusClient(
		app.config.Azure.ServiceBusConnectionString,
		app.config.Azure.QueueName,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize Service Bus client: %w", err)
	}

	if err := app.serviceBusClient.HealthCheck(app.ctx); err != nil {
		gologger.Warning().Msgf("Service Bus health check failed: %v", err)
	}

	if queue := app.config.Azure.ProgressQueueName; queue != "" {
		app.progress, err = app.serviceBusClient.NewPublisher(queue)
		if err != nil {
			return fmt.Errorf("failed to initialize progress publisher: %w", err)
		}
	}

	app.blobClient, err = azure.NewBlobStorageClient(
		app.config.Azure.BlobStorageConnectionString,
		app.config.Azure.BlobContainerName,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize Blob Storage client: %w", err)
	}

	return nil
}

// initializeTaskHandler creates the task handler with all dependencies
func (app *Application) initializeTaskHandler() {
	notifier, err := notification.NewConfiguredNotifier(
		app.config.App.EnableNotifications,
		time.Duration(app.config.App.NotificationTimeout)*time.Second,
	)
	if err != nil {
		gologger.Warning().Msgf("Failed to initialize notification service: %v. Notifications will be disabled.", err)
	}

	discordNotifier, err := notification.NewConfiguredDiscordNotifier(
		app.config.App.EnableDiscordNotifications,
		time.Duration(app.config.App.DiscordWebhookTimeout)*time.Second,
	)
	if err != nil {
		gologger.Warning().Msgf("Failed to initialize Discord notification service: %v. Discord notifications will be disabled.", err)
	}

	var progress handlers.ProgressPublisher
	if app.progress != nil {
		progress = app.progress
	}

	app.taskHandler = handlers.NewTaskHandler(
		app.scanner,
		app.blobClient,
		app.blobClient,
		progress,
		notifier,
		discordNotifier,
	)
	gologger.Debug().Msgf("Queue worker wired: %s", app.taskHandler)
}

// Start serves the HTTP API, runs the queue worker when enabled and blocks
// until a shutdown signal arrives or a component fails
func (app *Application) Start() error {
	errs := make(chan error, 2)

	go app.serveHTTP(errs)
	if app.taskHandler != nil {
		go app.startMessageProcessing(errs)
	}

	return app.waitForShutdown(errs)
}

func (app *Application) serveHTTP(errs chan<- error) {
	gologger.Info().Msgf("Listening on %s", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs <- fmt.Errorf("http server: %w", err)
	}
}

// startMessageProcessing begins processing messages from the queue
func (app *Application) startMessageProcessing(errs chan<- error) {
	pollInterval := time.Duration(app.config.App.PollInterval) * time.Second
	lockRenewalInterval := time.Duration(app.config.App.LockRenewalInterval) * time.Second
	maxLockRenewalTime := time.Duration(app.config.App.MaxLockRenewalTime) * time.Second
	scannerTimeout := time.Duration(app.config.App.ScannerTimeout) * time.Second

	err := app.serviceBusClient.ProcessMessages(
		app.ctx,
		app.taskHandler.HandleTask,
		pollInterval,
		lockRenewalInterval,
		maxLockRenewalTime,
		scannerTimeout,
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		errs <- fmt.Errorf("queue worker: %w", err)
	}
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func (app *Application) waitForShutdown(errs <-chan error) error {
	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChannel)

	var runErr error
	select {
	case sig := <-signalChannel:
		gologger.Info().Msgf("Received %s, shutting down gracefully...", sig)
	case runErr = <-errs:
		gologger.Error().Msgf("Stopping after failure: %v", runErr)
	}

	app.shutdown()
	return runErr
}

// shutdown cancels running scans and closes every client
func (app *Application) shutdown() {
	app.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.httpServer.Shutdown(ctx); err != nil {
		gologger.Warning().Msgf("HTTP server shutdown: %v", err)
	}
	if app.progress != nil {
		app.progress.Close(ctx)
	}
	if app.serviceBusClient != nil {
		app.serviceBusClient.Close(ctx)
	}

	gologger.Info().Msg("Shutdown complete")
}
