package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vigil/api"
	"vigil/config"
	"vigil/core"
	"vigil/correlate"
	"vigil/detect"
	"vigil/promote"
	"vigil/service"
)

// App holds the wired application.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	Storage *StorageComponents
	Rules   *correlate.RuleSet

	Detector   *detect.Engine
	Correlator *correlate.Engine
	Gate       *promote.Gate

	Incidents *service.IncidentService
	Replay    *service.ReplayService
	Pipeline  *service.PipelineService

	APIServer *api.API

	serviceWg  *sync.WaitGroup
	shutdownCh chan struct{}
}

// NewApp creates the application and initializes every component.
func NewApp(ctx context.Context) (*App, error) {
	app := &App{
		serviceWg:  &sync.WaitGroup{},
		shutdownCh: make(chan struct{}),
	}

	level := os.Getenv("VIGIL_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	logger, sugar, err := InitLogger(level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("vigil starting...")

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	app.Config = cfg

	if err := EnsureDataDirectory(cfg, sugar); err != nil {
		return nil, err
	}

	components, err := InitStorage(ctx, cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Storage = components

	rules, err := correlate.LoadRuleSet(cfg.Rules.Dir, sugar)
	if err != nil {
		components.Close(sugar)
		return nil, fmt.Errorf("failed to load correlation rules: %w", err)
	}
	app.Rules = rules
	sugar.Infow("Correlation rules loaded", "dir", cfg.Rules.Dir, "count", rules.Len())

	detector, err := detect.NewEngine(components.Detections, nil, sugar)
	if err != nil {
		components.Close(sugar)
		return nil, fmt.Errorf("failed to initialize detection engine: %w", err)
	}
	app.Detector = detector

	generator := correlate.NewGenerator(components.Detections, components.Graphs, components.Bundles, components.Candidates, sugar)
	app.Correlator = correlate.NewEngine(rules, components.Detections, correlate.NewExecutor(generator), sugar)

	app.Gate = promote.NewGate(components.Bundles, components.Incidents, promotionPolicy(cfg), sugar)

	app.Incidents = service.NewIncidentService(components.Incidents, components.Events, sugar)
	app.Replay = service.NewReplayService(components.Events, components.Incidents, sugar)
	app.Pipeline = service.NewPipelineService(rules, detector, app.Correlator, app.Gate, app.Incidents, sugar)

	return app, nil
}

// promotionPolicy builds the gate policy from configuration, falling back to
// shipped defaults for unset fields.
func promotionPolicy(cfg *config.Config) promote.PromotionPolicy {
	policy := promote.DefaultPolicy()
	if cfg.Promotion.MinBand != "" {
		policy.MinBand = core.ConfidenceBand(cfg.Promotion.MinBand)
	}
	if cfg.Promotion.MinScore > 0 {
		policy.MinScore = cfg.Promotion.MinScore
	}
	if cfg.Promotion.MinDetections > 0 {
		policy.MinDetections = cfg.Promotion.MinDetections
	}
	return policy
}

// Start starts the HTTP API.
func (a *App) Start(ctx context.Context) error {
	a.APIServer = api.NewAPI(
		a.Pipeline,
		a.Incidents,
		a.Replay,
		a.Storage.Candidates,
		a.Gate,
		a.Storage.Idempotency,
		a.Config,
		a.Sugar,
	)

	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		a.Sugar.Infof("API server started on :%d", a.Config.API.Port)
		if err := a.APIServer.Start(); err != nil && err.Error() != "http: Server closed" {
			a.Sugar.Errorf("API server error: %v", err)
		}
	}()

	return nil
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	if a.APIServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		a.serviceWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		a.Sugar.Warn("Service goroutine shutdown timed out")
	}

	if a.Storage != nil {
		a.Storage.Close(a.Sugar)
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
