// Package api exposes the incident pipeline over HTTP: signal ingestion,
// candidate promotion, the incident lifecycle, event history and replay
// verification.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"vigil/config"
	"vigil/core"
	"vigil/normalize"
	"vigil/service"
	"vigil/storage"
)

// rateLimiterEntry holds a rate limiter with last seen time.
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PipelineRunner drives one raw signal through the full pipeline.
type PipelineRunner interface {
	ProcessRawSignal(ctx context.Context, raw *normalize.RawSignal) (*service.PipelineResult, error)
}

// IncidentManager is the incident lifecycle surface the handlers need.
type IncidentManager interface {
	CreateFromPromotion(ctx context.Context, promo *core.PromotionResult, candidate *core.IncidentCandidate, authority core.AuthorityContext) (*core.Incident, bool, error)
	GetIncident(ctx context.Context, incidentID string) (*core.Incident, error)
	ListIncidents(ctx context.Context, limit, offset int) ([]core.Incident, int64, error)
	GetEvents(ctx context.Context, incidentID string) ([]core.EventRecord, error)
	Transition(ctx context.Context, incidentID string, to core.IncidentStatus, authority core.AuthorityContext, meta core.TransitionMetadata) (*core.Incident, error)
	AttachSignals(ctx context.Context, incidentID string, signalIDs []string, authority core.AuthorityContext) (*core.Incident, error)
	RecordApproval(ctx context.Context, incidentID string, approved bool, authority core.AuthorityContext, note string) (*core.Incident, error)
}

// ReplayVerifier replays an incident's event log and checks its integrity.
type ReplayVerifier interface {
	VerifyIncident(ctx context.Context, incidentID string) (*service.ReplayReport, error)
}

// CandidateReader loads stored incident candidates.
type CandidateReader interface {
	GetCandidate(ctx context.Context, candidateID string) (*core.IncidentCandidate, error)
}

// PromotionGate evaluates a candidate against promotion policy.
type PromotionGate interface {
	Evaluate(ctx context.Context, candidate *core.IncidentCandidate) (*core.PromotionResult, error)
}

// API holds the HTTP server and its collaborators.
type API struct {
	router         *mux.Router
	server         *http.Server
	pipeline       PipelineRunner
	incidents      IncidentManager
	replay         ReplayVerifier
	candidates     CandidateReader
	gate           PromotionGate
	idempotency    storage.IdempotencyStorageInterface
	config         *config.Config
	logger         *zap.SugaredLogger
	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	stopCh         chan struct{}
}

// NewAPI creates the API server and wires its routes.
func NewAPI(pipeline PipelineRunner, incidents IncidentManager, replay ReplayVerifier, candidates CandidateReader, gate PromotionGate, idempotency storage.IdempotencyStorageInterface, cfg *config.Config, logger *zap.SugaredLogger) *API {
	a := &API{
		router:       mux.NewRouter(),
		pipeline:     pipeline,
		incidents:    incidents,
		replay:       replay,
		candidates:   candidates,
		gate:         gate,
		idempotency:  idempotency,
		config:       cfg,
		logger:       logger,
		rateLimiters: make(map[string]*rateLimiterEntry),
		stopCh:       make(chan struct{}),
	}
	a.setupRoutes()
	go a.cleanupRateLimiters()
	return a
}

// setupRoutes sets up the API routes.
func (a *API) setupRoutes() {
	a.router.Use(a.requestIDMiddleware)
	a.router.Use(a.corsMiddleware)
	a.router.Use(a.rateLimitMiddleware)

	a.router.HandleFunc("/api/signals", a.ingestSignal).Methods("POST")
	a.router.HandleFunc("/api/incidents", a.createIncident).Methods("POST")
	a.router.HandleFunc("/api/incidents", a.listIncidents).Methods("GET")
	a.router.HandleFunc("/api/incidents/{id}", a.getIncident).Methods("GET")
	a.router.HandleFunc("/api/incidents/{id}/events", a.getIncidentEvents).Methods("GET")
	a.router.HandleFunc("/api/incidents/{id}/open", a.transitionHandler(core.IncidentStatusOpen)).Methods("POST")
	a.router.HandleFunc("/api/incidents/{id}/mitigate", a.transitionHandler(core.IncidentStatusMitigating)).Methods("POST")
	a.router.HandleFunc("/api/incidents/{id}/resolve", a.transitionHandler(core.IncidentStatusResolved)).Methods("POST")
	a.router.HandleFunc("/api/incidents/{id}/close", a.transitionHandler(core.IncidentStatusClosed)).Methods("POST")
	a.router.HandleFunc("/api/incidents/{id}/signals", a.attachSignals).Methods("POST")
	a.router.HandleFunc("/api/incidents/{id}/approval", a.recordApproval).Methods("POST")
	a.router.HandleFunc("/api/incidents/{id}/replay", a.replayIncident).Methods("POST")
	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler())
}

// Handler returns the root handler, for tests.
func (a *API) Handler() http.Handler {
	return a.router
}

// Start starts the API server.
func (a *API) Start() error {
	addr := fmt.Sprintf(":%d", a.config.API.Port)
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if a.config.API.TLS {
		return a.server.ListenAndServeTLS(a.config.API.CertFile, a.config.API.KeyFile)
	}
	return a.server.ListenAndServe()
}

// Stop stops the API server.
func (a *API) Stop(ctx context.Context) error {
	close(a.stopCh)
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}
