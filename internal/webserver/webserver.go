package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/modsentinel/sentinel/internal/goldenset"
	"github.com/modsentinel/sentinel/internal/models"
	"github.com/modsentinel/sentinel/internal/syncstate"
)

// Verifier is the resolver surface the web server consumes.
type Verifier interface {
	Verify(ctx context.Context, hashes []string) (models.BatchResult, error)
	IsOnline(ctx context.Context) bool
	SyncCache(ctx context.Context) (int, error)
	LastSource() models.Source
	CacheCount(ctx context.Context) (int, error)
	LastSync() (syncstate.Record, bool)
}

// WebServer holds the data needed for handling HTTP requests.
type WebServer struct {
	Resolver Verifier
	config   *WebserverConfig
	Logger   *logrus.Logger
	sem      *semaphore.Weighted
}

// NewWebServer initializes a new WebServer.
func NewWebServer(resolver Verifier, config *WebserverConfig, logger *logrus.Logger) *WebServer {
	return &WebServer{
		Resolver: resolver,
		config:   config,
		Logger:   logger,
		sem:      semaphore.NewWeighted(config.MaxConcurrentScans),
	}
}

// StartWebServer starts the HTTP server.
func StartWebServer(ctx context.Context, ws *WebServer) (*http.Server, error) {
	router := ws.InitRouter()

	corsOptions := cors.Options{
		AllowedOrigins: ws.config.CorsAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
	}

	handler := cors.New(corsOptions).Handler(router)

	server := &http.Server{
		Addr:    ws.config.ListenTo,
		Handler: handler,
	}

	go func() {
		ws.Logger.Infof("Server starting on %s", ws.config.ListenTo)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.Logger.Errorf("ListenAndServe(): %v", err)
		}
	}()

	return server, nil
}

// InitRouter initializes the HTTP routes.
func (ws *WebServer) InitRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", ws.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/v1/verify", ws.handleVerify).Methods(http.MethodPost)
	api.HandleFunc("/status", ws.handleGetStatus).Methods(http.MethodGet)
	api.HandleFunc("/sync", ws.handleSync).Methods(http.MethodPost)

	return r
}

type verifyRequest struct {
	Hashes []string `json:"hashes"`
}

// handleVerify handles the POST /api/v1/verify endpoint.
func (ws *WebServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.Logger.Errorf("Invalid JSON payload: %v", err)
		writeErrorResponse(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	for _, hash := range req.Hashes {
		if err := models.ValidateHash(models.NormalizeHash(hash)); err != nil {
			ws.Logger.Warnf("Rejected malformed hash %q: %v", hash, err)
			writeErrorResponse(w, "Hashes must be 64-character hexadecimal SHA-256 digests", http.StatusBadRequest)
			return
		}
	}

	// Bound concurrent verifies so a burst of UI re-scans cannot pile up
	// remote round trips and cache reads.
	if err := ws.sem.Acquire(ctx, 1); err != nil {
		writeErrorResponse(w, "Request cancelled", http.StatusServiceUnavailable)
		return
	}
	defer ws.sem.Release(1)

	result, err := ws.Resolver.Verify(ctx, req.Hashes)
	if err != nil {
		if errors.Is(err, models.ErrEmptyBatch) {
			writeErrorResponse(w, "Hashes list cannot be empty", http.StatusBadRequest)
			return
		}
		ws.Logger.WithError(err).Error("Verification failed on both remote and cache")
		writeErrorResponse(w, "Verification failed", http.StatusBadGateway)
		return
	}

	writeJSONResponse(w, http.StatusOK, result)
}

// StatusResponse represents the structure of the /api/status response.
type StatusResponse struct {
	Online       bool              `json:"online"`
	LastSource   models.Source     `json:"last_source,omitempty"`
	CacheEntries int               `json:"cache_entries"`
	LastSync     *syncstate.Record `json:"last_sync,omitempty"`
}

// handleGetStatus handles the GET /api/status endpoint.
func (ws *WebServer) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := StatusResponse{
		Online:     ws.Resolver.IsOnline(ctx),
		LastSource: ws.Resolver.LastSource(),
	}

	count, err := ws.Resolver.CacheCount(ctx)
	if err != nil {
		ws.Logger.WithError(err).Error("Failed to count cache entries")
		writeErrorResponse(w, "Failed to retrieve status", http.StatusInternalServerError)
		return
	}
	response.CacheEntries = count

	if record, found := ws.Resolver.LastSync(); found {
		response.LastSync = &record
	}

	writeJSONResponse(w, http.StatusOK, response)
}

type syncResponse struct {
	Count int `json:"count"`
}

// handleSync handles the POST /api/sync endpoint.
func (ws *WebServer) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := ws.Resolver.SyncCache(ctx)
	if err != nil {
		var parseErr *goldenset.ParseError
		switch {
		case errors.Is(err, goldenset.ErrDatasetNotFound):
			ws.Logger.WithError(err).Warn("Sync requested but golden set dataset is missing")
			writeErrorResponse(w, "Golden set dataset not found", http.StatusNotFound)
		case errors.As(err, &parseErr):
			ws.Logger.WithError(err).Error("Golden set dataset is malformed")
			writeErrorResponse(w, "Golden set dataset is malformed", http.StatusUnprocessableEntity)
		default:
			ws.Logger.WithError(err).Error("Cache sync failed")
			writeErrorResponse(w, "Cache sync failed", http.StatusInternalServerError)
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, syncResponse{Count: count})
}

// handleHealth handles the GET /health endpoint for the daemon itself.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
