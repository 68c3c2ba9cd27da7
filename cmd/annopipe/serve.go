package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"annopipe/internal/logging"
	"annopipe/internal/pipeline"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the annotation pipeline as an HTTP service",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
}

type annotateRequest struct {
	Text       string `json:"text"`
	Domain     string `json:"domain"`
	DeadlineMS int64  `json:"deadline_ms"`
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	maxConcurrent := a.cfg.CoreLimits.MaxConcurrentRequests
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	r.Post("/v1/annotate", throttled(maxConcurrent, handleAnnotate(a)))

	srv := &http.Server{
		Addr:         serveAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	logging.OrchestratorDebug("serving on %s", serveAddr)
	err = srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// throttled bounds in-flight calls to next by a process-wide semaphore,
// enforcing config.CoreLimits.MaxConcurrentRequests at the HTTP edge
// rather than inside the orchestrator itself.
func throttled(max int, next http.HandlerFunc) http.HandlerFunc {
	sem := make(chan struct{}, max)
	return func(w http.ResponseWriter, req *http.Request) {
		select {
		case sem <- struct{}{}:
		default:
			http.Error(w, "too many concurrent requests", http.StatusTooManyRequests)
			return
		}
		defer func() { <-sem }()
		next(w, req)
	}
}

func handleAnnotate(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body annotateRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if body.Text == "" {
			http.Error(w, "text is required", http.StatusBadRequest)
			return
		}

		pcfg := pipeline.FromConfig(a.cfg, body.Domain)
		if body.DeadlineMS > 0 {
			pcfg = pcfg.Merge(&pipeline.PipelineConfig{DeadlineMS: body.DeadlineMS})
		}

		requestID := middleware.GetReqID(req.Context())
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx, cancel := context.WithCancel(req.Context())
		defer cancel()

		result, err := a.orchestrator.Process(ctx, requestID, body.Text, pcfg)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			logging.OrchestratorWarn("failed to encode response for request %s: %v", requestID, err)
		}
	}
}
