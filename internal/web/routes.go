package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/faceguard/internal/hub"
	"github.com/kozaktomas/faceguard/internal/web/handlers"
)

func (s *Server) setupRoutes(deps Dependencies) {
	// Create handlers
	embeddingsHandler := handlers.NewEmbeddingsHandler(deps.Index, deps.Cache, s.logger)
	searchHandler := handlers.NewSearchHandler(deps.Index, deps.Resolver, s.config.Alerting.MatchThreshold)
	sightingsHandler := handlers.NewSightingsHandler(deps.Resolver, deps.Engine, deps.Hub, s.config.Alerting.MatchThreshold, s.logger)
	alertsHandler := handlers.NewAlertsHandler(deps.Store, deps.Engine, s.logger)
	statsHandler := handlers.NewStatsHandler(deps.Index, deps.Engine, deps.Hub, s.config.Index.SnapshotPath, s.logger)

	var upstream handlers.UpstreamHealth
	if deps.CoreData != nil {
		upstream = deps.CoreData
	}
	healthHandler := handlers.NewHealthHandler(deps.Engine, upstream)

	// Health check
	s.router.Get("/api/v1/health", healthHandler.Check)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(60 * time.Second))

		// Embeddings
		r.Post("/embeddings", embeddingsHandler.Add)
		r.Post("/embeddings/batch", embeddingsHandler.AddBatch)
		r.Delete("/persons/{personID}/embeddings", embeddingsHandler.DeactivatePerson)

		// Similarity search and identity resolution
		r.Post("/search", searchHandler.Search)
		r.Post("/resolve", searchHandler.Resolve)

		// Recognition webhook
		r.Post("/sightings", sightingsHandler.Ingest)

		// Alert instances
		r.Get("/alerts", alertsHandler.List)
		r.Get("/alerts/{instanceID}", alertsHandler.Get)
		r.Post("/alerts/{instanceID}/acknowledge", alertsHandler.Acknowledge)
		r.Post("/alerts/{instanceID}/resolve", alertsHandler.Resolve)

		// Observability
		r.Get("/stats", statsHandler.Get)
		r.Get("/index/stats", statsHandler.IndexStats)
		r.Post("/index/snapshot", statsHandler.Snapshot)
	})

	// The websocket endpoint sits outside the timeout group; connections
	// stay open for the client's lifetime.
	wsHandler := hub.NewHandler(deps.Hub, deps.Engine, statsHandler.StatusPayload, s.logger)
	s.router.Get("/ws", wsHandler.ServeHTTP)
}
