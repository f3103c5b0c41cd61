package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ruleplane/backend/app"
	"github.com/ruleplane/backend/handlers"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(deps.DB.DB, deps.Logger)
	ruleHandler := handlers.NewRuleHandler(deps.RuleService, deps.ApprovalService, deps.Logger)
	changeRequestHandler := handlers.NewChangeRequestHandler(deps.EnforcementService, deps.Logger)
	exceptionHandler := handlers.NewExceptionHandler(deps.ExceptionService, deps.Logger)
	auditHandler := handlers.NewAuditHandler(deps.AuditService, deps.Logger)
	categoryHandler := handlers.NewCategoryHandler(deps.CategoryService, deps.Logger)
	teamHandler := handlers.NewTeamHandler(deps.TeamService, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Get("/readyz", healthHandler.HandleReadiness)

	// Prometheus metrics
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Use(deps.AuthMiddleware.ExtractIdentity)

		// Rule lifecycle and approval quorum
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", ruleHandler.HandleList)
			r.Post("/", ruleHandler.HandleCreate)
			r.Get("/effective", ruleHandler.HandleEffective)
			r.Get("/{id}", ruleHandler.HandleGet)
			r.Put("/{id}", ruleHandler.HandleUpdate)
			r.Delete("/{id}", ruleHandler.HandleDelete)
			r.Post("/{id}/submit", ruleHandler.HandleSubmit)
			r.Post("/{id}/approve", ruleHandler.HandleApprove)
			r.Post("/{id}/reject", ruleHandler.HandleReject)
			r.Get("/{id}/approval-status", ruleHandler.HandleApprovalStatus)
		})

		// Change request enforcement
		r.Route("/change-requests", func(r chi.Router) {
			r.Get("/", changeRequestHandler.HandleList)
			r.Post("/", changeRequestHandler.HandleCreate)
			r.Get("/{id}", changeRequestHandler.HandleGet)
			r.Post("/{id}/approve", changeRequestHandler.HandleApprove)
			r.Post("/{id}/reject", changeRequestHandler.HandleReject)
		})

		// Exception workflow
		r.Route("/exceptions", func(r chi.Router) {
			r.Get("/", exceptionHandler.HandleList)
			r.Post("/", exceptionHandler.HandleFile)
			r.Get("/{id}", exceptionHandler.HandleGet)
			r.Post("/{id}/approve", exceptionHandler.HandleApprove)
			r.Post("/{id}/deny", exceptionHandler.HandleDeny)
		})

		// Audit trail (require admin role)
		r.Route("/audit", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireRole("admin"))
			r.Get("/", auditHandler.HandleList)
			r.Get("/{id}", auditHandler.HandleGet)
			r.Get("/{id}/diff", auditHandler.HandleEntryDiff)
			r.Get("/entity/{type}/{id}", auditHandler.HandleEntityHistory)
		})

		// Categories
		r.Route("/categories", func(r chi.Router) {
			r.Get("/", categoryHandler.HandleList)
			r.Post("/", categoryHandler.HandleCreate)
			r.Get("/{id}", categoryHandler.HandleGet)
			r.Delete("/{id}", categoryHandler.HandleDelete)
		})

		// Teams
		r.Route("/teams", func(r chi.Router) {
			r.Get("/", teamHandler.HandleList)
			r.Post("/", teamHandler.HandleCreate)
			r.Get("/{id}", teamHandler.HandleGet)
			r.Put("/{id}/settings", teamHandler.HandleUpdateSettings)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
