package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/civic-desk/issue-sla-service/internal/api/http/handlers"
	"github.com/civic-desk/issue-sla-service/internal/auth"
	"github.com/civic-desk/issue-sla-service/internal/domain"
	"github.com/civic-desk/issue-sla-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Issues         *handlers.IssuesHandler
	Escalations    *handlers.EscalationsHandler
	Assignments    *handlers.AssignmentsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/staff/login", cfg.Auth.Login)

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireOperator())
	manager := auth.RequireManager()

	api.Get("/sla/policy", cfg.Issues.Policy)

	issues := api.Group("/issues")
	issues.Get("/overdue", cfg.Issues.Overdue)
	issues.Get("/:id/deadline", cfg.Issues.Deadline)
	issues.Patch("/:id/status", cfg.Issues.UpdateStatus)
	issues.Get("/:id/updates", cfg.Issues.ListUpdates)
	issues.Post("/:id/updates", cfg.Issues.AddUpdate)
	issues.Post("/:id/escalate", manager, cfg.Escalations.Escalate)
	issues.Post("/:id/escalation/resolve", manager, cfg.Escalations.Resolve)
	issues.Get("/:id/escalations", cfg.Escalations.History)
	issues.Get("/:id/suggest-assignee", manager, cfg.Assignments.Suggest)

	escalations := api.Group("/escalations")
	escalations.Get("", cfg.Escalations.Recent)
	escalations.Post("/auto", manager, cfg.Escalations.AutoEscalate)

	assignments := api.Group("/assignments")
	assignments.Get("", cfg.Assignments.List)
	assignments.Post("", manager, cfg.Assignments.Assign)
	assignments.Post("/bulk", manager, cfg.Assignments.BulkAssign)
	assignments.Get("/my", auth.RequireRoles(domain.RoleStaff), cfg.Assignments.Mine)
	assignments.Get("/workload", manager, cfg.Assignments.Workload)
	assignments.Get("/stats/department", manager, cfg.Assignments.DepartmentStats)
	assignments.Get("/:id", cfg.Assignments.Get)
	assignments.Patch("/:id/status", cfg.Assignments.UpdateStatus)
}
