package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-sla/internal/auth"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Staff          *handlers.StaffHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)
	authGroup.Post("/staff/login", cfg.Staff.Login)

	protectedAuth := authGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	protectedAuth.Post("/password/change", cfg.Staff.ChangePassword)

	// End-user ticket surface.
	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireUser())
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/messages", cfg.Tickets.AddMessage)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)

	// Staff surface.
	staff := app.Group("/staff", cfg.AuthMiddleware.Handle, auth.RequireStaffRole())
	staff.Get("/tickets", cfg.StaffTickets.ListTickets)
	staff.Get("/tickets/:id", cfg.StaffTickets.GetTicket)
	staff.Patch("/tickets/:id/status", cfg.StaffTickets.UpdateStatus)
	staff.Patch("/tickets/:id/priority", cfg.StaffTickets.UpdatePriority)
	staff.Post("/tickets/:id/assign", cfg.StaffTickets.AssignTicket)
	staff.Post("/tickets/:id/messages", cfg.StaffTickets.AddMessage)
	staff.Get("/tickets/:id/history", cfg.StaffTickets.ListHistory)

	staff.Get("/members", cfg.Staff.ListStaff)
	staff.Get("/members/:id", cfg.Staff.GetStaff)

	admin := staff.Group("", auth.RequireStaffRole(domain.StaffRoleAdmin))
	admin.Post("/members", cfg.Staff.CreateStaff)
	admin.Patch("/members/:id/active", cfg.Staff.SetStaffActive)
	admin.Put("/policy", cfg.Staff.UpdateTenantPolicy)

	staff.Get("/policy", cfg.Staff.GetTenantPolicy)
}
