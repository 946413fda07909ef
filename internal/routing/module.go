// Package routing provides the routing bounded context module: proposal
// creation, decisioning, and board writeback.
package routing

import (
	"time"

	"leadrouting_backend/internal/board"
	"leadrouting_backend/internal/events"
	apphttp "leadrouting_backend/internal/http"
	"leadrouting_backend/internal/routing/handler"
	"leadrouting_backend/internal/routing/repository"
	"leadrouting_backend/internal/routing/service"
	"leadrouting_backend/internal/scoring"
	"leadrouting_backend/platform/logger"
	"leadrouting_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the routing bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// Deps collects the module's external collaborators built in main.
type Deps struct {
	Pool      *pgxpool.Pool
	Reader    board.Reader
	Writer    board.Writer
	Queue     service.Queue
	Resolver  service.AssigneeResolver
	Bus       events.Bus
	Scheduler service.ReminderScheduler
	Scoring   scoring.Config

	ReminderDelay time.Duration
	Validator     *validator.Validator
	Logger        *logger.Logger
}

// NewModule creates and initializes the routing module.
func NewModule(deps Deps) *Module {
	repo := repository.New(deps.Pool)

	svc := service.New(service.Deps{
		Proposals:     repo,
		Config:        repo,
		Snapshots:     repo,
		Reader:        deps.Reader,
		Writer:        deps.Writer,
		Queue:         deps.Queue,
		Resolver:      deps.Resolver,
		Bus:           deps.Bus,
		Scheduler:     deps.Scheduler,
		Scoring:       deps.Scoring,
		ReminderDelay: deps.ReminderDelay,
		Logger:        deps.Logger,
	})
	h := handler.New(svc, deps.Validator)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "routing"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the repository for direct access if needed.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts routing routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/routing")
	group.POST("/dry-run", m.handler.DryRun)
	group.POST("/proposals", m.handler.Propose)
	group.GET("/proposals", m.handler.ListProposals)
	group.GET("/proposals/:id", m.handler.GetProposal)
	group.POST("/proposals/:id/approve", m.handler.Approve)
	group.POST("/proposals/:id/reject", m.handler.Reject)
	group.POST("/proposals/:id/override", m.handler.Override)
	group.POST("/proposals/:id/apply", m.handler.Apply)
	group.GET("/queue/metrics", m.handler.QueueMetrics)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
