package app

import (
	"context"
	"fmt"

	"github.com/blockfix/backend/internal/app/keylock"
	"github.com/blockfix/backend/internal/app/services/complaints"
	fundssvc "github.com/blockfix/backend/internal/app/services/funds"
	"github.com/blockfix/backend/internal/app/storage"
	"github.com/blockfix/backend/internal/app/storage/memory"
	"github.com/blockfix/backend/internal/app/system"
	"github.com/blockfix/backend/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Complaints   storage.ComplaintStore
	Votes        storage.VoteStore
	FundRequests storage.FundRequestStore
	FundPool     storage.FundPoolStore
}

// Options carries the funding parameters the services run with. Zero
// values fall back to the stock deployment settings.
type Options struct {
	VoteThreshold int
	DefaultAward  float64
	InitialPool   float64
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	pool        storage.FundPoolStore
	initialPool float64

	Complaints *complaints.Service
	Funds      *fundssvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Complaints == nil {
		stores.Complaints = mem
	}
	if stores.Votes == nil {
		stores.Votes = mem
	}
	if stores.FundRequests == nil {
		stores.FundRequests = mem
	}
	if stores.FundPool == nil {
		stores.FundPool = mem
	}
	if opts.InitialPool <= 0 {
		opts.InitialPool = 20000
	}

	manager := system.NewManager()

	// Both services mutate complaints; they share one keyed mutex so every
	// per-complaint read-modify-write serializes regardless of entry point.
	locks := keylock.New()
	fundService := fundssvc.New(stores.Complaints, stores.FundRequests, stores.FundPool, locks, log)
	complaintService := complaints.New(stores.Complaints, stores.Votes, fundService, locks, complaints.Config{
		VoteThreshold: opts.VoteThreshold,
		DefaultAward:  opts.DefaultAward,
	}, log)

	for _, name := range []string{"complaints", "funds"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager:     manager,
		log:         log,
		pool:        stores.FundPool,
		initialPool: opts.InitialPool,
		Complaints:  complaintService,
		Funds:       fundService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start seeds the fund pool if absent and begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	if _, err := a.pool.EnsurePool(ctx, a.initialPool); err != nil {
		return fmt.Errorf("seed fund pool: %w", err)
	}
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
