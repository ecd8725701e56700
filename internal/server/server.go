package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/api"
	"github.com/alfredjeanlab/vesting/internal/identity"
	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/vesting"
)

// VestingService is the gRPC service implemented by VestingServer.
type VestingService interface {
	Health(context.Context, *api.Empty) (*api.HealthResponse, error)
	InitializeConfig(context.Context, *api.InitializeConfigRequest) (*model.ProgramConfig, error)
	GetConfig(context.Context, *api.Empty) (*model.ProgramConfig, error)
	ProposeOrConfirmHub(context.Context, *api.ProposeHubRequest) (*vesting.HubResult, error)
	CreateSchedule(context.Context, *api.CreateScheduleRequest) (*model.Schedule, error)
	GetSchedule(context.Context, *api.ScheduleRequest) (*model.Schedule, error)
	ListSchedules(context.Context, *api.ListSchedulesRequest) (*api.ListSchedulesResponse, error)
	GetRelease(context.Context, *api.ReleaseRequest) (*vesting.Release, error)
	CloseSchedule(context.Context, *api.ScheduleRequest) (*model.Schedule, error)
	GetEvents(context.Context, *api.ScheduleRequest) (*api.EventsResponse, error)
	Crank(context.Context, *vesting.CrankRequest) (*vesting.CrankReport, error)
	OpenAccount(context.Context, *api.OpenAccountRequest) (*model.TokenAccount, error)
	GetAccount(context.Context, *api.AccountRequest) (*model.TokenAccount, error)
}

// VestingServer exposes a vesting.Engine over HTTP and gRPC.
type VestingServer struct {
	engine *vesting.Engine
	sseHub *sseHub
	logger *slog.Logger
	now    func() time.Time
}

var _ VestingService = (*VestingServer)(nil)

// NewVestingServer returns a server for engine. Every event the engine
// commits is fanned out to SSE clients.
func NewVestingServer(engine *vesting.Engine, logger *slog.Logger) *VestingServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &VestingServer{
		engine: engine,
		sseHub: newSSEHub(),
		logger: logger,
		now:    time.Now,
	}
	engine.AddListener(s.broadcastEvent)
	return s
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

// errNoCaller is returned by operations that need a signed caller when the
// request carried none.
const errNoCaller = inputError("a signed caller identity is required")

// initializeConfig defaults the admin to the caller. A caller may only
// install itself as admin.
func (s *VestingServer) initializeConfig(ctx context.Context, caller solana.PublicKey, req *api.InitializeConfigRequest) (*model.ProgramConfig, error) {
	admin := req.Admin
	if admin.IsZero() {
		admin = caller
	}
	if !admin.Equals(caller) {
		return nil, model.ErrUnauthorized
	}
	return s.engine.InitializeConfig(ctx, admin, req.DistributionHub)
}

func (s *VestingServer) listSchedules(ctx context.Context, req *api.ListSchedulesRequest) (*api.ListSchedulesResponse, error) {
	if req.Routing != "" && !req.Routing.IsValid() {
		return nil, inputError("invalid routing: " + string(req.Routing))
	}
	if req.Category != "" && !req.Category.IsValid() {
		return nil, inputError("invalid category: " + string(req.Category))
	}
	schedules, total, err := s.engine.Schedules(ctx, req.Filter())
	if err != nil {
		return nil, err
	}
	if schedules == nil {
		schedules = []*model.Schedule{}
	}
	return &api.ListSchedulesResponse{Schedules: schedules, Total: total}, nil
}

func (s *VestingServer) events(ctx context.Context, id uint64) (*api.EventsResponse, error) {
	if _, err := s.engine.Schedule(ctx, id); err != nil {
		return nil, err
	}
	evs, err := s.engine.Events(ctx, id)
	if err != nil {
		return nil, err
	}
	if evs == nil {
		evs = []*model.Event{}
	}
	return &api.EventsResponse{Events: evs}, nil
}

// --- gRPC service methods ---

func callerOf(ctx context.Context) (solana.PublicKey, error) {
	caller, ok := identity.CallerFrom(ctx)
	if !ok {
		return solana.PublicKey{}, errNoCaller
	}
	return caller, nil
}

// Health returns the service health status.
func (s *VestingServer) Health(context.Context, *api.Empty) (*api.HealthResponse, error) {
	return &api.HealthResponse{Status: "ok"}, nil
}

func (s *VestingServer) InitializeConfig(ctx context.Context, req *api.InitializeConfigRequest) (*model.ProgramConfig, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, grpcError(ctx, err)
	}
	cfg, err := s.initializeConfig(ctx, caller, req)
	return cfg, grpcError(ctx, err)
}

func (s *VestingServer) GetConfig(ctx context.Context, _ *api.Empty) (*model.ProgramConfig, error) {
	cfg, err := s.engine.Config(ctx)
	return cfg, grpcError(ctx, err)
}

func (s *VestingServer) ProposeOrConfirmHub(ctx context.Context, req *api.ProposeHubRequest) (*vesting.HubResult, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, grpcError(ctx, err)
	}
	res, err := s.engine.ProposeOrConfirmHub(ctx, caller, req.Address)
	return res, grpcError(ctx, err)
}

func (s *VestingServer) CreateSchedule(ctx context.Context, req *api.CreateScheduleRequest) (*model.Schedule, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, grpcError(ctx, err)
	}
	sched, err := s.engine.CreateSchedule(ctx, caller, req.ID, req.Params)
	return sched, grpcError(ctx, err)
}

func (s *VestingServer) GetSchedule(ctx context.Context, req *api.ScheduleRequest) (*model.Schedule, error) {
	sched, err := s.engine.Schedule(ctx, req.ID)
	return sched, grpcError(ctx, err)
}

func (s *VestingServer) ListSchedules(ctx context.Context, req *api.ListSchedulesRequest) (*api.ListSchedulesResponse, error) {
	resp, err := s.listSchedules(ctx, req)
	return resp, grpcError(ctx, err)
}

func (s *VestingServer) GetRelease(ctx context.Context, req *api.ReleaseRequest) (*vesting.Release, error) {
	rel, err := s.engine.Release(ctx, req.ID, req.At)
	return rel, grpcError(ctx, err)
}

func (s *VestingServer) CloseSchedule(ctx context.Context, req *api.ScheduleRequest) (*model.Schedule, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, grpcError(ctx, err)
	}
	sched, err := s.engine.CloseSchedule(ctx, caller, req.ID)
	return sched, grpcError(ctx, err)
}

func (s *VestingServer) GetEvents(ctx context.Context, req *api.ScheduleRequest) (*api.EventsResponse, error) {
	resp, err := s.events(ctx, req.ID)
	return resp, grpcError(ctx, err)
}

// Crank is permissionless and needs no caller identity.
func (s *VestingServer) Crank(ctx context.Context, req *vesting.CrankRequest) (*vesting.CrankReport, error) {
	rep, err := s.engine.Crank(ctx, *req)
	return rep, grpcError(ctx, err)
}

func (s *VestingServer) OpenAccount(ctx context.Context, req *api.OpenAccountRequest) (*model.TokenAccount, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, grpcError(ctx, err)
	}
	acct, err := s.engine.OpenAccount(ctx, caller, req.Address, req.Mint, req.Owner, req.Deposit)
	return acct, grpcError(ctx, err)
}

func (s *VestingServer) GetAccount(ctx context.Context, req *api.AccountRequest) (*model.TokenAccount, error) {
	acct, err := s.engine.Account(ctx, req.Address)
	return acct, grpcError(ctx, err)
}
