// Package client provides a transport-agnostic interface for the vesting
// service with HTTP/JSON and gRPC implementations.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"google.golang.org/grpc/codes"

	"github.com/alfredjeanlab/vesting/internal/api"
	"github.com/alfredjeanlab/vesting/internal/model"
)

// VestingClient is the interface the vest CLI and the keeper use to talk to
// a vesting server. Mutating calls need a Signer on the client.
type VestingClient interface {
	Health(ctx context.Context) (string, error)

	// Program config
	InitializeConfig(ctx context.Context, req *api.InitializeConfigRequest) (*model.ProgramConfig, error)
	GetConfig(ctx context.Context) (*model.ProgramConfig, error)
	ProposeOrConfirmHub(ctx context.Context, target solana.PublicKey) (*api.HubResult, error)

	// Schedules
	CreateSchedule(ctx context.Context, req *api.CreateScheduleRequest) (*model.Schedule, error)
	GetSchedule(ctx context.Context, id uint64) (*model.Schedule, error)
	ListSchedules(ctx context.Context, req *api.ListSchedulesRequest) (*api.ListSchedulesResponse, error)
	GetRelease(ctx context.Context, id uint64, at int64) (*api.Release, error)
	CloseSchedule(ctx context.Context, id uint64) (*model.Schedule, error)
	GetEvents(ctx context.Context, id uint64) ([]*model.Event, error)

	// Crank
	Crank(ctx context.Context, req *api.CrankRequest) (*api.CrankReport, error)

	// Token accounts
	OpenAccount(ctx context.Context, req *api.OpenAccountRequest) (*model.TokenAccount, error)
	GetAccount(ctx context.Context, addr solana.PublicKey) (*model.TokenAccount, error)

	Close() error
}

// APIError is an error returned by the server. StatusCode is set for HTTP
// and RPCCode for gRPC. Code is the domain error code when the server sent
// one.
type APIError struct {
	StatusCode int
	RPCCode    codes.Code
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("rpc %s: %s", e.RPCCode, e.Message)
}

// Is matches a *model.Error with the same domain code, so callers can write
// errors.Is(err, model.ErrTimelockNotExpired) against a remote server.
func (e *APIError) Is(target error) bool {
	var m *model.Error
	return e.Code != 0 && errors.As(target, &m) && m.Code == e.Code
}
