package client

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/vesting/internal/api"
	"github.com/alfredjeanlab/vesting/internal/model"
)

// metadataErrorCode is the trailer the server sets to a domain error code.
const metadataErrorCode = "x-vesting-error-code"

// GRPCClient implements VestingClient using the gRPC transport with the
// JSON codec.
type GRPCClient struct {
	conn   *grpc.ClientConn
	token  string
	signer *Signer
}

var _ VestingClient = (*GRPCClient)(nil)

// NewGRPCClient connects to addr. Extra dial options are appended after the
// defaults.
func NewGRPCClient(addr, token string, signer *Signer, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, token: token, signer: signer}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// invoke calls method, signing req when the client has a signer, and
// converts status errors to *APIError.
func (c *GRPCClient) invoke(ctx context.Context, method string, req, resp any) error {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	if c.signer != nil {
		var err error
		if ctx, err = c.signer.signRPC(ctx, method, req); err != nil {
			return err
		}
	}
	var trailer metadata.MD
	err := c.conn.Invoke(ctx, method, req, resp, grpc.Trailer(&trailer))
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	apiErr := &APIError{RPCCode: st.Code(), Message: st.Message()}
	if vals := trailer.Get(metadataErrorCode); len(vals) > 0 {
		apiErr.Code, _ = strconv.Atoi(vals[0])
	}
	return apiErr
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	var resp api.HealthResponse
	if err := c.invoke(ctx, api.MethodHealth, &api.Empty{}, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (c *GRPCClient) InitializeConfig(ctx context.Context, req *api.InitializeConfigRequest) (*model.ProgramConfig, error) {
	var cfg model.ProgramConfig
	if err := c.invoke(ctx, api.MethodInitializeConfig, req, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *GRPCClient) GetConfig(ctx context.Context) (*model.ProgramConfig, error) {
	var cfg model.ProgramConfig
	if err := c.invoke(ctx, api.MethodGetConfig, &api.Empty{}, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *GRPCClient) ProposeOrConfirmHub(ctx context.Context, target solana.PublicKey) (*api.HubResult, error) {
	var res api.HubResult
	if err := c.invoke(ctx, api.MethodProposeOrConfirmHub, &api.ProposeHubRequest{Address: target}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *GRPCClient) CreateSchedule(ctx context.Context, req *api.CreateScheduleRequest) (*model.Schedule, error) {
	var s model.Schedule
	if err := c.invoke(ctx, api.MethodCreateSchedule, req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *GRPCClient) GetSchedule(ctx context.Context, id uint64) (*model.Schedule, error) {
	var s model.Schedule
	if err := c.invoke(ctx, api.MethodGetSchedule, &api.ScheduleRequest{ID: id}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *GRPCClient) ListSchedules(ctx context.Context, req *api.ListSchedulesRequest) (*api.ListSchedulesResponse, error) {
	var resp api.ListSchedulesResponse
	if err := c.invoke(ctx, api.MethodListSchedules, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) GetRelease(ctx context.Context, id uint64, at int64) (*api.Release, error) {
	var rel api.Release
	if err := c.invoke(ctx, api.MethodGetRelease, &api.ReleaseRequest{ID: id, At: at}, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

func (c *GRPCClient) CloseSchedule(ctx context.Context, id uint64) (*model.Schedule, error) {
	var s model.Schedule
	if err := c.invoke(ctx, api.MethodCloseSchedule, &api.ScheduleRequest{ID: id}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *GRPCClient) GetEvents(ctx context.Context, id uint64) ([]*model.Event, error) {
	var resp api.EventsResponse
	if err := c.invoke(ctx, api.MethodGetEvents, &api.ScheduleRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *GRPCClient) Crank(ctx context.Context, req *api.CrankRequest) (*api.CrankReport, error) {
	var rep api.CrankReport
	if err := c.invoke(ctx, api.MethodCrank, req, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (c *GRPCClient) OpenAccount(ctx context.Context, req *api.OpenAccountRequest) (*model.TokenAccount, error) {
	var acct model.TokenAccount
	if err := c.invoke(ctx, api.MethodOpenAccount, req, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *GRPCClient) GetAccount(ctx context.Context, addr solana.PublicKey) (*model.TokenAccount, error) {
	var acct model.TokenAccount
	if err := c.invoke(ctx, api.MethodGetAccount, &api.AccountRequest{Address: addr}, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}
