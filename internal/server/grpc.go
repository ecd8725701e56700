package server

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/alfredjeanlab/vesting/internal/api"
)

// unary adapts a typed VestingService method to a grpc.MethodDesc handler.
func unary[Req any, Resp any](name string, call func(VestingService, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(VestingService), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + api.ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(VestingService), ctx, req.(*Req))
			})
		},
	}
}

// ServiceDesc describes VestingService. Messages travel with the JSON codec
// registered by package api.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: api.ServiceName,
	HandlerType: (*VestingService)(nil),
	Methods: []grpc.MethodDesc{
		unary("Health", VestingService.Health),
		unary("InitializeConfig", VestingService.InitializeConfig),
		unary("GetConfig", VestingService.GetConfig),
		unary("ProposeOrConfirmHub", VestingService.ProposeOrConfirmHub),
		unary("CreateSchedule", VestingService.CreateSchedule),
		unary("GetSchedule", VestingService.GetSchedule),
		unary("ListSchedules", VestingService.ListSchedules),
		unary("GetRelease", VestingService.GetRelease),
		unary("CloseSchedule", VestingService.CloseSchedule),
		unary("GetEvents", VestingService.GetEvents),
		unary("Crank", VestingService.Crank),
		unary("OpenAccount", VestingService.OpenAccount),
		unary("GetAccount", VestingService.GetAccount),
	},
}

// NewGRPCServer creates a gRPC server with standard interceptors and the
// VestingService registered.
func NewGRPCServer(vs *VestingServer, authToken string, maxSkew time.Duration) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(vs.logger),
			LoggingInterceptor(vs.logger),
			AuthInterceptor(authToken),
			IdentityInterceptor(maxSkew, vs.now),
		),
	)
	srv.RegisterService(&ServiceDesc, vs)
	return srv
}
