package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/vesting/internal/model"
)

// MetadataErrorCode is the gRPC trailer carrying a domain error code.
const MetadataErrorCode = "x-vesting-error-code"

// httpStatus maps an error to an HTTP status code.
func httpStatus(err error) int {
	var ie inputError
	if errors.As(err, &ie) {
		return http.StatusBadRequest
	}
	switch model.KindOf(err) {
	case model.KindAuthorization:
		return http.StatusForbidden
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindTemporal, model.KindNoop, model.KindConflict:
		return http.StatusConflict
	case model.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// grpcCode maps an error to a gRPC status code.
func grpcCode(err error) codes.Code {
	var ie inputError
	if errors.As(err, &ie) {
		return codes.InvalidArgument
	}
	switch model.KindOf(err) {
	case model.KindAuthorization:
		return codes.PermissionDenied
	case model.KindValidation:
		return codes.InvalidArgument
	case model.KindTemporal, model.KindNoop:
		return codes.FailedPrecondition
	case model.KindConflict:
		return codes.Aborted
	case model.KindNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

// grpcError converts err to a status error and attaches its domain code as
// a trailer. A nil err stays nil.
func grpcError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if code := model.CodeOf(err); code != 0 {
		_ = grpc.SetTrailer(ctx, metadata.Pairs(MetadataErrorCode, strconv.Itoa(code)))
	}
	return status.Error(grpcCode(err), err.Error())
}
