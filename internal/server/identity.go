package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/vesting/internal/identity"
)

// maxSignedBody bounds the request body read for signature verification.
const maxSignedBody = 1 << 20

// IdentityMiddleware verifies a signed caller identity when the request
// carries one and stores the caller in the request context. Requests with no
// identity headers pass through unauthenticated; handlers that need a caller
// reject them.
func IdentityMiddleware(maxSkew time.Duration, now func() time.Time, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claim := identity.Claim{
			Caller:    r.Header.Get(identity.HeaderCaller),
			Timestamp: r.Header.Get(identity.HeaderTimestamp),
			Signature: r.Header.Get(identity.HeaderSignature),
		}
		if claim.Empty() {
			next.ServeHTTP(w, r)
			return
		}

		var body []byte
		if r.Body != nil {
			var err error
			body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxSignedBody))
			if err != nil {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		caller, err := claim.Verify(func(ts int64) []byte {
			return identity.HTTPMessage(r.Method, r.URL.RequestURI(), ts, body)
		}, now(), maxSkew)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid caller identity: "+err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithCaller(r.Context(), caller)))
	})
}

// requireCaller returns the authenticated caller, or writes 401 and returns
// false.
func requireCaller(w http.ResponseWriter, r *http.Request) (solana.PublicKey, bool) {
	caller, ok := identity.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, string(errNoCaller))
		return solana.PublicKey{}, false
	}
	return caller, true
}

// IdentityInterceptor is the gRPC counterpart of IdentityMiddleware. The
// signed payload is the JSON encoding of the request message.
func IdentityInterceptor(maxSkew time.Duration, now func() time.Time) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		claim := identity.Claim{
			Caller:    first(md, identity.MetadataCaller),
			Timestamp: first(md, identity.MetadataTimestamp),
			Signature: first(md, identity.MetadataSignature),
		}
		if claim.Empty() {
			return handler(ctx, req)
		}

		payload, err := json.Marshal(req)
		if err != nil {
			return nil, status.Error(codes.Internal, "encoding request for verification")
		}
		caller, err := claim.Verify(func(ts int64) []byte {
			return identity.RPCMessage(info.FullMethod, ts, payload)
		}, now(), maxSkew)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid caller identity: "+err.Error())
		}
		return handler(identity.WithCaller(ctx, caller), req)
	}
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
