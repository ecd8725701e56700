// Package identity authenticates callers by ed25519 signature. A caller
// signs a canonical message naming the operation, a unix timestamp and a
// digest of the request body, and sends its public key, the timestamp and
// the signature alongside the request.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
)

// HTTP headers carrying a signed identity.
const (
	HeaderCaller    = "X-Vesting-Caller"
	HeaderTimestamp = "X-Vesting-Timestamp"
	HeaderSignature = "X-Vesting-Signature"
)

// gRPC metadata keys carrying a signed identity.
const (
	MetadataCaller    = "x-vesting-caller"
	MetadataTimestamp = "x-vesting-timestamp"
	MetadataSignature = "x-vesting-signature"
)

var (
	ErrMalformed    = errors.New("malformed identity")
	ErrClockSkew    = errors.New("signature timestamp outside allowed window")
	ErrBadSignature = errors.New("signature does not verify")
)

// HTTPMessage is the message signed for an HTTP request. requestURI is the
// path with its encoded query, as in [url.URL.RequestURI].
func HTTPMessage(method, requestURI string, timestamp int64, body []byte) []byte {
	return message(method+"\n"+requestURI, timestamp, body)
}

// RPCMessage is the message signed for a gRPC call. payload is the JSON
// encoding of the request message.
func RPCMessage(fullMethod string, timestamp int64, payload []byte) []byte {
	return message(fullMethod, timestamp, payload)
}

func message(target string, timestamp int64, body []byte) []byte {
	sum := sha256.Sum256(body)
	return []byte(target + "\n" + strconv.FormatInt(timestamp, 10) + "\n" + hex.EncodeToString(sum[:]))
}

// Sign signs msg with key and returns the base58 signature.
func Sign(key solana.PrivateKey, msg []byte) (string, error) {
	sig, err := key.Sign(msg)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return sig.String(), nil
}

// Claim is an unverified identity as it arrived on the wire.
type Claim struct {
	Caller    string
	Timestamp string
	Signature string
}

// Empty reports whether no identity was presented at all.
func (c Claim) Empty() bool {
	return c.Caller == "" && c.Timestamp == "" && c.Signature == ""
}

// Verify checks the claim against msg, built by build from the parsed
// timestamp, and returns the authenticated caller. now and maxSkew bound the
// timestamp; a zero maxSkew disables the bound.
func (c Claim) Verify(build func(timestamp int64) []byte, now time.Time, maxSkew time.Duration) (solana.PublicKey, error) {
	caller, err := solana.PublicKeyFromBase58(c.Caller)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("caller: %w", ErrMalformed)
	}
	ts, err := strconv.ParseInt(c.Timestamp, 10, 64)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("timestamp: %w", ErrMalformed)
	}
	sig, err := solana.SignatureFromBase58(c.Signature)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("signature: %w", ErrMalformed)
	}
	if maxSkew > 0 {
		skew := now.Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > maxSkew {
			return solana.PublicKey{}, fmt.Errorf("skew %s exceeds %s: %w", skew, maxSkew, ErrClockSkew)
		}
	}
	if !sig.Verify(caller, build(ts)) {
		return solana.PublicKey{}, ErrBadSignature
	}
	return caller, nil
}

type callerKey struct{}

// WithCaller returns ctx carrying an authenticated caller.
func WithCaller(ctx context.Context, caller solana.PublicKey) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the authenticated caller in ctx, if any.
func CallerFrom(ctx context.Context) (solana.PublicKey, bool) {
	pk, ok := ctx.Value(callerKey{}).(solana.PublicKey)
	return pk, ok
}
