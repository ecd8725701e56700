package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"google.golang.org/grpc/metadata"

	"github.com/alfredjeanlab/vesting/internal/identity"
)

// Signer attaches a signed caller identity to outgoing requests.
type Signer struct {
	key solana.PrivateKey
	now func() time.Time
}

// NewSigner returns a signer for key.
func NewSigner(key solana.PrivateKey) *Signer {
	return &Signer{key: key, now: time.Now}
}

// LoadSigner reads a solana-keygen JSON keypair file.
func LoadSigner(path string) (*Signer, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading keypair %s: %w", path, err)
	}
	return NewSigner(key), nil
}

// PublicKey returns the caller identity the signer asserts.
func (s *Signer) PublicKey() solana.PublicKey { return s.key.PublicKey() }

func (s *Signer) signHTTP(req *http.Request, body []byte) error {
	ts := s.now().Unix()
	sig, err := identity.Sign(s.key, identity.HTTPMessage(req.Method, req.URL.RequestURI(), ts, body))
	if err != nil {
		return err
	}
	req.Header.Set(identity.HeaderCaller, s.key.PublicKey().String())
	req.Header.Set(identity.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(identity.HeaderSignature, sig)
	return nil
}

func (s *Signer) signRPC(ctx context.Context, method string, req any) (context.Context, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return ctx, fmt.Errorf("encoding request for signing: %w", err)
	}
	ts := s.now().Unix()
	sig, err := identity.Sign(s.key, identity.RPCMessage(method, ts, payload))
	if err != nil {
		return ctx, err
	}
	return metadata.AppendToOutgoingContext(ctx,
		identity.MetadataCaller, s.key.PublicKey().String(),
		identity.MetadataTimestamp, strconv.FormatInt(ts, 10),
		identity.MetadataSignature, sig,
	), nil
}
