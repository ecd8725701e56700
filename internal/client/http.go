package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/api"
	"github.com/alfredjeanlab/vesting/internal/model"
)

// HTTPClient implements VestingClient using the HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	signer     *Signer
	httpClient *http.Client
}

var _ VestingClient = (*HTTPClient)(nil)

// NewHTTPClient creates a client targeting baseURL (e.g.
// "http://localhost:8080"). A non-empty token is sent as a bearer token. A
// nil signer sends anonymous requests.
func NewHTTPClient(baseURL, token string, signer *Signer) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		signer:     signer,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp api.HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- Program config ---

func (c *HTTPClient) InitializeConfig(ctx context.Context, req *api.InitializeConfigRequest) (*model.ProgramConfig, error) {
	var cfg model.ProgramConfig
	if err := c.doJSON(ctx, http.MethodPost, "/v1/config", req, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *HTTPClient) GetConfig(ctx context.Context) (*model.ProgramConfig, error) {
	var cfg model.ProgramConfig
	if err := c.doJSON(ctx, http.MethodGet, "/v1/config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *HTTPClient) ProposeOrConfirmHub(ctx context.Context, target solana.PublicKey) (*api.HubResult, error) {
	var res api.HubResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/config/hub", &api.ProposeHubRequest{Address: target}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// --- Schedules ---

func schedulePath(id uint64) string {
	return "/v1/schedules/" + strconv.FormatUint(id, 10)
}

func (c *HTTPClient) CreateSchedule(ctx context.Context, req *api.CreateScheduleRequest) (*model.Schedule, error) {
	var s model.Schedule
	if err := c.doJSON(ctx, http.MethodPost, "/v1/schedules", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) GetSchedule(ctx context.Context, id uint64) (*model.Schedule, error) {
	var s model.Schedule
	if err := c.doJSON(ctx, http.MethodGet, schedulePath(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) ListSchedules(ctx context.Context, req *api.ListSchedulesRequest) (*api.ListSchedulesResponse, error) {
	q := url.Values{}
	if !req.Mint.IsZero() {
		q.Set("mint", req.Mint.String())
	}
	if req.Routing != "" {
		q.Set("routing", string(req.Routing))
	}
	if req.Category != "" {
		q.Set("category", string(req.Category))
	}
	if req.OpenOnly {
		q.Set("open", "true")
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}

	path := "/v1/schedules"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp api.ListSchedulesResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) GetRelease(ctx context.Context, id uint64, at int64) (*api.Release, error) {
	path := schedulePath(id) + "/release"
	if at != 0 {
		path += "?at=" + strconv.FormatInt(at, 10)
	}
	var rel api.Release
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

func (c *HTTPClient) CloseSchedule(ctx context.Context, id uint64) (*model.Schedule, error) {
	var s model.Schedule
	if err := c.doJSON(ctx, http.MethodDelete, schedulePath(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) GetEvents(ctx context.Context, id uint64) ([]*model.Event, error) {
	var resp api.EventsResponse
	if err := c.doJSON(ctx, http.MethodGet, schedulePath(id)+"/events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// --- Crank ---

func (c *HTTPClient) Crank(ctx context.Context, req *api.CrankRequest) (*api.CrankReport, error) {
	var rep api.CrankReport
	if err := c.doJSON(ctx, http.MethodPost, "/v1/crank", req, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// --- Token accounts ---

func (c *HTTPClient) OpenAccount(ctx context.Context, req *api.OpenAccountRequest) (*model.TokenAccount, error) {
	var acct model.TokenAccount
	if err := c.doJSON(ctx, http.MethodPost, "/v1/accounts", req, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *HTTPClient) GetAccount(ctx context.Context, addr solana.PublicKey) (*model.TokenAccount, error) {
	var acct model.TokenAccount
	if err := c.doJSON(ctx, http.MethodGet, "/v1/accounts/"+addr.String(), nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// --- internal helpers ---

// doJSON performs an HTTP request with optional JSON body and decodes the
// JSON response into result.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.signer != nil {
		if err := c.signer.signHTTP(req, data); err != nil {
			return fmt.Errorf("signing request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp api.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Code: errResp.Code, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
