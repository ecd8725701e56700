package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/api"
	"github.com/alfredjeanlab/vesting/internal/identity"
	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/store/memory"
	"github.com/alfredjeanlab/vesting/internal/vesting"
)

const t0 = int64(1_700_000_000)

type testClock struct {
	mu  sync.Mutex
	now int64
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0)
}

func (c *testClock) Set(unix int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = unix
}

// testEnv is a server over an in-memory store with an initialized program,
// a funded depositor account, and a hub account.
type testEnv struct {
	srv        *VestingServer
	handler    http.Handler
	clock      *testClock
	admin      solana.PrivateKey
	hub        solana.PublicKey
	mint       solana.PublicKey
	depositor  solana.PublicKey
	hubAccount solana.PublicKey
}

func newPublicKey() solana.PublicKey { return solana.NewWallet().PublicKey() }

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:      &testClock{now: t0},
		admin:      solana.NewWallet().PrivateKey,
		hub:        newPublicKey(),
		mint:       newPublicKey(),
		depositor:  newPublicKey(),
		hubAccount: newPublicKey(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := vesting.New(memory.New(), vesting.WithClock(env.clock.Now), vesting.WithLogger(logger))
	env.srv = NewVestingServer(eng, logger)
	env.srv.now = env.clock.Now
	env.handler = env.srv.NewHTTPHandler("", 5*time.Minute)

	rec := env.do(t, env.admin, http.MethodPost, "/v1/config", api.InitializeConfigRequest{DistributionHub: env.hub})
	requireStatus(t, rec, http.StatusCreated)
	rec = env.do(t, env.admin, http.MethodPost, "/v1/accounts", api.OpenAccountRequest{
		Address: env.depositor, Mint: env.mint, Owner: env.admin.PublicKey(), Deposit: 1_000_000,
	})
	requireStatus(t, rec, http.StatusCreated)
	rec = env.do(t, env.admin, http.MethodPost, "/v1/accounts", api.OpenAccountRequest{
		Address: env.hubAccount, Mint: env.mint, Owner: env.hub,
	})
	requireStatus(t, rec, http.StatusCreated)
	return env
}

// do sends a request signed by key. A nil key sends it unsigned.
func (e *testEnv) do(t *testing.T, key solana.PrivateKey, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if key != nil {
		ts := e.clock.Now().Unix()
		sig, err := identity.Sign(key, identity.HTTPMessage(method, req.URL.RequestURI(), ts, raw))
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		req.Header.Set(identity.HeaderCaller, key.PublicKey().String())
		req.Header.Set(identity.HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(identity.HeaderSignature, sig)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) params(total uint64, cliff, start, end int64) model.ScheduleParams {
	return model.ScheduleParams{
		Mint:                  e.mint,
		DepositorAccount:      e.depositor,
		Routing:               model.RoutingHub,
		TotalAmount:           total,
		CliffTimestamp:        cliff,
		VestingStartTimestamp: start,
		VestingEndTimestamp:   end,
		SourceCategory:        model.CategoryTeam,
	}
}

func (e *testEnv) createSchedule(t *testing.T, id uint64, p model.ScheduleParams) *model.Schedule {
	t.Helper()
	rec := e.do(t, e.admin, http.MethodPost, "/v1/schedules", api.CreateScheduleRequest{ID: id, Params: p})
	requireStatus(t, rec, http.StatusCreated)
	var s model.Schedule
	decodeBody(t, rec, &s)
	return &s
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rec.Code != code {
		t.Fatalf("expected status %d, got %d; body: %s", code, rec.Code, rec.Body.String())
	}
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, want *model.Error) {
	t.Helper()
	requireStatus(t, rec, status)
	var body api.ErrorResponse
	decodeBody(t, rec, &body)
	if want != nil && body.Code != want.Code {
		t.Fatalf("error code = %d, want %d (%s)", body.Code, want.Code, body.Error)
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	env := newTestServer(t)
	rec := env.do(t, nil, http.MethodGet, "/v1/health", nil)
	requireStatus(t, rec, http.StatusOK)
	var resp api.HealthResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" {
		t.Fatalf("status = %q", resp.Status)
	}
}

func TestHandleGetConfig(t *testing.T) {
	env := newTestServer(t)
	rec := env.do(t, nil, http.MethodGet, "/v1/config", nil)
	requireStatus(t, rec, http.StatusOK)
	var cfg model.ProgramConfig
	decodeBody(t, rec, &cfg)
	if !cfg.Admin.Equals(env.admin.PublicKey()) || !cfg.DistributionHub.Equals(env.hub) {
		t.Fatalf("config = %+v", cfg)
	}
	if cfg.TotalSchedules != 0 {
		t.Fatalf("total_schedules = %d", cfg.TotalSchedules)
	}
}

func TestHandleInitializeConfig_Twice(t *testing.T) {
	env := newTestServer(t)
	rec := env.do(t, env.admin, http.MethodPost, "/v1/config", api.InitializeConfigRequest{})
	requireError(t, rec, http.StatusBadRequest, model.ErrAlreadyInitialized)
}

func TestHandleInitializeConfig_OtherAdmin(t *testing.T) {
	env := newTestServer(t)
	rec := env.do(t, env.admin, http.MethodPost, "/v1/config", api.InitializeConfigRequest{Admin: newPublicKey()})
	requireError(t, rec, http.StatusForbidden, model.ErrUnauthorized)
}

func TestHandleMutations_RequireCaller(t *testing.T) {
	env := newTestServer(t)
	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/v1/config/hub", api.ProposeHubRequest{Address: newPublicKey()}},
		{http.MethodPost, "/v1/schedules", api.CreateScheduleRequest{}},
		{http.MethodDelete, "/v1/schedules/0", nil},
		{http.MethodPost, "/v1/accounts", api.OpenAccountRequest{}},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			requireStatus(t, env.do(t, nil, tc.method, tc.path, tc.body), http.StatusUnauthorized)
		})
	}
}

func TestHandleSchedule_Lifecycle(t *testing.T) {
	env := newTestServer(t)
	s := env.createSchedule(t, 0, env.params(1000, t0+100, t0+100, t0+1100))
	if s.ID != 0 || s.TotalAmount != 1000 || s.AmountTransferred != 0 {
		t.Fatalf("created = %+v", s)
	}

	rec := env.do(t, nil, http.MethodGet, "/v1/schedules/0", nil)
	requireStatus(t, rec, http.StatusOK)

	rec = env.do(t, nil, http.MethodGet, fmt.Sprintf("/v1/schedules/0/release?at=%d", t0+600), nil)
	requireStatus(t, rec, http.StatusOK)
	var rel vesting.Release
	decodeBody(t, rec, &rel)
	if rel.Unlocked != 500 || rel.Transferable != 500 {
		t.Fatalf("release = %+v", rel)
	}

	// Not drained yet.
	rec = env.do(t, env.admin, http.MethodDelete, "/v1/schedules/0", nil)
	requireError(t, rec, http.StatusConflict, model.ErrScheduleNotFullyVested)

	env.clock.Set(t0 + 2000)
	rec = env.do(t, nil, http.MethodPost, "/v1/crank", vesting.CrankRequest{
		Mint:       env.mint,
		HubAccount: env.hubAccount,
		Pairs:      []vesting.CrankPair{{ScheduleID: s.ID, Vault: s.Vault}},
	})
	requireStatus(t, rec, http.StatusOK)
	var rep vesting.CrankReport
	decodeBody(t, rec, &rep)
	if rep.Released != 1 || rep.TotalReleased != 1000 {
		t.Fatalf("report = %+v", rep)
	}

	rec = env.do(t, nil, http.MethodGet, "/v1/accounts/"+env.hubAccount.String(), nil)
	requireStatus(t, rec, http.StatusOK)
	var acct model.TokenAccount
	decodeBody(t, rec, &acct)
	if acct.Amount != 1000 {
		t.Fatalf("hub balance = %d, want 1000", acct.Amount)
	}

	rec = env.do(t, nil, http.MethodGet, "/v1/schedules/0/events", nil)
	requireStatus(t, rec, http.StatusOK)
	var evs api.EventsResponse
	decodeBody(t, rec, &evs)
	if len(evs.Events) != 2 {
		t.Fatalf("events = %d, want created+released", len(evs.Events))
	}

	rec = env.do(t, env.admin, http.MethodDelete, "/v1/schedules/0", nil)
	requireStatus(t, rec, http.StatusOK)
	rec = env.do(t, nil, http.MethodGet, "/v1/schedules/0", nil)
	requireError(t, rec, http.StatusNotFound, model.ErrScheduleNotFound)
}

func TestHandleCreateSchedule_Errors(t *testing.T) {
	env := newTestServer(t)
	stranger := solana.NewWallet().PrivateKey
	good := env.params(1000, t0, t0, t0+100)
	zero := good
	zero.TotalAmount = 0
	backwards := good
	backwards.VestingEndTimestamp = t0 - 1

	for _, tc := range []struct {
		name   string
		key    solana.PrivateKey
		req    api.CreateScheduleRequest
		status int
		want   *model.Error
	}{
		{"not admin", stranger, api.CreateScheduleRequest{ID: 0, Params: good}, http.StatusForbidden, model.ErrUnauthorized},
		{"id conflict", env.admin, api.CreateScheduleRequest{ID: 5, Params: good}, http.StatusBadRequest, model.ErrScheduleIDConflict},
		{"zero amount", env.admin, api.CreateScheduleRequest{ID: 0, Params: zero}, http.StatusBadRequest, model.ErrInvalidAmount},
		{"timestamps", env.admin, api.CreateScheduleRequest{ID: 0, Params: backwards}, http.StatusBadRequest, model.ErrInvalidTimestamps},
	} {
		t.Run(tc.name, func(t *testing.T) {
			requireError(t, env.do(t, tc.key, http.MethodPost, "/v1/schedules", tc.req), tc.status, tc.want)
		})
	}
}

func TestHandleCreateSchedule_InvalidJSON(t *testing.T) {
	env := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/schedules", bytes.NewReader([]byte("{nope")))
	ts := env.clock.Now().Unix()
	sig, _ := identity.Sign(env.admin, identity.HTTPMessage(http.MethodPost, "/v1/schedules", ts, []byte("{nope")))
	req.Header.Set(identity.HeaderCaller, env.admin.PublicKey().String())
	req.Header.Set(identity.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(identity.HeaderSignature, sig)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	requireStatus(t, rec, http.StatusBadRequest)
}

func TestHandleListSchedules(t *testing.T) {
	env := newTestServer(t)
	env.createSchedule(t, 0, env.params(100, t0, t0, t0+100))
	env.createSchedule(t, 1, env.params(200, t0, t0, t0+100))

	rec := env.do(t, nil, http.MethodGet, "/v1/schedules?limit=1", nil)
	requireStatus(t, rec, http.StatusOK)
	var resp api.ListSchedulesResponse
	decodeBody(t, rec, &resp)
	if resp.Total != 2 || len(resp.Schedules) != 1 {
		t.Fatalf("total=%d len=%d", resp.Total, len(resp.Schedules))
	}

	rec = env.do(t, nil, http.MethodGet, "/v1/schedules?mint="+newPublicKey().String(), nil)
	requireStatus(t, rec, http.StatusOK)
	resp = api.ListSchedulesResponse{}
	decodeBody(t, rec, &resp)
	if resp.Schedules == nil || len(resp.Schedules) != 0 {
		t.Fatalf("expected empty non-null list, got %v", resp.Schedules)
	}

	for _, q := range []string{"routing=nowhere", "category=misc", "limit=-1", "open=maybe", "mint=xyz"} {
		requireStatus(t, env.do(t, nil, http.MethodGet, "/v1/schedules?"+q, nil), http.StatusBadRequest)
	}
}

func TestHandleGetSchedule_InvalidID(t *testing.T) {
	env := newTestServer(t)
	requireStatus(t, env.do(t, nil, http.MethodGet, "/v1/schedules/abc", nil), http.StatusBadRequest)
	requireStatus(t, env.do(t, nil, http.MethodGet, "/v1/schedules/9/events", nil), http.StatusNotFound)
}

func TestHandleProposeHub(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, env.admin, http.MethodPost, "/v1/config/hub", api.ProposeHubRequest{Address: env.hub})
	requireError(t, rec, http.StatusConflict, model.ErrHubAddressNotChanged)

	next := newPublicKey()
	rec = env.do(t, env.admin, http.MethodPost, "/v1/config/hub", api.ProposeHubRequest{Address: next})
	requireStatus(t, rec, http.StatusOK)
	var res vesting.HubResult
	decodeBody(t, rec, &res)
	if res.Config.PendingHub == nil || !res.Config.PendingHub.Target.Equals(next) {
		t.Fatalf("pending = %+v", res.Config.PendingHub)
	}

	rec = env.do(t, env.admin, http.MethodPost, "/v1/config/hub", api.ProposeHubRequest{Address: next})
	requireError(t, rec, http.StatusConflict, model.ErrTimelockNotExpired)

	env.clock.Set(res.Config.PendingHub.Deadline)
	rec = env.do(t, env.admin, http.MethodPost, "/v1/config/hub", api.ProposeHubRequest{Address: next})
	requireStatus(t, rec, http.StatusOK)
	res = vesting.HubResult{}
	decodeBody(t, rec, &res)
	if !res.Config.DistributionHub.Equals(next) || res.Config.PendingHub != nil {
		t.Fatalf("config after confirm = %+v", res.Config)
	}
}

func TestHandleCrank_TooManyPairs(t *testing.T) {
	env := newTestServer(t)
	req := vesting.CrankRequest{Mint: env.mint, HubAccount: env.hubAccount}
	for i := range vesting.MaxSchedulesPerCrank + 1 {
		req.Pairs = append(req.Pairs, vesting.CrankPair{ScheduleID: uint64(i), Vault: newPublicKey()})
	}
	requireError(t, env.do(t, nil, http.MethodPost, "/v1/crank", req), http.StatusBadRequest, model.ErrTooManyAccounts)
}

func TestHandleHTTPErrors(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want int
	}{
		{inputError("bad"), http.StatusBadRequest},
		{model.ErrUnauthorized, http.StatusForbidden},
		{model.ErrInvalidAmount, http.StatusBadRequest},
		{model.ErrTimelockNotExpired, http.StatusConflict},
		{model.ErrNoTransferableAmount, http.StatusConflict},
		{model.ErrConcurrentModification, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", model.ErrScheduleNotFound), http.StatusNotFound},
		{model.ErrInvariantViolation, http.StatusInternalServerError},
		{context.Canceled, http.StatusInternalServerError},
	} {
		t.Run(tc.err.Error(), func(t *testing.T) {
			if got := httpStatus(tc.err); got != tc.want {
				t.Fatalf("httpStatus(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}
