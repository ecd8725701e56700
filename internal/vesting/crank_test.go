package vesting

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/events"
	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/store"
	"github.com/alfredjeanlab/vesting/internal/store/memory"
)

func TestCrank_HalfThenRest(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.hubParams(1000, t0, t0, t0+100))

	f.clock.Set(t0 + 50)
	r, err := f.eng.Release(f.ctx, s.ID, 0)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if r.Transferable != 500 {
		t.Fatalf("transferable at T+50 = %d, want 500", r.Transferable)
	}
	rep := f.crank(t, s)
	if rep.Released != 1 || rep.TotalReleased != 500 {
		t.Fatalf("report = %+v", rep)
	}
	if got := f.schedule(t, s.ID).AmountTransferred; got != 500 {
		t.Errorf("transferred = %d, want 500", got)
	}
	if got := f.balance(t, s.Vault); got != 500 {
		t.Errorf("vault = %d, want 500", got)
	}
	if got := f.balance(t, f.hubAccount); got != 500 {
		t.Errorf("hub account = %d, want 500", got)
	}

	f.clock.Set(t0 + 100)
	rep = f.crank(t, s)
	if rep.TotalReleased != 500 {
		t.Fatalf("second release = %d, want 500", rep.TotalReleased)
	}
	if got := f.balance(t, s.Vault); got != 0 {
		t.Errorf("vault = %d, want 0", got)
	}
	if !f.schedule(t, s.ID).FullyProcessed() {
		t.Error("schedule not fully processed")
	}
	f.assertConserved(t, s.ID)
}

func TestCrank_InstantUnlock(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.hubParams(1234, t0, t0, t0))
	rep := f.crank(t, s)
	if rep.TotalReleased != 1234 {
		t.Fatalf("released = %d, want 1234", rep.TotalReleased)
	}
	f.assertConserved(t, s.ID)
}

func TestCrank_Idempotent(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.hubParams(1000, t0, t0, t0+100))
	f.clock.Set(t0 + 30)

	first := f.crank(t, s)
	second := f.crank(t, s)
	if first.TotalReleased != 300 {
		t.Errorf("first = %d, want 300", first.TotalReleased)
	}
	if second.TotalReleased != 0 || second.Skipped != 1 {
		t.Errorf("second = %+v", second)
	}
	if code := second.Results[0].Code; code != model.ErrNoTransferableAmount.Code {
		t.Errorf("skip code = %d, want %d", code, model.ErrNoTransferableAmount.Code)
	}
}

func TestCrank_CliffGating(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.hubParams(1000, t0+60, t0+60, t0+160))

	f.clock.Set(t0 + 59)
	if rep := f.crank(t, s); rep.Skipped != 1 || rep.TotalReleased != 0 {
		t.Fatalf("report before cliff = %+v", rep)
	}
	f.clock.Set(t0 + 60)
	if rep := f.crank(t, s); rep.Skipped != 1 || rep.TotalReleased != 0 {
		t.Fatalf("report at cliff = %+v", rep)
	}
	f.clock.Set(t0 + 110)
	if rep := f.crank(t, s); rep.TotalReleased != 500 {
		t.Errorf("released halfway = %d, want 500", rep.TotalReleased)
	}
	f.clock.Set(t0 + 133)
	if rep := f.crank(t, s); rep.TotalReleased != 230 {
		t.Errorf("released between cranks = %d, want 230", rep.TotalReleased)
	}
	f.assertConserved(t, s.ID)
}

// cancelingStore ends the crank's context once a given number of
// transactions have committed.
type cancelingStore struct {
	*memory.Store
	after  int
	commit int
	cancel context.CancelFunc
}

func (s *cancelingStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	err := s.Store.RunInTransaction(ctx, fn)
	if err == nil {
		s.commit++
		if s.commit == s.after {
			s.cancel()
		}
	}
	return err
}

func TestCrank_CanceledMidBatchReportsCommittedPairs(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, f.hubParams(1000, t0, t0, t0+100))
	b := f.create(t, f.hubParams(1000, t0, t0, t0+100))
	f.clock.Set(t0 + 50)

	ctx, cancel := context.WithCancel(f.ctx)
	defer cancel()
	eng := New(&cancelingStore{Store: f.store, after: 1, cancel: cancel},
		WithClock(f.clock.Now),
		WithPublisher(f.pub),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	rep, err := eng.Crank(ctx, CrankRequest{
		Mint:       f.mint,
		HubAccount: f.hubAccount,
		Pairs:      []CrankPair{{ScheduleID: a.ID, Vault: a.Vault}, {ScheduleID: b.ID, Vault: b.Vault}},
	})
	if err != nil {
		t.Fatalf("Crank: %v", err)
	}
	if !rep.Interrupted || rep.Released != 1 || rep.TotalReleased != 500 || len(rep.Results) != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if got := f.schedule(t, b.ID).AmountTransferred; got != 0 {
		t.Errorf("second schedule transferred %d after cancel", got)
	}

	evts, err := f.eng.Events(f.ctx, a.ID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if last := evts[len(evts)-1]; last.Topic != events.TopicTokensReleased {
		t.Errorf("last event of released schedule = %s, want %s", last.Topic, events.TopicTokensReleased)
	}
	if topics := f.pub.Topics(); topics[len(topics)-1] != events.TopicCrankCompleted {
		t.Errorf("published topics = %v", topics)
	}
	f.assertConserved(t, a.ID)
}

func TestCrank_ConvergesAndMonotonic(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.hubParams(999_983, t0, t0, t0+977))
	var prev uint64
	for now := t0; now <= t0+1200; now += 13 {
		f.clock.Set(now)
		f.crank(t, s)
		got := f.schedule(t, s.ID)
		if got.AmountTransferred < prev {
			t.Fatalf("transferred decreased at %d: %d < %d", now, got.AmountTransferred, prev)
		}
		prev = got.AmountTransferred
		f.assertConserved(t, s.ID)
	}
	if prev != 999_983 {
		t.Errorf("converged to %d, want 999983", prev)
	}
	rep := f.crank(t, s)
	if rep.Skipped != 1 || rep.Results[0].Code != model.ErrScheduleFullyProcessed.Code {
		t.Errorf("crank after full release = %+v", rep.Results)
	}
}

func TestCrank_Beneficiary(t *testing.T) {
	f := newFixture(t)
	p := f.beneficiaryParams(t, 1000, t0, t0, t0+100)
	s := f.create(t, p)
	f.clock.Set(t0 + 100)

	// No hub account needed for a batch of beneficiary schedules.
	rep, err := f.eng.Crank(f.ctx, CrankRequest{
		Mint:  f.mint,
		Pairs: []CrankPair{{ScheduleID: s.ID, Vault: s.Vault}},
	})
	if err != nil {
		t.Fatalf("Crank: %v", err)
	}
	if rep.Released != 1 || !rep.Results[0].Recipient.Equals(p.BeneficiaryAccount) {
		t.Fatalf("report = %+v", rep)
	}
	if got := f.balance(t, p.BeneficiaryAccount); got != 1000 {
		t.Errorf("beneficiary = %d, want 1000", got)
	}
}

func TestCrank_BeneficiaryWrongRecipient(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.beneficiaryParams(t, 1000, t0, t0, t0+100))
	f.clock.Set(t0 + 100)

	rep, err := f.eng.Crank(f.ctx, CrankRequest{
		Mint:  f.mint,
		Pairs: []CrankPair{{ScheduleID: s.ID, Vault: s.Vault, Recipient: f.hubAccount}},
	})
	if err != nil {
		t.Fatalf("Crank: %v", err)
	}
	if rep.Failed != 1 || rep.Results[0].Code != model.ErrRecipientAccountMismatch.Code {
		t.Fatalf("results = %+v", rep.Results)
	}
	f.assertConserved(t, s.ID)
	if got := f.schedule(t, s.ID).AmountTransferred; got != 0 {
		t.Errorf("transferred = %d after failed pair", got)
	}
}

func TestCrank_PartialFailureKeepsEarlierPairs(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, f.hubParams(100, t0, t0, t0))
	b := f.create(t, f.hubParams(200, t0, t0, t0))
	c := f.create(t, f.hubParams(300, t0, t0, t0))

	rep, err := f.eng.Crank(f.ctx, CrankRequest{
		Mint:       f.mint,
		HubAccount: f.hubAccount,
		Pairs: []CrankPair{
			{ScheduleID: a.ID, Vault: a.Vault},
			{ScheduleID: b.ID, Vault: c.Vault},
			{ScheduleID: 99, Vault: key()},
			{ScheduleID: c.ID, Vault: c.Vault},
		},
	})
	if err != nil {
		t.Fatalf("Crank: %v", err)
	}
	want := []Outcome{OutcomeReleased, OutcomeFailed, OutcomeFailed, OutcomeReleased}
	for i, res := range rep.Results {
		if res.Outcome != want[i] {
			t.Errorf("result %d = %+v, want %s", i, res, want[i])
		}
	}
	if rep.Results[1].Code != model.ErrVaultMismatch.Code {
		t.Errorf("vault mismatch code = %d", rep.Results[1].Code)
	}
	if rep.Results[2].Code != model.ErrScheduleNotFound.Code {
		t.Errorf("missing schedule code = %d", rep.Results[2].Code)
	}
	if rep.TotalReleased != 400 {
		t.Errorf("total = %d, want 400", rep.TotalReleased)
	}
	if got := f.balance(t, f.hubAccount); got != 400 {
		t.Errorf("hub = %d, want 400", got)
	}
}

func TestCrank_BatchRejections(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.hubParams(100, t0, t0, t0))
	pair := CrankPair{ScheduleID: s.ID, Vault: s.Vault}

	wrongMintHub := key()
	if _, err := f.eng.OpenAccount(f.ctx, f.admin, wrongMintHub, key(), f.hub, 0); err != nil {
		t.Fatalf("OpenAccount: %v", err)
	}
	strangerHub := key()
	if _, err := f.eng.OpenAccount(f.ctx, f.admin, strangerHub, f.mint, key(), 0); err != nil {
		t.Fatalf("OpenAccount: %v", err)
	}

	tooMany := make([]CrankPair, MaxSchedulesPerCrank+1)
	for i := range tooMany {
		tooMany[i] = pair
	}

	for _, tc := range []struct {
		name string
		req  CrankRequest
		want error
	}{
		{"too many pairs", CrankRequest{Mint: f.mint, HubAccount: f.hubAccount, Pairs: tooMany}, model.ErrTooManyAccounts},
		{"zero mint", CrankRequest{HubAccount: f.hubAccount, Pairs: []CrankPair{pair}}, model.ErrMintMismatch},
		{"hub account not owned by hub", CrankRequest{Mint: f.mint, HubAccount: strangerHub, Pairs: []CrankPair{pair}}, model.ErrHubAccountOwnerMismatch},
		{"hub account wrong mint", CrankRequest{Mint: f.mint, HubAccount: wrongMintHub, Pairs: []CrankPair{pair}}, model.ErrHubAccountMintMismatch},
		{"hub account missing", CrankRequest{Mint: f.mint, Pairs: []CrankPair{pair}}, model.ErrHubAccountOwnerMismatch},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.eng.Crank(f.ctx, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if got := f.schedule(t, s.ID).AmountTransferred; got != 0 {
				t.Errorf("transferred = %d after rejected batch", got)
			}
		})
	}
}

func TestCrank_HubNotSet(t *testing.T) {
	f := newFixtureWithHub(t, solana.PublicKey{})
	s := f.create(t, f.hubParams(100, t0, t0, t0))
	_, err := f.eng.Crank(f.ctx, CrankRequest{Mint: f.mint, HubAccount: key(), Pairs: []CrankPair{{ScheduleID: s.ID, Vault: s.Vault}}})
	if !errors.Is(err, model.ErrDistributionHubNotSet) {
		t.Fatalf("err = %v, want ErrDistributionHubNotSet", err)
	}
}

func TestCrank_HubAccountMismatch(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.hubParams(100, t0, t0, t0))

	strangers := key()
	if _, err := f.eng.OpenAccount(f.ctx, f.admin, strangers, f.mint, key(), 0); err != nil {
		t.Fatalf("OpenAccount: %v", err)
	}
	otherMint := key()
	if _, err := f.eng.OpenAccount(f.ctx, f.admin, otherMint, key(), f.hub, 0); err != nil {
		t.Fatalf("OpenAccount: %v", err)
	}

	for _, tc := range []struct {
		name    string
		account solana.PublicKey
		want    error
	}{
		{"missing", solana.PublicKey{}, model.ErrHubAccountOwnerMismatch},
		{"wrong owner", strangers, model.ErrHubAccountOwnerMismatch},
		{"wrong mint", otherMint, model.ErrHubAccountMintMismatch},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.eng.Crank(f.ctx, CrankRequest{Mint: f.mint, HubAccount: tc.account, Pairs: []CrankPair{{ScheduleID: s.ID, Vault: s.Vault}}})
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if got := f.schedule(t, s.ID).AmountTransferred; got != 0 {
		t.Fatalf("rejected crank transferred %d", got)
	}
}

func TestCrank_MaxSchedules(t *testing.T) {
	f := newFixture(t)
	var pairs []CrankPair
	for i := 0; i < 3; i++ {
		s := f.create(t, f.hubParams(10, t0, t0, t0))
		pairs = append(pairs, CrankPair{ScheduleID: s.ID, Vault: s.Vault})
	}
	rep, err := f.eng.Crank(f.ctx, CrankRequest{Mint: f.mint, HubAccount: f.hubAccount, Pairs: pairs, MaxSchedules: 2})
	if err != nil {
		t.Fatalf("Crank: %v", err)
	}
	if len(rep.Results) != 2 || rep.TotalReleased != 20 {
		t.Errorf("report = %+v", rep)
	}
	if got := f.schedule(t, 2).AmountTransferred; got != 0 {
		t.Errorf("third schedule released %d beyond max_schedules", got)
	}
}

func TestCrank_EmptyBatch(t *testing.T) {
	f := newFixture(t)
	rep, err := f.eng.Crank(f.ctx, CrankRequest{Mint: f.mint})
	if err != nil {
		t.Fatalf("Crank: %v", err)
	}
	if len(rep.Results) != 0 || rep.RunID == "" {
		t.Errorf("report = %+v", rep)
	}
}

func TestCrank_Events(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.hubParams(100, t0, t0, t0))
	f.crank(t, s)

	var released *events.TokensReleased
	for _, rec := range f.pub.Events {
		if ev, ok := rec.Event.(events.TokensReleased); ok {
			released = &ev
		}
	}
	if released == nil {
		t.Fatalf("no TokensReleased in %v", f.pub.Topics())
	}
	if released.Amount != 100 || released.AmountTransferred != 100 || released.Routing != model.RoutingHub {
		t.Errorf("event = %+v", released)
	}
	topics := f.pub.Topics()
	if topics[len(topics)-1] != events.TopicCrankCompleted {
		t.Errorf("last topic = %s", topics[len(topics)-1])
	}
}

func TestCrank_ConcurrentSameSchedule(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.hubParams(1000, t0, t0, t0+100))
	f.clock.Set(t0 + 40)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total uint64
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := f.eng.Crank(f.ctx, CrankRequest{
				Mint:       f.mint,
				HubAccount: f.hubAccount,
				Pairs:      []CrankPair{{ScheduleID: s.ID, Vault: s.Vault}},
			})
			if err != nil {
				t.Errorf("Crank: %v", err)
				return
			}
			mu.Lock()
			total += rep.TotalReleased
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != 400 {
		t.Errorf("released %d across concurrent cranks, want 400", total)
	}
	if got := f.balance(t, f.hubAccount); got != 400 {
		t.Errorf("hub = %d, want 400", got)
	}
	f.assertConserved(t, s.ID)
}
