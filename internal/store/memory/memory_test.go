package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/store"
)

func key() solana.PublicKey { return solana.NewWallet().PublicKey() }

func seedSchedule(t *testing.T, s *Store, id uint64) *model.Schedule {
	t.Helper()
	ctx := context.Background()
	vault := &model.TokenAccount{Address: key(), Mint: key(), Owner: key(), Amount: 100}
	if err := s.CreateAccount(ctx, vault); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	sc := &model.Schedule{
		ID: id, Vault: vault.Address, Mint: vault.Mint, TotalAmount: 100,
		Routing: model.RoutingHub, SourceCategory: model.CategorySeed,
	}
	if err := s.CreateSchedule(ctx, sc); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	return sc
}

func TestProgramConfig_Lifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.GetProgramConfig(ctx); !errors.Is(err, model.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	cfg := &model.ProgramConfig{Admin: key()}
	if err := s.CreateProgramConfig(ctx, cfg); err != nil {
		t.Fatalf("CreateProgramConfig: %v", err)
	}
	if err := s.CreateProgramConfig(ctx, &model.ProgramConfig{}); !errors.Is(err, model.ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}

	got, _ := s.GetProgramConfig(ctx)
	got.TotalSchedules = 99
	again, _ := s.GetProgramConfig(ctx)
	if again.TotalSchedules != 0 {
		t.Fatal("returned config should be a copy")
	}
}

func TestRunInTransaction_RollbackLeavesStateUnchanged(t *testing.T) {
	s := New()
	ctx := context.Background()
	sc := seedSchedule(t, s, 0)

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.AdvanceSchedule(ctx, sc.ID, 0, 40); err != nil {
			return err
		}
		if err := tx.SetAccountAmount(ctx, sc.Vault, 60); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := s.GetSchedule(ctx, sc.ID)
	if got.AmountTransferred != 0 {
		t.Errorf("amount_transferred = %d, want 0 after rollback", got.AmountTransferred)
	}
	vault, _ := s.GetAccount(ctx, sc.Vault)
	if vault.Amount != 100 {
		t.Errorf("vault = %d, want 100 after rollback", vault.Amount)
	}
}

func TestAdvanceSchedule_CompareAndSwap(t *testing.T) {
	s := New()
	ctx := context.Background()
	sc := seedSchedule(t, s, 0)

	if err := s.AdvanceSchedule(ctx, sc.ID, 0, 50); err != nil {
		t.Fatalf("first advance: %v", err)
	}
	if err := s.AdvanceSchedule(ctx, sc.ID, 0, 50); !errors.Is(err, model.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
	if err := s.AdvanceSchedule(ctx, sc.ID, 50, 101); !errors.Is(err, model.ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
}

func TestAdvanceSchedule_ConcurrentSingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	sc := seedSchedule(t, s, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.AdvanceSchedule(ctx, sc.ID, 0, 10); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
}

func TestListSchedules_Filter(t *testing.T) {
	s := New()
	ctx := context.Background()
	for id := uint64(0); id < 5; id++ {
		seedSchedule(t, s, id)
	}
	if err := s.AdvanceSchedule(ctx, 1, 0, 100); err != nil {
		t.Fatal(err)
	}

	all, total, err := s.ListSchedules(ctx, model.ScheduleFilter{OpenOnly: true, Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListSchedules: %v", err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
	if len(all) != 2 || all[0].ID != 2 || all[1].ID != 3 {
		t.Errorf("got ids %v", ids(all))
	}
}

func ids(ss []*model.Schedule) []uint64 {
	out := make([]uint64, len(ss))
	for i, s := range ss {
		out[i] = s.ID
	}
	return out
}

func TestDeleteAccount_RefusesBoundVault(t *testing.T) {
	s := New()
	ctx := context.Background()
	sc := seedSchedule(t, s, 0)
	if err := s.DeleteAccount(ctx, sc.Vault); err == nil {
		t.Fatal("expected error deleting a bound vault")
	}
	if err := s.DeleteSchedule(ctx, sc.ID); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}
	if err := s.DeleteAccount(ctx, sc.Vault); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
}

func TestEvents(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := uint64(4)
	for _, topic := range []string{"a", "b", "c"} {
		var sid *uint64
		if topic != "a" {
			sid = &id
		}
		if err := s.RecordEvent(ctx, &model.Event{Topic: topic, ScheduleID: sid}); err != nil {
			t.Fatal(err)
		}
	}
	evts, _ := s.GetEvents(ctx, id)
	if len(evts) != 2 {
		t.Fatalf("GetEvents = %d, want 2", len(evts))
	}
	after, _ := s.ListEvents(ctx, 1, 10)
	if len(after) != 2 || after[0].ID != 2 {
		t.Fatalf("ListEvents after 1 = %+v", after)
	}
}
