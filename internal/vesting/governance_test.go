package vesting

import (
	"errors"
	"testing"

	"github.com/alfredjeanlab/vesting/internal/events"
	"github.com/alfredjeanlab/vesting/internal/model"
)

func TestCreateSchedule(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.hubParams(1000, t0, t0, t0+100))

	if s.ID != 0 || s.AmountTransferred != 0 {
		t.Errorf("schedule = %+v", s)
	}
	wantAddr, _, _ := f.eng.Deriver().Schedule(0)
	wantVault, _, _ := f.eng.Deriver().Vault(0)
	if !s.Address.Equals(wantAddr) || !s.Vault.Equals(wantVault) {
		t.Errorf("addresses = %s/%s, want %s/%s", s.Address, s.Vault, wantAddr, wantVault)
	}
	if !s.Depositor.Equals(f.admin) {
		t.Errorf("depositor = %s, want admin", s.Depositor)
	}

	vault, err := f.eng.Account(f.ctx, s.Vault)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if vault.Amount != 1000 || !vault.Owner.Equals(s.Address) || !vault.Mint.Equals(f.mint) {
		t.Errorf("vault = %+v", vault)
	}
	if got := f.balance(t, f.depositor); got != initialDeposit-1000 {
		t.Errorf("depositor = %d, want %d", got, initialDeposit-1000)
	}

	cfg, _ := f.eng.Config(f.ctx)
	if cfg.TotalSchedules != 1 {
		t.Errorf("TotalSchedules = %d, want 1", cfg.TotalSchedules)
	}

	evs, err := f.eng.Events(f.ctx, s.ID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(evs) != 1 || evs[0].Topic != events.TopicScheduleCreated || evs[0].Actor != f.admin.String() {
		t.Errorf("events = %+v", evs)
	}
}

func TestCreateSchedule_SequentialID(t *testing.T) {
	f := newFixture(t)
	f.create(t, f.hubParams(10, t0, t0, t0+10))
	f.create(t, f.hubParams(10, t0, t0, t0+10))

	for _, id := range []uint64{0, 1, 3, 1 << 40} {
		_, err := f.eng.CreateSchedule(f.ctx, f.admin, id, f.hubParams(10, t0, t0, t0+10))
		if !errors.Is(err, model.ErrScheduleIDConflict) {
			t.Errorf("id %d: err = %v, want ErrScheduleIDConflict", id, err)
		}
	}
	cfg, _ := f.eng.Config(f.ctx)
	if cfg.TotalSchedules != 2 {
		t.Errorf("TotalSchedules = %d, want 2", cfg.TotalSchedules)
	}
	if _, err := f.eng.CreateSchedule(f.ctx, f.admin, 2, f.hubParams(10, t0, t0, t0+10)); err != nil {
		t.Errorf("id 2: %v", err)
	}
}

func TestCreateSchedule_Rejections(t *testing.T) {
	f := newFixture(t)
	otherMint := key()
	otherAcct := key()
	if _, err := f.eng.OpenAccount(f.ctx, f.admin, otherAcct, otherMint, f.admin, 100); err != nil {
		t.Fatalf("OpenAccount: %v", err)
	}
	strangerAcct := key()
	if _, err := f.eng.OpenAccount(f.ctx, f.admin, strangerAcct, f.mint, key(), 100); err != nil {
		t.Fatalf("OpenAccount: %v", err)
	}

	for _, tc := range []struct {
		name   string
		caller bool // true = admin
		mutate func(p *model.ScheduleParams)
		want   error
	}{
		{"not admin", false, func(p *model.ScheduleParams) {}, model.ErrUnauthorized},
		{"zero amount", true, func(p *model.ScheduleParams) { p.TotalAmount = 0 }, model.ErrInvalidAmount},
		{"cliff after start", true, func(p *model.ScheduleParams) { p.CliffTimestamp = p.VestingStartTimestamp + 1 }, model.ErrInvalidTimestamps},
		{"start after end", true, func(p *model.ScheduleParams) { p.VestingStartTimestamp = p.VestingEndTimestamp + 1 }, model.ErrInvalidTimestamps},
		{"bad category", true, func(p *model.ScheduleParams) { p.SourceCategory = "airdrop" }, model.ErrInvalidSourceCategory},
		{"missing depositor account", true, func(p *model.ScheduleParams) { p.DepositorAccount = key() }, model.ErrAccountNotFound},
		{"depositor not admin's", true, func(p *model.ScheduleParams) { p.DepositorAccount = strangerAcct }, model.ErrUnauthorized},
		{"depositor wrong mint", true, func(p *model.ScheduleParams) { p.DepositorAccount = otherAcct }, model.ErrMintMismatch},
		{"insufficient funds", true, func(p *model.ScheduleParams) { p.TotalAmount = initialDeposit + 1 }, model.ErrInsufficientFunds},
		{"beneficiary account wrong owner", true, func(p *model.ScheduleParams) {
			p.Routing = model.RoutingBeneficiary
			p.Beneficiary = key()
			p.BeneficiaryAccount = strangerAcct
		}, model.ErrRecipientAccountMismatch},
		{"beneficiary account wrong mint", true, func(p *model.ScheduleParams) {
			p.Routing = model.RoutingBeneficiary
			p.Beneficiary = f.admin
			p.BeneficiaryAccount = otherAcct
		}, model.ErrRecipientAccountMintMismatch},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := f.hubParams(1000, t0, t0+10, t0+100)
			tc.mutate(&p)
			caller := key()
			if tc.caller {
				caller = f.admin
			}
			_, err := f.eng.CreateSchedule(f.ctx, caller, 0, p)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			cfg, _ := f.eng.Config(f.ctx)
			if cfg.TotalSchedules != 0 {
				t.Errorf("TotalSchedules = %d after rejection", cfg.TotalSchedules)
			}
			if got := f.balance(t, f.depositor); got != initialDeposit {
				t.Errorf("depositor = %d after rejection", got)
			}
		})
	}
}

func TestCreateSchedule_InstantUnlockAllowed(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, f.hubParams(700, t0, t0, t0))
	got, err := TransferableNow(s, t0)
	if err != nil {
		t.Fatalf("TransferableNow: %v", err)
	}
	if got != 700 {
		t.Errorf("transferable = %d, want 700", got)
	}
}
