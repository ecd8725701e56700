// Package keeper runs the permissionless crank on a cron schedule so that
// vested tokens move without anyone calling the crank by hand.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/vesting"
)

// listPage is how many schedules are read per listing call.
const listPage = 100

// Cranker is the engine surface the keeper drives.
type Cranker interface {
	Schedules(ctx context.Context, filter model.ScheduleFilter) ([]*model.Schedule, int, error)
	Crank(ctx context.Context, req vesting.CrankRequest) (*vesting.CrankReport, error)
}

// Config controls the keeper.
type Config struct {
	// Spec is a cron spec with optional seconds field, or a descriptor such
	// as "@every 1m".
	Spec string
	// HubAccount receives hub-routed releases. When zero, hub-routed
	// schedules are left alone.
	HubAccount solana.PublicKey
	// BatchSize caps the pairs per crank call, up to MaxSchedulesPerCrank.
	BatchSize int
	// Rate limits crank calls per second. Zero disables the limit.
	Rate float64
}

// Summary totals one keeper pass.
type Summary struct {
	Batches  int    `json:"batches"`
	Released int    `json:"released"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
	Amount   uint64 `json:"amount,string"`
	// Rejected counts batches the engine refused outright.
	Rejected int `json:"rejected"`
}

// Keeper lists due schedules and cranks them in batches per mint and
// routing.
type Keeper struct {
	src     Cranker
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
	limiter *rate.Limiter

	mu sync.Mutex
	c  *cron.Cron
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New validates cfg and returns a stopped keeper. now defaults to time.Now.
func New(src Cranker, cfg Config, now func() time.Time, logger *slog.Logger) (*Keeper, error) {
	if cfg.Spec != "" {
		if _, err := parser.Parse(cfg.Spec); err != nil {
			return nil, fmt.Errorf("invalid crank schedule %q: %w", cfg.Spec, err)
		}
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > vesting.MaxSchedulesPerCrank {
		cfg.BatchSize = vesting.MaxSchedulesPerCrank
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	k := &Keeper{src: src, cfg: cfg, now: now, logger: logger}
	if cfg.Rate > 0 {
		burst := int(cfg.Rate)
		if burst < 1 {
			burst = 1
		}
		k.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	return k, nil
}

// Start schedules RunOnce on cfg.Spec. Overlapping runs are skipped. It is a
// no-op when Spec is empty or the keeper is already running.
func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.c != nil || k.cfg.Spec == "" {
		return nil
	}
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(k.cfg.Spec, func() {
		if _, err := k.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			k.logger.Error("keeper run failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling keeper: %w", err)
	}
	c.Start()
	k.c = c
	k.logger.Info("keeper started", "schedule", k.cfg.Spec, "batch", k.cfg.BatchSize)
	return nil
}

// Stop stops scheduling and waits for a running pass to finish.
func (k *Keeper) Stop() {
	k.mu.Lock()
	c := k.c
	k.c = nil
	k.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
		k.logger.Info("keeper stopped")
	}
}

// RunOnce cranks every schedule with something transferable right now.
func (k *Keeper) RunOnce(ctx context.Context) (*Summary, error) {
	due, err := k.dueSchedules(ctx)
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	for _, b := range k.batches(due) {
		if k.limiter != nil {
			if err := k.limiter.Wait(ctx); err != nil {
				return sum, err
			}
		}
		rep, err := k.src.Crank(ctx, b)
		sum.Batches++
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.Rejected++
			k.logger.Warn("crank batch rejected", "mint", b.Mint, "hub", !b.HubAccount.IsZero(), "pairs", len(b.Pairs), "error", err)
			continue
		}
		sum.Released += rep.Released
		sum.Skipped += rep.Skipped
		sum.Failed += rep.Failed
		sum.Amount += rep.TotalReleased
	}
	if sum.Batches > 0 {
		k.logger.Info("keeper pass complete",
			"batches", sum.Batches,
			"released", sum.Released,
			"failed", sum.Failed,
			"amount", sum.Amount,
		)
	}
	return sum, nil
}

// dueSchedules lists open schedules past their cliff and keeps those with a
// positive transferable amount.
func (k *Keeper) dueSchedules(ctx context.Context) ([]*model.Schedule, error) {
	now := k.now().Unix()
	var due []*model.Schedule
	for offset := 0; ; offset += listPage {
		page, total, err := k.src.Schedules(ctx, model.ScheduleFilter{
			OpenOnly: true,
			CliffBy:  &now,
			Limit:    listPage,
			Offset:   offset,
		})
		if err != nil {
			return nil, fmt.Errorf("listing schedules: %w", err)
		}
		for _, s := range page {
			if s.Routing == model.RoutingHub && k.cfg.HubAccount.IsZero() {
				continue
			}
			amt, err := vesting.TransferableNow(s, now)
			if err != nil {
				k.logger.Warn("skipping unreadable schedule", "schedule_id", s.ID, "error", err)
				continue
			}
			if amt > 0 {
				due = append(due, s)
			}
		}
		if len(page) == 0 || offset+len(page) >= total {
			return due, nil
		}
	}
}

// batchKey separates routings so a hub account the engine rejects, for
// example after a hub rotation, only holds back hub-routed schedules.
type batchKey struct {
	mint    solana.PublicKey
	routing model.Routing
}

// batches groups schedules by mint and routing, in id order, into crank
// requests of at most BatchSize pairs. Only hub batches carry the hub
// account.
func (k *Keeper) batches(due []*model.Schedule) []vesting.CrankRequest {
	groups := make(map[batchKey][]*model.Schedule)
	var keys []batchKey
	for _, s := range due {
		bk := batchKey{mint: s.Mint, routing: s.Routing}
		if _, ok := groups[bk]; !ok {
			keys = append(keys, bk)
		}
		groups[bk] = append(groups[bk], s)
	}
	sort.Slice(keys, func(i, j int) bool {
		if mi, mj := keys[i].mint.String(), keys[j].mint.String(); mi != mj {
			return mi < mj
		}
		return keys[i].routing < keys[j].routing
	})

	var out []vesting.CrankRequest
	for _, bk := range keys {
		ss := groups[bk]
		sort.Slice(ss, func(i, j int) bool { return ss[i].ID < ss[j].ID })
		for len(ss) > 0 {
			n := min(len(ss), k.cfg.BatchSize)
			req := vesting.CrankRequest{Mint: bk.mint}
			if bk.routing == model.RoutingHub {
				req.HubAccount = k.cfg.HubAccount
			}
			for _, s := range ss[:n] {
				req.Pairs = append(req.Pairs, vesting.CrankPair{ScheduleID: s.ID, Vault: s.Vault})
			}
			out = append(out, req)
			ss = ss[n:]
		}
	}
	return out
}
