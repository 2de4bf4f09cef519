package live

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kbd172102/trading-dashboard/broker"
	"github.com/kbd172102/trading-dashboard/engine"
	"github.com/kbd172102/trading-dashboard/journal"
	"github.com/kbd172102/trading-dashboard/ledger"
	"github.com/kbd172102/trading-dashboard/market"
	"github.com/kbd172102/trading-dashboard/strategy"
)

const (
	defaultQueueSize     = 5000
	defaultCandleLockTTL = 15 * time.Minute
	defaultOrderLockTTL  = 2 * time.Minute
)

// Config wires one account/instrument pair to its live pipeline.
type Config struct {
	AccountID    string
	StartingCash float64
	Strategy     strategy.Params

	Timezone *time.Location // bar boundaries; nil means UTC

	QueueSize     int
	CandleLockTTL time.Duration
	OrderLockTTL  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Timezone == nil {
		c.Timezone = time.UTC
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.CandleLockTTL <= 0 {
		c.CandleLockTTL = defaultCandleLockTTL
	}
	if c.OrderLockTTL <= 0 {
		c.OrderLockTTL = defaultOrderLockTTL
	}
}

// dedupPlacer guards order placement with the per-account order lock.
// The lock is released after the attempt regardless of outcome; the
// TTL only bounds damage if the process dies mid-placement.
type dedupPlacer struct {
	inner broker.OrderPlacer
	locks Locker
	key   string
	ttl   time.Duration
}

func (d *dedupPlacer) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	if !d.locks.TryAcquire(d.key, d.ttl) {
		return broker.OrderResult{}, ErrOrderInFlight
	}
	defer d.locks.Release(d.key)
	return d.inner.PlaceOrder(ctx, req)
}

// Orchestrator runs the live pipeline for one instrument: a tick feed
// fanned out to a persistence worker and a single bar/strategy worker.
// Only the bar worker touches the aggregator and the engine, so their
// state needs no locking.
type Orchestrator struct {
	cfg    Config
	feed   TickSource
	jour   journal.Journal
	bars   journal.BarReader // optional warm-up source
	locks  Locker
	engine *engine.Engine
	agg    *market.Aggregator

	dbq    chan market.Tick
	stratq chan market.Tick

	mu          sync.Mutex
	dbDropped   int
	barDropped  int
	barsHandled int
}

// New builds the orchestrator. placer is the real venue placer; it is
// wrapped with the order-dedup lock before the engine sees it. margin
// may be nil to size from configured params.
func New(cfg Config, feed TickSource, jour journal.Journal, bars journal.BarReader,
	locks Locker, placer broker.OrderPlacer, margin engine.MarginQuoter) (*Orchestrator, error) {
	cfg.applyDefaults()
	if err := cfg.Strategy.Validate(); err != nil {
		return nil, fmt.Errorf("live: %w", err)
	}
	if feed == nil || jour == nil || locks == nil || placer == nil {
		return nil, fmt.Errorf("live: feed, journal, locks and placer are required")
	}

	guarded := &dedupPlacer{
		inner: placer,
		locks: locks,
		key:   OrderLockKey(cfg.AccountID, cfg.Strategy.Instrument),
		ttl:   cfg.OrderLockTTL,
	}
	eng := engine.New(cfg.Strategy, cfg.StartingCash, guarded, margin, jour)
	agg := market.NewAggregator(time.Duration(cfg.Strategy.BarMinutes)*time.Minute, cfg.Timezone)

	return &Orchestrator{
		cfg:    cfg,
		feed:   feed,
		jour:   jour,
		bars:   bars,
		locks:  locks,
		engine: eng,
		agg:    agg,
		dbq:    make(chan market.Tick, cfg.QueueSize),
		stratq: make(chan market.Tick, cfg.QueueSize),
	}, nil
}

// Engine exposes the strategy engine for inspection; callers must not
// mutate it while Run is active.
func (o *Orchestrator) Engine() *engine.Engine { return o.engine }

// Dropped reports ticks discarded because a queue was full.
func (o *Orchestrator) Dropped() (db, strategy int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dbDropped, o.barDropped
}

// Run backfills indicators from the journal, then streams ticks until
// ctx is cancelled. It returns once all workers have drained.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.backfill()

	ticks := make(chan market.Tick, o.cfg.QueueSize)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := o.feed.Stream(ctx, ticks); err != nil && ctx.Err() == nil {
			log.Printf("[WARN] live %s: feed stopped: %v", o.cfg.AccountID, err)
		}
		cancel()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.fanout(ctx, ticks)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.persistLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.strategyLoop(ctx)
	}()

	wg.Wait()
	return ctx.Err()
}

// backfill primes indicators from recently persisted bars so the
// engine does not spend its first hours warming up after a restart.
// Priming never trades; it only advances indicator state.
func (o *Orchestrator) backfill() {
	if o.bars == nil {
		return
	}
	want := o.cfg.Strategy.Warmup()
	hist, err := o.bars.RecentBars(o.cfg.Strategy.Instrument, want)
	if err != nil {
		log.Printf("[WARN] live %s: warm-up backfill failed: %v", o.cfg.AccountID, err)
		return
	}
	for _, b := range hist {
		o.engine.Prime(b)
	}
	if len(hist) > 0 {
		log.Printf("[INFO] live %s: primed %d bars from journal (warm=%v)",
			o.cfg.AccountID, len(hist), o.engine.Warm())
	}
}

// fanout copies each tick onto both work queues. A full queue drops
// the tick for that consumer rather than stalling the feed.
func (o *Orchestrator) fanout(ctx context.Context, in <-chan market.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, open := <-in:
			if !open {
				return
			}
			select {
			case o.dbq <- t:
			default:
				o.noteDrop(&o.dbDropped, "persistence")
			}
			select {
			case o.stratq <- t:
			default:
				o.noteDrop(&o.barDropped, "strategy")
			}
		}
	}
}

func (o *Orchestrator) noteDrop(counter *int, queue string) {
	o.mu.Lock()
	*counter++
	n := *counter
	o.mu.Unlock()
	if n == 1 || n%1000 == 0 {
		log.Printf("[WARN] live %s: %s queue full, %d ticks dropped", o.cfg.AccountID, queue, n)
	}
}

// persistLoop writes each tick's enclosing bar state cheaply by
// recording closed bars only; raw ticks are not persisted. It keeps a
// shadow aggregator so the strategy worker stays the sole owner of the
// trading aggregator.
func (o *Orchestrator) persistLoop(ctx context.Context) {
	shadow := market.NewAggregator(time.Duration(o.cfg.Strategy.BarMinutes)*time.Minute, o.cfg.Timezone)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-o.dbq:
			if bar, ok := shadow.Ingest(t); ok {
				if err := o.jour.RecordBar(o.cfg.Strategy.Instrument, bar); err != nil {
					log.Printf("[WARN] live %s: persisting bar %s failed: %v",
						o.cfg.AccountID, bar.Start.Format(time.RFC3339), err)
				}
			}
		}
	}
}

// strategyLoop is the single writer for the aggregator, the engine and
// the ledger. Ticks first run stop checks against the open position,
// then feed the aggregator; a closed bar runs the full decision pass.
func (o *Orchestrator) strategyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-o.stratq:
			if events, err := o.engine.OnTick(ctx, t.Price, t.Time); err != nil {
				log.Printf("[WARN] live %s: tick stop check: %v", o.cfg.AccountID, err)
			} else {
				o.logEvents(events)
			}
			if bar, ok := o.agg.Ingest(t); ok {
				o.handleClosedBar(ctx, bar)
			}
		}
	}
}

func (o *Orchestrator) handleClosedBar(ctx context.Context, bar market.Bar) {
	key := CandleLockKey(o.cfg.Strategy.Instrument, bar.Start)
	if !o.locks.TryAcquire(key, o.cfg.CandleLockTTL) {
		log.Printf("[INFO] live %s: bar %s already handled elsewhere, skipping",
			o.cfg.AccountID, bar.Start.Format(time.RFC3339))
		return
	}
	// Held until TTL expiry so a second instance cannot re-decide the
	// same bar even after this one finishes.

	o.mu.Lock()
	o.barsHandled++
	o.mu.Unlock()

	// The live path cannot see the future, so the period boundary is
	// approximated by the calendar: any bar on the month's last day
	// counts as period end.
	periodEnd := market.LastDayOfMonth(bar.Start)

	events, err := o.engine.OnBar(ctx, bar, periodEnd)
	if err != nil {
		log.Printf("[WARN] live %s: bar %s decision: %v",
			o.cfg.AccountID, bar.Start.Format(time.RFC3339), err)
	}
	o.logEvents(events)
}

func (o *Orchestrator) logEvents(events []ledger.TradeEvent) {
	for _, ev := range events {
		log.Printf("[INFO] live %s: %s %s %.2f x%d (%s) pnl=%.2f cash=%.2f",
			o.cfg.AccountID, ev.Kind, ev.Side, ev.Price, ev.Lots, ev.Reason,
			ev.RealizedPnL, ev.AvailableCash)
	}
}
