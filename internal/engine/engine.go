package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"swap_go/internal/dex"
	"swap_go/internal/domain"
	"swap_go/internal/event"
	"swap_go/internal/infra"
)

var (
	ErrEngineStopped = errors.New("engine stopped")
	ErrOrderNotFound = errors.New("order not found")
)

// Listener receives order events. Invoked synchronously from the engine
// loop, in registration order; implementations must not block.
type Listener func(ev event.OrderEvent)

// Journal receives every appended event for audit purposes. Journal
// failures are logged, never propagated into order processing.
type Journal interface {
	Append(ctx context.Context, ev event.OrderEvent) error
}

// Scheduler defers a function call, used for retry backoff. Injectable
// so tests can simulate time instead of waiting on real delays.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, fn func()) { time.AfterFunc(d, fn) }

// Config holds the dispatcher and retry policy knobs.
type Config struct {
	MaxConcurrent int           // admission cap C
	MaxAttempts   int           // retries before terminal failed
	BaseDelay     time.Duration // backoff base
	MaxDelay      time.Duration // backoff cap
	InboxSize     int
}

// Engine is the order-processing core: a FIFO admission queue under a
// fixed concurrency cap, a per-order event log with replay, live
// subscriptions and exponential-backoff retries.
//
// All shared state lives behind a single command loop goroutine, so
// the registry, logs, subscriber sets and queue need no locks. Lifecycle
// drivers run concurrently but touch state only through inbox commands.
type Engine struct {
	cfg     Config
	router  dex.Router
	journal Journal
	sched   Scheduler

	inbox chan command
	done  chan struct{}

	// Loop-owned state. Never touched outside Run's goroutine.
	registry  map[string]*domain.Order
	logs      map[string][]event.OrderEvent
	subs      map[string][]subscriber
	queue     []*domain.Order
	active    int
	nextSubID uint64
}

type subscriber struct {
	id uint64
	fn Listener
}

type command interface{}

type submitCmd struct {
	order *domain.Order
	resp  chan string
}

type subscribeCmd struct {
	orderID string
	fn      Listener
	resp    chan func()
}

type unsubscribeCmd struct {
	orderID string
	subID   uint64
}

type transitionCmd struct {
	orderID string
	status  domain.OrderStatus
	payload any
}

type attemptDoneCmd struct {
	order *domain.Order
	err   error
}

type requeueCmd struct {
	order *domain.Order
}

type lookupCmd struct {
	orderID string
	resp    chan lookupResult
}

type lookupResult struct {
	order  domain.Order
	events []event.OrderEvent
	found  bool
}

// New creates an engine. journal may be nil (no audit log); sched may
// be nil (real timers).
func New(cfg Config, router dex.Router, journal Journal, sched Scheduler) *Engine {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = infra.DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = infra.DefaultMaxDelay
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 1024
	}
	if sched == nil {
		sched = realScheduler{}
	}

	return &Engine{
		cfg:      cfg,
		router:   router,
		journal:  journal,
		sched:    sched,
		inbox:    make(chan command, cfg.InboxSize),
		done:     make(chan struct{}),
		registry: make(map[string]*domain.Order),
		logs:     make(map[string][]event.OrderEvent),
		subs:     make(map[string][]subscriber),
	}
}

// Run starts the command loop. MUST be run in a single goroutine.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("Engine started",
		slog.Int("max_concurrent", e.cfg.MaxConcurrent),
		slog.Int("max_attempts", e.cfg.MaxAttempts))

	defer close(e.done)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Engine stopping...")
			return
		case cmd := <-e.inbox:
			e.handle(ctx, cmd)
		}
	}
}

// Submit accepts an order for asynchronous processing. The order is
// registered as pending and queued; the call returns its id as soon as
// the engine has taken ownership.
func (e *Engine) Submit(ctx context.Context, order *domain.Order) (string, error) {
	resp := make(chan string, 1)
	if err := e.send(ctx, submitCmd{order: order, resp: resp}); err != nil {
		return "", err
	}
	select {
	case id := <-resp:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-e.done:
		return "", ErrEngineStopped
	}
}

// Subscribe replays the order's full event history to fn, then registers
// it for live events. An unknown order id replays nothing but still
// registers, since a subscriber may race ahead of submission. The
// returned unsubscribe func is idempotent.
func (e *Engine) Subscribe(ctx context.Context, orderID string, fn Listener) (func(), error) {
	resp := make(chan func(), 1)
	if err := e.send(ctx, subscribeCmd{orderID: orderID, fn: fn, resp: resp}); err != nil {
		return nil, err
	}
	select {
	case unsub := <-resp:
		return unsub, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, ErrEngineStopped
	}
}

// Order returns a snapshot of the order's current state.
func (e *Engine) Order(ctx context.Context, orderID string) (domain.Order, error) {
	res, err := e.lookup(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return res.order, nil
}

// History returns a copy of the order's event log, in append order.
func (e *Engine) History(ctx context.Context, orderID string) ([]event.OrderEvent, error) {
	res, err := e.lookup(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return res.events, nil
}

func (e *Engine) lookup(ctx context.Context, orderID string) (lookupResult, error) {
	resp := make(chan lookupResult, 1)
	if err := e.send(ctx, lookupCmd{orderID: orderID, resp: resp}); err != nil {
		return lookupResult{}, err
	}
	select {
	case res := <-resp:
		if !res.found {
			return lookupResult{}, ErrOrderNotFound
		}
		return res, nil
	case <-ctx.Done():
		return lookupResult{}, ctx.Err()
	case <-e.done:
		return lookupResult{}, ErrEngineStopped
	}
}

func (e *Engine) send(ctx context.Context, cmd command) error {
	select {
	case e.inbox <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineStopped
	}
}

func (e *Engine) handle(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case submitCmd:
		e.handleSubmit(ctx, c)
	case subscribeCmd:
		e.handleSubscribe(c)
	case unsubscribeCmd:
		e.handleUnsubscribe(c)
	case transitionCmd:
		e.appendAndBroadcast(ctx, c.orderID, c.status, c.payload)
	case attemptDoneCmd:
		e.handleAttemptDone(ctx, c)
	case requeueCmd:
		e.handleRequeue(ctx, c)
	case lookupCmd:
		e.handleLookup(c)
	default:
		slog.Warn("Unknown command", slog.Any("cmd", cmd))
	}
}

func (e *Engine) handleSubmit(ctx context.Context, c submitCmd) {
	o := c.order
	e.registry[o.ID] = o

	// The pending event is recorded at acceptance, so subscribers that
	// attach while the order waits for admission still see it.
	e.appendAndBroadcast(ctx, o.ID, domain.StatusPending, nil)

	e.queue = append(e.queue, o)
	slog.Debug("Order enqueued", slog.String("order_id", o.ID), slog.Int("queue_len", len(e.queue)))
	e.admit(ctx)

	c.resp <- o.ID
}

func (e *Engine) handleSubscribe(c subscribeCmd) {
	// Replay history first, in original order, before any live event.
	for _, ev := range e.logs[c.orderID] {
		c.fn(ev)
	}

	e.nextSubID++
	id := e.nextSubID
	e.subs[c.orderID] = append(e.subs[c.orderID], subscriber{id: id, fn: c.fn})

	orderID := c.orderID
	c.resp <- func() {
		select {
		case e.inbox <- unsubscribeCmd{orderID: orderID, subID: id}:
		case <-e.done:
		}
	}
}

func (e *Engine) handleUnsubscribe(c unsubscribeCmd) {
	list := e.subs[c.orderID]
	for i, s := range list {
		if s.id == c.subID {
			e.subs[c.orderID] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
	// Already removed: unsubscribe is idempotent.
}

func (e *Engine) handleLookup(c lookupCmd) {
	o, ok := e.registry[c.orderID]
	if !ok {
		c.resp <- lookupResult{}
		return
	}

	events := make([]event.OrderEvent, len(e.logs[c.orderID]))
	copy(events, e.logs[c.orderID])
	c.resp <- lookupResult{order: *o, events: events, found: true}
}

// admit drains the queue head into active processing while capacity
// allows. This is the sole entry point that starts lifecycles, so no
// more than MaxConcurrent run at once and FIFO order is preserved.
func (e *Engine) admit(ctx context.Context) {
	for e.active < e.cfg.MaxConcurrent && len(e.queue) > 0 {
		o := e.queue[0]
		e.queue = e.queue[1:]
		e.active++
		slog.Debug("Order admitted",
			slog.String("order_id", o.ID),
			slog.Int("attempt", o.Attempts),
			slog.Int("active", e.active))
		go e.runLifecycle(ctx, o)
	}
}

// runLifecycle drives one processing attempt outside the loop goroutine
// and reports back through the inbox.
func (e *Engine) runLifecycle(ctx context.Context, o *domain.Order) {
	err := e.drive(ctx, o)
	if sendErr := e.send(ctx, attemptDoneCmd{order: o, err: err}); sendErr != nil {
		slog.Warn("Attempt result dropped on shutdown", slog.String("order_id", o.ID))
	}
}

// drive runs the success path for one attempt: route, build, submit,
// confirm. Any provider error aborts the attempt; the retry decision is
// made by the loop.
func (e *Engine) drive(ctx context.Context, o *domain.Order) error {
	if err := e.send(ctx, transitionCmd{orderID: o.ID, status: domain.StatusRouting}); err != nil {
		return err
	}

	best, err := e.bestQuote(ctx, o)
	if err != nil {
		return err
	}

	if err := e.send(ctx, transitionCmd{
		orderID: o.ID,
		status:  domain.StatusBuilding,
		payload: event.BuildingPayload{Dex: best.Dex, Price: best.Price},
	}); err != nil {
		return err
	}
	if err := e.send(ctx, transitionCmd{orderID: o.ID, status: domain.StatusSubmitted}); err != nil {
		return err
	}

	res, err := e.router.Execute(ctx, best.Dex, best.Price)
	if err != nil {
		return err
	}

	return e.send(ctx, transitionCmd{
		orderID: o.ID,
		status:  domain.StatusConfirmed,
		payload: event.ConfirmedPayload{Dex: best.Dex, TxHash: res.TxHash, ExecutedPrice: res.ExecutedPrice},
	})
}

// bestQuote queries every venue concurrently and picks the lowest price.
// Venues are compared in priority order and replaced only on a strictly
// lower price, so the earlier venue wins ties. A failure from any venue
// fails the whole routing step.
func (e *Engine) bestQuote(ctx context.Context, o *domain.Order) (dex.Quote, error) {
	venues := e.router.Venues()
	if len(venues) == 0 {
		return dex.Quote{}, fmt.Errorf("router has no venues")
	}

	quotes := make([]dex.Quote, len(venues))
	errs := make([]error, len(venues))

	var wg sync.WaitGroup
	for i, v := range venues {
		wg.Add(1)
		go func(i int, venue string) {
			defer wg.Done()
			quotes[i], errs[i] = e.router.Quote(ctx, venue, o.TokenIn, o.TokenOut, o.Amount)
		}(i, v)
	}
	wg.Wait()

	best := dex.Quote{}
	for i := range venues {
		if errs[i] != nil {
			return dex.Quote{}, fmt.Errorf("quote %s: %w", venues[i], errs[i])
		}
		if i == 0 || quotes[i].Price.LessThan(best.Price) {
			best = quotes[i]
		}
	}
	return best, nil
}

func (e *Engine) handleAttemptDone(ctx context.Context, c attemptDoneCmd) {
	o := c.order

	if c.err != nil {
		e.scheduleRetryOrFail(ctx, o, c.err)
	}

	// Release the slot before draining: a retried order waits out its
	// backoff without holding capacity.
	e.active--
	e.admit(ctx)
}

func (e *Engine) scheduleRetryOrFail(ctx context.Context, o *domain.Order, cause error) {
	if o.Attempts < e.cfg.MaxAttempts {
		delay := infra.CalculateBackoff(o.Attempts, e.cfg.BaseDelay, e.cfg.MaxDelay)
		retry := o.Retry()
		slog.Info("Order attempt failed, retry scheduled",
			slog.String("order_id", o.ID),
			slog.Int("attempt", o.Attempts),
			slog.Duration("delay", delay),
			slog.Any("error", cause))

		e.sched.AfterFunc(delay, func() {
			select {
			case e.inbox <- requeueCmd{order: retry}:
			case <-e.done:
			}
		})
		return
	}

	slog.Warn("Order failed terminally",
		slog.String("order_id", o.ID),
		slog.Int("attempts", o.Attempts),
		slog.Any("error", cause))

	e.appendAndBroadcast(ctx, o.ID, domain.StatusFailed, event.FailedPayload{
		Error:    "Max retry attempts reached",
		Attempts: o.Attempts,
	})
}

func (e *Engine) handleRequeue(ctx context.Context, c requeueCmd) {
	o := c.order
	if canonical, ok := e.registry[o.ID]; ok {
		canonical.Attempts = o.Attempts
	}

	// Retries re-enter at the tail so fresh orders are not starved.
	e.queue = append(e.queue, o)
	e.admit(ctx)
}

// appendAndBroadcast appends an event, updates the registry's cached
// status and notifies subscribers, all within the loop goroutine so no
// other transition for the same order can interleave.
//
// Transitions are forward-only: a status at or below the cached one is
// dropped, so a retry attempt never re-emits what an earlier attempt
// already recorded and every log stays a prefix of the success path.
func (e *Engine) appendAndBroadcast(ctx context.Context, orderID string, status domain.OrderStatus, payload any) {
	o, ok := e.registry[orderID]
	if !ok {
		return
	}
	if o.Status.IsTerminal() {
		return
	}
	if len(e.logs[orderID]) > 0 && status.Rank() <= o.Status.Rank() {
		return
	}

	ev := event.OrderEvent{
		OrderID: orderID,
		Status:  status,
		Payload: payload,
		TsUnixM: time.Now().UnixMicro(),
	}
	e.logs[orderID] = append(e.logs[orderID], ev)
	o.Status = status

	if e.journal != nil {
		if err := e.journal.Append(ctx, ev); err != nil {
			slog.Warn("Journal append failed", slog.String("order_id", orderID), slog.Any("error", err))
		}
	}

	for _, s := range e.subs[orderID] {
		s.fn(ev)
	}
}
