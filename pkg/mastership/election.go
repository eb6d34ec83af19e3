// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package mastership provides master election over a lease-based
// coordination store. Each participant registers a candidacy entry under a
// shared election directory; the live entry with the smallest store-assigned
// sequence key holds mastership. Failover is automatic: when the master's
// entry is withdrawn or its lease expires, the next-lowest entry wins.
package mastership

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mastership/go-sdk/pkg/notify"
	"github.com/mastership/go-sdk/pkg/store"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of an election participant.
type State string

const (
	// StateIdle indicates the participant is not competing.
	StateIdle State = "idle"

	// StateElecting indicates the participant's candidacy entry exists and
	// the directory is being observed to determine mastership.
	StateElecting State = "electing"

	// StateMaster indicates the participant's entry currently holds the
	// smallest sequence key in the directory.
	StateMaster State = "master"

	// StateStopping indicates withdrawal is in progress.
	StateStopping State = "stopping"
)

// Election is a single participant's handle on a master election.
//
// A stopped election may be started again; prior mastership grants no
// priority on rejoin.
type Election interface {
	// Directory returns the election directory path.
	Directory() string

	// OwnerID returns this participant's owner identifier.
	OwnerID() string

	// Start begins competing for mastership. It creates the candidacy entry
	// and starts observing the directory, returning once candidacy is
	// established. Returns ErrAlreadyStarted if the election is already
	// running.
	Start(ctx context.Context) error

	// Stop withdraws from the election. Once Stop returns, IsMaster reports
	// false, no further mastership notifications fire, and any outstanding
	// WaitToBecomeMaster calls have been released with ErrStopped. Returns
	// ErrWithdrawTimeout if the store did not confirm withdrawal in time;
	// local state is reset regardless and the store-side entry expires with
	// its lease. Returns ErrNotStarted if the election is not running.
	Stop(ctx context.Context) error

	// IsMaster returns whether this participant currently holds mastership,
	// as of the last applied directory view.
	IsMaster() bool

	// WaitToBecomeMaster blocks until this participant acquires mastership,
	// returning immediately if it already holds it. Returns ErrStopped if
	// the election is stopped while waiting and ErrNotStarted if it is not
	// running.
	WaitToBecomeMaster(ctx context.Context) error

	// State returns the current lifecycle state.
	State() State

	// Leader returns the owner identifier of the current master, if the
	// last applied view designates one.
	Leader() (string, bool)

	// Candidates returns the owner identifiers of all live candidates in
	// sequence-key order.
	Candidates() []string

	// Watch streams mastership changes to the given channel until the
	// context is cancelled, after which the channel is closed.
	Watch(ctx context.Context, ch chan<- Event) error
}

// Term is a snapshot of the election directory's leadership.
type Term struct {
	// Leader is the owner identifier of the current master, if any.
	Leader string

	// Candidates lists the owner identifiers of all live candidates in
	// sequence-key order.
	Candidates []string
}

// EventType is the type of an election event
type EventType string

const (
	// EventChange indicates the election term changed
	EventChange EventType = "change"
)

// Event is an election event
type Event struct {
	// Type is the type of the event
	Type EventType

	// Term is the term that occurs as a result of the election event
	Term Term
}

// New creates a new election bound to the given directory. Participants
// sharing a directory compete for the same mastership.
func New(s store.Store, directory string, opts ...Option) Election {
	var options Options
	options.apply(opts...)
	if !strings.HasSuffix(directory, "/") {
		directory += "/"
	}
	return &election{
		store:   s,
		dir:     directory,
		options: options,
		logger:  options.Logger.With().Str("directory", directory).Str("owner", options.OwnerID).Logger(),
		state:   StateIdle,
	}
}

type election struct {
	store   store.Store
	dir     string
	options Options
	logger  zerolog.Logger

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex

	mu     sync.RWMutex
	state  State
	term   Term
	signal *notify.Notification

	proposal    *proposal
	cancel      context.CancelFunc
	done        chan struct{}
	reproposing bool
	reproposed  chan struct{}

	watchersMu sync.Mutex
	watchers   map[*subscriber]struct{}
}

type subscriber struct {
	ctx context.Context
	ch  chan<- Event
}

func (e *election) Directory() string {
	return e.dir
}

func (e *election) OwnerID() string {
	return e.options.OwnerID
}

func (e *election) Start(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.state = StateElecting
	e.signal = notify.New()
	e.mu.Unlock()

	p := newProposal(e.store, e.dir, e.options)
	if _, err := p.propose(ctx); err != nil {
		e.mu.Lock()
		e.state = StateIdle
		signal := e.signal
		e.mu.Unlock()
		signal.Notify()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.proposal = p
	e.cancel = cancel
	e.done = make(chan struct{})
	e.reproposing = false
	e.reproposed = make(chan struct{}, 1)

	updates := make(chan store.View)
	go newObserver(e.store, e.dir, e.options).run(runCtx, updates)
	go e.run(runCtx, updates)

	e.logger.Info().Msg("Joined election")
	return nil
}

func (e *election) Stop(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	if e.state == StateIdle {
		e.mu.Unlock()
		return ErrNotStarted
	}
	e.state = StateStopping
	signal := e.signal
	e.mu.Unlock()
	signal.Notify()

	// Halt the dispatch loop and observer before withdrawing so no further
	// transitions can race the teardown.
	e.cancel()
	<-e.done

	wctx, cancel := context.WithTimeout(ctx, e.options.WithdrawTimeout)
	defer cancel()
	err := e.proposal.withdraw(wctx)

	e.mu.Lock()
	e.state = StateIdle
	e.term = Term{}
	e.mu.Unlock()

	e.logger.Info().Msg("Left election")
	return err
}

func (e *election) IsMaster() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state == StateMaster
}

func (e *election) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *election) Leader() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.term.Leader, e.term.Leader != ""
}

func (e *election) Candidates() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	candidates := make([]string, len(e.term.Candidates))
	copy(candidates, e.term.Candidates)
	return candidates
}

func (e *election) WaitToBecomeMaster(ctx context.Context) error {
	waited := false
	for {
		e.mu.RLock()
		state := e.state
		signal := e.signal
		e.mu.RUnlock()

		switch state {
		case StateMaster:
			return nil
		case StateStopping:
			return ErrStopped
		case StateIdle:
			if waited {
				return ErrStopped
			}
			return ErrNotStarted
		}

		if err := signal.Wait(ctx); err != nil {
			return err
		}
		waited = true
	}
}

func (e *election) Watch(ctx context.Context, ch chan<- Event) error {
	s := &subscriber{
		ctx: ctx,
		ch:  ch,
	}
	e.watchersMu.Lock()
	if e.watchers == nil {
		e.watchers = make(map[*subscriber]struct{})
	}
	e.watchers[s] = struct{}{}
	e.watchersMu.Unlock()

	go func() {
		<-ctx.Done()
		e.watchersMu.Lock()
		delete(e.watchers, s)
		e.watchersMu.Unlock()
		close(ch)
	}()
	return nil
}

// run is the dispatch loop: all state transitions for this election happen
// here, serializing view updates, keepalive ticks, and re-proposals.
func (e *election) run(ctx context.Context, updates <-chan store.View) {
	defer close(e.done)
	keepalive := time.NewTicker(e.options.KeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case view, ok := <-updates:
			if !ok {
				return
			}
			e.apply(ctx, &view)
		case <-e.reproposed:
			e.reproposing = false
		case <-keepalive.C:
			if e.proposal.current() == nil {
				e.repropose(ctx)
			} else {
				e.proposal.refresh(ctx)
			}
		}
	}
}

// apply consumes a directory view and derives this participant's mastership:
// lowest live sequence key wins.
func (e *election) apply(ctx context.Context, view *store.View) {
	var term Term
	for _, entry := range view.Entries {
		term.Candidates = append(term.Candidates, entry.Value)
	}
	first, ok := view.First()
	if ok {
		term.Leader = first.Value
	}

	entry := e.proposal.current()
	if entry == nil {
		e.transition(StateElecting, term)
		return
	}
	if _, ok := view.Find(entry.Path); !ok {
		if view.Revision < entry.Seq {
			// The view predates our candidacy entry.
			e.transition(StateElecting, term)
			return
		}
		// The entry vanished without a local withdrawal: the lease expired,
		// e.g. behind a stalled keepalive. Mastership is not retained; a
		// fresh entry with a fresh sequence key re-establishes candidacy.
		e.logger.Warn().Msg("Candidacy entry lost; re-proposing")
		e.repropose(ctx)
		e.transition(StateElecting, term)
		return
	}

	if first.Path == entry.Path {
		e.transition(StateMaster, term)
	} else {
		e.transition(StateElecting, term)
	}
}

// repropose creates a replacement candidacy entry off the dispatch loop.
// Only one re-proposal runs at a time.
func (e *election) repropose(ctx context.Context) {
	if e.reproposing {
		return
	}
	e.reproposing = true
	go func() {
		defer func() {
			select {
			case e.reproposed <- struct{}{}:
			default:
			}
		}()
		entry, err := e.proposal.propose(ctx)
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Error().Err(err).Msg("Failed to re-propose candidacy")
			}
			return
		}
		if ctx.Err() != nil {
			// Lost a race with Stop: release the fresh entry rather than
			// leave it to expire with its lease.
			dctx, cancel := context.WithTimeout(context.Background(), e.options.WithdrawTimeout)
			defer cancel()
			_ = e.store.Delete(dctx, entry.Path)
		}
	}()
}

// transition moves the state machine and publishes the resulting term.
// Transitions are ignored once a stop is in progress.
func (e *election) transition(state State, term Term) {
	e.mu.Lock()
	if e.state == StateIdle || e.state == StateStopping {
		e.mu.Unlock()
		return
	}
	prev := e.state
	changed := prev != state
	termChanged := !termsEqual(e.term, term)
	e.term = term
	var signal *notify.Notification
	if changed {
		e.state = state
		signal = e.signal
		e.signal = notify.New()
	}
	e.mu.Unlock()

	if changed {
		signal.Notify()
		if state == StateMaster {
			e.logger.Info().Msg("Acquired mastership")
		} else if prev == StateMaster {
			e.logger.Info().Str("master", term.Leader).Msg("Lost mastership")
		}
	}
	if changed || termChanged {
		e.publish(Event{
			Type: EventChange,
			Term: term,
		})
	}
}

func (e *election) publish(event Event) {
	e.watchersMu.Lock()
	defer e.watchersMu.Unlock()
	for s := range e.watchers {
		select {
		case s.ch <- event:
		case <-s.ctx.Done():
		}
	}
}

func termsEqual(a, b Term) bool {
	if a.Leader != b.Leader || len(a.Candidates) != len(b.Candidates) {
		return false
	}
	for i := range a.Candidates {
		if a.Candidates[i] != b.Candidates[i] {
			return false
		}
	}
	return true
}
