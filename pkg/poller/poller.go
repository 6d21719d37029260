// Package poller watches submissions until they reach a terminal status,
// reporting each observation through a single callback.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/tagger/pkg/durable"
)

// DefaultInterval is the delay between status queries for one submission.
const DefaultInterval = 3 * time.Second

// StatusError is the status reported when polling fails or the instance errors.
const StatusError = "error"

// Source answers status and derived-field queries for a submission.
type Source interface {
	Status(ctx context.Context, id string) (*durable.Instance, error)
	Tags(ctx context.Context, id string) (string, error)
	AltText(ctx context.Context, id string) (string, error)
}

// Snapshot is one observation of a submission. Tags and AltText are only set
// on the final complete snapshot, and then always together.
type Snapshot struct {
	FileName   string `json:"fileName"`
	Status     string `json:"status"`
	InstanceID string `json:"instanceId"`
	Stage      string `json:"stage,omitempty"`
	Tags       string `json:"tags,omitempty"`
	AltText    string `json:"altText,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Terminal reports whether no further snapshots follow for this submission.
func (s Snapshot) Terminal() bool {
	return s.Status == string(durable.StatusComplete) || s.Status == StatusError
}

// Callback receives snapshots. Calls are serialized across all submissions.
type Callback func(Snapshot)

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLogger sets the logger used for poll lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

type poll struct {
	cancel context.CancelFunc
	gen    uint64
}

// Poller owns the set of active polls, at most one per submission.
type Poller struct {
	source   Source
	callback Callback
	interval time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	polls map[string]poll
	gen   uint64

	deliver sync.Mutex
	wg      sync.WaitGroup
}

// New creates a Poller. Close must be called to release active polls.
func New(source Source, callback Callback, opts ...Option) *Poller {
	ctx, cancel := context.WithCancel(context.Background())

	p := &Poller{
		source:   source,
		callback: callback,
		interval: DefaultInterval,
		logger:   slog.New(slog.DiscardHandler),
		ctx:      ctx,
		cancel:   cancel,
		polls:    make(map[string]poll),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins polling id, replacing any poll already active for it. The
// first query is issued one interval after Start.
func (p *Poller) Start(id, fileName string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithCancel(p.ctx)
	p.gen++
	gen := p.gen

	previous, replaced := p.polls[id]
	p.polls[id] = poll{cancel: cancel, gen: gen}
	if replaced {
		previous.cancel()
	}

	p.logger.Debug("poll started", "id", id, "replaced", replaced)

	p.wg.Go(func() {
		defer p.remove(id, gen)
		p.loop(ctx, id, fileName)
	})
}

// Stop cancels the poll for id. Stopping an id with no active poll is a no-op.
func (p *Poller) Stop(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current, ok := p.polls[id]; ok {
		current.cancel()
		delete(p.polls, id)
		p.logger.Debug("poll stopped", "id", id)
	}
}

// Active reports whether a poll is running for id.
func (p *Poller) Active(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.polls[id]
	return ok
}

// Close cancels every active poll and waits for their goroutines to exit.
// No callback is delivered after Close returns.
func (p *Poller) Close() {
	p.mu.Lock()
	p.cancel()
	clear(p.polls)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Poller) remove(id string, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current, ok := p.polls[id]; ok && current.gen == gen {
		current.cancel()
		delete(p.polls, id)
	}
}

func (p *Poller) loop(ctx context.Context, id, fileName string) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, ok := p.tick(ctx, id, fileName)
			if !ok {
				return
			}
			p.emit(ctx, snap)
			if snap.Terminal() {
				return
			}
		}
	}
}

// tick returns false when the poll was cancelled mid-query, in which case
// nothing is reported.
func (p *Poller) tick(ctx context.Context, id, fileName string) (Snapshot, bool) {
	snap, err := Observe(ctx, p.source, id, fileName)
	return snap, err == nil
}

// Observe queries src once and normalizes the result into a Snapshot. Query
// failures and errored instances yield a StatusError snapshot; a complete
// instance has its tags and alt text fetched concurrently. The returned error
// is non-nil only when ctx ends during the query.
func Observe(ctx context.Context, src Source, id, fileName string) (Snapshot, error) {
	snap := Snapshot{FileName: fileName, InstanceID: id}

	inst, err := src.Status(ctx, id)
	if ctx.Err() != nil {
		return snap, ctx.Err()
	}
	if err != nil {
		return failed(snap, err.Error()), nil
	}

	snap.Stage = inst.Stage

	if inst.Status == durable.StatusError || inst.Error != "" {
		return failed(snap, inst.Error), nil
	}

	if inst.Status != durable.StatusComplete {
		snap.Status = string(inst.Status)
		return snap, nil
	}

	var tags, altText string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		altText, err = src.AltText(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		tags, err = src.Tags(gctx, id)
		return err
	})

	err = g.Wait()
	if ctx.Err() != nil {
		return snap, ctx.Err()
	}
	if err != nil {
		return failed(snap, err.Error()), nil
	}

	snap.Status = string(durable.StatusComplete)
	snap.Tags = tags
	snap.AltText = altText
	return snap, nil
}

func failed(snap Snapshot, msg string) Snapshot {
	snap.Status = StatusError
	snap.Error = msg
	return snap
}

func (p *Poller) emit(ctx context.Context, snap Snapshot) {
	p.deliver.Lock()
	defer p.deliver.Unlock()

	if ctx.Err() != nil {
		return
	}

	if snap.Status == StatusError {
		p.logger.Warn("poll failed", "id", snap.InstanceID, "error", snap.Error)
	}
	p.callback(snap)
}
