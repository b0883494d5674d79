// Package refresher keeps the published job index snapshot in step with the
// remote index blob.
//
// A cron schedule checks the blob's version and rebuilds when it changed.
// Admin reloads and reload commands from other replicas force a rebuild.
// All triggers share one in-flight cycle, so at most one rebuild runs at a
// time and concurrent callers receive its result. Readers never wait: the
// new snapshot is built off to the side and published with one atomic swap.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"jobmate/recommender-service/internal/catalog"
	"jobmate/recommender-service/internal/events"
	"jobmate/recommender-service/internal/logger"
	"jobmate/recommender-service/internal/model"
	"jobmate/recommender-service/internal/remote"
	"jobmate/recommender-service/internal/snapshot"
	"jobmate/recommender-service/internal/vectorindex"
)

const (
	IndexFileName = "jobs.index"
	lockFileName  = ".jobs.index.lock"
	flightKey     = "refresh"
)

var (
	// ErrEmptyRebuild rejects a rebuild that produced no jobs.
	ErrEmptyRebuild = errors.New("rebuild produced an empty index")
	// ErrShrinkRejected rejects a rebuild that lost too many jobs at once.
	ErrShrinkRejected = errors.New("rebuild shrinks the catalog beyond the allowed ratio")
)

// Config tunes the refresher.
type Config struct {
	DataDir  string
	Interval time.Duration

	RemoteTimeout  time.Duration
	FetchTimeout   time.Duration
	CatalogTimeout time.Duration

	// MaxShrinkRatio is the smallest accepted next/current job count ratio.
	// Zero disables the check; an empty rebuild is always rejected.
	MaxShrinkRatio float64

	IndexOptions []vectorindex.Option
}

// Status is a point-in-time view of the refresher for the admin API.
type Status struct {
	Phase         Phase      `json:"phase"`
	Ready         bool       `json:"ready"`
	SnapshotID    string     `json:"snapshotId,omitempty"`
	SourceVersion *time.Time `json:"sourceVersion,omitempty"`
	LoadedAt      *time.Time `json:"loadedAt,omitempty"`
	Jobs          int        `json:"jobs"`
	LastCheck     *time.Time `json:"lastCheck,omitempty"`
	LastSuccess   *time.Time `json:"lastSuccess,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	LastErrorAt   *time.Time `json:"lastErrorAt,omitempty"`
	Rebuilds      int64      `json:"rebuilds"`
	Failures      int64      `json:"failures"`
	Coalesced     int64      `json:"coalesced"` // triggers that joined a cycle already in flight
}

// ReloadListener delivers reload commands sent by other processes.
type ReloadListener interface {
	ListenReload(ctx context.Context, fn func(ctx context.Context, req events.ReloadRequest)) error
}

type mode int

const (
	modeCheck mode = iota
	modeForce
	modeLocal
)

func (m mode) String() string {
	switch m {
	case modeForce:
		return "forced"
	case modeLocal:
		return "local"
	}
	return "scheduled"
}

// Refresher owns the only write path into a snapshot.Store.
type Refresher struct {
	store    *snapshot.Store
	remote   remote.Store
	source   catalog.Source
	notifier events.Notifier
	cfg      Config
	logger   *zap.Logger

	group singleflight.Group
	cron  *cron.Cron
	wg    sync.WaitGroup
	now   func() time.Time

	rebuilds  atomic.Int64
	failures  atomic.Int64
	coalesced atomic.Int64

	mu          sync.Mutex
	phase       Phase
	lastCheck   time.Time
	lastSuccess time.Time
	lastErr     error
	lastErrAt   time.Time
}

// New creates a Refresher. notifier may be nil.
func New(store *snapshot.Store, rs remote.Store, src catalog.Source, notifier events.Notifier, cfg Config, log *zap.Logger) (*Refresher, error) {
	if store == nil || rs == nil || src == nil {
		return nil, fmt.Errorf("refresher: store, remote and catalog source are required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("refresher: data dir is required")
	}
	if cfg.MaxShrinkRatio < 0 || cfg.MaxShrinkRatio > 1 {
		return nil, fmt.Errorf("refresher: max shrink ratio %v outside [0, 1]", cfg.MaxShrinkRatio)
	}
	if notifier == nil {
		notifier = events.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Refresher{
		store:    store,
		remote:   rs,
		source:   src,
		notifier: notifier,
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
		phase:    PhaseIdle,
	}, nil
}

// IndexPath is where the last successfully loaded blob is kept.
func (r *Refresher) IndexPath() string {
	return filepath.Join(r.cfg.DataDir, IndexFileName)
}

// ─── Scheduling ───────────────────────────────────────────────────────────────

// Start registers the periodic check and starts the scheduler. It also warms
// up from the local copy, if any, and runs one check immediately so the
// service does not wait a full interval for its first snapshot.
func (r *Refresher) Start(ctx context.Context) error {
	if r.cfg.Interval <= 0 {
		return fmt.Errorf("refresher: interval must be positive, got %s", r.cfg.Interval)
	}
	cl := logger.Cron(r.logger)
	r.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	spec := fmt.Sprintf("@every %s", r.cfg.Interval)
	if _, err := r.cron.AddFunc(spec, func() {
		_ = r.CheckAndReload(ctx)
	}); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	r.cron.Start()
	r.logger.Info("refresh schedule started", zap.String("spec", spec))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if !r.store.Ready() {
			_ = r.LoadLocal(ctx)
		}
		_ = r.CheckAndReload(ctx)
	}()
	return nil
}

// Stop halts the schedule and waits for a running cycle to finish.
func (r *Refresher) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
	r.wg.Wait()
	r.logger.Info("refresh schedule stopped")
}

// Listen forwards reload commands from l to TriggerReload until ctx ends.
func (r *Refresher) Listen(ctx context.Context, l ReloadListener) error {
	return l.ListenReload(ctx, func(ctx context.Context, req events.ReloadRequest) {
		r.logger.Info("reload command received", zap.String("origin", req.Origin))
		if err := r.TriggerReload(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("remote reload command failed", zap.Error(err))
		}
	})
}

// ─── Triggers ─────────────────────────────────────────────────────────────────

// CheckAndReload rebuilds when there is no snapshot yet or the remote version
// is strictly newer than the current one.
func (r *Refresher) CheckAndReload(ctx context.Context) error {
	return r.do(ctx, modeCheck)
}

// TriggerReload rebuilds unconditionally. A call made while a cycle is in
// flight joins that cycle instead of starting another.
func (r *Refresher) TriggerReload(ctx context.Context) error {
	return r.do(ctx, modeForce)
}

// Rebuild is TriggerReload.
func (r *Refresher) Rebuild(ctx context.Context) error {
	return r.TriggerReload(ctx)
}

// LoadLocal publishes the index kept in the data dir from a previous run,
// paired with a fresh catalog. It is a no-op when a snapshot is already
// published or no local copy exists.
func (r *Refresher) LoadLocal(ctx context.Context) error {
	return r.do(ctx, modeLocal)
}

// do runs one cycle through the shared flight. The cycle itself is detached
// from ctx; ctx only bounds how long the caller waits for it.
func (r *Refresher) do(ctx context.Context, m mode) error {
	led := false
	ch := r.group.DoChan(flightKey, func() (any, error) {
		led = true
		return nil, r.cycle(context.WithoutCancel(ctx), m)
	})
	select {
	case res := <-ch:
		// Shared is also set for the caller that ran the cycle.
		if res.Shared && !led {
			r.coalesced.Add(1)
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Cycle ────────────────────────────────────────────────────────────────────

func (r *Refresher) cycle(ctx context.Context, m mode) error {
	start := r.now()
	log := r.logger.With(zap.Stringer("mode", m))

	var (
		snap *snapshot.Snapshot
		err  error
	)
	if m == modeLocal {
		snap, err = r.loadLocal(ctx, log)
	} else {
		snap, err = r.refresh(ctx, m, log)
	}
	r.setPhase(PhaseIdle)

	if err != nil {
		r.failures.Add(1)
		r.mu.Lock()
		r.lastErr, r.lastErrAt = err, r.now()
		r.mu.Unlock()

		fields := []zap.Field{zap.Error(err), zap.Int64("failures", r.failures.Load())}
		if cur, ok := r.store.Get(); ok {
			fields = append(fields, zap.String("serving", cur.ID()), zap.Int("jobs", cur.Len()))
		}
		log.Error("index_rebuild_failed", fields...)
		return err
	}
	if snap == nil {
		return nil
	}

	r.rebuilds.Add(1)
	r.mu.Lock()
	r.lastSuccess, r.lastErr, r.lastErrAt = r.now(), nil, time.Time{}
	r.mu.Unlock()

	log.Info("index snapshot published",
		zap.String("snapshot", snap.ID()),
		zap.Int("jobs", snap.Len()),
		zap.Time("version", snap.SourceVersion()),
		zap.Duration("took", r.now().Sub(start)),
	)
	if err := r.notifier.IndexReloaded(ctx, events.IndexReloaded{
		SnapshotID:    snap.ID(),
		SourceVersion: snap.SourceVersion(),
		Jobs:          snap.Len(),
		LoadedAt:      snap.LoadedAt(),
	}); err != nil {
		log.Warn("index reload notification failed", zap.Error(err))
	}
	return nil
}

// refresh returns the published snapshot, or nil when nothing changed.
func (r *Refresher) refresh(ctx context.Context, m mode, log *zap.Logger) (*snapshot.Snapshot, error) {
	r.setPhase(PhaseChecking)
	version, err := r.remoteVersion(ctx)
	r.mu.Lock()
	r.lastCheck = r.now()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	cur, ok := r.store.Get()
	if m == modeCheck && ok && !cur.IsNewer(version) {
		log.Debug("index is current", zap.Time("version", version), zap.String("snapshot", cur.ID()))
		return nil, nil
	}

	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r.setPhase(PhaseDownloading)
	tmp, err := os.CreateTemp(r.cfg.DataDir, IndexFileName+".*.download")
	if err != nil {
		return nil, fmt.Errorf("create download file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	var records []model.JobRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fctx, cancel := withTimeout(gctx, r.cfg.FetchTimeout)
		defer cancel()
		if err := r.remote.Fetch(fctx, tmpPath); err != nil {
			return fmt.Errorf("fetch index: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		records, err = r.loadCatalog(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.setPhase(PhaseBuilding)
	ix, err := vectorindex.LoadFile(tmpPath, r.cfg.IndexOptions...)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	next, err := r.build(ix, records, version)
	if err != nil {
		return nil, err
	}

	r.setPhase(PhaseSwapping)
	r.store.Swap(next)
	if err := r.promote(tmpPath, version); err != nil {
		log.Warn("keeping downloaded index failed", zap.Error(err))
	}
	return next, nil
}

func (r *Refresher) loadLocal(ctx context.Context, log *zap.Logger) (*snapshot.Snapshot, error) {
	if r.store.Ready() {
		return nil, nil
	}
	r.setPhase(PhaseChecking)
	path := r.IndexPath()
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug("no local index to warm up from", zap.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat local index: %w", err)
	}

	r.setPhase(PhaseBuilding)
	records, err := r.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	ix, err := vectorindex.LoadFile(path, r.cfg.IndexOptions...)
	if err != nil {
		return nil, fmt.Errorf("load local index: %w", err)
	}
	next, err := r.build(ix, records, info.ModTime().UTC())
	if err != nil {
		return nil, err
	}

	r.setPhase(PhaseSwapping)
	if !r.store.Ready() {
		r.store.Swap(next)
		return next, nil
	}
	return nil, nil
}

// build pairs index and records and applies the consistency policy against
// the currently published snapshot.
func (r *Refresher) build(ix *vectorindex.Index, records []model.JobRecord, version time.Time) (*snapshot.Snapshot, error) {
	next, err := snapshot.New(ix, catalog.New(records), version)
	if err != nil {
		return nil, err
	}
	prev := 0
	if cur, ok := r.store.Get(); ok {
		prev = cur.Len()
	}
	if err := checkShrink(prev, next.Len(), r.cfg.MaxShrinkRatio); err != nil {
		return nil, err
	}
	return next, nil
}

func checkShrink(prev, next int, ratio float64) error {
	if next == 0 {
		return ErrEmptyRebuild
	}
	if prev == 0 || ratio <= 0 {
		return nil
	}
	if float64(next) < ratio*float64(prev) {
		return fmt.Errorf("%w: %d -> %d jobs (min ratio %.2f)", ErrShrinkRejected, prev, next, ratio)
	}
	return nil
}

func (r *Refresher) remoteVersion(ctx context.Context) (time.Time, error) {
	rctx, cancel := withTimeout(ctx, r.cfg.RemoteTimeout)
	defer cancel()
	v, err := r.remote.LastModified(rctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("check remote version: %w", err)
	}
	return v, nil
}

func (r *Refresher) loadCatalog(ctx context.Context) ([]model.JobRecord, error) {
	cctx, cancel := withTimeout(ctx, r.cfg.CatalogTimeout)
	defer cancel()
	records, err := r.source.Load(cctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return records, nil
}

// lock takes the data dir file lock shared with other processes using the
// same directory.
func (r *Refresher) lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(r.cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	fl := flock.New(filepath.Join(r.cfg.DataDir, lockFileName))

	lctx, cancel := withTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(lctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("lock data dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock data dir: %s is held by another process", fl.Path())
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			r.logger.Warn("unlock data dir", zap.Error(err))
		}
	}, nil
}

// promote moves the downloaded blob over the kept copy and stamps it with the
// remote version so a restart can tell how fresh it is.
func (r *Refresher) promote(tmpPath string, version time.Time) error {
	dest := r.IndexPath()
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("promote index: %w", err)
	}
	if err := os.Chtimes(dest, version, version); err != nil {
		return fmt.Errorf("stamp index version: %w", err)
	}
	return nil
}

// ─── State ────────────────────────────────────────────────────────────────────

func (r *Refresher) setPhase(next Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == next {
		return
	}
	if !IsTransitionAllowed(r.phase, next) {
		r.logger.Warn("unexpected refresh phase transition",
			zap.String("from", string(r.phase)), zap.String("to", string(next)))
	}
	r.phase = next
}

// Phase returns the current phase.
func (r *Refresher) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// LastError returns the error of the most recent failed cycle, cleared by the
// next successful rebuild.
func (r *Refresher) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Status reports the refresher state and the published snapshot.
func (r *Refresher) Status() Status {
	r.mu.Lock()
	st := Status{
		Phase:       r.phase,
		LastCheck:   timePtr(r.lastCheck),
		LastSuccess: timePtr(r.lastSuccess),
		LastErrorAt: timePtr(r.lastErrAt),
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	r.mu.Unlock()

	st.Rebuilds = r.rebuilds.Load()
	st.Failures = r.failures.Load()
	st.Coalesced = r.coalesced.Load()

	if snap, ok := r.store.Get(); ok {
		st.Ready = true
		st.SnapshotID = snap.ID()
		st.SourceVersion = timePtr(snap.SourceVersion())
		st.LoadedAt = timePtr(snap.LoadedAt())
		st.Jobs = snap.Len()
	}
	return st
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
