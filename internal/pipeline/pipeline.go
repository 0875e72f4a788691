// Package pipeline implements the orchestrator that drives a roadmap session
// through its generation stages: normalize sources, resolve dependencies,
// cluster themes, match capacity, generate milestones.
//
// The session status column is the lock. A run starts by compare-and-setting
// the status from a startable state into processing; losing that race means
// another run owns the session and the start is rejected, not queued. Each
// stage persists its output before the next stage starts, so a failed run
// leaves every completed stage's output in place for inspection.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/planora/roadmap/internal/graph"
	"github.com/planora/roadmap/internal/milestone"
	"github.com/planora/roadmap/internal/scheduler"
	"github.com/planora/roadmap/internal/source"
	"github.com/planora/roadmap/internal/store"
	"github.com/planora/roadmap/internal/theme"
	"github.com/planora/roadmap/internal/types"
)

// ErrSessionBusy is returned when a start request loses the status race:
// another run currently owns the session.
var ErrSessionBusy = errors.New("session is already running")

// startable lists the states a run may begin from. Retrying a completed
// session is a full re-plan that preserves manually positioned work.
var startable = []types.SessionStatus{
	types.StatusDraft, types.StatusFailed, types.StatusCompleted,
}

// Event describes one pipeline state change, for dashboards and log tails.
type Event struct {
	SessionID string              `json:"sessionId"`
	Status    types.SessionStatus `json:"status"`
	Step      int                 `json:"step"`
	Total     int                 `json:"total"`
	Message   string              `json:"message,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Notifier receives pipeline events. Implementations must not block; the
// orchestrator calls them inline between stages.
type Notifier interface {
	PipelineEvent(ev Event)
}

// HintProvider supplies candidate dependency edges for the resolver.
// Collaborators with richer signals (explicit links, inference services)
// implement this; the in-tree default derives edges from custom item
// declarations only.
type HintProvider interface {
	Hints(ctx context.Context, session *types.RoadmapSession, items []*types.RoadmapItem) ([]graph.CandidateEdge, error)
}

// Config assembles an Orchestrator. Store and Lookup are required; the rest
// defaults via DefaultConfig.
type Config struct {
	Store  *store.Store
	Lookup source.Lookup

	Scorer   theme.Scorer
	Hints    HintProvider
	Notifier Notifier
	Logger   *log.Logger

	// Now anchors milestone status derivation; overridable for tests.
	Now func() time.Time
}

// DefaultConfig fills in the optional collaborators.
func DefaultConfig(st *store.Store, lookup source.Lookup) Config {
	return Config{
		Store:  st,
		Lookup: lookup,
		Scorer: theme.LexicalScorer{},
		Hints:  CustomLinkHints{},
		Logger: log.New(io.Discard, "", 0),
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// Orchestrator runs generation pipelines. Safe for concurrent use; the
// per-session exclusivity comes from the status compare-and-set, the local
// cancel registry only tracks runs started through this instance.
type Orchestrator struct {
	store    *store.Store
	norm     *source.Normalizer
	scorer   theme.Scorer
	hints    HintProvider
	notifier Notifier
	log      *log.Logger
	now      func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// New creates an orchestrator from the given config.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Lookup == nil {
		return nil, fmt.Errorf("source lookup is required")
	}
	def := DefaultConfig(cfg.Store, cfg.Lookup)
	if cfg.Scorer == nil {
		cfg.Scorer = def.Scorer
	}
	if cfg.Hints == nil {
		cfg.Hints = def.Hints
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	return &Orchestrator{
		store:    cfg.Store,
		norm:     source.New(cfg.Lookup, 0),
		scorer:   cfg.Scorer,
		hints:    cfg.Hints,
		notifier: cfg.Notifier,
		log:      cfg.Logger,
		now:      cfg.Now,
		running:  make(map[string]context.CancelFunc),
	}, nil
}

// acquire claims the session via the status compare-and-set. The status
// column is the lock, so this also rejects runs started by other processes
// sharing the database.
func (o *Orchestrator) acquire(ctx context.Context, sessionID string) error {
	ok, err := o.store.TransitionStatus(ctx, sessionID, startable, types.StatusProcessing)
	if err != nil {
		return err
	}
	if !ok {
		// Distinguish a missing session from a busy one.
		if _, err := o.store.GetSession(ctx, sessionID); err != nil {
			return err
		}
		return ErrSessionBusy
	}
	return nil
}

// Run executes the full pipeline synchronously. It returns ErrSessionBusy
// when another run owns the session. On stage failure the session lands in
// failed with the stage error recorded, and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context, sessionID string) error {
	if err := o.acquire(ctx, sessionID); err != nil {
		return err
	}
	return o.run(ctx, sessionID)
}

// run drives an already-acquired session through the stages.
func (o *Orchestrator) run(ctx context.Context, sessionID string) error {
	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.running[sessionID] = cancel
	o.mu.Unlock()
	defer func() {
		cancel()
		o.mu.Lock()
		delete(o.running, sessionID)
		o.mu.Unlock()
	}()

	if err := o.execute(runCtx, sessionID); err != nil {
		msg := err.Error()
		if runCtx.Err() != nil {
			msg = "run canceled"
		}
		if ferr := o.store.SetFailed(ctx, sessionID, msg); ferr != nil {
			o.log.Printf("pipeline: failed to record failure for %s: %v", sessionID, ferr)
		}
		o.notify(Event{SessionID: sessionID, Status: types.StatusFailed, Error: msg})
		return err
	}
	return nil
}

// Start claims the session synchronously and runs the stages on a new
// goroutine. A rejected start (missing session, busy session) reaches the
// caller before any goroutine spawns; only stage failures are asynchronous,
// and those land in the session's failed status.
func (o *Orchestrator) Start(ctx context.Context, sessionID string) error {
	if err := o.acquire(ctx, sessionID); err != nil {
		return err
	}
	go func() {
		if err := o.run(context.Background(), sessionID); err != nil {
			o.log.Printf("pipeline: run for %s failed: %v", sessionID, err)
		}
	}()
	return nil
}

// Cancel aborts a run started through this orchestrator. Returns false when
// no such run is active.
func (o *Orchestrator) Cancel(sessionID string) bool {
	o.mu.Lock()
	cancel, ok := o.running[sessionID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (o *Orchestrator) execute(ctx context.Context, sessionID string) error {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	total := len(types.StageOrder)

	// Re-runs preserve manually positioned work: pinned items keep their
	// identity and pinned segments keep their placement.
	preserved, err := o.store.DeleteNonPinnedItems(ctx, sessionID)
	if err != nil {
		return err
	}
	pinnedSegs, err := o.store.DeleteNonPinnedSegments(ctx, sessionID)
	if err != nil {
		return err
	}

	items, err := o.stageNormalize(ctx, session, preserved, total)
	if err != nil {
		return err
	}
	res, err := o.stageResolve(ctx, session, items, total)
	if err != nil {
		return err
	}
	if err := o.stageCluster(ctx, session, items, total); err != nil {
		return err
	}
	segments, err := o.stageSchedule(ctx, session, items, res.HardPredecessors(), pinnedSegs, total)
	if err != nil {
		return err
	}
	if err := o.stageMilestones(ctx, session, items, segments, pinnedSegs, total); err != nil {
		return err
	}

	if err := o.store.RefreshCounters(ctx, sessionID); err != nil {
		return err
	}
	if err := o.store.UpdateProgress(ctx, sessionID, types.StatusCompleted, total, total, "roadmap generated"); err != nil {
		return err
	}
	o.notify(Event{SessionID: sessionID, Status: types.StatusCompleted, Step: total, Total: total, Message: "roadmap generated"})
	return nil
}

func (o *Orchestrator) stageNormalize(ctx context.Context, session *types.RoadmapSession, preserved []*types.RoadmapItem, total int) ([]*types.RoadmapItem, error) {
	if err := o.enterStage(ctx, session.ID, types.StatusSequencing, 1, total, "normalizing sources"); err != nil {
		return nil, err
	}

	res, err := o.norm.Normalize(ctx, session)
	if err != nil {
		// An unresolvable source set is still workable when pinned items
		// survived from the previous run.
		if !errors.Is(err, source.ErrNoSources) || len(preserved) == 0 {
			return nil, fmt.Errorf("normalize sources: %w", err)
		}
		res = &source.Result{}
	}
	o.warn(session.ID, res.Warnings)

	// Pinned items already represent their source; drop re-normalized
	// duplicates so a retry does not double them.
	kept := make(map[string]bool, len(preserved))
	for _, it := range preserved {
		kept[it.SourceKey()] = true
	}
	fresh := res.Items[:0]
	for _, it := range res.Items {
		if kept[it.SourceKey()] {
			continue
		}
		fresh = append(fresh, it)
	}
	if err := o.store.InsertItems(ctx, fresh); err != nil {
		return nil, err
	}

	items := append(append([]*types.RoadmapItem{}, preserved...), fresh...)
	if len(items) == 0 {
		return nil, source.ErrNoSources
	}
	return items, nil
}

func (o *Orchestrator) stageResolve(ctx context.Context, session *types.RoadmapSession, items []*types.RoadmapItem, total int) (*graph.Result, error) {
	if err := o.enterStage(ctx, session.ID, types.StatusAnalyzingDependencies, 2, total, "resolving dependencies"); err != nil {
		return nil, err
	}

	candidates, err := o.hints.Hints(ctx, session, items)
	if err != nil {
		return nil, fmt.Errorf("collect dependency hints: %w", err)
	}
	res, err := graph.Resolve(session.ID, items, candidates)
	if err != nil {
		return nil, fmt.Errorf("resolve dependencies: %w", err)
	}
	o.warn(session.ID, res.Warnings)

	if err := o.store.ReplaceDependencies(ctx, session.ID, res.Dependencies); err != nil {
		return nil, err
	}
	if err := o.store.UpdateItemSequence(ctx, items); err != nil {
		return nil, err
	}
	if err := o.store.SetGraphFlags(ctx, session.ID, res.HasCycles, res.CycleItems); err != nil {
		return nil, err
	}
	if res.HasCycles {
		o.log.Printf("pipeline: session %s has dependency cycles among %v", session.ID, res.CycleItems)
	}
	return res, nil
}

func (o *Orchestrator) stageCluster(ctx context.Context, session *types.RoadmapSession, items []*types.RoadmapItem, total int) error {
	if err := o.enterStage(ctx, session.ID, types.StatusClusteringThemes, 3, total, "clustering themes"); err != nil {
		return err
	}

	res, err := theme.Cluster(session.ID, items, o.scorer)
	if err != nil {
		return fmt.Errorf("cluster themes: %w", err)
	}
	if err := o.store.ReplaceThemes(ctx, session.ID, res.Themes); err != nil {
		return err
	}
	return o.store.UpdateItemThemes(ctx, items)
}

func (o *Orchestrator) stageSchedule(ctx context.Context, session *types.RoadmapSession, items []*types.RoadmapItem, preds map[string][]string, pinned []*types.RoadmapItemSegment, total int) ([]*types.RoadmapItemSegment, error) {
	if err := o.enterStage(ctx, session.ID, types.StatusMatchingCapacity, 4, total, "matching capacity"); err != nil {
		return nil, err
	}

	plan, err := scheduler.Schedule(scheduler.Input{
		SessionID:    session.ID,
		Config:       session.Capacity,
		Items:        items,
		Predecessors: preds,
		Pinned:       pinned,
	})
	if err != nil {
		return nil, fmt.Errorf("schedule capacity: %w", err)
	}
	o.warn(session.ID, plan.Warnings)

	if err := o.store.InsertSegments(ctx, plan.Segments); err != nil {
		return nil, err
	}
	return plan.Segments, nil
}

func (o *Orchestrator) stageMilestones(ctx context.Context, session *types.RoadmapSession, items []*types.RoadmapItem, segments, pinned []*types.RoadmapItemSegment, total int) error {
	if err := o.enterStage(ctx, session.ID, types.StatusGeneratingMilestones, 5, total, "generating milestones"); err != nil {
		return err
	}

	themes, err := o.store.ListThemes(ctx, session.ID)
	if err != nil {
		return err
	}
	milestones := milestone.Generate(milestone.Input{
		SessionID: session.ID,
		Config:    session.Capacity,
		Items:     items,
		Segments:  append(append([]*types.RoadmapItemSegment{}, segments...), pinned...),
		Themes:    themes,
		Now:       o.now(),
	})
	return o.store.ReplaceMilestones(ctx, session.ID, milestones)
}

func (o *Orchestrator) enterStage(ctx context.Context, sessionID string, status types.SessionStatus, step, total int, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.store.UpdateProgress(ctx, sessionID, status, step, total, message); err != nil {
		return err
	}
	o.log.Printf("pipeline: session %s stage %d/%d %s", sessionID, step, total, status)
	o.notify(Event{SessionID: sessionID, Status: status, Step: step, Total: total, Message: message})
	return nil
}

func (o *Orchestrator) warn(sessionID string, warnings []string) {
	for _, w := range warnings {
		o.log.Printf("pipeline: session %s: %s", sessionID, w)
	}
}

func (o *Orchestrator) notify(ev Event) {
	if o.notifier != nil {
		o.notifier.PipelineEvent(ev)
	}
}
