// Package lifecycle drives one editing surface's draft: it loads the draft on
// open, funnels edits, blur, debounce fires and periodic ticks into a single
// save pipeline, and reports a save status that always reflects the most
// recently started save.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"reviewdraft/internal/draft/model"
	"reviewdraft/internal/draft/presenter"
	"reviewdraft/internal/draft/repository"
	"reviewdraft/internal/draft/scheduler"
	"reviewdraft/pkg/logger"
	"reviewdraft/pkg/metrics"
	"reviewdraft/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultOpTimeout = 10 * time.Second

type Config struct {
	Debounce      time.Duration
	FlushInterval time.Duration
	// OpTimeout bounds every store call. Store calls are detached from the
	// controller's context so a draft save survives the surface going away.
	OpTimeout time.Duration
}

// Listener receives a snapshot every time the rendered state changes. It runs
// on the controller's loop and must not block.
type Listener func(model.Snapshot)

type Option func(*Controller)

func WithClock(clock scheduler.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) { c.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithDecisionRecorder(r repository.DecisionRecorder) Option {
	return func(c *Controller) { c.decisions = r }
}

func WithListener(l Listener) Option {
	return func(c *Controller) { c.listener = l }
}

// Controller is the draft lifecycle state machine. All state is owned by the
// goroutine running Run; the exported methods hand events to it.
type Controller struct {
	id        string
	store     repository.Store
	decisions repository.DecisionRecorder
	clock     scheduler.Clock
	cfg       Config
	log       *zap.Logger
	metrics   *metrics.Metrics
	listener  Listener

	events chan envelope
	quit   chan struct{} // closed when the loop stops accepting events
	done   chan struct{} // closed once the loop and all store calls have returned
	ops    sync.WaitGroup
	ctx    context.Context

	// Loop-owned.
	gen        uint64
	seq        uint64
	closeSeq   uint64
	recordID   string
	phase      model.Phase
	status     model.SaveStatus
	content    string
	updatedAt  *time.Time
	loadFailed bool
	sched      *scheduler.Scheduler
	sessionLog *zap.Logger
	// lastWrite is closed when the most recently started save or delete has
	// returned. It outlives sessions so a reopen of the same key queues behind
	// writes from the previous session.
	lastWrite chan struct{}

	lastMu sync.Mutex
	last   model.Snapshot
}

func New(st repository.Store, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		id:     uuid.NewString(),
		store:  st,
		clock:  scheduler.RealClock(),
		cfg:    cfg,
		log:    logger.Log,
		events: make(chan envelope),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		phase:  model.PhaseClosed,
		status: model.StatusUnsaved,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.OpTimeout <= 0 {
		c.cfg.OpTimeout = DefaultOpTimeout
	}
	c.log = c.log.With(zap.String("session_id", c.id))
	c.sessionLog = c.log
	c.last = c.snapshot()
	return c
}

func (c *Controller) ID() string { return c.id }

// Done is closed after Run has returned and every outstanding store call has
// finished.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Run processes events until ctx is cancelled, then tears the open session
// down and waits for outstanding store calls.
func (c *Controller) Run(ctx context.Context) {
	c.ctx = ctx
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			close(c.quit)
			c.flushOnShutdown()
			if c.phase != model.PhaseClosed {
				c.teardown("shutdown")
				c.publish()
			}
			c.ops.Wait()
			return
		case env := <-c.events:
			c.handle(env.ev)
			if env.ack != nil {
				close(env.ack)
			}
		}
	}
}

// Open shows the editing surface for recordID. Any session already open is
// torn down first, whatever its key.
func (c *Controller) Open(recordID string) { c.dispatch(openEvent{recordID: recordID}) }

// Edit replaces the content with the user's latest text.
func (c *Controller) Edit(content string) { c.dispatch(editEvent{content: content}) }

func (c *Controller) Blur() { c.dispatch(blurEvent{}) }

// Close asks to leave the surface. Non-blank content is saved once and the
// session waits in confirm-exit for ConfirmClose or CancelClose.
func (c *Controller) Close() { c.dispatch(closeEvent{}) }

func (c *Controller) ConfirmClose() { c.dispatch(confirmCloseEvent{}) }

func (c *Controller) CancelClose() { c.dispatch(cancelCloseEvent{}) }

// Finalize records the decision, deletes the draft and closes the surface.
func (c *Controller) Finalize(decision model.Decision) { c.dispatch(finalizeEvent{decision: decision}) }

// Snapshot returns the current rendered state.
func (c *Controller) Snapshot() model.Snapshot {
	reply := make(chan model.Snapshot, 1)
	if c.dispatch(snapshotQuery{reply: reply}) {
		return <-reply
	}
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	return c.last
}

type envelope struct {
	ev  any
	ack chan struct{}
}

type (
	openEvent         struct{ recordID string }
	editEvent         struct{ content string }
	blurEvent         struct{}
	closeEvent        struct{}
	confirmCloseEvent struct{}
	cancelCloseEvent  struct{}
	finalizeEvent     struct{ decision model.Decision }
	snapshotQuery     struct{ reply chan model.Snapshot }

	triggerEvent struct {
		gen     uint64
		trigger scheduler.Trigger
	}
	loadDone struct {
		gen   uint64
		draft *store.Draft
		err   error
	}
	saveDone struct {
		gen     uint64
		seq     uint64
		trigger scheduler.Trigger
		content string
		savedAt time.Time
		err     error
	}
	deleteDone struct {
		gen uint64
		err error
	}
)

// dispatch delivers a host event and waits until the loop has handled it.
func (c *Controller) dispatch(ev any) bool {
	ack := make(chan struct{})
	select {
	case c.events <- envelope{ev: ev, ack: ack}:
	case <-c.quit:
		return false
	}
	<-ack
	return true
}

// post delivers an internal event without waiting for it to be handled.
func (c *Controller) post(ev any) {
	select {
	case c.events <- envelope{ev: ev}:
	case <-c.quit:
	}
}

func (c *Controller) handle(ev any) {
	switch e := ev.(type) {
	case snapshotQuery:
		e.reply <- c.snapshot()
		return
	case openEvent:
		c.onOpen(e.recordID)
	case editEvent:
		c.onEdit(e.content)
	case blurEvent:
		c.onBlur()
	case closeEvent:
		c.onClose()
	case confirmCloseEvent:
		if c.phase == model.PhaseConfirmExit {
			c.teardown("closed")
		}
	case cancelCloseEvent:
		if c.phase == model.PhaseConfirmExit {
			c.phase = model.PhaseEditing
			c.closeSeq = 0
		}
	case finalizeEvent:
		c.onFinalize(e.decision)
	case triggerEvent:
		c.onTrigger(e)
	case loadDone:
		c.onLoadDone(e)
	case saveDone:
		c.onSaveDone(e)
	case deleteDone:
		c.onDeleteDone(e)
	}
	c.publish()
}

func (c *Controller) onOpen(recordID string) {
	if strings.TrimSpace(recordID) == "" {
		c.log.Warn("ignoring open without a record id")
		return
	}
	if c.phase != model.PhaseClosed {
		c.teardown("reopen")
	}
	c.gen++
	c.recordID = recordID
	c.phase = model.PhaseLoading
	c.status = model.StatusUnsaved
	c.sessionLog = c.log.With(zap.String("record_id", recordID))
	c.metrics.SessionOpened()

	gen := c.gen
	c.spawn(func(ctx context.Context) {
		d, err := c.store.Load(ctx, recordID)
		c.post(loadDone{gen: gen, draft: d, err: err})
	})
}

func (c *Controller) onLoadDone(e loadDone) {
	if e.gen != c.gen || c.phase != model.PhaseLoading {
		c.metrics.Stale()
		return
	}
	switch {
	case e.err != nil:
		// The user proceeds with an empty draft; the flag lets the UI tell
		// "nothing saved" apart from "could not check".
		c.sessionLog.Warn("draft load failed, starting empty", zap.Error(wrap(model.ErrLoadFailure, e.err)))
		c.metrics.LoadFailed()
		c.loadFailed = true
		c.status = model.StatusUnsaved
	case e.draft != nil:
		c.content = e.draft.Content
		at := e.draft.UpdatedAt
		c.updatedAt = &at
		c.status = model.StatusLoadedDraft
	default:
		c.status = model.StatusUnsaved
	}
	c.phase = model.PhaseEditing

	gen := c.gen
	c.sched = scheduler.New(c.clock, c.cfg.Debounce, c.cfg.FlushInterval, func(t scheduler.Trigger) {
		c.post(triggerEvent{gen: gen, trigger: t})
	})
	c.sched.Start()
}

func (c *Controller) onEdit(content string) {
	if c.phase != model.PhaseEditing {
		c.sessionLog.Debug("ignoring edit", zap.String("phase", string(c.phase)))
		return
	}
	c.content = content
	c.status = model.StatusUnsaved
	c.sched.Touch()
}

func (c *Controller) onBlur() {
	if c.phase != model.PhaseEditing || c.status != model.StatusUnsaved || blank(c.content) {
		return
	}
	c.sched.Flush()
	c.startSave(scheduler.TriggerBlur)
}

func (c *Controller) onTrigger(e triggerEvent) {
	if e.gen != c.gen {
		return
	}
	switch c.phase {
	case model.PhaseEditing, model.PhaseClosing, model.PhaseConfirmExit:
		c.startSave(e.trigger)
	}
}

func (c *Controller) onClose() {
	switch c.phase {
	case model.PhaseLoading:
		c.teardown("closed")
	case model.PhaseEditing:
		if blank(c.content) {
			c.teardown("closed")
			return
		}
		c.sched.Flush()
		c.closeSeq = c.startSave(scheduler.TriggerClose)
		c.phase = model.PhaseClosing
	}
}

func (c *Controller) onFinalize(decision model.Decision) {
	if !decision.Valid() {
		c.sessionLog.Warn("ignoring finalize with unknown decision", zap.String("decision", string(decision)))
		return
	}
	switch c.phase {
	case model.PhaseClosed, model.PhaseFinalizing:
		return
	}
	if c.sched != nil {
		c.sched.Stop()
	}
	c.phase = model.PhaseFinalizing

	gen, recordID, notes := c.gen, c.recordID, c.content
	prev, done := c.lastWrite, make(chan struct{})
	c.lastWrite = done
	log := c.sessionLog.With(zap.String("decision", string(decision)))
	c.spawn(func(ctx context.Context) {
		if c.decisions != nil {
			if err := c.decisions.RecordDecision(ctx, recordID, decision, notes); err != nil {
				log.Error("failed to record decision", zap.Error(err))
			}
		}
		// A save still in flight could land after the delete and bring the
		// draft back.
		err := after(ctx, prev)
		if err == nil {
			err = c.store.Delete(ctx, recordID)
		}
		close(done)
		c.post(deleteDone{gen: gen, err: err})
	})
}

func (c *Controller) onDeleteDone(e deleteDone) {
	if e.err != nil {
		c.sessionLog.Error("draft delete failed after finalize", zap.Error(wrap(model.ErrDeleteFailure, e.err)))
		c.metrics.DeleteFailed()
	}
	if e.gen != c.gen || c.phase != model.PhaseFinalizing {
		return
	}
	c.teardown("finalized")
}

// startSave is the single save pipeline every trigger goes through. Blank
// content is never saved. Saves reach the store one at a time in the order
// they were started, so the store always ends up with the newest content. It
// returns the attempt's sequence number, or 0 when nothing was started.
func (c *Controller) startSave(trigger scheduler.Trigger) uint64 {
	if blank(c.content) {
		return 0
	}
	c.seq++
	seq, gen, recordID, content := c.seq, c.gen, c.recordID, c.content
	c.status = model.StatusSaving

	prev, done := c.lastWrite, make(chan struct{})
	c.lastWrite = done

	c.spawn(func(ctx context.Context) {
		res := saveDone{gen: gen, seq: seq, trigger: trigger, content: content}
		res.savedAt, res.err = c.save(ctx, prev, recordID, content)
		close(done)
		c.post(res)
	})
	return seq
}

// save waits for the previous write to return, then writes content. The
// returned time is the store's own timestamp when it reports one.
func (c *Controller) save(ctx context.Context, prev <-chan struct{}, recordID, content string) (time.Time, error) {
	if err := after(ctx, prev); err != nil {
		return time.Time{}, err
	}
	d, err := c.store.Save(ctx, recordID, content)
	if err != nil {
		return time.Time{}, err
	}
	if d != nil && !d.UpdatedAt.IsZero() {
		return d.UpdatedAt, nil
	}
	return c.clock.Now(), nil
}

func (c *Controller) onSaveDone(e saveDone) {
	c.metrics.ObserveSave(string(e.trigger), e.err)
	if e.gen != c.gen || c.phase == model.PhaseFinalizing {
		c.metrics.Stale()
		return
	}
	if e.seq == c.closeSeq && c.phase == model.PhaseClosing {
		c.phase = model.PhaseConfirmExit
	}
	if e.seq != c.seq {
		c.sessionLog.Debug("discarding stale save completion", zap.Uint64("seq", e.seq), zap.Uint64("latest", c.seq))
		c.metrics.Stale()
		return
	}
	if e.err != nil {
		c.sessionLog.Warn("draft save failed", zap.String("trigger", string(e.trigger)), zap.Error(wrap(model.ErrSaveFailure, e.err)))
		c.status = model.StatusError
		return
	}
	savedAt := e.savedAt
	c.updatedAt = &savedAt
	if e.content == c.content {
		c.status = model.StatusSaved
	} else {
		// Edited while the save was in flight; the pending debounce will catch up.
		c.status = model.StatusUnsaved
	}
}

// flushOnShutdown makes one last save attempt for content that is not known to
// be persisted when the surface disappears without a close.
func (c *Controller) flushOnShutdown() {
	switch c.phase {
	case model.PhaseEditing, model.PhaseClosing, model.PhaseConfirmExit:
	default:
		return
	}
	if c.status.Persisted() {
		return
	}
	c.startSave(scheduler.TriggerShutdown)
}

func (c *Controller) teardown(reason string) {
	if c.sched != nil {
		c.sched.Stop()
		c.sched = nil
	}
	c.sessionLog.Info("draft session closed", zap.String("reason", reason))
	c.metrics.SessionClosed()
	c.gen++
	c.closeSeq = 0
	c.recordID = ""
	c.phase = model.PhaseClosed
	c.status = model.StatusUnsaved
	c.content = ""
	c.updatedAt = nil
	c.loadFailed = false
	c.sessionLog = c.log
}

func (c *Controller) spawn(fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), c.cfg.OpTimeout)
	c.ops.Add(1)
	go func() {
		defer c.ops.Done()
		defer cancel()
		fn(ctx)
	}()
}

func (c *Controller) snapshot() model.Snapshot {
	s := model.Snapshot{
		SessionID:  c.id,
		RecordID:   c.recordID,
		Phase:      c.phase,
		Status:     c.status,
		Content:    c.content,
		LoadFailed: c.loadFailed,
	}
	if c.updatedAt != nil {
		at := *c.updatedAt
		s.UpdatedAt = &at
	}
	if c.phase != model.PhaseClosed {
		s.Label = presenter.Present(c.status, s.UpdatedAt, c.clock.Now())
	}
	return s
}

func (c *Controller) publish() {
	s := c.snapshot()
	c.lastMu.Lock()
	changed := !sameState(c.last, s)
	c.last = s
	c.lastMu.Unlock()
	if changed && c.listener != nil {
		c.listener(s)
	}
}

func sameState(a, b model.Snapshot) bool {
	if a.RecordID != b.RecordID || a.Phase != b.Phase || a.Status != b.Status ||
		a.Content != b.Content || a.LoadFailed != b.LoadFailed {
		return false
	}
	if (a.UpdatedAt == nil) != (b.UpdatedAt == nil) {
		return false
	}
	return a.UpdatedAt == nil || a.UpdatedAt.Equal(*b.UpdatedAt)
}

// after blocks until prev is closed. A nil prev means nothing is queued.
func after(ctx context.Context, prev <-chan struct{}) error {
	if prev == nil {
		return nil
	}
	select {
	case <-prev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func wrap(kind, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
