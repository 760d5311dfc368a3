package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rental-receivables-recon/internal/events"
	"rental-receivables-recon/internal/models"
	"rental-receivables-recon/internal/repository"
	"rental-receivables-recon/internal/services/matching"
)

const releaseTimeout = 10 * time.Second

type ReconciliationService struct {
	staging Staging
	ledger  Ledger
	clients ClientResolver
	batches Batches

	matcher      *matching.Matcher
	publisher    events.Publisher
	log          *zap.Logger
	workers      int
	leaseTimeout time.Duration
	now          func() time.Time

	locksMu     sync.Mutex
	clientLocks map[uuid.UUID]*clientLock
	starting    sync.Map // batchID -> struct{}, held by Start until its run ends
	runs        sync.Map // runID -> *Progress
}

// clientLock is dropped from the table once nobody holds or waits on it.
type clientLock struct {
	mu   sync.Mutex
	refs int
}

type Options struct {
	Matcher      *matching.Matcher
	Publisher    events.Publisher
	Logger       *zap.Logger
	Workers      int
	LeaseTimeout time.Duration
	Now          func() time.Time
}

func NewReconciliationService(
	staging Staging,
	ledger Ledger,
	clients ClientResolver,
	batches Batches,
	opts Options,
) *ReconciliationService {
	if opts.Matcher == nil {
		opts.Matcher = matching.NewMatcher(matching.DefaultConfig())
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.LeaseTimeout <= 0 {
		opts.LeaseTimeout = 15 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &ReconciliationService{
		staging:      staging,
		ledger:       ledger,
		clients:      clients,
		batches:      batches,
		matcher:      opts.Matcher,
		publisher:    opts.Publisher,
		log:          opts.Logger,
		workers:      opts.Workers,
		leaseTimeout: opts.LeaseTimeout,
		now:          opts.Now,
		clientLocks:  make(map[uuid.UUID]*clientLock),
	}
}

// Progress is the live state of a run in this process.
type Progress struct {
	mu       sync.Mutex
	RunID    uuid.UUID
	BatchID  uuid.UUID
	Selected int
	Done     int
	Counts   map[models.ProcessingStatus]int
	Skipped  int
}

func (p *Progress) record(status models.ProcessingStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Done++
	p.Counts[status]++
}

func (p *Progress) skip() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Done++
	p.Skipped++
}

// Snapshot copies the progress so it can be read without the lock.
func (p *Progress) Snapshot() RunSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := make(map[models.ProcessingStatus]int, len(p.Counts))
	for k, v := range p.Counts {
		counts[k] = v
	}
	return RunSummary{
		RunID:    p.RunID,
		BatchID:  p.BatchID,
		Selected: p.Selected,
		Done:     p.Done,
		Skipped:  p.Skipped,
		Counts:   counts,
	}
}

// RunSummary is what a run did. Skipped rows were claimed by another run
// between selection and claim.
type RunSummary struct {
	RunID    uuid.UUID                       `json:"run_id"`
	BatchID  uuid.UUID                       `json:"batch_id"`
	Selected int                             `json:"selected"`
	Done     int                             `json:"done"`
	Skipped  int                             `json:"skipped"`
	Counts   map[models.ProcessingStatus]int `json:"counts"`
}

// Ticket acknowledges a trigger.
type Ticket struct {
	BatchID          uuid.UUID `json:"batch_id"`
	RunID            uuid.UUID `json:"run_id,omitempty"`
	Count            int       `json:"count"`
	NothingToProcess bool      `json:"nothing_to_process"`
}

// Start selects the PENDING rows of a batch and processes them in the
// background. It returns as soon as the selection is known.
func (s *ReconciliationService) Start(ctx context.Context, batchID uuid.UUID) (*Ticket, error) {
	if _, taken := s.starting.LoadOrStore(batchID, struct{}{}); taken {
		return nil, ErrRunInProgress
	}
	if s.running(batchID) {
		s.starting.Delete(batchID)
		return nil, ErrRunInProgress
	}

	ticket, ids, err := s.prepare(ctx, batchID)
	if err != nil || ticket.NothingToProcess {
		s.starting.Delete(batchID)
		return ticket, err
	}

	progress := s.register(ticket, ids)
	go func() {
		defer s.starting.Delete(batchID)
		bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		if _, err := s.execute(bg, progress, ids); err != nil {
			s.log.Error("reconciliation run aborted",
				zap.String("batch_id", batchID.String()),
				zap.String("run_id", ticket.RunID.String()),
				zap.Error(err))
		}
	}()
	return ticket, nil
}

// Run is the synchronous form of Start.
func (s *ReconciliationService) Run(ctx context.Context, batchID uuid.UUID) (*Ticket, *RunSummary, error) {
	ticket, ids, err := s.prepare(ctx, batchID)
	if err != nil || ticket.NothingToProcess {
		return ticket, nil, err
	}
	summary, err := s.execute(ctx, s.register(ticket, ids), ids)
	return ticket, summary, err
}

func (s *ReconciliationService) prepare(ctx context.Context, batchID uuid.UUID) (*Ticket, []uuid.UUID, error) {
	if _, err := s.batches.Get(ctx, batchID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrBatchNotFound
		}
		return nil, nil, fmt.Errorf("load batch %s: %w", batchID, err)
	}

	if n, err := s.staging.ReclaimStale(ctx, &batchID, s.now().Add(-s.leaseTimeout)); err != nil {
		return nil, nil, fmt.Errorf("reclaim stale rows: %w", err)
	} else if n > 0 {
		s.log.Warn("reclaimed rows with expired lease",
			zap.String("batch_id", batchID.String()),
			zap.Int64("rows", n))
	}

	ids, err := s.staging.PendingIDs(ctx, batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("select pending rows: %w", err)
	}
	if len(ids) == 0 {
		s.log.Info("nothing to process", zap.String("batch_id", batchID.String()))
		return &Ticket{BatchID: batchID, NothingToProcess: true}, nil, nil
	}

	ticket := &Ticket{BatchID: batchID, RunID: uuid.New(), Count: len(ids)}
	if err := s.batches.MarkRunStarted(ctx, batchID, s.now()); err != nil {
		return nil, nil, fmt.Errorf("mark run started: %w", err)
	}
	return ticket, ids, nil
}

func (s *ReconciliationService) register(t *Ticket, ids []uuid.UUID) *Progress {
	p := &Progress{
		RunID:    t.RunID,
		BatchID:  t.BatchID,
		Selected: len(ids),
		Counts:   make(map[models.ProcessingStatus]int),
	}
	s.runs.Store(t.RunID, p)
	return p
}

func (s *ReconciliationService) running(batchID uuid.UUID) bool {
	active := false
	s.runs.Range(func(_, v any) bool {
		if v.(*Progress).BatchID == batchID {
			active = true
			return false
		}
		return true
	})
	return active
}

// ActiveRuns lists the runs of a batch currently executing in this process.
func (s *ReconciliationService) ActiveRuns(batchID uuid.UUID) []RunSummary {
	var out []RunSummary
	s.runs.Range(func(_, v any) bool {
		if p := v.(*Progress); p.BatchID == batchID {
			out = append(out, p.Snapshot())
		}
		return true
	})
	return out
}

func (s *ReconciliationService) execute(ctx context.Context, p *Progress, ids []uuid.UUID) (*RunSummary, error) {
	defer s.runs.Delete(p.RunID)

	log := s.log.With(
		zap.String("batch_id", p.BatchID.String()),
		zap.String("run_id", p.RunID.String()))
	log.Info("reconciliation run started", zap.Int("rows", len(ids)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return s.processRow(gctx, p, id)
		})
	}

	if err := g.Wait(); err != nil {
		// Rows this run claimed but never finished go back to PENDING.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if n, rerr := s.staging.ReleaseRun(rctx, p.RunID); rerr != nil {
			log.Error("release claimed rows", zap.Error(rerr))
		} else {
			log.Warn("released claimed rows", zap.Int64("rows", n))
		}
		if rerr := s.batches.MarkReopened(rctx, p.BatchID); rerr != nil {
			log.Error("reopen batch", zap.Error(rerr))
		}
		return nil, fmt.Errorf("reconciliation run %s: %w", p.RunID, err)
	}

	summary := p.Snapshot()
	report, err := s.Status(ctx, p.BatchID)
	if err != nil {
		return &summary, fmt.Errorf("refresh batch status: %w", err)
	}
	if err := s.batches.MarkRunFinished(ctx, p.BatchID, int(report.Total-report.Pending-report.Processing), report.Resolved, s.now()); err != nil {
		return &summary, fmt.Errorf("mark run finished: %w", err)
	}

	counts := make(map[string]int, len(summary.Counts))
	for k, v := range summary.Counts {
		counts[string(k)] = v
	}
	s.publish(ctx, events.Event{
		Type:       events.TypeRunCompleted,
		BatchID:    p.BatchID,
		RunID:      p.RunID,
		Counts:     counts,
		OccurredAt: s.now(),
	})

	log.Info("reconciliation run finished",
		zap.Int("selected", summary.Selected),
		zap.Int("skipped", summary.Skipped),
		zap.Any("counts", counts))
	return &summary, nil
}

// processRow claims and resolves one row. Only staging store failures are
// returned; everything else is recorded on the row.
func (s *ReconciliationService) processRow(ctx context.Context, p *Progress, id uuid.UUID) error {
	claimed, err := s.staging.Claim(ctx, id, p.RunID, s.now())
	if err != nil {
		return err
	}
	if !claimed {
		p.skip()
		return nil
	}

	row, err := s.staging.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load staged payment %s: %w", id, err)
	}

	outcome, err := s.resolve(ctx, row)
	if errors.Is(err, repository.ErrClaimLost) {
		p.skip()
		return nil
	}
	if err != nil {
		return err
	}

	status := StatusForError(outcome)
	if status != models.StatusProcessed {
		err := s.staging.Finish(ctx, id, status, outcome.Error(), s.now())
		if errors.Is(err, repository.ErrClaimLost) {
			p.skip()
			return nil
		}
		if err != nil {
			return fmt.Errorf("finish staged payment %s: %w", id, err)
		}
	}

	p.record(status)
	s.log.Debug("staged payment resolved",
		zap.String("staged_payment_id", id.String()),
		zap.String("status", string(status)),
		zap.NamedError("reason", outcome))

	e := events.Event{
		Type:            events.TypeRowResolved,
		BatchID:         p.BatchID,
		RunID:           p.RunID,
		StagedPaymentID: &id,
		Status:          string(status),
		OccurredAt:      s.now(),
	}
	if outcome != nil {
		e.Reason = outcome.Error()
	}
	s.publish(ctx, e)
	return nil
}

// resolve runs the per-row procedure. The first return value is the row
// outcome (nil when the match was applied); the second is a staging store
// failure or a lost claim.
func (s *ReconciliationService) resolve(ctx context.Context, row *models.StagedPayment) (outcome, failure error) {
	if !row.Amount.IsPositive() {
		return fmt.Errorf("%w: %q", ErrMalformedAmount, row.RawAmount), nil
	}

	clientID, ok, err := s.clients.Resolve(ctx, row)
	if err != nil {
		return fmt.Errorf("resolve client: %w", err), nil
	}
	if !ok {
		return ErrClientUnresolved, nil
	}

	unlock := s.lockClient(clientID)
	defer unlock()

	receivables, err := s.ledger.Outstanding(ctx, clientID)
	if err != nil {
		return fmt.Errorf("load receivables: %w", err), nil
	}
	if err := s.staging.Annotate(ctx, row.ID, &clientID, len(receivables)); err != nil {
		return nil, err
	}
	if len(receivables) == 0 {
		return ErrNoCandidates, nil
	}

	candidates := make([]matching.Candidate, len(receivables))
	for i, r := range receivables {
		candidates[i] = matching.Candidate{ID: r.ID, Balance: r.Balance}
	}
	match, ok := s.matcher.Match(row.Amount, candidates)
	if !ok {
		return ErrNoMatchFound, nil
	}

	if _, err := s.ledger.Apply(ctx, row.ID, match.IDs, row.Amount); err != nil {
		if errors.Is(err, repository.ErrClaimLost) {
			return nil, err
		}
		return fmt.Errorf("%w: %v", ErrLedgerApply, err), nil
	}
	return nil, nil
}

// lockClient serializes reads and applies against one client's receivables
// within this process. The ledger's row locks cover other processes.
func (s *ReconciliationService) lockClient(clientID uuid.UUID) func() {
	s.locksMu.Lock()
	l, ok := s.clientLocks[clientID]
	if !ok {
		l = &clientLock{}
		s.clientLocks[clientID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.clientLocks, clientID)
		}
		s.locksMu.Unlock()
	}
}

func (s *ReconciliationService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn("publish event",
			zap.String("type", e.Type),
			zap.String("batch_id", e.BatchID.String()),
			zap.Error(err))
	}
}

// Reset moves rows of the given statuses back to PENDING for a future run.
func (s *ReconciliationService) Reset(ctx context.Context, batchID uuid.UUID, statuses []models.ProcessingStatus) (int64, error) {
	for _, st := range statuses {
		if !st.Resettable() {
			return 0, fmt.Errorf("%w: %s", ErrInvalidStatus, st)
		}
	}
	if _, err := s.batches.Get(ctx, batchID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrBatchNotFound
		}
		return 0, err
	}

	n, err := s.staging.Reset(ctx, batchID, statuses)
	if err != nil {
		return 0, fmt.Errorf("reset rows: %w", err)
	}
	if n > 0 {
		if err := s.batches.MarkReopened(ctx, batchID); err != nil {
			return n, fmt.Errorf("reopen batch: %w", err)
		}
	}
	s.log.Info("rows reset to pending",
		zap.String("batch_id", batchID.String()),
		zap.Int64("rows", n))
	return n, nil
}

// Reclaim returns rows whose lease expired to PENDING. A nil batchID covers every batch.
func (s *ReconciliationService) Reclaim(ctx context.Context, batchID *uuid.UUID) (int64, error) {
	return s.staging.ReclaimStale(ctx, batchID, s.now().Add(-s.leaseTimeout))
}
