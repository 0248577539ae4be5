package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morozRed/codescape/internal/codebase"
	"github.com/morozRed/codescape/internal/lsp"
	"github.com/morozRed/codescape/internal/symbols"
)

// Progress texts published while retrieving.
const (
	ProgressReading    = "reading raw data"
	ProgressConnecting = "connecting to symbol service"
	ProgressSymbols    = "retrieving symbols"
)

// SymbolSession is the language server connection a run annotates with.
type SymbolSession interface {
	symbols.Service
	Initialize(ctx context.Context) error
	Available() bool
	MarkUnavailable()
}

type Options struct {
	Matcher     codebase.Matcher
	Concurrency int
	Logger      *slog.Logger
}

// StageFunc does the work of one processing stage. report publishes
// progress; it may be called from any goroutine and is a no-op once the
// stage function has returned.
type StageFunc func(ctx context.Context, folder *codebase.Folder, report func(completed, total int)) error

// Processor owns the ingestion state of one codebase at a time. Retrieve
// and Process are single-flight: while one runs, the other calls fail with
// ErrRunInProgress instead of queueing.
type Processor struct {
	session SymbolSession
	opts    Options
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	subs    map[int]chan State
	nextSub int
}

// NewProcessor returns a processor in the empty phase. session may be nil,
// in which case folders are never annotated.
func NewProcessor(session SymbolSession, opts Options) *Processor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		session: session,
		opts:    opts,
		logger:  logger.With("component", "ingest"),
		subs:    make(map[int]chan State),
	}
}

func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Subscribe returns a channel that receives every state published after the
// call, and a function that ends the subscription and closes the channel.
// A subscriber that falls behind loses its oldest undelivered states; the
// latest state is always delivered.
func (p *Processor) Subscribe(buffer int) (<-chan State, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan State, buffer)

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

// Locate selects a codebase root. It is rejected while a run is active.
func (p *Processor) Locate(loc codebase.Location) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applyLocked(Locate(loc))
}

func (p *Processor) apply(ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applyLocked(ev)
}

func (p *Processor) applyLocked(ev Event) error {
	next, err := Next(p.state, ev)
	if err != nil {
		return err
	}
	p.state = next
	p.logger.Debug("state", "phase", next.Phase.String(), "detail", next.String())
	for _, ch := range p.subs {
		publish(ch, next)
	}
	return nil
}

func publish(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// begin checks the gate for a new run and applies first when it opens.
func (p *Processor) begin(first Event, allowed ...Phase) (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur := p.state
	if cur.Phase == PhaseRetrieving || cur.Phase.processing() {
		return cur, ErrRunInProgress
	}
	for _, phase := range allowed {
		if cur.Phase == phase {
			if err := p.applyLocked(first); err != nil {
				return cur, err
			}
			return cur, nil
		}
	}
	if cur.Phase == PhaseEmpty {
		return cur, ErrNoCodebase
	}
	return cur, fmt.Errorf("%w: %s requires a new location", ErrInvalidTransition, cur.Phase)
}

// Retrieve reads the located codebase and annotates it with symbols. It
// returns the held folder without recomputation once retrieval finished.
//
// A folder read failure ends in failed. A symbol service that cannot be
// initialized is marked unavailable and the run ends in retrieved without
// annotations, and so does a connection or protocol failure while
// querying symbols. A decode failure or any other retrieval error ends in
// failed. Cancellation of ctx ends in canceled.
func (p *Processor) Retrieve(ctx context.Context) (*codebase.Folder, error) {
	p.mu.Lock()
	switch p.state.Phase {
	case PhaseRetrieved, PhaseProcessingCodebase, PhaseProcessingArchitecture:
		folder := p.state.Folder
		p.mu.Unlock()
		return folder, nil
	}
	p.mu.Unlock()

	cur, err := p.begin(Progress(ProgressReading), PhaseLocated)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			p.logger.Warn("retrieve ignored", "reason", err, "phase", cur.Phase.String())
		}
		return nil, err
	}
	loc := cur.Location
	log := p.logger.With("root", loc.Root(), "language", loc.Language())
	log.Info("retrieving codebase")

	folder, err := codebase.Read(ctx, loc, p.opts.Matcher)
	if err != nil {
		return nil, p.abort(ctx, log, "read folder", err)
	}

	if p.session == nil || !p.session.Available() {
		log.Info("symbol service unavailable, skipping annotation", "files", folder.FileCount())
		return folder, p.apply(Retrieved(folder))
	}

	if err := p.apply(Progress(ProgressConnecting)); err != nil {
		return nil, err
	}
	if err := p.session.Initialize(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, p.abort(ctx, log, "initialize symbol service", err)
		}
		log.Warn("symbol service failed to initialize, continuing without symbols", "error", err)
		p.session.MarkUnavailable()
		return folder, p.apply(Retrieved(folder))
	}

	if err := p.apply(Progress(ProgressSymbols)); err != nil {
		return nil, err
	}
	files := folder.AllFiles()
	paths := make([]string, len(files))
	for i, file := range files {
		paths[i] = file.Path
	}
	retriever := symbols.NewRetriever(p.session, loc.Root(), p.opts.Concurrency, log)
	results, err := retriever.Retrieve(ctx, paths)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, symbols.ErrUnknownKind) || !lsp.IsServiceError(err) {
			return nil, p.abort(ctx, log, "retrieve symbols", err)
		}
		log.Warn("symbol service failed during retrieval, continuing without symbols", "error", err)
		p.session.MarkUnavailable()
		for _, file := range files {
			file.Symbols = nil
		}
		return folder, p.apply(Retrieved(folder))
	}
	total := 0
	for i, file := range files {
		file.Symbols = results[i]
		total += symbols.Count(results[i])
	}

	log.Info("codebase retrieved", "files", len(files), "symbols", total)
	return folder, p.apply(Retrieved(folder))
}

// abort ends the active run in canceled when ctx is done, in failed
// otherwise, and returns the wrapped cause.
func (p *Processor) abort(ctx context.Context, log *slog.Logger, action string, cause error) error {
	wrapped := fmt.Errorf("%s: %w", action, cause)
	if ctx.Err() != nil {
		log.Info("run canceled", "action", action)
		if err := p.apply(Cancel(ctx.Err().Error())); err != nil {
			return errors.Join(wrapped, err)
		}
		return wrapped
	}
	log.Error("run failed", "action", action, "error", cause)
	if err := p.apply(Fail(wrapped.Error())); err != nil {
		return errors.Join(wrapped, err)
	}
	return wrapped
}

// Process runs fn as stage over the retrieved folder. The processor returns
// to retrieved when fn succeeds, and ends in failed or canceled otherwise.
func (p *Processor) Process(ctx context.Context, stage Phase, fn StageFunc) error {
	if !stage.processing() {
		return fmt.Errorf("%w: %s is not a processing stage", ErrInvalidTransition, stage)
	}
	cur, err := p.begin(Process(stage, 0, 0), PhaseRetrieved)
	if err != nil {
		return err
	}
	folder := cur.Folder
	log := p.logger.With("root", cur.Location.Root(), "stage", stage.String())
	log.Info("processing started")

	// finished is guarded by p.mu. Reports arriving after fn returned are
	// dropped so they cannot reopen the stage.
	finished := false
	report := func(completed, total int) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if finished {
			return
		}
		if err := p.applyLocked(Process(stage, completed, total)); err != nil {
			log.Debug("progress dropped", "error", err)
		}
	}
	err = fn(ctx, folder, report)
	p.mu.Lock()
	finished = true
	p.mu.Unlock()
	if err != nil {
		return p.abort(ctx, log, stage.String(), err)
	}
	if err := ctx.Err(); err != nil {
		return p.abort(ctx, log, stage.String(), err)
	}

	log.Info("processing finished")
	return p.apply(Retrieved(folder))
}
