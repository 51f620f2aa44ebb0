package controller

import (
	"context"
	"sync"
	"time"

	"go-cane-inspector/internal/client"
	apperrors "go-cane-inspector/internal/errors"
	"go-cane-inspector/internal/observer"
	"go-cane-inspector/internal/render"
	"go-cane-inspector/internal/request"
	"go-cane-inspector/internal/selection"
	"go-cane-inspector/pkg/models"
	"go-cane-inspector/pkg/validation"
)

// DefaultSubmitTimeout bounds a single submission
const DefaultSubmitTimeout = 60 * time.Second

// Outcome is delivered once per submission
type Outcome struct {
	RequestID string
	Result    *models.AnalysisResult
	Err       error
	// Stale is set when the outcome was superseded and not applied
	Stale bool
}

// Snapshot is an immutable view of the controller for hosts to display
type Snapshot struct {
	State             State
	SubmissionEnabled bool
	Selection         *selection.Selection
	Parameters        models.AnalysisParameters
	Result            *models.AnalysisResult
	Display           *render.DisplayModel
	LastError         error
}

// Controller owns the selection/result pair and the state machine. All
// mutation goes through its methods.
type Controller struct {
	mu    sync.Mutex
	pubMu sync.Mutex

	store    *selection.Store
	analyzer client.Analyzer
	events   observer.Subject
	timeout  time.Duration

	state       State
	returnState State
	params      models.AnalysisParameters
	result      *models.AnalysisResult
	display     *render.DisplayModel
	lastErr     error
	submitGen   uint64
}

// Option configures a Controller
type Option func(*config)

type config struct {
	events       observer.Subject
	timeout      time.Duration
	params       models.AnalysisParameters
	storeOptions []selection.Option
}

// WithPublisher routes controller events to p
func WithPublisher(p observer.Subject) Option {
	return func(c *config) { c.events = p }
}

// WithSubmitTimeout bounds each submission; expiry is a network error
func WithSubmitTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithParameters sets the initial parameter values
func WithParameters(p models.AnalysisParameters) Option {
	return func(c *config) { c.params = p }
}

// WithStoreOptions passes options through to the selection store
func WithStoreOptions(opts ...selection.Option) Option {
	return func(c *config) { c.storeOptions = append(c.storeOptions, opts...) }
}

// New creates a controller in the idle state
func New(validator *validation.FileValidator, analyzer client.Analyzer, opts ...Option) *Controller {
	cfg := config{
		timeout: DefaultSubmitTimeout,
		params:  models.DefaultParameters(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.events == nil {
		cfg.events = observer.NewEventPublisher()
	}

	c := &Controller{
		analyzer: analyzer,
		events:   cfg.events,
		timeout:  cfg.timeout,
		state:    StateIdle,
		params:   cfg.params,
	}
	storeOpts := append([]selection.Option{selection.WithPreviewFunc(c.onPreview)}, cfg.storeOptions...)
	c.store = selection.NewStore(validator, storeOpts...)
	return c
}

// Select validates f and makes it the active selection. Validation errors
// leave everything unchanged. Selecting while an analysis is in flight is
// rejected with a busy error.
func (c *Controller) Select(f selection.File) (selection.Selection, error) {
	c.lock()

	if c.state == StateAnalyzing {
		err := apperrors.NewBusyError("select a new image")
		c.unlockAndPublish(rejected(f, err))
		return selection.Selection{}, err
	}

	sel, err := c.store.Select(f)
	if err != nil {
		c.unlockAndPublish(rejected(f, err))
		return selection.Selection{}, err
	}

	from := c.state
	c.state = StateFileSelected
	c.result = nil
	c.display = nil
	c.lastErr = nil

	c.unlockAndPublish([]observer.Event{
		{
			EventType:  observer.SelectionAccepted,
			FileName:   f.Name,
			Generation: sel.Generation,
			Success:    true,
			Metadata: map[string]interface{}{
				"mime_type":  sel.MIMEType,
				"size_bytes": sel.SizeBytes,
			},
		},
		transition(from, StateFileSelected),
	})
	return sel, nil
}

// Submit starts analysing the active selection with the current parameters.
// The returned channel yields exactly one Outcome.
func (c *Controller) Submit(ctx context.Context) (<-chan Outcome, error) {
	c.lock()

	switch c.state {
	case StateIdle:
		c.unlock()
		return nil, apperrors.NewNoSelectionError()
	case StateAnalyzing:
		c.unlock()
		return nil, apperrors.NewBusyError("submit")
	}

	sel, ok := c.store.Current()
	if !ok {
		c.unlock()
		return nil, apperrors.NewNoSelectionError()
	}

	req, err := request.Build(&sel, c.params)
	if err != nil {
		c.unlock()
		return nil, err
	}

	c.submitGen++
	gen := c.submitGen
	c.returnState = c.state
	from := c.state
	c.state = StateAnalyzing
	c.lastErr = nil

	done := make(chan Outcome, 1)

	c.unlockAndPublish([]observer.Event{
		{
			EventType:  observer.AnalysisStarted,
			FileName:   sel.File.Name,
			Generation: sel.Generation,
			RequestID:  req.ID,
			Success:    true,
			Metadata: map[string]interface{}{
				"model_type":     req.Parameters.ModelType,
				"conf_threshold": req.Parameters.ConfidenceThreshold,
			},
		},
		transition(from, StateAnalyzing),
	})

	// the submission outlives the caller's request scope; only the timeout ends it
	runCtx := context.WithoutCancel(ctx)
	go c.run(runCtx, gen, req, done)

	return done, nil
}

// SubmitAndWait submits and blocks until the outcome arrives or ctx ends.
// When ctx ends first the submission keeps running and its result is still
// applied.
func (c *Controller) SubmitAndWait(ctx context.Context) (*models.AnalysisResult, error) {
	done, err := c.Submit(ctx)
	if err != nil {
		return nil, err
	}
	select {
	case out := <-done:
		if out.Stale {
			return nil, apperrors.NewInternalError("analysis result was superseded", nil)
		}
		return out.Result, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Controller) run(ctx context.Context, gen uint64, req request.AnalysisRequest, done chan<- Outcome) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	result, err := c.analyzer.Submit(ctx, req)
	if err != nil {
		if _, ok := apperrors.As(err); !ok {
			err = apperrors.NewNetworkError("analysis request failed", err)
		}
	}

	done <- c.complete(gen, req, result, err, time.Since(start))
	close(done)
}

// complete applies a submission outcome unless it has been superseded
func (c *Controller) complete(gen uint64, req request.AnalysisRequest, result *models.AnalysisResult, err error, elapsed time.Duration) Outcome {
	c.lock()

	out := Outcome{RequestID: req.ID, Result: result, Err: err}

	if gen != c.submitGen || c.state != StateAnalyzing || req.Selection.Generation != c.store.Generation() {
		out.Stale = true
		c.unlockAndPublish([]observer.Event{{
			EventType:  observer.StaleResultDiscarded,
			Generation: req.Selection.Generation,
			RequestID:  req.ID,
			Metadata:   map[string]interface{}{"kind": "analysis"},
		}})
		return out
	}

	if err != nil {
		appErr, _ := apperrors.As(err)
		back := c.returnState
		c.state = back
		c.lastErr = err

		c.unlockAndPublish([]observer.Event{
			{
				EventType:      observer.AnalysisFailed,
				FileName:       req.Selection.File.Name,
				Generation:     req.Selection.Generation,
				RequestID:      req.ID,
				ProcessingTime: elapsed,
				ErrorType:      string(appErr.Type),
				ErrorMessage:   appErr.UserMessage(),
			},
			transition(StateAnalyzing, StateError),
			transition(StateError, back),
		})
		return out
	}

	display := render.Render(*result)
	c.result = result
	c.display = &display
	c.state = StateResultsShown

	c.unlockAndPublish([]observer.Event{
		{
			EventType:      observer.AnalysisCompleted,
			FileName:       req.Selection.File.Name,
			Generation:     req.Selection.Generation,
			RequestID:      req.ID,
			ProcessingTime: elapsed,
			Success:        true,
			Metadata: map[string]interface{}{
				"status":     result.Report.Status,
				"detections": len(result.Report.Detections),
			},
		},
		transition(StateAnalyzing, StateResultsShown),
	})
	return out
}

func (c *Controller) onPreview(sel selection.Selection, err error, stale bool) {
	c.lock()

	ev := observer.Event{
		FileName:   sel.File.Name,
		Generation: sel.Generation,
	}
	switch {
	case stale:
		ev.EventType = observer.StaleResultDiscarded
		ev.Metadata = map[string]interface{}{"kind": "preview"}
	case err != nil:
		ev.EventType = observer.PreviewFailed
		ev.ErrorType = string(apperrors.ErrorTypePreviewDecode)
		ev.ErrorMessage = err.Error()
	default:
		ev.EventType = observer.PreviewReady
		ev.Success = true
		if sel.Preview != nil {
			ev.Metadata = map[string]interface{}{
				"width":  sel.Preview.Width,
				"height": sel.Preview.Height,
			}
		}
	}

	c.unlockAndPublish([]observer.Event{ev})
}

// SetParameters replaces both parameters. Changes never affect a
// submission already in flight.
func (c *Controller) SetParameters(p models.AnalysisParameters) error {
	return c.updateParameters(func(models.AnalysisParameters) models.AnalysisParameters { return p })
}

// SetModelType changes the model selector
func (c *Controller) SetModelType(m models.ModelType) error {
	return c.updateParameters(func(p models.AnalysisParameters) models.AnalysisParameters {
		return p.WithModelType(m)
	})
}

// SetConfidenceThreshold changes the threshold control
func (c *Controller) SetConfidenceThreshold(v float64) error {
	return c.updateParameters(func(p models.AnalysisParameters) models.AnalysisParameters {
		return p.WithConfidenceThreshold(v)
	})
}

// updateParameters applies fn to the current parameters under the lock
func (c *Controller) updateParameters(fn func(models.AnalysisParameters) models.AnalysisParameters) error {
	c.lock()

	p := fn(c.params)
	if err := p.Validate(); err != nil {
		c.unlock()
		return apperrors.NewValidationError("invalid analysis parameters", err)
	}

	c.params = p
	c.unlockAndPublish([]observer.Event{{
		EventType: observer.ParametersChanged,
		Success:   true,
		Metadata: map[string]interface{}{
			"model_type":     p.ModelType,
			"conf_threshold": p.ConfidenceThreshold,
		},
	}})
	return nil
}

// Parameters returns the current parameter values
func (c *Controller) Parameters() models.AnalysisParameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SubmissionEnabled reports whether the submit control is active
func (c *Controller) SubmissionEnabled() bool {
	return c.State().SubmissionEnabled()
}

// LastError returns the most recent submission error, cleared by the next
// selection or submission.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Display returns the rendered result while results are shown or a
// re-analysis of them is in flight.
func (c *Controller) Display() (*render.DisplayModel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.display, c.display != nil
}

// Snapshot returns a consistent view of the controller
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:             c.state,
		SubmissionEnabled: c.state.SubmissionEnabled(),
		Parameters:        c.params,
		Result:            c.result,
		Display:           c.display,
		LastError:         c.lastErr,
	}
	if sel, ok := c.store.Current(); ok {
		snap.Selection = &sel
	}
	return snap
}

// WaitPreview blocks until the active selection's preview decode finished
func (c *Controller) WaitPreview(ctx context.Context) (selection.Selection, bool, error) {
	return c.store.WaitPreview(ctx)
}

// lock takes the publish lock and then the state lock. Mutators hold the
// publish lock until their events are delivered, so events reach observers
// in mutation order. Readers take only c.mu, which lets observers read the
// controller; an observer that mutates it deadlocks.
func (c *Controller) lock() {
	c.pubMu.Lock()
	c.mu.Lock()
}

func (c *Controller) unlock() {
	c.mu.Unlock()
	c.pubMu.Unlock()
}

// unlockAndPublish releases c.mu, publishes events in order and then
// releases the publish lock
func (c *Controller) unlockAndPublish(events []observer.Event) {
	c.mu.Unlock()
	defer c.pubMu.Unlock()

	for _, ev := range events {
		c.events.NotifyObservers(context.Background(), ev)
	}
}

func transition(from, to State) observer.Event {
	return observer.Event{
		EventType: observer.StateChanged,
		From:      from.String(),
		To:        to.String(),
		Success:   true,
	}
}

func rejected(f selection.File, err error) []observer.Event {
	ev := observer.Event{
		EventType: observer.SelectionRejected,
		FileName:  f.Name,
	}
	if appErr, ok := apperrors.As(err); ok {
		ev.ErrorType = string(appErr.Type)
		ev.ErrorMessage = appErr.UserMessage()
	} else {
		ev.ErrorMessage = err.Error()
	}
	return []observer.Event{ev}
}
