package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is one controller occurrence: a state transition or a completion
type Event struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	From           string                 `json:"from,omitempty"`
	To             string                 `json:"to,omitempty"`
	FileName       string                 `json:"file_name,omitempty"`
	Generation     uint64                 `json:"generation,omitempty"`
	RequestID      string                 `json:"request_id,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time,omitempty"`
	Success        bool                   `json:"success"`
	ErrorType      string                 `json:"error_type,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of controller event
type EventType string

const (
	SelectionAccepted    EventType = "selection_accepted"
	SelectionRejected    EventType = "selection_rejected"
	PreviewReady         EventType = "preview_ready"
	PreviewFailed        EventType = "preview_failed"
	AnalysisStarted      EventType = "analysis_started"
	AnalysisCompleted    EventType = "analysis_completed"
	AnalysisFailed       EventType = "analysis_failed"
	StaleResultDiscarded EventType = "stale_result_discarded"
	StateChanged         EventType = "state_changed"
	ParametersChanged    EventType = "parameters_changed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event Event)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event Event)
}

// LoggingObserver logs controller events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event Event) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"success":    event.Success,
	}
	if event.From != "" || event.To != "" {
		fields["from"] = event.From
		fields["to"] = event.To
	}
	if event.FileName != "" {
		fields["file_name"] = event.FileName
	}
	if event.Generation != 0 {
		fields["generation"] = event.Generation
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.ProcessingTime > 0 {
		fields["processing_time_ms"] = event.ProcessingTime.Milliseconds()
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
		fields["error_type"] = event.ErrorType
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case SelectionAccepted:
		entry.Info("Image selected")
	case SelectionRejected:
		entry.Warn("Image rejected")
	case PreviewReady:
		entry.Debug("Preview decoded")
	case PreviewFailed:
		entry.Warn("Preview could not be decoded")
	case AnalysisStarted:
		entry.Info("Image analysis started")
	case AnalysisCompleted:
		entry.Info("Image analysis completed")
	case AnalysisFailed:
		entry.Error("Image analysis failed")
	case StaleResultDiscarded:
		entry.Debug("Stale result discarded")
	case StateChanged:
		entry.Debug("State changed")
	default:
		entry.Info("Controller event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver counts controller events
type MetricsObserver struct {
	mu                  sync.RWMutex
	selections          int64
	rejectedSelections  int64
	previewFailures     int64
	totalAnalyses       int64
	successfulAnalyses  int64
	failedAnalyses      int64
	staleDiscards       int64
	totalProcessingTime time.Duration
	failuresByType      map[string]int64
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{failuresByType: make(map[string]int64)}
}

// OnEvent handles events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case SelectionAccepted:
		o.selections++
	case SelectionRejected:
		o.rejectedSelections++
	case PreviewFailed:
		o.previewFailures++
	case AnalysisStarted:
		o.totalAnalyses++
	case AnalysisCompleted:
		o.successfulAnalyses++
		o.totalProcessingTime += event.ProcessingTime
	case AnalysisFailed:
		o.failedAnalyses++
		o.failuresByType[event.ErrorType]++
	case StaleResultDiscarded:
		o.staleDiscards++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.successfulAnalyses > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.successfulAnalyses)
	}

	failures := make(map[string]int64, len(o.failuresByType))
	for k, v := range o.failuresByType {
		failures[k] = v
	}

	return map[string]interface{}{
		"selections":             o.selections,
		"rejected_selections":    o.rejectedSelections,
		"preview_failures":       o.previewFailures,
		"total_analyses":         o.totalAnalyses,
		"successful_analyses":    o.successfulAnalyses,
		"failed_analyses":        o.failedAnalyses,
		"failures_by_type":       failures,
		"stale_discards":         o.staleDiscards,
		"avg_processing_time_ms": avgProcessingTime.Milliseconds(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers event to every observer in subscription order.
// Delivery is synchronous so observers see events in the order they were
// published.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event Event) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, obs := range observers {
		notify(ctx, obs, event)
	}
}

func notify(ctx context.Context, obs Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			// a misbehaving observer must not take the controller down
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}

// RecordingObserver keeps every event it sees
type RecordingObserver struct {
	name   string
	mu     sync.Mutex
	events []Event
}

// NewRecordingObserver creates a recorder; name must be unique per publisher
func NewRecordingObserver(name string) *RecordingObserver {
	return &RecordingObserver{name: name}
}

// OnEvent records the event
func (o *RecordingObserver) OnEvent(ctx context.Context, event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

// GetObserverName returns the observer name
func (o *RecordingObserver) GetObserverName() string {
	return o.name
}

// Events returns a copy of the recorded events
func (o *RecordingObserver) Events() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Event(nil), o.events...)
}
