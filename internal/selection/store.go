package selection

import (
	"context"
	"sync"

	"go-cane-inspector/pkg/validation"
)

// PreviewState tracks the asynchronous preview decode of a selection
type PreviewState string

const (
	PreviewPending PreviewState = "pending"
	PreviewReady   PreviewState = "ready"
	PreviewFailed  PreviewState = "failed"
)

// Selection is the single currently chosen image. Values are never
// mutated after publication; a finished preview yields a new value.
type Selection struct {
	File         File
	MIMEType     string
	SizeBytes    int64
	Generation   uint64
	PreviewState PreviewState
	Preview      *Preview
}

// PreviewDataURI returns the preview, or "" while absent
func (s Selection) PreviewDataURI() string {
	if s.Preview == nil {
		return ""
	}
	return s.Preview.DataURI
}

// PreviewFunc observes a preview decode completion. stale is true when a
// newer selection replaced this one before the decode finished.
type PreviewFunc func(sel Selection, err error, stale bool)

// Store holds at most one selection
type Store struct {
	mu         sync.Mutex
	validator  *validation.FileValidator
	decode     func(File) (*Preview, error)
	onPreview  PreviewFunc
	current    *Selection
	generation uint64
	done       chan struct{}
}

// Option configures a Store
type Option func(*Store)

// WithPreviewFunc registers a preview completion observer
func WithPreviewFunc(fn PreviewFunc) Option {
	return func(s *Store) { s.onPreview = fn }
}

// WithDecoder replaces the preview decoder
func WithDecoder(fn func(File) (*Preview, error)) Option {
	return func(s *Store) { s.decode = fn }
}

// NewStore creates an empty store
func NewStore(validator *validation.FileValidator, opts ...Option) *Store {
	s := &Store{
		validator: validator,
		decode:    DecodePreview,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select validates f and, on success, replaces the current selection and
// starts decoding its preview in the background. On validation failure the
// store is left unchanged.
func (s *Store) Select(f File) (Selection, error) {
	if err := s.validator.Validate(f.MIMEType, f.Size()); err != nil {
		return Selection{}, err
	}

	s.mu.Lock()
	s.generation++
	sel := &Selection{
		File:         f,
		MIMEType:     f.MIMEType,
		SizeBytes:    f.Size(),
		Generation:   s.generation,
		PreviewState: PreviewPending,
	}
	s.current = sel
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	go s.runDecode(*sel, done)

	return *sel, nil
}

func (s *Store) runDecode(sel Selection, done chan struct{}) {
	defer close(done)

	preview, err := s.decode(sel.File)
	updated, stale := s.completePreview(sel.Generation, preview, err)
	if s.onPreview != nil {
		if stale {
			updated = sel
		}
		s.onPreview(updated, err, stale)
	}
}

// completePreview applies a decode result if generation is still current
func (s *Store) completePreview(generation uint64, preview *Preview, err error) (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.Generation != generation {
		return Selection{}, true
	}

	next := *s.current
	if err != nil {
		next.PreviewState = PreviewFailed
		next.Preview = nil
	} else {
		next.PreviewState = PreviewReady
		next.Preview = preview
	}
	s.current = &next
	return next, false
}

// Current returns the active selection, if any
func (s *Store) Current() (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Selection{}, false
	}
	return *s.current, true
}

// Generation returns the generation of the newest selection, 0 if none
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// WaitPreview blocks until the current selection's preview decode has
// finished and returns the selection as it stands then.
func (s *Store) WaitPreview(ctx context.Context) (Selection, bool, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return Selection{}, false, ctx.Err()
		}
	}

	sel, ok := s.Current()
	return sel, ok, nil
}
