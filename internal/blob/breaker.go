package blob

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/anthanhphan/gosdk/logger"

	"tmpshare/internal/lifecycle"
)

// CircuitState is the state of a Breaker.
type CircuitState int

const (
	// StateClosed: calls flow normally.
	StateClosed CircuitState = iota
	// StateOpen: calls fail fast until the timeout elapses.
	StateOpen
	// StateHalfOpen: one probe call is let through.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("blob store circuit breaker is open")

// Breaker stops hammering a remote blob store that keeps failing.
type Breaker struct {
	mu sync.Mutex

	maxFailures uint32
	timeout     time.Duration
	now         func() time.Time

	state           CircuitState
	failures        uint32
	lastFailureTime time.Time
	probing         bool
}

// NewBreaker opens after maxFailures consecutive failures and probes again
// after timeout.
func NewBreaker(maxFailures uint32, timeout time.Duration) *Breaker {
	if maxFailures == 0 {
		maxFailures = 1
	}
	return &Breaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
		state:       StateClosed,
	}
}

// State returns the current state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn unless the circuit is open. Errors wrapping
// fs.ErrNotExist are answers, not outages, and do not count as failures.
// Cancellation, deadlines and oversize request bodies are the caller's
// doing and leave the breaker untouched.
func (b *Breaker) Execute(fn func() error) error {
	return b.execute(fn, nil)
}

// execute is Execute with an extra test for errors the caller caused.
func (b *Breaker) execute(fn func() error, callerFault func(error) bool) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(classify(err, callerFault))
	return err
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeNeutral
)

func classify(err error, callerFault func(error) bool) outcome {
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, fs.ErrNotExist):
		return outcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeNeutral
	case errors.As(err, &tooLarge):
		return outcomeNeutral
	case callerFault != nil && callerFault(err):
		return outcomeNeutral
	}
	return outcomeFailure
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailureTime) < b.timeout {
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.probing = false
		logger.Infow("circuit_breaker_half_open", "service", "blob", "timeout", b.timeout.String())
		fallthrough
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(o outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch o {
	case outcomeNeutral:
		// Says nothing about the backend; free the probe slot.
		b.probing = false
		return
	case outcomeSuccess:
		if b.state == StateHalfOpen {
			logger.Infow("circuit_breaker_closed", "service", "blob")
		}
		b.state = StateClosed
		b.failures = 0
		b.probing = false
		return
	}

	b.failures++
	b.lastFailureTime = b.now()
	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		if b.state != StateOpen {
			logger.Warnw("circuit_breaker_opened", "service", "blob", "failures", b.failures, "timeout", b.timeout.String())
		}
		b.state = StateOpen
		b.probing = false
	}
}

// Guarded wraps a BlobStore with a Breaker.
type Guarded struct {
	inner   lifecycle.BlobStore
	breaker *Breaker
}

// NewGuarded wraps inner.
func NewGuarded(inner lifecycle.BlobStore, breaker *Breaker) *Guarded {
	return &Guarded{inner: inner, breaker: breaker}
}

// Put does not count a failure to read r against the backend.
func (g *Guarded) Put(ctx context.Context, name string, r io.Reader) (n int64, err error) {
	src := &sourceReader{r: r}
	err = g.breaker.execute(func() error {
		n, err = g.inner.Put(ctx, name, src)
		return err
	}, func(error) bool { return src.err != nil })
	return n, err
}

func (g *Guarded) Open(ctx context.Context, name string) (rc io.ReadCloser, size int64, err error) {
	err = g.breaker.Execute(func() error {
		rc, size, err = g.inner.Open(ctx, name)
		return err
	})
	return rc, size, err
}

func (g *Guarded) Exists(ctx context.Context, name string) (ok bool, err error) {
	err = g.breaker.Execute(func() error {
		ok, err = g.inner.Exists(ctx, name)
		return err
	})
	return ok, err
}

func (g *Guarded) Delete(ctx context.Context, name string) error {
	return g.breaker.Execute(func() error {
		return g.inner.Delete(ctx, name)
	})
}

// sourceReader remembers the first read error of the upload stream.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}
