package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

// supervisor manages the app's background goroutines: named starts, panic
// recovery, and a timeout-aware wait on shutdown.
type supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger
	wg     sync.WaitGroup

	mu       sync.Mutex
	firstErr error
}

func newSupervisor(parent context.Context, log logx.Logger) *supervisor {
	ctx, cancel := context.WithCancel(parent)
	if log.IsZero() {
		log = logx.Nop()
	}
	return &supervisor{ctx: ctx, cancel: cancel, log: log}
}

func (s *supervisor) Context() context.Context { return s.ctx }

// Go starts fn on a new goroutine. A panic or returned error is logged and
// recorded; the first error cancels the supervisor context so siblings can
// wind down.
func (s *supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		start := time.Now()

		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
					s.log.Error("goroutine panicked",
						logx.String("name", name),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			err = fn(s.ctx)
		}()

		if err != nil && s.ctx.Err() == nil {
			s.log.Error("goroutine failed",
				logx.String("name", name),
				logx.Duration("ran", time.Since(start)),
				logx.Err(err))
			s.recordErr(err)
			s.cancel()
			return
		}
		s.log.Debug("goroutine stopped",
			logx.String("name", name),
			logx.Duration("ran", time.Since(start)))
	}()
}

func (s *supervisor) recordErr(err error) {
	s.mu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.mu.Unlock()
}

// FirstErr returns the first goroutine failure, if any.
func (s *supervisor) FirstErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// Stop cancels all goroutines and waits for them, bounded by ctx.
func (s *supervisor) Stop(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
