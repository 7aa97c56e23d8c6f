package event

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/life-stream-dev/afk-bridge/internal/logger"
)

const hookTimeout = 10 * time.Second

type Callable interface {
	Invoke(ctx context.Context) error
}

// CallableFunc adapts a plain function to Callable.
type CallableFunc func(ctx context.Context) error

func (f CallableFunc) Invoke(ctx context.Context) error { return f(ctx) }

type Cleaner struct {
	cleaners       []Callable
	mu             sync.Mutex
	initOnce       sync.Once
	cleanOnce      sync.Once
	cleaning       bool
	loggerShutdown Callable
	done           chan struct{}
	err            error
}

func NewCleaner() *Cleaner {
	return &Cleaner{done: make(chan struct{})}
}

// Add registers a hook. Hooks run in registration order.
func (c *Cleaner) Add(callable Callable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cleaning {
		logger.Debug("Cleaner is already shutting down, ignoring new cleaner")
		return
	}
	c.cleaners = append(c.cleaners, callable)
}

// Init starts cleanup when ctx ends or SIGINT/SIGTERM arrives.
// loggerShutdown runs after every other hook.
func (c *Cleaner) Init(ctx context.Context, loggerShutdown Callable) {
	c.initOnce.Do(func() {
		c.loggerShutdown = loggerShutdown
		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

		go func() {
			<-sigCtx.Done()
			stop()
			logger.Info("Received interrupt signal, shutting down")
			c.Clean()
		}()
	})
}

// Clean runs every hook once, each with its own timeout, then the logger hook.
func (c *Cleaner) Clean() {
	c.cleanOnce.Do(func() {
		defer close(c.done)

		c.mu.Lock()
		c.cleaning = true // 标记为清理中，阻止后续Add操作
		cleanersCopy := make([]Callable, len(c.cleaners))
		copy(cleanersCopy, c.cleaners)
		c.mu.Unlock()

		logger.DebugF("Starting cleanup of %d registered functions", len(cleanersCopy))

		var errs []error
		for i, callable := range cleanersCopy {
			func(idx int, cb Callable) { // 使用匿名函数确保defer在每次迭代执行
				logger.DebugF("Invoking cleaner #%d (%T)", idx+1, cb)
				timeoutCtx, cancelFunc := context.WithTimeout(context.Background(), hookTimeout)
				defer cancelFunc()
				if err := cb.Invoke(timeoutCtx); err != nil {
					logger.ErrorF("Cleaner #%d (%T) failed: %v", idx+1, cb, err)
					errs = append(errs, fmt.Errorf("cleaner #%d: %w", idx+1, err))
				}
			}(i, callable)
		}

		if len(errs) > 0 {
			logger.ErrorF("%d errors occurred during cleanup", len(errs))
		} else {
			logger.Debug("All cleaners executed successfully")
		}
		logger.Info("Cleanup finished, bridge offline")
		c.err = errors.Join(errs...)

		if c.loggerShutdown == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := c.loggerShutdown.Invoke(shutdownCtx); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "LOGGER SHUTDOWN ERROR: %v\n", err)
		}
	})
}

// Done is closed once cleanup has finished.
func (c *Cleaner) Done() <-chan struct{} {
	return c.done
}

// Err returns the joined hook errors after Done is closed.
func (c *Cleaner) Err() error {
	<-c.done
	return c.err
}
