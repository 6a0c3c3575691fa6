package watchdog

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher fans events out to every subscribed handler. Each handler invocation runs on its
// own goroutine so a slow or failing handler never blocks ingestion or its peers. Events about
// the same player reach a given handler in the order they were dispatched.
type Dispatcher struct {
	log      *zap.Logger
	mu       sync.Mutex
	handlers []Handler
	// tails holds the completion channel of the last invocation queued per handler and player.
	tails map[string]chan struct{}
	wg    sync.WaitGroup
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{log: logger.Named("dispatch"), tails: map[string]chan struct{}{}}
}

func (d *Dispatcher) Subscribe(handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers = append(d.handlers, handler)
}

func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for idx, handler := range d.handlers {
		var (
			key  string
			prev chan struct{}
			done chan struct{}
		)

		if evt.PlayerID != "" {
			key = strconv.Itoa(idx) + ":" + evt.PlayerID
			prev = d.tails[key]
			done = make(chan struct{})
			d.tails[key] = done
		}

		d.wg.Add(1)

		go d.run(ctx, handler, evt, key, prev, done)
	}
}

func (d *Dispatcher) run(ctx context.Context, handler Handler, evt Event, key string, prev chan struct{},
	done chan struct{},
) {
	defer d.wg.Done()
	defer d.release(key, done)
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Event handler panicked",
				zap.String("server", evt.Server), zap.Stringer("type", evt.Type), zap.Any("panic", r))
		}
	}()

	if prev != nil {
		<-prev
	}

	handler.Handle(ctx, evt)
}

func (d *Dispatcher) release(key string, done chan struct{}) {
	if done == nil {
		return
	}

	close(done)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tails[key] == done {
		delete(d.tails, key)
	}
}

// Wait blocks until every in flight handler has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
