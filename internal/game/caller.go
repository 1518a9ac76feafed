package game

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// caller is the auto-calling scheduler of one room: a single goroutine
// ticking at the room interval. Each tick re-enters the room's serialized
// mutation path and re-checks phase and mode under the lock, so a stop
// requested by a concurrent win, reset or teardown is always observed
// before another number can land.
type caller struct {
	code     string
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
}

func (c *caller) cancel() {
	c.once.Do(func() { close(c.stop) })
}

func (o *Orchestrator) run(c *caller) {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			if !o.autoCall(c.code) {
				o.dropCaller(c.code, c)
				return
			}
		}
	}
}

// startCaller replaces any scheduler already registered for the room.
func (o *Orchestrator) startCaller(code string, interval time.Duration) {
	o.cmu.Lock()
	if old, ok := o.callers[code]; ok {
		old.cancel()
	}
	c := &caller{code: code, interval: interval, stop: make(chan struct{})}
	o.callers[code] = c
	o.cmu.Unlock()
	go o.run(c)
	log.Debug().Str("module", "game").Str("room", code).Dur("interval", interval).Msg("caller started")
}

// stopCaller cancels the room's scheduler if one is registered.
func (o *Orchestrator) stopCaller(code string) {
	o.cmu.Lock()
	if c, ok := o.callers[code]; ok {
		c.cancel()
		delete(o.callers, code)
	}
	o.cmu.Unlock()
}

// dropCaller unregisters c unless it has already been replaced.
func (o *Orchestrator) dropCaller(code string, c *caller) {
	o.cmu.Lock()
	if cur, ok := o.callers[code]; ok && cur == c {
		delete(o.callers, code)
	}
	o.cmu.Unlock()
}

// Shutdown cancels every live scheduler, for process exit.
func (o *Orchestrator) Shutdown() {
	o.cmu.Lock()
	for code, c := range o.callers {
		c.cancel()
		delete(o.callers, code)
	}
	o.cmu.Unlock()
}
