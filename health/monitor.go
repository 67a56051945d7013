package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/petal-labs/npmsentinel/tool"
	"github.com/petal-labs/npmsentinel/upstream"
)

// Prober performs one reachability check. *upstream.Client satisfies it.
type Prober interface {
	Probe(ctx context.Context, name string) (upstream.ProbeResult, error)
}

// State is the last known condition of one upstream.
type State struct {
	Upstream            string
	Up                  bool
	Result              upstream.ProbeResult
	Since               time.Time
	Checks              int
	ConsecutiveFailures int
}

// Event captures one probe evaluated by the monitor.
type Event struct {
	Upstream string
	Previous State
	Current  State
	Changed  bool
}

// EventHandler handles monitor events.
type EventHandler func(event Event)

// Config controls a Monitor.
type Config struct {
	Prober Prober
	// Upstreams defaults to upstream.Names().
	Upstreams []string
	// Schedule is a standard cron expression or descriptor such as
	// "@every 10m". Empty disables background probing.
	Schedule string
	Now      func() time.Time
	Logger   *slog.Logger
	OnEvent  EventHandler
}

// Monitor probes upstreams on a schedule and serves the latest state.
type Monitor struct {
	prober    Prober
	upstreams []string
	schedule  cron.Schedule
	now       func() time.Time
	logger    *slog.Logger
	onEvent   EventHandler

	stateMu sync.RWMutex
	states  map[string]State

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor validates cfg and creates a Monitor.
func NewMonitor(cfg Config) (*Monitor, error) {
	if cfg.Prober == nil {
		return nil, errors.New("health: prober is nil")
	}
	if len(cfg.Upstreams) == 0 {
		cfg.Upstreams = upstream.Names()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OnEvent == nil {
		cfg.OnEvent = func(Event) {}
	}

	var schedule cron.Schedule
	if expr := strings.TrimSpace(cfg.Schedule); expr != "" {
		parsed, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("health: invalid schedule %q: %w", expr, err)
		}
		schedule = parsed
	}

	return &Monitor{
		prober:    cfg.Prober,
		upstreams: append([]string(nil), cfg.Upstreams...),
		schedule:  schedule,
		now:       cfg.Now,
		logger:    cfg.Logger,
		onEvent:   cfg.OnEvent,
		states:    make(map[string]State, len(cfg.Upstreams)),
	}, nil
}

// Probe checks one upstream now and records the result. It satisfies the
// npm service's Prober so on-demand status checks refresh the snapshot.
func (m *Monitor) Probe(ctx context.Context, name string) (upstream.ProbeResult, error) {
	result, err := m.prober.Probe(ctx, name)
	if err != nil {
		return result, err
	}
	m.record(name, result)
	return result, nil
}

// RunOnce probes every configured upstream sequentially.
func (m *Monitor) RunOnce(ctx context.Context) {
	for _, name := range m.upstreams {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.Probe(ctx, name); err != nil {
			m.logger.Warn("health probe rejected", "upstream", name, "error", err)
		}
	}
}

// Snapshot returns the last known state of every probed upstream in
// configuration order. Upstreams never probed are omitted.
func (m *Monitor) Snapshot() []State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()

	out := make([]State, 0, len(m.states))
	for _, name := range m.upstreams {
		if state, ok := m.states[name]; ok {
			out = append(out, state)
		}
	}
	return out
}

// Lookup returns the last known state of one upstream.
func (m *Monitor) Lookup(name string) (State, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	state, ok := m.states[name]
	return state, ok
}

func (m *Monitor) record(name string, result upstream.ProbeResult) {
	up := result.Up()
	checkedAt := result.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = m.now()
	}

	m.stateMu.Lock()
	previous, known := m.states[name]
	current := State{
		Upstream: name,
		Up:       up,
		Result:   result,
		Since:    previous.Since,
		Checks:   previous.Checks + 1,
	}
	changed := known && previous.Up != up
	if !known || changed {
		current.Since = checkedAt
	}
	if !up {
		current.ConsecutiveFailures = previous.ConsecutiveFailures + 1
	}
	m.states[name] = current
	m.stateMu.Unlock()

	tool.EmitHealth(tool.HealthObservation{
		Upstream:   name,
		Up:         up,
		StatusCode: result.StatusCode,
		Duration:   result.Latency,
		Changed:    changed,
		ErrorCode:  tool.ErrorCode(result.Err),
	})

	switch {
	case changed && !up:
		m.logger.Warn("upstream down", "upstream", name, "status", result.StatusCode, "error", result.Err)
	case changed:
		m.logger.Info("upstream recovered", "upstream", name, "latency", result.Latency)
	default:
		m.logger.Debug("upstream probed", "upstream", name, "up", up, "latency", result.Latency)
	}

	m.onEvent(Event{Upstream: name, Previous: previous, Current: current, Changed: changed})
}

// Start begins scheduled probing. It probes once immediately. Without a
// schedule Start does nothing.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return errors.New("health: monitor is nil")
	}
	if m.schedule == nil {
		return nil
	}

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.RunOnce(loopCtx)

		for {
			wait := m.schedule.Next(m.now()).Sub(m.now())
			if wait < 0 {
				wait = 0
			}
			timer := time.NewTimer(wait)
			select {
			case <-loopCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
				m.RunOnce(loopCtx)
			}
		}
	}()

	return nil
}

// Stop terminates scheduled probing and waits for an in-flight pass.
func (m *Monitor) Stop(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
