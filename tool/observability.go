package tool

import (
	"sync"
	"time"
)

// ToolInvokeObservation captures one dispatch outcome.
type ToolInvokeObservation struct {
	ToolName   string
	RequestID  string
	DurationMS int64
	Success    bool
	ErrorCode  string
	Items      int
	Failures   int
}

// UpstreamObservation captures one outbound HTTP request.
type UpstreamObservation struct {
	Upstream   string
	Operation  string
	RequestID  string
	StatusCode int
	DurationMS int64
	Success    bool
	ErrorCode  string
}

// HealthObservation captures one upstream probe.
type HealthObservation struct {
	Upstream   string
	Up         bool
	StatusCode int
	Duration   time.Duration
	Changed    bool
	ErrorCode  string
}

// Observer receives tool-level observability events.
type Observer interface {
	ObserveInvoke(observation ToolInvokeObservation)
	ObserveUpstream(observation UpstreamObservation)
	ObserveHealth(observation HealthObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveInvoke(ToolInvokeObservation) {}
func (noopObserver) ObserveUpstream(UpstreamObservation) {}
func (noopObserver) ObserveHealth(HealthObservation)     {}

var (
	observerMu     sync.RWMutex
	activeObserver Observer = noopObserver{}
)

// SetObserver sets the process-wide observer. nil restores the no-op observer.
func SetObserver(observer Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	if observer == nil {
		activeObserver = noopObserver{}
		return
	}
	activeObserver = observer
}

func currentObserver() Observer {
	observerMu.RLock()
	defer observerMu.RUnlock()
	return activeObserver
}

// EmitInvoke reports a dispatch outcome to the active observer.
func EmitInvoke(observation ToolInvokeObservation) {
	currentObserver().ObserveInvoke(observation)
}

// EmitUpstream reports an outbound request to the active observer.
func EmitUpstream(observation UpstreamObservation) {
	currentObserver().ObserveUpstream(observation)
}

// EmitHealth reports a probe outcome to the active observer.
func EmitHealth(observation HealthObservation) {
	currentObserver().ObserveHealth(observation)
}
