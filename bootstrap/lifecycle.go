package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Lifecycle errors
var (
	ErrAlreadyStarted      = errors.New("lifecycle manager already started")
	ErrDuplicateService    = errors.New("service already registered")
	ErrUnknownDependency   = errors.New("dependency is not registered")
	ErrCircularDependency  = errors.New("circular dependency detected")
	ErrInvalidRegistration = errors.New("invalid service registration")
)

const defaultOpTimeout = 30 * time.Second

// Manager starts services in dependency order and stops them in reverse.
// Service callbacks run without the registry lock held, so a service may
// query Health while the manager is starting or stopping it.
type Manager struct {
	// Serializes Start and Stop
	opMu sync.Mutex

	mu           sync.RWMutex
	services     map[string]Service
	dependencies map[string][]string
	startOrder   []string
	listeners    []func(LifecycleEvent)
	timeout      time.Duration

	log zerolog.Logger
}

// NewManager creates an empty lifecycle manager
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		services:     make(map[string]Service),
		dependencies: make(map[string][]string),
		timeout:      defaultOpTimeout,
		log:          logger.With().Str("component", "lifecycle").Logger(),
	}
}

// Register registers a service that starts after all of deps
func (lm *Manager) Register(name string, service Service, deps ...string) error {
	if name == "" || service == nil {
		return fmt.Errorf("%w: name=%q", ErrInvalidRegistration, name)
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.startOrder != nil {
		return fmt.Errorf("register %s: %w", name, ErrAlreadyStarted)
	}
	if _, exists := lm.services[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, name)
	}

	lm.services[name] = service
	lm.dependencies[name] = append([]string(nil), deps...)

	lm.emit(LifecycleEvent{
		Type:    "service.registered",
		Service: name,
		Data:    map[string]interface{}{"dependencies": deps},
	})
	return nil
}

// SetTimeout sets the per-service bound for Start and Stop
func (lm *Manager) SetTimeout(timeout time.Duration) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.timeout = timeout
}

// AddListener adds a lifecycle event listener. Listeners run synchronously
// and must not call back into the Manager.
func (lm *Manager) AddListener(listener func(LifecycleEvent)) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.listeners = append(lm.listeners, listener)
}

// Start starts all services in dependency order. If one fails, the
// services already started are stopped again in reverse order.
func (lm *Manager) Start(ctx context.Context) error {
	lm.opMu.Lock()
	defer lm.opMu.Unlock()

	lm.mu.Lock()
	if lm.startOrder != nil {
		lm.mu.Unlock()
		return ErrAlreadyStarted
	}
	order, err := lm.calculateStartOrder()
	if err != nil {
		lm.mu.Unlock()
		return &ApplicationError{Operation: "start", Err: err}
	}
	lm.startOrder = []string{}
	timeout := lm.timeout
	lm.mu.Unlock()

	lm.notify(LifecycleEvent{Type: "lifecycle.starting", Data: map[string]interface{}{"order": order}})

	for _, name := range order {
		service := lm.service(name)

		startCtx, cancel := context.WithTimeout(ctx, timeout)
		err := service.Start(startCtx)
		cancel()

		if err != nil {
			lm.log.Error().Err(err).Str("service", name).Msg("service failed to start")
			lm.notify(LifecycleEvent{Type: "service.start_failed", Service: name, Error: err})
			lm.stopStarted(context.Background())
			return &ApplicationError{Operation: "start", Service: name, Err: err}
		}

		lm.mu.Lock()
		lm.startOrder = append(lm.startOrder, name)
		lm.mu.Unlock()

		lm.log.Debug().Str("service", name).Msg("service started")
		lm.notify(LifecycleEvent{Type: "service.started", Service: name})
	}

	lm.notify(LifecycleEvent{Type: "lifecycle.started"})
	return nil
}

// Stop stops all started services in reverse start order. Every service
// is stopped even if an earlier one fails; the failures are joined.
func (lm *Manager) Stop(ctx context.Context) error {
	lm.opMu.Lock()
	defer lm.opMu.Unlock()

	return lm.stopStarted(ctx)
}

func (lm *Manager) stopStarted(ctx context.Context) error {
	lm.mu.Lock()
	started := lm.startOrder
	lm.startOrder = nil
	timeout := lm.timeout
	lm.mu.Unlock()

	if started == nil {
		return nil
	}

	lm.notify(LifecycleEvent{Type: "lifecycle.stopping"})

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		name := started[i]
		service := lm.service(name)

		stopCtx, cancel := context.WithTimeout(ctx, timeout)
		err := service.Stop(stopCtx)
		cancel()

		if err != nil {
			lm.log.Error().Err(err).Str("service", name).Msg("service failed to stop")
			lm.notify(LifecycleEvent{Type: "service.stop_failed", Service: name, Error: err})
			errs = append(errs, &ApplicationError{Operation: "stop", Service: name, Err: err})
			continue
		}

		lm.log.Debug().Str("service", name).Msg("service stopped")
		lm.notify(LifecycleEvent{Type: "service.stopped", Service: name})
	}

	lm.notify(LifecycleEvent{Type: "lifecycle.stopped"})
	return errors.Join(errs...)
}

// Health returns the health status of all services
func (lm *Manager) Health(ctx context.Context) map[string]HealthStatus {
	lm.mu.RLock()
	services := make(map[string]Service, len(lm.services))
	for name, service := range lm.services {
		services[name] = service
	}
	lm.mu.RUnlock()

	health := make(map[string]HealthStatus, len(services))
	for name, service := range services {
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		status, err := service.Health(healthCtx)
		cancel()

		if err != nil {
			status = HealthStatus{State: HealthUnhealthy, Message: err.Error()}
		}
		if status.LastCheck.IsZero() {
			status.LastCheck = time.Now()
		}
		health[name] = status
	}
	return health
}

// Services returns all registered service names
func (lm *Manager) Services() []string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	names := make([]string, 0, len(lm.services))
	for name := range lm.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Started returns the started services in start order
func (lm *Manager) Started() []string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return append([]string(nil), lm.startOrder...)
}

// IsStarted returns true if the lifecycle manager has been started
func (lm *Manager) IsStarted() bool {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.startOrder != nil
}

// GetDependencies returns the dependencies for a service
func (lm *Manager) GetDependencies(name string) ([]string, bool) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	deps, exists := lm.dependencies[name]
	if !exists {
		return nil, false
	}
	return append([]string(nil), deps...), true
}

func (lm *Manager) service(name string) Service {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.services[name]
}

// calculateStartOrder sorts services topologically (Kahn). Ties are broken
// by name so the order is stable. Caller holds lm.mu.
func (lm *Manager) calculateStartOrder() ([]string, error) {
	inDegree := make(map[string]int, len(lm.services))
	graph := make(map[string][]string, len(lm.services))

	for service := range lm.services {
		inDegree[service] = 0
	}
	for service, deps := range lm.dependencies {
		for _, dep := range deps {
			if _, exists := lm.services[dep]; !exists {
				return nil, fmt.Errorf("%w: %s (required by %s)", ErrUnknownDependency, dep, service)
			}
			graph[dep] = append(graph[dep], service)
			inDegree[service]++
		}
	}

	var queue []string
	for service, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, service)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(lm.services))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		var ready []string
		for _, dependent := range graph[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	if len(result) != len(lm.services) {
		return nil, ErrCircularDependency
	}
	return result, nil
}

func (lm *Manager) notify(event LifecycleEvent) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	lm.emit(event)
}

// emit delivers event to every listener. Caller holds lm.mu.
func (lm *Manager) emit(event LifecycleEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, listener := range lm.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					lm.log.Error().Interface("panic", r).Str("event", event.Type).Msg("lifecycle listener panicked")
				}
			}()
			listener(event)
		}()
	}
}
