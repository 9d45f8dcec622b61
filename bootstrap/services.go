package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/najoast/frametree/config"
	"github.com/najoast/frametree/frame"
	"github.com/najoast/frametree/ingest"
	"github.com/najoast/frametree/lifecycle"
	"github.com/najoast/frametree/monitor"
)

// NotifierService runs the lifecycle notifier
type NotifierService struct {
	notifier *lifecycle.Notifier
}

func (s *NotifierService) Name() string {
	return "notifier"
}

func (s *NotifierService) Start(ctx context.Context) error {
	// ctx only bounds startup; the notifier lives until Stop
	return s.notifier.Start(context.Background())
}

func (s *NotifierService) Stop(ctx context.Context) error {
	s.notifier.Stop()
	return nil
}

func (s *NotifierService) Health(ctx context.Context) (HealthStatus, error) {
	stats := s.notifier.Stats()
	state := HealthHealthy
	switch stats.State {
	case lifecycle.StateIdle:
		state = HealthStarting
	case lifecycle.StateStopped:
		state = HealthStopped
	}

	return HealthStatus{
		State:   state,
		Message: "notifier " + stats.State.String(),
		Data: map[string]interface{}{
			"applied":  stats.Applied,
			"rejected": stats.Rejected,
			"queued":   stats.Queued,
		},
	}, nil
}

// ScriptService replays an event script into the notifier on start
type ScriptService struct {
	path     string
	notifier *lifecycle.Notifier

	mu     sync.Mutex
	events int
	err    error
}

func (s *ScriptService) Name() string {
	return "script"
}

func (s *ScriptService) Start(ctx context.Context) error {
	script, err := lifecycle.LoadScript(s.path)
	if err == nil {
		err = script.Play(ctx, s.notifier)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.err = err
		return fmt.Errorf("replay %s: %w", s.path, err)
	}
	s.events = len(script.Events)
	return nil
}

func (s *ScriptService) Stop(ctx context.Context) error {
	return nil
}

func (s *ScriptService) Health(ctx context.Context) (HealthStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return HealthStatus{State: HealthUnhealthy, Message: s.err.Error()}, nil
	}
	return HealthStatus{
		State:   HealthHealthy,
		Message: "script replayed",
		Data:    map[string]interface{}{"path": s.path, "events": s.events},
	}, nil
}

// MonitorService runs the HTTP monitor
type MonitorService struct {
	server *monitor.Server
}

func (s *MonitorService) Name() string {
	return s.server.Name()
}

func (s *MonitorService) Start(ctx context.Context) error {
	return s.server.Start(ctx)
}

func (s *MonitorService) Stop(ctx context.Context) error {
	return s.server.Stop(ctx)
}

func (s *MonitorService) Health(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{
		State:   HealthHealthy,
		Message: "monitor listening",
		Data:    map[string]interface{}{"addr": s.server.Addr()},
	}, nil
}

// IngestService runs the TCP event feed
type IngestService struct {
	server *ingest.Server
}

func (s *IngestService) Name() string {
	return s.server.Name()
}

func (s *IngestService) Start(ctx context.Context) error {
	return s.server.Start(ctx)
}

func (s *IngestService) Stop(ctx context.Context) error {
	return s.server.Stop(ctx)
}

func (s *IngestService) Health(ctx context.Context) (HealthStatus, error) {
	stats := s.server.Stats()
	return HealthStatus{
		State:   HealthHealthy,
		Message: "ingest listening",
		Data: map[string]interface{}{
			"addr":        stats.Address,
			"connections": stats.CurrentConnections,
			"accepted":    stats.Accepted,
			"rejected":    stats.Rejected,
		},
	}, nil
}

// ConfigWatcherService hot-reloads the configuration file
type ConfigWatcherService struct {
	watcher *config.Watcher
}

func (s *ConfigWatcherService) Name() string {
	return "config-watcher"
}

func (s *ConfigWatcherService) Start(ctx context.Context) error {
	return s.watcher.Start()
}

func (s *ConfigWatcherService) Stop(ctx context.Context) error {
	return s.watcher.Stop()
}

func (s *ConfigWatcherService) Health(ctx context.Context) (HealthStatus, error) {
	cfg := s.watcher.GetConfig()
	return HealthStatus{
		State:   HealthHealthy,
		Message: "watching configuration",
		Data:    map[string]interface{}{"log_level": cfg.Log.Level.String()},
	}, nil
}

// EventLogService logs every tree event at debug level
type EventLogService struct {
	tree *frame.Tree
	log  zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	seen   uint64
}

func (s *EventLogService) Name() string {
	return "event-log"
}

func (s *EventLogService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	watchCtx, cancel := context.WithCancel(context.Background())
	events := s.tree.Watch(watchCtx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		for ev := range events {
			s.mu.Lock()
			s.seen++
			s.mu.Unlock()

			s.log.Debug().
				Str("event", ev.Type.String()).
				Str("fid", ev.FrameID).
				Int("waiters", ev.Waiters).
				Msg("tree event")
		}
	}(s.done)
	return nil
}

func (s *EventLogService) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

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

func (s *EventLogService) Health(ctx context.Context) (HealthStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return HealthStatus{
		State: HealthHealthy,
		Data:  map[string]interface{}{"events": s.seen},
	}, nil
}
