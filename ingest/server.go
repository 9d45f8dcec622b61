// Package ingest accepts lifecycle events over TCP, one JSON object per
// line, and hands them to the notifier.
//
//	{"type":"attach","frame":"child","parent":"main"}
//
// Every line is answered with one JSON line: {"ok":true,"id":"..."} or
// {"ok":false,"error":"..."}.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/najoast/frametree/config"
	"github.com/najoast/frametree/lifecycle"
	"github.com/najoast/frametree/metrics"
)

const maxLineSize = 64 * 1024

// ErrServerRunning is returned by Start on a running server.
var ErrServerRunning = errors.New("ingest server is already running")

// Sink receives decoded events.
type Sink interface {
	Deliver(ctx context.Context, ev lifecycle.Event) error
}

// Reply is written back for every line read.
type Reply struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// Statistics holds counters for a Server.
type Statistics struct {
	Address            string    `json:"address"`
	StartTime          time.Time `json:"start_time"`
	TotalConnections   int64     `json:"total_connections"`
	CurrentConnections int64     `json:"current_connections"`
	Accepted           int64     `json:"accepted"`
	Rejected           int64     `json:"rejected"`
}

// Server is the TCP event feed.
type Server struct {
	sink Sink
	cfg  config.IngestConfig
	log  zerolog.Logger

	listener net.Listener
	running  int32 // atomic flag

	conns   map[string]net.Conn
	connsMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime          time.Time
	totalConnections   int64
	currentConnections int64
	accepted           int64
	rejected           int64
}

// NewServer creates a feed that delivers into sink.
func NewServer(sink Sink, cfg config.IngestConfig, logger zerolog.Logger) *Server {
	return &Server{
		sink:  sink,
		cfg:   cfg,
		log:   logger.With().Str("component", "ingest").Logger(),
		conns: make(map[string]net.Conn),
	}
}

// Name returns the service name
func (s *Server) Name() string {
	return "ingest"
}

// Start binds the listen address and accepts in the background.
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerRunning
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		return fmt.Errorf("ingest listen %s: %w", s.cfg.Address, err)
	}

	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.startTime = time.Now()

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("ingest listening")
	return nil
}

// Stop closes the listener and every connection and waits for the
// handlers to return.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return nil
	}

	s.cancel()
	s.listener.Close()

	s.connsMu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Int64("accepted", atomic.LoadInt64(&s.accepted)).Msg("ingest stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Address
	}
	return s.listener.Addr().String()
}

// Stats returns server statistics
func (s *Server) Stats() Statistics {
	return Statistics{
		Address:            s.Addr(),
		StartTime:          s.startTime,
		TotalConnections:   atomic.LoadInt64(&s.totalConnections),
		CurrentConnections: atomic.LoadInt64(&s.currentConnections),
		Accepted:           atomic.LoadInt64(&s.accepted),
		Rejected:           atomic.LoadInt64(&s.rejected),
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.log.Error().Err(err).Msg("accept failed")
			return
		}

		if limit := s.cfg.MaxConnections; limit > 0 && atomic.LoadInt64(&s.currentConnections) >= int64(limit) {
			s.log.Warn().Int("limit", limit).Str("remote", conn.RemoteAddr().String()).Msg("connection limit reached")
			conn.Close()
			continue
		}

		id := uuid.NewString()
		if !s.addConn(id, conn) {
			return
		}
		atomic.AddInt64(&s.totalConnections, 1)

		s.wg.Add(1)
		go s.handleConn(id, conn)
	}
}

func (s *Server) handleConn(id string, conn net.Conn) {
	defer s.wg.Done()
	defer s.removeConn(id)

	log := s.log.With().Str("conn", id).Str("remote", conn.RemoteAddr().String()).Logger()
	log.Debug().Msg("feed connected")

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineSize)
	enc := json.NewEncoder(conn)

	for {
		if s.cfg.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		reply := s.handleLine(line)
		if err := enc.Encode(reply); err != nil {
			log.Debug().Err(err).Msg("reply failed")
			return
		}
	}

	if err := scanner.Err(); err != nil && s.ctx.Err() == nil {
		log.Debug().Err(err).Msg("feed read ended")
	}
	log.Debug().Msg("feed disconnected")
}

func (s *Server) handleLine(line []byte) Reply {
	var ev lifecycle.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		atomic.AddInt64(&s.rejected, 1)
		return Reply{Error: fmt.Sprintf("decode event: %v", err)}
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	if err := s.sink.Deliver(s.ctx, ev); err != nil {
		atomic.AddInt64(&s.rejected, 1)
		return Reply{ID: ev.ID, Error: err.Error()}
	}

	atomic.AddInt64(&s.accepted, 1)
	return Reply{OK: true, ID: ev.ID}
}

// addConn tracks conn unless the server is stopping.
func (s *Server) addConn(id string, conn net.Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	if s.ctx.Err() != nil {
		conn.Close()
		return false
	}
	s.conns[id] = conn
	metrics.SetIngestConnections(int(atomic.AddInt64(&s.currentConnections, 1)))
	return true
}

func (s *Server) removeConn(id string) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	if conn, ok := s.conns[id]; ok {
		conn.Close()
		delete(s.conns, id)
		metrics.SetIngestConnections(int(atomic.AddInt64(&s.currentConnections, -1)))
	}
}
