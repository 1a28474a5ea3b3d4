package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deskwire/deskd/internal/bus"
	"github.com/deskwire/deskd/internal/session"
)

const (
	helloTimeout  = 10 * time.Second
	writeTimeout  = 5 * time.Second
	feedBufferLen = 256
)

// Envelope is one line of the feed: a bus event wrapped with a unique id
// and its timestamp.
type Envelope struct {
	EventID          string `json:"event_id"`
	OccurredAtUnixMs int64  `json:"occurred_at_unix_ms"`
	Kind             string `json:"kind"`
	Payload          any    `json:"payload,omitempty"`
}

// hello is the first line a client sends: the namespace prefix it wants.
type hello struct {
	Namespace string `json:"namespace"`
}

// Server streams bus events as newline-delimited JSON over the session's
// Unix domain socket. Each client declares a namespace on connect and
// receives every matching event until it disconnects or falls too far
// behind (a full buffer or a stalled write drops the client, never the
// publisher).
type Server struct {
	listener   net.Listener
	bus        *bus.Bus
	logger     *zap.Logger
	socketPath string

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewServer binds the feed server to the session's Unix domain socket,
// replacing a stale socket file from a previous run.
func NewServer(p Params, b *bus.Bus, logger *zap.Logger) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = session.SocketPath(p.SessionName)
	}

	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	return &Server{
		listener:   listener,
		bus:        b,
		logger:     logger,
		socketPath: socketPath,
		done:       make(chan struct{}),
	}, nil
}

// Start accepts clients until Stop. Blocks.
func (s *Server) Start() error {
	s.logger.Info("feed server starting", zap.String("socket", s.socketPath))
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		s.wg.Add(1)
		go s.serve(conn)
	}
}

// Stop closes the listener, disconnects every client and removes the
// socket file. Waits for client goroutines up to the context deadline.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("feed server stopping")
	s.once.Do(func() { close(s.done) })
	_ = s.listener.Close()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}
	_ = os.Remove(s.socketPath)
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		s.logger.Debug("feed client sent no hello")
		return
	}
	var h hello
	if err := json.Unmarshal(scanner.Bytes(), &h); err != nil {
		s.logger.Debug("feed client hello malformed", zap.Error(err))
		return
	}

	events, cancel := s.bus.Subscribe(h.Namespace, feedBufferLen)
	defer cancel()
	s.logger.Info("feed client connected", zap.String("namespace", h.Namespace))

	// Watch for the client hanging up so the writer below unblocks even
	// when no events flow.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		_ = conn.SetReadDeadline(time.Time{})
		for scanner.Scan() {
		}
	}()

	enc := json.NewEncoder(conn)
	for {
		select {
		case evt := <-events:
			env := Envelope{
				EventID:          uuid.NewString(),
				OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
				Kind:             evt.Kind,
				Payload:          evt.Payload,
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := enc.Encode(env); err != nil {
				s.logger.Info("dropping feed client", zap.Error(err))
				return
			}
		case <-clientGone:
			s.logger.Info("feed client disconnected", zap.String("namespace", h.Namespace))
			return
		case <-s.done:
			return
		}
	}
}
