package net

import (
	"context"
	"fmt"
	"net"
	"time"

	"clobcore/internal/engine"
	"clobcore/internal/utils"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = 5 * time.Second
)

// Server accepts direct TCP order submissions (spec.md §6's binary
// protocol), translating each frame into an engine.Command on the
// shared ingress channel and writing the resulting Report back on the
// same connection — the same dispatch pattern the REST and Redis
// adapters use, just over a raw socket instead of HTTP or pub/sub.
type Server struct {
	address string
	port    int
	ingress chan<- engine.Command
	pool    utils.WorkerPool
	cancel  context.CancelFunc
}

func New(address string, port int, ingress chan<- engine.Command) *Server {
	return &Server{
		address: address,
		port:    port,
		ingress: ingress,
		pool:    utils.NewWorkerPool(defaultNWorkers),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("net: server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Server) Run(ctx context.Context) error {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		return fmt.Errorf("net: unable to start listener: %w", err)
	}
	// Accept blocks until a client connects, so the listener is closed as
	// soon as ctx is done to unblock it.
	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("net: unable to close listener")
		}
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	log.Info().Str("address", listener.Addr().String()).Msg("net: server running")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Msg("net: error accepting client")
				continue
			}
			log.Info().Str("address", conn.RemoteAddr().String()).Msg("net: new client connected")
			s.pool.AddTask(conn)
		}
	}
}

// handleConnection reads one frame, dispatches it to the engine, writes
// back the Report, then requeues the connection for its next frame.
// Unlike the teacher's version this never truncates an order id — a
// malformed frame gets an error Report rather than silently corrupting
// an id used for later cancellation.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("net: failed setting deadline")
		conn.Close()
		return nil
	}

	buffer := make([]byte, maxRecvSize)
	select {
	case <-t.Dying():
		conn.Close()
		return nil
	default:
	}

	n, err := conn.Read(buffer)
	if err != nil {
		log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("net: error reading from connection")
		conn.Close()
		return nil
	}

	message, err := parseMessage(buffer[:n])
	if err != nil {
		log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("net: error parsing message")
		conn.Write(serializeErrorReport(err))
		conn.Close()
		return nil
	}

	if err := s.dispatch(conn, message); err != nil {
		log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("net: error handling message")
		conn.Write(serializeErrorReport(err))
		conn.Close()
		return nil
	}

	s.pool.AddTask(conn)
	return nil
}

func (s *Server) dispatch(conn net.Conn, message Message) error {
	switch message.GetType() {
	case Heartbeat:
		_, err := conn.Write([]byte{byte(Heartbeat)})
		return err
	case NewOrder:
		m, ok := message.(*NewOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		cmd, err := m.toPlaceOrder()
		if err != nil {
			return err
		}
		return s.awaitReply(conn, cmd, cmd.Reply)
	case CancelOrder:
		m, ok := message.(*CancelOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		cmd := engine.CancelOrder{OrderID: m.OrderID, Reply: make(chan engine.Response, 1)}
		return s.awaitReply(conn, cmd, cmd.Reply)
	default:
		return ErrInvalidMessageType
	}
}

func (s *Server) awaitReply(conn net.Conn, cmd engine.Command, reply chan engine.Response) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultConnTimeout)
	defer cancel()

	select {
	case s.ingress <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case resp := <-reply:
		report := reportFromResponse(resp)
		_, err := conn.Write(report.Serialize())
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
