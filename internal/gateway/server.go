package gateway

import (
	"fmt"
	"net"
	"sync/atomic"

	"go.uber.org/zap"
)

// Server accepts TCP connections and creates Sessions. New sessions are
// communicated to the game loop via a channel; dead sessions announce
// themselves through an OpDisconnect command on the shared command queue.
type Server struct {
	listener net.Listener
	nextID   atomic.Uint64
	newConns chan *Session
	cmdQueue chan Command
	codec    Codec
	outSize  int
	perSec   int
	log      *zap.Logger
	closeCh  chan struct{}
}

func NewServer(bindAddr string, cmdQueueSize, outSize, cmdPerSec int, codec Codec, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: ln,
		newConns: make(chan *Session, 64),
		cmdQueue: make(chan Command, cmdQueueSize),
		codec:    codec,
		outSize:  outSize,
		perSec:   cmdPerSec,
		log:      log,
		closeCh:  make(chan struct{}),
	}, nil
}

// AcceptLoop runs in its own goroutine. It accepts connections, creates
// sessions, and pushes them onto the newConns channel.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return // server shutting down
			default:
			}
			s.log.Error("accept failed", zap.Error(err))
			continue
		}

		id := s.nextID.Add(1)
		sess := NewSession(conn, id, s.outSize, s.perSec, s.codec, s.cmdQueue, s.log)
		sess.Start()

		s.log.Info(fmt.Sprintf("client connected  session=%d  ip=%s", id, sess.IP))

		select {
		case s.newConns <- sess:
		default:
			s.log.Warn("new connection queue full, rejecting client")
			sess.Close()
		}
	}
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// Commands returns the shared command queue all sessions feed into.
func (s *Server) Commands() chan Command {
	return s.cmdQueue
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
