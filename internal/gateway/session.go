package gateway

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/simcore/internal/core/ecs"
)

// Session represents a single client connection. Network I/O runs in
// dedicated goroutines; game state is accessed only from the game loop.
type Session struct {
	ID   uint64
	conn net.Conn

	codec Codec

	// Entity is the world entity bound to this session. Written by the game
	// loop when the player spawns; read by the game loop only.
	Entity ecs.EntityID

	OutQueue chan []byte // writer goroutine reads from here
	cmdQueue chan<- Command

	IP string

	outBuf [][]byte // buffered deltas, flushed once per tick (game loop only)

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// Per-second command rate limiter (readLoop goroutine only, no lock needed)
	cmdPerSec  int
	cmdCount   int
	cmdResetAt int64

	log *zap.Logger
}

func NewSession(conn net.Conn, id uint64, outSize, cmdPerSec int, codec Codec, cmdQueue chan<- Command, log *zap.Logger) *Session {
	return &Session{
		ID:        id,
		conn:      conn,
		codec:     codec,
		OutQueue:  make(chan []byte, outSize),
		cmdQueue:  cmdQueue,
		IP:        conn.RemoteAddr().String(),
		closeCh:   make(chan struct{}),
		cmdPerSec: cmdPerSec,
		log:       log.With(zap.Uint64("session", id)),
	}
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers an encoded delta for this session. The bytes are not written
// to TCP until FlushOutput is called at the end of the tick.
// Called only from the game loop goroutine; no lock needed on outBuf.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// FlushOutput drains the output buffer to OutQueue for the writeLoop
// goroutine. Non-blocking: if OutQueue is full, the session is disconnected
// (backpressure against slow clients).
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, dropping slow session")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close shuts the session down. Safe to call from any goroutine, any number
// of times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop reads frames from the connection, decodes them, and pushes
// commands onto the shared command queue. On exit it synthesizes an
// OpDisconnect so the game loop learns about the drop in order with the
// session's own commands.
func (s *Session) readLoop() {
	defer func() {
		s.Close()
		select {
		case s.cmdQueue <- Command{Op: OpDisconnect, SessionID: s.ID}:
		case <-time.After(5 * time.Second):
			s.log.Error("command queue blocked, disconnect notice lost")
		}
	}()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		payload, err := ReadFrame(s.conn)
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}

		// Per-second command rate limiter
		if s.cmdPerSec > 0 {
			now := time.Now().Unix()
			if now != s.cmdResetAt {
				s.cmdCount = 0
				s.cmdResetAt = now
			}
			s.cmdCount++
			if s.cmdCount > s.cmdPerSec {
				s.log.Warn("command rate exceeded, dropping session", zap.Int("cps", s.cmdCount))
				return
			}
		}

		cmd, err := s.codec.DecodeCommand(payload)
		if err != nil {
			s.log.Debug("bad command frame", zap.Error(err))
			continue
		}
		cmd.SessionID = s.ID

		// Block until the queue has space or the session closes. Dropping
		// move commands causes permanent position desync, and the readLoop
		// goroutine is per-session, so blocking only stalls this client.
		select {
		case s.cmdQueue <- cmd:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop reads encoded deltas from OutQueue and writes them as framed
// data to the connection.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOne(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeOne(data []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := WriteFrame(s.conn, data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	return true
}
