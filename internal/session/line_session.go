package session

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"duskmire/internal/trace"
)

const (
	// inputBacklog bounds how many unread lines a client may queue; lines
	// beyond it are dropped until the tick catches up.
	inputBacklog = 32

	// maxLineBytes caps a single input line. Longer lines terminate the
	// session.
	maxLineBytes = 4096

	// writeTimeout bounds a single Send so a stalled client cannot hold
	// up the tick.
	writeTimeout = 5 * time.Second
)

// LineSession adapts a [net.Conn] into a [Session]. A background goroutine
// scans incoming bytes into lines; the tick polls them via ReadLine. It also
// implements [trace.Subscriber] so observer consoles can attach to the trace
// fabric.
type LineSession struct {
	id    string
	conn  net.Conn
	lines chan string

	closed    atomic.Bool
	closeOnce sync.Once

	mu       sync.Mutex // guards playerID
	wmu      sync.Mutex // serializes conn writes
	playerID string
}

var (
	_ Session          = (*LineSession)(nil)
	_ trace.Subscriber = (*LineSession)(nil)
)

// NewLineSession wraps conn and starts its read loop.
func NewLineSession(conn net.Conn) *LineSession {
	s := &LineSession{
		id:    uuid.NewString(),
		conn:  conn,
		lines: make(chan string, inputBacklog),
	}
	go s.readLoop()
	return s
}

func (s *LineSession) readLoop() {
	sc := bufio.NewScanner(s.conn)
	sc.Buffer(make([]byte, 0, 256), maxLineBytes)
	for sc.Scan() {
		select {
		case s.lines <- sc.Text():
		default:
			slog.Debug("session: input backlog full, dropping line", "session_id", s.id)
		}
	}
	// EOF, read error or an oversized line: the client is gone either way.
	s.closed.Store(true)
}

// ID implements [Session].
func (s *LineSession) ID() string { return s.id }

// PlayerID implements [Session].
func (s *LineSession) PlayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerID
}

// BindPlayer implements [Session].
func (s *LineSession) BindPlayer(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerID = playerID
}

// ReadLine implements [Session]. Lines buffered before a disconnect remain
// readable afterwards.
func (s *LineSession) ReadLine() (string, bool) {
	select {
	case line := <-s.lines:
		return line, true
	default:
		return "", false
	}
}

// Send writes text followed by CRLF. Write errors mark the session closed
// rather than propagate; a vanished client is the prune phase's problem.
func (s *LineSession) Send(text string) {
	if s.closed.Load() {
		return
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := fmt.Fprintf(s.conn, "%s\r\n", text); err != nil {
		slog.Debug("session: write failed", "session_id", s.id, "err", err)
		s.closed.Store(true)
	}
}

// TraceLine implements [trace.Subscriber], rendering categorized NPC trace
// output onto the console.
func (s *LineSession) TraceLine(npcID string, cat trace.Category, msg string) {
	s.Send(fmt.Sprintf("[%s] %s: %s", cat, npcID, msg))
}

// Closed implements [Session].
func (s *LineSession) Closed() bool { return s.closed.Load() }

// Close implements [Session]. Closing the conn also unblocks the read loop.
func (s *LineSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.conn.Close()
	})
	return err
}
