// Package session tracks connected player consoles.
//
// A [Session] is one line-oriented client connection. [LineSession] adapts a
// net.Conn: a background goroutine ingests bytes into a bounded input queue
// so the world tick can poll for lines without blocking. The [Manager] is the
// locked registry the driver walks each tick for input dispatch, message
// delivery and pruning.
package session

// Session is one connected console: a player client or an observer.
// Implementations must be safe for concurrent use; Send and ReadLine are
// called from different goroutines.
type Session interface {
	// ID returns the process-unique session identifier.
	ID() string

	// PlayerID returns the id of the world living this session controls,
	// or "" before a player has been bound.
	PlayerID() string

	// BindPlayer associates the session with a world living id.
	BindPlayer(playerID string)

	// ReadLine returns the next buffered input line without blocking.
	// ok is false when no input is pending.
	ReadLine() (line string, ok bool)

	// Send writes one line to the client. It never blocks beyond a short
	// transport deadline and is a no-op once the session is closed.
	Send(text string)

	// Closed reports whether the transport has gone away. Closed sessions
	// are swept out by the driver's prune phase.
	Closed() bool

	// Close tears down the transport. Idempotent.
	Close() error
}
