package runtime

import (
	"sync"

	scriptruntime "github.com/wippyai/script-runtime"
)

// MessageKind discriminates inbox messages.
type MessageKind uint8

const (
	// MessageCollected carries the address of a binding whose script object
	// the engine collected. Drained into Free(ptr, finalize).
	MessageCollected MessageKind = iota

	// MessageData carries a JSON payload for the script-side onmessage
	// handler.
	MessageData

	// MessageError carries an error description for the script-side
	// onerror handler.
	MessageError
)

func (k MessageKind) String() string {
	switch k {
	case MessageCollected:
		return "collected"
	case MessageData:
		return "data"
	case MessageError:
		return "error"
	default:
		return "unknown"
	}
}

// Message is one inbox item. Producers run on arbitrary goroutines; the
// owning goroutine drains on Update.
type Message struct {
	Kind    MessageKind
	Ptr     scriptruntime.NativePtr
	Payload []byte
}

// inbox is a double buffered message queue. Drain swaps the live buffer
// for a spare under the lock, so producers never block on dispatch work.
type inbox struct {
	mu  sync.Mutex
	buf []Message
}

func (q *inbox) push(m Message) {
	q.mu.Lock()
	q.buf = append(q.buf, m)
	q.mu.Unlock()
}

// swap exchanges the live buffer for spare and returns the pending
// messages. The caller hands the drained slice back as the next spare.
func (q *inbox) swap(spare []Message) []Message {
	q.mu.Lock()
	out := q.buf
	q.buf = spare[:0]
	q.mu.Unlock()
	return out
}

func (q *inbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
