package mqtt

// bufferedMsg is a serialized MQTT message held for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog holds LED state changes and lifecycle events published while
// the broker is unreachable. It keeps the newest messages: after an outage
// the latest LED state is what subscribers need, so overflow evicts the
// oldest entry (the press event queue does the opposite).
// Not safe for concurrent use; the caller must synchronize.
type backlog struct {
	msgs    []bufferedMsg
	next    int
	count   int
	dropped int
}

func newBacklog(capacity int) *backlog {
	return &backlog{msgs: make([]bufferedMsg, capacity)}
}

// push appends msg, evicting the oldest entry when full.
func (b *backlog) push(msg bufferedMsg) {
	b.msgs[b.next] = msg
	b.next = (b.next + 1) % len(b.msgs)
	if b.count == len(b.msgs) {
		b.dropped++
		return
	}
	b.count++
}

// drain empties the backlog, returning its messages oldest first and how
// many were evicted since the previous drain.
func (b *backlog) drain() (msgs []bufferedMsg, dropped int) {
	dropped = b.dropped
	if b.count > 0 {
		msgs = make([]bufferedMsg, b.count)
		oldest := (b.next - b.count + len(b.msgs)) % len(b.msgs)
		for i := range msgs {
			msgs[i] = b.msgs[(oldest+i)%len(b.msgs)]
		}
	}
	b.next, b.count, b.dropped = 0, 0, 0
	return msgs, dropped
}

func (b *backlog) len() int {
	return b.count
}
