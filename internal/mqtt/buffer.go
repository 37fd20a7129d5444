package mqtt

import "github.com/sweeney/firestick-minder/internal/logger"

// message is a serialized MQTT publish waiting for a connection.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog holds what to replay once the broker is back. Device state is
// last-value-wins, so a newer message for a topic replaces the queued one
// in place. When more than capacity topics are waiting, the topic queued
// first is dropped. Not safe for concurrent use; the caller must synchronize.
type backlog struct {
	order    []string
	latest   map[string]message
	capacity int
	overflow bool // a topic was dropped since the last drain
	log      logger.Logger
}

func newBacklog(capacity int, log logger.Logger) *backlog {
	return &backlog{
		latest:   make(map[string]message, capacity),
		capacity: capacity,
		log:      log,
	}
}

func (b *backlog) push(msg message) {
	if _, queued := b.latest[msg.topic]; queued {
		b.latest[msg.topic] = msg
		return
	}

	if len(b.order) == b.capacity {
		if !b.overflow {
			b.log.Warnf("offline backlog full (%d topics), dropping oldest", b.capacity)
			b.overflow = true
		}
		delete(b.latest, b.order[0])
		b.order = b.order[1:]
	}
	b.order = append(b.order, msg.topic)
	b.latest[msg.topic] = msg
}

// drain returns the queued messages in the order their topics were first
// queued and empties the backlog.
func (b *backlog) drain() []message {
	if len(b.order) == 0 {
		return nil
	}

	out := make([]message, 0, len(b.order))
	for _, topic := range b.order {
		out = append(out, b.latest[topic])
	}

	b.order = nil
	b.latest = make(map[string]message, b.capacity)
	b.overflow = false
	return out
}

func (b *backlog) len() int {
	return len(b.order)
}
