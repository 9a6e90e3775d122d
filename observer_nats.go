package dbpool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NATSPublisher captures the subset of nats.Conn used by the observer.
type NATSPublisher interface {
	Publish(subject string, data []byte) error
}

var _ NATSPublisher = (*nats.Conn)(nil)

// ConnectNATSObserver dials url and builds an observer publishing there.
// The returned close function drains the connection.
func ConnectNATSObserver(url, subject string) (*NATSObserver, func(), error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, nil, err
	}
	return NewNATSObserver(nc, subject), func() { _ = nc.Drain() }, nil
}

// Event is the JSON envelope published for each executor operation.
type Event struct {
	ID         string    `json:"id"`
	Op         string    `json:"op"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	At         time.Time `json:"at"`
}

// NATSObserver publishes one Event per operation to a subject, letting
// external consumers monitor traffic without polling stats. Publish failures
// are dropped so observability can never fail an operation.
type NATSObserver struct {
	pub     NATSPublisher
	subject string
}

var _ Observer = (*NATSObserver)(nil)

// NewNATSObserver builds an observer publishing to subject.
func NewNATSObserver(pub NATSPublisher, subject string) *NATSObserver {
	if subject == "" {
		subject = "dbpool.ops"
	}
	return &NATSObserver{pub: pub, subject: subject}
}

// OnDBOp implements Observer.
func (o *NATSObserver) OnDBOp(_ context.Context, op string, success bool, err error, dur time.Duration) {
	if o.pub == nil {
		return
	}
	event := Event{
		ID:         uuid.NewString(),
		Op:         op,
		Success:    success,
		DurationMs: dur.Milliseconds(),
		At:         time.Now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	body, marshalErr := json.Marshal(event)
	if marshalErr != nil {
		return
	}
	_ = o.pub.Publish(o.subject, body)
}
