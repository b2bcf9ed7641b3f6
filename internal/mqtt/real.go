package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/toggle-blinker/internal/logger"
	"github.com/sweeney/toggle-blinker/internal/logic"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	bufferSize     = 64
)

// RealPublisher publishes to an actual MQTT broker.
// Messages published while the connection is down are buffered and
// replayed, oldest first, once it comes back.
type RealPublisher struct {
	client paho.Client
	topic  string

	mu  sync.Mutex
	buf *backlog

	// flushMu serializes drains so buffered messages leave in order.
	flushMu sync.Mutex
}

// NewRealPublisher creates a publisher for the given broker. The broker
// being unreachable at startup is not an error: the client keeps retrying
// in the background and messages are buffered meanwhile.
func NewRealPublisher(broker, clientID string) (*RealPublisher, error) {
	p := &RealPublisher{
		topic: Topic,
		buf:   newBacklog(bufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Logger().Warnf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		logger.Logger().Warnf("mqtt: broker %s not reachable yet, buffering until connected", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// newPublisherWithClient wraps an existing client. Used by tests.
func newPublisherWithClient(client paho.Client) *RealPublisher {
	return &RealPublisher{
		client: client,
		topic:  Topic,
		buf:    newBacklog(bufferSize),
	}
}

// Publish sends an LED state event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.LEDEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), retained so new subscribers see the last state.
	return p.send(bufferedMsg{topic: p.topic, payload: payload, qos: 0, retained: true})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events.
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// send queues msg behind anything still buffered and flushes the queue
// when the connection is up. The connection check happens after the push:
// a reconnect racing with the push either drains msg itself or is seen here.
func (p *RealPublisher) send(msg bufferedMsg) error {
	p.mu.Lock()
	p.buf.push(msg)
	p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		return nil
	}
	return p.flush()
}

// flush publishes every buffered message, oldest first.
func (p *RealPublisher) flush() error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	pending, dropped := p.buf.drain()
	p.mu.Unlock()

	if dropped > 0 {
		logger.Logger().Warnf("mqtt: %d messages dropped while offline", dropped)
	}
	var errs []error
	for _, msg := range pending {
		if err := p.publish(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

// onConnect replays messages buffered while offline.
// paho runs it on its own goroutine.
func (p *RealPublisher) onConnect(_ paho.Client) {
	if n := p.Buffered(); n > 0 {
		logger.Logger().Infof("mqtt: connected, replaying %d buffered messages", n)
	}
	if err := p.flush(); err != nil {
		logger.Logger().Warnf("mqtt: replay failed: %v", err)
	}
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}
