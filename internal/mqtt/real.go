package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/sleep-machine/internal/logger"
	"github.com/sweeney/sleep-machine/internal/logic"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	// bufferSize bounds the messages kept while the broker is unreachable.
	bufferSize = 256
)

var errPublishTimeout = errors.New("publish timeout")

// RealPublisher publishes to a broker. While disconnected, messages are kept in
// a ring buffer and replayed on reconnect. The broker announces OFFLINE through
// the will message if the process dies.
type RealPublisher struct {
	ctx    context.Context
	client paho.Client

	mu        sync.Mutex
	buf       *ringBuffer
	dropping  bool
	connected bool // at least one successful connect
}

// NewRealPublisher starts connecting to broker. It waits up to ten seconds for
// the first connection; after that it keeps retrying in the background.
func NewRealPublisher(ctx context.Context, broker, clientID string) *RealPublisher {
	ctx = logger.WithKV(ctx, "component", "mqtt")
	p := &RealPublisher{ctx: ctx, buf: newRingBuffer(bufferSize)}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: SystemOffline})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.WarnKV(ctx, "Broker connection lost", "error", err)
		})

	p.client = paho.NewClient(opts)

	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		logger.WarnKV(ctx, "Broker not reachable yet, buffering", "broker", broker)
	} else if err := token.Error(); err != nil {
		logger.WarnKV(ctx, "Broker connect failed, buffering", "broker", broker, "error", err)
	}

	return p
}

func (p *RealPublisher) onConnect(paho.Client) {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	p.mu.Unlock()

	logger.InfoKV(p.ctx, "Connected to broker", "reconnect", reconnect)

	// Handlers must not block on publish tokens.
	go func() {
		p.flush()
		if reconnect {
			ev := SystemEvent{Timestamp: time.Now(), Event: SystemReconnected}
			if err := p.PublishSystem(ev); err != nil {
				logger.WarnKV(p.ctx, "Publish reconnect event failed", "error", err)
			}
		}
	}()
}

func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs := p.buf.drain()
	p.dropping = false
	p.mu.Unlock()

	if len(msgs) > 0 {
		logger.InfoKV(p.ctx, "Replaying buffered messages", "count", len(msgs))
	}
	for _, m := range msgs {
		if err := p.send(m); err != nil {
			p.enqueue(m)
		}
	}
}

// Publish implements Publisher. QoS 0, not retained.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem implements Publisher. QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.enqueue(m)
		return nil
	}
	if err := p.send(m); err != nil {
		p.enqueue(m)
		return err
	}
	return nil
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return errPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

func (p *RealPublisher) enqueue(m bufferedMsg) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.buf.push(m) && !p.dropping {
		p.dropping = true
		logger.WarnKV(p.ctx, "Message buffer full, dropping oldest", "capacity", bufferSize)
	}
}

// Buffered returns the number of messages waiting for the broker.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected implements ConnectionStatus.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects, allowing one second for in-flight messages.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
