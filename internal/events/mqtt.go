package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/charlesng35/lockgate/pkg/logger"
	"github.com/charlesng35/lockgate/pkg/metrics"
)

const (
	defaultTopicPrefix    = "lockgate"
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultQueueSize      = 256
	disconnectQuiesce     = 250 // milliseconds
)

var (
	// ErrPublishTimeout is reported when the broker does not acknowledge in time.
	ErrPublishTimeout = errors.New("events: publish timed out")
	// ErrNotConnected is returned while the client is offline.
	ErrNotConnected = errors.New("events: mqtt not connected")
	// ErrQueueFull is returned when the outbound queue cannot take another event.
	ErrQueueFull = errors.New("events: publish queue full")
	// ErrPublisherClosed is returned after Close.
	ErrPublisherClosed = errors.New("events: publisher closed")
)

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	TopicPrefix string
	// QueueSize bounds events waiting for the broker. Zero uses the default.
	QueueSize int
}

// mqttClient is the subset of the paho client used here.
type mqttClient interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

type mqttConnector interface {
	Connect() pahomqtt.Token
	Disconnect(quiesce uint)
}

type outbound struct {
	topic   string
	payload []byte
}

// MQTTPublisher publishes access events to lockgate/locks/{uuid}/access.
// PublishAccess only enqueues; a single worker talks to the broker.
type MQTTPublisher struct {
	client  mqttClient
	qos     byte
	prefix  string
	timeout time.Duration
	log     *zap.Logger
	report  func(topic string, err error)

	mu     sync.RWMutex
	closed bool
	queue  chan outbound
	done   chan struct{}
}

// NewMQTTPublisher connects to the broker described by cfg.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("events: mqtt broker is required")
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(defaultConnectTimeout).
		SetWriteTimeout(defaultPublishTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	if err := connect(client, cfg.Broker, defaultConnectTimeout); err != nil {
		return nil, err
	}

	return newMQTTPublisher(client, cfg), nil
}

// connect waits for the first connection. With connect retry enabled paho
// keeps dialling in the background, so a failed attempt must disconnect.
func connect(client mqttConnector, broker string, timeout time.Duration) error {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return fmt.Errorf("events: connect to %s: timeout after %v", broker, timeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("events: connect to %s: %w", broker, err)
	}
	return nil
}

func newMQTTPublisher(client mqttClient, cfg MQTTConfig) *MQTTPublisher {
	prefix := strings.Trim(strings.TrimSpace(cfg.TopicPrefix), "/")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	qos := cfg.QoS
	if qos > 2 {
		qos = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	p := &MQTTPublisher{
		client:  client,
		qos:     qos,
		prefix:  prefix,
		timeout: defaultPublishTimeout,
		log:     logger.WithModule("events"),
		queue:   make(chan outbound, size),
		done:    make(chan struct{}),
	}
	p.report = p.logFailure
	go p.run()
	return p
}

// AccessTopic returns the topic access events for lockUUID are published on.
func (p *MQTTPublisher) AccessTopic(lockUUID string) string {
	return fmt.Sprintf("%s/locks/%s/access", p.prefix, lockUUID)
}

// PublishAccess queues event as JSON without waiting for the broker.
// Messages are not retained. Delivery failures are logged, not returned.
func (p *MQTTPublisher) PublishAccess(_ context.Context, event AccessEvent) error {
	if event.LockUUID == "" {
		return errors.New("events: lock uuid is required")
	}
	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: encode access event: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- outbound{topic: p.AccessTopic(event.LockUUID), payload: payload}:
		return nil
	default:
		metrics.EventsPublished.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

func (p *MQTTPublisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		token := p.client.Publish(msg.topic, p.qos, false, msg.payload)
		switch {
		case !token.WaitTimeout(p.timeout):
			p.report(msg.topic, ErrPublishTimeout)
		case token.Error() != nil:
			p.report(msg.topic, fmt.Errorf("events: publish access event: %w", token.Error()))
		default:
			metrics.EventsPublished.WithLabelValues("sent").Inc()
		}
	}
}

func (p *MQTTPublisher) logFailure(topic string, err error) {
	metrics.EventsPublished.WithLabelValues("failed").Inc()
	p.log.Warn("access event not delivered", zap.String("topic", topic), zap.Error(err))
}

// Close drains queued events and disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	if p.client != nil {
		p.client.Disconnect(disconnectQuiesce)
	}
	return nil
}
