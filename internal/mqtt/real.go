package mqtt

import (
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/firestick-minder/internal/config"
	"github.com/sweeney/firestick-minder/internal/logger"
	"github.com/sweeney/firestick-minder/internal/status"
)

const (
	connectTimeout  = 10 * time.Second
	publishTimeout  = 5 * time.Second
	backlogCapacity = 256
)

// client is the part of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client client
	prefix string
	log    logger.Logger

	mu     sync.Mutex
	buf    *backlog
	closed bool // set once Close starts; send is a no-op after that
	wg     sync.WaitGroup
}

// NewRealPublisher creates a publisher for the configured broker. An
// unreachable broker is not an error: paho keeps retrying in the background
// and state is buffered until the first connection succeeds.
func NewRealPublisher(cfg config.MQTT, log logger.Logger) (*RealPublisher, error) {
	p := newPublisher(nil, cfg.TopicPrefix, log)

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker()).
		SetClientID(clientID()).
		SetKeepAlive(60*time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetWill(AvailabilityTopic(cfg.TopicPrefix), PayloadOffline, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt connection lost", logger.Error(err))
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	c := paho.NewClient(opts)
	p.mu.Lock()
	p.client = c
	p.mu.Unlock()

	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warnf("mqtt broker %s not reachable yet; retrying in the background", cfg.Broker())
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", cfg.Broker(), err)
	}
	return p, nil
}

func newPublisher(c client, prefix string, log logger.Logger) *RealPublisher {
	return &RealPublisher{
		client: c,
		prefix: prefix,
		log:    log,
		buf:    newBacklog(backlogCapacity, log),
	}
}

func clientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("firestick-minder-%s-%d", host, os.Getpid())
}

// onConnect announces availability and replays whatever was buffered while
// the connection was down.
func (p *RealPublisher) onConnect() {
	p.log.Infof("mqtt connected (prefix %s)", p.prefix)

	p.mu.Lock()
	pending := p.buf.drain()
	c := p.client
	p.mu.Unlock()

	if c == nil {
		return
	}
	p.send(c, message{topic: AvailabilityTopic(p.prefix), payload: []byte(PayloadOnline), qos: 1, retained: true})
	if len(pending) > 0 {
		p.log.Infof("mqtt replaying %d buffered device states", len(pending))
	}
	for _, msg := range pending {
		p.send(c, msg)
	}
}

// PublishState sends a device snapshot with QoS 0, not retained.
func (p *RealPublisher) PublishState(d status.DeviceSnapshot) error {
	payload, err := FormatState(d)
	if err != nil {
		return fmt.Errorf("format state payload: %w", err)
	}
	p.publish(message{topic: StateTopic(p.prefix, d.Name), payload: payload})
	return nil
}

func (p *RealPublisher) publish(msg message) {
	p.mu.Lock()
	c := p.client
	if c == nil || !c.IsConnectionOpen() {
		p.buf.push(msg)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.send(c, msg)
}

// send is fire-and-forget: the token is awaited off the polling goroutine.
func (p *RealPublisher) send(c client, msg message) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	token := c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	go func() {
		defer p.wg.Done()
		if !token.WaitTimeout(publishTimeout) {
			p.log.Warn("mqtt publish timed out", logger.String("topic", msg.topic))
			return
		}
		if err := token.Error(); err != nil {
			p.log.Warn("mqtt publish failed", logger.String("topic", msg.topic), logger.Error(err))
		}
	}()
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil && p.client.IsConnectionOpen()
}

// Buffered returns the number of device states waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close publishes a retained "offline" marker, waits for in-flight publishes
// and disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	c := p.client
	already := p.closed
	p.closed = true
	p.mu.Unlock()
	if c == nil || already {
		return nil
	}

	if c.IsConnectionOpen() {
		token := c.Publish(AvailabilityTopic(p.prefix), 1, true, []byte(PayloadOffline))
		if !token.WaitTimeout(time.Second) {
			p.log.Warn("mqtt offline marker timed out")
		}
	}
	p.wg.Wait()
	c.Disconnect(250)
	return nil
}
