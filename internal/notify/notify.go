// Package notify publishes composition lifecycle events to
// an MQTT broker, mirroring the connect/reconnect discipline of the
// project's bird-detection build's MQTT client.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/radmix/compositor/internal/logging"
	"github.com/radmix/compositor/internal/xerrors"
)

// Config carries the connection parameters for Notifier.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Event is one composition lifecycle notification.
type Event struct {
	Type          string    `json:"type"`
	CompositionID string    `json:"composition_id"`
	Timestamp     time.Time `json:"timestamp"`
	Detail        string    `json:"detail,omitempty"`
}

const (
	EventSourcePushed   = "source_pushed"
	EventPaused         = "paused"
	EventResumed        = "resumed"
	EventSeek           = "seek"
	EventProducerReaped = "producer_reaped"
)

// EventHook receives every dispatched Event. Hooks decouple the
// producers of lifecycle events (composition mutators, the registry's
// reap path) from the MQTT transport: composition can call Dispatch
// unconditionally, whether or not a Notifier has ever been configured.
type EventHook func(Event)

var (
	eventHooks   []EventHook
	eventHooksMu sync.RWMutex
)

// AddEventHook registers a hook invoked synchronously by Dispatch.
func AddEventHook(hook EventHook) {
	eventHooksMu.Lock()
	defer eventHooksMu.Unlock()
	eventHooks = append(eventHooks, hook)
}

// ClearEventHooks removes every registered hook; used by tests.
func ClearEventHooks() {
	eventHooksMu.Lock()
	defer eventHooksMu.Unlock()
	eventHooks = nil
}

// Dispatch fires ev to every registered hook. Cheap no-op when nothing
// has registered, so callers need not check whether notifications are
// configured before raising a lifecycle event.
func Dispatch(ev Event) {
	eventHooksMu.RLock()
	hooks := make([]EventHook, len(eventHooks))
	copy(hooks, eventHooks)
	eventHooksMu.RUnlock()

	for _, hook := range hooks {
		hook(ev)
	}
}

// Notifier manages one MQTT connection and publishes Events to
// topics under Config.TopicPrefix.
type Notifier struct {
	config Config

	mu              sync.Mutex
	client          mqtt.Client
	lastConnAttempt time.Time
	reconnectTimer  *time.Timer
	reconnectStop   chan struct{}
}

// NewNotifier constructs a disconnected Notifier.
func NewNotifier(cfg Config) *Notifier {
	if cfg.ClientID == "" {
		cfg.ClientID = "radmixd"
	}
	return &Notifier{
		config:        cfg,
		reconnectStop: make(chan struct{}),
	}
}

// Connect resolves the broker hostname and establishes the MQTT
// session, registering reconnect handlers.
func (n *Notifier) Connect(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if time.Since(n.lastConnAttempt) < time.Minute && !n.lastConnAttempt.IsZero() {
		return xerrors.Newf("connection attempt too recent").
			Category(xerrors.CategoryMQTT).
			Component("notify").
			Build()
	}
	n.lastConnAttempt = time.Now()

	if err := n.resolveBrokerHostname(); err != nil {
		return xerrors.New(err).
			Category(xerrors.CategoryMQTT).
			Component("notify").
			Context("broker", n.config.Broker).
			Build()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(n.config.Broker)
	opts.SetClientID(n.config.ClientID)
	opts.SetUsername(n.config.Username)
	opts.SetPassword(n.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(n.onConnect)
	opts.SetConnectionLostHandler(n.onConnectionLost)
	opts.SetConnectRetry(true)

	n.client = mqtt.NewClient(opts)

	token := n.client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return xerrors.Newf("connection timeout to MQTT broker").
			Category(xerrors.CategoryMQTT).
			Component("notify").
			Build()
	}
	if err := token.Error(); err != nil {
		return xerrors.New(err).Category(xerrors.CategoryMQTT).Component("notify").Build()
	}
	return nil
}

func (n *Notifier) resolveBrokerHostname() error {
	u, err := url.Parse(n.config.Broker)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}
	if _, err := net.LookupHost(u.Hostname()); err != nil {
		return fmt.Errorf("failed to resolve hostname %s: %w", u.Hostname(), err)
	}
	return nil
}

// Publish sends ev as JSON to {TopicPrefix}/{ev.CompositionID}/{ev.Type}.
func (n *Notifier) Publish(ctx context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.isConnectedLocked() {
		return xerrors.Newf("not connected to MQTT broker").
			Category(xerrors.CategoryMQTT).
			Component("notify").
			Build()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return xerrors.New(err).Category(xerrors.CategoryMQTT).Component("notify").Build()
	}

	topic := fmt.Sprintf("%s/%s/%s", n.config.TopicPrefix, ev.CompositionID, ev.Type)
	token := n.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return xerrors.Newf("publish timeout on topic %s", topic).
			Category(xerrors.CategoryMQTT).
			Component("notify").
			Build()
	}
	return token.Error()
}

// IsConnected reports the current MQTT session state.
func (n *Notifier) IsConnected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.isConnectedLocked()
}

func (n *Notifier) isConnectedLocked() bool {
	return n.client != nil && n.client.IsConnected()
}

// Disconnect tears down the MQTT session and stops any pending
// reconnect timer.
func (n *Notifier) Disconnect() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.client != nil && n.client.IsConnected() {
		n.client.Disconnect(250)
	}
	if n.reconnectTimer != nil {
		n.reconnectTimer.Stop()
	}
	close(n.reconnectStop)
}

func (n *Notifier) onConnect(mqtt.Client) {
	logging.Info("connected to MQTT broker", "broker", n.config.Broker)
}

func (n *Notifier) onConnectionLost(_ mqtt.Client, err error) {
	logging.Warn("MQTT connection lost", "broker", n.config.Broker, "error", err)
	n.startReconnectTimer()
}

func (n *Notifier) startReconnectTimer() {
	n.reconnectTimer = time.AfterFunc(time.Minute, func() {
		select {
		case <-n.reconnectStop:
			return
		default:
			n.reconnectWithBackoff()
		}
	})
}

func (n *Notifier) reconnectWithBackoff() {
	backoff := time.Second
	maxBackoff := 5 * time.Minute

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := n.Connect(ctx)
		cancel()

		if err == nil {
			logging.Info("reconnected to MQTT broker", "broker", n.config.Broker)
			n.startReconnectTimer()
			return
		}

		logging.Warn("MQTT reconnect attempt failed", "broker", n.config.Broker, "error", err, "retry_in", backoff)

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		case <-n.reconnectStop:
			return
		}
	}
}
