// Package report publishes YMODEM transfer status to an MQTT broker, so that a fleet
// of devices being updated over serial links can be watched from one place.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/denisbrodbeck/machineid"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/drunlade/go-ymodem/ymodem"
)

// appID scopes the hashed machine ID so it cannot be correlated across applications.
const appID = "go-ymodem"

// publishTimeout bounds how long a status publish may block the receive loop.
const publishTimeout = 2 * time.Second

// Status is the JSON document published for every transfer event.
type Status struct {
	Device    string    `json:"device"`
	Event     string    `json:"event"`
	File      string    `json:"file,omitempty"`
	Size      int64     `json:"size,omitempty"`
	Written   int64     `json:"written,omitempty"`
	Rate      float64   `json:"rate,omitempty"`
	Duration  float64   `json:"duration,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// client is the subset of mqtt.Client the publisher needs.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher turns receiver callbacks into MQTT status messages.
type Publisher struct {
	client client
	topic  string
	device string
	logger ymodem.Logger
}

// Dial connects to broker (e.g. tcp://host:1883) and returns a publisher for topic.
// The device field of every message is a hashed machine ID.
func Dial(broker, topic string, logger ymodem.Logger) (*Publisher, error) {
	device, err := machineid.ProtectedID(appID)
	if err != nil {
		return nil, fmt.Errorf("machine id: %w", err)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(appID + "-" + device[:12])
	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect %s: %w", broker, token.Error())
	}
	return newPublisher(c, topic, device, logger), nil
}

func newPublisher(c client, topic, device string, logger ymodem.Logger) *Publisher {
	if logger == nil {
		logger = ymodem.NoopLogger{}
	}
	return &Publisher{client: c, topic: topic, device: device, logger: logger}
}

// Callbacks returns receiver callbacks that publish start, progress, completion and
// error events.
func (p *Publisher) Callbacks() *ymodem.Callbacks {
	return &ymodem.Callbacks{
		OnFileStart: func(filename string, size int64) {
			p.publish(Status{Event: "start", File: filename, Size: size})
		},
		OnProgress: func(filename string, written, total int64, rate float64) {
			p.publish(Status{Event: "progress", File: filename, Size: total, Written: written, Rate: rate})
		},
		OnFileComplete: func(filename string, written int64, duration time.Duration) {
			p.publish(Status{Event: "complete", File: filename, Written: written, Duration: duration.Seconds()})
		},
		OnError: func(err error, context string) {
			p.publish(Status{Event: "error", Error: fmt.Sprintf("%s: %v", context, err)})
		},
	}
}

func (p *Publisher) publish(s Status) {
	s.Device = p.device
	s.Timestamp = time.Now().UTC()
	payload, err := json.Marshal(s)
	if err != nil {
		p.logger.Error("report: marshal %s: %v", s.Event, err)
		return
	}
	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.logger.Error("report: publish %s timed out", s.Event)
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Error("report: publish %s: %v", s.Event, err)
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
