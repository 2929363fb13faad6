// Package ingest stores daily wearable readings that devices publish over MQTT.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pulse-sentinel/internal/domain"
	"pulse-sentinel/internal/metrics"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const disconnectQuiesceMillis = 250

type SampleWriter interface {
	UpsertSamples(ctx context.Context, samples []domain.RawSample) error
}

type Options struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
}

type Subscriber struct {
	tracer    trace.Tracer
	writer    SampleWriter
	opts      Options
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

func NewSubscriber(tracer trace.Tracer, writer SampleWriter, opts Options) *Subscriber {
	if opts.QoS > 2 {
		opts.QoS = 1
	}
	return &Subscriber{
		tracer:    tracer,
		writer:    writer,
		opts:      opts,
		newClient: mqtt.NewClient,
	}
}

// Start connects, subscribes on every (re)connect and blocks until ctx is
// cancelled. It returns early only when the first connection fails.
func (s *Subscriber) Start(ctx context.Context) error {
	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(s.opts.Broker)
	clientOpts.SetClientID(s.opts.ClientID)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectTimeout(10 * time.Second)
	clientOpts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(s.opts.Topic, s.opts.QoS, s.messageHandler(ctx))
		token.Wait()
		if err := token.Error(); err != nil {
			slog.Error("mqtt subscribe failed", "topic", s.opts.Topic, "error", err)
			return
		}
		slog.Info("mqtt subscribed", "broker", s.opts.Broker, "topic", s.opts.Topic)
	})
	clientOpts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "error", err)
	})

	client := s.newClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.opts.Broker, token.Error())
	}

	<-ctx.Done()
	client.Disconnect(disconnectQuiesceMillis)
	slog.Info("mqtt subscriber stopped")
	return nil
}

func (s *Subscriber) messageHandler(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if err := s.HandleMessage(ctx, msg.Topic(), msg.Payload()); err != nil {
			slog.Warn("mqtt payload rejected", "topic", msg.Topic(), "error", err)
		}
	}
}

// HandleMessage decodes one payload and stores its samples.
func (s *Subscriber) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	ctx, span := s.tracer.Start(ctx, "ingest.handle-message")
	defer span.End()
	span.SetAttributes(attribute.String("mqtt.topic", topic))

	samples, err := Decode(payload, TopicUser(s.opts.Topic, topic))
	if err != nil {
		metrics.IngestErrors.Inc()
		span.RecordError(err)
		return err
	}
	if err := s.writer.UpsertSamples(ctx, samples); err != nil {
		metrics.IngestErrors.Inc()
		span.RecordError(err)
		return fmt.Errorf("store samples: %w", err)
	}
	metrics.IngestedSamples.Add(float64(len(samples)))
	span.SetAttributes(attribute.Int("ingest.samples", len(samples)))
	return nil
}

// Decode accepts a single sample object or an array of them. Samples without
// a user id take fallbackUser, typically the device segment of the topic.
func Decode(payload []byte, fallbackUser string) ([]domain.RawSample, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidInput)
	}

	var samples []domain.RawSample
	if payload[0] == '[' {
		if err := json.Unmarshal(payload, &samples); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
	} else {
		var one domain.RawSample
		if err := json.Unmarshal(payload, &one); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		samples = []domain.RawSample{one}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no samples in payload", domain.ErrInvalidInput)
	}

	for i := range samples {
		if strings.TrimSpace(samples[i].UserID) == "" {
			samples[i].UserID = fallbackUser
		}
		if samples[i].UserID == "" {
			return nil, fmt.Errorf("%w: sample %d has no user_id", domain.ErrInvalidInput, i)
		}
		if samples[i].DayIndex < 0 {
			return nil, fmt.Errorf("%w: sample %d has negative day_index", domain.ErrInvalidInput, i)
		}
		if err := samples[i].Metrics().Validate(); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return samples, nil
}

// TopicUser returns the topic level matched by the first single-level
// wildcard of pattern, e.g. "u7" for "wearables/+/daily" and "wearables/u7/daily".
func TopicUser(pattern, topic string) string {
	want := strings.Split(pattern, "/")
	got := strings.Split(topic, "/")
	for i, level := range want {
		if level == "+" && i < len(got) {
			return got[i]
		}
		if level == "#" {
			break
		}
	}
	return ""
}
