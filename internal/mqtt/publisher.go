package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bearwatch/bearwatch/internal/detection"
	"github.com/bearwatch/bearwatch/internal/errors"
	"github.com/bearwatch/bearwatch/internal/logger"
)

// BearTopicSuffix is appended to the base topic for bear-positive events.
const BearTopicSuffix = "/bear"

// DetectionMessage is the JSON payload published for every recorded
// detection. Field names are part of the subscriber contract.
type DetectionMessage struct {
	ID           uint64  `json:"id"`
	Location     string  `json:"location"`
	DetectedAt   string  `json:"detected_at"` // RFC 3339
	BearDetected bool    `json:"bear_detected"`
	Confidence   float64 `json:"confidence"`
	Source       string  `json:"source,omitempty"` // instance name
}

// NewDetectionMessage builds the payload for ev.
func NewDetectionMessage(ev *detection.Event, source string) DetectionMessage {
	return DetectionMessage{
		ID:           ev.ID,
		Location:     ev.Location,
		DetectedAt:   ev.DetectedAt.Format(time.RFC3339),
		BearDetected: ev.BearDetected,
		Confidence:   ev.Confidence,
		Source:       source,
	}
}

// Publisher is a detection observer that publishes every recorded event to
// the base topic and bear-positive events also to <topic>/bear.
type Publisher struct {
	client Client
	topic  string
	source string
	log    logger.Logger
}

// NewPublisher returns a publisher on topic.
func NewPublisher(client Client, topic, source string) *Publisher {
	return &Publisher{
		client: client,
		topic:  topic,
		source: source,
		log:    GetLogger(),
	}
}

// Name identifies the observer.
func (p *Publisher) Name() string { return "mqtt" }

// Observe publishes ev.
func (p *Publisher) Observe(ctx context.Context, ev detection.Event) error {
	payload, err := json.Marshal(NewDetectionMessage(&ev, p.source))
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "marshal").
			Build()
	}

	var errs []error
	if err := p.client.Publish(ctx, p.topic, payload); err != nil {
		errs = append(errs, err)
	}
	if ev.BearDetected {
		if err := p.client.Publish(ctx, p.topic+BearTopicSuffix, payload); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	p.log.Debug("detection published",
		logger.Uint64("id", ev.ID),
		logger.String("topic", p.topic),
		logger.Bool("bear_detected", ev.BearDetected))
	return nil
}
