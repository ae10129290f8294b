// Package consumer feeds lifecycle events from Kafka into the read-model
// tables. It undoes the outbox dispatcher's wire framing and hands each
// decoded event to a Handler; offsets are committed only after the handler
// succeeds, so processing is at-least-once and handlers must be idempotent.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader is the slice of kafka.Reader the processor depends on.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler consumes decoded events. Returning an error leaves the offset
// uncommitted so the event is redelivered.
type Handler interface {
	Handle(context.Context, Event) error
}

// Event is one decoded record from a lifecycle topic.
type Event struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor drives the fetch/decode/handle/commit cycle for one reader.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.New(log.Writer(), "[readmodel] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		p.process(ctx, record)
	}
}

func (p *Processor) process(ctx context.Context, record kafka.Message) {
	event, err := decodeEvent(record)
	if err != nil {
		p.logger.Printf("undecodable record at %s[%d]@%d: %v", record.Topic, record.Partition, record.Offset, err)
		recordDecodeError(record.Topic)
		// A record that cannot be decoded never will be; commit past it
		// rather than loop on a poison pill.
		if commitErr := p.reader.CommitMessages(ctx, record); commitErr != nil {
			p.logger.Printf("commit error after decode failure: %v", commitErr)
		}
		return
	}

	if err := p.handler.Handle(ctx, event); err != nil {
		p.logger.Printf("handler error (event_type=%s): %v", event.EventType, err)
		recordHandlerError(event)
		return
	}

	if err := p.reader.CommitMessages(ctx, record); err != nil {
		p.logger.Printf("commit error: %v", err)
		return
	}
	recordProcessed(event)
}

// decodeEvent strips the 5-byte Confluent frame and lifts routing metadata
// out of the record headers.
func decodeEvent(record kafka.Message) (Event, error) {
	if len(record.Value) < 5 {
		return Event{}, fmt.Errorf("frame too short: %d bytes", len(record.Value))
	}

	eventType, ok := header(record, "event_type")
	if !ok {
		return Event{}, errors.New("missing event_type header")
	}
	schemaSubject, _ := header(record, "schema_subject")

	payload := json.RawMessage(append([]byte(nil), record.Value[5:]...))

	return Event{
		Topic:         record.Topic,
		Partition:     record.Partition,
		Offset:        record.Offset,
		Timestamp:     record.Time,
		EventType:     string(eventType),
		SchemaSubject: string(schemaSubject),
		SchemaID:      int(binary.BigEndian.Uint32(record.Value[1:5])),
		Payload:       payload,
	}, nil
}

func header(record kafka.Message, key string) ([]byte, bool) {
	for _, h := range record.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return nil, false
}
