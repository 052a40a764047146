// Package audit forwards committed ledger events to a Kafka topic so
// downstream systems (reporting, compliance archives) get an append-only
// feed without querying the node. The feed is best-effort: a full queue or
// an unreachable broker never blocks or fails a ledger command.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/landvn/landledger/events"
)

const queueSize = 256

// Config holds the audit feed settings. Disabled by default.
type Config struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

// messageWriter is the slice of kafka.Writer the publisher needs; tests
// substitute a fake.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher drains a bounded queue of events into Kafka from a background
// goroutine.
type Publisher struct {
	writer messageWriter
	queue  chan events.Event
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPublisher creates a Publisher from cfg. With Enabled false it returns
// (nil, nil) and the caller simply wires nothing.
func NewPublisher(cfg Config) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Topic == "" {
		return nil, errors.New("audit: topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("audit: at least one broker is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 100 * time.Millisecond,
	}
	return newPublisher(w), nil
}

func newPublisher(w messageWriter) *Publisher {
	p := &Publisher{writer: w, queue: make(chan events.Event, queueSize)}
	p.wg.Add(1)
	go p.run()
	return p
}

// Attach subscribes the publisher to the full event stream.
func (p *Publisher) Attach(emitter *events.Emitter) {
	for _, typ := range events.AllTypes {
		emitter.Subscribe(typ, p.enqueue)
	}
}

// enqueue never blocks; when the queue is full the event is dropped and
// counted against the log, not against the ledger command that emitted it.
func (p *Publisher) enqueue(ev events.Event) {
	select {
	case p.queue <- ev:
	default:
		log.Printf("[audit] queue full, dropping %s", ev.Type)
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for ev := range p.queue {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("[audit] marshal %s: %v", ev.Type, err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(ev.Type),
			Value: data,
		})
		cancel()
		if err != nil {
			log.Printf("[audit] publish %s: %v", ev.Type, err)
		}
	}
}

// Close drains the queue, stops the worker and closes the writer.
func (p *Publisher) Close() error {
	p.once.Do(func() { close(p.queue) })
	p.wg.Wait()
	return p.writer.Close()
}
