// Package events publishes assessment and batch completion notices to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

// Event types, appended to the subject prefix
const (
	TypeAssessmentCompleted = "assessment.completed"
	TypeBatchCompleted      = "batch.completed"
)

const queueSize = 256

// Conn is the subset of *nats.Conn the publisher needs
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Event is the envelope written to the wire
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// AssessmentCompleted is the payload of TypeAssessmentCompleted
type AssessmentCompleted struct {
	AssessmentID       string  `json:"assessment_id"`
	Repository         string  `json:"repository"`
	Path               string  `json:"path"`
	OverallScore       float64 `json:"overall_score"`
	CertificationLevel string  `json:"certification_level"`
	AttributesAssessed int     `json:"attributes_assessed"`
	AttributesTotal    int     `json:"attributes_total"`
	DurationMs         int64   `json:"duration_ms"`
}

// BatchCompleted is the payload of TypeBatchCompleted
type BatchCompleted struct {
	BatchID   string  `json:"batch_id"`
	Requested int     `json:"requested"`
	Succeeded int     `json:"succeeded"`
	MeanScore float64 `json:"mean_score"`
}

// Publisher queues events and sends them from a single goroutine. With no
// connection every method is a no-op.
type Publisher struct {
	conn    Conn
	prefix  string
	logger  *monitoring.Logger
	metrics *monitoring.Metrics

	queue     chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// Connect dials url and returns a started publisher. An empty url yields a
// disabled publisher.
func Connect(ctx context.Context, url, prefix string, logger *monitoring.Logger, metrics *monitoring.Metrics) (*Publisher, error) {
	if url == "" {
		return NewPublisher(nil, prefix, logger, metrics), nil
	}

	nc, err := nats.Connect(url,
		nats.Name("readiness-o-meter"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	p := NewPublisher(nc, prefix, logger, metrics)
	p.Start(ctx)
	logger.Info("Event publisher connected", "url", nc.ConnectedUrl(), "prefix", p.prefix)
	return p, nil
}

// NewPublisher wraps an existing connection; conn may be nil
func NewPublisher(conn Conn, prefix string, logger *monitoring.Logger, metrics *monitoring.Metrics) *Publisher {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = "readiness"
	}
	return &Publisher{
		conn:    conn,
		prefix:  prefix,
		logger:  logger,
		metrics: metrics,
		queue:   make(chan Event, queueSize),
		done:    make(chan struct{}),
	}
}

// Enabled reports whether events leave the process
func (p *Publisher) Enabled() bool {
	return p != nil && p.conn != nil
}

// Subject returns the full subject for an event type
func (p *Publisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// Start launches the send loop. It stops when ctx ends or Close is called.
func (p *Publisher) Start(ctx context.Context) {
	if !p.Enabled() {
		return
	}
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.sendLoop(ctx)
	})
}

// PublishAssessment queues an assessment.completed event
func (p *Publisher) PublishAssessment(a types.Assessment) error {
	return p.enqueue(TypeAssessmentCompleted, AssessmentCompleted{
		AssessmentID:       a.ID,
		Repository:         a.Repository.Name,
		Path:               a.Repository.Path,
		OverallScore:       a.OverallScore,
		CertificationLevel: string(a.CertificationLevel),
		AttributesAssessed: a.AttributesAssessed,
		AttributesTotal:    a.AttributesTotal,
		DurationMs:         a.DurationMs,
	})
}

// PublishBatch queues a batch.completed event
func (p *Publisher) PublishBatch(batchID string, requested int, results []types.TbenchResult) error {
	mean := 0.0
	for _, r := range results {
		mean += r.Score
	}
	if len(results) > 0 {
		mean /= float64(len(results))
	}
	return p.enqueue(TypeBatchCompleted, BatchCompleted{
		BatchID:   batchID,
		Requested: requested,
		Succeeded: len(results),
		MeanScore: mean,
	})
}

func (p *Publisher) enqueue(eventType string, data interface{}) error {
	if !p.Enabled() {
		return nil
	}
	event := Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data}

	select {
	case <-p.done:
		return fmt.Errorf("event publisher closed")
	default:
	}

	select {
	case p.queue <- event:
		return nil
	default:
		p.metrics.RecordEventPublished(p.Subject(eventType), false)
		return fmt.Errorf("event queue is full")
	}
}

func (p *Publisher) sendLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.drainQueue()
			return
		case <-p.done:
			p.drainQueue()
			return
		case event := <-p.queue:
			p.send(event)
		}
	}
}

func (p *Publisher) drainQueue() {
	for {
		select {
		case event := <-p.queue:
			p.send(event)
		default:
			return
		}
	}
}

func (p *Publisher) send(event Event) {
	subject := p.Subject(event.Type)
	data, err := json.Marshal(event)
	if err == nil {
		err = p.conn.Publish(subject, data)
	}
	p.metrics.RecordEventPublished(subject, err == nil)
	if err != nil {
		p.logger.Error("Failed to publish event", "subject", subject, "error", err)
	}
}

// Close flushes queued events and drains the connection
func (p *Publisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		err = p.conn.Drain()
	})
	return err
}
