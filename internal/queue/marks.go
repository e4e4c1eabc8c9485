package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"qrattend/internal/attendance"
)

// TypeMarked identifies a message carrying a JSON attendance record.
const TypeMarked = "attendance.marked"

const publishTimeout = 2 * time.Second

// MarkPublisher forwards every new attendance record onto a queue.
type MarkPublisher struct {
	q Queue
}

// NewMarkPublisher wraps q.
func NewMarkPublisher(q Queue) *MarkPublisher {
	return &MarkPublisher{q: q}
}

// RecordMarked implements attendance.MarkListener. The record is already
// stored, so a client hanging up must not drop the event.
func (p *MarkPublisher) RecordMarked(ctx context.Context, rec attendance.Record) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, rec); err != nil {
		log.Printf("queue publish failed for record %s: %v", rec.ID, err)
	}
}

// Publish encodes rec and enqueues it.
func (p *MarkPublisher) Publish(ctx context.Context, rec attendance.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return p.q.Publish(ctx, Message{Type: TypeMarked, Body: body})
}

// DecodeMarked returns the record carried by a TypeMarked message.
func DecodeMarked(msg Message) (attendance.Record, error) {
	if msg.Type != TypeMarked {
		return attendance.Record{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var rec attendance.Record
	if err := json.Unmarshal(msg.Body, &rec); err != nil {
		return attendance.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
