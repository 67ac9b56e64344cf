// Package notify tells downstream consumers that an exam went live or was
// taken down.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Operation types carried by an Event.
const (
	OpPublish   = "PUBLISH"
	OpUnpublish = "UNPUBLISH"
)

const (
	clientID   = "tm_admin"
	entityType = "exams"
)

// Event describes one publish or unpublish of an exam.
type Event struct {
	ExamID    string
	Operation string
	Version   int
	BlobKey   string
	At        int64
}

// Notifier delivers events. Callers treat delivery as best-effort.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Message is the JSON body sent to the queue.
type Message struct {
	ClientID           string `json:"clientId"`
	EntityType         string `json:"entityType"`
	UniqueIdentifier   string `json:"uniqueIdentifier"`
	OperationType      string `json:"operationType"`
	OperationTimestamp int64  `json:"operationTimestamp"`
	MessageSentAt      int64  `json:"messageSentAt"`
	Version            int    `json:"version,omitempty"`
	BlobBucketKey      string `json:"blobBucketKey,omitempty"`
}

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

var _ SQSAPI = (*sqs.Client)(nil)

// SQS sends events to a queue.
type SQS struct {
	api      SQSAPI
	queueURL string
	now      func() int64
}

var _ Notifier = (*SQS)(nil)

func NewSQS(api SQSAPI, queueURL string, now func() int64) *SQS {
	return &SQS{api: api, queueURL: queueURL, now: now}
}

func (s *SQS) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(Message{
		ClientID:           clientID,
		EntityType:         entityType,
		UniqueIdentifier:   ev.ExamID,
		OperationType:      ev.Operation,
		OperationTimestamp: ev.At,
		MessageSentAt:      s.now(),
		Version:            ev.Version,
		BlobBucketKey:      ev.BlobKey,
	})
	if err != nil {
		return err
	}
	_, err = s.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send %s event for exam %s: %w", ev.Operation, ev.ExamID, err)
	}
	slog.Debug("exam event sent", "exam_id", ev.ExamID, "operation", ev.Operation)
	return nil
}
