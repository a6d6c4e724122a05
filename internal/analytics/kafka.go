package analytics

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/avisly/playengine/internal/metrics"
	"github.com/avisly/playengine/internal/model"
)

const defaultWorkerNum = 4

// ErrQueueFull is returned when the producer cannot accept more messages
var ErrQueueFull = errors.New("analytics queue full")

// messageWriter is the part of *kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds configuration for the Kafka sink
type KafkaConfig struct {
	Brokers   []string
	Topic     string
	WorkerNum int
	QueueSize int
	Logger    zerolog.Logger
}

// KafkaSink streams events to a topic through a worker pool
type KafkaSink struct {
	writer messageWriter
	topic  string
	logger zerolog.Logger
	jobs   chan kafka.Message
	wg     sync.WaitGroup
	once   sync.Once
}

// NewKafkaSink creates a sink writing to cfg.Brokers
func NewKafkaSink(cfg KafkaConfig) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	return newKafkaSink(writer, cfg)
}

func newKafkaSink(writer messageWriter, cfg KafkaConfig) *KafkaSink {
	workerNum := cfg.WorkerNum
	if workerNum <= 0 {
		workerNum = defaultWorkerNum
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}

	s := &KafkaSink{
		writer: writer,
		topic:  cfg.Topic,
		logger: cfg.Logger.With().Str("component", "kafka-producer").Logger(),
		jobs:   make(chan kafka.Message, queueSize),
	}

	for i := 0; i < workerNum; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	return s
}

func (s *KafkaSink) worker() {
	defer s.wg.Done()
	for msg := range s.jobs {
		func() {
			defer s.recover()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := s.writer.WriteMessages(ctx, msg); err != nil {
				metrics.RecordAnalyticsDropped(s.Name())
				s.logger.Error().
					Err(err).
					Str("topic", msg.Topic).
					Str("key", string(msg.Key)).
					Msg("Failed to send message to Kafka")
				return
			}
			s.logger.Debug().
				Str("topic", msg.Topic).
				Str("key", string(msg.Key)).
				Msg("Message sent to Kafka")
		}()
	}
}

// Name implements Sink
func (s *KafkaSink) Name() string { return "kafka" }

// Record implements Sink. Messages are queued; delivery happens in workers.
func (s *KafkaSink) Record(_ context.Context, events []model.AnalyticsEvent) error {
	for _, e := range events {
		value, err := EncodeEvent(e)
		if err != nil {
			return err
		}
		msg := kafka.Message{
			Topic: s.topic,
			Key:   []byte(e.SessionID.String()),
			Value: value,
			Time:  e.CreatedAt,
		}
		select {
		case s.jobs <- msg:
		default:
			return ErrQueueFull
		}
	}
	return nil
}

// Close drains queued messages and closes the writer
func (s *KafkaSink) Close() error {
	var err error
	s.once.Do(func() {
		close(s.jobs)
		s.wg.Wait()
		if cerr := s.writer.Close(); cerr != nil {
			s.logger.Error().Err(cerr).Msg("Error closing Kafka producer")
			err = cerr
		}
	})
	return err
}

func (s *KafkaSink) recover() {
	if r := recover(); r != nil {
		s.logger.Error().
			Str("operation", "send_message_kafka").
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack_trace", string(debug.Stack())).
			Msg("Panic recovered")
	}
}

// EncodeEvent renders an event as a protobuf Struct in JSON form
func EncodeEvent(e model.AnalyticsEvent) ([]byte, error) {
	payload, err := structpb.NewStruct(map[string]any{
		"id":          e.ID.String(),
		"session_id":  e.SessionID.String(),
		"campaign_id": e.CampaignID.String(),
		"event_type":  string(e.EventType),
		"created_at":  e.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build event payload: %w", err)
	}
	data, err := protojson.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}
