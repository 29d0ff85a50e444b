package tenantauth

import (
	"io"
	"log/slog"

	internalaudit "github.com/MrEthical07/tenantauth/internal/audit"
	"github.com/segmentio/kafka-go"
)

// AuditEvent is one security-relevant engine event.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

type (
	NoOpSink       = internalaudit.NoOpSink
	ChannelSink    = internalaudit.ChannelSink
	JSONWriterSink = internalaudit.JSONWriterSink
	KafkaSink      = internalaudit.KafkaSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewKafkaSink publishes audit events to topic. Close the sink after the
// engine to flush pending messages.
func NewKafkaSink(brokers []string, topic string, log *slog.Logger) *KafkaSink {
	return internalaudit.NewKafkaSink(internalaudit.NewKafkaWriter(brokers, topic), log)
}

// NewKafkaSinkWithWriter is NewKafkaSink over a caller-built writer.
func NewKafkaSinkWithWriter(w *kafka.Writer, log *slog.Logger) *KafkaSink {
	return internalaudit.NewKafkaSink(w, log)
}
