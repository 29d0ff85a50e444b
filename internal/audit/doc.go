// Package audit delivers authentication events to sinks off the request path.
//
// [Dispatcher] is a bounded buffer drained by one goroutine. When the buffer
// is full it either blocks the caller (bounded by the caller's context) or
// drops the event and counts it, depending on [Config.DropIfFull]. Sinks
// never see plaintext credentials or token values: the engine only puts user
// ids, tenant ids, reasons and error codes into an [Event].
//
// Sinks shipped here: [NoOpSink], [ChannelSink] (tests), [JSONWriterSink]
// (one JSON object per line) and [KafkaSink] (segmentio/kafka-go writer,
// keyed by user id so one user's events stay ordered within a partition).
package audit
