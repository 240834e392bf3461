package audit

import "go.uber.org/zap"

// Sink emits a finalized Record exactly once. The HTTP surface calls Emit
// from the streaming finalization block (spec.md §4.7 step 5) after
// Finalize has set the terminal fields.
type Sink interface {
	Emit(r *Record)
}

// ZapSink emits records through a zap.Logger as a single structured log
// line: "inference_audit" plus one structured field per record field. zap's JSON
// encoder renders this as exactly what spec.md §6 asks for — "one line per
// event... prefixed with a human tag and carrying a serialized JSON
// object equal to the record fields."
type ZapSink struct {
	Logger *zap.Logger
}

// NewZapSink wraps logger as a Sink.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{Logger: logger}
}

// Emit logs r once. It never blocks on I/O failures — zap itself handles
// buffering and, on a write error, falls back to stderr, so a broken log
// sink can never stall request finalization.
func (s *ZapSink) Emit(r *Record) {
	s.Logger.Info("inference_audit",
		zap.String("id", r.ID),
		zap.String("uid", r.UID),
		zap.String("o", r.Org),
		zap.String("ou", r.OrgUnit),
		zap.String("service", r.Service),
		zap.String("portal", r.Portal),
		zap.Int64("input_size", r.InputSize),
		zap.Int64("output_size", r.OutputSize),
		zap.String("start_timestamp", r.StartTimestamp),
		zap.String("end_timestamp", r.EndTimestamp),
		zap.String("status", string(r.Status)),
		zap.Int("input_tokens", r.InputTokens),
		zap.Int("output_tokens", r.OutputTokens),
	)
}
