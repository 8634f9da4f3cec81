package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/flowforge/enginecore/engine"
)

// Log writes one line per event to writer. Text mode prints key=value
// pairs; JSON mode prints one compact JSON object per line for downstream
// log aggregation.
type Log struct {
	writer   io.Writer
	jsonMode bool
}

// NewLog returns a Log backend writing to writer (os.Stdout if nil).
func NewLog(writer io.Writer, jsonMode bool) *Log {
	if writer == nil {
		writer = os.Stdout
	}
	return &Log{writer: writer, jsonMode: jsonMode}
}

func (l *Log) Publish(event engine.Event) {
	event = stampIfZero(event)
	if l.jsonMode {
		b, err := json.Marshal(logLine{
			Type:            string(event.Type),
			ExecutionID:     event.ExecutionID,
			FlowID:          event.FlowID,
			StepID:          event.StepID,
			TimestampUnixMs: event.TimestampUnixMs,
			Meta:            event.Meta,
		})
		if err != nil {
			return
		}
		fmt.Fprintln(l.writer, string(b))
		return
	}
	fmt.Fprintf(l.writer, "[%s] ts=%d executionId=%s flowId=%s stepId=%s meta=%v\n",
		event.Type, event.TimestampUnixMs, event.ExecutionID, event.FlowID, event.StepID, event.Meta)
}

func (l *Log) PublishBatch(_ context.Context, events []engine.Event) error {
	for _, e := range events {
		l.Publish(e)
	}
	return nil
}

func (l *Log) Flush(context.Context) error { return nil }

type logLine struct {
	Type            string                 `json:"type"`
	ExecutionID     string                 `json:"executionId"`
	FlowID          string                 `json:"flowId"`
	StepID          string                 `json:"stepId,omitempty"`
	TimestampUnixMs int64                  `json:"timestamp"`
	Meta            map[string]interface{} `json:"meta,omitempty"`
}
