package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"hatch-backend/internal/ai"
)

const (
	DataStreamHeader  = "X-Vercel-AI-Data-Stream"
	DataStreamVersion = "v1"
)

// Part codes of the data stream line protocol. Every line is
// "<code>:<json value>\n".
const (
	partText               = '0'
	partData               = '2'
	partError              = '3'
	partMessageAnnotations = '8'
	partToolCall           = '9'
	partToolResult         = 'a'
	partToolCallStart      = 'b'
	partToolCallDelta      = 'c'
	partFinishMessage      = 'd'
	partFinishStep         = 'e'
	partStartStep          = 'f'
)

// DataStreamWriter encodes stream events for the client. After the first
// failed write every further write is dropped, so a disconnected client
// never interrupts the generation that is still running.
type DataStreamWriter struct {
	w       io.Writer
	flusher http.Flusher
	err     error
}

func NewDataStreamWriter(w io.Writer) *DataStreamWriter {
	flusher, _ := w.(http.Flusher)
	return &DataStreamWriter{w: w, flusher: flusher}
}

// Err returns the write error that caused output to be dropped, if any.
func (d *DataStreamWriter) Err() error {
	return d.err
}

func (d *DataStreamWriter) writePart(code byte, value any) {
	if d.err != nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		slog.Error("error encoding stream part", "code", string(code), "error", err)
		return
	}

	line := make([]byte, 0, len(data)+3)
	line = append(line, code, ':')
	line = append(line, data...)
	line = append(line, '\n')

	if _, err := d.w.Write(line); err != nil {
		slog.Warn("client stream closed, dropping further output", "error", err)
		d.err = fmt.Errorf("error writing stream part: %w", err)
		return
	}
	if d.flusher != nil {
		d.flusher.Flush()
	}
}

func (d *DataStreamWriter) WriteText(text string) {
	d.writePart(partText, text)
}

// WriteData sends a custom data value. The client receives it wrapped in an
// array.
func (d *DataStreamWriter) WriteData(value any) {
	d.writePart(partData, []any{value})
}

func (d *DataStreamWriter) WriteMessageAnnotation(value any) {
	d.writePart(partMessageAnnotations, []any{value})
}

func (d *DataStreamWriter) WriteError(msg string) {
	d.writePart(partError, msg)
}

// WriteStreamPart relays one event of a text generation.
func (d *DataStreamWriter) WriteStreamPart(part ai.StreamPart) {
	switch part.Type {
	case ai.StreamStepStart:
		d.writePart(partStartStep, map[string]any{"messageId": part.MessageId})
	case ai.StreamTextDelta:
		d.WriteText(part.Text)
	case ai.StreamToolCallStart:
		d.writePart(partToolCallStart, map[string]any{"toolCallId": part.ToolCallId, "toolName": part.ToolName})
	case ai.StreamToolCallDelta:
		d.writePart(partToolCallDelta, map[string]any{"toolCallId": part.ToolCallId, "argsTextDelta": part.ArgsDelta})
	case ai.StreamToolCall:
		d.writePart(partToolCall, map[string]any{"toolCallId": part.ToolCallId, "toolName": part.ToolName, "args": part.Args})
	case ai.StreamToolResult:
		d.writePart(partToolResult, map[string]any{"toolCallId": part.ToolCallId, "result": part.Result})
	case ai.StreamStepFinish:
		d.writePart(partFinishStep, map[string]any{
			"finishReason": part.FinishReason,
			"usage":        part.Usage,
			"isContinued":  part.IsContinued,
		})
	case ai.StreamFinish:
		d.writePart(partFinishMessage, map[string]any{
			"finishReason": part.FinishReason,
			"usage":        part.Usage,
		})
	}
}
