package inference

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	eventOutputTextDelta = "response.output_text.delta"
	eventCompleted       = "response.completed"
)

type deltaPayload struct {
	Delta string `json:"delta"`
}

type completedPayload struct {
	Response *Response `json:"response"`
}

// parseState drives the line-oriented block reader. The states are explicit
// so the ordering guarantee is mechanically visible: a block is only handled
// once fully accumulated, and the next line is only read after the previous
// block (and its sink call) has been fully processed.
type parseState int

const (
	stateAccumulatingBlock parseState = iota
	stateBlockComplete
	stateStreamDone
)

type streamParser struct {
	reader *bufio.Reader
	sink   Sink

	block    []string
	sawEOF   bool
	terminal *Response
}

// parseStream consumes a streaming response body. The body is a sequence of
// blocks of "event:" / "data:" lines separated by blank lines. Delta blocks
// are forwarded to sink in arrival order; the terminal block becomes the
// return value. A stream that ends without a terminal block is a protocol
// error regardless of how many deltas arrived, because usage stats and the
// continuation id only exist on the terminal payload.
func parseStream(body io.Reader, sink Sink) (*Response, error) {
	parser := &streamParser{reader: bufio.NewReader(body), sink: sink}

	state := stateAccumulatingBlock
	for state != stateStreamDone {
		switch state {
		case stateAccumulatingBlock:
			next, err := parser.readLine()
			if err != nil {
				return nil, err
			}
			state = next
		case stateBlockComplete:
			done, err := parser.handleBlock()
			if err != nil {
				return nil, err
			}
			if done || parser.sawEOF {
				state = stateStreamDone
			} else {
				state = stateAccumulatingBlock
			}
		}
	}

	if parser.terminal == nil {
		return nil, &ProtocolError{Reason: "stream ended without a terminal event"}
	}
	return parser.terminal, nil
}

func (p *streamParser) readLine() (parseState, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return stateStreamDone, fmt.Errorf("reading stream: %w", err)
	}

	if errors.Is(err, io.EOF) {
		p.sawEOF = true
	}

	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return stateBlockComplete, nil
	}

	p.block = append(p.block, line)
	if p.sawEOF {
		return stateBlockComplete, nil
	}
	return stateAccumulatingBlock, nil
}

// handleBlock classifies and consumes the accumulated block. Malformed
// non-terminal blocks are skipped, never fatal; a malformed terminal block is
// a protocol error since nothing after it can recover the completion.
func (p *streamParser) handleBlock() (bool, error) {
	lines := p.block
	p.block = nil

	var event, data string
	for _, line := range lines {
		if value, ok := strings.CutPrefix(line, "event:"); ok {
			event = strings.TrimSpace(value)
		} else if value, ok := strings.CutPrefix(line, "data:"); ok {
			data = strings.TrimSpace(value)
		}
	}

	switch event {
	case eventOutputTextDelta:
		if data == "" {
			slog.Warn("delta event without data line, skipping")
			return false, nil
		}
		var payload deltaPayload
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			slog.Warn("malformed delta payload, skipping", "error", err)
			return false, nil
		}
		if p.sink != nil {
			p.sink(payload.Delta)
		}
		return false, nil

	case eventCompleted:
		if data == "" {
			return false, &ProtocolError{Reason: "terminal event without data line"}
		}
		var payload completedPayload
		if err := json.Unmarshal([]byte(data), &payload); err != nil || payload.Response == nil {
			return false, &ProtocolError{Reason: "malformed terminal event payload"}
		}
		p.terminal = payload.Response
		return true, nil

	case "":
		return false, nil

	default:
		// Servers add event kinds over time; unknown ones are not our problem.
		return false, nil
	}
}
