package ai

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
)

// GenerateChunk is one newline-delimited record of an Ollama generate stream.
type GenerateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// LineDecoder reassembles newline-delimited JSON records from arbitrarily
// fragmented byte chunks. A record is only emitted once its terminating
// newline has been seen; the trailing incomplete fragment is carried across
// Feed calls.
type LineDecoder struct {
	buf []byte
}

// Feed appends p to the internal buffer and emits every complete line it now
// holds, in arrival order. Lines that are empty or do not start with '{' are
// skipped as non-protocol noise; lines that fail to unmarshal are logged and
// skipped. A non-nil error from emit stops decoding and is returned as-is.
func (d *LineDecoder) Feed(p []byte, emit func(GenerateChunk) error) error {
	d.buf = append(d.buf, p...)

	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return nil
		}
		line := strings.TrimSpace(string(d.buf[:idx]))
		d.buf = d.buf[idx+1:]

		chunk, ok := decodeLine(line)
		if !ok {
			continue
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
}

// Flush attempts one final parse of the residual buffer. The stream having
// ended, a residual that fails to parse is logged and discarded, never fatal.
func (d *LineDecoder) Flush(emit func(GenerateChunk) error) error {
	line := strings.TrimSpace(string(d.buf))
	d.buf = nil
	if line == "" {
		return nil
	}

	chunk, ok := decodeLine(line)
	if !ok {
		return nil
	}
	return emit(chunk)
}

func decodeLine(line string) (GenerateChunk, bool) {
	if line == "" || !strings.HasPrefix(line, "{") {
		return GenerateChunk{}, false
	}

	var chunk GenerateChunk
	if err := json.Unmarshal([]byte(line), &chunk); err != nil {
		log.Printf("decode stream line failed: %v", err)
		return GenerateChunk{}, false
	}
	return chunk, true
}
