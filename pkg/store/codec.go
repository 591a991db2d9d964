package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeLog serializes messages as JSONL, one message per line, oldest first.
func EncodeLog(msgs []Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, m := range msgs {
		if err := enc.Encode(m); err != nil {
			return nil, fmt.Errorf("encode message %s: %w", m.ID, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeLog parses a JSONL log written by EncodeLog. Unlike the session
// files this format is all-or-nothing: a single bad line rejects the log.
func DecodeLog(data []byte) ([]Message, error) {
	var msgs []Message
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !m.Role.Valid() {
			return nil, fmt.Errorf("line %d: invalid role %q", line, m.Role)
		}
		msgs = append(msgs, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}
