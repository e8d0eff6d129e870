package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Question is a single multiple-choice question as served by the exam service.
type Question struct {
	ID      int       `json:"id"`
	Text    string    `json:"text" validate:"required"`
	Options OptionSet `json:"options" validate:"min=1,unique=Key,dive"`
}

// Option is one labelled choice within a question.
type Option struct {
	Key  string `json:"key" validate:"required"`
	Text string `json:"text"`
}

// OptionSet keeps options in the order the service sent them. On the wire it
// is a JSON object keyed by option label, e.g. {"A": "Paris", "B": "Berlin"}.
type OptionSet []Option

var errDuplicateOption = errors.New("duplicate option key")

// Has reports whether key labels one of the options.
func (s OptionSet) Has(key string) bool {
	for _, o := range s {
		if o.Key == key {
			return true
		}
	}
	return false
}

// Keys returns the option labels in display order.
func (s OptionSet) Keys() []string {
	keys := make([]string, len(s))
	for i, o := range s {
		keys[i] = o.Key
	}
	return keys
}

// UnmarshalJSON decodes the options object token by token so the server's
// key order survives.
func (s *OptionSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("options: expected object, got %v", tok)
	}

	out := OptionSet{}
	seen := make(map[string]struct{})
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var text string
		if err := dec.Decode(&text); err != nil {
			return fmt.Errorf("options[%s]: %w", key, err)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("options[%s]: %w", key, errDuplicateOption)
		}
		seen[key] = struct{}{}
		out = append(out, Option{Key: key, Text: text})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*s = out
	return nil
}

// MarshalJSON writes the options back as an object in display order.
func (s OptionSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, o := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(o.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(o.Text)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
