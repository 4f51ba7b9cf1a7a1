// Package messages defines the envelope carried on the messages topic and its
// JSON wire encoding.
package messages

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrMalformedEnvelope is returned when bytes or values do not form a valid envelope.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrEncodingFailure is returned when a valid envelope cannot be serialized.
	ErrEncodingFailure = errors.New("envelope encoding failure")
)

// Action selects the mutation an envelope applies.
type Action string

const (
	ActionCreate Action = "Create"
	ActionUpdate Action = "Update"
	ActionDelete Action = "Delete"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Payload is the row content for Create and Update.
type Payload struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Envelope is the unit of work published to and consumed from the broker.
type Envelope struct {
	Action    Action   `json:"action"`
	MessageID int32    `json:"message_id"`
	Data      *Payload `json:"data"`
}

// Key returns the message id in decimal, used as a partition key.
func (e Envelope) Key() string {
	return strconv.FormatInt(int64(e.MessageID), 10)
}

func (e Envelope) String() string {
	if e.Data == nil {
		return fmt.Sprintf("%s(message_id=%d)", e.Action, e.MessageID)
	}
	return fmt.Sprintf("%s(message_id=%d, name=%q, message=%q)", e.Action, e.MessageID, e.Data.Name, e.Data.Message)
}

// Validate checks the action-dependent rules of an already constructed envelope.
func (e Envelope) Validate() error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrMalformedEnvelope, e.Action)
	}
	if e.Action != ActionDelete && e.Data == nil {
		return fmt.Errorf("%w: %s requires data", ErrMalformedEnvelope, e.Action)
	}
	if e.Data != nil && (!utf8.ValidString(e.Data.Name) || !utf8.ValidString(e.Data.Message)) {
		return fmt.Errorf("%w: data is not valid UTF-8", ErrMalformedEnvelope)
	}
	return nil
}

// wireEnvelope uses pointers so that absent keys can be told apart from zero values.
type wireEnvelope struct {
	Action    *Action      `json:"action" validate:"required,oneof=Create Update Delete"`
	MessageID *int32       `json:"message_id" validate:"required"`
	Data      *wirePayload `json:"data"`
}

type wirePayload struct {
	Name    *string `json:"name" validate:"required"`
	Message *string `json:"message" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report wire names (message_id) rather than Go field names (MessageID).
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Encode serializes a valid envelope. Invalid envelopes are never encoded.
func Encode(e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodingFailure, err)
	}
	return b, nil
}

// Decode parses and validates an encoded envelope.
func Decode(b []byte) (Envelope, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty input", ErrMalformedEnvelope)
	}

	if !utf8.Valid(b) {
		return Envelope{}, fmt.Errorf("%w: input is not valid UTF-8", ErrMalformedEnvelope)
	}
	if err := checkKeys(b, "action", "message_id", "data"); err != nil {
		return Envelope{}, err
	}

	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if err := validate.Struct(w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}

	e := Envelope{
		Action:    *w.Action,
		MessageID: *w.MessageID,
	}
	if w.Data != nil {
		e.Data = &Payload{Name: *w.Data.Name, Message: *w.Data.Message}
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// checkKeys rejects objects where a known key is repeated or spelled with a different
// case, both of which encoding/json would otherwise accept. Unknown keys are allowed.
// Input that is not an object is left to json.Unmarshal to reject.
func checkKeys(b []byte, known ...string) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}

	seen := make(map[string]bool, len(known))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := tok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil
		}

		for _, k := range known {
			if !strings.EqualFold(key, k) {
				continue
			}
			if key != k {
				return fmt.Errorf("%w: field %q must be spelled %q", ErrMalformedEnvelope, key, k)
			}
			if seen[k] {
				return fmt.Errorf("%w: duplicate field %q", ErrMalformedEnvelope, k)
			}
			seen[k] = true
		}

		if key == "data" {
			if err := checkKeys(value, "name", "message"); err != nil {
				return err
			}
		}
	}
	return nil
}
