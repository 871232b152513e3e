package domain

import "encoding/json"

// ChangePayload holds the JSON snapshot of one side of a Change. Snapshots are
// stored as bytes so rules and detectors cannot alias live transaction state.
type ChangePayload struct {
	defined bool
	raw     json.RawMessage
}

// NewChangePayload wraps raw JSON, cloning the bytes.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	payload := ChangePayload{defined: true}
	if raw != nil {
		payload.raw = append(json.RawMessage(nil), raw...)
	}
	return payload
}

// NewChangePayloadFromValue marshals a record into a ChangePayload.
func NewChangePayloadFromValue[T any](value T) (ChangePayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}, err
	}
	return NewChangePayload(raw), nil
}

// Defined reports whether the payload has been initialized.
func (p ChangePayload) Defined() bool {
	return p.defined
}

// Raw returns a copy of the JSON bytes, nil when undefined.
func (p ChangePayload) Raw() json.RawMessage {
	if !p.defined || len(p.raw) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), p.raw...)
}

// DecodeChangePayload unmarshals a defined payload into T.
func DecodeChangePayload[T any](p ChangePayload) (T, bool) {
	var out T
	if !p.defined || len(p.raw) == 0 {
		return out, false
	}
	if err := json.Unmarshal(p.raw, &out); err != nil {
		return out, false
	}
	return out, true
}
