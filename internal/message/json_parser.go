package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrJSONUnmarshalFailed = errors.New("failed to unmarshal JSON envelope")
	ErrJSONMarshalFailed   = errors.New("failed to marshal JSON envelope")
)

// ParseEnvelope decodes a JSON envelope. Missing tag and time are left zero
// for the caller to fill in; a missing record becomes an empty one.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrJSONUnmarshalFailed, err)
	}
	if env.Record == nil {
		env.Record = Record{}
	}
	return env, nil
}

// EncodeEnvelope is the inverse of ParseEnvelope.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJSONMarshalFailed, err)
	}
	return data, nil
}
