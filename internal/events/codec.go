package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"time"
)

// TimestampLayout is the ISO-8601 layout used for timestamp fields.
const TimestampLayout = time.RFC3339Nano

// EncodeError reports an envelope that cannot be represented as JSON.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string { return "encode envelope: " + e.Err.Error() }

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError reports a payload that is not a JSON object.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode envelope: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

var errNotObject = errors.New("payload is not a JSON object")

// Encode serializes env as UTF-8 JSON. Keys are emitted in sorted order so
// equal envelopes produce equal bytes.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(map[string]any(env))
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	return data, nil
}

// Decode parses a JSON object into an Envelope. Numbers are kept as
// json.Number so integer fields survive without float rounding.
//
// Decode(Encode(e)) equals e only when e already holds decoded values: Go
// ints and floats come back as json.Number and typed maps as
// map[string]any. Read numbers through Envelope.Int64 rather than by type.
func Decode(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if err := dec.Decode(new(any)); err != io.EOF {
		if err == nil {
			err = errors.New("trailing data after object")
		}
		return nil, &DecodeError{Err: err}
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &DecodeError{Err: errNotObject}
	}
	return Envelope(obj), nil
}
