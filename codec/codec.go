package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var ErrDecode = errors.New("unable to decode message body")

// Codec turns message bodies into values and back.
type Codec interface {
	Decode(raw string) (any, error)
	Encode(v any) (string, error)
}

// JSON is the default codec. Numbers decode as json.Number so that a body
// survives decode/encode without float rounding.
type JSON struct{}

func (JSON) Decode(raw string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after top-level value", ErrDecode)
	}

	return v, nil
}

func (JSON) Encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload to json: %w", err)
	}
	return string(b), nil
}

// Func adapts a pair of functions, e.g. a custom deserializer, to a Codec.
type Func struct {
	DecodeFunc func(raw string) (any, error)
	EncodeFunc func(v any) (string, error)
}

func (f Func) Decode(raw string) (any, error) {
	if f.DecodeFunc == nil {
		return JSON{}.Decode(raw)
	}
	v, err := f.DecodeFunc(raw)
	if err != nil && !errors.Is(err, ErrDecode) {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return v, err
}

func (f Func) Encode(v any) (string, error) {
	if f.EncodeFunc == nil {
		return JSON{}.Encode(v)
	}
	return f.EncodeFunc(v)
}
