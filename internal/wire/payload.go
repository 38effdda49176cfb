package wire

import (
	"bytes"
	"encoding/json"
)

// Payload is the data carried by an outbound message.
//
// Callers choose the representation explicitly:
//   - Scalar carries text as-is.
//   - Structured serializes a value to compact JSON text.
//   - Null carries JSON null.
//
// A nil Payload is equivalent to Null.
type Payload interface {
	text() (*string, error)
}

type scalarPayload string

// Scalar returns a payload carrying s unchanged.
func Scalar(s string) Payload {
	return scalarPayload(s)
}

func (p scalarPayload) text() (*string, error) {
	s := string(p)

	return &s, nil
}

type structuredPayload struct {
	v any
}

// Structured returns a payload carrying the compact JSON text of v.
// The receiver gets that text as a string and parses it itself.
func Structured(v any) Payload {
	return structuredPayload{v: v}
}

func (p structuredPayload) text() (*string, error) {
	if p.v == nil {
		return nil, nil
	}

	buf := new(bytes.Buffer)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(p.v); err != nil {
		return nil, err
	}

	s := string(bytes.TrimSuffix(buf.Bytes(), []byte{Terminator}))

	return &s, nil
}

type nullPayload struct{}

// Null returns a payload carrying JSON null.
func Null() Payload {
	return nullPayload{}
}

func (nullPayload) text() (*string, error) {
	return nil, nil
}

func payloadText(p Payload) (*string, error) {
	if p == nil {
		return nil, nil
	}

	return p.text()
}
