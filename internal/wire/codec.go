package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/wagiedev/stdio-ipc-go/internal/errors"
)

// Encode returns the wire line for a message carrying payload, including the
// trailing terminator. Serialization failures are returned as *errors.EncodeError.
func Encode(event string, payload Payload, sr bool) ([]byte, error) {
	data, err := payloadText(payload)
	if err != nil {
		return nil, &errors.EncodeError{Event: event, Err: err}
	}

	return EncodeMessage(Message{Event: event, Data: data, SR: sr})
}

// EncodeReply returns the wire line answering a request on channel. A
// non-empty errMsg is carried in the error field.
func EncodeReply(channel string, payload Payload, errMsg string) ([]byte, error) {
	data, err := payloadText(payload)
	if err != nil {
		return nil, &errors.EncodeError{Event: channel, Err: err}
	}

	m := Message{Event: channel, Data: data}
	if errMsg != "" {
		m.Error = &errMsg
	}

	return EncodeMessage(m)
}

// EncodeMessage returns the wire line for m, including the trailing terminator.
func EncodeMessage(m Message) ([]byte, error) {
	buf := new(bytes.Buffer)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)

	// Encoder.Encode appends the newline terminator.
	if err := enc.Encode(&m); err != nil {
		return nil, &errors.EncodeError{Event: m.Event, Err: err}
	}

	return buf.Bytes(), nil
}

// Decode parses frame as exactly one message object. Surrounding whitespace,
// including the terminator, is ignored.
func Decode(frame []byte) (Message, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Message{}, errors.ErrNotAMessage
	}

	var m Message
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return Message{}, err
	}

	return m, nil
}

// TryDecodeWhole attempts to parse a raw chunk as one complete message.
// It reports false on any failure and never panics.
func TryDecodeWhole(chunk []byte) (Message, bool) {
	m, err := Decode(chunk)

	return m, err == nil
}

// RecoverPartial appends chunk to buffered and decodes the first
// newline-delimited segment, falling back to Repair when the segment is not a
// well-formed message. The bytes after that segment are returned as rest
// whether or not decoding succeeded; a failed segment is discarded.
//
// buffered is never modified in place.
func RecoverPartial(buffered, chunk []byte) (Message, []byte, error) {
	buf := buffered
	if len(chunk) > 0 {
		buf = append(buffered[:len(buffered):len(buffered)], chunk...)
	}

	segment, rest := buf, []byte(nil)
	if i := bytes.IndexByte(buf, Terminator); i >= 0 {
		segment, rest = buf[:i], buf[i+1:]
	}

	if m, err := Decode(segment); err == nil {
		return m, rest, nil
	}

	m, err := decodeRepaired(segment)
	if err != nil {
		return Message{}, rest, &errors.DecodeError{RawData: string(segment), Err: err}
	}

	return m, rest, nil
}

// Repair applies the best-effort cleanup used to resynchronize after diagnostic
// text was interleaved with frames: newlines become element separators, the
// first doubled single quote is collapsed, a trailing separator is dropped,
// and the result is wrapped in an array literal.
func Repair(text []byte) []byte {
	s := bytes.ReplaceAll(text, []byte("\r\n"), []byte{'\n'})
	s = bytes.ReplaceAll(s, []byte{'\n'}, []byte{','})
	s = bytes.Replace(s, []byte("''"), []byte("'"), 1)
	s = bytes.TrimSpace(s)
	s = bytes.TrimSuffix(s, []byte{','})

	out := make([]byte, 0, len(s)+2)
	out = append(out, '[')
	out = append(out, s...)
	out = append(out, ']')

	return out
}

func decodeRepaired(segment []byte) (Message, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(Repair(segment), &elems); err != nil {
		return Message{}, fmt.Errorf("repair: %w", err)
	}

	if len(elems) == 0 {
		return Message{}, errors.ErrNotAMessage
	}

	return Decode(elems[0])
}
