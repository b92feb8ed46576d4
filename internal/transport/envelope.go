package transport

import (
	"bytes"
	"encoding/json"
	"fmt"

	apperrors "github.com/labtrack/labtrack-client/pkg/errors"
)

// SuccessCode is the envelope code of a successful call.
const SuccessCode = 200

// Envelope is the uniform {code, message, data} wrapper of every response.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// UnmarshalJSON accepts the message under either "message" or "msg".
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var aux struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Msg     string          `json:"msg"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.Code = aux.Code
	e.Message = aux.Message
	if e.Message == "" {
		e.Message = aux.Msg
	}
	e.Data = aux.Data
	return nil
}

// OK reports whether the envelope carries the success code.
func (e *Envelope) OK() bool {
	return e.Code == SuccessCode
}

// HasData reports whether data is present and not null.
func (e *Envelope) HasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// Decode unmarshals the envelope's data into a T.
func Decode[T any](env *Envelope) (T, error) {
	var out T
	if env == nil || !env.HasData() {
		return out, apperrors.ShapeMismatch("response has no data")
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, apperrors.ShapeMismatch(fmt.Sprintf("decode data: %v", err))
	}
	return out, nil
}
