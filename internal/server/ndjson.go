package server

import (
	"encoding/json"
	"io"
)

// streamEncoder writes newline-delimited JSON, used by the container-create
// event stream (§4.B Event) and any other incremental-progress endpoint.
type streamEncoder struct {
	enc *json.Encoder
}

func newStreamEncoder(w io.Writer) *streamEncoder {
	return &streamEncoder{enc: json.NewEncoder(w)}
}

func (e *streamEncoder) Encode(v any) {
	_ = e.enc.Encode(v)
}

// marshalSSE is a one-line json.Marshal wrapper so handlers_notify.go's SSE
// loop doesn't need its own import line for encoding/json.
func marshalSSE(v any) ([]byte, error) {
	return json.Marshal(v)
}
