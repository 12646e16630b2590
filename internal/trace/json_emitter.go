package trace

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/raster-lang/raster/internal/commitment"
)

// wireTraceItem is the JSON rendering of a TraceItem. []byte fields
// marshal as standard base64 via encoding/json's default []byte
// handling.
type wireTraceItem struct {
	FnName  string `json:"fn_name"`
	Inputs  []byte `json:"inputs"`
	Outputs []byte `json:"outputs"`
	Meta    struct {
		Backend string `json:"backend"`
		Mode    string `json:"mode"`
	} `json:"signature_meta"`
}

// JsonEmitter serializes each TraceItem directly to w with no
// delimiter between objects, so the output is a concatenated JSON
// stream rather than line-delimited JSON, preserving exact-byte
// reproducibility of the emitted transcript.
type JsonEmitter struct {
	w io.Writer
}

// NewJsonEmitter constructs a JsonEmitter writing to w.
func NewJsonEmitter(w io.Writer) *JsonEmitter {
	return &JsonEmitter{w: w}
}

func (e *JsonEmitter) OnTrace(item commitment.TraceItem) error {
	var wire wireTraceItem
	wire.FnName = item.FnName
	wire.Inputs = item.Inputs
	wire.Outputs = item.Outputs
	wire.Meta.Backend = item.SignatureMeta.Backend
	wire.Meta.Mode = item.SignatureMeta.Mode

	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("trace: marshaling trace item %q: %w", item.FnName, err)
	}
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("trace: writing trace item %q: %w", item.FnName, err)
	}
	return nil
}

func (e *JsonEmitter) OnComplete() error { return nil }
