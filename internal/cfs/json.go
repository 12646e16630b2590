package cfs

import (
	"encoding/json"
	"fmt"
)

// wireBinding is the externally-tagged wire shape for InputBinding:
// {"type": "external"} | {"type": "seq_input", "input_index": N} |
// {"type": "item_output", "item_index": I, "output_index": O}.
type wireBinding struct {
	Type        InputSourceKind `json:"type"`
	InputIndex  *uint32         `json:"input_index,omitempty"`
	ItemIndex   *uint32         `json:"item_index,omitempty"`
	OutputIndex *uint32         `json:"output_index,omitempty"`
}

// MarshalJSON renders the InputBinding union with an externally-tagged
// "type" discriminator.
func (b InputBinding) MarshalJSON() ([]byte, error) {
	w := wireBinding{Type: b.Kind}
	switch b.Kind {
	case SeqInput:
		idx := b.InputIndex
		w.InputIndex = &idx
	case ItemOutput:
		item, out := b.ItemIndex, b.OutputIndex
		w.ItemIndex = &item
		w.OutputIndex = &out
	case External:
		// no payload
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the externally-tagged wire shape back into an
// InputBinding.
func (b *InputBinding) UnmarshalJSON(data []byte) error {
	var w wireBinding
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case External:
		*b = NewExternal()
	case SeqInput:
		if w.InputIndex == nil {
			return fmt.Errorf("cfs: seq_input binding missing input_index")
		}
		*b = NewSeqInput(*w.InputIndex)
	case ItemOutput:
		if w.ItemIndex == nil || w.OutputIndex == nil {
			return fmt.Errorf("cfs: item_output binding missing item_index/output_index")
		}
		*b = NewItemOutput(*w.ItemIndex, *w.OutputIndex)
	default:
		return fmt.Errorf("cfs: unknown input binding type %q", w.Type)
	}
	return nil
}

// ToJSON renders the schema as pretty-printed JSON.
func (c *ControlFlowSchema) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// FromJSON parses a pretty-printed (or compact) CFS document.
func FromJSON(data []byte) (*ControlFlowSchema, error) {
	var c ControlFlowSchema
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
