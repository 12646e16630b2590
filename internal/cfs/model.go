// Package cfs defines the Control Flow Schema document model and the
// builder that assembles one from discovery and data-flow-resolution
// output.
package cfs

// TileID is a case-sensitive UTF-8 string, unique within one project.
type TileID = string

// SequenceID is a case-sensitive UTF-8 string, unique within one
// project, and in a namespace disjoint from TileID.
type SequenceID = string

// TileKind distinguishes a one-shot tile from a step-function tile
// driven to completion by an orchestrator.
type TileKind string

const (
	// Iter tiles execute exactly once per invocation.
	Iter TileKind = "iter"
	// Recur tiles are step functions: output arity is input arity + 1,
	// the leading output is a `done` boolean, and repetition is driven
	// by the orchestrator rather than host recursion.
	Recur TileKind = "recur"
)

// TileDef is one compiled tile's static shape.
type TileDef struct {
	ID      TileID   `json:"id"`
	Kind    TileKind `json:"kind"`
	Inputs  uint32   `json:"inputs"`
	Outputs uint32   `json:"outputs"`

	// ArtifactIdentity optionally binds this tile, for a given backend
	// name, to a specific content identity. The
	// CFS Builder never requires or validates it; `raster build`
	// populates it after a successful full build.
	ArtifactIdentity map[string][]byte `json:"artifact_identity,omitempty"`
}

// InputSourceKind discriminates the InputBinding union.
type InputSourceKind string

const (
	// External means the value must be supplied by the caller; only
	// the entry sequence should legitimately carry these.
	External InputSourceKind = "external"
	// SeqInput means the value is the enclosing sequence's Nth
	// parameter.
	SeqInput InputSourceKind = "seq_input"
	// ItemOutput means the value is a prior item's Nth output.
	ItemOutput InputSourceKind = "item_output"
)

// InputBinding records where one callee argument's value originates.
// It is externally tagged in JSON by Kind under the key "type".
type InputBinding struct {
	Kind InputSourceKind

	// InputIndex is meaningful only when Kind == SeqInput.
	InputIndex uint32
	// ItemIndex and OutputIndex are meaningful only when
	// Kind == ItemOutput.
	ItemIndex   uint32
	OutputIndex uint32
}

// NewExternal constructs an External binding.
func NewExternal() InputBinding { return InputBinding{Kind: External} }

// NewSeqInput constructs a SeqInput{input_index} binding.
func NewSeqInput(index uint32) InputBinding {
	return InputBinding{Kind: SeqInput, InputIndex: index}
}

// NewItemOutput constructs an ItemOutput{item_index, output_index}
// binding. Only output index 0 is modeled today.
func NewItemOutput(itemIndex, outputIndex uint32) InputBinding {
	return InputBinding{Kind: ItemOutput, ItemIndex: itemIndex, OutputIndex: outputIndex}
}

// ItemKind distinguishes a tile invocation from a nested sequence
// invocation within a SequenceDef's items.
type ItemKind string

const (
	TileItem     ItemKind = "tile"
	SequenceItem ItemKind = "sequence"
)

// Item is one call site within a sequence body, in authoring order.
type Item struct {
	Kind         ItemKind       `json:"kind"`
	Callee       string         `json:"callee"`
	InputSources []InputBinding `json:"input_sources"`
}

// SequenceDef is an ordered composition of tile and sequence
// invocations with explicit data-flow bindings. Item order is
// authoritative.
type SequenceDef struct {
	ID           SequenceID     `json:"id"`
	InputSources []InputBinding `json:"input_sources"`
	Items        []Item         `json:"items"`
}

// ControlFlowSchema is the static, JSON-rendered description of all
// tiles, sequences, and their bindings in a project.
type ControlFlowSchema struct {
	Version   string        `json:"version"`
	Project   string        `json:"project"`
	Encoding  string        `json:"encoding"`
	Tiles     []TileDef     `json:"tiles"`
	Sequences []SequenceDef `json:"sequences"`
}

// EntrySequenceID is the name reserved for the one sequence whose
// External bindings carry real provenance.
const EntrySequenceID = "main"

// TileByID returns the TileDef with the given id, if any.
func (c *ControlFlowSchema) TileByID(id TileID) (TileDef, bool) {
	for _, t := range c.Tiles {
		if t.ID == id {
			return t, true
		}
	}
	return TileDef{}, false
}

// SequenceByID returns the SequenceDef with the given id, if any.
func (c *ControlFlowSchema) SequenceByID(id SequenceID) (SequenceDef, bool) {
	for _, s := range c.Sequences {
		if s.ID == id {
			return s, true
		}
	}
	return SequenceDef{}, false
}

// OutputArity returns the declared output count of a callee, looking
// it up first as a tile then as a sequence (a sequence's arity is the
// output arity of its final item, or 0 if it has none).
func (c *ControlFlowSchema) OutputArity(callee string) (uint32, bool) {
	if t, ok := c.TileByID(callee); ok {
		return t.Outputs, true
	}
	if s, ok := c.SequenceByID(callee); ok {
		if len(s.Items) == 0 {
			return 0, true
		}
		last := s.Items[len(s.Items)-1]
		return c.OutputArity(last.Callee)
	}
	return 0, false
}

// InputArity returns the declared input count of a callee.
func (c *ControlFlowSchema) InputArity(callee string) (uint32, bool) {
	if t, ok := c.TileByID(callee); ok {
		return t.Inputs, true
	}
	if s, ok := c.SequenceByID(callee); ok {
		return uint32(len(s.InputSources)), true
	}
	return 0, false
}
