package backend

import (
	"github.com/raster-lang/raster/internal/codec"
	"github.com/raster-lang/raster/internal/rasterrors"
)

// TileFunc is one tile's in-process implementation: arity-many typed
// arguments in, arity-many typed results out.
type TileFunc func(args []codec.Value) ([]codec.Value, error)

// WrappedTileFunc is the tile ABI boundary function: raw input bytes
// in, raw output bytes out.
type WrappedTileFunc func(input []byte) ([]byte, error)

// Wrap builds the tile ABI wrapper for one tile: decode input_bytes
// per the arity rule, invoke fn, propagate a typed tile error
// if any, and encode the result the same way. Decode/encode failures
// surface as Serialization errors; a failure returned by fn itself is
// passed through unconverted (callers wrap it per their own backend's
// error kind, e.g. BackendExecute).
func Wrap(inputArity, outputArity int, fn TileFunc) WrappedTileFunc {
	return func(input []byte) ([]byte, error) {
		args, err := codec.DecodeArgs(inputArity, input)
		if err != nil {
			return nil, rasterrors.Wrap(rasterrors.Serialization, "decoding tile input", err)
		}
		results, err := fn(args)
		if err != nil {
			return nil, err
		}
		out, err := codec.EncodeArgs(outputArity, results)
		if err != nil {
			return nil, rasterrors.Wrap(rasterrors.Serialization, "encoding tile output", err)
		}
		return out, nil
	}
}
