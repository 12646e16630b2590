package artifact

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raster-lang/raster/internal/cfs"
	"github.com/raster-lang/raster/internal/rasterrors"
)

// Manifest is the JSON document written alongside each tile's image
// and method_id files.
type Manifest struct {
	TileID            cfs.TileID `json:"tile_id"`
	Backend           string     `json:"backend"`
	MethodIDHex       string     `json:"method_id"`
	ImageSizeBytes    int64      `json:"image_size_bytes"`
	SourceFingerprint string     `json:"source_fingerprint,omitempty"`
}

// tileDir returns the per-tile, per-backend artifact directory under
// root: tiles/<tile_id>/<backend>/.
func tileDir(root string, tileID cfs.TileID, backendName string) string {
	return filepath.Join(root, "tiles", tileID, backendName)
}

// WriteFile writes data to the given final path via write-to-temp-
// then-rename, so a crash or cancellation never leaves a partially
// written file observable at the final path.
func WriteFile(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifact: creating %s: %w", dir, err)
	}
	final := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("artifact: creating temp file for %s: %w", final, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("artifact: writing %s: %w", final, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("artifact: closing temp file for %s: %w", final, err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("artifact: renaming into place %s: %w", final, err)
	}
	return nil
}

// writeManifest persists the image (if non-empty), method_id, and
// manifest files for one tile build, each via write-to-temp-then-
// rename.
func writeManifest(dir string, manifest Manifest, image []byte) error {
	if len(image) > 0 {
		if err := WriteFile(dir, "image", image); err != nil {
			return err
		}
	}
	if err := WriteFile(dir, "method_id", []byte(manifest.MethodIDHex+"\n")); err != nil {
		return err
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: marshaling manifest for %s: %w", manifest.TileID, err)
	}
	return WriteFile(dir, "manifest", data)
}

// readManifest loads a previously written artifact directory,
// returning CacheCorrupt if the manifest or referenced files are
// missing or unparseable; the Builder treats this as "rebuild".
func readManifest(dir string) (Manifest, []byte, []byte, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "manifest"))
	if err != nil {
		return Manifest{}, nil, nil, rasterrors.Wrap(rasterrors.CacheCorrupt, "reading manifest", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return Manifest{}, nil, nil, rasterrors.Wrap(rasterrors.CacheCorrupt, "parsing manifest", err)
	}

	methodIDHexRaw, err := os.ReadFile(filepath.Join(dir, "method_id"))
	if err != nil {
		return Manifest{}, nil, nil, rasterrors.Wrap(rasterrors.CacheCorrupt, "reading method_id", err)
	}
	methodID, err := hex.DecodeString(strings.TrimSpace(string(methodIDHexRaw)))
	if err != nil {
		return Manifest{}, nil, nil, rasterrors.Wrap(rasterrors.CacheCorrupt, "decoding method_id hex", err)
	}

	var image []byte
	if manifest.ImageSizeBytes > 0 {
		image, err = os.ReadFile(filepath.Join(dir, "image"))
		if err != nil {
			return Manifest{}, nil, nil, rasterrors.Wrap(rasterrors.CacheCorrupt, "reading image", err)
		}
	}

	return manifest, image, methodID, nil
}
