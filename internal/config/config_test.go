package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "raster.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != "native" {
		t.Fatalf("expected default backend native, got %q", cfg.Backend)
	}
	if cfg.Commitment.BitsPerItem != DefaultBitsPerItem {
		t.Fatalf("expected default bits_per_item %d, got %d", DefaultBitsPerItem, cfg.Commitment.BitsPerItem)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raster.yaml")
	contents := `
backend: zkvm
artifact_root: ./build-artifacts
commitment:
  bits_per_item: 64
zkvm:
  region: us-west-2
  image_bucket: raster-images
  method_ids_table: raster-method-ids
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != "zkvm" {
		t.Fatalf("expected backend zkvm, got %q", cfg.Backend)
	}
	if cfg.ArtifactRoot != "./build-artifacts" {
		t.Fatalf("expected artifact_root override, got %q", cfg.ArtifactRoot)
	}
	if cfg.Commitment.BitsPerItem != 64 {
		t.Fatalf("expected bits_per_item 64, got %d", cfg.Commitment.BitsPerItem)
	}
	if cfg.ZKVM.ImageBucket != "raster-images" {
		t.Fatalf("expected image_bucket override, got %q", cfg.ZKVM.ImageBucket)
	}
}
