// Package config loads the project-level raster.yaml file: backend
// selection, artifact storage location, commitment bit-width, and the
// zkVM backend's S3/DynamoDB coordinates.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultBitsPerItem is the commitment projection width used when a
// project config omits commitment.bits_per_item.
const DefaultBitsPerItem = 16

// Config is the raster.yaml schema.
type Config struct {
	// Backend names the project's default backend; Load sets it to
	// "native" when the file leaves it empty. The cmd/raster
	// subcommands do not read it: they take the backend from --backend
	// alone, which defaults to "native".
	Backend string `yaml:"backend"`

	// ArtifactRoot overrides the artifact cache directory. Empty means
	// the default, relative to the project root.
	ArtifactRoot string `yaml:"artifact_root"`

	Commitment CommitmentConfig `yaml:"commitment"`
	ZKVM       ZKVMConfig       `yaml:"zkvm"`
}

// CommitmentConfig controls the packed-bit projection width used by
// internal/trace's Committer and Auditor.
type CommitmentConfig struct {
	BitsPerItem uint `yaml:"bits_per_item"`
}

// ZKVMConfig names the S3 bucket and DynamoDB table the zkVM backend
// uses for content-addressed guest image storage and method-id lookup.
type ZKVMConfig struct {
	Region         string `yaml:"region"`
	ImageBucket    string `yaml:"image_bucket"`
	MethodIDsTable string `yaml:"method_ids_table"`
}

// Default returns a Config populated with the project's built-in
// defaults, used when no raster.yaml is present.
func Default() Config {
	return Config{
		Backend: "native",
		Commitment: CommitmentConfig{
			BitsPerItem: DefaultBitsPerItem,
		},
	}
}

// Load reads and parses path, applying defaults to any field the file
// leaves zero-valued. A missing file is not an error: Load returns
// Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if cfg.Commitment.BitsPerItem == 0 {
		cfg.Commitment.BitsPerItem = DefaultBitsPerItem
	}
	if cfg.Backend == "" {
		cfg.Backend = "native"
	}
	return cfg, nil
}
