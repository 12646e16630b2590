package artifact

import (
	"fmt"
	"sort"

	"github.com/raster-lang/raster/internal/commitment"
	"github.com/raster-lang/raster/internal/identity"
)

// ManifestRoot computes a Merkle root over a build_all run's successful
// results, in tile-id order, reusing the commitment tree engine as a
// generic content-addressed summary rather than a trace commitment.
// Entries whose build failed are excluded; an all-failed build still
// produces the seed-only root.
func ManifestRoot(results []BuildResult) (identity.Hash, error) {
	sorted := make([]BuildResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TileID < sorted[j].TileID })

	tree := commitment.NewTree()
	for _, r := range sorted {
		if r.Err != nil {
			continue
		}
		leaf := identity.HashLeaves([]byte(r.TileID), r.Output.MethodID)
		if _, err := tree.AppendItem(leaf); err != nil {
			return identity.Hash{}, fmt.Errorf("artifact: appending manifest leaf for tile %s: %w", r.TileID, err)
		}
	}
	return tree.Root()
}
