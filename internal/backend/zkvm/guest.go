package zkvm

import (
	"fmt"
	"strings"

	"github.com/raster-lang/raster/internal/backend"
)

// DefaultToolchainChannel pins the guest toolchain version the
// reference build plan targets. Method-id stability depends on this
// staying fixed across a deployment.
const DefaultToolchainChannel = "raster-zkvm-1.2.0"

// GuestPlan is the minimal crate-equivalent build plan for one tile's
// guest program: an entry source implementing
// the host framing / ABI wrapper / journal commit contract, a build
// manifest pinning the toolchain and a no-stdlib, explicit-allocator
// embedded profile.
type GuestPlan struct {
	TileID           string
	ToolchainChannel string
	EntrySource      []byte
	ManifestSource   []byte
}

// BuildGuestPlan synthesizes the guest program for one tile: its
// entry reads a u32_le length prefix, reads exactly
// that many bytes, invokes the tile's ABI wrapper, commits the
// returned bytes to the journal via the zkVM's commit-slice primitive
// on success, and aborts on wrapper failure.
func BuildGuestPlan(meta backend.Metadata) GuestPlan {
	entry := fmt.Sprintf(`// Code generated by the raster zkVM backend for tile %[1]q. DO NOT EDIT.
#![no_std]
#![no_main]

raster_guest::entry!(main);

fn main() {
    let input = raster_guest::read_framed_input();
    match raster_tile_%[1]s::abi_entry(&input) {
        Ok(output) => raster_guest::commit_slice(&output),
        Err(_) => raster_guest::abort(),
    }
}
`, meta.TileID)

	manifest := fmt.Sprintf(`# Code generated by the raster zkVM backend for tile %[1]q. DO NOT EDIT.
[package]
name = "raster-guest-%[1]s"
edition = "2021"

[profile.guest]
panic = "abort"
opt-level = 3
lto = true

[dependencies]
raster_guest = { version = "=%[2]s" }
raster_tile_%[1]s = { path = "./tiles/%[1]s" }

[dependencies.raster_guest.features]
allocator = "embedded"
`, meta.TileID, strings.TrimPrefix(DefaultToolchainChannel, "raster-zkvm-"))

	return GuestPlan{
		TileID:           meta.TileID,
		ToolchainChannel: DefaultToolchainChannel,
		EntrySource:      []byte(entry),
		ManifestSource:   []byte(manifest),
	}
}
