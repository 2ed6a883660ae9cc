package trails

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/dpup/trailmiles/server/internal/lib/codec"
)

const snapshotVersion = 1

type snapshotFile struct {
	Version int      `cbor:"1,keyasint"`
	Network *Network `cbor:"2,keyasint"`
}

// WriteSnapshot writes the network as zstd-compressed CBOR
func WriteSnapshot(w io.Writer, network *Network) error {
	if network.IsEmpty() {
		return ErrNoSegments
	}

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}

	if err := codec.NewEncoder(zw).Encode(snapshotFile{Version: snapshotVersion, Network: network}); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot reads a network written by WriteSnapshot. Segments with fewer
// than two points are dropped as they are when loading GeoJSON.
func ReadSnapshot(r io.Reader) (*Network, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var file snapshotFile
	if err := codec.NewDecoder(zr).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	if file.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", file.Version)
	}
	if file.Network == nil {
		return nil, ErrNoSegments
	}

	network := NewNetwork(file.Network.Segments, file.Network.Collections...)
	if network.IsEmpty() {
		return nil, ErrNoSegments
	}
	return network, nil
}

// WriteSnapshotFile writes a snapshot to path, replacing any existing file
func WriteSnapshotFile(path string, network *Network) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}

	if err := WriteSnapshot(f, network); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}

	return os.Rename(tmp, path)
}

// SnapshotProvider serves the network from a snapshot file on disk
type SnapshotProvider struct {
	path string
}

// NewSnapshotProvider creates a provider reading path on every call
func NewSnapshotProvider(path string) *SnapshotProvider {
	return &SnapshotProvider{path: path}
}

// Network reads and decodes the snapshot file
func (p *SnapshotProvider) Network(ctx context.Context) (*Network, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	return ReadSnapshot(f)
}
