package trails

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/dpup/trailmiles/server/internal/logging"
)

// ErrNoSegments is returned when every collection loaded but none held usable geometry
var ErrNoSegments = errors.New("no trail segments loaded")

// Loader reads every configured collection from a Source on each call
type Loader struct {
	source      Source
	collections []string
}

// NewLoader creates a Loader. Empty collections fall back to DefaultCollections.
func NewLoader(source Source, collections []string) *Loader {
	if len(collections) == 0 {
		collections = DefaultCollections
	}
	return &Loader{source: source, collections: collections}
}

// Network fetches and parses all collections. A missing or unparseable collection
// fails the whole load.
func (l *Loader) Network(ctx context.Context) (*Network, error) {
	var (
		segments []Segment
		errs     error
	)

	for _, name := range l.collections {
		data, err := l.source.Fetch(ctx, name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to fetch %s: %w", name, err))
			continue
		}

		parsed, err := ParseCollection(name, data)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		logging.Debugw(ctx, "Loaded trail collection", "collection", name, "segments", len(parsed))
		segments = append(segments, parsed...)
	}

	if errs != nil {
		return nil, errs
	}

	network := NewNetwork(segments, l.collections...)
	if network.IsEmpty() {
		return nil, ErrNoSegments
	}

	logging.Infow(ctx, "Trail network loaded",
		"collections", len(l.collections),
		"segments", len(network.Segments),
		"points", network.PointCount())

	return network, nil
}
