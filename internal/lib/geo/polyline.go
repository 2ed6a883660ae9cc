package geo

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-polyline"
)

var (
	// ErrEmptyPolyline is returned when there is nothing to decode
	ErrEmptyPolyline = errors.New("encoded polyline string is empty")

	// ErrInvalidCoordinate is returned when a decoded point falls outside lat/lon range
	ErrInvalidCoordinate = errors.New("decoded polyline contains invalid coordinates")
)

// DecodeError reports an empty or malformed encoded polyline
type DecodeError struct {
	Length int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode polyline (%d bytes): %v", e.Length, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodePolyline decodes a Google encoded polyline into (lat, lon) points.
// Every failure is a *DecodeError.
func DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, &DecodeError{Err: ErrEmptyPolyline}
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, &DecodeError{Length: len(encoded), Err: err}
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{
			Latitude:  coord[0],
			Longitude: coord[1],
		}
		if !isValidCoordinate(points[i]) {
			return nil, &DecodeError{Length: len(encoded), Err: ErrInvalidCoordinate}
		}
	}

	return points, nil
}

// EncodePolyline encodes points with the standard 1e5 precision
func EncodePolyline(points []Point) string {
	if len(points) == 0 {
		return ""
	}
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}
