// Package geo turns recorded flight samples into geometries.
package geo

import (
	"fmt"

	"github.com/OCAP2/parachute/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Path builds an XYZ LineString through the sample positions. Fewer than two
// samples give an empty line.
func Path(samples []core.PathSample) geom.LineString {
	if len(samples) < 2 {
		return geom.LineString{}
	}
	flat := make([]float64, 0, len(samples)*3)
	for _, s := range samples {
		flat = append(flat, s.Position.X(), s.Position.Y(), s.Position.Z())
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXYZ))
}

// GroundDistance is the horizontal length of the flight path in game units.
func GroundDistance(samples []core.PathSample) float64 {
	return Path(samples).Length()
}

// Drop is the height lost between the first and the last sample. Negative
// when the player ended higher than they started.
func Drop(samples []core.PathSample) float64 {
	if len(samples) < 2 {
		return 0
	}
	return samples[0].Position.Z() - samples[len(samples)-1].Position.Z()
}

// PathWKT renders the path as WKT for text storage.
func PathWKT(samples []core.PathSample) string {
	return Path(samples).AsText()
}

// PathWKB renders the path as WKB for binary storage.
func PathWKB(samples []core.PathSample) []byte {
	return Path(samples).AsBinary()
}

// ParsePathWKT reads a path back from WKT. Only the positions survive.
func ParsePathWKT(wkt string) ([]core.Vector, error) {
	g, err := geom.UnmarshalWKT(wkt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse path WKT: %w", err)
	}
	ls, ok := g.AsLineString()
	if !ok {
		return nil, fmt.Errorf("path WKT is a %s, not a LineString", g.Type())
	}
	seq := ls.Coordinates()
	out := make([]core.Vector, seq.Length())
	for i := range out {
		c := seq.Get(i)
		out[i] = core.Vector{c.X, c.Y, c.Z}
	}
	return out, nil
}
