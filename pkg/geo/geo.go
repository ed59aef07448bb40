// Package geo indexes the city's district boundary file. Results whose geo
// key values match boundary names can be rendered as a choropleth; the index
// answers those membership checks and supplies feature centroids.
package geo

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// nameProperty is the feature property carrying the district name in the
// city's boundary file.
const nameProperty = "S_NAME"

// DefaultCenter is the map center for Hachioji (lon, lat).
var DefaultCenter = orb.Point{139.33, 35.655}

// Index holds the boundary features keyed by district name.
type Index struct {
	fc       *geojson.FeatureCollection
	features map[string]*geojson.Feature
	names    []string
}

// Load reads and parses a boundary file.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boundary file: %w", err)
	}
	return Parse(data)
}

// Parse builds an index from GeoJSON. Features without the name property
// are skipped.
func Parse(data []byte) (*Index, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse boundary file: %w", err)
	}

	features := make(map[string]*geojson.Feature)
	for _, f := range fc.Features {
		name := strings.TrimSpace(f.Properties.MustString(nameProperty, ""))
		if name == "" {
			continue
		}
		features[name] = f
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("boundary file has no features with a %s property", nameProperty)
	}

	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Index{fc: fc, features: features, names: names}, nil
}

// Match reports whether name is a known district.
func (x *Index) Match(name string) bool {
	_, ok := x.features[strings.TrimSpace(name)]
	return ok
}

// Names returns every district name, sorted.
func (x *Index) Names() []string { return x.names }

// Len returns the number of indexed districts.
func (x *Index) Len() int { return len(x.features) }

// Centroid returns the planar centroid of the named district.
func (x *Index) Centroid(name string) (orb.Point, bool) {
	f, ok := x.features[strings.TrimSpace(name)]
	if !ok || f.Geometry == nil {
		return orb.Point{}, false
	}
	center, _ := planar.CentroidArea(f.Geometry)
	return center, true
}

// FeatureCollection exposes the parsed boundary file for serving to map
// clients.
func (x *Index) FeatureCollection() *geojson.FeatureCollection { return x.fc }
