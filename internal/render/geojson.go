package render

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// TrackCollection wraps each segment in its own LineString feature.
func TrackCollection(lines orb.MultiLineString) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, ls := range lines {
		fc.Append(geojson.NewFeature(ls))
	}
	return fc
}

// PointFeature wraps a marker position as a GeoJSON feature.
func PointFeature(p orb.Point) *geojson.Feature {
	return geojson.NewFeature(p)
}
