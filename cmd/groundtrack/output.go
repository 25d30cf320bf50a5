package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/paulmach/orb/geojson"

	"github.com/yonda-yonda/tle-with-mapbox/internal/groundtrack"
	"github.com/yonda-yonda/tle-with-mapbox/internal/render"
	"github.com/yonda-yonda/tle-with-mapbox/internal/tle"
)

type trackResult struct {
	elements tle.Elements
	track    *groundtrack.Track
}

// trackFeatures returns one LineString feature per segment, tagged with the
// satellite and pass it belongs to.
func trackFeatures(e tle.Elements, t *groundtrack.Track) []*geojson.Feature {
	fc := render.TrackCollection(t.Lines)
	for i, f := range fc.Features {
		f.Properties["name"] = e.Name
		f.Properties["catalog_number"] = e.CatalogNumber
		f.Properties["segment"] = i
		f.Properties["rotation"] = t.Rotation.String()
		f.Properties["pass_start"] = t.Pass.Start.UTC().Format("2006-01-02T15:04:05Z")
		f.Properties["pass_end"] = t.Pass.End.UTC().Format("2006-01-02T15:04:05Z")
	}
	return fc.Features
}

func writeGeoJSON(w io.Writer, results []trackResult) error {
	fc := geojson.NewFeatureCollection()
	for _, r := range results {
		fc.Features = append(fc.Features, trackFeatures(r.elements, r.track)...)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(fc)
}

func writeSVG(w io.Writer, e tle.Elements, t *groundtrack.Track) error {
	title := fmt.Sprintf("%d %s", e.CatalogNumber, t.Pass.Start.UTC().Format("2006-01-02 15:04 UTC"))
	if e.Name != "" {
		title = e.Name + " · " + title
	}
	opts := render.SVGOptions{Title: title}
	if len(t.Pass.Samples) > 0 {
		p := t.Pass.Samples[0].Point
		opts.Marker = &p
	}
	return render.WriteSVG(w, t.Lines, opts)
}
