package groundtrack

import "github.com/paulmach/orb"

// segmenter is the accumulator threaded through Segment's fold.
type segmenter struct {
	rotation Rotation
	lines    orb.MultiLineString
	prev     orb.Point
	started  bool
}

func (s *segmenter) add(p orb.Point) {
	if !s.started {
		// The first sample is compared with itself and never crosses.
		s.lines = orb.MultiLineString{{}}
		s.prev = p
		s.started = true
	}

	lon, lat := p.Lon(), p.Lat()
	plon, plat := s.prev.Lon(), s.prev.Lat()

	switch {
	case s.rotation == Counterclockwise && lon < 0 && plon > 0:
		// Eastbound over +180: unwrap lon by +360 and blend linearly.
		crossLat := (lat-plat)/(360+lon-plon)*(180-plon) + plat
		s.close(orb.Point{180, crossLat}, orb.Point{-180, crossLat})
	case s.rotation == Clockwise && lon > 0 && plon < 0:
		// Westbound over -180: unwrap lon by -360.
		crossLat := (lat-plat)/(-360+lon-plon)*(-180-plon) + plat
		s.close(orb.Point{-180, crossLat}, orb.Point{180, crossLat})
	}

	last := len(s.lines) - 1
	s.lines[last] = append(s.lines[last], p)
	s.prev = p
}

// close ends the current segment at end and opens a new one at start.
func (s *segmenter) close(end, start orb.Point) {
	last := len(s.lines) - 1
	s.lines[last] = append(s.lines[last], end)
	s.lines = append(s.lines, orb.LineString{start})
}

// Segment splits an ordered ground track into segments that never wrap across
// the anti-meridian. Each crossing closes the current segment with an
// interpolated point on the boundary and opens the next on the opposite
// boundary at the same latitude. A path with no crossing comes back as a single
// segment equal to the input; an empty path yields no segments.
func Segment(rotation Rotation, points []orb.Point) orb.MultiLineString {
	acc := segmenter{rotation: rotation}
	for _, p := range points {
		acc.add(p)
	}
	return acc.lines
}

// Crossings returns the number of anti-meridian crossings in a segmented track.
func Crossings(lines orb.MultiLineString) int {
	if len(lines) == 0 {
		return 0
	}
	return len(lines) - 1
}
