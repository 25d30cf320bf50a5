package render

import (
	"bufio"
	"fmt"
	"html"
	"io"

	"github.com/paulmach/orb"
)

// SVG map constants
const (
	defaultSVGWidth   = 1080
	graticuleStepDeg  = 30
	backgroundColor   = "#f4f6f8"
	graticuleColor    = "#c5ccd3"
	equatorColor      = "#8a949e"
	trackColor        = "#d7263d"
	markerColor       = "#1b998b"
	trackStrokeWidth  = "2"
	markerRadius      = 5.0
	titleFontSize     = 14
	gridLabelFontSize = 9
)

// SVGOptions controls WriteSVG output.
type SVGOptions struct {
	Width  int        // pixels, height is Width/2
	Title  string     // drawn top-left when set
	Marker *orb.Point // current satellite position, optional
}

// projector maps lon/lat degrees onto an equirectangular canvas.
type projector struct {
	width, height float64
}

func (p projector) xy(pt orb.Point) (x, y float64) {
	x = (pt.Lon() + 180) / 360 * p.width
	y = (90 - pt.Lat()) / 180 * p.height
	return
}

// WriteSVG draws segmented ground-track lines on an equirectangular world grid.
// Segments are drawn as separate polylines, so a correctly segmented track
// never streaks across the map.
func WriteSVG(w io.Writer, lines orb.MultiLineString, opts SVGOptions) error {
	width := opts.Width
	if width <= 0 {
		width = defaultSVGWidth
	}
	proj := projector{width: float64(width), height: float64(width) / 2}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, `<svg width="%d" height="%d" viewBox="0 0 %d %d" xmlns="http://www.w3.org/2000/svg">`,
		width, width/2, width, width/2)
	fmt.Fprintf(bw, `<rect width="100%%" height="100%%" fill="%s"/>`, backgroundColor)

	// Graticule
	for lon := -180; lon <= 180; lon += graticuleStepDeg {
		x, _ := proj.xy(orb.Point{float64(lon), 0})
		fmt.Fprintf(bw, `<line x1="%.2f" y1="0" x2="%.2f" y2="%.2f" stroke="%s" stroke-width="0.5"/>`,
			x, x, proj.height, graticuleColor)
		fmt.Fprintf(bw, `<text x="%.2f" y="%.2f" fill="%s" font-size="%d" text-anchor="middle">%d°</text>`,
			x, proj.height-3, equatorColor, gridLabelFontSize, lon)
	}
	for lat := -90; lat <= 90; lat += graticuleStepDeg {
		_, y := proj.xy(orb.Point{0, float64(lat)})
		color := graticuleColor
		if lat == 0 {
			color = equatorColor
		}
		fmt.Fprintf(bw, `<line x1="0" y1="%.2f" x2="%.2f" y2="%.2f" stroke="%s" stroke-width="0.5"/>`,
			y, proj.width, y, color)
	}

	for _, ls := range lines {
		if len(ls) == 0 {
			continue
		}
		bw.WriteString(`<polyline points="`)
		for i, pt := range ls {
			x, y := proj.xy(pt)
			if i > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprintf(bw, "%.2f,%.2f", x, y)
		}
		fmt.Fprintf(bw, `" fill="none" stroke="%s" stroke-width="%s" stroke-linejoin="round"/>`,
			trackColor, trackStrokeWidth)
	}

	if opts.Marker != nil {
		x, y := proj.xy(*opts.Marker)
		fmt.Fprintf(bw, `<circle cx="%.2f" cy="%.2f" r="%.1f" fill="%s" stroke="white" stroke-width="1"/>`,
			x, y, markerRadius, markerColor)
	}

	if opts.Title != "" {
		fmt.Fprintf(bw, `<text x="8" y="%d" fill="black" font-size="%d">%s</text>`,
			titleFontSize+4, titleFontSize, html.EscapeString(opts.Title))
	}

	bw.WriteString(`</svg>`)
	return bw.Flush()
}
