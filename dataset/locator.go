package dataset

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/outofforest/tilestream/tileset"
	"github.com/outofforest/tilestream/types"
)

// Locator computes content locator of the tile.
type Locator interface {
	Locate(ts *tileset.TileSet, tile types.TileIndex) (string, error)
}

// LocatorFunc adapts function to Locator interface.
type LocatorFunc func(ts *tileset.TileSet, tile types.TileIndex) (string, error)

// Locate calls f.
func (f LocatorFunc) Locate(ts *tileset.TileSet, tile types.TileIndex) (string, error) {
	return f(ts, tile)
}

func tileBounds(ts *tileset.TileSet, tile types.TileIndex) (types.Vec3, types.Vec3, error) {
	minP, maxP, exists := ts.Volumes.Bounds(uint32(tile))
	if !exists || !ts.Valid(tile) {
		return types.Vec3{}, types.Vec3{}, errors.Wrapf(tileset.ErrInvalidTile, "tile %d has no bounding volume", tile)
	}
	return minP, maxP, nil
}

// WMSLocator builds OGC WMS 1.3.0 GetMap requests covering bounding volumes of tiles.
type WMSLocator struct {
	URL         string
	Layers      []string
	Styles      []string
	CRS         string
	Format      string
	Width       int
	Height      int
	Transparent bool
}

// Locate builds GetMap URL.
func (l WMSLocator) Locate(ts *tileset.TileSet, tile types.TileIndex) (string, error) {
	minP, maxP, err := tileBounds(ts, tile)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(l.URL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid WMS URL %q", l.URL)
	}

	crs := l.CRS
	if crs == "" {
		crs = "EPSG:4326"
	}
	format := l.Format
	if format == "" {
		format = "image/png"
	}
	width, height := l.Width, l.Height
	if width <= 0 {
		width = 256
	}
	if height <= 0 {
		height = 256
	}

	// EPSG:4326 in WMS 1.3.0 uses latitude/longitude axis order.
	bbox := []float64{minP.X, minP.Y, maxP.X, maxP.Y}
	if crs == "EPSG:4326" {
		bbox = []float64{minP.Y, minP.X, maxP.Y, maxP.X}
	}
	bboxStr := make([]string, 0, len(bbox))
	for _, v := range bbox {
		bboxStr = append(bboxStr, strconv.FormatFloat(v, 'f', -1, 64))
	}

	q := u.Query()
	q.Set("SERVICE", "WMS")
	q.Set("VERSION", "1.3.0")
	q.Set("REQUEST", "GetMap")
	q.Set("LAYERS", strings.Join(l.Layers, ","))
	q.Set("STYLES", strings.Join(l.Styles, ","))
	q.Set("CRS", crs)
	q.Set("BBOX", strings.Join(bboxStr, ","))
	q.Set("WIDTH", strconv.Itoa(width))
	q.Set("HEIGHT", strconv.Itoa(height))
	q.Set("FORMAT", format)
	q.Set("TRANSPARENT", strings.ToUpper(strconv.FormatBool(l.Transparent)))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// XYZLocator fills {z}, {x} and {y} placeholders of the template with the position of the tile in the quad tree
// covering the area of interest. Row 0 is at the minimum Y of the area.
type XYZLocator struct {
	Template string
}

// Locate builds the locator.
func (l XYZLocator) Locate(ts *tileset.TileSet, tile types.TileIndex) (string, error) {
	minP, maxP, err := tileBounds(ts, tile)
	if err != nil {
		return "", err
	}
	areaMin, areaMax := ts.Area().Bounds()

	z := ts.Depth(tile)
	n := math.Ldexp(1, z)
	center := minP.Add(maxP).Scale(0.5)
	x := math.Floor((center.X - areaMin.X) / (areaMax.X - areaMin.X) * n)
	y := math.Floor((center.Y - areaMin.Y) / (areaMax.Y - areaMin.Y) * n)
	if x < 0 || y < 0 || x >= n || y >= n {
		return "", errors.Errorf("tile %d lies outside the area of interest", tile)
	}

	return strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(int(x)),
		"{y}", strconv.Itoa(int(y)),
	).Replace(l.Template), nil
}
