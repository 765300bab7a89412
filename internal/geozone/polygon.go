// Package geozone resolves geographic coordinates to jurisdiction reporting
// codes using in-memory point-in-polygon indexes over official boundary
// shapes.
package geozone

// RegionPolygon is one immutable boundary shape in projected coordinates.
// Points is a flat x,y sequence; Parts holds the start index of each ring.
type RegionPolygon struct {
	ReportingCode string
	// BBox is minX, minY, maxX, maxY in projected coordinates.
	BBox   [4]float64
	Points [][2]float64
	Parts  []int32
}

const onEdgeEps = 1e-12

// polygonDataset is the flat columnar layout the tight lookup path runs
// over: no per-polygon indirection, no allocation per query.
type polygonDataset struct {
	codes       []string
	bboxes      []float64 // 4 entries per polygon
	pointStarts []int32   // global point index of each polygon's first point
	pointCounts []int32
	partStarts  []int32 // index into partsFlat
	partCounts  []int32
	pointsFlat  []float64 // interleaved x,y
	partsFlat   []int32   // absolute ring start offsets into the global point sequence
}

// buildDataset flattens polygons, skipping corrupt shapes (no points, no
// parts, or a parts table that is not strictly increasing).
func buildDataset(polygons []RegionPolygon) *polygonDataset {
	ds := &polygonDataset{}
	var pointStart, partStart int32

	for _, polygon := range polygons {
		if len(polygon.Points) == 0 || len(polygon.Parts) == 0 {
			continue
		}
		if !partsValid(polygon.Parts, len(polygon.Points)) {
			continue
		}

		ds.codes = append(ds.codes, polygon.ReportingCode)
		ds.bboxes = append(ds.bboxes, polygon.BBox[0], polygon.BBox[1], polygon.BBox[2], polygon.BBox[3])
		ds.pointStarts = append(ds.pointStarts, pointStart)
		ds.pointCounts = append(ds.pointCounts, int32(len(polygon.Points)))
		ds.partStarts = append(ds.partStarts, partStart)
		ds.partCounts = append(ds.partCounts, int32(len(polygon.Parts)))

		for _, pt := range polygon.Points {
			ds.pointsFlat = append(ds.pointsFlat, pt[0], pt[1])
		}
		for _, part := range polygon.Parts {
			ds.partsFlat = append(ds.partsFlat, pointStart+part)
		}

		pointStart += int32(len(polygon.Points))
		partStart += int32(len(polygon.Parts))
	}
	return ds
}

func partsValid(parts []int32, pointCount int) bool {
	for i, part := range parts {
		if part < 0 || int(part) >= pointCount {
			return false
		}
		if i > 0 && part <= parts[i-1] {
			return false
		}
	}
	return true
}

func (ds *polygonDataset) size() int { return len(ds.codes) }

// findFirst returns the index of the first polygon (insertion order)
// containing the projected point, or -1. Earlier polygons are authoritative
// when layers overlap.
func (ds *polygonDataset) findFirst(x, y float64) int {
	for i := range ds.codes {
		b := ds.bboxes[i*4:]
		if x < b[0] || x > b[2] || y < b[1] || y > b[3] {
			continue
		}
		if ds.pointInShape(i, x, y) {
			return i
		}
	}
	return -1
}

// pointInShape applies even-odd parity across rings: a point inside an odd
// number of rings is inside the shape (supports holes). A point on any ring
// edge is declared inside immediately.
func (ds *polygonDataset) pointInShape(polyIdx int, x, y float64) bool {
	partStart := ds.partStarts[polyIdx]
	partCount := ds.partCounts[polyIdx]
	shapeEnd := ds.pointStarts[polyIdx] + ds.pointCounts[polyIdx]

	inside := false
	for r := int32(0); r < partCount; r++ {
		ringStart := ds.partsFlat[partStart+r]
		ringEnd := shapeEnd
		if r+1 < partCount {
			ringEnd = ds.partsFlat[partStart+r+1]
		}
		switch ds.pointInRing(ringStart, ringEnd, x, y) {
		case ringOnEdge:
			return true
		case ringInside:
			inside = !inside
		}
	}
	return inside
}

type ringResult int

const (
	ringOutside ringResult = iota
	ringInside
	ringOnEdge
)

// pointInRing is the standard even-odd ray cast over one ring, treated as
// closed from its last point back to its first. Rings with fewer than three
// points never contain anything.
func (ds *polygonDataset) pointInRing(start, end int32, x, y float64) ringResult {
	n := end - start
	if n < 3 {
		return ringOutside
	}

	inside := false
	prevX := ds.pointsFlat[(end-1)*2]
	prevY := ds.pointsFlat[(end-1)*2+1]
	for i := start; i < end; i++ {
		currX := ds.pointsFlat[i*2]
		currY := ds.pointsFlat[i*2+1]

		if pointOnSegment(x, y, prevX, prevY, currX, currY) {
			return ringOnEdge
		}

		if (currY > y) != (prevY > y) {
			xIntersection := (prevX-currX)*(y-currY)/(prevY-currY) + currX
			if x < xIntersection {
				inside = !inside
			}
		}
		prevX, prevY = currX, currY
	}

	if inside {
		return ringInside
	}
	return ringOutside
}

// pointOnSegment reports whether (px,py) lies on the segment within the
// on-edge epsilon: collinear by cross product and inside the segment's
// bounding box.
func pointOnSegment(px, py, x1, y1, x2, y2 float64) bool {
	cross := (py-y1)*(x2-x1) - (px-x1)*(y2-y1)
	if cross > onEdgeEps || cross < -onEdgeEps {
		return false
	}

	minX, maxX := x1, x2
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := y1, y2
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	return px >= minX-onEdgeEps && px <= maxX+onEdgeEps &&
		py >= minY-onEdgeEps && py <= maxY+onEdgeEps
}
