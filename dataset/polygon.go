package dataset

// Contains reports whether the point lies inside the bounding polygon.
// A dataset without a polygon (fewer than three vertices) contains everything.
func (info *DatasetInfo) Contains(lon, lat float64) bool {
	if len(info.BoundingPolygon) < 3 {
		return true
	}
	return pointInRing(lon, lat, info.BoundingPolygon)
}

// even-odd ray casting
func pointInRing(x, y float64, ring []Coordinates) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lon, ring[i].Lat
		xj, yj := ring[j].Lon, ring[j].Lat
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// Bounds returns min lon, min lat, max lon, max lat over all samples.
func (ds *SampleDataset) Bounds() [4]float64 {
	if len(ds.Samples) == 0 {
		return [4]float64{}
	}
	b := [4]float64{ds.Samples[0].Lon, ds.Samples[0].Lat, ds.Samples[0].Lon, ds.Samples[0].Lat}
	for _, s := range ds.Samples[1:] {
		b[0] = min(b[0], s.Lon)
		b[1] = min(b[1], s.Lat)
		b[2] = max(b[2], s.Lon)
		b[3] = max(b[3], s.Lat)
	}
	return b
}
