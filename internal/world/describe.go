package world

import "fmt"

// NearThreshold is the planar distance, in degrees, within which a position counts as near a department.
const NearThreshold = 0.001

// NoDepartmentNearby is returned by DescribeLocation when no zone is close.
const NoDepartmentNearby = "Location not near any known department"

// DescribeLocation renders a human-readable location. Zones are checked in order
// and the first one within either threshold wins, which is not necessarily the closest.
func DescribeLocation(pos LatLng, zones []Zone) string {
	for _, z := range zones {
		d := pos.DistanceTo(z.Location)
		if d < InClassThreshold {
			return fmt.Sprintf("In the %s department", z.Name)
		}
		if d < NearThreshold {
			return fmt.Sprintf("Near the %s department", z.Name)
		}
	}
	return NoDepartmentNearby
}
