// Package security implements the four behavioral factor scorers. Each
// returns a score in [0.0, 1.0] and degrades to a neutral value instead
// of surfacing an error to trust evaluation.
package security

import (
	"context"
	"math"
	"net"
	"strings"
)

// GeoInfo is the resolved location of an originating address.
type GeoInfo struct {
	CountryCode string
	CountryName string
	City        string
	Latitude    float64
	Longitude   float64
	HasCoords   bool
	IsVPN       bool
	IsProxy     bool
}

// Geolocator resolves an address to a location. Implementations are
// expected to be bounded; a failure degrades the origin scorer to its
// neutral value.
type Geolocator interface {
	Resolve(ctx context.Context, ipAddress string) (*GeoInfo, error)
}

// StaticGeolocator resolves from a fixed table, with private and
// loopback ranges mapped to a local placeholder. Real lookups are a
// deployment concern wired in behind the same interface.
type StaticGeolocator struct {
	table map[string]GeoInfo
}

func NewStaticGeolocator(table map[string]GeoInfo) *StaticGeolocator {
	if table == nil {
		table = make(map[string]GeoInfo)
	}
	return &StaticGeolocator{table: table}
}

func (g *StaticGeolocator) Resolve(_ context.Context, ipAddress string) (*GeoInfo, error) {
	if info, ok := g.table[ipAddress]; ok {
		return &info, nil
	}

	ip := net.ParseIP(strings.TrimSpace(ipAddress))
	if ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return &GeoInfo{CountryCode: "LO", CountryName: "Local", City: "Local"}, nil
	}

	return &GeoInfo{}, nil
}

const earthRadiusKm = 6371

// DistanceKm returns the great-circle distance between two coordinates.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}
