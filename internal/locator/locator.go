// Package locator finds labor insurance offices and accredited hospitals
// near a coordinate. Hospitals are bucketed by accreditation tier so the
// caller always sees the closest few of each tier rather than a wall of
// nearby clinics; offices are a flat nearest-first list.
package locator

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	// TypeHospital selects the accredited hospital dataset.
	TypeHospital = "hospital"
	// TypeLaborOffice selects the labor insurance office dataset.
	TypeLaborOffice = "labor_office"

	earthRadiusKM = 6371

	hospitalsPerTier = 3
	maxHospitals     = 12
	maxOffices       = 20
)

// hospitalTiers is the accreditation tier order, most capable first.
var hospitalTiers = []string{"醫學中心", "區域醫院", "地區醫院", "診所"}

// coord unmarshals a latitude or longitude that the source datasets encode
// as either a JSON number or a numeric string.
type coord float64

func (c *coord) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		return fmt.Errorf("locator: empty coordinate")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("locator: bad coordinate %q: %w", s, err)
	}
	*c = coord(f)
	return nil
}

// Hospital is one row of the accredited hospital dataset.
type Hospital struct {
	Name    string   `json:"醫院名稱"`
	City    string   `json:"所在縣市"`
	Address string   `json:"地址"`
	Phone   string   `json:"醫院電話"`
	Level   string   `json:"醫院評鑑評鑑結果"`
	Lat     *float64 `json:"緯度"`
	Lng     *float64 `json:"經度"`
}

// Office is one row of the labor insurance office dataset.
type Office struct {
	City         string `json:"縣市別"`
	Address      string `json:"辦事處地址"`
	Phone        string `json:"辦事處電話"`
	ServiceHours string `json:"櫃台服務時間"`
	PhoneHours   string `json:"電話服務時間"`
	Lat          coord  `json:"緯度"`
	Lng          coord  `json:"經度"`
}

// Location is one ranked search hit, hospital or office.
type Location struct {
	Name         string  `json:"name"`
	OriginalName string  `json:"original_name,omitempty"`
	Address      string  `json:"address"`
	City         string  `json:"city"`
	Type         string  `json:"type"`
	Phone        string  `json:"phone"`
	Level        string  `json:"level,omitempty"`
	Category     string  `json:"category,omitempty"`
	ServiceHours string  `json:"service_hours,omitempty"`
	PhoneHours   string  `json:"phone_hours,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	DistanceKM   float64 `json:"distance"`
}

// Result is the answer to a nearby search.
type Result struct {
	Locations []Location `json:"locations"`
	Total     int        `json:"total"`
	Message   string     `json:"message"`
}

// Locator serves nearby searches over the loaded datasets.
type Locator struct {
	hospitals []Hospital
	offices   []Office
}

// New wraps already-decoded datasets. Either slice may be empty; searches
// over an empty dataset return an empty result, not an error.
func New(hospitals []Hospital, offices []Office) *Locator {
	return &Locator{hospitals: hospitals, offices: offices}
}

// Load reads the hospital and office JSON datasets from disk.
func Load(hospitalsPath, officesPath string) (*Locator, error) {
	var hospitals []Hospital
	if err := readJSON(hospitalsPath, &hospitals); err != nil {
		return nil, err
	}
	var offices []Office
	if err := readJSON(officesPath, &offices); err != nil {
		return nil, err
	}
	return New(hospitals, offices), nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("locator: failed to read dataset %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("locator: failed to parse dataset %s: %w", path, err)
	}
	return nil
}

// Nearby returns the closest locations of the requested type. Hospitals
// come back as the nearest few per accreditation tier; offices as a flat
// nearest-first list.
func (l *Locator) Nearby(lat, lng float64, locType string) (*Result, error) {
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("locator: latitude %v out of range", lat)
	}
	if lng < -180 || lng > 180 {
		return nil, fmt.Errorf("locator: longitude %v out of range", lng)
	}
	switch locType {
	case TypeHospital:
		return l.nearbyHospitals(lat, lng), nil
	case TypeLaborOffice:
		return l.nearbyOffices(lat, lng), nil
	default:
		return nil, fmt.Errorf("locator: unsupported location type %q", locType)
	}
}

func (l *Locator) nearbyHospitals(lat, lng float64) *Result {
	byTier := make(map[string][]Location, len(hospitalTiers))
	total := 0
	for _, h := range l.hospitals {
		if h.Lat == nil || h.Lng == nil {
			continue
		}
		tier := hospitalTier(h.Level)
		dist := haversineKM(lat, lng, *h.Lat, *h.Lng)
		byTier[tier] = append(byTier[tier], Location{
			Name:         fmt.Sprintf("%s(%s)", h.Name, tier),
			OriginalName: h.Name,
			Address:      addressOrUnknown(h.Address),
			City:         h.City,
			Type:         TypeHospital,
			Phone:        h.Phone,
			Level:        h.Level,
			Category:     tier,
			Latitude:     *h.Lat,
			Longitude:    *h.Lng,
			DistanceKM:   math.Round(dist*100) / 100,
		})
		total++
	}

	counts := make(map[string]int, len(hospitalTiers))
	var picked []Location
	for _, tier := range hospitalTiers {
		hits := byTier[tier]
		sortByDistance(hits)
		if len(hits) > hospitalsPerTier {
			hits = hits[:hospitalsPerTier]
		}
		counts[tier] = len(hits)
		picked = append(picked, hits...)
	}
	sortByDistance(picked)
	if len(picked) > maxHospitals {
		picked = picked[:maxHospitals]
	}

	return &Result{
		Locations: picked,
		Total:     total,
		Message: fmt.Sprintf("找到最近的醫院：醫學中心%d家、區域醫院%d家、地區醫院%d家、診所%d家",
			counts["醫學中心"], counts["區域醫院"], counts["地區醫院"], counts["診所"]),
	}
}

func (l *Locator) nearbyOffices(lat, lng float64) *Result {
	hits := make([]Location, 0, len(l.offices))
	for _, o := range l.offices {
		hits = append(hits, Location{
			Name:         o.City,
			Address:      o.Address,
			City:         o.City,
			Type:         TypeLaborOffice,
			Phone:        o.Phone,
			ServiceHours: o.ServiceHours,
			PhoneHours:   o.PhoneHours,
			Latitude:     float64(o.Lat),
			Longitude:    float64(o.Lng),
			DistanceKM:   haversineKM(lat, lng, float64(o.Lat), float64(o.Lng)),
		})
	}
	sortByDistance(hits)
	total := len(hits)
	if len(hits) > maxOffices {
		hits = hits[:maxOffices]
	}
	return &Result{
		Locations: hits,
		Total:     total,
		Message:   fmt.Sprintf("找到 %d 個勞保局辦事處", len(hits)),
	}
}

// ByCity lists every location of the requested type whose city contains the
// given name. No distance is computed; hits keep dataset order.
func (l *Locator) ByCity(city, locType string) ([]Location, error) {
	switch locType {
	case TypeHospital:
		var hits []Location
		for _, h := range l.hospitals {
			if !strings.Contains(h.City, city) {
				continue
			}
			loc := Location{
				Name:    h.Name,
				Address: addressOrUnknown(h.Address),
				City:    h.City,
				Type:    TypeHospital,
				Phone:   h.Phone,
				Level:   h.Level,
			}
			if h.Lat != nil && h.Lng != nil {
				loc.Latitude = *h.Lat
				loc.Longitude = *h.Lng
			}
			hits = append(hits, loc)
		}
		return hits, nil
	case TypeLaborOffice:
		var hits []Location
		for _, o := range l.offices {
			if !strings.Contains(o.City, city) {
				continue
			}
			hits = append(hits, Location{
				Name:         o.City,
				Address:      o.Address,
				City:         o.City,
				Type:         TypeLaborOffice,
				Phone:        o.Phone,
				ServiceHours: o.ServiceHours,
				PhoneHours:   o.PhoneHours,
				Latitude:     float64(o.Lat),
				Longitude:    float64(o.Lng),
			})
		}
		return hits, nil
	default:
		return nil, fmt.Errorf("locator: unsupported location type %q", locType)
	}
}

// Cities lists the office cities with administrative suffixes stripped,
// sorted and deduplicated.
func (l *Locator) Cities() []string {
	seen := make(map[string]bool, len(l.offices))
	for _, o := range l.offices {
		city := strings.NewReplacer("辦事處", "", "市", "", "縣", "").Replace(o.City)
		if city != "" {
			seen[city] = true
		}
	}
	cities := make([]string, 0, len(seen))
	for c := range seen {
		cities = append(cities, c)
	}
	sort.Strings(cities)
	return cities
}

// hospitalTier maps an accreditation result string to its tier; anything
// unrecognized counts as a clinic.
func hospitalTier(level string) string {
	for _, tier := range hospitalTiers[:3] {
		if strings.Contains(level, tier) {
			return tier
		}
	}
	return "診所"
}

func addressOrUnknown(addr string) string {
	if strings.TrimSpace(addr) == "" {
		return "地址不詳"
	}
	return addr
}

func sortByDistance(hits []Location) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceKM != hits[j].DistanceKM {
			return hits[i].DistanceKM < hits[j].DistanceKM
		}
		return hits[i].Name < hits[j].Name
	})
}

// haversineKM is the great-circle distance between two coordinates.
func haversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
