package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Gskdl78/Labor-saver/internal/locator"
	"github.com/Gskdl78/Labor-saver/internal/logging"
)

// handleDisabilityBenefit handles POST /api/disability/benefit, a pure table
// lookup against the statutory day schedule.
func (s *Server) handleDisabilityBenefit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Benefits == nil {
		writeError(w, http.StatusServiceUnavailable, "失能給付標準數據載入失敗")
		return
	}

	var req benefitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b, err := s.deps.Benefits.Lookup(req.Level, req.InjuryType)
	if err != nil {
		logging.FromContext(r.Context()).Warn("benefit lookup rejected",
			slog.Int("level", req.Level), slog.Any("error", err))
		writeError(w, http.StatusBadRequest, "失能等級必須在 1-15 之間")
		return
	}

	writeJSON(w, http.StatusOK, benefitResponse{Benefit: *b, Success: true})
}

// handleNearby handles POST /api/maps/nearby.
func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	if s.deps.Locator == nil {
		writeError(w, http.StatusServiceUnavailable, "地圖數據暫時無法使用")
		return
	}

	var req nearbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		req.Type = locator.TypeHospital
	}

	res, err := s.deps.Locator.Nearby(req.Latitude, req.Longitude, req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, nearbyResponse{
		Locations: res.Locations,
		Total:     res.Total,
		Message:   res.Message,
		Success:   true,
	})
}

// handleCities handles GET /api/maps/cities.
func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	if s.deps.Locator == nil {
		writeError(w, http.StatusServiceUnavailable, "地圖數據暫時無法使用")
		return
	}
	writeJSON(w, http.StatusOK, citiesResponse{
		Cities:  s.deps.Locator.Cities(),
		Success: true,
	})
}

// handleCityLocations handles GET /api/maps/city/{city}?type=hospital.
func (s *Server) handleCityLocations(w http.ResponseWriter, r *http.Request) {
	if s.deps.Locator == nil {
		writeError(w, http.StatusServiceUnavailable, "地圖數據暫時無法使用")
		return
	}

	city := r.PathValue("city")
	locType := r.URL.Query().Get("type")
	if locType == "" {
		locType = locator.TypeHospital
	}

	hits, err := s.deps.Locator.ByCity(city, locType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, cityLocationsResponse{
		Locations: hits,
		City:      city,
		Type:      locType,
		Success:   true,
	})
}
