package api

import (
	"net/http"

	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/model"
)

// stations is the static list behind the UI's radio modal. Compiled in;
// there are no mutation operations.
var stations = []model.Station{
	{Name: "Triple J", URL: "https://www.abc.net.au/triplej", Genre: "alternative", Region: "AU"},
	{Name: "ABC News Radio", URL: "https://www.abc.net.au/newsradio", Genre: "news", Region: "AU"},
	{Name: "Smooth FM", URL: "https://www.smooth.com.au", Genre: "easy listening", Region: "AU"},
	{Name: "KIIS 106.5", URL: "https://www.kiis1065.com.au", Genre: "pop", Region: "AU"},
	{Name: "Triple M", URL: "https://www.triplem.com.au", Genre: "rock", Region: "AU"},
	{Name: "Nova 96.9", URL: "https://www.novafm.com.au", Genre: "pop", Region: "AU"},
	{Name: "BBC World Service", URL: "https://www.bbc.co.uk/worldserviceradio", Genre: "news", Region: "INT"},
}

// StationsHandler handles GET /v1/stations
func (s *Server) StationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": stations})
}
