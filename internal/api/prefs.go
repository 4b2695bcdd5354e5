package api

import (
	"encoding/json"
	"net/http"

	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/model"
)

// ThemeHandler handles GET/PUT /v1/preferences/theme, the single persisted
// UI preference.
func (s *Server) ThemeHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	switch r.Method {
	case http.MethodGet:
		theme, err := s.Store.GetThemePreference(r.Context(), p.Tenant)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Read preference failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, model.ThemePreference{Theme: theme})
	case http.MethodPut:
		var req model.ThemePreference
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		theme, err := validateTheme(req.Theme)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid theme", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SaveThemePreference(r.Context(), p.Tenant, theme); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save preference failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, model.ThemePreference{Theme: theme})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
