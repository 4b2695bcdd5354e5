package api

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/model"
	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/store"
)

const maxImportBytes = 1 << 20 // 1 MiB

// importStops handles POST /v1/plans/{id}/stops/import. Accepts a multipart
// upload (field "file") or a raw request body. CSV input (by filename or
// content type) takes the first column of each record; anything else is one
// address per line. Blanks and duplicates are skipped.
func (s *Server) importStops(w http.ResponseWriter, r *http.Request, tenant, planID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var src io.Reader
	ct := r.Header.Get("Content-Type")
	asCSV := strings.HasPrefix(ct, "text/csv")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImportBytes); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid upload", err.Error(), r.URL.Path)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Missing file", "multipart field \"file\" required", r.URL.Path)
			return
		}
		defer f.Close()
		src = f
		asCSV = strings.HasSuffix(strings.ToLower(hdr.Filename), ".csv")
	} else {
		src = r.Body
	}

	addresses, errs := parseAddresses(io.LimitReader(src, maxImportBytes), asCSV)
	if len(addresses) == 0 {
		writeProblem(w, http.StatusBadRequest, "Empty import", "no addresses found in upload", r.URL.Path)
		return
	}
	ins := make([]model.StopIn, 0, len(addresses))
	for _, a := range addresses {
		ins = append(ins, model.StopIn{Address: a, Role: model.RoleVia})
	}
	created, skipped, added, err := s.Store.AddStops(r.Context(), tenant, planID, ins)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Plan not found", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Import failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, model.ImportResult{Created: created, Skipped: skipped, Stops: added, Errors: errs})
}

// parseAddresses extracts address strings from an uploaded file.
func parseAddresses(r io.Reader, asCSV bool) ([]string, []string) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, []string{err.Error()}
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}

	var out []string
	var errs []string
	if asCSV {
		cr := csv.NewReader(strings.NewReader(text))
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		for {
			rec, err := cr.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				errs = append(errs, err.Error())
				break
			}
			if len(rec) == 0 {
				continue
			}
			if a := strings.TrimSpace(rec[0]); a != "" && !isHeaderField(a) {
				out = append(out, a)
			}
		}
		return out, errs
	}
	for _, line := range strings.Split(text, "\n") {
		if a := strings.TrimSpace(strings.TrimSuffix(line, "\r")); a != "" {
			out = append(out, a)
		}
	}
	return out, errs
}

func isHeaderField(a string) bool {
	switch strings.ToLower(a) {
	case "address", "addresses", "stop", "destination":
		return true
	}
	return false
}
