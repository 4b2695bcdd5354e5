package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/model"
)

func TestParseAddressesLines(t *testing.T) {
	in := "1 George St, Sydney, NSW\r\n\n  50 Collins St, Melbourne  \n"
	got, errs := parseAddresses(strings.NewReader(in), false)
	if len(errs) != 0 {
		t.Fatalf("errs: %v", errs)
	}
	want := []string{"1 George St, Sydney, NSW", "50 Collins St, Melbourne"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestParseAddressesCSV(t *testing.T) {
	in := "address,notes\n\"1 George St, Sydney\",first\n2 Pitt St,second\n"
	got, errs := parseAddresses(strings.NewReader(in), true)
	if len(errs) != 0 {
		t.Fatalf("errs: %v", errs)
	}
	if len(got) != 2 || got[0] != "1 George St, Sydney" || got[1] != "2 Pitt St" {
		t.Fatalf("got %v", got)
	}
}

func TestImportStopsRawBody(t *testing.T) {
	s := newTestServer(t)
	plan := createPlan(t, s)

	body := "1 George St\n2 Pitt St\n1 george  st\n"
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans/"+plan.ID+"/stops/import", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	s.PlanByIDHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("import: got %d body %s", rr.Code, rr.Body.String())
	}
	var out model.ImportResult
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	if out.Created != 2 || out.Skipped != 1 {
		t.Fatalf("result: %+v", out)
	}
}

func TestImportStopsMultipartCSV(t *testing.T) {
	s := newTestServer(t)
	plan := createPlan(t, s)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "stops.csv")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("address\n\"1 George St, Sydney\"\n2 Pitt St\n"))
	mw.Close()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans/"+plan.ID+"/stops/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	s.PlanByIDHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("import: got %d body %s", rr.Code, rr.Body.String())
	}
	var out model.ImportResult
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	if out.Created != 2 {
		t.Fatalf("result: %+v", out)
	}
	if len(out.Stops) != 2 || out.Stops[0].Address != "1 George St, Sydney" {
		t.Fatalf("stops: %+v", out.Stops)
	}
}

func TestImportStopsEmpty(t *testing.T) {
	s := newTestServer(t)
	plan := createPlan(t, s)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans/"+plan.ID+"/stops/import", strings.NewReader("  \n \n"))
	s.PlanByIDHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty import: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/plans/missing/stops/import", strings.NewReader("1 George St\n"))
	s.PlanByIDHandler(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing plan: got %d", rr.Code)
	}
}
