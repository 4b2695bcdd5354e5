package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestWriteProblem(t *testing.T) {
	rr := httptest.NewRecorder()
	writeProblem(rr, 404, "Plan not found", "no such plan", "/v1/plans/x")

	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("content type: %q", ct)
	}
	var p Problem
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Type != "/problems/plan-not-found" {
		t.Fatalf("type: %q", p.Type)
	}
	if p.Status != 404 || p.Title != "Plan not found" || p.Detail != "no such plan" || p.Instance != "/v1/plans/x" {
		t.Fatalf("problem: %+v", p)
	}
}

func TestProblemTypeSlugs(t *testing.T) {
	cases := []struct{ title, want string }{
		{"Optimization pending", "/problems/optimization-pending"},
		{"Invalid  JSON", "/problems/invalid-json"},
		{"", "about:blank"},
	}
	for _, c := range cases {
		if got := problemType(c.title); got != c.want {
			t.Fatalf("problemType(%q) = %q, want %q", c.title, got, c.want)
		}
	}
}
