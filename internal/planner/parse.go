package planner

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RouteStop is one element of the model's JSON reply.
type RouteStop struct {
	Address          string `json:"address"`
	TravelTimeToNext string `json:"travelTimeToNext"`
	StreetViewURL    string `json:"streetViewUrl"`
	IsStart          bool   `json:"isStart"`
	IsEnd            bool   `json:"isEnd"`
}

// parseRoute extracts the JSON array from the reply. Models habitually wrap
// JSON in markdown fences or preamble, so scan for the array rather than
// unmarshalling the raw text.
func parseRoute(reply string) ([]RouteStop, error) {
	jsonStr := extractJSONArray(reply)
	if jsonStr == "" {
		return nil, ErrEmptyReply
	}
	var route []RouteStop
	if err := json.Unmarshal([]byte(jsonStr), &route); err != nil {
		return nil, fmt.Errorf("optimizer reply parse: %w", err)
	}
	out := route[:0]
	for _, rs := range route {
		if strings.TrimSpace(rs.Address) == "" {
			continue
		}
		out = append(out, rs)
	}
	if len(out) == 0 {
		return nil, ErrEmptyReply
	}
	return out, nil
}

// extractJSONArray finds the first balanced JSON array in the text,
// skipping brackets inside string literals.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	if start == -1 {
		return ""
	}
	depth := 0
	inStr := false
	esc := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
