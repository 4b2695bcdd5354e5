package planner

import (
	"strings"

	"github.com/google/uuid"

	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/model"
)

// Reconcile maps the model's returned addresses back onto locally-owned stop
// records by case-insensitive, whitespace-trimmed match. Returned addresses
// with no local match are appended as synthesized stops flagged unmatched;
// local stops the model dropped are appended at the tail in their original
// relative order.
func Reconcile(stops []model.Stop, route []RouteStop) []model.OptimizedStop {
	byAddr := make(map[string]int, len(stops)) // normalized address -> stops index
	for i, s := range stops {
		k := normalizeAddress(s.Address)
		if _, dup := byAddr[k]; !dup {
			byAddr[k] = i
		}
	}

	used := make([]bool, len(stops))
	out := make([]model.OptimizedStop, 0, len(route)+len(stops))
	for _, rs := range route {
		os := model.OptimizedStop{
			Address:          rs.Address,
			TravelTimeToNext: rs.TravelTimeToNext,
			StreetViewURL:    rs.StreetViewURL,
			IsStart:          rs.IsStart,
			IsEnd:            rs.IsEnd,
		}
		if i, ok := byAddr[normalizeAddress(rs.Address)]; ok && !used[i] {
			used[i] = true
			os.ID = stops[i].ID
			os.Address = stops[i].Address // keep the user's casing
			if stops[i].Role == model.RoleStart {
				os.IsStart = true
			}
			if stops[i].Role == model.RoleEnd {
				os.IsEnd = true
			}
		} else {
			os.ID = uuid.New().String()
			os.Unmatched = true
		}
		out = append(out, os)
	}

	// Tail-append stops the model dropped, original relative order.
	for i, s := range stops {
		if used[i] {
			continue
		}
		out = append(out, model.OptimizedStop{
			ID:      s.ID,
			Address: s.Address,
			IsStart: s.Role == model.RoleStart,
			IsEnd:   s.Role == model.RoleEnd,
		})
	}

	for i := range out {
		out[i].Seq = i
	}
	return out
}

func normalizeAddress(a string) string {
	return strings.ToLower(strings.Join(strings.Fields(a), " "))
}
