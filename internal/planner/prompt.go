package planner

import (
	"strings"

	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/model"
)

// buildPrompt serializes the stop list into the instruction the model sees.
// The reply contract is a bare JSON array so parseRoute can stay dumb.
func buildPrompt(stops []model.Stop, req model.OptimizeRequest) string {
	var sb strings.Builder
	sb.WriteString("You are a delivery route optimizer. Order the following stops into the most efficient driving route.\n")
	for _, s := range stops {
		switch s.Role {
		case model.RoleStart:
			sb.WriteString("START: ")
		case model.RoleEnd:
			sb.WriteString("END: ")
		default:
			sb.WriteString("STOP: ")
		}
		sb.WriteString(s.Address)
		sb.WriteString("\n")
	}
	if req.RoundTrip {
		sb.WriteString("The route must return to the starting address.\n")
	}
	if inst := strings.TrimSpace(req.Instructions); inst != "" {
		sb.WriteString("Additional instructions: ")
		sb.WriteString(inst)
		sb.WriteString("\n")
	}
	sb.WriteString(`Respond with ONLY a JSON array, no prose. Each element:
{"address": "<exact address from the list>", "travelTimeToNext": "<estimate like 12 mins, empty for the last stop>", "streetViewUrl": "<google street view link or empty>", "isStart": <bool>, "isEnd": <bool>}
Keep a START address first and an END address last when given. Include every address exactly once.`)
	return sb.String()
}
