package api

import (
	"fmt"
	"strings"

	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/model"
)

const (
	maxAddressLen  = 500
	maxStopsPerJob = 200
)

func validateStopIn(in *model.StopIn) error {
	in.Address = strings.TrimSpace(in.Address)
	if in.Address == "" {
		return fmt.Errorf("address must not be blank")
	}
	if len(in.Address) > maxAddressLen {
		return fmt.Errorf("address exceeds %d characters", maxAddressLen)
	}
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role != "" && role != model.RoleStart && role != model.RoleEnd && role != model.RoleVia {
		return fmt.Errorf("invalid role: %s (allowed: start, end, via)", in.Role)
	}
	in.Role = role
	return nil
}

func validateOptimizeRequest(req *model.OptimizeRequest, stopCount int) error {
	if stopCount < 2 {
		return fmt.Errorf("need at least 2 stops to optimize, have %d", stopCount)
	}
	if stopCount > maxStopsPerJob {
		return fmt.Errorf("too many stops: %d (max %d)", stopCount, maxStopsPerJob)
	}
	if req.Model != "" && !strings.HasPrefix(req.Model, "gemini-") {
		return fmt.Errorf("invalid model: %s", req.Model)
	}
	if len(req.Instructions) > 1000 {
		return fmt.Errorf("instructions exceed 1000 characters")
	}
	return nil
}

func validateTheme(theme string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(theme))
	if t != "light" && t != "dark" {
		return "", fmt.Errorf("invalid theme: %s (allowed: light, dark)", theme)
	}
	return t, nil
}
