package handlers

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// Health reports "ok" when every registered check passes, otherwise 503 with
// the failing components.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	if len(a.Checks) == 0 {
		a.json(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := make(map[string]string, len(a.Checks))
	status, code := "ok", http.StatusOK
	for name, check := range a.Checks {
		if err := check(ctx); err != nil {
			a.Logger.Warn().Err(err).Str("component", name).Msg("health: check failed")
			components[name] = "down"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}
	a.json(w, code, map[string]any{"status": status, "components": components})
}
