package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/readstack/readstack-backend/api/responses"
	"github.com/readstack/readstack-backend/pkg/logger"
)

// SweepFunc is the shared shape of the lifecycle sweeps.
type SweepFunc func(ctx context.Context, now time.Time) (int, error)

// AdminRunSweep triggers one lifecycle sweep on demand, outside its
// schedule. The response reports how many records the sweep touched.
func AdminRunSweep(name string, sweep SweepFunc, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := sweep(r.Context(), time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"sweep":     name,
			"processed": count,
		})
	}
}
