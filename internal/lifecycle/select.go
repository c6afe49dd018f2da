package lifecycle

import (
	"context"
	"time"

	"github.com/edvin/dbmanager/internal/model"
)

var selectSteps = []Step{
	{
		Name:   "select-now",
		Target: TargetAdmin,
		Run: func(ctx context.Context, r *run) error {
			now, err := r.client.Now(ctx)
			if err != nil {
				return err
			}
			r.now = now
			return nil
		},
	},
}

// selectNow checks connectivity by asking the server for its clock.
func (o *Orchestrator) selectNow(ctx context.Context, r *run) model.Response {
	if err := r.runSteps(ctx, selectSteps, 0, false); err != nil {
		return internalError("Error selecting data", err)
	}
	return model.OK(r.now.UTC().Format(time.RFC3339Nano))
}
