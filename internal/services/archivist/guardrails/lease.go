// Package guardrails provides cross process leases for archivist scheduling
package guardrails

import (
	"context"
	"fmt"

	"hangar/internal/modkit"
	"hangar/internal/platform/store"
	arcdom "hangar/internal/services/archivist/domain"
)

// ErrLeaseHeld signals another process is scheduling this job type already
var ErrLeaseHeld = fmt.Errorf("archivist: job type lease already held")

// MakeJobLease claims a per job type advisory lock for the duration of do.
// The lock rides the wrapping transaction, so it releases even on panic
func MakeJobLease(deps modkit.Deps) func(ctx context.Context, j arcdom.JobType, do func(context.Context) error) error {
	return func(ctx context.Context, j arcdom.JobType, do func(context.Context) error) error {
		return deps.PG.Tx(ctx, func(q store.RowQuerier) error {
			var claimed bool
			if err := q.QueryRow(ctx,
				`SELECT pg_try_advisory_xact_lock(hashtext($1))`,
				"archivist:"+string(j),
			).Scan(&claimed); err != nil {
				return err
			}
			if !claimed {
				return ErrLeaseHeld
			}
			return do(ctx)
		})
	}
}
