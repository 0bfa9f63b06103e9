package gateway

import (
	"context"

	twrdom "hangar/internal/services/tower/domain"
)

// Loopback acks every command locally. Used when no gateway is configured,
// which keeps the dispatch pipeline runnable in development
type Loopback struct{}

// Execute acknowledges the command without any transport
func (Loopback) Execute(_ context.Context, _ twrdom.Command) (twrdom.Ack, error) {
	return twrdom.Ack{OK: true, Detail: "loopback"}, nil
}
