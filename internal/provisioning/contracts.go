// Package provisioning defines the capability contract of the external account system
// and the guards every call goes through.
package provisioning

import (
	"context"
	"time"
)

// PanelLocation is the zone the provider renders dates in.
var PanelLocation = time.FixedZone("BRT", -3*60*60)

// Snapshot maps provider labels to raw values exactly as the provider shows them.
type Snapshot map[string]string

type Adapter interface {
	CreateAccount(ctx context.Context, username string, connections, months int) (Snapshot, error)
	RenewAccount(ctx context.Context, username string, months int) (Snapshot, error)
	// FetchSnapshot returns ErrNotFound when the provider has no such account.
	FetchSnapshot(ctx context.Context, username string) (Snapshot, error)
}

type Metrics interface {
	ObserveProvisioningCall(op string, outcome string, seconds float64)
}
