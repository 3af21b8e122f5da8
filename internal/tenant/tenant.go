// Package tenant implements the shared Tenant Registry: lookup and
// administration of the tenants known to this deployment, backed by the
// shared registry database.
package tenant

import "time"

// Status is the lifecycle state of a tenant.
type Status string

const (
	// StatusActive tenants accept inbound calls.
	StatusActive Status = "active"

	// StatusTrial tenants accept inbound calls under a time-limited trial;
	// the registry treats them identically to active for admission
	// purposes.
	StatusTrial Status = "trial"

	// StatusSuspended tenants are rejected at the webhook ingress with a
	// polite spoken rejection instead of a stream connect.
	StatusSuspended Status = "suspended"
)

// Tenant is a single registered customer of the voice-reception service.
type Tenant struct {
	ID          string
	DisplayName string
	PhoneNumber string
	Status      Status
	Timezone    string
	Config      Config
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsActive reports whether the tenant may accept new calls.
func (t Tenant) IsActive() bool {
	return t.Status == StatusActive || t.Status == StatusTrial
}
