package models

import "time"

// PlanRef is an opaque, vendor-specific set of provisioning parameters
// (region, size, image, ...). Each adapter validates the keys it needs at
// call time.
type PlanRef map[string]string

// ProductMapping resolves what to provision and how when a WHMCS product
// activates. One mapping per external product id.
type ProductMapping struct {
	ID             string
	WHMCSProductID int64
	ProviderID     string
	CredentialID   string
	PlanRef        PlanRef
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
