package domain

import "time"

type TenantStatus string

const (
	// TenantPending is set when the tenant row is written, before the
	// verification email goes out. Rows stuck here are removed by the reaper.
	TenantPending     TenantStatus = "pending"
	TenantProvisioned TenantStatus = "provisioned"
	TenantVerified    TenantStatus = "verified"
)

// Predecessors lists the statuses a tenant may advance to s from. Status
// only ever moves forward.
func (s TenantStatus) Predecessors() []TenantStatus {
	switch s {
	case TenantProvisioned:
		return []TenantStatus{TenantPending}
	case TenantVerified:
		return []TenantStatus{TenantPending, TenantProvisioned}
	default:
		return nil
	}
}

type SchoolType string

const (
	SchoolPrivateJHS       SchoolType = "PRIVATE_JHS"
	SchoolPrivateSHS       SchoolType = "PRIVATE_SHS"
	SchoolInternationalSHS SchoolType = "INTERNATIONAL_SHS"
)

type Curriculum string

const (
	CurriculumWASSCE      Curriculum = "WASSCE"
	CurriculumIGCSE       Curriculum = "IGCSE"
	CurriculumIB          Curriculum = "IB"
	CurriculumGESStandard Curriculum = "GES_STANDARD"
)

// Tenant is a registered school.
type Tenant struct {
	ID             string
	Name           string
	Type           SchoolType
	Curricula      []Curriculum
	AdminEmail     string
	GESCode        *string
	DigitalAddress string
	Region         string
	City           string
	Status         TenantStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (t *Tenant) Verified() bool {
	return t.Status == TenantVerified
}
