package domain

const (
	RolePatient  = "patient"
	RolePharmacy = "pharmacy"
	RoleAdmin    = "admin"
)

// Actor is the authenticated caller as asserted by the bearer token.
type Actor struct {
	UserID     int64
	Role       string
	PharmacyID int64
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
