package models

const (
	RoleCustomer = "customer"
	RoleDriver   = "driver"
	RoleOperator = "operator"
)

// Actor is the authenticated caller, identified by an opaque reference
type Actor struct {
	Ref  string
	Role string
}

func IsKnownRole(role string) bool {
	switch role {
	case RoleCustomer, RoleDriver, RoleOperator:
		return true
	default:
		return false
	}
}
