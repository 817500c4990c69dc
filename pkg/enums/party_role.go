package enums

import "fmt"

// PartyRole identifies which side of an order a party is on.
type PartyRole string

const (
	PartyRoleBuyer  PartyRole = "buyer"
	PartyRoleSeller PartyRole = "seller"
)

// String implements fmt.Stringer.
func (p PartyRole) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PartyRole.
func (p PartyRole) IsValid() bool {
	return p == PartyRoleBuyer || p == PartyRoleSeller
}

// ParsePartyRole converts raw input into a PartyRole.
func ParsePartyRole(value string) (PartyRole, error) {
	role := PartyRole(value)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid party role %q", value)
	}
	return role, nil
}
