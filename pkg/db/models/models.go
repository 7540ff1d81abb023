package models

// All lists every persisted model, in dependency order.
func All() []any {
	return []any{
		&Organization{},
		&OrganizationDomain{},
		&Initiative{},
		&AuthIdentity{},
		&User{},
		&UserOrganization{},
		&Invitation{},
		&Issue{},
	}
}
