package domain

import "time"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleMember:
		return true
	}
	return false
}

type Membership struct {
	CompanyID string    `json:"companyId"`
	Role      Role      `json:"role"`
	JoinedAt  time.Time `json:"joinedAt"`
}

type User struct {
	ID                  string       `json:"id"`
	Name                string       `json:"name"`
	Email               string       `json:"email"`
	PasswordHash        string       `json:"-"`
	ActiveCompanyID     *string      `json:"activeCompanyId"`
	Memberships         []Membership `json:"companies"`
	RefreshToken        string       `json:"-"`
	RefreshTokenExpires *time.Time   `json:"-"`
	CreatedAt           time.Time    `json:"createdAt"`
	UpdatedAt           time.Time    `json:"updatedAt"`
}

// MembershipIn returns the user's membership in companyID.
func (u User) MembershipIn(companyID string) (Membership, bool) {
	for _, m := range u.Memberships {
		if m.CompanyID == companyID {
			return m, true
		}
	}
	return Membership{}, false
}

// ActiveContext resolves the tenant and role a fresh access token should
// carry. Both are empty when the user has no active company or is no longer
// a member of it.
func (u User) ActiveContext() (companyID string, role Role) {
	if u.ActiveCompanyID == nil || *u.ActiveCompanyID == "" {
		return "", ""
	}
	m, ok := u.MembershipIn(*u.ActiveCompanyID)
	if !ok {
		return "", ""
	}
	return m.CompanyID, m.Role
}

type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
