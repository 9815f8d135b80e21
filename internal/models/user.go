package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleCitizen  UserRole = "citizen"
	RoleOfficial UserRole = "official"
	RoleAdmin    UserRole = "admin"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleCitizen, RoleOfficial, RoleAdmin:
		return true
	}
	return false
}

// User is a citizen, official or admin account. Password holds the bcrypt hash
// and is only ever serialized to the snapshot, never to API responses (see Public).
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Password      string    `json:"password"`
	FullName      string    `json:"fullName"`
	Email         *string   `json:"email,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	NationalID    *string   `json:"nationalId,omitempty"`
	Role          UserRole  `json:"role"`
	Department    *string   `json:"department,omitempty"`
	Rating        float64   `json:"rating"`
	AssignedCount int       `json:"assignedCount"`
	SolvedCount   int       `json:"solvedCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// PublicUser is the API projection of a user.
type PublicUser struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	FullName      string    `json:"fullName"`
	Email         *string   `json:"email,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	Role          UserRole  `json:"role"`
	Department    *string   `json:"department,omitempty"`
	Rating        float64   `json:"rating"`
	AssignedCount int       `json:"assignedCount"`
	SolvedCount   int       `json:"solvedCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Public strips credentials and identity numbers.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Username:      u.Username,
		FullName:      u.FullName,
		Email:         u.Email,
		Phone:         u.Phone,
		Role:          u.Role,
		Department:    u.Department,
		Rating:        u.Rating,
		AssignedCount: u.AssignedCount,
		SolvedCount:   u.SolvedCount,
		CreatedAt:     u.CreatedAt,
	}
}

// Clone returns a deep copy.
func (u User) Clone() User {
	u.Email = cloneString(u.Email)
	u.Phone = cloneString(u.Phone)
	u.NationalID = cloneString(u.NationalID)
	u.Department = cloneString(u.Department)
	return u
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
