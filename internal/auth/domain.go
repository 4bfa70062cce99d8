package auth

import "time"

// User is the credential record looked up at login.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	RoleID       string
	RoleName     string
	IsActive     bool
	Permissions  []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RoleSummary is the role embedded in a profile.
type RoleSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Profile is the caller-facing view of a User. It never carries the hash.
type Profile struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	IsActive    bool        `json:"isActive"`
	Role        RoleSummary `json:"role"`
	Permissions []string    `json:"permissions"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Session is returned by login and refresh.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      Profile   `json:"user"`
}

// LoginInput carries login credentials.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (u *User) profile() Profile {
	perms := u.Permissions
	if perms == nil {
		perms = []string{}
	}
	return Profile{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		IsActive:    u.IsActive,
		Role:        RoleSummary{ID: u.RoleID, Name: u.RoleName},
		Permissions: perms,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
