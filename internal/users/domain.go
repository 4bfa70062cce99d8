package users

import "time"

// RoleRef is the role a user belongs to.
type RoleRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User represents a user account for management. The password hash never
// leaves the repository.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"isActive"`
	Role      RoleRef   `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateInput carries the fields of a new user.
type CreateInput struct {
	Email    string `json:"email" validate:"omitempty,email,max=255"`
	Password string `json:"password" validate:"omitempty,max=72"`
	Name     string `json:"name" validate:"omitempty,max=100"`
	RoleID   string `json:"roleId"`
}

// UpdateInput carries a partial update; nil fields are left untouched.
type UpdateInput struct {
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	Password *string `json:"password" validate:"omitempty,min=1,max=72"`
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	RoleID   *string `json:"roleId" validate:"omitempty,min=1"`
	IsActive *bool   `json:"isActive"`
}
