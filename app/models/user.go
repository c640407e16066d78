package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is the flat authorization attribute of a user.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole accepts exactly "USER" or "ADMIN".
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleUser, RoleAdmin:
		return r, true
	}
	return "", false
}

// User is a document in the users collection.
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"         json:"id"`
	Name          string             `bson:"name"                  json:"name"`
	Email         string             `bson:"email"                 json:"email"`
	Password      string             `bson:"password,omitempty"    json:"-"` // bcrypt hash
	Role          Role               `bson:"role"                  json:"role"`
	EmailVerified bool               `bson:"email_verified"        json:"emailVerified"`
	ResetNonce    string             `bson:"reset_nonce,omitempty" json:"-"`
	CreatedAt     time.Time          `bson:"created_at"            json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updated_at"            json:"updatedAt"`
}

// HasPassword is false for accounts that sign in through an external
// identity provider.
func (u *User) HasPassword() bool { return u.Password != "" }

// UserSummary is the public projection returned by the admin user endpoint.
type UserSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          Role      `json:"role"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:            u.ID.Hex(),
		Name:          u.Name,
		Email:         u.Email,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// Contact is the {name, email} pair embedded in list views.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}
