package models

import (
	"time"

	"github.com/campus-genai/campusrag/pkg/rbac"
)

// User is an authenticated portal account. The password hash never
// leaves the credential store.
type User struct {
	ID        string
	Username  string
	Email     string
	Role      rbac.Role
	LastLogin time.Time
}

// Exchange is one persisted question/answer turn of a user's chat.
type Exchange struct {
	ID        string
	UserID    string
	Question  string
	Answer    string
	CreatedAt time.Time
}
