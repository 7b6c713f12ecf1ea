package entity

import (
	"regexp"
	"time"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SanitizeEmail builds the verifiedCounselors document id for an email address.
func SanitizeEmail(email string) string {
	return nonAlphanumeric.ReplaceAllString(email, "")
}

type Role string

const (
	RoleUser      Role = "user"
	RoleCounselor Role = "counselor"
)

// Session is the explicit identity handed to every operation. It is created on sign-in
// and discarded on sign-out; nothing reads identity from global state.
type Session struct {
	UserID      string `json:"user_id"`
	Role        Role   `json:"role"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

func (s *Session) IsCounselor() bool {
	return s != nil && s.Role == RoleCounselor
}

// Profile is a document in either the users or the counselors collection.
type Profile struct {
	ID          string     `json:"id" firestore:"-"`
	Email       string     `json:"email" firestore:"email"`
	DisplayName string     `json:"display_name,omitempty" firestore:"displayName,omitempty"`
	Role        Role       `json:"role" firestore:"role"`
	IsVerified  bool       `json:"is_verified,omitempty" firestore:"isVerified,omitempty"`
	ProfilePic  string     `json:"profile_pic,omitempty" firestore:"profilePic,omitempty"`
	PhoneNumber string     `json:"phone_number,omitempty" firestore:"phoneNumber,omitempty"`
	FCMTokens   []string   `json:"-" firestore:"fcmTokens,omitempty"`
	CreatedAt   time.Time  `json:"created_at" firestore:"createdAt"`
	LastLogin   *time.Time `json:"last_login,omitempty" firestore:"lastLogin,omitempty"`
}

// Notification is a fire-and-forget alert about a new message.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}
