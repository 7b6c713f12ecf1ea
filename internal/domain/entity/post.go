package entity

import "time"

type PostStatus string

const (
	PostStatusPending   PostStatus = "pending"
	PostStatusAccepted  PostStatus = "accepted"
	PostStatusCompleted PostStatus = "completed"
)

const (
	MinPostContentLength = 20
	MaxPostContentLength = 500
)

// Post is a counseling support request. AcceptedBy is empty while Status is pending.
type Post struct {
	ID            string     `json:"id" firestore:"-"`
	UserID        string     `json:"user_id" firestore:"userId"`
	UserEmail     string     `json:"user_email,omitempty" firestore:"userEmail,omitempty"`
	Category      string     `json:"category" firestore:"category"`
	Icon          string     `json:"icon,omitempty" firestore:"icon,omitempty"`
	Content       string     `json:"content" firestore:"content"`
	Status        PostStatus `json:"status" firestore:"status"`
	AcceptedBy    *string    `json:"accepted_by" firestore:"acceptedBy"`
	Archived      bool       `json:"archived" firestore:"archived"`
	CreatedAt     time.Time  `json:"created_at" firestore:"createdAt"`
	UpdatedAt     time.Time  `json:"updated_at" firestore:"updatedAt"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty" firestore:"lastMessageAt,omitempty"`
}

func (p *Post) AcceptedByID() string {
	if p.AcceptedBy == nil {
		return ""
	}
	return *p.AcceptedBy
}

func (p *Post) IsOwner(userID string) bool {
	return userID != "" && p.UserID == userID
}

// IsParticipant reports whether userID is the owner or the accepted counselor.
func (p *Post) IsParticipant(userID string) bool {
	return p.IsOwner(userID) || (userID != "" && p.AcceptedByID() == userID)
}

// OtherParticipant returns the counterpart of userID in the engagement, or "".
func (p *Post) OtherParticipant(userID string) string {
	switch userID {
	case p.UserID:
		return p.AcceptedByID()
	case p.AcceptedByID():
		return p.UserID
	}
	return ""
}

func (p *Post) IsEditable() bool {
	return p.Status == PostStatusPending
}

func (p *Post) IsDeletable() bool {
	return p.Status == PostStatusPending
}

// Clone returns a deep copy safe to hand to another goroutine.
func (p *Post) Clone() *Post {
	c := *p
	if p.AcceptedBy != nil {
		v := *p.AcceptedBy
		c.AcceptedBy = &v
	}
	if p.LastMessageAt != nil {
		v := *p.LastMessageAt
		c.LastMessageAt = &v
	}
	return &c
}

type PostUpdate struct {
	Category *string
	Content  *string
}

type Category struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

var Categories = []Category{
	{Name: "Sexual Abuse", Icon: "security"},
	{Name: "Relationship", Icon: "favorite"},
	{Name: "Violence", Icon: "warning"},
	{Name: "Depression", Icon: "mood-bad"},
	{Name: "Anxiety", Icon: "sentiment-dissatisfied"},
	{Name: "Family Issues", Icon: "family-restroom"},
	{Name: "Trauma", Icon: "healing"},
	{Name: "Others", Icon: "help"},
}

// CategoryIcon maps a category name to its icon; unknown categories get "help".
func CategoryIcon(name string) string {
	for _, c := range Categories {
		if c.Name == name {
			return c.Icon
		}
	}
	return "help"
}
