package entity

import "time"

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

func (t MessageType) IsAttachment() bool {
	return t == MessageTypeImage || t == MessageTypeFile
}

// Message lives under posts/{postId}/messages and is append-only except for Read.
type Message struct {
	ID          string      `json:"id" firestore:"-"`
	PostID      string      `json:"post_id" firestore:"-"`
	SenderID    string      `json:"sender_id" firestore:"senderId"`
	Type        MessageType `json:"type" firestore:"type"`
	Text        string      `json:"text,omitempty" firestore:"text,omitempty"`
	FileURL     string      `json:"file_url,omitempty" firestore:"fileUrl,omitempty"`
	FileName    string      `json:"file_name,omitempty" firestore:"fileName,omitempty"`
	StoragePath string      `json:"-" firestore:"storagePath,omitempty"`
	CreatedAt   time.Time   `json:"created_at" firestore:"createdAt"`
	Read        bool        `json:"read" firestore:"read"`
}

// Kind returns the message type, defaulting to text for legacy rows.
func (m *Message) Kind() MessageType {
	if m.Type == "" {
		return MessageTypeText
	}
	return m.Type
}

func (m *Message) HasAttachment() bool {
	return m.FileURL != "" || m.StoragePath != ""
}

func (m *Message) Clone() *Message {
	c := *m
	return &c
}

// Attachment is the durable reference returned by the uploader.
type Attachment struct {
	Kind        MessageType `json:"kind"`
	Key         string      `json:"key"`
	URL         string      `json:"url"`
	FileName    string      `json:"file_name,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
}

// Preview is the one-line summary used in notification bodies.
func (m *Message) Preview() string {
	switch m.Kind() {
	case MessageTypeImage:
		return "Sent an image"
	case MessageTypeFile:
		return "Sent a file: " + m.FileName
	}
	return m.Text
}

// NewMessageNotification builds the alert for message m; senderName may be empty.
func NewMessageNotification(postID, senderName string, m *Message) Notification {
	title := senderName
	if title == "" {
		title = "New Message"
	}
	return Notification{
		Title: title,
		Body:  m.Preview(),
		Data: map[string]string{
			"postId":    postID,
			"messageId": m.ID,
		},
	}
}
