package inbox

import "time"

// Notification is one inbox row. NotificationID is nil for ad-hoc rows that
// were not produced by a job fan-out.
type Notification struct {
	ID             string     `json:"id"`
	NotificationID *string    `json:"notification_id,omitempty"`
	UserID         string     `json:"user_id"`
	Title          string     `json:"title"`
	Text           string     `json:"text"`
	LinkURL        *string    `json:"link_url,omitempty"`
	LinkText       *string    `json:"link_text,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	SeenAt         *time.Time `json:"seen_at,omitempty"`
}

type Draft struct {
	UserID   string  `json:"user_id" validate:"required"`
	Title    string  `json:"title" validate:"required"`
	Text     string  `json:"text" validate:"required"`
	LinkURL  *string `json:"link_url,omitempty"`
	LinkText *string `json:"link_text,omitempty"`
}

func (d Draft) Notification(id string, sentAt time.Time) *Notification {
	return &Notification{
		ID:       id,
		UserID:   d.UserID,
		Title:    d.Title,
		Text:     d.Text,
		LinkURL:  nonEmpty(d.LinkURL),
		LinkText: nonEmpty(d.LinkText),
		SentAt:   &sentAt,
	}
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
