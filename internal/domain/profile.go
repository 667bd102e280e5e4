package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	svcerrors "github.com/elghella/marketplace/internal/errors"
)

// Roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Profile is the public profile of an auth user; ID equals the auth user id.
type Profile struct {
	ID        string    `json:"id" db:"id"`
	FullName  string    `json:"full_name" db:"full_name"`
	Phone     string    `json:"phone" db:"phone"`
	AvatarURL string    `json:"avatar_url" db:"avatar_url"`
	Location  string    `json:"location" db:"location"`
	Bio       string    `json:"bio" db:"bio"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (p *Profile) GetID() string           { return p.ID }
func (p *Profile) GetOwnerID() string      { return p.ID }
func (p *Profile) GetCreatedAt() time.Time { return p.CreatedAt }
func (p *Profile) Touch(now time.Time)     { p.UpdatedAt = now.UTC() }

func (p *Profile) Prepare(userID string, now time.Time) {
	if userID != "" {
		p.ID = userID
	}
	if p.Role == "" {
		p.Role = RoleUser
	}
	p.CreatedAt = now.UTC()
	p.UpdatedAt = now.UTC()
}

func (p *Profile) Validate() error {
	p.FullName = strings.TrimSpace(p.FullName)
	if err := maxRunes("full_name", p.FullName, 120); err != nil {
		return err
	}
	if err := maxRunes("bio", p.Bio, 1000); err != nil {
		return err
	}
	if err := validPhone("phone", p.Phone); err != nil {
		return err
	}
	return oneOf("role", p.Role, RoleUser, RoleAdmin)
}

// Message statuses.
const (
	MessageUnread  = "unread"
	MessageRead    = "read"
	MessageReplied = "replied"
)

// Message is a contact form submission handled in the back-office.
type Message struct {
	ID        string     `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Email     string     `json:"email" db:"email"`
	Phone     string     `json:"phone" db:"phone"`
	Subject   string     `json:"subject" db:"subject"`
	Message   string     `json:"message" db:"message"`
	Status    string     `json:"status" db:"status"`
	Reply     string     `json:"reply" db:"reply"`
	RepliedAt *time.Time `json:"replied_at,omitempty" db:"replied_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

func (m *Message) GetID() string           { return m.ID }
func (m *Message) GetOwnerID() string      { return "" }
func (m *Message) GetCreatedAt() time.Time { return m.CreatedAt }
func (m *Message) Touch(now time.Time)     { m.UpdatedAt = now.UTC() }

func (m *Message) Prepare(_ string, now time.Time) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Status = MessageUnread
	m.Reply = ""
	m.RepliedAt = nil
	m.CreatedAt = now.UTC()
	m.UpdatedAt = now.UTC()
}

func (m *Message) Validate() error {
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.TrimSpace(m.Email)
	m.Message = strings.TrimSpace(m.Message)
	if m.Name == "" {
		return svcerrors.Validation("name", "name is required")
	}
	if m.Email == "" {
		return svcerrors.Validation("email", "email is required")
	}
	if err := validEmail("email", m.Email); err != nil {
		return err
	}
	if m.Message == "" {
		return svcerrors.Validation("message", "message is required")
	}
	if err := maxRunes("message", m.Message, maxDescriptionLength); err != nil {
		return err
	}
	if err := validPhone("phone", m.Phone); err != nil {
		return err
	}
	return oneOf("status", m.Status, MessageUnread, MessageRead, MessageReplied)
}
