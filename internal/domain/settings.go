package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	svcerrors "github.com/elghella/marketplace/internal/errors"
)

// SettingsID is the primary key of the single website_settings row.
const SettingsID = "default"

// DefaultSiteName is shown until an admin saves settings.
const DefaultSiteName = "الغلة"

// JSONMap is a jsonb column.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonmap: cannot scan %T", src)
	}
	out := JSONMap{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("jsonmap: %w", err)
	}
	*m = out
	return nil
}

// WebsiteSettings is the site-wide configuration edited in the back-office.
type WebsiteSettings struct {
	ID              string    `json:"id" db:"id"`
	SiteName        string    `json:"site_name" db:"site_name"`
	SiteDescription string    `json:"site_description" db:"site_description"`
	ContactEmail    string    `json:"contact_email" db:"contact_email"`
	ContactPhone    string    `json:"contact_phone" db:"contact_phone"`
	Address         string    `json:"address" db:"address"`
	LogoURL         string    `json:"logo_url" db:"logo_url"`
	HeroTitle       string    `json:"hero_title" db:"hero_title"`
	HeroSubtitle    string    `json:"hero_subtitle" db:"hero_subtitle"`
	Announcement    string    `json:"announcement" db:"announcement"`
	MaintenanceMode bool      `json:"maintenance_mode" db:"maintenance_mode"`
	SocialLinks     JSONMap   `json:"social_links" db:"social_links"`
	Extra           JSONMap   `json:"extra" db:"extra"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultWebsiteSettings is served while no row exists.
func DefaultWebsiteSettings() *WebsiteSettings {
	return &WebsiteSettings{
		ID:              SettingsID,
		SiteName:        DefaultSiteName,
		SiteDescription: "منصة السوق الزراعي: معدات، حيوانات، أراضي، خضروات، مشاتل، عمالة، تحاليل وتوصيل",
		HeroTitle:       "مرحبا بكم في الغلة",
		HeroSubtitle:    "كل ما تحتاجه للزراعة في مكان واحد",
		SocialLinks:     JSONMap{},
		Extra:           JSONMap{},
	}
}

func (s *WebsiteSettings) GetID() string           { return s.ID }
func (s *WebsiteSettings) GetOwnerID() string      { return "" }
func (s *WebsiteSettings) GetCreatedAt() time.Time { return s.CreatedAt }
func (s *WebsiteSettings) Touch(now time.Time)     { s.UpdatedAt = now.UTC() }

func (s *WebsiteSettings) Prepare(_ string, now time.Time) {
	s.ID = SettingsID
	if s.SocialLinks == nil {
		s.SocialLinks = JSONMap{}
	}
	if s.Extra == nil {
		s.Extra = JSONMap{}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now.UTC()
	}
	s.UpdatedAt = now.UTC()
}

func (s *WebsiteSettings) Validate() error {
	if s.SiteName == "" {
		return svcerrors.Validation("site_name", "site_name is required")
	}
	if err := validEmail("contact_email", s.ContactEmail); err != nil {
		return err
	}
	return validPhone("contact_phone", s.ContactPhone)
}
