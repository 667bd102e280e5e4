package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/lib/pq"

	svcerrors "github.com/elghella/marketplace/internal/errors"
)

// Item conditions.
const (
	ConditionNew         = "new"
	ConditionUsed        = "used"
	ConditionRefurbished = "refurbished"
)

// Item statuses.
const (
	ItemActive   = "active"
	ItemSold     = "sold"
	ItemInactive = "inactive"
)

// Category groups marketplace items. Categories may nest one level via
// ParentID.
type Category struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	NameAr    string    `json:"name_ar" db:"name_ar"`
	Slug      string    `json:"slug" db:"slug"`
	Icon      string    `json:"icon" db:"icon"`
	ParentID  *string   `json:"parent_id,omitempty" db:"parent_id"`
	SortOrder int       `json:"sort_order" db:"sort_order"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (c *Category) GetID() string           { return c.ID }
func (c *Category) GetOwnerID() string      { return "" }
func (c *Category) GetCreatedAt() time.Time { return c.CreatedAt }
func (c *Category) Touch(now time.Time)     { c.UpdatedAt = now.UTC() }

func (c *Category) Prepare(_ string, now time.Time) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Slug == "" {
		c.Slug = Slugify(c.Name)
	}
	c.CreatedAt = now.UTC()
	c.UpdatedAt = now.UTC()
}

func (c *Category) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" && strings.TrimSpace(c.NameAr) == "" {
		return svcerrors.Validation("name", "name or name_ar is required")
	}
	if c.Slug == "" {
		c.Slug = Slugify(c.Name)
	}
	if c.Slug == "" {
		c.Slug = Slugify(c.NameAr)
	}
	if c.Slug == "" {
		return svcerrors.Validation("slug", "slug could not be derived from the name")
	}
	if c.ParentID != nil && *c.ParentID == c.ID && c.ID != "" {
		return svcerrors.Validation("parent_id", "category cannot be its own parent")
	}
	return nil
}

// Slugify lowercases s and joins its letter/digit runs with dashes.
// Arabic letters are kept as they are.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	return b.String()
}

// MarketplaceItem is a general item sold by a user.
type MarketplaceItem struct {
	ID          string         `json:"id" db:"id"`
	SellerID    string         `json:"seller_id" db:"seller_id"`
	CategoryID  *string        `json:"category_id,omitempty" db:"category_id"`
	Title       string         `json:"title" db:"title"`
	Description string         `json:"description" db:"description"`
	Price       float64        `json:"price" db:"price"`
	Currency    string         `json:"currency" db:"currency"`
	Condition   string         `json:"condition" db:"condition"`
	Location    string         `json:"location" db:"location"`
	Images      pq.StringArray `json:"images" db:"images"`
	Status      string         `json:"status" db:"status"`
	Featured    bool           `json:"featured" db:"featured"`
	Views       int            `json:"views" db:"views"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// NewMarketplaceItem returns an item with defaults applied.
func NewMarketplaceItem() *MarketplaceItem {
	return &MarketplaceItem{
		Currency:  DefaultCurrency,
		Condition: ConditionUsed,
		Images:    pq.StringArray{},
		Status:    ItemActive,
	}
}

func (m *MarketplaceItem) GetID() string           { return m.ID }
func (m *MarketplaceItem) GetOwnerID() string      { return m.SellerID }
func (m *MarketplaceItem) GetCreatedAt() time.Time { return m.CreatedAt }
func (m *MarketplaceItem) Touch(now time.Time)     { m.UpdatedAt = now.UTC() }

func (m *MarketplaceItem) Prepare(sellerID string, now time.Time) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if sellerID != "" {
		m.SellerID = sellerID
	}
	if m.Currency == "" {
		m.Currency = DefaultCurrency
	}
	if m.Status == "" {
		m.Status = ItemActive
	}
	if m.Images == nil {
		m.Images = pq.StringArray{}
	}
	m.Views = 0
	m.CreatedAt = now.UTC()
	m.UpdatedAt = now.UTC()
}

func (m *MarketplaceItem) Validate() error {
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" {
		return svcerrors.Validation("title", "title is required")
	}
	if err := maxRunes("title", m.Title, maxTitleLength); err != nil {
		return err
	}
	if err := check("price", m.Price, "gte=0", "price must not be negative"); err != nil {
		return err
	}
	if err := check("images", []string(m.Images), fmt.Sprintf("max=%d", maxImages), "too many images"); err != nil {
		return err
	}
	if err := oneOf("condition", m.Condition, ConditionNew, ConditionUsed, ConditionRefurbished); err != nil {
		return err
	}
	return oneOf("status", m.Status, ItemActive, ItemSold, ItemInactive)
}
