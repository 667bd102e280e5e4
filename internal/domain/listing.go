// Package domain defines the marketplace rows and their validation rules.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	svcerrors "github.com/elghella/marketplace/internal/errors"
)

// DefaultCurrency is the Algerian dinar.
const DefaultCurrency = "DZD"

const (
	maxTitleLength       = 200
	maxDescriptionLength = 5000
	maxImages            = 10
)

// Listing holds the columns shared by every listing table.
type Listing struct {
	ID          string         `json:"id" db:"id"`
	UserID      string         `json:"user_id" db:"user_id"`
	Title       string         `json:"title" db:"title"`
	Description string         `json:"description" db:"description"`
	Price       float64        `json:"price" db:"price"`
	Currency    string         `json:"currency" db:"currency"`
	Location    string         `json:"location" db:"location"`
	Images      pq.StringArray `json:"images" db:"images"`
	IsAvailable bool           `json:"is_available" db:"is_available"`
	IsActive    bool           `json:"is_active" db:"is_active"`
	Views       int            `json:"views" db:"views"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// NewListing returns a listing with defaults applied.
func NewListing() Listing {
	return Listing{
		Currency:    DefaultCurrency,
		Images:      pq.StringArray{},
		IsAvailable: true,
		IsActive:    true,
	}
}

func (l *Listing) GetID() string           { return l.ID }
func (l *Listing) GetOwnerID() string      { return l.UserID }
func (l *Listing) GetCreatedAt() time.Time { return l.CreatedAt }

// Prepare assigns id, owner and timestamps before an insert.
func (l *Listing) Prepare(ownerID string, now time.Time) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if ownerID != "" {
		l.UserID = ownerID
	}
	if l.Currency == "" {
		l.Currency = DefaultCurrency
	}
	if l.Images == nil {
		l.Images = pq.StringArray{}
	}
	l.Views = 0
	l.CreatedAt = now.UTC()
	l.UpdatedAt = now.UTC()
}

func (l *Listing) Touch(now time.Time) { l.UpdatedAt = now.UTC() }

// ValidateListing checks the shared columns.
func (l *Listing) ValidateListing() error {
	l.Title = strings.TrimSpace(l.Title)
	if l.Title == "" {
		return svcerrors.Validation("title", "title is required")
	}
	if err := maxRunes("title", l.Title, maxTitleLength); err != nil {
		return err
	}
	if err := maxRunes("description", l.Description, maxDescriptionLength); err != nil {
		return err
	}
	if err := check("price", l.Price, "gte=0", "price must not be negative"); err != nil {
		return err
	}
	return check("images", []string(l.Images), fmt.Sprintf("max=%d", maxImages), "too many images")
}

// Validator is implemented by rows that check themselves before a write.
type Validator interface {
	Validate() error
}

// =============================================================================
// Listing types
// =============================================================================

// Equipment is an agricultural machine or tool for sale or rent.
type Equipment struct {
	Listing
	Category  string `json:"category" db:"category"`
	Condition string `json:"condition" db:"condition"`
	Brand     string `json:"brand" db:"brand"`
	Model     string `json:"model" db:"model"`
	Year      *int   `json:"year,omitempty" db:"year"`
	HoursUsed *int   `json:"hours_used,omitempty" db:"hours_used"`
	IsForRent bool   `json:"is_for_rent" db:"is_for_rent"`
}

func (e *Equipment) Validate() error {
	if err := e.ValidateListing(); err != nil {
		return err
	}
	if err := oneOf("condition", e.Condition, ConditionNew, ConditionUsed, ConditionRefurbished); err != nil {
		return err
	}
	if e.Year != nil && (*e.Year < 1900 || *e.Year > time.Now().Year()+1) {
		return svcerrors.Validation("year", "year is out of range")
	}
	if e.HoursUsed != nil && *e.HoursUsed < 0 {
		return svcerrors.Validation("hours_used", "hours_used must not be negative")
	}
	return nil
}

// AnimalListing is livestock offered for sale.
type AnimalListing struct {
	Listing
	AnimalType   string   `json:"animal_type" db:"animal_type"`
	Breed        string   `json:"breed" db:"breed"`
	Quantity     int      `json:"quantity" db:"quantity"`
	AgeMonths    *int     `json:"age_months,omitempty" db:"age_months"`
	Gender       string   `json:"gender" db:"gender"`
	WeightKg     *float64 `json:"weight_kg,omitempty" db:"weight_kg"`
	Vaccinated   bool     `json:"vaccinated" db:"vaccinated"`
	HealthStatus string   `json:"health_status" db:"health_status"`
}

func (a *AnimalListing) Validate() error {
	if err := a.ValidateListing(); err != nil {
		return err
	}
	if strings.TrimSpace(a.AnimalType) == "" {
		return svcerrors.Validation("animal_type", "animal_type is required")
	}
	if a.Quantity < 1 {
		return svcerrors.Validation("quantity", "quantity must be at least 1")
	}
	return oneOf("gender", a.Gender, "male", "female", "mixed")
}

// LandListing is farmland for sale or rent.
type LandListing struct {
	Listing
	ListingType string  `json:"listing_type" db:"listing_type"`
	AreaSize    float64 `json:"area_size" db:"area_size"`
	AreaUnit    string  `json:"area_unit" db:"area_unit"`
	SoilType    string  `json:"soil_type" db:"soil_type"`
	WaterSource string  `json:"water_source" db:"water_source"`
}

func (l *LandListing) Validate() error {
	if err := l.ValidateListing(); err != nil {
		return err
	}
	if l.ListingType == "" {
		return svcerrors.Validation("listing_type", "listing_type is required")
	}
	if err := oneOf("listing_type", l.ListingType, "sale", "rent"); err != nil {
		return err
	}
	if l.AreaSize <= 0 {
		return svcerrors.Validation("area_size", "area_size must be positive")
	}
	return oneOf("area_unit", l.AreaUnit, "hectare", "square_meter", "acre")
}

// Vegetable is a produce lot.
type Vegetable struct {
	Listing
	VegetableType string     `json:"vegetable_type" db:"vegetable_type"`
	Variety       string     `json:"variety" db:"variety"`
	Quantity      float64    `json:"quantity" db:"quantity"`
	Unit          string     `json:"unit" db:"unit"`
	Freshness     string     `json:"freshness" db:"freshness"`
	Organic       bool       `json:"organic" db:"organic"`
	HarvestDate   *time.Time `json:"harvest_date,omitempty" db:"harvest_date"`
}

func (v *Vegetable) Validate() error {
	if err := v.ValidateListing(); err != nil {
		return err
	}
	if strings.TrimSpace(v.VegetableType) == "" {
		return svcerrors.Validation("vegetable_type", "vegetable_type is required")
	}
	if v.Quantity <= 0 {
		return svcerrors.Validation("quantity", "quantity must be positive")
	}
	if err := oneOf("unit", v.Unit, "kg", "ton", "box", "piece", "bunch"); err != nil {
		return err
	}
	return oneOf("freshness", v.Freshness, "fresh", "dried", "frozen")
}

// Nursery is a batch of seedlings or plants.
type Nursery struct {
	Listing
	PlantType string `json:"plant_type" db:"plant_type"`
	PlantName string `json:"plant_name" db:"plant_name"`
	AgeMonths *int   `json:"age_months,omitempty" db:"age_months"`
	Size      string `json:"size" db:"size"`
	Quantity  int    `json:"quantity" db:"quantity"`
	PotSize   string `json:"pot_size" db:"pot_size"`
}

func (n *Nursery) Validate() error {
	if err := n.ValidateListing(); err != nil {
		return err
	}
	if strings.TrimSpace(n.PlantName) == "" {
		return svcerrors.Validation("plant_name", "plant_name is required")
	}
	if n.Quantity < 1 {
		return svcerrors.Validation("quantity", "quantity must be at least 1")
	}
	return oneOf("size", n.Size, "small", "medium", "large")
}

// Labor is a worker or crew offering services.
type Labor struct {
	Listing
	Skills          pq.StringArray `json:"skills" db:"skills"`
	ExperienceYears int            `json:"experience_years" db:"experience_years"`
	DailyRate       float64        `json:"daily_rate" db:"daily_rate"`
	ServiceArea     string         `json:"service_area" db:"service_area"`
	Phone           string         `json:"phone" db:"phone"`
}

func (l *Labor) Validate() error {
	if err := l.ValidateListing(); err != nil {
		return err
	}
	if l.Skills == nil {
		l.Skills = pq.StringArray{}
	}
	if l.ExperienceYears < 0 {
		return svcerrors.Validation("experience_years", "experience_years must not be negative")
	}
	if l.DailyRate < 0 {
		return svcerrors.Validation("daily_rate", "daily_rate must not be negative")
	}
	return validPhone("phone", l.Phone)
}

// Analysis is a laboratory analysis service.
type Analysis struct {
	Listing
	AnalysisType   string `json:"analysis_type" db:"analysis_type"`
	TurnaroundDays int    `json:"turnaround_days" db:"turnaround_days"`
	Accredited     bool   `json:"accredited" db:"accredited"`
	LabName        string `json:"lab_name" db:"lab_name"`
}

func (a *Analysis) Validate() error {
	if err := a.ValidateListing(); err != nil {
		return err
	}
	if a.AnalysisType == "" {
		return svcerrors.Validation("analysis_type", "analysis_type is required")
	}
	if err := oneOf("analysis_type", a.AnalysisType, "soil", "water", "plant", "other"); err != nil {
		return err
	}
	if a.TurnaroundDays < 0 {
		return svcerrors.Validation("turnaround_days", "turnaround_days must not be negative")
	}
	return nil
}

// Delivery is a transport service.
type Delivery struct {
	Listing
	VehicleType  string         `json:"vehicle_type" db:"vehicle_type"`
	CapacityKg   float64        `json:"capacity_kg" db:"capacity_kg"`
	ServiceAreas pq.StringArray `json:"service_areas" db:"service_areas"`
	PricePerKm   float64        `json:"price_per_km" db:"price_per_km"`
}

func (d *Delivery) Validate() error {
	if err := d.ValidateListing(); err != nil {
		return err
	}
	if d.ServiceAreas == nil {
		d.ServiceAreas = pq.StringArray{}
	}
	if strings.TrimSpace(d.VehicleType) == "" {
		return svcerrors.Validation("vehicle_type", "vehicle_type is required")
	}
	if d.CapacityKg < 0 || d.PricePerKm < 0 {
		return svcerrors.Validation("capacity_kg", "capacity and price must not be negative")
	}
	return nil
}
