package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/elghella/marketplace/internal/errors"
)

func TestColumnsOfFlattensListing(t *testing.T) {
	cols := EquipmentTable.Columns
	assert.Contains(t, cols, "id")
	assert.Contains(t, cols, "user_id")
	assert.Contains(t, cols, "is_for_rent")
	assert.Equal(t, "id", cols[0])
	assert.True(t, EquipmentTable.HasColumn("hours_used"))
	assert.False(t, EquipmentTable.HasColumn("Listing"))

	assert.Equal(t, []string{
		"id", "name", "name_ar", "slug", "icon", "parent_id", "sort_order", "created_at", "updated_at",
	}, CategoryTable.Columns)
}

func TestTableDefaults(t *testing.T) {
	e := EquipmentTable.New()
	assert.Equal(t, DefaultCurrency, e.Currency)
	assert.True(t, e.IsActive)
	assert.True(t, e.IsAvailable)
	assert.NotNil(t, e.Images)

	item := MarketplaceItemTable.New()
	assert.Equal(t, ItemActive, item.Status)
}

func TestListingPrepare(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	v := &Vegetable{Listing: Listing{Views: 99}}
	v.Prepare("user-1", now)

	assert.NotEmpty(t, v.ID)
	assert.Equal(t, "user-1", v.UserID)
	assert.Equal(t, DefaultCurrency, v.Currency)
	assert.Zero(t, v.Views)
	assert.Equal(t, time.UTC, v.CreatedAt.Location())
}

func TestListingValidation(t *testing.T) {
	tests := []struct {
		name  string
		v     Validator
		field string
	}{
		{"missing title", &Equipment{Listing: NewListing()}, "title"},
		{"negative price", &Equipment{Listing: Listing{Title: "جرار", Price: -1}}, "price"},
		{"bad condition", &Equipment{Listing: Listing{Title: "جرار"}, Condition: "broken"}, "condition"},
		{"animal quantity", &AnimalListing{Listing: Listing{Title: "أغنام"}, AnimalType: "sheep"}, "quantity"},
		{"land type", &LandListing{Listing: Listing{Title: "أرض"}, ListingType: "lease", AreaSize: 2}, "listing_type"},
		{"land area", &LandListing{Listing: Listing{Title: "أرض"}, ListingType: "rent"}, "area_size"},
		{"vegetable unit", &Vegetable{Listing: Listing{Title: "طماطم"}, VegetableType: "tomato", Quantity: 5, Unit: "bag"}, "unit"},
		{"nursery size", &Nursery{Listing: Listing{Title: "شتلات"}, PlantName: "زيتون", Quantity: 10, Size: "huge"}, "size"},
		{"labor phone", &Labor{Listing: Listing{Title: "عامل"}, Phone: "call me"}, "phone"},
		{"analysis type", &Analysis{Listing: Listing{Title: "تحليل"}, AnalysisType: "blood"}, "analysis_type"},
		{"delivery vehicle", &Delivery{Listing: Listing{Title: "نقل"}}, "vehicle_type"},
		{"message email", &Message{Name: "علي", Email: "not-an-email", Message: "hi"}, "email"},
		{"category name", &Category{}, "name"},
		{"item status", &MarketplaceItem{Title: "x", Status: "deleted"}, "status"},
		{"display name email", &Message{Name: "علي", Email: "Ali <ali@example.dz>", Message: "hi"}, "email"},
		{"short phone", &Labor{Listing: Listing{Title: "عامل"}, Phone: "0555 12"}, "phone"},
		{"long title", &Equipment{Listing: Listing{Title: strings.Repeat("ج", maxTitleLength+1)}}, "title"},
		{"too many images", &MarketplaceItem{Title: "x", Images: make(pq.StringArray, maxImages+1)}, "images"},
		{"settings email", &WebsiteSettings{SiteName: "الغلة", ContactEmail: "nope"}, "contact_email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.Validate()
			require.Error(t, err)
			se := svcerrors.GetServiceError(err)
			require.NotNil(t, se)
			assert.Equal(t, svcerrors.CodeValidation, se.Code)
			assert.Equal(t, tt.field, se.Details["field"])
		})
	}
}

func TestValidRows(t *testing.T) {
	year := 2019
	valid := []Validator{
		&Equipment{Listing: Listing{Title: " جرار ماسي فيرغسون "}, Condition: ConditionUsed, Year: &year},
		&AnimalListing{Listing: Listing{Title: "أبقار"}, AnimalType: "cow", Quantity: 3, Gender: "female"},
		&Labor{Listing: Listing{Title: "عامل حصاد"}, Phone: "+213 555 12 34 56"},
		&Message{Name: "علي", Email: "ali@example.dz", Message: "أريد الاستفسار"},
		&Category{Name: "Farm Tools"},
		DefaultWebsiteSettings(),
	}
	for _, v := range valid {
		assert.NoError(t, v.Validate(), "%T", v)
	}
	eq := valid[0].(*Equipment)
	assert.Equal(t, "جرار ماسي فيرغسون", eq.Title)
	assert.Equal(t, "farm-tools", valid[4].(*Category).Slug)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "farm-tools-2024", Slugify("  Farm Tools / 2024 "))
	assert.Equal(t, "معدات-زراعية", Slugify("معدات زراعية"))
	assert.Equal(t, "", Slugify("---"))
}

func TestJSONMap(t *testing.T) {
	var m JSONMap
	require.NoError(t, m.Scan([]byte(`{"facebook":"https://fb.com/elghella"}`)))
	assert.Equal(t, "https://fb.com/elghella", m["facebook"])

	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)
	assert.Error(t, m.Scan(42))

	v, err := JSONMap(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)
}

func TestMessagePrepareResetsStatus(t *testing.T) {
	m := &Message{Status: MessageReplied, Reply: "spoofed"}
	m.Prepare("", time.Now())
	assert.Equal(t, MessageUnread, m.Status)
	assert.Empty(t, m.Reply)
}

func TestActor(t *testing.T) {
	var anon Actor
	assert.True(t, anon.Anonymous())
	assert.False(t, anon.CanModify(""))

	owner := Actor{UserID: "u1", Role: RoleUser}
	assert.True(t, owner.CanModify("u1"))
	assert.False(t, owner.CanModify("u2"))
	assert.False(t, owner.IsAdmin())

	admin := Actor{UserID: "a1", Role: RoleAdmin}
	assert.True(t, admin.CanModify("u2"))
	assert.False(t, Actor{Role: RoleAdmin}.IsAdmin())
}
