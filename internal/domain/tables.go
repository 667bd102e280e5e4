package domain

import (
	"reflect"
	"strings"

	"github.com/elghella/marketplace/internal/records"
)

// Table names.
const (
	TableEquipment       = "equipment"
	TableAnimals         = "animal_listings"
	TableLand            = "land_listings"
	TableVegetables      = "vegetables"
	TableNurseries       = "nurseries"
	TableLabor           = "labor"
	TableAnalysis        = "analysis"
	TableDelivery        = "delivery"
	TableProfiles        = "profiles"
	TableMessages        = "messages"
	TableCategories      = "categories"
	TableMarketplaceItem = "marketplace_items"
	TableWebsiteSettings = "website_settings"
)

var listingSearchable = []string{"title", "description", "location"}

var (
	EquipmentTable = records.Table[*Equipment]{
		Name:       TableEquipment,
		Columns:    columnsOf(Equipment{}),
		Searchable: append(listingSearchable, "brand", "model"),
		New:        func() *Equipment { return &Equipment{Listing: NewListing(), Condition: ConditionUsed} },
	}
	AnimalTable = records.Table[*AnimalListing]{
		Name:       TableAnimals,
		Columns:    columnsOf(AnimalListing{}),
		Searchable: append(listingSearchable, "animal_type", "breed"),
		New:        func() *AnimalListing { return &AnimalListing{Listing: NewListing(), Quantity: 1} },
	}
	LandTable = records.Table[*LandListing]{
		Name:       TableLand,
		Columns:    columnsOf(LandListing{}),
		Searchable: append(listingSearchable, "soil_type"),
		New:        func() *LandListing { return &LandListing{Listing: NewListing(), ListingType: "sale", AreaUnit: "hectare"} },
	}
	VegetableTable = records.Table[*Vegetable]{
		Name:       TableVegetables,
		Columns:    columnsOf(Vegetable{}),
		Searchable: append(listingSearchable, "vegetable_type", "variety"),
		New:        func() *Vegetable { return &Vegetable{Listing: NewListing(), Unit: "kg", Freshness: "fresh"} },
	}
	NurseryTable = records.Table[*Nursery]{
		Name:       TableNurseries,
		Columns:    columnsOf(Nursery{}),
		Searchable: append(listingSearchable, "plant_type", "plant_name"),
		New:        func() *Nursery { return &Nursery{Listing: NewListing(), Quantity: 1} },
	}
	LaborTable = records.Table[*Labor]{
		Name:       TableLabor,
		Columns:    columnsOf(Labor{}),
		Searchable: append(listingSearchable, "service_area"),
		New:        func() *Labor { l := &Labor{Listing: NewListing()}; l.Skills = []string{}; return l },
	}
	AnalysisTable = records.Table[*Analysis]{
		Name:       TableAnalysis,
		Columns:    columnsOf(Analysis{}),
		Searchable: append(listingSearchable, "lab_name"),
		New:        func() *Analysis { return &Analysis{Listing: NewListing(), AnalysisType: "soil"} },
	}
	DeliveryTable = records.Table[*Delivery]{
		Name:       TableDelivery,
		Columns:    columnsOf(Delivery{}),
		Searchable: append(listingSearchable, "vehicle_type"),
		New:        func() *Delivery { d := &Delivery{Listing: NewListing()}; d.ServiceAreas = []string{}; return d },
	}

	ProfileTable = records.Table[*Profile]{
		Name:       TableProfiles,
		Columns:    columnsOf(Profile{}),
		Searchable: []string{"full_name", "location"},
		New:        func() *Profile { return &Profile{Role: RoleUser} },
	}
	MessageTable = records.Table[*Message]{
		Name:       TableMessages,
		Columns:    columnsOf(Message{}),
		Searchable: []string{"name", "email", "subject", "message"},
		New:        func() *Message { return &Message{Status: MessageUnread} },
	}
	CategoryTable = records.Table[*Category]{
		Name:       TableCategories,
		Columns:    columnsOf(Category{}),
		Searchable: []string{"name", "name_ar", "slug"},
		New:        func() *Category { return &Category{} },
	}
	MarketplaceItemTable = records.Table[*MarketplaceItem]{
		Name:       TableMarketplaceItem,
		Columns:    columnsOf(MarketplaceItem{}),
		Searchable: []string{"title", "description", "location"},
		New:        NewMarketplaceItem,
	}
	WebsiteSettingsTable = records.Table[*WebsiteSettings]{
		Name:    TableWebsiteSettings,
		Columns: columnsOf(WebsiteSettings{}),
		New:     func() *WebsiteSettings { return &WebsiteSettings{SocialLinks: JSONMap{}, Extra: JSONMap{}} },
	}
)

// columnsOf lists the db tags of v's fields, flattening embedded structs.
func columnsOf(v any) []string {
	var cols []string
	var walk func(t reflect.Type)
	walk = func(t reflect.Type) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.Anonymous && f.Type.Kind() == reflect.Struct {
				walk(f.Type)
				continue
			}
			tag := strings.Split(f.Tag.Get("db"), ",")[0]
			if tag == "" || tag == "-" {
				continue
			}
			cols = append(cols, tag)
		}
	}
	walk(reflect.TypeOf(v))
	return cols
}
