// Package marketplace serves general marketplace items and the category
// tree they are filed under.
package marketplace

import (
	"context"
	"strings"

	"github.com/elghella/marketplace/internal/domain"
	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/listings"
	"github.com/elghella/marketplace/internal/records"
)

// Resource names.
const (
	ResourceItems      = "marketplace_items"
	ResourceCategories = "categories"
)

// Sort orders accepted by ListItems.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortPopular   = "popular"
)

// ItemFilter narrows ListItems.
type ItemFilter struct {
	CategoryID string
	Search     string
	Condition  string
	Location   string
	MinPrice   *float64
	MaxPrice   *float64
	Featured   *bool
	Sort       string
	Limit      int
	Offset     int
}

// Query translates f into a records query.
func (f ItemFilter) Query() (records.Query, error) {
	q := records.Query{Search: f.Search, Limit: f.Limit, Offset: f.Offset}
	if f.CategoryID != "" {
		q = q.Where("category_id", records.OpEq, f.CategoryID)
	}
	if f.Condition != "" {
		q = q.Where("condition", records.OpEq, f.Condition)
	}
	if loc := strings.TrimSpace(f.Location); loc != "" {
		q = q.Where("location", records.OpILike, "*"+loc+"*")
	}
	if f.MinPrice != nil {
		q = q.Where("price", records.OpGte, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price", records.OpLte, *f.MaxPrice)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return q, svcerrors.Validation("min_price", "min_price must not exceed max_price")
	}
	if f.Featured != nil {
		q = q.Where("featured", records.OpEq, *f.Featured)
	}

	switch f.Sort {
	case "", SortNewest:
		q = q.OrderBy("created_at", true)
	case SortPriceAsc:
		q = q.OrderBy("price", false)
	case SortPriceDesc:
		q = q.OrderBy("price", true)
	case SortPopular:
		q = q.OrderBy("views", true).OrderBy("created_at", true)
	default:
		return q, svcerrors.Validation("sort", "sort must be one of newest, price_asc, price_desc, popular")
	}
	return q, nil
}

// Service implements the marketplace operations.
type Service struct {
	items      *listings.Service[*domain.MarketplaceItem]
	categories *listings.Service[*domain.Category]
}

// New wires the service over the item and category stores. base supplies
// the cache and logging options shared with the listing services.
func New(items records.Store[*domain.MarketplaceItem], categories records.Store[*domain.Category], base listings.Options) *Service {
	itemOpts := base
	itemOpts.Resource = ResourceItems
	itemOpts.Visible = []records.Filter{{Column: "status", Op: records.OpEq, Value: domain.ItemActive}}
	itemOpts.Immutable = []string{"id", "seller_id", "created_at", "views"}

	catOpts := base
	catOpts.Resource = ResourceCategories
	catOpts.Visible = []records.Filter{}
	catOpts.Immutable = []string{"id", "created_at"}

	return &Service{
		items:      listings.New(items, itemOpts),
		categories: listings.New(categories, catOpts),
	}
}

// Items exposes the item service for registration with a listings.Registry.
func (s *Service) Items() *listings.Service[*domain.MarketplaceItem] { return s.items }

// Categories exposes the category service.
func (s *Service) Categories() *listings.Service[*domain.Category] { return s.categories }

// =============================================================================
// Items
// =============================================================================

// ListItems returns active items matching f.
func (s *Service) ListItems(ctx context.Context, viewer domain.Actor, f ItemFilter) (*listings.Page[*domain.MarketplaceItem], error) {
	q, err := f.Query()
	if err != nil {
		return nil, err
	}
	return s.items.List(ctx, viewer, q)
}

// GetItem returns one item and counts the view.
func (s *Service) GetItem(ctx context.Context, viewer domain.Actor, id string) (*domain.MarketplaceItem, error) {
	return s.items.Get(ctx, viewer, id)
}

// ListSellerItems returns every item of the actor, sold and inactive ones
// included.
func (s *Service) ListSellerItems(ctx context.Context, actor domain.Actor, limit, offset int) (*listings.Page[*domain.MarketplaceItem], error) {
	return s.items.ListMine(ctx, actor, records.Query{Limit: limit, Offset: offset})
}

// DecodeItem builds an item from a client payload.
func (s *Service) DecodeItem(data []byte) (*domain.MarketplaceItem, error) {
	return s.items.Decode(data)
}

// CreateItem publishes an item for the actor. The category must exist and
// only admins may publish a featured item.
func (s *Service) CreateItem(ctx context.Context, actor domain.Actor, item *domain.MarketplaceItem) (*domain.MarketplaceItem, error) {
	if item.Featured && !actor.IsAdmin() {
		return nil, svcerrors.Forbidden("only admins can feature items")
	}
	if item.CategoryID != nil && *item.CategoryID != "" {
		if err := s.requireCategory(ctx, *item.CategoryID); err != nil {
			return nil, err
		}
	}
	if item.CategoryID != nil && *item.CategoryID == "" {
		item.CategoryID = nil
	}
	return s.items.Create(ctx, actor, item)
}

// UpdateItem applies a partial update by the seller or an admin.
func (s *Service) UpdateItem(ctx context.Context, actor domain.Actor, id string, fields map[string]any) (*domain.MarketplaceItem, error) {
	if v, ok := fields["category_id"]; ok {
		switch cat := v.(type) {
		case nil:
		case string:
			if cat == "" {
				fields["category_id"] = nil
				break
			}
			if err := s.requireCategory(ctx, cat); err != nil {
				return nil, err
			}
		default:
			return nil, svcerrors.Validation("category_id", "category_id must be a string")
		}
	}
	if featured, ok := fields["featured"]; ok && featured == true && !actor.IsAdmin() {
		return nil, svcerrors.Forbidden("only admins can feature items")
	}
	return s.items.Update(ctx, actor, id, fields)
}

// DeleteItem removes an item.
func (s *Service) DeleteItem(ctx context.Context, actor domain.Actor, id string) error {
	return s.items.Delete(ctx, actor, id)
}

// MarkSold sets the item status to sold, hiding it from the public list.
func (s *Service) MarkSold(ctx context.Context, actor domain.Actor, id string) (*domain.MarketplaceItem, error) {
	return s.items.Update(ctx, actor, id, map[string]any{"status": domain.ItemSold})
}

func (s *Service) requireCategory(ctx context.Context, id string) error {
	if _, err := s.categories.Store().Get(ctx, id); err != nil {
		if svcerrors.IsNotFound(records.ToServiceError(err, ResourceCategories, id)) {
			return svcerrors.Validation("category_id", "category does not exist")
		}
		return records.ToServiceError(err, ResourceCategories, id)
	}
	return nil
}

// =============================================================================
// Categories
// =============================================================================

// ListCategories returns every category ordered for display.
func (s *Service) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	page, err := s.categories.List(ctx, domain.Actor{}, records.Query{
		Sort: []records.Sort{{Column: "sort_order"}, {Column: "name"}},
	})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// DecodeCategory builds a category from a client payload.
func (s *Service) DecodeCategory(data []byte) (*domain.Category, error) {
	return s.categories.Decode(data)
}

// CreateCategory adds a category. Admin only.
func (s *Service) CreateCategory(ctx context.Context, actor domain.Actor, c *domain.Category) (*domain.Category, error) {
	if !actor.IsAdmin() {
		return nil, svcerrors.Forbidden("only admins can manage categories")
	}
	if c.ParentID != nil && *c.ParentID != "" {
		if _, err := s.categories.Store().Get(ctx, *c.ParentID); err != nil {
			return nil, svcerrors.Validation("parent_id", "parent category does not exist")
		}
	}
	return s.categories.Create(ctx, actor, c)
}

// UpdateCategory patches a category. Admin only.
func (s *Service) UpdateCategory(ctx context.Context, actor domain.Actor, id string, fields map[string]any) (*domain.Category, error) {
	if !actor.IsAdmin() {
		return nil, svcerrors.Forbidden("only admins can manage categories")
	}
	if name, ok := fields["name"].(string); ok {
		if _, hasSlug := fields["slug"]; !hasSlug {
			fields["slug"] = domain.Slugify(name)
		}
	}
	return s.categories.Update(ctx, actor, id, fields)
}

// DeleteCategory removes a category. Admin only.
func (s *Service) DeleteCategory(ctx context.Context, actor domain.Actor, id string) error {
	if !actor.IsAdmin() {
		return svcerrors.Forbidden("only admins can manage categories")
	}
	return s.categories.Delete(ctx, actor, id)
}
