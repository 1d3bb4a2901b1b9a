// Package inventory manages stock entries owned by pharmacies, the catalog-wide
// expiry scan and the curated alternative mappings.
package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"medlink/m/domain"
	"medlink/m/internal/apperrors"
	"medlink/m/internal/validation"
)

// DefaultExpiryWindowDays is used when a scan is requested without a positive window.
const DefaultExpiryWindowDays = 30

type Repository interface {
	GetPharmacy(ctx context.Context, id int64) (domain.PharmacyLocation, error)
	CreateStock(ctx context.Context, entry *domain.StockEntry) error
	GetStock(ctx context.Context, id int64) (domain.StockEntry, error)
	UpdateStock(ctx context.Context, entry domain.StockEntry) error
	DeleteStock(ctx context.Context, id int64) error
	ListStock(ctx context.Context, pharmacyID int64) ([]domain.StockEntry, error)
	ExpiringOnOrBefore(ctx context.Context, day domain.Date) ([]domain.ExpiringStock, error)
	AddMapping(ctx context.Context, source, target string) (domain.AlternativeMapping, error)
	ListMappings(ctx context.Context) ([]domain.AlternativeMapping, error)
}

type NewStock struct {
	Name         string   `json:"name" validate:"required,max=200"`
	Manufacturer *string  `json:"manufacturer" validate:"omitempty,max=200"`
	Description  *string  `json:"description" validate:"omitempty,max=1000"`
	Quantity     int64    `json:"quantity" validate:"gte=0"`
	Expiry       string   `json:"expiry" validate:"required,datetime=2006-01-02"`
	Price        *float64 `json:"price" validate:"omitempty,gte=0"`
}

// StockUpdate changes quantity and/or price. ClearPrice marks the price unavailable.
type StockUpdate struct {
	Quantity   *int64   `json:"quantity" validate:"omitempty,gte=0"`
	Price      *float64 `json:"price" validate:"omitempty,gte=0"`
	ClearPrice bool     `json:"clear_price"`
}

type NewMapping struct {
	Source string `json:"medicine_name" validate:"required,max=100"`
	Target string `json:"alternative_name" validate:"required,max=100"`
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) Add(ctx context.Context, pharmacyID int64, in NewStock) (domain.StockEntry, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Manufacturer = trimOptional(in.Manufacturer)
	in.Description = trimOptional(in.Description)
	if err := validation.Struct(in); err != nil {
		return domain.StockEntry{}, err
	}
	expiry, err := domain.ParseDate(in.Expiry)
	if err != nil {
		return domain.StockEntry{}, apperrors.ValidationFields("validation failed", map[string]string{
			"expiry": "expiry must be a date in 2006-01-02 format",
		})
	}
	if _, err := s.repo.GetPharmacy(ctx, pharmacyID); err != nil {
		return domain.StockEntry{}, err
	}

	entry := domain.StockEntry{
		PharmacyID:   pharmacyID,
		Name:         in.Name,
		Manufacturer: in.Manufacturer,
		Description:  in.Description,
		Quantity:     in.Quantity,
		Expiry:       expiry,
		Price:        in.Price,
	}
	if err := s.repo.CreateStock(ctx, &entry); err != nil {
		return domain.StockEntry{}, err
	}
	log.Info().Int64("stock_id", entry.ID).Int64("pharmacy_id", pharmacyID).Str("name", entry.Name).Msg("stock added")
	return entry, nil
}

// Update applies a quantity/price change. Only the owning pharmacy may update an entry.
func (s *Service) Update(ctx context.Context, actor domain.Actor, stockID int64, in StockUpdate) (domain.StockEntry, error) {
	if err := validation.Struct(in); err != nil {
		return domain.StockEntry{}, err
	}
	if in.ClearPrice && in.Price != nil {
		return domain.StockEntry{}, apperrors.ValidationFields("validation failed", map[string]string{
			"price": "price cannot be set and cleared at once",
		})
	}
	if in.Quantity == nil && in.Price == nil && !in.ClearPrice {
		return domain.StockEntry{}, apperrors.Validation("nothing to update")
	}

	entry, err := s.repo.GetStock(ctx, stockID)
	if err != nil {
		return domain.StockEntry{}, err
	}
	if actor.Role != domain.RolePharmacy || actor.PharmacyID != entry.PharmacyID {
		return domain.StockEntry{}, apperrors.Forbidden("only the owning pharmacy can update this stock entry")
	}

	if in.Quantity != nil {
		entry.Quantity = *in.Quantity
	}
	switch {
	case in.ClearPrice:
		entry.Price = nil
	case in.Price != nil:
		entry.Price = in.Price
	}
	if err := s.repo.UpdateStock(ctx, entry); err != nil {
		return domain.StockEntry{}, err
	}
	return entry, nil
}

// Remove deletes an entry. The owning pharmacy and admins may remove it.
func (s *Service) Remove(ctx context.Context, actor domain.Actor, stockID int64) error {
	entry, err := s.repo.GetStock(ctx, stockID)
	if err != nil {
		return err
	}
	owner := actor.Role == domain.RolePharmacy && actor.PharmacyID == entry.PharmacyID
	if !owner && !actor.IsAdmin() {
		return apperrors.Forbidden("only the owning pharmacy or an admin can remove this stock entry")
	}
	if err := s.repo.DeleteStock(ctx, stockID); err != nil {
		return err
	}
	log.Info().Int64("stock_id", stockID).Int64("user_id", actor.UserID).Msg("stock removed")
	return nil
}

func (s *Service) ListForPharmacy(ctx context.Context, pharmacyID int64) ([]domain.StockEntry, error) {
	return s.repo.ListStock(ctx, pharmacyID)
}

// ExpiringWithin lists every entry expiring on or before today plus days.
func (s *Service) ExpiringWithin(ctx context.Context, days int) ([]domain.ExpiringStock, error) {
	if days <= 0 {
		days = DefaultExpiryWindowDays
	}
	cutoff := domain.DateOf(s.now().UTC()).AddDays(days)
	return s.repo.ExpiringOnOrBefore(ctx, cutoff)
}

func (s *Service) AddMapping(ctx context.Context, in NewMapping) (domain.AlternativeMapping, error) {
	in.Source = strings.TrimSpace(in.Source)
	in.Target = strings.TrimSpace(in.Target)
	if err := validation.Struct(in); err != nil {
		return domain.AlternativeMapping{}, err
	}
	if strings.EqualFold(in.Source, in.Target) {
		return domain.AlternativeMapping{}, apperrors.ValidationFields("validation failed", map[string]string{
			"alternative_name": fmt.Sprintf("%s cannot be its own alternative", in.Source),
		})
	}
	return s.repo.AddMapping(ctx, in.Source, in.Target)
}

func (s *Service) ListMappings(ctx context.Context) ([]domain.AlternativeMapping, error) {
	return s.repo.ListMappings(ctx)
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
