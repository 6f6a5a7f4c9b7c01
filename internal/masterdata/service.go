package masterdata

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service wraps repository access with validation and audit logging.
type Service struct {
	logger *slog.Logger
	repo   *Repository
	audit  *shared.AuditLogger
}

// NewService builds the master data service.
func NewService(logger *slog.Logger, repo *Repository, audit *shared.AuditLogger) *Service {
	return &Service{logger: logger, repo: repo, audit: audit}
}

func (s *Service) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	return s.repo.ListSuppliers(ctx, filters)
}

func (s *Service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

func (s *Service) CreateSupplier(ctx context.Context, sup Supplier) (Supplier, error) {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return Supplier{}, shared.ErrActorRequired
	}
	if err := validateParty(sup.Code, sup.Name); err != nil {
		return Supplier{}, err
	}
	created, err := s.repo.CreateSupplier(ctx, sup)
	if err != nil {
		return Supplier{}, err
	}
	s.recordAudit(ctx, actorID, "supplier.create", "supplier", created.ID)
	return created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, id int64, sup Supplier) error {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return shared.ErrActorRequired
	}
	if err := validateParty(sup.Code, sup.Name); err != nil {
		return err
	}
	if err := s.repo.UpdateSupplier(ctx, id, sup); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "supplier.update", "supplier", id)
	return nil
}

func (s *Service) ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error) {
	return s.repo.ListCustomers(ctx, filters)
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return Customer{}, shared.ErrActorRequired
	}
	if err := validateParty(c.Code, c.Name); err != nil {
		return Customer{}, err
	}
	created, err := s.repo.CreateCustomer(ctx, c)
	if err != nil {
		return Customer{}, err
	}
	s.recordAudit(ctx, actorID, "customer.create", "customer", created.ID)
	return created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id int64, c Customer) error {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return shared.ErrActorRequired
	}
	if err := validateParty(c.Code, c.Name); err != nil {
		return err
	}
	if err := s.repo.UpdateCustomer(ctx, id, c); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "customer.update", "customer", id)
	return nil
}

func (s *Service) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, filters)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return Product{}, shared.ErrActorRequired
	}
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	created, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, actorID, "product.create", "product", created.ID)
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, p Product) error {
	actorID := shared.ActorFromContext(ctx)
	if actorID == 0 {
		return shared.ErrActorRequired
	}
	if err := validateProduct(p); err != nil {
		return err
	}
	if err := s.repo.UpdateProduct(ctx, id, p); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "product.update", "product", id)
	return nil
}

func validateParty(code, name string) error {
	if strings.TrimSpace(code) == "" || strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: code and name are required", ErrValidation)
	}
	return nil
}

func validateProduct(p Product) error {
	if strings.TrimSpace(p.SKU) == "" || strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: sku and name are required", ErrValidation)
	}
	if p.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price cannot be negative", ErrValidation)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, id int64) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
