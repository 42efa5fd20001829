package product

import (
	"context"
	"errors"
	"time"

	"cedar-commerce/internal/domain"
	productrepo "cedar-commerce/internal/repository/product"
)

// Service fronts the catalog store. Every lookup runs under its own deadline so a slow catalog
// degrades to a transient error instead of blocking the caller.
type Service struct {
	repo    productrepo.Repository
	timeout time.Duration
}

func New(repo productrepo.Repository, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Service{repo: repo, timeout: timeout}
}

func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	products, err := s.repo.List(ctx, domain.ProductActive)
	return products, s.classify(err)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	p, err := s.repo.GetByID(ctx, id)
	return p, s.classify(err)
}

// GetVariant returns the live price, stock and status for a variant.
func (s *Service) GetVariant(ctx context.Context, id string) (*domain.Variant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	v, err := s.repo.GetVariant(ctx, id)
	return v, s.classify(err)
}

func (s *Service) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTransient) {
		return domain.Transient(err, "catalog lookup timed out")
	}
	return err
}
