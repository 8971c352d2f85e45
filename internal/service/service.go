package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"greennets/backend/internal/analytics"
	"greennets/backend/internal/domain"
	"greennets/backend/internal/inventory"
	"greennets/backend/internal/invoice"
	"greennets/backend/internal/media"
	"greennets/backend/internal/store"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidQuantity = inventory.ErrInvalidQuantity
	ErrInvalidPrice    = errors.New("invalid selling price")
	// ErrCommitFailed means the sale kept losing version races and was
	// abandoned without writing anything.
	ErrCommitFailed            = errors.New("sale could not be committed")
	ErrForbidden               = errors.New("forbidden")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Shop              invoice.Shop
	Location          *time.Location
	CommitRetries     int
	LowStockThreshold int
}

type Service struct {
	repo      store.Repository
	analytics *analytics.Engine
	blobs     media.BlobStore
	renderer  invoice.Renderer
	opts      Options
	now       func() time.Time
	logger    *zap.Logger
}

func New(repo store.Repository, engine *analytics.Engine, blobs media.BlobStore, renderer invoice.Renderer, opts Options, logger *zap.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.CommitRetries < 1 {
		opts.CommitRetries = 5
	}
	if opts.LowStockThreshold < 1 {
		opts.LowStockThreshold = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = analytics.NewEngine(repo, nil, 0, opts.Location, logger.Named("analytics"))
	}
	if blobs == nil {
		blobs = media.NewMemoryStore("/media")
	}
	if renderer == nil {
		renderer = invoice.HTMLRenderer{}
	}

	return &Service{
		repo:      repo,
		analytics: engine,
		blobs:     blobs,
		renderer:  renderer,
		opts:      opts,
		now:       time.Now,
		logger:    logger,
	}
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return actor, nil
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, fmt.Errorf("%w: sign in required", ErrForbidden)
	}
	return actor, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidTransaction, fmt.Sprintf(format, args...))
}

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	filter.Category = strings.TrimSpace(filter.Category)
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		Quality:     strings.TrimSpace(req.Quality),
		Size:        strings.TrimSpace(req.Size),
		UnitType:    strings.ToLower(strings.TrimSpace(req.UnitType)),
		PriceCents:  req.PriceCents,
	}
	if product.UnitType == "" {
		product.UnitType = domain.UnitPiece
	}
	if err := validateCatalog(product); err != nil {
		return domain.Product{}, err
	}

	switch product.UnitType {
	case domain.UnitMeter:
		if req.PricePerMeterCents < 1 || req.BundlePriceCents < 0 {
			return domain.Product{}, fmt.Errorf("%w: meter products need a price per meter", ErrInvalidPrice)
		}
		meter, err := inventory.NewMeterStock(req.BundleLength, req.BundleStock, req.OpenPieces)
		if err != nil {
			return domain.Product{}, invalid("%v", err)
		}
		product.Meter = &meter
		product.BundlePriceCents = req.BundlePriceCents
		product.PricePerMeterCents = req.PricePerMeterCents
		if product.PriceCents < 1 {
			product.PriceCents = max(req.BundlePriceCents, req.PricePerMeterCents)
		}
	case domain.UnitPiece:
		if req.PriceCents < 1 {
			return domain.Product{}, fmt.Errorf("%w: price must be positive", ErrInvalidPrice)
		}
		if req.Stock < 0 {
			return domain.Product{}, fmt.Errorf("%w: stock cannot be negative", ErrInvalidQuantity)
		}
		product.Stock = req.Stock
	}
	product.ShadePercentage = shadeFor(product.Category, product.Quality)
	product.RefreshActive()

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.Info("product created", zap.String("product_id", created.ID), zap.String("unit_type", created.UnitType))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	updated, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Quality != nil {
		updated.Quality = strings.TrimSpace(*req.Quality)
	}
	if req.Size != nil {
		updated.Size = strings.TrimSpace(*req.Size)
	}
	if err := validateCatalog(updated); err != nil {
		return domain.Product{}, err
	}
	for _, price := range []struct {
		value *int64
		dest  *int64
		min   int64
	}{
		{req.PriceCents, &updated.PriceCents, 1},
		{req.BundlePriceCents, &updated.BundlePriceCents, 0},
		{req.PricePerMeterCents, &updated.PricePerMeterCents, 0},
	} {
		if price.value == nil {
			continue
		}
		if *price.value < price.min {
			return domain.Product{}, fmt.Errorf("%w: %d", ErrInvalidPrice, *price.value)
		}
		*price.dest = *price.value
	}
	if updated.IsMeter() && updated.PricePerMeterCents < 1 {
		return domain.Product{}, fmt.Errorf("%w: meter products need a price per meter", ErrInvalidPrice)
	}
	updated.ShadePercentage = shadeFor(updated.Category, updated.Quality)

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, product.ID); err != nil {
		return err
	}
	if product.ImageObject != "" {
		if err := s.blobs.Delete(ctx, product.ImageObject); err != nil {
			s.logger.Warn("delete product image", zap.String("product_id", product.ID), zap.Error(err))
		}
	}
	s.logger.Info("product deleted", zap.String("product_id", product.ID))
	return nil
}

// Restock adds sealed bundles to a meter product or pieces to a piece
// product. Concurrent sales are retried against like a sale commit.
func (s *Service) Restock(ctx context.Context, id string, req domain.RestockRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if req.Pieces < 0 || req.Bundles < 0 || req.Pieces+req.Bundles == 0 {
		return domain.Product{}, fmt.Errorf("%w: restock needs a positive amount", ErrInvalidQuantity)
	}

	for attempt := 1; attempt <= s.opts.CommitRetries; attempt++ {
		product, err := s.GetProduct(ctx, id)
		if err != nil {
			return domain.Product{}, err
		}
		expected := product.Version

		if product.IsMeter() {
			if req.Pieces > 0 || product.Meter == nil {
				return domain.Product{}, fmt.Errorf("%w: meter products are restocked in bundles", ErrInvalidQuantity)
			}
			if err := product.Meter.AddBundles(req.Bundles); err != nil {
				return domain.Product{}, err
			}
		} else {
			if req.Bundles > 0 {
				return domain.Product{}, fmt.Errorf("%w: piece products are restocked in pieces", ErrInvalidQuantity)
			}
			product.Stock += req.Pieces
		}
		product.RefreshActive()

		err = s.repo.ApplyStock(ctx, []store.StockWrite{{Product: product, ExpectedVersion: expected}})
		if errors.Is(err, store.ErrConflict) {
			s.logger.Debug("restock conflict", zap.String("product_id", product.ID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return domain.Product{}, err
		}
		s.logger.Info("product restocked",
			zap.String("product_id", product.ID),
			zap.Int("bundles", req.Bundles),
			zap.Int("pieces", req.Pieces),
		)
		return s.GetProduct(ctx, product.ID)
	}
	return domain.Product{}, fmt.Errorf("%w: restock of %s", ErrCommitFailed, id)
}

// SetProductImage uploads a new image and replaces the product's previous
// one, which is deleted afterwards.
func (s *Service) SetProductImage(ctx context.Context, id string, contentType string, body io.Reader) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	object, url, err := s.blobs.Put(ctx, "products/"+product.ID, contentType, body)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedType) {
			return domain.Product{}, invalid("%v", err)
		}
		return domain.Product{}, err
	}

	updated, err := s.repo.SetProductImage(ctx, product.ID, url, object)
	if err != nil {
		if delErr := s.blobs.Delete(ctx, object); delErr != nil {
			s.logger.Warn("delete orphaned image", zap.String("object", object), zap.Error(delErr))
		}
		return domain.Product{}, err
	}
	if product.ImageObject != "" && product.ImageObject != object {
		if err := s.blobs.Delete(ctx, product.ImageObject); err != nil {
			s.logger.Warn("delete replaced image", zap.String("object", product.ImageObject), zap.Error(err))
		}
	}
	return *updated, nil
}

func validateCatalog(p domain.Product) error {
	if p.Name == "" {
		return invalid("name is required")
	}
	if !slices.Contains(domain.Categories, p.Category) {
		return invalid("unknown category %q", p.Category)
	}
	if p.Quality != "" && !slices.Contains(domain.Qualities, p.Quality) {
		return invalid("unknown quality %q", p.Quality)
	}
	if p.UnitType != domain.UnitPiece && p.UnitType != domain.UnitMeter {
		return invalid("unit type must be %s or %s", domain.UnitPiece, domain.UnitMeter)
	}
	return nil
}

// shadeFor derives the shade percentage of a green net from a quality such
// as "90%".
func shadeFor(category string, quality string) *int {
	if category != "Green Nets" || !strings.HasSuffix(quality, "%") {
		return nil
	}
	pct, err := strconv.Atoi(strings.TrimSuffix(quality, "%"))
	if err != nil || pct < 0 || pct > 100 {
		return nil
	}
	return &pct
}
