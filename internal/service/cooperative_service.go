package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/agromarket-api/internal/models"
	"github.com/noah-isme/agromarket-api/internal/repository"
	"github.com/noah-isme/agromarket-api/pkg/cache"
	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
)

type cooperativeRepository interface {
	ListAll(ctx context.Context) ([]models.Cooperative, error)
	FindByID(ctx context.Context, id string) (*models.Cooperative, error)
	Create(ctx context.Context, coop *models.Cooperative) error
}

type memberRepository interface {
	SetCooperative(ctx context.Context, id, cooperativeID string) error
	ListByCooperative(ctx context.Context, cooperativeID string) ([]models.User, error)
}

const cooperativeListKey = cache.CooperativeKeyPrefix + "all"

// CooperativeService manages cooperatives and their membership.
type CooperativeService struct {
	repo      cooperativeRepository
	members   memberRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCooperativeService constructs a CooperativeService.
func NewCooperativeService(repo cooperativeRepository, members memberRepository, cacheSvc *CacheService, validate *validator.Validate, logger *zap.Logger) *CooperativeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CooperativeService{repo: repo, members: members, cache: cacheSvc, validator: validate, logger: logger}
}

// Create registers a cooperative. Names are unique.
func (s *CooperativeService) Create(ctx context.Context, req models.CreateCooperativeRequest) (*models.Cooperative, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cooperative payload")
	}
	coop := &models.Cooperative{
		Name:     req.Name,
		Purpose:  req.Purpose,
		Products: req.Products,
		Location: req.Location,
	}
	if err := s.repo.Create(ctx, coop); err != nil {
		if errors.Is(err, repository.ErrDuplicateName) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateName, "a cooperative with this name already exists")
		}
		return nil, appErrors.Internal(err, "failed to create cooperative")
	}
	s.cache.Invalidate(ctx, cooperativeListKey)
	s.logger.Info("cooperative created", zap.String("cooperative_id", coop.ID), zap.String("name", coop.Name))
	return coop, nil
}

// Join makes userID a member of cooperativeID, replacing any previous membership.
// The returned cooperative is re-read so its member count reflects the move.
func (s *CooperativeService) Join(ctx context.Context, userID, cooperativeID string) (*models.Cooperative, error) {
	if _, err := s.Get(ctx, cooperativeID); err != nil {
		return nil, err
	}
	if err := s.members.SetCooperative(ctx, userID, cooperativeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to join cooperative")
	}
	s.cache.Invalidate(ctx, cooperativeListKey)
	return s.Get(ctx, cooperativeID)
}

// ListAll returns every cooperative ordered by name.
func (s *CooperativeService) ListAll(ctx context.Context) ([]models.Cooperative, error) {
	coops, err := Remember(ctx, s.cache, cooperativeListKey, s.repo.ListAll)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list cooperatives")
	}
	return coops, nil
}

// Get returns a cooperative by id.
func (s *CooperativeService) Get(ctx context.Context, id string) (*models.Cooperative, error) {
	coop, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "cooperative not found")
		}
		return nil, appErrors.Internal(err, "failed to fetch cooperative")
	}
	return coop, nil
}

// Members returns the users of a cooperative.
func (s *CooperativeService) Members(ctx context.Context, id string) ([]models.User, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	users, err := s.members.ListByCooperative(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list members")
	}
	return users, nil
}
