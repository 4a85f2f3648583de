package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/agromarket-api/internal/models"
	"github.com/noah-isme/agromarket-api/internal/repository"
	"github.com/noah-isme/agromarket-api/pkg/cache"
	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
	"github.com/noah-isme/agromarket-api/pkg/export"
	"github.com/noah-isme/agromarket-api/pkg/middleware/requestid"
)

type productRepository interface {
	ListAvailable(ctx context.Context) ([]models.Product, error)
	ListOwnedBy(ctx context.Context, userID string) ([]models.Product, error)
	FindByID(ctx context.Context, id string) (*models.Product, error)
	Delete(ctx context.Context, id string) error
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type imageUploader interface {
	Upload(ctx context.Context, productID string, upload models.ImageUpload, r io.Reader) (string, error)
	Remove(ctx context.Context, ref string)
}

type datasetRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	ContentType() string
	Extension() string
}

// Trade operation labels.
const (
	TradePurchase = "purchase"
	TradeSell     = "sell"
)

const availableProductsKey = cache.MarketKeyPrefix + "products:available"

// ProductConfig tunes ledger rules.
type ProductConfig struct {
	UniqueNames bool
}

// ProductService is the product ledger. Purchases and sales run in a single
// transaction that locks the product row before any user row.
type ProductService struct {
	repo      productRepository
	tx        transactor
	audit     auditRecorder
	images    imageUploader
	cache     *CacheService
	metrics   *MetricsService
	renderers map[models.StatementFormat]datasetRenderer
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ProductConfig
}

// NewProductService constructs a ProductService. cache, metrics and images may be nil.
func NewProductService(repo productRepository, tx transactor, audit auditRecorder, images imageUploader, cacheSvc *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ProductConfig) *ProductService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ProductService{
		repo:    repo,
		tx:      tx,
		audit:   audit,
		images:  images,
		cache:   cacheSvc,
		metrics: metrics,
		renderers: map[models.StatementFormat]datasetRenderer{
			models.StatementFormatCSV: export.NewCSVExporter(),
			models.StatementFormatPDF: export.NewPDFExporter(),
		},
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// ListAvailable returns the products on the market.
func (s *ProductService) ListAvailable(ctx context.Context) ([]models.Product, error) {
	products, err := Remember(ctx, s.cache, availableProductsKey, s.repo.ListAvailable)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list products")
	}
	return products, nil
}

// ListOwnedBy returns the products owned by userID.
func (s *ProductService) ListOwnedBy(ctx context.Context, userID string) ([]models.Product, error) {
	products, err := s.repo.ListOwnedBy(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list owned products")
	}
	return products, nil
}

// Get returns a product by id.
func (s *ProductService) Get(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return nil, appErrors.Internal(err, "failed to fetch product")
	}
	return product, nil
}

// Add lists a new product on the market for supplier.
func (s *ProductService) Add(ctx context.Context, supplier *models.User, req models.AddProductRequest) (*models.Product, error) {
	if !supplier.Role().HasPermission(models.PermWrite) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "listing products requires write permission")
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid product payload")
	}
	product := &models.Product{
		Name:        req.Name,
		Type:        req.Type,
		Variety:     req.Variety,
		Location:    req.Location,
		Description: req.Description,
		Price:       req.Price,
		IsAvailable: true,
		SupplierID:  supplier.ID,
		Image:       models.DefaultProductImage,
	}
	err := s.tx.Execute(ctx, func(scope repository.Scope) error {
		if err := s.ensureNameFree(ctx, scope.Products(), product.Name, ""); err != nil {
			return err
		}
		if err := scope.Products().Create(ctx, product); err != nil {
			return appErrors.Internal(err, "failed to create product")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, availableProductsKey)
	s.record(ctx, supplier.ID, models.AuditActionProductAdd, product.ID, nil, product)
	return product, nil
}

// Purchase transfers an unowned product to buyerID and debits the price from
// the buyer's wallet. Of two concurrent purchases of one product exactly one
// succeeds; the other observes the new owner and gets ALREADY_OWNED.
func (s *ProductService) Purchase(ctx context.Context, productID, buyerID string) (*models.TradeResult, error) {
	var result *models.TradeResult
	err := s.tx.Execute(ctx, func(scope repository.Scope) error {
		product, err := lockProduct(ctx, scope, productID)
		if err != nil {
			return err
		}
		if !product.OnMarket() {
			return appErrors.Clone(appErrors.ErrAlreadyOwned, "product already has an owner")
		}
		buyer, err := lockUser(ctx, scope, buyerID)
		if err != nil {
			return err
		}
		if buyer.Wallet < product.Price {
			return appErrors.Clone(appErrors.ErrInsufficientFunds, "wallet balance is below the product price")
		}

		points := models.RewardPoints(product.Price)
		if err := scope.Products().SetOwner(ctx, product.ID, &buyer.ID); err != nil {
			return appErrors.Internal(err, "failed to transfer product")
		}
		if err := scope.Users().AdjustBalance(ctx, buyer.ID, -product.Price, points); err != nil {
			return appErrors.Internal(err, "failed to debit buyer")
		}

		product.OwnerID = &buyer.ID
		result = &models.TradeResult{Product: product, Wallet: buyer.Wallet - product.Price, Points: buyer.Points + points}
		return nil
	})
	if err != nil {
		s.metrics.RecordTrade(TradePurchase, errorCode(err), 0)
		return nil, err
	}

	s.metrics.RecordTrade(TradePurchase, TradeOutcomeSuccess, result.Product.Price)
	s.cache.Invalidate(ctx, availableProductsKey)
	s.record(ctx, buyerID, models.AuditActionPurchase, productID, nil, map[string]interface{}{"price": result.Product.Price})
	return result, nil
}

// Sell credits the owner with the price and returns the product to the market,
// or hands it to counterpartyID who pays the price.
func (s *ProductService) Sell(ctx context.Context, productID, sellerID string, counterpartyID *string) (*models.TradeResult, error) {
	if counterpartyID != nil && *counterpartyID == sellerID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot sell a product to yourself")
	}

	var result *models.TradeResult
	err := s.tx.Execute(ctx, func(scope repository.Scope) error {
		product, err := lockProduct(ctx, scope, productID)
		if err != nil {
			return err
		}
		if !product.OwnedBy(sellerID) {
			return appErrors.Clone(appErrors.ErrNotOwner, "only the owner can sell this product")
		}

		seller, counterparty, err := lockParties(ctx, scope, sellerID, counterpartyID)
		if err != nil {
			return err
		}
		points := models.RewardPoints(product.Price)

		var newOwner *string
		if counterparty != nil {
			if counterparty.Wallet < product.Price {
				return appErrors.Clone(appErrors.ErrInsufficientFunds, "counterparty cannot afford the product")
			}
			if err := scope.Users().AdjustBalance(ctx, counterparty.ID, -product.Price, points); err != nil {
				return appErrors.Internal(err, "failed to debit counterparty")
			}
			newOwner = &counterparty.ID
		}
		if err := scope.Products().SetOwner(ctx, product.ID, newOwner); err != nil {
			return appErrors.Internal(err, "failed to transfer product")
		}
		if err := scope.Users().AdjustBalance(ctx, seller.ID, product.Price, points); err != nil {
			return appErrors.Internal(err, "failed to credit seller")
		}

		product.OwnerID = newOwner
		result = &models.TradeResult{Product: product, Wallet: seller.Wallet + product.Price, Points: seller.Points + points}
		return nil
	})
	if err != nil {
		s.metrics.RecordTrade(TradeSell, errorCode(err), 0)
		return nil, err
	}

	s.metrics.RecordTrade(TradeSell, TradeOutcomeSuccess, result.Product.Price)
	s.cache.Invalidate(ctx, availableProductsKey)
	s.record(ctx, sellerID, models.AuditActionSell, productID, nil, map[string]interface{}{
		"price":        result.Product.Price,
		"counterparty": counterpartyID,
	})
	return result, nil
}

// Update applies a partial edit. Only the current owner or an administrator
// may edit, and either every field is written or none is.
func (s *ProductService) Update(ctx context.Context, editor *models.User, productID string, req models.UpdateProductRequest) (*models.Product, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid product update")
	}
	if req.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no product fields supplied")
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
	}

	before, after, err := s.edit(ctx, editor, productID, req, "only the owner or an administrator can edit this product")
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, availableProductsKey)
	s.record(ctx, editor.ID, models.AuditActionProductUpdate, productID, before, after)
	return after, nil
}

// SetImage stores a new picture for the product and points the product at it.
// The replaced picture goes to cleanup; a rejected edit discards the upload.
func (s *ProductService) SetImage(ctx context.Context, editor *models.User, productID string, upload models.ImageUpload, r io.Reader) (*models.Product, error) {
	if s.images == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "image storage is not configured")
	}
	const denied = "only the owner or an administrator can change the picture"
	product, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !canEdit(editor, product) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, denied)
	}

	ref, err := s.images.Upload(ctx, product.ID, upload, r)
	if err != nil {
		return nil, err
	}
	before, after, err := s.edit(ctx, editor, productID, models.UpdateProductRequest{Image: &ref}, denied)
	if err != nil {
		s.images.Remove(ctx, ref)
		return nil, err
	}
	s.images.Remove(ctx, before.Image)
	s.cache.Invalidate(ctx, availableProductsKey)
	s.record(ctx, editor.ID, models.AuditActionProductUpdate, productID, before, after)
	return after, nil
}

// edit locks the product row and checks the editor against the locked copy,
// so a sale committed after the caller's last read is honoured. The name
// check and the write share that transaction.
func (s *ProductService) edit(ctx context.Context, editor *models.User, productID string, req models.UpdateProductRequest, denied string) (*models.Product, *models.Product, error) {
	var before, after *models.Product
	err := s.tx.Execute(ctx, func(scope repository.Scope) error {
		product, err := lockProduct(ctx, scope, productID)
		if err != nil {
			return err
		}
		if !canEdit(editor, product) {
			return appErrors.Clone(appErrors.ErrPermissionDenied, denied)
		}
		if req.Name != nil && !strings.EqualFold(*req.Name, product.Name) {
			if err := s.ensureNameFree(ctx, scope.Products(), *req.Name, product.ID); err != nil {
				return err
			}
		}

		prev := *product
		req.Apply(product)
		if err := scope.Products().Update(ctx, product); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "product not found")
			}
			return appErrors.Internal(err, "failed to update product")
		}
		before, after = &prev, product
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// Delete removes a product permanently. Administrators only.
func (s *ProductService) Delete(ctx context.Context, editor *models.User, productID string) error {
	if !editor.IsAdministrator() {
		return appErrors.Clone(appErrors.ErrPermissionDenied, "only administrators can delete products")
	}
	if err := s.repo.Delete(ctx, productID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return appErrors.Internal(err, "failed to delete product")
	}
	s.cache.Invalidate(ctx, availableProductsKey)
	s.record(ctx, editor.ID, models.AuditActionProductDelete, productID, nil, nil)
	return nil
}

// Statement renders the holdings of user as CSV or PDF.
func (s *ProductService) Statement(ctx context.Context, user *models.User, format models.StatementFormat) (*models.Statement, error) {
	renderer, ok := s.renderers[models.StatementFormat(strings.ToLower(string(format)))]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	products, err := s.ListOwnedBy(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{Headers: []string{"name", "type", "variety", "location", "price", "acquired"}}
	var holdings int64
	for _, p := range products {
		holdings += p.Price
		dataset.Rows = append(dataset.Rows, map[string]string{
			"name":     p.Name,
			"type":     p.Type,
			"variety":  p.Variety,
			"location": p.Location,
			"price":    strconv.FormatInt(p.Price, 10),
			"acquired": p.UpdatedAt.Format("2006-01-02"),
		})
	}
	dataset.Summary = [][2]string{
		{"holder", user.FullName()},
		{"wallet", user.StyledWallet()},
		{"points", strconv.FormatInt(user.Points, 10)},
		{"holdings value", strconv.FormatInt(holdings, 10)},
	}

	content, err := renderer.Render(dataset, fmt.Sprintf("Holdings of %s", user.FullName()))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render statement")
	}
	return &models.Statement{
		Filename:    fmt.Sprintf("holdings-%s.%s", time.Now().UTC().Format("20060102"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Content:     content,
	}, nil
}

// ensureNameFree serializes writers of the same name through an advisory lock
// held until the surrounding transaction ends, then checks for a collision.
func (s *ProductService) ensureNameFree(ctx context.Context, products repository.ProductTx, name, excludeID string) error {
	if !s.cfg.UniqueNames {
		return nil
	}
	if err := products.LockName(ctx, name); err != nil {
		return appErrors.Internal(err, "failed to lock product name")
	}
	exists, err := products.NameExists(ctx, name, excludeID)
	if err != nil {
		return appErrors.Internal(err, "failed to check product name")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrDuplicateProduct, "a product with this name already exists")
	}
	return nil
}

func (s *ProductService) record(ctx context.Context, actorID, action, productID string, before, after interface{}) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{UserID: &actorID, Action: action, Resource: "product", ResourceID: &productID}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record product audit log", zap.String("action", action), zap.String("request_id", requestid.FromContext(ctx)), zap.Error(err))
	}
}

func canEdit(editor *models.User, product *models.Product) bool {
	return editor != nil && (product.OwnedBy(editor.ID) || editor.IsAdministrator())
}

func lockProduct(ctx context.Context, scope repository.Scope, id string) (*models.Product, error) {
	product, err := scope.Products().GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return nil, appErrors.Internal(err, "failed to lock product")
	}
	return product, nil
}

func lockUser(ctx context.Context, scope repository.Scope, id string) (*models.User, error) {
	user, err := scope.Users().GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to lock user")
	}
	return user, nil
}

// lockParties locks seller and optional counterparty in id order so two
// opposite sales cannot deadlock.
func lockParties(ctx context.Context, scope repository.Scope, sellerID string, counterpartyID *string) (*models.User, *models.User, error) {
	if counterpartyID == nil {
		seller, err := lockUser(ctx, scope, sellerID)
		return seller, nil, err
	}
	firstID, secondID := sellerID, *counterpartyID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	first, err := lockUser(ctx, scope, firstID)
	if err != nil {
		return nil, nil, err
	}
	second, err := lockUser(ctx, scope, secondID)
	if err != nil {
		return nil, nil, err
	}
	if first.ID == sellerID {
		return first, second, nil
	}
	return second, first, nil
}

func errorCode(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}
