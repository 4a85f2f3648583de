package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agromarket-api/internal/models"
	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
	"github.com/noah-isme/agromarket-api/pkg/response"
)

type productService interface {
	ListAvailable(ctx context.Context) ([]models.Product, error)
	ListOwnedBy(ctx context.Context, userID string) ([]models.Product, error)
	Get(ctx context.Context, id string) (*models.Product, error)
	Add(ctx context.Context, supplier *models.User, req models.AddProductRequest) (*models.Product, error)
	Purchase(ctx context.Context, productID, buyerID string) (*models.TradeResult, error)
	Sell(ctx context.Context, productID, sellerID string, counterpartyID *string) (*models.TradeResult, error)
	Update(ctx context.Context, editor *models.User, productID string, req models.UpdateProductRequest) (*models.Product, error)
	SetImage(ctx context.Context, editor *models.User, productID string, upload models.ImageUpload, r io.Reader) (*models.Product, error)
	Delete(ctx context.Context, editor *models.User, productID string) error
	Statement(ctx context.Context, user *models.User, format models.StatementFormat) (*models.Statement, error)
}

type imageResolver interface {
	URL(ref string) string
}

type productView struct {
	*models.Product
	ImageURL string `json:"image_url"`
}

type tradeView struct {
	Product productView `json:"product"`
	Wallet  int64       `json:"wallet"`
	Points  int64       `json:"points"`
}

// ProductHandler exposes the product ledger.
type ProductHandler struct {
	service productService
	users   userLookup
	images  imageResolver
}

// NewProductHandler constructs a ProductHandler. images may be nil.
func NewProductHandler(svc productService, users userLookup, images imageResolver) *ProductHandler {
	return &ProductHandler{service: svc, users: users, images: images}
}

// Market godoc
// @Summary Products on the market
// @Tags Products
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /products [get]
func (h *ProductHandler) Market(c *gin.Context) {
	products, err := h.service.ListAvailable(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.views(products), map[string]interface{}{"count": len(products)})
}

// Mine godoc
// @Summary Products owned by the current user
// @Tags Products
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/products [get]
func (h *ProductHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	products, err := h.service.ListOwnedBy(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.views(products), map[string]interface{}{"count": len(products)})
}

// Get godoc
// @Summary Product detail
// @Tags Products
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /products/{id} [get]
func (h *ProductHandler) Get(c *gin.Context) {
	product, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.view(product))
}

// Create godoc
// @Summary List a product on the market
// @Tags Products
// @Accept json
// @Produce json
// @Param payload body models.AddProductRequest true "Product"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /products [post]
func (h *ProductHandler) Create(c *gin.Context) {
	supplier, ok := currentUser(c, h.users)
	if !ok {
		return
	}
	var req models.AddProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid product payload"))
		return
	}
	product, err := h.service.Add(c.Request.Context(), supplier, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, h.view(product))
}

// Update godoc
// @Summary Edit a product
// @Tags Products
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param payload body models.UpdateProductRequest true "Fields"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /products/{id} [patch]
func (h *ProductHandler) Update(c *gin.Context) {
	editor, ok := currentUser(c, h.users)
	if !ok {
		return
	}
	var req models.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid product update"))
		return
	}
	product, err := h.service.Update(c.Request.Context(), editor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.view(product))
}

// UploadImage godoc
// @Summary Replace the product picture
// @Tags Products
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Product ID"
// @Param image formData file true "Picture"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /products/{id}/image [put]
func (h *ProductHandler) UploadImage(c *gin.Context) {
	editor, ok := currentUser(c, h.users)
	if !ok {
		return
	}
	header, err := c.FormFile("image")
	if err != nil {
		response.Error(c, bindError(err, "image file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, bindError(err, "unreadable image file"))
		return
	}
	defer file.Close() //nolint:errcheck

	upload := models.ImageUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}
	product, err := h.service.SetImage(c.Request.Context(), editor, c.Param("id"), upload, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.view(product))
}

// Delete godoc
// @Summary Delete a product
// @Tags Products
// @Param id path string true "Product ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /products/{id} [delete]
func (h *ProductHandler) Delete(c *gin.Context) {
	editor, ok := currentUser(c, h.users)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), editor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Purchase godoc
// @Summary Buy a product from the market
// @Tags Products
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /products/{id}/purchase [post]
func (h *ProductHandler) Purchase(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	res, err := h.service.Purchase(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.trade(res))
}

// Sell godoc
// @Summary Sell an owned product
// @Description Returns the product to the market, or hands it to counterparty_id who pays the price
// @Tags Products
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param payload body models.SellRequest false "Counterparty"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /products/{id}/sell [post]
func (h *ProductHandler) Sell(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.SellRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid sell payload"))
			return
		}
	}
	res, err := h.service.Sell(c.Request.Context(), c.Param("id"), claims.UserID, req.CounterpartyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.trade(res))
}

// Statement godoc
// @Summary Download holdings statement
// @Tags Products
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /me/statement [get]
func (h *ProductHandler) Statement(c *gin.Context) {
	user, ok := currentUser(c, h.users)
	if !ok {
		return
	}
	format := models.StatementFormat(c.DefaultQuery("format", string(models.StatementFormatCSV)))
	stmt, err := h.service.Statement(c.Request.Context(), user, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, stmt.Filename, stmt.ContentType, stmt.Content)
}

func (h *ProductHandler) view(product *models.Product) productView {
	url := product.Image
	if h.images != nil {
		url = h.images.URL(product.Image)
	}
	return productView{Product: product, ImageURL: url}
}

func (h *ProductHandler) views(products []models.Product) []productView {
	out := make([]productView, 0, len(products))
	for i := range products {
		out = append(out, h.view(&products[i]))
	}
	return out
}

func (h *ProductHandler) trade(res *models.TradeResult) tradeView {
	return tradeView{Product: h.view(res.Product), Wallet: res.Wallet, Points: res.Points}
}
