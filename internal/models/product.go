package models

import "time"

// DefaultProductImage is the image reference given to products without an upload.
const DefaultProductImage = "default.jpg"

// Product is a listed good. A nil OwnerID means the product is on the market.
type Product struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Type        string    `db:"type" json:"type"`
	Variety     string    `db:"variety" json:"variety"`
	Location    string    `db:"location" json:"location"`
	Description string    `db:"description" json:"description"`
	Price       int64     `db:"price" json:"price"`
	IsAvailable bool      `db:"is_available" json:"is_available"`
	SupplierID  string    `db:"supplier_id" json:"supplier_id"`
	OwnerID     *string   `db:"owner_id" json:"owner_id,omitempty"`
	Image       string    `db:"image" json:"image"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// OnMarket reports whether nobody owns the product.
func (p *Product) OnMarket() bool {
	return p.OwnerID == nil
}

// OwnedBy reports whether userID is the current owner.
func (p *Product) OwnedBy(userID string) bool {
	return p.OwnerID != nil && *p.OwnerID == userID
}

// RewardPoints is the points credited for a trade at price.
func RewardPoints(price int64) int64 {
	return price / 20
}

// AddProductRequest is the payload for listing a new product.
type AddProductRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	Type        string `json:"type" validate:"required,max=64"`
	Variety     string `json:"variety" validate:"required,max=64"`
	Location    string `json:"location" validate:"required,max=64"`
	Description string `json:"description" validate:"max=2000"`
	Price       int64  `json:"price" validate:"required,gt=0"`
}

// UpdateProductRequest holds a partial product update. Nil fields are left as is.
type UpdateProductRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=64"`
	Type        *string `json:"type" validate:"omitempty,min=1,max=64"`
	Variety     *string `json:"variety" validate:"omitempty,min=1,max=64"`
	Location    *string `json:"location" validate:"omitempty,min=1,max=64"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Price       *int64  `json:"price" validate:"omitempty,gt=0"`
	IsAvailable *bool   `json:"is_available"`
	Image       *string `json:"image" validate:"omitempty,max=255"`
}

// Empty reports whether the request changes nothing.
func (r UpdateProductRequest) Empty() bool {
	return r.Name == nil && r.Type == nil && r.Variety == nil && r.Location == nil &&
		r.Description == nil && r.Price == nil && r.IsAvailable == nil && r.Image == nil
}

// Apply copies the set fields onto product.
func (r UpdateProductRequest) Apply(product *Product) {
	if r.Name != nil {
		product.Name = *r.Name
	}
	if r.Type != nil {
		product.Type = *r.Type
	}
	if r.Variety != nil {
		product.Variety = *r.Variety
	}
	if r.Location != nil {
		product.Location = *r.Location
	}
	if r.Description != nil {
		product.Description = *r.Description
	}
	if r.Price != nil {
		product.Price = *r.Price
	}
	if r.IsAvailable != nil {
		product.IsAvailable = *r.IsAvailable
	}
	if r.Image != nil {
		product.Image = *r.Image
	}
}

// SellRequest optionally names the user who takes over the product.
type SellRequest struct {
	CounterpartyID *string `json:"counterparty_id" validate:"omitempty,uuid4"`
}

// TradeResult reports the product and the acting user after a purchase or sale.
type TradeResult struct {
	Product *Product `json:"product"`
	Wallet  int64    `json:"wallet"`
	Points  int64    `json:"points"`
}

// ImageUpload is a product picture received from a client.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
}

// StatementFormat selects the holdings statement renderer.
type StatementFormat string

const (
	StatementFormatCSV StatementFormat = "csv"
	StatementFormatPDF StatementFormat = "pdf"
)

// Statement is a rendered holdings document.
type Statement struct {
	Filename    string
	ContentType string
	Content     []byte
}
