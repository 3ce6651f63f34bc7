// Package model defines domain entities shared by the client, services and views.
package model

// TokenPair is an issued access/refresh token pair. It is replaced wholesale on login.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"` // seconds, 0 if the service did not report it
}

// User is the profile of the signed-in account as reported by the remote service.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Image     string `json:"image,omitempty"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	ExpiresInMins int    `json:"expiresInMins,omitempty"`
}

// LoginResponse carries token and profile fields side by side.
type LoginResponse struct {
	TokenPair
	User
}

// Split separates token fields from profile fields.
func (r LoginResponse) Split() (TokenPair, User) {
	return r.TokenPair, r.User
}

// Product is a single catalogue record.
type Product struct {
	ID                 int64    `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Price              float64  `json:"price"`
	DiscountPercentage float64  `json:"discountPercentage"`
	Rating             float64  `json:"rating"`
	Stock              int      `json:"stock"`
	Brand              string   `json:"brand"`
	Category           string   `json:"category"`
	Thumbnail          string   `json:"thumbnail"`
	Images             []string `json:"images"`
	SKU                string   `json:"sku,omitempty"`
}

// ProductCreateInput holds the fields collected by the creation form.
type ProductCreateInput struct {
	Title string
	Price float64
	Brand string
	SKU   string // optional
}

// ProductPatch is a partial update; nil fields are left untouched.
type ProductPatch struct {
	Title *string
	Price *float64
	Brand *string
	SKU   *string
}

// Apply shallow-merges the non-nil fields of the patch into p.
func (pp ProductPatch) Apply(p Product) Product {
	if pp.Title != nil {
		p.Title = *pp.Title
	}
	if pp.Price != nil {
		p.Price = *pp.Price
	}
	if pp.Brand != nil {
		p.Brand = *pp.Brand
	}
	if pp.SKU != nil {
		p.SKU = *pp.SKU
	}
	return p
}

// ProductsPage is the response of the listing and search endpoints.
type ProductsPage struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
	Skip     int       `json:"skip"`
	Limit    int       `json:"limit"`
}
