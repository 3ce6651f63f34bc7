// Package form validates user input collected by the console before anything
// is sent to the services.
package form

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AnnaKryuchkova/product-console/internal/errs"
	"github.com/AnnaKryuchkova/product-console/internal/model"
)

// Errors maps a form field to its message. It matches errs.ErrValidation.
type Errors map[string]string

func (e Errors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return strings.Join(parts, "; ")
}

func (e Errors) Is(target error) bool { return target == errs.ErrValidation }

// Validator checks login and product forms.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator that reports fields by their `form` tag name.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" && name != "-" {
			return name
		}
		return strings.ToLower(f.Name)
	})
	return &Validator{v: v}
}

// messages holds the user-facing text per field and failed tag.
var messages = map[string]map[string]string{
	"username": {"required": "Enter your username"},
	"password": {"required": "Enter your password"},
	"title":    {"required": "Enter the product title"},
	"price": {
		"required": "Enter a valid price",
		"gte":      "Price cannot be negative",
	},
}

func (val *Validator) check(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := Errors{}
	for _, fe := range ve {
		out[fe.Field()] = fieldError(fe)
	}
	return out
}

func fieldError(fe validator.FieldError) string {
	if m, ok := messages[fe.Field()][fe.Tag()]; ok {
		return m
	}
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", fe.Field(), fe.Tag())
	}
}

// Login is the sign-in form.
type Login struct {
	Username   string `form:"username" validate:"required"`
	Password   string `form:"password" validate:"required"`
	RememberMe bool   `form:"-"`
}

// ValidateLogin trims the username and checks both fields are present.
// The password is sent as typed; a whitespace-only password is rejected.
func (val *Validator) ValidateLogin(in Login) (Login, error) {
	in.Username = strings.TrimSpace(in.Username)
	check := in
	check.Password = strings.TrimSpace(in.Password)
	if err := val.check(check); err != nil {
		return Login{}, err
	}
	return in, nil
}

// Product is the raw product form as typed by the user.
type Product struct {
	Title string
	Price string
	Brand string
	SKU   string
}

type productFields struct {
	Title string   `form:"title" validate:"required"`
	Price *float64 `form:"price" validate:"required,gte=0"`
}

// ValidateProduct trims every field and parses the price.
func (val *Validator) ValidateProduct(in Product) (model.ProductCreateInput, error) {
	title := strings.TrimSpace(in.Title)
	price := parsePrice(in.Price)
	if err := val.check(productFields{Title: title, Price: price}); err != nil {
		return model.ProductCreateInput{}, err
	}
	return model.ProductCreateInput{
		Title: title,
		Price: *price,
		Brand: strings.TrimSpace(in.Brand),
		SKU:   strings.TrimSpace(in.SKU),
	}, nil
}

// ProductPatch carries only the fields the user supplied; nil means untouched.
type ProductPatch struct {
	Title *string
	Price *string
	Brand *string
	SKU   *string
}

// ValidateProductPatch applies the product rules to the supplied fields only.
func (val *Validator) ValidateProductPatch(in ProductPatch) (model.ProductPatch, error) {
	var out model.ProductPatch
	bad := Errors{}

	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if err := val.v.Var(t, "required"); err != nil {
			bad["title"] = messages["title"]["required"]
		}
		out.Title = &t
	}
	if in.Price != nil {
		p := parsePrice(*in.Price)
		switch {
		case p == nil:
			bad["price"] = messages["price"]["required"]
		case val.v.Var(*p, "gte=0") != nil:
			bad["price"] = messages["price"]["gte"]
		default:
			out.Price = p
		}
	}
	if in.Brand != nil {
		b := strings.TrimSpace(*in.Brand)
		out.Brand = &b
	}
	if in.SKU != nil {
		s := strings.TrimSpace(*in.SKU)
		out.SKU = &s
	}

	if len(bad) > 0 {
		return model.ProductPatch{}, bad
	}
	return out, nil
}

// parsePrice returns nil for blank or non-numeric input.
func parsePrice(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
