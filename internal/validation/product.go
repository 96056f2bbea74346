// Package validation turns raw product requests into typed, checked input.
package validation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"catalog/internal/models"
	"catalog/internal/repositories"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Fields holds request fields as decoded from JSON or a form.
type Fields map[string]interface{}

// ImageFile is an uploaded image.
type ImageFile struct {
	Filename string
	Data     []byte
}

// ProductInput is a product request that passed validation.
type ProductInput struct {
	Name        string          `json:"name" validate:"required,min=3"`
	Description string          `json:"description" validate:"required"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	Quantity    int             `json:"quantity" validate:"gte=0"`
	CategoryID  uint            `json:"category_id"`
	Active      int             `json:"active" validate:"oneof=0 1"`
}

// Apply copies the validated fields onto p. The image is left alone.
func (in *ProductInput) Apply(p *models.Product) {
	p.Name = in.Name
	p.Description = in.Description
	p.Price = in.Price
	p.Quantity = in.Quantity
	p.CategoryID = in.CategoryID
	p.Active = in.Active
}

var imageTypes = []string{
	"image/jpeg",
	"image/png",
	"image/bmp",
	"image/gif",
	"image/svg+xml",
	"image/webp",
}

// ProductRules validates product create and update requests.
type ProductRules struct {
	validate   *validator.Validate
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	maxImageKB int64
}

// NewProductRules creates ProductRules. maxImageKB bounds uploaded images in kilobytes.
func NewProductRules(products repositories.ProductRepository, categories repositories.CategoryRepository, maxImageKB int64) *ProductRules {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})

	return &ProductRules{
		validate:   v,
		products:   products,
		categories: categories,
		maxImageKB: maxImageKB,
	}
}

// Validate checks fields and the optional image. excludeID is the product
// being updated, so it does not collide with its own name; pass 0 on create.
//
// A *Error is returned for rule failures. Any other error comes from a
// repository lookup.
func (r *ProductRules) Validate(ctx context.Context, fields Fields, image *ImageFile, excludeID uint) (*ProductInput, error) {
	errs := FieldErrors{}
	input := coerce(fields, errs)

	if err := r.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("failed to validate product: %w", err)
		}
		for _, e := range verrs {
			if !errs.Has(e.Field()) {
				errs.Add(e.Field(), tagMessage(e))
			}
		}
	}

	if !errs.Has("name") {
		taken, err := r.products.NameTaken(ctx, input.Name, excludeID)
		if err != nil {
			return nil, err
		}
		if taken {
			errs.Add("name", msgTaken("name"))
		}
	}

	if !errs.Has("category_id") {
		ok := false
		if input.CategoryID != 0 {
			var err error
			if ok, err = r.categories.Exists(ctx, input.CategoryID); err != nil {
				return nil, err
			}
		}
		if !ok {
			errs.Add("category_id", msgInvalid("category_id"))
		}
	}

	if image != nil {
		r.checkImage(image, errs)
	}

	if len(errs) > 0 {
		return nil, &Error{Fields: errs}
	}
	return input, nil
}

func (r *ProductRules) checkImage(img *ImageFile, errs FieldErrors) {
	if len(img.Data) == 0 {
		errs.Add("image", "The image failed to upload.")
		return
	}
	if !mimetype.EqualsAny(mimetype.Detect(img.Data).String(), imageTypes...) {
		errs.Add("image", "The image must be an image.")
	}
	if int64(len(img.Data)) > r.maxImageKB*1024 {
		errs.Add("image", fmt.Sprintf("The image must not be greater than %d kilobytes.", r.maxImageKB))
	}
}

// coerce fills a ProductInput from raw fields, recording presence and type
// failures. Fields that failed here are skipped by later rules.
func coerce(fields Fields, errs FieldErrors) *ProductInput {
	in := &ProductInput{}

	if v, ok := lookup(fields, "name", errs); ok {
		s, err := cast.ToStringE(v)
		if err != nil {
			errs.Add("name", "The name must be a string.")
		} else {
			in.Name = s
		}
	}

	if v, ok := lookup(fields, "description", errs); ok {
		if s, isString := v.(string); isString {
			in.Description = s
		} else {
			errs.Add("description", "The description must be a string.")
		}
	}

	if v, ok := lookup(fields, "price", errs); ok {
		d, err := toDecimal(v)
		switch {
		case err != nil:
			errs.Add("price", "The price must be a number.")
		case d.Sign() < 0:
			errs.Add("price", "The price must be at least 0.")
		case priceBoundsMessage(d) != "":
			errs.Add("price", priceBoundsMessage(d))
		default:
			in.Price = d
		}
	}

	if v, ok := lookup(fields, "quantity", errs); ok {
		n, err := toInt(v)
		if err != nil {
			errs.Add("quantity", "The quantity must be an integer.")
		} else {
			in.Quantity = n
		}
	}

	if v, ok := lookup(fields, "category_id", errs); ok {
		n, err := toInt(v)
		if err != nil || n <= 0 {
			errs.Add("category_id", msgInvalid("category_id"))
		} else {
			in.CategoryID = uint(n)
		}
	}

	if v, ok := lookup(fields, "active", errs); ok {
		n, err := toInt(v)
		if err != nil {
			errs.Add("active", msgInvalid("active"))
		} else {
			in.Active = n
		}
	}

	return in
}

// lookup returns the trimmed field value. Missing, null and blank values
// record a required error.
func lookup(fields Fields, key string, errs FieldErrors) (interface{}, bool) {
	v, ok := fields[key]
	if s, isString := v.(string); isString {
		v = strings.TrimSpace(s)
		ok = ok && v != ""
	}
	if !ok || v == nil {
		errs.Add(key, msgRequired(key))
		return nil, false
	}
	return v, true
}

// Prices are stored as decimal(12,2).
const (
	priceScale    = 2
	priceIntegers = 10
	maxPrice      = "9999999999.99"
	// Exponents below this are rejected before any rescaling.
	minPriceExponent = -32
)

// priceBoundsMessage returns the failure message for a non-negative price
// that does not fit the column, or "" when it fits. Only the exponent and
// the coefficient's digit count are read, so "1e10000000" is cheap.
func priceBoundsMessage(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	exp := int(d.Exponent())
	if exp > priceIntegers || d.NumDigits()+exp > priceIntegers {
		return fmt.Sprintf("The price must not be greater than %s.", maxPrice)
	}
	if exp < minPriceExponent || (exp < -priceScale && !d.Truncate(priceScale).Equal(d)) {
		return fmt.Sprintf("The price must not have more than %d decimal places.", priceScale)
	}
	return ""
}

func toDecimal(v interface{}) (decimal.Decimal, error) {
	if _, isBool := v.(bool); isBool {
		return decimal.Decimal{}, fmt.Errorf("bool is not numeric")
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(s)
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		if n >= float64(math.MaxInt) || n < float64(math.MinInt) {
			return 0, fmt.Errorf("%v is out of range", n)
		}
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	case bool:
		return 0, fmt.Errorf("bool is not an integer")
	default:
		return cast.ToIntE(v)
	}
}

func tagMessage(e validator.FieldError) string {
	field := e.Field()
	switch e.Tag() {
	case "required":
		return msgRequired(field)
	case "min":
		return fmt.Sprintf("The %s must be at least %s characters.", label(field), e.Param())
	case "gte":
		return fmt.Sprintf("The %s must be at least %s.", label(field), e.Param())
	case "oneof":
		return msgInvalid(field)
	default:
		return fmt.Sprintf("The %s is invalid.", label(field))
	}
}
