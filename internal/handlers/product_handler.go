package handlers

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"catalog/internal/services"
	"catalog/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// productFields are the form keys read from non-JSON requests.
var productFields = []string{"name", "description", "price", "quantity", "category_id", "active"}

// ProductHandler handles HTTP requests for products.
type ProductHandler struct {
	service *services.ProductService
	log     *logrus.Logger
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service *services.ProductService, log *logrus.Logger) *ProductHandler {
	return &ProductHandler{
		service: service,
		log:     log,
	}
}

// RegisterRoutes registers the product routes. guards run before every
// mutating route.
func (h *ProductHandler) RegisterRoutes(router fiber.Router, guards ...fiber.Handler) {
	productRoutes := router.Group("/products")
	productRoutes.Get("/", h.HandleList)
	productRoutes.Get("/:id", h.HandleShow)
	productRoutes.Post("/", chain(guards, h.HandleCreate)...)
	productRoutes.Put("/:id", chain(guards, h.HandleUpdate)...)
	productRoutes.Patch("/:id", chain(guards, h.HandleUpdate)...)
	productRoutes.Delete("/:id", chain(guards, h.HandleDestroy)...)
}

func chain(guards []fiber.Handler, handler fiber.Handler) []fiber.Handler {
	handlers := make([]fiber.Handler, 0, len(guards)+1)
	handlers = append(handlers, guards...)
	return append(handlers, handler)
}

// HandleList returns one page of products, newest first.
func (h *ProductHandler) HandleList(c *fiber.Ctx) error {
	page, err := h.service.List(c.UserContext(), c.QueryInt("page", 1), c.QueryInt("per_page", 0))
	if err != nil {
		return h.fail(c, err)
	}
	page.SetPath(c.BaseURL() + c.Path())
	return c.JSON(page)
}

// HandleShow returns the product, or a JSON null when it does not exist.
func (h *ProductHandler) HandleShow(c *fiber.Ctx) error {
	id, ok := productID(c)
	if !ok {
		return c.JSON(nil)
	}
	product, err := h.service.Show(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	if product == nil {
		return c.JSON(nil)
	}
	return c.JSON(product)
}

// HandleCreate creates a product from a JSON body or a multipart form with
// an optional "image" file.
func (h *ProductHandler) HandleCreate(c *fiber.Ctx) error {
	fields, image, err := bindProduct(c)
	if err != nil {
		h.log.WithError(err).Warn("invalid product request body")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	product, err := h.service.Create(c.UserContext(), fields, image)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Product created successfully",
		"product": product,
	})
}

// HandleUpdate replaces a product's fields and optionally its image.
func (h *ProductHandler) HandleUpdate(c *fiber.Ctx) error {
	id, ok := productID(c)
	if !ok {
		return h.fail(c, services.ErrProductNotFound)
	}

	fields, image, err := bindProduct(c)
	if err != nil {
		h.log.WithError(err).Warn("invalid product request body")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	product, err := h.service.Update(c.UserContext(), id, fields, image)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Product updated successfully",
		"product": product,
	})
}

// HandleDestroy soft-deletes a product.
func (h *ProductHandler) HandleDestroy(c *fiber.Ctx) error {
	id, ok := productID(c)
	if !ok {
		return h.fail(c, services.ErrProductNotFound)
	}
	if err := h.service.Destroy(c.UserContext(), id); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Product %d deleted successfully", id),
	})
}

func (h *ProductHandler) fail(c *fiber.Ctx, err error) error {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"message": "The given data was invalid.",
			"errors":  verr.Fields,
		})
	case errors.Is(err, services.ErrProductNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Product not found",
		})
	default:
		h.log.WithError(err).WithField("path", c.Path()).Error("product request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

func productID(c *fiber.Ctx) (uint, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return 0, false
	}
	return uint(id), true
}

// bindProduct reads product fields from a JSON body, or from form values plus
// an optional "image" file for urlencoded and multipart requests.
func bindProduct(c *fiber.Ctx) (validation.Fields, *validation.ImageFile, error) {
	fields := validation.Fields{}

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		if len(c.Body()) == 0 {
			return fields, nil, nil
		}
		if err := c.BodyParser(&fields); err != nil {
			return nil, nil, err
		}
		return fields, nil, nil
	}

	for _, key := range productFields {
		if v := c.FormValue(key); v != "" {
			fields[key] = v
		}
	}

	header, err := c.FormFile("image")
	if err != nil {
		if c.FormValue("image") != "" {
			return fields, &validation.ImageFile{}, nil
		}
		return fields, nil, nil
	}

	file, err := header.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open uploaded image: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read uploaded image: %w", err)
	}
	return fields, &validation.ImageFile{Filename: header.Filename, Data: data}, nil
}
