package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"catalog/internal/models"
	"catalog/internal/repositories"
	"catalog/internal/storage"
	"catalog/internal/validation"

	"github.com/sirupsen/logrus"
)

// ImageFolder is the blob storage folder holding product images.
const ImageFolder = "products"

const maxPerPage = 100

// Product lifecycle events.
const (
	EventProductCreated = "product.created"
	EventProductUpdated = "product.updated"
	EventProductDeleted = "product.deleted"
)

// EventPublisher publishes product lifecycle events.
type EventPublisher interface {
	PublishProductEvent(event string, product *models.Product) error
}

// Page is one page of the product listing.
type Page struct {
	CurrentPage int              `json:"current_page"`
	Data        []models.Product `json:"data"`
	PerPage     int              `json:"per_page"`
	Total       int64            `json:"total"`
	LastPage    int              `json:"last_page"`
	From        *int             `json:"from"`
	To          *int             `json:"to"`

	Path         string  `json:"path"`
	FirstPageURL string  `json:"first_page_url"`
	LastPageURL  string  `json:"last_page_url"`
	NextPageURL  *string `json:"next_page_url"`
	PrevPageURL  *string `json:"prev_page_url"`
}

// SetPath fills the page links from the listing URL path, which must not
// carry a query string.
func (p *Page) SetPath(path string) {
	link := func(n int) string { return fmt.Sprintf("%s?page=%d", path, n) }

	p.Path = path
	p.FirstPageURL = link(1)
	p.LastPageURL = link(p.LastPage)
	p.NextPageURL, p.PrevPageURL = nil, nil
	if p.CurrentPage < p.LastPage {
		next := link(p.CurrentPage + 1)
		p.NextPageURL = &next
	}
	if p.CurrentPage > 1 {
		prev := link(p.CurrentPage - 1)
		p.PrevPageURL = &prev
	}
}

// ProductService handles business logic related to products.
type ProductService struct {
	repo      repositories.ProductRepository
	rules     *validation.ProductRules
	store     storage.Storage
	publisher EventPublisher
	log       *logrus.Logger
	perPage   int
}

// NewProductService creates a new ProductService. publisher may be nil.
func NewProductService(
	repo repositories.ProductRepository,
	rules *validation.ProductRules,
	store storage.Storage,
	publisher EventPublisher,
	log *logrus.Logger,
	perPage int,
) *ProductService {
	if perPage < 1 {
		perPage = 5
	}
	return &ProductService{
		repo:      repo,
		rules:     rules,
		store:     store,
		publisher: publisher,
		log:       log,
		perPage:   perPage,
	}
}

// List returns a page of products, newest first. page starts at 1; a
// perPage below 1 uses the service default.
func (s *ProductService) List(ctx context.Context, page, perPage int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = s.perPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	var (
		products []models.Product
		total    int64
		err      error
	)
	// Pages whose offset does not fit an int can only be past the end.
	beyond := page-1 > (math.MaxInt-1)/perPage
	offset := 0
	if beyond {
		products = []models.Product{}
		total, err = s.repo.Count(ctx)
	} else {
		offset = (page - 1) * perPage
		products, total, err = s.repo.Paginate(ctx, perPage, offset)
	}
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}

	lastPage := int((total + int64(perPage) - 1) / int64(perPage))
	if lastPage < 1 {
		lastPage = 1
	}
	result := &Page{
		CurrentPage: page,
		Data:        products,
		PerPage:     perPage,
		Total:       total,
		LastPage:    lastPage,
	}
	if len(products) > 0 {
		from, to := offset+1, offset+len(products)
		result.From, result.To = &from, &to
	}
	return result, nil
}

// Create validates the request, stores the optional image and persists the
// product. The image is removed again if persistence fails.
func (s *ProductService) Create(ctx context.Context, fields validation.Fields, image *validation.ImageFile) (*models.Product, error) {
	input, err := s.rules.Validate(ctx, fields, image, 0)
	if err != nil {
		return nil, s.validationFailure("create", err)
	}

	staged, err := s.stage(ctx, image)
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, staged)

	product := &models.Product{}
	input.Apply(product)
	if p := staged.Path(); p != "" {
		product.Image = &p
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, s.persistFailure("create", err)
	}
	staged.Keep()

	s.log.WithFields(logrus.Fields{"product_id": product.ID, "image": product.ImagePath()}).Info("product created")
	s.publish(EventProductCreated, product)
	return product, nil
}

// Show returns the live product with the given ID, or nil when there is none.
func (s *ProductService) Show(ctx context.Context, id uint) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		return nil, &PersistenceError{Op: "find", Err: err}
	}
	return product, nil
}

// Update replaces the product's fields. A new image replaces the old one; the
// old blob is deleted only once the record points at the new one.
func (s *ProductService) Update(ctx context.Context, id uint, fields validation.Fields, image *validation.ImageFile) (*models.Product, error) {
	product, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	input, err := s.rules.Validate(ctx, fields, image, product.ID)
	if err != nil {
		return nil, s.validationFailure("update", err)
	}

	staged, err := s.stage(ctx, image)
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, staged)

	previous := product.ImagePath()
	input.Apply(product)
	if p := staged.Path(); p != "" {
		product.Image = &p
	}

	if err := s.repo.Update(ctx, product); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, s.persistFailure("update", err)
	}
	staged.Keep()

	if staged.Path() != "" && previous != "" {
		s.removeImage(ctx, previous)
	}

	s.log.WithFields(logrus.Fields{"product_id": product.ID, "image": product.ImagePath()}).Info("product updated")
	s.publish(EventProductUpdated, product)
	return product, nil
}

// Destroy soft-deletes the product. Its image stays in storage.
func (s *ProductService) Destroy(ctx context.Context, id uint) error {
	product, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, product.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrProductNotFound
		}
		return &PersistenceError{Op: "delete", Err: err}
	}

	s.log.WithField("product_id", product.ID).Info("product soft-deleted")
	s.publish(EventProductDeleted, product)
	return nil
}

func (s *ProductService) find(ctx context.Context, id uint) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, &PersistenceError{Op: "find", Err: err}
	}
	return product, nil
}

func (s *ProductService) stage(ctx context.Context, image *validation.ImageFile) (*storage.Staged, error) {
	var data []byte
	if image != nil {
		data = image.Data
	}
	staged, err := storage.Stage(ctx, s.store, ImageFolder, data)
	if err != nil {
		s.log.WithError(err).Error("failed to store product image")
		return nil, &StorageError{Op: "put", Err: err}
	}
	return staged, nil
}

// release runs the staged blob's compensation on a context that survives
// request cancellation.
func (s *ProductService) release(ctx context.Context, staged *storage.Staged) {
	if err := staged.Release(context.WithoutCancel(ctx)); err != nil {
		s.log.WithError(err).WithField("image", staged.Path()).Error("failed to remove orphaned product image")
	}
}

func (s *ProductService) removeImage(ctx context.Context, path string) {
	if err := s.store.Delete(ctx, path); err != nil {
		s.log.WithError(err).WithField("image", path).Warn("failed to delete replaced product image")
	}
}

func (s *ProductService) validationFailure(op string, err error) error {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return verr
	}
	s.log.WithError(err).Errorf("product %s: validation lookup failed", op)
	return &PersistenceError{Op: op, Err: err}
}

func (s *ProductService) persistFailure(op string, err error) error {
	if errors.Is(err, repositories.ErrDuplicateName) {
		return validation.Taken("name")
	}
	s.log.WithError(err).Errorf("product %s failed", op)
	return &PersistenceError{Op: op, Err: err}
}

func (s *ProductService) publish(event string, product *models.Product) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishProductEvent(event, product); err != nil {
		s.log.WithError(err).WithField("product_id", product.ID).Warnf("failed to publish %s", event)
	}
}
