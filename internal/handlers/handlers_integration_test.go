package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"catalog/internal/database"
	"catalog/internal/handlers"
	"catalog/internal/middleware"
	"catalog/internal/models"
	"catalog/internal/repositories"
	"catalog/internal/services"
	"catalog/internal/storage"
	"catalog/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type testApp struct {
	app         *fiber.App
	authService *services.AuthService
	fs          afero.Fs
}

// setupApp wires the handlers against a private in-memory SQLite database
// and an in-memory blob store.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	categoryRepo := repositories.NewGORMCategoryRepository(db)
	require.NoError(t, categoryRepo.Create(context.Background(), &models.Category{Name: "General"}))

	productRepo := repositories.NewGORMProductRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)

	fs := afero.NewMemMapFs()
	rules := validation.NewProductRules(productRepo, categoryRepo, 4048)
	productService := services.NewProductService(productRepo, rules, storage.NewFSStorage(fs), nil, log, 5)
	authService := services.NewAuthService(userRepo, "test_jwt_secret", time.Hour, log)

	app := fiber.New()
	apiV1 := app.Group("/api/v1")
	handlers.NewAuthHandler(authService, log).RegisterRoutes(apiV1)
	handlers.NewProductHandler(productService, log).RegisterRoutes(apiV1, middleware.AuthRequired(authService, log))

	return &testApp{app: app, authService: authService, fs: fs}
}

// token registers a user through the API and returns a bearer token.
func (a *testApp) token(t *testing.T) string {
	t.Helper()

	resp := a.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "authuser",
		"email":    "auth@example.com",
		"password": "securepassword",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = a.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "authuser",
		"password": "securepassword",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (a *testApp) do(t *testing.T, method, path, token string, payload interface{}) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (a *testApp) upload(t *testing.T, method, path, token string, fields map[string]string, image []byte) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if image != nil {
		part, err := w.CreateFormFile("image", "pen.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (a *testApp) blobs() []string {
	entries, err := afero.ReadDir(a.fs, services.ImageFolder)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, services.ImageFolder+"/"+e.Name())
	}
	return names
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func penPayload(name string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"description": "Blue ink",
		"price":       1.5,
		"quantity":    10,
		"category_id": 1,
		"active":      1,
	}
}

func TestAuthRegisterAndLogin(t *testing.T) {
	a := setupApp(t)
	token := a.token(t)

	claims, err := a.authService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "authuser", claims["username"])
	assert.Contains(t, claims, "user_id")

	// Duplicate registration
	resp := a.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "authuser",
		"email":    "other@example.com",
		"password": "securepassword",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Wrong password
	resp = a.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "authuser",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Invalid registration body
	resp = a.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"username": "ab"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestProductEndpointsRequireToken(t *testing.T) {
	a := setupApp(t)

	resp := a.do(t, http.MethodPost, "/api/v1/products", "", penPayload("Pen"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = a.do(t, http.MethodDelete, "/api/v1/products/1", "invalid-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = a.do(t, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestProductLifecycle(t *testing.T) {
	a := setupApp(t)
	token := a.token(t)

	resp := a.do(t, http.MethodPost, "/api/v1/products", token, penPayload("Pen"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "Product created successfully", body["message"])
	product := body["product"].(map[string]interface{})
	assert.Equal(t, "Pen", product["name"])
	assert.Nil(t, product["image"])
	id := int(product["id"].(float64))

	// Same name again
	resp = a.do(t, http.MethodPost, "/api/v1/products", token, penPayload("Pen"))
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, "The given data was invalid.", body["message"])
	errs := body["errors"].(map[string]interface{})
	assert.Equal(t, []interface{}{"The name has already been taken."}, errs["name"])

	resp = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", id), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Pen", decode(t, resp)["name"])

	update := penPayload("Pen")
	update["quantity"] = 0
	resp = a.do(t, http.MethodPut, fmt.Sprintf("/api/v1/products/%d", id), token, update)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, "Product updated successfully", body["message"])
	assert.Equal(t, float64(0), body["product"].(map[string]interface{})["quantity"])

	resp = a.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/products/%d", id), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, fmt.Sprintf("Product %d deleted successfully", id), decode(t, resp)["message"])

	resp = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", id), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "null", strings.TrimSpace(string(raw)))

	resp = a.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/products/%d", id), token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Product not found", decode(t, resp)["error"])

	// The soft-deleted name is free again.
	resp = a.do(t, http.MethodPost, "/api/v1/products", token, penPayload("Pen"))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateProductWithImage(t *testing.T) {
	a := setupApp(t)
	token := a.token(t)

	fields := map[string]string{
		"name":        "Pen",
		"description": "Blue ink",
		"price":       "1.50",
		"quantity":    "10",
		"category_id": "1",
		"active":      "1",
	}
	resp := a.upload(t, http.MethodPost, "/api/v1/products", token, fields, pngHeader)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	product := decode(t, resp)["product"].(map[string]interface{})

	imagePath, _ := product["image"].(string)
	assert.True(t, strings.HasPrefix(imagePath, services.ImageFolder+"/"))
	assert.Equal(t, []string{imagePath}, a.blobs())

	resp = a.upload(t, http.MethodPost, "/api/v1/products", token, fields, []byte("not an image"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
	assert.Len(t, a.blobs(), 1)

	// Replacing the image removes the old blob.
	fields["name"] = "Fountain Pen"
	resp = a.upload(t, http.MethodPatch, fmt.Sprintf("/api/v1/products/%d", int(product["id"].(float64))), token, fields, pngHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode(t, resp)["product"].(map[string]interface{})
	newPath, _ := updated["image"].(string)
	assert.NotEqual(t, imagePath, newPath)
	assert.Equal(t, []string{newPath}, a.blobs())
}

func TestCreateProductValidation(t *testing.T) {
	a := setupApp(t)
	token := a.token(t)

	fields := map[string]string{
		"name":        "Pe",
		"price":       "abc",
		"quantity":    "10",
		"category_id": "99",
		"active":      "1",
	}
	resp := a.upload(t, http.MethodPost, "/api/v1/products", token, fields, []byte("plain text"))
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errs := decode(t, resp)["errors"].(map[string]interface{})

	assert.Equal(t, []interface{}{"The name must be at least 3 characters."}, errs["name"])
	assert.Equal(t, []interface{}{"The description field is required."}, errs["description"])
	assert.Equal(t, []interface{}{"The price must be a number."}, errs["price"])
	assert.Equal(t, []interface{}{"The selected category id is invalid."}, errs["category_id"])
	assert.Equal(t, []interface{}{"The image must be an image."}, errs["image"])
	assert.Empty(t, a.blobs())

	resp = a.do(t, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, float64(0), decode(t, resp)["total"])
}

func TestUpdateMissingProduct(t *testing.T) {
	a := setupApp(t)
	token := a.token(t)

	resp := a.do(t, http.MethodPut, "/api/v1/products/42", token, penPayload("Pen"))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Product not found", decode(t, resp)["error"])
}

func TestMalformedJSONBody(t *testing.T) {
	a := setupApp(t)
	token := a.token(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestListProducts(t *testing.T) {
	a := setupApp(t)
	token := a.token(t)

	for i := 1; i <= 6; i++ {
		resp := a.do(t, http.MethodPost, "/api/v1/products", token, penPayload(fmt.Sprintf("Product %d", i)))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp := a.do(t, http.MethodGet, "/api/v1/products", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode(t, resp)
	data := page["data"].([]interface{})
	require.Len(t, data, 5)
	assert.Equal(t, "Product 6", data[0].(map[string]interface{})["name"])
	assert.Equal(t, float64(6), page["total"])
	assert.Equal(t, float64(5), page["per_page"])
	assert.Equal(t, float64(2), page["last_page"])
	assert.Equal(t, float64(1), page["current_page"])
	assert.True(t, strings.HasSuffix(page["next_page_url"].(string), "/api/v1/products?page=2"))
	assert.Nil(t, page["prev_page_url"])

	resp = a.do(t, http.MethodGet, "/api/v1/products?page=2", "", nil)
	page = decode(t, resp)
	data = page["data"].([]interface{})
	require.Len(t, data, 1)
	assert.Equal(t, "Product 1", data[0].(map[string]interface{})["name"])

	resp = a.do(t, http.MethodGet, "/api/v1/products?page=9", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = decode(t, resp)
	assert.Equal(t, []interface{}{}, page["data"])
	assert.Nil(t, page["from"])

	resp = a.do(t, http.MethodGet, "/api/v1/products?page=144115188075855873&per_page=100", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = decode(t, resp)
	assert.Equal(t, []interface{}{}, page["data"])
	assert.Equal(t, float64(6), page["total"])
	assert.Nil(t, page["from"])
	assert.Nil(t, page["to"])
}
