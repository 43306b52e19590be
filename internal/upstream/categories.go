package upstream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/iot-monitor/dashboard/internal/models"
)

// CategoryClient is the typed CRUD wrapper over the categories endpoints.
type CategoryClient struct {
	c *Client
}

// NewCategoryClient wraps the shared client with the category operations.
func NewCategoryClient(c *Client) *CategoryClient {
	return &CategoryClient{c: c}
}

// List returns all categories. The upstream may answer with a bare array or a
// pagination envelope; both collapse to a plain slice here.
func (cc *CategoryClient) List(ctx context.Context) ([]models.Category, error) {
	var raw rawBody
	if err := cc.c.doResource(ctx, http.MethodGet, "/categories/", nil, nil, &raw); err != nil {
		return nil, err
	}
	page, err := models.UnmarshalPage[models.Category](raw)
	if err != nil {
		return nil, &Error{Status: 200, Message: "Erro 200: resposta inválida do servidor"}
	}
	return page.Results, nil
}

// Get returns one category by id.
func (cc *CategoryClient) Get(ctx context.Context, id int) (*models.Category, error) {
	var cat models.Category
	if err := cc.c.doResource(ctx, http.MethodGet, fmt.Sprintf("/categories/%d/", id), nil, nil, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Create posts a new category.
func (cc *CategoryClient) Create(ctx context.Context, req models.CategoryRequest) (*models.Category, error) {
	var cat models.Category
	if err := cc.c.doResource(ctx, http.MethodPost, "/categories/", nil, req, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Update replaces a category (PUT).
func (cc *CategoryClient) Update(ctx context.Context, id int, req models.CategoryRequest) (*models.Category, error) {
	var cat models.Category
	if err := cc.c.doResource(ctx, http.MethodPut, fmt.Sprintf("/categories/%d/", id), nil, req, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// PartialUpdate patches a category (PATCH).
func (cc *CategoryClient) PartialUpdate(ctx context.Context, id int, fields map[string]any) (*models.Category, error) {
	var cat models.Category
	if err := cc.c.doResource(ctx, http.MethodPatch, fmt.Sprintf("/categories/%d/", id), nil, fields, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Delete removes a category.
func (cc *CategoryClient) Delete(ctx context.Context, id int) error {
	return cc.c.doResource(ctx, http.MethodDelete, fmt.Sprintf("/categories/%d/", id), nil, nil, nil)
}
