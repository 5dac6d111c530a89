package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Meal is the catalog's view of a meal an order is pooled for.
type Meal struct {
	ID           int64           `json:"id"`
	RestaurantID int64           `json:"restaurant_id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
}

// MealCatalog resolves meals to their restaurant.
type MealCatalog interface {
	Meal(ctx context.Context, id int64) (*Meal, error)
}

// HTTPMealCatalog reads meals from the catalog service.
type HTTPMealCatalog struct {
	baseURL string
	client  *http.Client
}

func NewHTTPMealCatalog(baseURL string, timeout time.Duration) *HTTPMealCatalog {
	return &HTTPMealCatalog{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (c *HTTPMealCatalog) Meal(ctx context.Context, id int64) (*Meal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/meals/%d", c.baseURL, id), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("meal catalog: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{Resource: "meal", ID: id}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("meal catalog returned status %d", resp.StatusCode)
	}

	var meal Meal
	if err := json.NewDecoder(resp.Body).Decode(&meal); err != nil {
		return nil, fmt.Errorf("decode meal %d: %w", id, err)
	}
	if meal.ID == 0 {
		meal.ID = id
	}
	return &meal, nil
}
