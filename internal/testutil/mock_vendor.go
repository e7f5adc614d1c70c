// Package testutil provides testing utilities for the SKU collector.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// TestAccessToken is the bearer token issued by the mock token endpoint.
const TestAccessToken = "test-access-token"

// Product is a mock catalog entry served by the pricing and inventory
// endpoints.
type Product struct {
	Price         string // decimal string, e.g. "10.00"
	UnitOfMeasure string
	Qty           int64
	StockStatus   string
}

// MockVendor is a configurable mock vendor portal for testing. It serves the
// token, realtimepricing, and realtimeinventory endpoints and supports
// scripted per-SKU status sequences (e.g. 503, 503, 200) to exercise retry
// behavior.
type MockVendor struct {
	server *httptest.Server

	mu            sync.Mutex
	products      map[string]Product
	statusScripts map[string][]int // pending non-200 pricing statuses per SKU
	tokenStatus   int
	pricingCalls  map[string]int
	requestCounts map[string]int
	tokenRequests int
	lastAuth      string
}

// NewMockVendor creates a started mock vendor portal.
func NewMockVendor() *MockVendor {
	m := &MockVendor{
		products:      make(map[string]Product),
		statusScripts: make(map[string][]int),
		pricingCalls:  make(map[string]int),
		requestCounts: make(map[string]int),
		tokenStatus:   http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/identity/connect/token", m.handleToken)
	mux.HandleFunc("/api/v1/realtimepricing", m.handlePricing)
	mux.HandleFunc("/api/v1/realtimeinventory", m.handleInventory)

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requestCounts[r.URL.Path]++
		if auth := r.Header.Get("Authorization"); auth != "" {
			m.lastAuth = auth
		}
		m.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))

	return m
}

// URL returns the mock server base URL.
func (m *MockVendor) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockVendor) Close() {
	m.server.Close()
}

// SetProduct configures the payload served for a SKU.
func (m *MockVendor) SetProduct(sku string, p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[sku] = p
}

// SetPricingStatusSequence scripts the pricing endpoint for a SKU: the given
// statuses are served one per request before normal serving resumes.
func (m *MockVendor) SetPricingStatusSequence(sku string, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusScripts[sku] = append(m.statusScripts[sku], statuses...)
}

// SetTokenStatus makes the token endpoint respond with the given status.
func (m *MockVendor) SetTokenStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenStatus = status
}

// PricingRequests returns how many pricing calls were made for a SKU.
func (m *MockVendor) PricingRequests(sku string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pricingCalls[sku]
}

// Requests returns how many requests were made to a path.
func (m *MockVendor) Requests(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCounts[path]
}

// TotalRequests returns the total request count across all endpoints.
func (m *MockVendor) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.requestCounts {
		total += n
	}
	return total
}

// TokenRequests returns how many token grants were requested.
func (m *MockVendor) TokenRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenRequests
}

// LastAuthHeader returns the Authorization header of the last API request.
func (m *MockVendor) LastAuthHeader() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuth
}

func (m *MockVendor) handleToken(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.tokenRequests++
	status := m.tokenStatus
	m.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, `{"error":"invalid_grant"}`, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer","expires_in":3600}`, TestAccessToken)
}

func (m *MockVendor) handlePricing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductPriceParameters []struct {
			ProductID string `json:"productId"`
		} `json:"productPriceParameters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.ProductPriceParameters) == 0 {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}
	sku := req.ProductPriceParameters[0].ProductID

	m.mu.Lock()
	m.pricingCalls[sku]++
	if script := m.statusScripts[sku]; len(script) > 0 {
		status := script[0]
		m.statusScripts[sku] = script[1:]
		m.mu.Unlock()
		if status != http.StatusOK {
			http.Error(w, fmt.Sprintf(`{"error":"status %d"}`, status), status)
			return
		}
	} else {
		m.mu.Unlock()
	}

	m.mu.Lock()
	product, ok := m.products[sku]
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		// Unknown SKU: the portal answers 200 with an empty result set.
		fmt.Fprint(w, `{"realTimePricingResults":[]}`)
		return
	}

	fmt.Fprintf(w, `{"realTimePricingResults":[{"productId":%q,"unitListPrice":%s,"unitListPriceDisplay":"$%s","additionalResults":{"unitOfMeasure":%q}}]}`,
		sku, product.Price, product.Price, product.UnitOfMeasure)
}

func (m *MockVendor) handleInventory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductIDs []string `json:"productIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.ProductIDs) == 0 {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}
	sku := req.ProductIDs[0]

	m.mu.Lock()
	product, ok := m.products[sku]
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		fmt.Fprint(w, `{"realTimeInventoryResults":[]}`)
		return
	}

	fmt.Fprintf(w, `{"realTimeInventoryResults":[{"productId":%q,"qtyOnHand":%d,"additionalResults":{"subMessageType":%q}}]}`,
		sku, product.Qty, product.StockStatus)
}
