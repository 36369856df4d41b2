package stockhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SGNL-ai/stockfile/pkg/filehandler"
	"github.com/SGNL-ai/stockfile/pkg/models"
	"github.com/SGNL-ai/stockfile/pkg/stockservice"
)

func setupRouter(t *testing.T) *mux.Router {
	t.Helper()

	dir := t.TempDir()

	h, err := filehandler.OpenStockFileHandler(context.Background(), filepath.Join(dir, "stock.json"), filepath.Join(dir, "backups"), 2, zap.NewNop())
	require.NoError(t, err)

	svc := stockservice.NewService(h, nil, models.DefaultVATRate, zap.NewNop())

	router := mux.NewRouter()
	NewHandlers(svc, zap.NewNop()).Register(router)
	router.HandleFunc("/health", Health).Methods(http.MethodGet)

	return router
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())

	return out
}

const tomtom = `{"stock_code":"tt-1","brand":"TomTom","quantity":12,"price":120.5}`

func TestHandlers_AddAndGetItem(t *testing.T) {
	router := setupRouter(t)

	rr := do(t, router, http.MethodPost, "/api/items", tomtom)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	body := decode(t, rr)
	assert.Equal(t, "Item added successfully", body["message"])
	item := body["item"].(map[string]interface{})
	assert.Equal(t, "TT-1", item["stock_code"])
	assert.EqualValues(t, 120.5, item["price"])
	assert.EqualValues(t, 144.6, item["price_with_vat"])

	rr = do(t, router, http.MethodPost, "/api/items", tomtom)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "Item with stock code TT-1 already exists", decode(t, rr)["error"])

	rr = do(t, router, http.MethodGet, "/api/items/tt-1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "TomTom Navigation system", decode(t, rr)["stock_name"])

	rr = do(t, router, http.MethodGet, "/api/items/NOPE", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Item NOPE not found", decode(t, rr)["error"])
}

func TestHandlers_Validation(t *testing.T) {
	router := setupRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		err    string
	}{
		{"malformed json", http.MethodPost, "/api/items", `{"stock_code":`, http.StatusBadRequest, "Invalid JSON body"},
		{"missing code", http.MethodPost, "/api/items", `{"brand":"TomTom","quantity":1,"price":10}`, http.StatusBadRequest, "Stock code is required"},
		{"over limit", http.MethodPost, "/api/items", `{"stock_code":"A","brand":"TomTom","quantity":101,"price":10}`, http.StatusBadRequest, "Quantity cannot exceed 100 items"},
		{"bad page", http.MethodGet, "/api/items?page=two", "", http.StatusBadRequest, "Invalid page value"},
		{"bad sort", http.MethodGet, "/api/items?sort_by=colour", "", http.StatusBadRequest, "Invalid sort field: colour"},
		{"bad range", http.MethodGet, "/api/sales/history?range=decade", "", http.StatusBadRequest, "Invalid range: decade"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.Equal(t, tt.err, decode(t, rr)["error"])
		})
	}
}

func TestHandlers_UpdateSellDelete(t *testing.T) {
	router := setupRouter(t)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/items", tomtom).Code)

	rr := do(t, router, http.MethodPut, "/api/items/TT-1", `{"quantity":90}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Cannot add 90 items. Total quantity (102) would exceed 100 items limit", decode(t, rr)["error"])

	rr = do(t, router, http.MethodPut, "/api/items/TT-1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPut, "/api/items/TT-1", `{"price":99.99,"brand":"TomTom GO"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 119.99, decode(t, rr)["item"].(map[string]interface{})["price_with_vat"])

	rr = do(t, router, http.MethodPost, "/api/items/TT-1/sell", `{"quantity":20}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Cannot sell 20 items. Only 12 items available in stock", decode(t, rr)["error"])

	rr = do(t, router, http.MethodPost, "/api/items/TT-1/sell", `{"quantity":4}`)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "Sold 4 items successfully", body["message"])
	assert.EqualValues(t, 8, body["item"].(map[string]interface{})["quantity"])
	sale := body["sale"].(map[string]interface{})
	assert.Len(t, sale["transaction_id"], 10)
	assert.EqualValues(t, 399.96, sale["revenue"])

	rr = do(t, router, http.MethodGet, "/api/items/low-stock", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["items"], 1)

	rr = do(t, router, http.MethodGet, "/api/sales/history", "")
	require.Equal(t, http.StatusOK, rr.Code)
	history := decode(t, rr)
	assert.Len(t, history["daily"], 1)
	assert.EqualValues(t, 4, history["totals"].(map[string]interface{})["sales"])

	rr = do(t, router, http.MethodDelete, "/api/items/TT-1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Item deleted successfully", decode(t, rr)["message"])

	rr = do(t, router, http.MethodDelete, "/api/items/TT-1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlers_ListItems(t *testing.T) {
	router := setupRouter(t)

	for _, body := range []string{
		`{"stock_code":"A","brand":"TomTom","quantity":50,"price":10}`,
		`{"stock_code":"B","brand":"Garmin","quantity":5,"price":20}`,
		`{"stock_code":"C","brand":"Garmin","quantity":30,"price":30}`,
	} {
		require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/items", body).Code)
	}

	rr := do(t, router, http.MethodGet, "/api/items?brand=garmin&sort_by=quantity&sort_order=desc&per_page=1&page=1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decode(t, rr)
	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "C", items[0].(map[string]interface{})["stock_code"])

	pagination := body["pagination"].(map[string]interface{})
	assert.EqualValues(t, 2, pagination["total_pages"])
	assert.EqualValues(t, 2, pagination["total_items"])

	stats := body["statistics"].(map[string]interface{})
	assert.EqualValues(t, 3, stats["total_items"])
	assert.EqualValues(t, 1, stats["low_stock_items"])
	assert.EqualValues(t, 1500, stats["total_value"])
}

func TestHandlers_CSVExportImport(t *testing.T) {
	router := setupRouter(t)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/items", tomtom).Code)

	rr := do(t, router, http.MethodGet, "/api/items/export", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attachment; filename=stock_items_")
	assert.Equal(t,
		"stock_code,stock_name,stock_type,description,brand,quantity,price,price_with_vat\n"+
			"TT-1,TomTom Navigation system,Navigation system,GeoVision Sat Nav,TomTom,12,120.50,144.60\n",
		rr.Body.String())

	exported := rr.Body.String()

	other := setupRouter(t)
	rr = do(t, other, http.MethodPost, "/api/items/import", exported)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.EqualValues(t, 1, decode(t, rr)["created"])

	rr = do(t, other, http.MethodGet, "/api/items/TT-1", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/sales/export", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "filename=sales_history_")
	assert.Equal(t, "transaction_id,sold_at,stock_code,brand,quantity,unit_price,revenue\n", rr.Body.String())
}

func TestHandlers_ImportTooLarge(t *testing.T) {
	router := setupRouter(t)

	var body strings.Builder
	body.WriteString("stock_code,stock_name,stock_type,description,brand,quantity,price\n")
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&body, "OK-%d,,,,TomTom,5,10.00\n", i)
	}
	body.WriteString("BIG-1," + strings.Repeat("x", maxImportBytes+1) + ",,,TomTom,5,10.00\n")

	rr := do(t, router, http.MethodPost, "/api/items/import", body.String())
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "CSV file exceeds 10 MB limit", decode(t, rr)["error"])

	rr = do(t, router, http.MethodGet, "/api/items", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode(t, rr)["items"])
}

func TestHandlers_BackupAndHealth(t *testing.T) {
	router := setupRouter(t)

	rr := do(t, router, http.MethodPost, "/api/backup", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(decode(t, rr)["backup"].(string), "stock_"))

	rr = do(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode(t, rr)["status"])
}

func TestStatusFor_Internal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.Canceled))
}
