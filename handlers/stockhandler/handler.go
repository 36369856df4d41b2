package stockhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/SGNL-ai/stockfile/pkg/stockserrors"
	"github.com/SGNL-ai/stockfile/pkg/stockservice"
)

// maxImportBytes bounds CSV uploads.
const maxImportBytes = 10 << 20

type Handlers struct {
	Service *stockservice.Service
	Logger  *zap.Logger
}

func NewHandlers(service *stockservice.Service, logger *zap.Logger) *Handlers {
	return &Handlers{
		Service: service,
		Logger:  logger.Named("stockhandler"),
	}
}

// Register mounts the inventory and sales API on router.
func (h *Handlers) Register(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/items", h.ListItems).Methods(http.MethodGet)
	api.HandleFunc("/items", h.AddItem).Methods(http.MethodPost)
	api.HandleFunc("/items/export", h.ExportItems).Methods(http.MethodGet)
	api.HandleFunc("/items/import", h.ImportItems).Methods(http.MethodPost)
	api.HandleFunc("/items/low-stock", h.LowStock).Methods(http.MethodGet)
	api.HandleFunc("/items/{code}", h.GetItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{code}", h.UpdateItem).Methods(http.MethodPut)
	api.HandleFunc("/items/{code}", h.DeleteItem).Methods(http.MethodDelete)
	api.HandleFunc("/items/{code}/sell", h.SellItem).Methods(http.MethodPost)
	api.HandleFunc("/sales/history", h.SalesHistory).Methods(http.MethodGet)
	api.HandleFunc("/sales/export", h.ExportSales).Methods(http.MethodGet)
	api.HandleFunc("/backup", h.Backup).Methods(http.MethodPost)
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type itemResponse struct {
	Message string      `json:"message"`
	Item    interface{} `json:"item"`
}

type sellRequest struct {
	Quantity int `json:"quantity"`
}

type sellResponse struct {
	Message string      `json:"message"`
	Sale    interface{} `json:"sale"`
	Item    interface{} `json:"item"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, stockserrors.ErrStockNotFound):
		return http.StatusNotFound
	case errors.Is(err, stockserrors.ErrStockExists):
		return http.StatusConflict
	case errors.Is(err, stockserrors.ErrInvalidStock),
		errors.Is(err, stockserrors.ErrInvalidUpdateRequest),
		errors.Is(err, stockserrors.ErrStockLimitExceeded),
		errors.Is(err, stockserrors.ErrInsufficientStock):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("Failed to encode JSON response.", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	if status == http.StatusInternalServerError {
		h.Logger.Error("Error encountered while handling a request.",
			zap.String("method", r.Method), zap.String("uri", r.RequestURI), zap.Error(err))
		h.writeJSON(w, status, errorResponse{Error: "Internal server error"})

		return
	}

	message := err.Error()

	var stockErr *stockserrors.StockError
	if errors.As(err, &stockErr) {
		message = stockErr.UserMessage()
	}

	h.Logger.Warn("Request rejected.",
		zap.String("method", r.Method), zap.String("uri", r.RequestURI), zap.Int("status", status), zap.Error(err))
	h.writeJSON(w, status, errorResponse{Error: message})
}

func (h *Handlers) badRequest(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.Logger.Error("Invalid JSON body.", zap.String("uri", r.RequestURI), zap.Error(err))
		h.badRequest(w, "Invalid JSON body")

		return false
	}

	return true
}

// queryInt returns 0 for an absent parameter and false for a malformed one.
func queryInt(r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}

	return n, true
}

func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(r, "page")
	if !ok {
		h.badRequest(w, "Invalid page value")

		return
	}

	perPage, ok := queryInt(r, "per_page")
	if !ok {
		h.badRequest(w, "Invalid per_page value")

		return
	}

	q := r.URL.Query()

	result, err := h.Service.ListItems(r.Context(), stockservice.ListQuery{
		Search:    q.Get("search"),
		Brand:     q.Get("brand"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
		Page:      page,
		PerPage:   perPage,
	})
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request) {
	var in stockservice.NewItem
	if !h.decodeBody(w, r, &in) {
		return
	}

	item, err := h.Service.AddItem(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, http.StatusCreated, itemResponse{Message: "Item added successfully", Item: item})
}

func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.Service.GetItem(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

func (h *Handlers) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var update stockservice.ItemUpdate
	if !h.decodeBody(w, r, &update) {
		return
	}

	item, err := h.Service.UpdateItem(r.Context(), mux.Vars(r)["code"], update)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, http.StatusOK, itemResponse{Message: "Item updated successfully", Item: item})
}

func (h *Handlers) SellItem(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	receipt, err := h.Service.SellItem(r.Context(), mux.Vars(r)["code"], req.Quantity)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, http.StatusOK, sellResponse{
		Message: fmt.Sprintf("Sold %d items successfully", req.Quantity),
		Sale:    receipt.Sale,
		Item:    receipt.Item,
	})
}

func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteItem(r.Context(), mux.Vars(r)["code"]); err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{Message: "Item deleted successfully"})
}

func (h *Handlers) LowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.LowStock(r.Context())
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handlers) SalesHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.Service.SalesHistory(r.Context(), stockservice.SalesQuery{Range: r.URL.Query().Get("range")})
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, http.StatusOK, history)
}

func (h *Handlers) writeCSV(w http.ResponseWriter, r *http.Request, prefix string, export func(ctx context.Context, w io.Writer) error) {
	var buf bytes.Buffer

	if err := export(r.Context(), &buf); err != nil {
		h.writeError(w, r, err)

		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s_%s.csv", prefix, time.Now().UTC().Format("2006-01-02")))

	if _, err := buf.WriteTo(w); err != nil {
		h.Logger.Error("Failed to write CSV response.", zap.String("export", prefix), zap.Error(err))
	}
}

func (h *Handlers) ExportItems(w http.ResponseWriter, r *http.Request) {
	h.writeCSV(w, r, "stock_items", h.Service.ExportItemsCSV)
}

func (h *Handlers) ExportSales(w http.ResponseWriter, r *http.Request) {
	h.writeCSV(w, r, "sales_history", h.Service.ExportSalesCSV)
}

func (h *Handlers) ImportItems(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Logger.Warn("CSV upload exceeds size limit.", zap.Int64("limit", tooLarge.Limit))
			h.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: fmt.Sprintf("CSV file exceeds %d MB limit", maxImportBytes>>20)})

			return
		}

		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Cannot read CSV body"})

		return
	}

	result, err := h.Service.ImportItemsCSV(r.Context(), bytes.NewReader(body))
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) Backup(w http.ResponseWriter, r *http.Request) {
	path, err := h.Service.Backup(r.Context())
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Backup created successfully",
		"backup":  filepath.Base(path),
	})
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}
