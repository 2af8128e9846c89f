package handler

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/billing-tracker/internal/apperror"
	"github.com/sakif/billing-tracker/internal/model"
	"github.com/sakif/billing-tracker/internal/service"
	"github.com/sakif/billing-tracker/internal/spreadsheet"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CustomerHandler serves the /api/customers routes. Every route is behind
// auth.RequireAuth and acts on the caller's own customers only.
type CustomerHandler struct {
	customers      *service.CustomerService
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewCustomerHandler(customers *service.CustomerService, maxUploadBytes int64, logger *slog.Logger) *CustomerHandler {
	return &CustomerHandler{
		customers:      customers,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

type addCustomerRequest struct {
	Name           string `json:"name"       validate:"max=100"`
	BoxID          string `json:"boxId"      validate:"max=50"`
	StreetName     string `json:"streetName" validate:"max=100"`
	RechargeAmount amount `json:"rechargeAmount"`
}

type updateCustomerRequest struct {
	Name           *string `json:"name"       validate:"omitempty,max=100"`
	StreetName     *string `json:"streetName" validate:"omitempty,max=100"`
	RechargeAmount amount  `json:"rechargeAmount"`
	Status         *string `json:"status"     validate:"omitempty,max=20"`
}

type addedCustomer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	BoxID string `json:"boxId"`
}

type addCustomerResponse struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message"`
	Customer addedCustomer `json:"customer"`
}

type updateCustomerResponse struct {
	Success  bool               `json:"success"`
	Message  string             `json:"message"`
	Customer model.CustomerView `json:"customer"`
}

type paidCustomer struct {
	ID          string               `json:"id"`
	Status      model.CustomerStatus `json:"status"`
	LastPayment string               `json:"lastPayment"`
}

type markPaidResponse struct {
	Success  bool         `json:"success"`
	Message  string       `json:"message"`
	Customer paidCustomer `json:"customer"`
}

type resetResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	ModifiedCount int64  `json:"modifiedCount"`
}

type importResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Imported int      `json:"imported"`
	Errors   []string `json:"errors,omitempty"`
}

// HandleStreets returns the caller's street summaries.
//
// HTTP: GET /api/customers/streets
func (h *CustomerHandler) HandleStreets(w http.ResponseWriter, r *http.Request) {
	id, found := identity(w, r)
	if !found {
		return
	}

	streets, err := h.customers.ListStreets(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, streets)
}

// HandleByStreet lists one street's customers.
//
// HTTP: GET /api/customers/street/{streetName}?status=paid|unpaid|all
//
// chi decodes percent-escapes in the path, so "Main%20Street" arrives as
// "Main Street".
func (h *CustomerHandler) HandleByStreet(w http.ResponseWriter, r *http.Request) {
	id, found := identity(w, r)
	if !found {
		return
	}

	street := chi.URLParam(r, "streetName")
	customers, err := h.customers.ListByStreet(r.Context(), id.UserID, street, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

// HandleAll lists every customer of the caller.
//
// HTTP: GET /api/customers/all
func (h *CustomerHandler) HandleAll(w http.ResponseWriter, r *http.Request) {
	id, found := identity(w, r)
	if !found {
		return
	}

	customers, err := h.customers.ListAll(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

// HandleAdd creates a customer.
//
// HTTP: POST /api/customers
// Body: {"name": "...", "boxId": "...", "streetName": "...", "rechargeAmount": 500}
func (h *CustomerHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	id, found := identity(w, r)
	if !found {
		return
	}

	var req addCustomerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	c, err := h.customers.Add(r.Context(), id.UserID, service.NewCustomer{
		Name:           req.Name,
		BoxID:          req.BoxID,
		StreetName:     req.StreetName,
		RechargeAmount: req.RechargeAmount.ptr(),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, addCustomerResponse{
		Success:  true,
		Message:  "Customer added successfully",
		Customer: addedCustomer{ID: c.ID, Name: c.Name, BoxID: c.BoxID},
	})
}

// HandleUpdate edits a customer. Fields missing from the body are left alone.
//
// HTTP: PUT /api/customers/{id}
func (h *CustomerHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, found := identity(w, r)
	if !found {
		return
	}

	var req updateCustomerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	c, err := h.customers.Update(r.Context(), id.UserID, chi.URLParam(r, "id"), service.CustomerUpdate{
		Name:           req.Name,
		StreetName:     req.StreetName,
		RechargeAmount: req.RechargeAmount.ptr(),
		Status:         req.Status,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, updateCustomerResponse{
		Success:  true,
		Message:  "Customer updated successfully",
		Customer: c.View(),
	})
}

// HandleDelete removes a customer.
//
// HTTP: DELETE /api/customers/{id}
func (h *CustomerHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, found := identity(w, r)
	if !found {
		return
	}

	if err := h.customers.Delete(r.Context(), id.UserID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("Customer deleted successfully"))
}

// HandleMarkPaid records a payment.
//
// HTTP: PATCH /api/customers/{id}/mark-paid
func (h *CustomerHandler) HandleMarkPaid(w http.ResponseWriter, r *http.Request) {
	id, found := identity(w, r)
	if !found {
		return
	}

	c, err := h.customers.MarkPaid(r.Context(), id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, markPaidResponse{
		Success: true,
		Message: "Payment marked successfully",
		Customer: paidCustomer{
			ID:          c.ID,
			Status:      c.Status,
			LastPayment: model.FormatPaymentDate(c.LastPaymentDate),
		},
	})
}

// HandleResetMonth sets all of the caller's customers back to unpaid.
//
// HTTP: POST /api/customers/reset-month
func (h *CustomerHandler) HandleResetMonth(w http.ResponseWriter, r *http.Request) {
	id, found := identity(w, r)
	if !found {
		return
	}

	n, err := h.customers.ResetMonth(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resetResponse{
		Success:       true,
		Message:       "All customers reset to unpaid",
		ModifiedCount: n,
	})
}

// HandleImport bulk-creates customers from an uploaded .xlsx file.
//
// HTTP: POST /api/customers/import (multipart/form-data, field "file")
//
// Rows that fail are listed in "errors"; the others are imported.
func (h *CustomerHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	id, found := identity(w, r)
	if !found {
		return
	}

	rows, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.customers.Import(r.Context(), id.UserID, rows)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, importResponse{
		Success:  true,
		Message:  fmt.Sprintf("Imported %d customers", result.Imported),
		Imported: result.Imported,
		Errors:   result.Errors,
	})
}

// readUpload extracts and parses the "file" part of a multipart upload.
func (h *CustomerHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]spreadsheet.Row, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperror.ValidationFailed("file",
				fmt.Sprintf("File is too large (limit %d bytes)", h.maxUploadBytes))
		}
		return nil, apperror.ValidationFailed("file", "No file uploaded")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, apperror.ValidationFailed("file", "No file uploaded")
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		return nil, apperror.ValidationFailed("file", "Only .xlsx files are supported")
	}

	rows, err := spreadsheet.ReadCustomers(file)
	if err != nil {
		h.logger.Info("unreadable spreadsheet upload",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()),
		)
		return nil, apperror.ValidationFailed("file", "The file is not a readable .xlsx spreadsheet")
	}
	return rows, nil
}

// HandleExport downloads the caller's customers as customers.xlsx.
//
// HTTP: GET /api/customers/export
//
// The workbook is built in memory first, so a failure can still be reported
// as a JSON error instead of a truncated download.
func (h *CustomerHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	id, found := identity(w, r)
	if !found {
		return
	}

	var buf bytes.Buffer
	if err := h.customers.Export(r.Context(), id.UserID, &buf); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=customers.xlsx")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("export write interrupted", slog.String("error", err.Error()))
	}
}
