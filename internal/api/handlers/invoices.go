package handlers

// invoices.go implements the /v1/invoices endpoints

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/facturae-co/dian-gateway/app/internal/api"
	"github.com/facturae-co/dian-gateway/app/internal/invoice"
	"github.com/facturae-co/dian-gateway/app/internal/logger"
	"github.com/facturae-co/dian-gateway/app/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// InvoiceHandler handles the invoice lifecycle endpoints
type InvoiceHandler struct {
	invoices *services.InvoiceService
}

func NewInvoiceHandler(invoices *services.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// HandleCreateInvoice godoc
//
//	@Summary		Issue an invoice
//	@Description	Validates the fields, computes the CUFE, builds and signs the UBL document, stores it
//	@Description	and submits it to DIAN. The response carries the DIAN verdict (approved or rejected).
//	@Description
//	@Description	If the submission fails the signed draft is kept: the error response has a Location
//	@Description	header for the draft, which can be resubmitted with POST /v1/invoices/{id}/submit.
//	@Tags			Invoices
//	@Accept			json
//	@Produce		json
//	@Param			request	body		invoice.DocumentFields	true	"Invoice fields"
//	@Success		201		{object}	api.InvoiceResponse		"Invoice issued"
//	@Failure		400		{object}	api.ErrorResponse		"Invalid fields"
//	@Failure		409		{object}	api.ErrorResponse		"Invoice number already issued"
//	@Failure		502		{object}	api.ErrorResponse		"DIAN request failed"
//	@Router			/v1/invoices [post]
func (h *InvoiceHandler) HandleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var fields invoice.DocumentFields
	if err := api.DecodeJSONBody(r, &fields); err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	inv, err := h.invoices.CreateAndSend(r.Context(), fields)
	if inv != nil {
		logger.ContextWithLogAttrs(r.Context(),
			slog.String("invoice_id", inv.ID.String()),
			slog.String("cufe", inv.CUFE),
		)
	}
	if err != nil {
		if inv != nil {
			w.Header().Set("Location", invoicePath(inv.ID))
		}
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	w.Header().Set("Location", invoicePath(inv.ID))
	api.RespondWithJSONPayload(w, http.StatusCreated, api.NewInvoiceResponse(inv, false))
}

// HandleListInvoices godoc
//
//	@Summary		List invoices
//	@Description	Returns stored invoices, newest first.
//	@Tags			Invoices
//	@Produce		json
//	@Param			limit	query		int							false	"Page size (default 50, max 500)"
//	@Param			offset	query		int							false	"Number of invoices to skip"
//	@Success		200		{object}	api.ListInvoicesResponse	"Invoices"
//	@Failure		400		{object}	api.ErrorResponse			"Invalid paging parameters"
//	@Router			/v1/invoices [get]
func (h *InvoiceHandler) HandleListInvoices(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0, 0, 1<<30)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	invoices, err := h.invoices.List(r.Context(), limit, offset)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	resp := api.ListInvoicesResponse{
		Invoices: make([]api.InvoiceResponse, 0, len(invoices)),
		Limit:    limit,
		Offset:   offset,
	}
	for _, inv := range invoices {
		resp.Invoices = append(resp.Invoices, api.NewInvoiceResponse(inv, false))
	}
	api.RespondWithJSONPayload(w, http.StatusOK, resp)
}

// HandleGetInvoice godoc
//
//	@Summary		Get an invoice
//	@Tags			Invoices
//	@Produce		json
//	@Param			id		path		string				true	"Invoice id"
//	@Param			xml		query		bool				false	"Include the unsigned and signed XML documents"
//	@Success		200		{object}	api.InvoiceResponse	"Invoice"
//	@Failure		404		{object}	api.ErrorResponse	"Invoice not found"
//	@Router			/v1/invoices/{id} [get]
func (h *InvoiceHandler) HandleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	inv, err := h.invoices.Get(r.Context(), id)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	includeXML, _ := strconv.ParseBool(r.URL.Query().Get("xml"))
	api.RespondWithJSONPayload(w, http.StatusOK, api.NewInvoiceResponse(inv, includeXML))
}

// HandleSubmitInvoice godoc
//
//	@Summary		Resubmit a draft invoice
//	@Description	Sends a stored draft (an invoice whose first submission failed) to DIAN.
//	@Tags			Invoices
//	@Produce		json
//	@Param			id		path		string				true	"Invoice id"
//	@Success		200		{object}	api.InvoiceResponse	"Invoice submitted"
//	@Failure		404		{object}	api.ErrorResponse	"Invoice not found"
//	@Failure		409		{object}	api.ErrorResponse	"Invoice already sent"
//	@Failure		502		{object}	api.ErrorResponse	"DIAN request failed"
//	@Router			/v1/invoices/{id}/submit [post]
func (h *InvoiceHandler) HandleSubmitInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	inv, err := h.invoices.Submit(r.Context(), id)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}
	api.RespondWithJSONPayload(w, http.StatusOK, api.NewInvoiceResponse(inv, false))
}

// HandleInvoiceStatus godoc
//
//	@Summary		Check an invoice status at DIAN
//	@Description	Queries DIAN for the invoice status and applies it: ACCEPTED moves the invoice to
//	@Description	approved and REJECTED to rejected. Answers are cached for five minutes per CUFE.
//	@Tags			Invoices
//	@Produce		json
//	@Param			id		path		string					true	"Invoice id"
//	@Success		200		{object}	services.StatusResult	"Invoice and DIAN status"
//	@Failure		404		{object}	api.ErrorResponse		"Invoice not found"
//	@Failure		502		{object}	api.ErrorResponse		"DIAN request failed"
//	@Router			/v1/invoices/{id}/status [get]
func (h *InvoiceHandler) HandleInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	result, err := h.invoices.CheckStatus(r.Context(), id)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}
	api.RespondWithJSONPayload(w, http.StatusOK, result)
}

// HandleDownloadInvoice godoc
//
//	@Summary		Download the processed invoice
//	@Description	Returns the document held by DIAN for the invoice (the graphic representation).
//	@Tags			Invoices
//	@Produce		application/pdf
//	@Param			id		path		string				true	"Invoice id"
//	@Success		200		{file}		binary				"Processed document"
//	@Failure		404		{object}	api.ErrorResponse	"Invoice not found"
//	@Failure		502		{object}	api.ErrorResponse	"DIAN request failed"
//	@Router			/v1/invoices/{id}/download [get]
func (h *InvoiceHandler) HandleDownloadInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	data, inv, err := h.invoices.Download(r.Context(), id)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	contentType := http.DetectContentType(data)
	api.RespondWithAttachment(w, contentType, "factura-"+inv.Fields.Number+extension(contentType), data)
}

// extension returns the file extension for a sniffed content type
func extension(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "application/pdf"):
		return ".pdf"
	case strings.HasPrefix(contentType, "application/zip"):
		return ".zip"
	case strings.HasPrefix(contentType, "text/xml"), strings.HasPrefix(contentType, "application/xml"):
		return ".xml"
	default:
		return ".bin"
	}
}

func invoicePath(id uuid.UUID) string {
	return "/v1/invoices/" + id.String()
}

func invoiceID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, api.WrapMalformedRequestError(err, fmt.Sprintf("invalid invoice id %q", raw))
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def, lo, hi int32) (int32, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || int32(v) < lo || int32(v) > hi {
		return 0, api.NewMalformedRequestError(fmt.Sprintf("%s must be an integer between %d and %d", name, lo, hi))
	}
	return int32(v), nil
}
