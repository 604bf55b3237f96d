package handlers

// cufe.go implements the POST /v1/cufe endpoint

import (
	"net/http"

	"github.com/facturae-co/dian-gateway/app/internal/api"
	"github.com/facturae-co/dian-gateway/app/internal/invoice"
	"github.com/facturae-co/dian-gateway/app/internal/services"
)

// CUFEHandler computes invoice fingerprints without storing or submitting anything
type CUFEHandler struct {
	softwareID  string
	softwarePin string

	// configErr is set when the software credentials are missing
	configErr error
}

// NewCUFEHandler creates a handler using the given software credentials.
// configErr is the result of the configuration check; when set every request fails with 503.
func NewCUFEHandler(softwareID, softwarePin string, configErr error) *CUFEHandler {
	return &CUFEHandler{
		softwareID:  softwareID,
		softwarePin: softwarePin,
		configErr:   configErr,
	}
}

// HandleGenerateCUFE godoc
//
//	@Summary		Compute a CUFE
//	@Description	Validates the invoice fields and returns the CUFE (SHA-384 fingerprint), the software
//	@Description	security code and the QR payload text. Nothing is stored or sent to DIAN.
//	@Tags			Invoices
//	@Accept			json
//	@Produce		json
//	@Param			request	body		invoice.DocumentFields			true	"Invoice fields"
//	@Success		200		{object}	services.FingerprintResult		"Fingerprint"
//	@Failure		400		{object}	api.ErrorResponse				"Invalid fields"
//	@Failure		503		{object}	api.ErrorResponse				"Software credentials not configured"
//	@Router			/v1/cufe [post]
func (h *CUFEHandler) HandleGenerateCUFE(w http.ResponseWriter, r *http.Request) {
	if h.configErr != nil {
		api.RespondWithErrorResponse(w, r, api.WrapNotConfiguredError(h.configErr, "CUFE generation unavailable"))
		return
	}

	var fields invoice.DocumentFields
	if err := api.DecodeJSONBody(r, &fields); err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	result, err := services.Fingerprint(fields, h.softwareID, h.softwarePin)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	api.RespondWithJSONPayload(w, http.StatusOK, result)
}
