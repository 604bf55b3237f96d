package cufe

import (
	"fmt"
	"strings"

	"github.com/facturae-co/dian-gateway/app/internal/invoice"
)

// QRData returns the text encoded in the invoice QR code.
//
// searchURL is the catalogue lookup prefix (SearchURLProduction or SearchURLTest); the CUFE is appended to it.
// Rendering the text as an image is left to the caller.
func QRData(fields invoice.DocumentFields, cufe, searchURL string) string {
	lines := []string{
		"NumFac:" + fields.Number,
		"FecFac:" + fields.IssueDate,
		"HorFac:" + fields.IssueTime,
		"NitFac:" + fields.Supplier.ID,
		"DocAdq:" + fields.Customer.ID,
		"ValFac:" + fields.InvoiceTotal.String(),
		"ValIva:" + fields.TaxValue.String(),
		"ValOtroIm:" + fields.OtherTaxes.String(),
		"ValTotal:" + fields.GrandTotal.String(),
		"CUFE:" + cufe,
		fmt.Sprintf("URL:%s%s", searchURL, cufe),
	}
	return strings.Join(lines, "\n")
}
