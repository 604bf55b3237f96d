package cli

import (
	"fmt"
	"log/slog"

	"github.com/facturae-co/dian-gateway/app/internal/services"
	"github.com/facturae-co/dian-gateway/app/internal/ubl"
	"github.com/spf13/cobra"
)

var cufeCmd = &cobra.Command{
	Use:   "cufe <fields.json>",
	Short: "Compute the CUFE of an invoice",
	Long: `Validate the invoice fields in a JSON file and print the CUFE, the software security code
and the QR payload.

Requires DIAN_SOFTWARE_ID and DIAN_SOFTWARE_PIN.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireFingerprint(); err != nil {
			return err
		}

		fields, err := readFields(args[0])
		if err != nil {
			return err
		}

		result, err := services.Fingerprint(fields, cfg.SoftwareID, cfg.SoftwarePin)
		if err != nil {
			return err
		}

		appLogger.Debug("CUFE computed",
			slog.String("invoice_number", fields.Number),
			slog.String("cufe", result.CUFE),
		)
		return printJSON(cmd.OutOrStdout(), result)
	},
}

var buildOutput string

var buildCmd = &cobra.Command{
	Use:   "build <fields.json>",
	Short: "Build the unsigned UBL document of an invoice",
	Long: `Compute the CUFE of the invoice fields and write the unsigned UBL 2.1 document.
The document carries the signature placeholder for the invoice number and can be signed
with the sign command.

Requires DIAN_SOFTWARE_ID and DIAN_SOFTWARE_PIN.

Example:
  dian-cli build invoice.json --out invoice.xml
  dian-cli sign invoice.xml SETP990000001 --out invoice.signed.xml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireFingerprint(); err != nil {
			return err
		}

		fields, err := readFields(args[0])
		if err != nil {
			return err
		}

		result, err := services.Fingerprint(fields, cfg.SoftwareID, cfg.SoftwarePin)
		if err != nil {
			return err
		}

		doc, err := ubl.Build(fields, result.CUFE, ubl.Options{
			SoftwareID:  cfg.SoftwareID,
			SoftwarePin: cfg.SoftwarePin,
			ProviderID:  cfg.ProviderID,
		})
		if err != nil {
			return fmt.Errorf("failed to build document: %w", err)
		}
		if err := ubl.ValidateSchema(doc); err != nil {
			return err
		}

		return writeOutput(cmd, buildOutput, doc)
	},
}

func init() {
	buildCmd.Flags().StringVarP(&buildOutput, "out", "o", "", "Output file (default stdout)")
}
