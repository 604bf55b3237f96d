package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/facturae-co/dian-gateway/app/internal/crypto"
	"github.com/facturae-co/dian-gateway/app/internal/xades"
	"github.com/spf13/cobra"
)

var signOutput string

var signCmd = &cobra.Command{
	Use:   "sign <document.xml> <document-id>",
	Short: "Sign an XML document",
	Long: `Sign an XML document with the configured certificate. The document must contain exactly
one signature placeholder for the document id; it is replaced with the XAdES signature.

Requires DIAN_CERTIFICATE_PATH and DIAN_CERTIFICATE_PASSWORD.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadCertificates()
		if err != nil {
			return err
		}

		document, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}

		signed, block, err := xades.NewSigner(store).SignDocument(document, args[1])
		if err != nil {
			return err
		}

		appLogger.Info("document signed",
			slog.String("document_id", args[1]),
			slog.String("signature_id", block.ID),
			slog.Time("signing_time", block.SigningTime),
		)
		return writeOutput(cmd, signOutput, signed)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <signed.xml> <document-id>",
	Short: "Verify the signature of a signed document",
	Long: `Check that the document digest matches the signed content and that the signature
verifies with the embedded certificate. The certificate chain is not validated.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		signed, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}

		block, err := xades.VerifyDocument(signed, args[1])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "signature valid\n")
		fmt.Fprintf(out, "  signature id:  %s\n", block.ID)
		fmt.Fprintf(out, "  signing time:  %s\n", block.SigningTime.Format(time.RFC3339))
		fmt.Fprintf(out, "  issuer:        %s\n", block.IssuerName)
		fmt.Fprintf(out, "  serial number: %s\n", block.SerialNumber)
		return nil
	},
}

// loadCertificates opens the configured PKCS#12 container.
func loadCertificates() (*crypto.CertificateStore, error) {
	if err := cfg.RequireSigning(); err != nil {
		return nil, err
	}
	store := crypto.NewCertificateStore(appLogger)
	if err := store.LoadFile(cfg.CertificatePath, cfg.CertificatePassword); err != nil {
		return nil, err
	}
	return store, nil
}

func init() {
	signCmd.Flags().StringVarP(&signOutput, "out", "o", "", "Output file (default stdout)")
}
