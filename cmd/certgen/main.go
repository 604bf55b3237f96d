// certgen is a CLI tool for generating self-signed PKCS#12 signing containers for local development
// and tests against a mock DIAN service.
package main

import (
	"crypto/x509/pkix"
	"fmt"
	"os"
	"time"

	dcrypto "github.com/facturae-co/dian-gateway/app/internal/crypto"
	"github.com/facturae-co/dian-gateway/app/internal/version"
	"github.com/spf13/cobra"
)

var (
	commonName   string
	organization string
	nit          string
	outputDir    string
	fileName     string
	password     string
	rsaSize      int
	validityDays int
)

func main() {
	rootCmd := &cobra.Command{
		Use:               "certgen",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Short:             "Signing certificate generator for DIAN development",
		Long: `Generate an RSA key and a self-signed certificate packaged as a password protected PKCS#12 container.

DIAN only accepts certificates issued by an accredited certification authority. Generated
containers are for local development and tests against a mock service.`,
	}

	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new PKCS#12 container",
		RunE:  runGenerate,
	}

	generateCmd.Flags().StringVarP(&commonName, "common-name", "n", "", "Certificate subject common name (the DIAN username) [required]")
	generateCmd.Flags().StringVar(&organization, "organization", "", "Certificate subject organization")
	generateCmd.Flags().StringVar(&nit, "nit", "", "Issuer NIT, recorded as the subject serial number")
	generateCmd.Flags().StringVarP(&outputDir, "outputdir", "o", "", "Output directory for the container [required]")
	generateCmd.Flags().StringVarP(&fileName, "file", "f", "signing.p12", "Container file name")
	generateCmd.Flags().StringVarP(&password, "password", "p", "", "Container password [required]")
	generateCmd.Flags().IntVarP(&rsaSize, "size", "s", 2048, "RSA key size in bits (2048, 3072 or 4096)")
	generateCmd.Flags().IntVar(&validityDays, "days", 365, "Certificate validity in days")
	generateCmd.MarkFlagRequired("common-name")
	generateCmd.MarkFlagRequired("outputdir")
	generateCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(generateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if validityDays <= 0 {
		return fmt.Errorf("invalid validity: %d days", validityDays)
	}

	// make the directory if it doesn't exist
	if _, err := os.Stat(outputDir); os.IsNotExist(err) {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	fmt.Printf("Generating %d-bit RSA key and certificate for: %s\n", rsaSize, commonName)

	privateKey, err := dcrypto.GenerateRSAKeyPair(rsaSize)
	if err != nil {
		return fmt.Errorf("failed to generate RSA key: %w", err)
	}

	subject := pkix.Name{CommonName: commonName, SerialNumber: nit}
	if organization != "" {
		subject.Organization = []string{organization}
	}

	cert, err := dcrypto.NewSelfSignedCertificate(privateKey, dcrypto.SelfSignedOptions{
		Subject:  subject,
		Validity: time.Duration(validityDays) * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	container, err := dcrypto.EncodePKCS12(privateKey, cert, password)
	if err != nil {
		return err
	}

	if err := dcrypto.SavePKCS12File(container, outputDir, fileName); err != nil {
		return fmt.Errorf("failed to save container: %w", err)
	}

	fmt.Printf("✓ Container: %s/%s (serial %s, expires %s)\n",
		outputDir, fileName, cert.SerialNumber.String(), cert.NotAfter.Format(time.DateOnly))
	fmt.Println("  set DIAN_CERTIFICATE_PATH and DIAN_CERTIFICATE_PASSWORD to use it")
	return nil
}
