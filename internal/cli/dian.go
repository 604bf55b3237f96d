package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/facturae-co/dian-gateway/app/internal/cufe"
	"github.com/facturae-co/dian-gateway/app/internal/dian"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Obtain a DIAN bearer token",
	Long: `Exchange the certificate credentials for a DIAN bearer token and print it with its expiry.

Requires DIAN_AUTH_URL, DIAN_SOFTWARE_ID, DIAN_CERTIFICATE_PATH and DIAN_CERTIFICATE_PASSWORD.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireAuth(); err != nil {
			return err
		}

		tokens, err := newTokenManager()
		if err != nil {
			return err
		}

		if _, err := tokens.GetToken(cmd.Context()); err != nil {
			return err
		}
		token, _ := tokens.Token()

		return printJSON(cmd.OutOrStdout(), map[string]string{
			"access_token": token.Value,
			"expires_at":   token.ExpiresAt.UTC().Format(time.RFC3339),
		})
	},
}

var (
	submitFingerprint string
	submitTest        bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <signed.xml>",
	Short: "Submit a signed document to DIAN",
	Long: `Submit a signed invoice document and print the DIAN response.

With --test the document is sent to the habilitation test set (DIAN_TEST_SET_ID).

Requires the DIAN_API_URL, DIAN_AUTH_URL, DIAN_SOFTWARE_ID, DIAN_SOFTWARE_PIN and certificate settings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cufe.IsValid(submitFingerprint) {
			return fmt.Errorf("--cufe must be a %d character lowercase hex CUFE", cufe.Length)
		}

		signed, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		resp, err := client.Submit(cmd.Context(), signed, submitFingerprint, submitTest)
		if err != nil {
			return err
		}

		appLogger.Info("document submitted",
			slog.String("cufe", submitFingerprint),
			slog.String("file_name", resp.FileName),
			slog.String("state", string(resp.LifecycleState())),
		)
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <cufe>",
	Short: "Query the DIAN status of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cufe.IsValid(args[0]) {
			return errors.New("argument is not a valid CUFE")
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		resp, err := client.GetStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var downloadOutput string

var downloadCmd = &cobra.Command{
	Use:   "download <cufe>",
	Short: "Download the processed document from DIAN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cufe.IsValid(args[0]) {
			return errors.New("argument is not a valid CUFE")
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		data, err := client.Download(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeOutput(cmd, downloadOutput, data)
	},
}

func newTokenManager() (*dian.TokenManager, error) {
	store, err := loadCertificates()
	if err != nil {
		return nil, err
	}

	return dian.NewTokenManager(dian.TokenManagerConfig{
		AuthURL:         cfg.AuthURL,
		SoftwareID:      cfg.SoftwareID,
		Password:        cfg.CertificatePassword,
		ExchangeTimeout: cfg.HTTPTimeout,
		SafetyMargin:    cfg.TokenSafetyMargin,
	}, store, appLogger)
}

func newClient() (*dian.Client, error) {
	if err := cfg.RequireSubmission(); err != nil {
		return nil, err
	}

	tokens, err := newTokenManager()
	if err != nil {
		return nil, err
	}

	return dian.NewClient(dian.ClientConfig{
		APIURL:          cfg.APIURL,
		SoftwareID:      cfg.SoftwareID,
		TestSetID:       cfg.TestSetID,
		RequestTimeout:  cfg.HTTPTimeout,
		StatusCacheTTL:  cfg.StatusCacheTTL,
		StatusCacheSize: cfg.StatusCacheSize,
	}, tokens, appLogger)
}

func init() {
	submitCmd.Flags().StringVar(&submitFingerprint, "cufe", "", "CUFE of the document [required]")
	submitCmd.Flags().BoolVar(&submitTest, "test", false, "Submit to the habilitation test set")
	submitCmd.MarkFlagRequired("cufe")

	downloadCmd.Flags().StringVarP(&downloadOutput, "out", "o", "", "Output file (default stdout)")
}
