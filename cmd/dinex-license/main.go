// Package main is the entrypoint for the Dinex license administration CLI.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/DelfimCelestino/dinex/internal/license"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dinex-license",
		Short: "Administer Dinex licenses",
		Long: `dinex-license issues, lists and revokes licenses on a Dinex license server.

The server address comes from DINEX_SERVER_URL and the admin token from
ADMIN_TOKEN.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newCreateCmd(),
		newListCmd(),
		newRevokeCmd(),
		newUpdateCmd(),
		newHardwareCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// rejectionError is a license-level rejection from the server, for example an
// unknown key. Commands print it and exit cleanly; only infrastructure
// failures set a non-zero exit code.
type rejectionError struct {
	message string
}

func (e *rejectionError) Error() string { return e.message }

// reportRejection prints a license-level rejection and swallows it. Other
// errors pass through untouched.
func reportRejection(err error) error {
	var rej *rejectionError
	if errors.As(err, &rej) {
		fmt.Println(rej.message)
		return nil
	}
	return err
}

// apiClient is a thin admin client over the server's license API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient() *apiClient {
	baseURL := os.Getenv("DINEX_SERVER_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   os.Getenv("ADMIN_TOKEN"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reach license server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &apiErr)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && apiErr.Message != "" {
			return &rejectionError{message: apiErr.Message}
		}
		if apiErr.Error != "" {
			return fmt.Errorf("server: %s", apiErr.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func newCreateCmd() *cobra.Command {
	var (
		clientName  string
		clientEmail string
		hardwareID  string
		machineName string
		days        int
		version     string
		features    []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new license",
		Long: `Issue a new license bound to a machine.

Without --hardware the license is bound to the machine the SERVER runs on,
which is only useful for single-box installs. Read the target terminal's
fingerprint with 'dinex-license hardware' on that machine first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			featureMap := make(map[string]bool, len(features))
			for _, f := range features {
				name, value, found := strings.Cut(f, "=")
				if !found {
					featureMap[name] = true
					continue
				}
				featureMap[name] = value == "true" || value == "1"
			}

			var resp struct {
				Success    bool   `json:"success"`
				LicenseKey string `json:"licenseKey"`
				Message    string `json:"message"`
			}
			err := newAPIClient().do(http.MethodPost, "/api/licenses", map[string]any{
				"client_name":  clientName,
				"client_email": clientEmail,
				"hardware_id":  hardwareID,
				"machine_name": machineName,
				"days":         days,
				"version":      version,
				"features":     featureMap,
			}, &resp)
			if err != nil {
				return reportRejection(err)
			}

			fmt.Printf("License created for %s\n", clientName)
			fmt.Printf("  Key: %s\n", resp.LicenseKey)
			return nil
		},
	}

	cmd.Flags().StringVar(&clientName, "client", "", "client name (required)")
	cmd.Flags().StringVar(&clientEmail, "email", "", "client email")
	cmd.Flags().StringVar(&hardwareID, "hardware", "", "target machine hardware ID")
	cmd.Flags().StringVar(&machineName, "machine", "", "target machine name")
	cmd.Flags().IntVar(&days, "days", 365, "license duration in days")
	cmd.Flags().StringVar(&version, "version", "1.0.0", "product version")
	cmd.Flags().StringSliceVar(&features, "features", nil, "feature flags, e.g. reports,delivery=false")
	_ = cmd.MarkFlagRequired("client")

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all licenses",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Licenses []*license.License `json:"licenses"`
			}
			if err := newAPIClient().do(http.MethodGet, "/api/licenses", nil, &resp); err != nil {
				return err
			}

			if len(resp.Licenses) == 0 {
				fmt.Println("No licenses.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tCLIENT\tMACHINE\tEXPIRES\tACTIVE\tVALIDATIONS")
			now := time.Now()
			for _, lic := range resp.Licenses {
				expires := lic.ExpiresAt.Format("2006-01-02")
				if lic.Expired(now) {
					expires += " (expired)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d/%d\n",
					lic.LicenseKey, lic.ClientName, lic.MachineName,
					expires, lic.IsActive, lic.ValidationCount, lic.MaxValidations)
			}
			return w.Flush()
		},
	}
}

func newRevokeCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Deactivate a license",
		RunE: func(cmd *cobra.Command, args []string) error {
			active := false
			var resp struct {
				Success bool             `json:"success"`
				License *license.License `json:"license"`
				Message string           `json:"message"`
			}
			err := newAPIClient().do(http.MethodPut, "/api/licenses", map[string]any{
				"license_key": key,
				"is_active":   &active,
			}, &resp)
			if err != nil {
				return reportRejection(err)
			}

			fmt.Printf("License %s revoked (client: %s)\n", resp.License.LicenseKey, resp.License.ClientName)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "license key (required)")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func newUpdateCmd() *cobra.Command {
	var (
		key            string
		active         bool
		maxValidations int
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a license's active flag or validation ceiling",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"license_key": key}
			if cmd.Flags().Changed("active") {
				body["is_active"] = &active
			}
			if cmd.Flags().Changed("max-validations") {
				body["max_validations"] = &maxValidations
			}
			if len(body) == 1 {
				return fmt.Errorf("nothing to update; pass --active or --max-validations")
			}

			var resp struct {
				Success bool             `json:"success"`
				License *license.License `json:"license"`
				Message string           `json:"message"`
			}
			if err := newAPIClient().do(http.MethodPut, "/api/licenses", body, &resp); err != nil {
				return reportRejection(err)
			}

			fmt.Printf("License %s updated: active=%t max_validations=%d\n",
				resp.License.LicenseKey, resp.License.IsActive, resp.License.MaxValidations)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "license key (required)")
	cmd.Flags().BoolVar(&active, "active", true, "set the active flag")
	cmd.Flags().IntVar(&maxValidations, "max-validations", 0, "set the validation ceiling")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func newHardwareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hardware",
		Short: "Print this machine's hardware fingerprint",
		Long: `Print the hardware fingerprint of the machine this command runs on.

Run it on the terminal you want to license, then pass the ID to
'dinex-license create --hardware <id>'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
			info := license.NewHostFingerprinter(logger).Fingerprint(ctx)

			fmt.Printf("Hardware ID: %s\n", info.HardwareID)
			fmt.Printf("  Machine:   %s\n", info.MachineName)
			fmt.Printf("  CPU:       %s\n", info.CPUInfo)
			fmt.Printf("  Network:   %s\n", info.NetworkInfo)
			fmt.Printf("  Disk:      %s\n", info.DiskInfo)
			if info.Fallback {
				fmt.Println("  WARNING: fingerprint is a random fallback and will change on every run")
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dinex-license %s\n", Version)
		},
	}
}
