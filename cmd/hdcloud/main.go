// Package main provides a CLI for HotDocs Cloud Services.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kjanat/hotdocs-cloud/client/pkg/client"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// fileConfig is the --config file layout.
type fileConfig struct {
	URL          string        `yaml:"url"`
	SubscriberID string        `yaml:"subscriber_id"`
	SigningKey   string        `yaml:"signing_key"`
	Proxy        string        `yaml:"proxy"`
	Timeout      time.Duration `yaml:"timeout"`
	Insecure     bool          `yaml:"insecure"`
}

// cli holds the global flags of one command tree.
type cli struct {
	apiURL       string
	subscriberID string
	signingKey   string
	proxy        string
	configPath   string
	timeout      time.Duration
	insecure     bool
	jsonOutput   bool
	verbose      bool

	root   *cobra.Command
	config *fileConfig
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	c.root = &cobra.Command{
		Use:   "hdcloud",
		Short: "HotDocs Cloud Services CLI",
		Long: `A command-line client for HotDocs Cloud Services.

This tool allows you to:
  - Create interview sessions, uploading the package if the service lacks it
  - Resume saved sessions
  - Upload packages to the service cache
  - Compute request signatures offline

Environment variables:
  HDCLOUD_URL           - Service address (default: https://cloud.hotdocs.ws)
  HDCLOUD_SUBSCRIBER_ID - Subscriber ID
  HDCLOUD_SIGNING_KEY   - Subscriber signing key
  HDCLOUD_PROXY         - Proxy address (host:port or URL)`,
		SilenceUsage: true,
	}

	flags := c.root.PersistentFlags()
	flags.StringVar(&c.apiURL, "url", "", "Service address (or HDCLOUD_URL env)")
	flags.StringVar(&c.subscriberID, "subscriber-id", "", "Subscriber ID (or HDCLOUD_SUBSCRIBER_ID env)")
	flags.StringVar(&c.signingKey, "signing-key", "", "Signing key (or HDCLOUD_SIGNING_KEY env)")
	flags.StringVar(&c.proxy, "proxy", "", "Proxy address (or HDCLOUD_PROXY env)")
	flags.StringVar(&c.configPath, "config", "", "YAML config file")
	flags.DurationVar(&c.timeout, "timeout", 30*time.Second, "Request timeout")
	flags.BoolVar(&c.insecure, "insecure", false, "Skip TLS certificate verification")
	flags.BoolVar(&c.jsonOutput, "json", false, "Output as JSON")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Log requests to stderr")

	c.root.AddCommand(c.createSessionCmd())
	c.root.AddCommand(c.resumeSessionCmd())
	c.root.AddCommand(c.uploadPackageCmd())
	c.root.AddCommand(c.signCmd())

	return c.root
}

// loadConfig reads the --config file once. Without one it returns an empty
// config.
func (c *cli) loadConfig() (*fileConfig, error) {
	if c.config != nil {
		return c.config, nil
	}
	cfg := &fileConfig{}
	if c.configPath != "" {
		data, err := os.ReadFile(c.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", c.configPath, err)
		}
	}
	c.config = cfg
	return cfg, nil
}

// resolve returns the first non-empty of flag, environment and config value.
func resolve(flag, env, fromConfig string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return fromConfig
}

// settings resolves the connection settings.
func (c *cli) settings() (baseURL, subscriberID, signingKey, proxy string, err error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return "", "", "", "", err
	}

	baseURL = resolve(c.apiURL, "HDCLOUD_URL", cfg.URL)
	if baseURL == "" {
		baseURL = client.DefaultBaseURL
	}
	subscriberID = resolve(c.subscriberID, "HDCLOUD_SUBSCRIBER_ID", cfg.SubscriberID)
	signingKey = resolve(c.signingKey, "HDCLOUD_SIGNING_KEY", cfg.SigningKey)
	proxy = resolve(c.proxy, "HDCLOUD_PROXY", cfg.Proxy)

	if subscriberID == "" {
		return "", "", "", "", errors.New("subscriber ID is required (--subscriber-id or HDCLOUD_SUBSCRIBER_ID)")
	}
	if signingKey == "" {
		return "", "", "", "", errors.New("signing key is required (--signing-key or HDCLOUD_SIGNING_KEY)")
	}
	return baseURL, subscriberID, signingKey, proxy, nil
}

// requestTimeout returns --timeout, or the config file's timeout when the
// flag was left at its default.
func (c *cli) requestTimeout() time.Duration {
	if !c.root.PersistentFlags().Changed("timeout") && c.config != nil && c.config.Timeout > 0 {
		return c.config.Timeout
	}
	return c.timeout
}

func (c *cli) logger() *slog.Logger {
	if !c.verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(c.root.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newClient creates a client from the resolved settings
func (c *cli) newClient() (*client.Client, error) {
	baseURL, subscriberID, signingKey, proxy, err := c.settings()
	if err != nil {
		return nil, err
	}

	opts := []client.Option{
		client.WithBaseURL(baseURL),
		client.WithTimeout(c.requestTimeout()),
		client.WithLogger(c.logger()),
	}
	if proxy != "" {
		opts = append(opts, client.WithProxy(proxy))
	}
	if c.insecure || c.config.Insecure {
		opts = append(opts, client.WithInsecureSkipVerify())
	}

	return client.New(subscriberID, signingKey, opts...)
}

// requestContext bounds a whole command, which may span three round-trips.
func (c *cli) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 3*c.requestTimeout())
}

// outputJSON prints the value as JSON
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describeError wraps err with a message for its kind.
func describeError(err error) error {
	switch {
	case client.IsValidationError(err):
		return err
	case client.IsTransportError(err):
		return fmt.Errorf("service unreachable: %w", err)
	case client.IsUploadFailed(err):
		return fmt.Errorf("package upload failed: %w", err)
	case client.IsPackageNotCached(err):
		return fmt.Errorf("package not cached on the service (pass --package-file to upload it): %w", err)
	default:
		return fmt.Errorf("request failed: %w", err)
	}
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// sessionFlags are the flags that shape a CreateSessionRequest.
type sessionFlags struct {
	packageFile     string
	billingRef      string
	interviewFormat string
	outputFormat    string
	theme           string
	answersFile     string
	noDownloadLinks bool
	settings        []string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.packageFile, "package-file", "", "Local package file, uploaded if the service does not have it")
	cmd.Flags().StringVar(&f.billingRef, "billing-ref", "", "Billing reference")
	cmd.Flags().StringVar(&f.interviewFormat, "interview-format", client.DefaultInterviewFormat, "Interview format")
	cmd.Flags().StringVar(&f.outputFormat, "output-format", client.DefaultOutputFormat, "Assembled document format")
	cmd.Flags().StringVar(&f.theme, "theme", "", "Interview theme")
	cmd.Flags().StringVar(&f.answersFile, "answers", "", "Answer file to start from (- for stdin)")
	cmd.Flags().BoolVar(&f.noDownloadLinks, "no-download-links", false, "Hide download links after assembly")
	cmd.Flags().StringArrayVar(&f.settings, "set", nil, "Extra setting as name=value (repeatable, order is kept)")
}

func (f *sessionFlags) request(cmd *cobra.Command, packageID string) (*client.CreateSessionRequest, error) {
	opts := []client.SessionOption{
		client.WithBillingRef(f.billingRef),
		client.WithInterviewFormat(f.interviewFormat),
		client.WithOutputFormat(f.outputFormat),
		client.WithTheme(f.theme),
		client.WithShowDownloadLinks(!f.noDownloadLinks),
	}
	if f.answersFile != "" {
		answers, err := readInput(cmd, f.answersFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read answers: %w", err)
		}
		opts = append(opts, client.WithAnswers(answers))
	}

	req := client.NewCreateSessionRequest(packageID, f.packageFile, opts...)
	for _, kv := range f.settings {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, expected name=value", kv)
		}
		if err := req.SetSetting(name, value); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// sessionOutput is the JSON form of a session command result.
type sessionOutput struct {
	SessionID  string `json:"sessionId"`
	Uploaded   bool   `json:"uploaded"`
	RoundTrips int    `json:"roundTrips"`
}

func (c *cli) printSession(cmd *cobra.Command, res *client.Result) error {
	id := strings.TrimSpace(string(res.Body))
	if c.jsonOutput {
		return outputJSON(cmd.OutOrStdout(), sessionOutput{
			SessionID:  id,
			Uploaded:   res.Uploaded,
			RoundTrips: res.RoundTrips,
		})
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), id)
	return err
}

// Create session command
func (c *cli) createSessionCmd() *cobra.Command {
	var f sessionFlags

	cmd := &cobra.Command{
		Use:   "create-session <package-id>",
		Short: "Create an interview session",
		Long: `Creates an embedded interview session for a package and prints the session ID.

If the service does not have the package cached and --package-file is given,
the package is uploaded and the request is sent once more.

Example:
  hdcloud create-session "Employment Agreement" --package-file ./EmploymentAgreement.hdpkg
  hdcloud create-session pkg-1 --set UnansweredFormat=Underscores --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(cmd, args[0])
			if err != nil {
				return err
			}

			hc, err := c.newClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			ctx, cancel := c.requestContext()
			defer cancel()

			res, err := hc.Send(ctx, req)
			if err != nil {
				return describeError(err)
			}
			return c.printSession(cmd, res)
		},
	}
	f.register(cmd)
	return cmd
}

// Resume session command
func (c *cli) resumeSessionCmd() *cobra.Command {
	var snapshotFile string

	cmd := &cobra.Command{
		Use:   "resume-session",
		Short: "Resume a saved session",
		Long: `Resumes an interview session from a saved snapshot and prints the session ID.

Example:
  hdcloud resume-session --snapshot ./session.snapshot
  cat session.snapshot | hdcloud resume-session --snapshot -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if snapshotFile == "" {
				return errors.New("--snapshot is required")
			}
			snapshot, err := readInput(cmd, snapshotFile)
			if err != nil {
				return fmt.Errorf("failed to read snapshot: %w", err)
			}
			if len(snapshot) == 0 {
				return errors.New("snapshot is empty")
			}

			hc, err := c.newClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			ctx, cancel := c.requestContext()
			defer cancel()

			res, err := hc.Send(ctx, client.NewResumeSessionRequest(snapshot))
			if err != nil {
				return describeError(err)
			}
			return c.printSession(cmd, res)
		},
	}
	cmd.Flags().StringVar(&snapshotFile, "snapshot", "", "Snapshot file (- for stdin, required)")
	return cmd
}

// Upload package command
func (c *cli) uploadPackageCmd() *cobra.Command {
	var packageFile string

	cmd := &cobra.Command{
		Use:   "upload-package <package-id>",
		Short: "Upload a package",
		Long:  "Stores a package in the service cache. A package the service already holds is not an error.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if packageFile == "" {
				return errors.New("--file is required")
			}

			hc, err := c.newClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			ctx, cancel := c.requestContext()
			defer cancel()

			if err := hc.UploadPackage(ctx, args[0], packageFile); err != nil {
				return describeError(err)
			}

			if c.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]any{"packageId": args[0], "uploaded": true})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Package '%s' uploaded\n", args[0])
			return err
		},
	}
	cmd.Flags().StringVar(&packageFile, "file", "", "Package file (required)")
	return cmd
}

// signOutput is the JSON form of the sign command result.
type signOutput struct {
	Date      string `json:"date"`
	Canonical string `json:"canonical"`
	Signature string `json:"signature"`
}

// Sign command
func (c *cli) signCmd() *cobra.Command {
	var (
		f            sessionFlags
		op           string
		packageID    string
		snapshotFile string
		timestamp    string
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Compute a request signature",
		Long: `Prints the canonical string, x-hd-date header and Authorization signature a
request would carry, without sending it.

Example:
  hdcloud sign --op create-session --package-id pkg-1 --timestamp 2024-03-01T12:00:00Z
  hdcloud sign --op upload-package --package-id pkg-1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			subscriberID := resolve(c.subscriberID, "HDCLOUD_SUBSCRIBER_ID", cfg.SubscriberID)
			signingKey := resolve(c.signingKey, "HDCLOUD_SIGNING_KEY", cfg.SigningKey)
			if subscriberID == "" || signingKey == "" {
				return errors.New("subscriber ID and signing key are required")
			}

			ts := time.Now()
			if timestamp != "" {
				ts, err = time.Parse(time.RFC3339, timestamp)
				if err != nil {
					return fmt.Errorf("invalid --timestamp (use RFC3339): %w", err)
				}
			}

			var req client.Request
			switch op {
			case "create-session":
				if packageID == "" {
					return errors.New("--package-id is required")
				}
				req, err = f.request(cmd, packageID)
				if err != nil {
					return err
				}
			case "resume-session":
				if snapshotFile == "" {
					return errors.New("--snapshot is required")
				}
				snapshot, err := readInput(cmd, snapshotFile)
				if err != nil {
					return fmt.Errorf("failed to read snapshot: %w", err)
				}
				req = client.NewResumeSessionRequest(snapshot)
			case "upload-package":
				if packageID == "" {
					return errors.New("--package-id is required")
				}
				req = client.NewUploadPackageRequest(packageID, nil)
			default:
				return fmt.Errorf("unknown --op %q (create-session, resume-session, upload-package)", op)
			}

			signer := client.NewSigner(subscriberID, signingKey)
			out := signOutput{
				Date:      ts.UTC().Format(http.TimeFormat),
				Canonical: signer.CanonicalString(ts, req.HMACParams()),
				Signature: signer.Sign(ts, req.HMACParams()),
			}

			if c.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Canonical string:\n%s\n\n", out.Canonical)
			fmt.Fprintf(w, "x-hd-date: %s\n", out.Date)
			_, err = fmt.Fprintf(w, "Authorization: %s\n", out.Signature)
			return err
		},
	}

	cmd.Flags().StringVar(&op, "op", "create-session", "Operation: create-session, resume-session or upload-package")
	cmd.Flags().StringVar(&packageID, "package-id", "", "Package ID")
	cmd.Flags().StringVar(&snapshotFile, "snapshot", "", "Snapshot file for resume-session (- for stdin)")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Signing time (RFC3339, default now)")
	f.register(cmd)
	return cmd
}
