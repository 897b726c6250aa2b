// Package main is the POSVault command-line client. Every command except
// register authenticates with the client certificate issued at registration.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/phessophissy/POSVault/internal/client"
	"github.com/phessophissy/POSVault/internal/models"
)

var (
	version   string
	buildDate string
)

type globalOptions struct {
	baseURL  string
	certFile string
	keyFile  string
	caFile   string
	timeout  time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "posvault-cli",
		Short:         "Client for the POSVault treasury API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.baseURL, "url", "https://localhost:8443", "server base URL")
	root.PersistentFlags().StringVar(&opts.certFile, "cert", "client.crt", "path to client cert")
	root.PersistentFlags().StringVar(&opts.keyFile, "key", "client.key", "path to client key")
	root.PersistentFlags().StringVar(&opts.caFile, "ca", "certs/ca.crt", "path to CA cert")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		registerCommand(opts),
		vaultCommand(opts),
		ledgerCommand(opts),
		governanceCommand(opts),
		eventsCommand(opts),
		versionCommand(),
	)
	return root
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build version and date",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "POSVault Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		},
	}
}

// connect builds an authenticated API client.
func (o *globalOptions) connect() (*client.Client, error) {
	httpClient, err := client.LoadClientCertificate(o.certFile, o.keyFile, o.caFile)
	if err != nil {
		return nil, err
	}
	return client.New(httpClient, o.baseURL), nil
}

// call runs fn with a connected client and a request deadline.
func (o *globalOptions) call(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) (any, error)) error {
	c, err := o.connect()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()
	out, err := fn(ctx, c)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v any) error {
	if v == nil {
		_, err := fmt.Fprintln(w, "ok")
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

func registerCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "register <principal>",
		Short: "Register a principal and save its client certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			httpClient, err := client.NewAnonymousClient(opts.caFile)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			if err := client.Register(ctx, httpClient, opts.baseURL, models.Principal(args[0]), opts.certFile, opts.keyFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registration successful. Certificate saved to %s and %s\n", opts.certFile, opts.keyFile)
			return nil
		},
	}
}
