package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/terra-clan/interview-engine/pkg/client"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	server  string
	apiKey  string
	timeout time.Duration
}

func (o *rootOptions) client() (*client.Client, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("an API key is required (--api-key or PREPCTL_API_KEY)")
	}
	return client.NewClient(o.server, o.apiKey, client.WithTimeout(o.timeout)), nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "prepctl",
		Short:        "Command-line client for interview-engine",
		Long:         "prepctl creates interview practice sessions, submits answers and browses the question catalog.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.server, "server", envOr("PREPCTL_SERVER", "http://localhost:8080"), "interview-engine base URL (PREPCTL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("PREPCTL_API_KEY"), "API key (PREPCTL_API_KEY)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")

	rootCmd.AddCommand(newSessionsCmd(opts))
	rootCmd.AddCommand(newCatalogCmd(opts))
	rootCmd.AddCommand(newHealthCmd(opts))

	return rootCmd
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.NewClient(opts.server, opts.apiKey, client.WithTimeout(opts.timeout))
			if err := c.Health(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
