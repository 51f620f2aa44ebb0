package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"go-cane-inspector/internal/client"
)

func newHealthCommand() *cobra.Command {
	var endpoint string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the analysis server is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("endpoint") {
				cfg.Endpoint = endpoint
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			c := client.New(cfg.Endpoint, client.Options{InsecureSkipVerify: cfg.InsecureSkipVerify})
			health, err := c.Health(ctx)
			if err != nil {
				return userError(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Endpoint: %s\n", cfg.Endpoint)
			fmt.Fprintf(out, "Status: %s\n", health.Status)
			fmt.Fprintf(out, "Models: %s\n", strings.Join(health.ModelsAvailable, ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "analysis server base URL")
	return cmd
}
