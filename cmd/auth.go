package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yonagi/mailharvest/internal/google"
)

func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to the Gmail mailbox",
		Long: `Print the Google authorization URL, then exchange the pasted
authorization code for a token. The token is persisted and refreshed
automatically on later runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := google.NewManager(google.DefaultConfig())

			fmt.Fprintln(cmd.OutOrStdout(), "Open the following URL in a browser and approve access:")
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "  "+mgr.AuthCodeURL())
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprint(cmd.OutOrStdout(), "Authorization code: ")

			reader := bufio.NewReader(os.Stdin)
			code, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read authorization code: %w", err)
			}
			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("empty authorization code")
			}

			if _, err := mgr.Authorize(cmd.Context(), code); err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Token stored.")
			return nil
		},
	}
}
