package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd(c *cli) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a one-time sign-in token",
		Long: `Mint a signed custom token that signs one page in as the given subject.

The token is accepted once, before it expires (auth_token_ttl_sec). Pass it as
"token" in the POST /api/page body, or set it as initial_auth_token.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := newIssuer(c.cfg).Mint(subject)
			if err != nil {
				return fmt.Errorf("mint token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "user id the token signs in as")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
