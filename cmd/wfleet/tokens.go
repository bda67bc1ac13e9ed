package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tokensCountOnly bool

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Print the query cover of the configured alphabet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		alphabet := cfg.Alphabet()
		if err := alphabet.Validate(); err != nil {
			return fmt.Errorf("invalid alphabet: %w", err)
		}

		out := cmd.OutOrStdout()
		if tokensCountOnly {
			fmt.Fprintln(out, alphabet.Size())
			return nil
		}
		for _, token := range alphabet.Generate() {
			fmt.Fprintln(out, token)
		}
		return nil
	},
}

func init() {
	tokensCmd.Flags().BoolVar(&tokensCountOnly, "count", false, "print only the number of tokens")
}
