package main

import (
	"github.com/spf13/cobra"

	"siteclear/internal/siteclear"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Interactive cache menu (production builds only offer clearing events)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		// The coordinator already confirms reloads through s.prompt.
		m := siteclear.NewMenu(s.svc.Coordinator(), s.prompt, s.confirmAction, cmd.OutOrStdout(), s.svc.Config().Production())
		return m.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(menuCmd)
}
