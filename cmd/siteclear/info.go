package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cookie, local storage and session storage counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		info := s.svc.Coordinator().GetCacheInfo()
		if infoJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cookies:         %d\nLocal storage:   %d\nSession storage: %d\n",
			info.Cookies, info.LocalStorage, info.SessionStorage)
		return nil
	},
}

func init() {
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "print JSON")
	rootCmd.AddCommand(infoCmd)
}
