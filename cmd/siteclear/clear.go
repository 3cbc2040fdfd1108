package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"siteclear/internal/siteclear"
)

var clearOpts siteclear.ClearOptions

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the selected backends",
	Long: `Clear only the backends named by flags. Unflagged backends are left alone.

Examples:
  siteclear clear --events
  siteclear clear --cookies --local
  siteclear clear --browser`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if clearOpts == (siteclear.ClearOptions{}) {
			return errors.New("nothing selected; pass at least one of --events --cookies --local --session --browser")
		}
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.svc.Coordinator().ClearSelective(cmd.Context(), clearOpts); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Selected caches cleared.")
		return nil
	},
}

var clearAppCmd = &cobra.Command{
	Use:   "clear-app",
	Short: "Clear events, cookies, local and session storage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if !s.confirmAction("Clear app cache? You will be signed out.") {
			return nil
		}
		if err := s.svc.Coordinator().ClearAppCache(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "App cache cleared.")
		return nil
	},
}

var clearAllCmd = &cobra.Command{
	Use:   "clear-all",
	Short: "Clear every backend, including workers and response caches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if !s.confirmAction("Clear ALL caches? You will be signed out.") {
			return nil
		}
		if err := s.svc.Coordinator().ClearAllCache(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All caches cleared.")
		return nil
	},
}

func init() {
	f := clearCmd.Flags()
	f.BoolVar(&clearOpts.Events, "events", false, "invalidate the event data cache")
	f.BoolVar(&clearOpts.Cookies, "cookies", false, "expire all readable cookies")
	f.BoolVar(&clearOpts.LocalStorage, "local", false, "clear local storage")
	f.BoolVar(&clearOpts.SessionStorage, "session", false, "clear session storage")
	f.BoolVar(&clearOpts.BrowserCache, "browser", false, "unregister workers and delete response caches")

	rootCmd.AddCommand(clearCmd, clearAppCmd, clearAllCmd)
}
