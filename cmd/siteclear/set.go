package main

import (
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"siteclear/internal/siteclear"
)

var (
	cookiePath   string
	cookieDomain string
	cookieMaxAge int
	cacheType    string
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Write state into the profile",
}

var setCookieCmd = &cobra.Command{
	Use:   "cookie NAME=VALUE",
	Short: "Set a cookie as the page would",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := parseCookieArg(args[0])
		if err != nil {
			return err
		}
		c.Path = cookiePath
		c.Domain = cookieDomain
		c.MaxAge = cookieMaxAge

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.svc.Cookies().SetCookie(c)
	},
}

var setLocalCmd = &cobra.Command{
	Use:   "local KEY VALUE",
	Short: "Set a local storage item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.svc.LocalStorage().SetItem(args[0], args[1])
	},
}

var setCacheCmd = &cobra.Command{
	Use:   "cache NAME URL",
	Short: "Store a response body read from stdin in a named cache",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ent := siteclear.CacheEntry{
			Status:   http.StatusOK,
			Header:   http.Header{"Content-Type": []string{cacheType}},
			Body:     body,
			StoredAt: time.Now().Unix(),
			Hash32:   crc32.ChecksumIEEE(body),
		}
		return s.svc.ResponseCaches().Put(args[0], args[1], ent)
	},
}

var registerWorkerCmd = &cobra.Command{
	Use:   "register-worker SCOPE SCRIPT",
	Short: "Register a background worker for a scope",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		reg, err := s.svc.Workers().Register(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reg.ID)
		return nil
	},
}

func parseCookieArg(arg string) (*http.Cookie, error) {
	name, value, ok := strings.Cut(arg, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return nil, fmt.Errorf("expected NAME=VALUE, got %q", arg)
	}
	return &http.Cookie{Name: name, Value: strings.TrimSpace(value)}, nil
}

func init() {
	setCookieCmd.Flags().StringVar(&cookiePath, "path", "", "cookie path (default: directory of the profile URL)")
	setCookieCmd.Flags().StringVar(&cookieDomain, "domain", "", "cookie domain (default: host-only)")
	setCookieCmd.Flags().IntVar(&cookieMaxAge, "max-age", 0, "lifetime in seconds; negative deletes")
	setCacheCmd.Flags().StringVar(&cacheType, "content-type", "application/octet-stream", "Content-Type of the stored response")

	setCmd.AddCommand(setCookieCmd, setLocalCmd, setCacheCmd)
	rootCmd.AddCommand(setCmd, registerWorkerCmd)
}
