package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"siteclear/internal/siteclear"
)

var (
	configPath string
	assumeYes  bool
	noReload   bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "siteclear",
	Short: "Inspect and clear the client-side state of a web origin",
	Long: `siteclear manages the browser profile of one origin: the event data cache,
cookies, local and session storage, background workers and response caches.

The config file is read from --config, $SITECLEAR_CONFIG or the XDG config
directory; built-in defaults apply when none exists.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to siteclear.yaml")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "answer yes to every confirmation")
	rootCmd.PersistentFlags().BoolVar(&noReload, "no-reload", false, "never reload after a full clear")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func loadConfig() (siteclear.Config, error) {
	path := configPath
	explicit := path != ""
	if !explicit {
		path = getenvDefault("SITECLEAR_CONFIG", siteclear.DefaultConfigPath())
		explicit = os.Getenv("SITECLEAR_CONFIG") != ""
	}
	cfg, err := siteclear.LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return siteclear.DefaultConfig(), nil
	}
	return cfg, err
}

func newLogger(cmd *cobra.Command, cfg siteclear.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetLevel(cfg.LogLevel())
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// session bundles what a command needs to talk to the profile.
type session struct {
	svc    *siteclear.Service
	prompt *siteclear.Prompter
	log    *logrus.Logger
}

func (s *session) Close() { s.svc.Close() }

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := newLogger(cmd, cfg)
	prompt := siteclear.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())

	confirm := prompt.Confirm
	switch {
	case noReload:
		confirm = siteclear.NeverConfirm
	case assumeYes:
		confirm = siteclear.AlwaysConfirm
	}

	svc, err := siteclear.NewService(cfg, log, confirm)
	if err != nil {
		return nil, err
	}
	return &session{svc: svc, prompt: prompt, log: log}, nil
}

// confirmAction asks before destructive commands unless --yes was given.
func (s *session) confirmAction(msg string) bool {
	return assumeYes || s.prompt.Confirm(msg)
}

func getenvDefault(name, def string) string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v
}
