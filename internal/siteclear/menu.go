package siteclear

import (
	"context"
	"fmt"
	"io"
	"strings"
)

const menuFailure = "Failed to clear cache. Check the logs for details."

// Menu is the text surface behind the cache keyboard shortcut. Each Run shows
// the menu once and performs the chosen action.
type Menu struct {
	coord      *Coordinator
	prompt     *Prompter
	confirm    ConfirmFunc
	out        io.Writer
	production bool
}

// NewMenu builds a menu. confirm gates the destructive choices and defaults
// to asking through prompt. The coordinator should confirm through the same
// prompter so reload questions read from the same input.
func NewMenu(coord *Coordinator, prompt *Prompter, confirm ConfirmFunc, out io.Writer, production bool) *Menu {
	if confirm == nil {
		confirm = prompt.Confirm
	}
	return &Menu{coord: coord, prompt: prompt, confirm: confirm, out: out, production: production}
}

func (m *Menu) Run(ctx context.Context) error {
	if m.production {
		return m.runProduction()
	}

	fmt.Fprint(m.out, `Cache tools
  1) Clear events cache
  2) Clear app cache (events, cookies, local and session storage)
  3) Clear all caches (also workers and response caches)
  4) Show cache info
`)
	choice, err := m.prompt.ReadLine("Choice: ")
	if err != nil {
		return nil
	}

	switch strings.TrimSpace(choice) {
	case "1":
		return m.report(m.coord.ClearEventsCache(), "Events cache cleared.")
	case "2":
		if !m.confirm("Clear app cache? You will be signed out.") {
			return nil
		}
		return m.report(m.coord.ClearAppCache(), "App cache cleared.")
	case "3":
		if !m.confirm("Clear ALL caches? You will be signed out.") {
			return nil
		}
		return m.report(m.coord.ClearAllCache(ctx), "All caches cleared.")
	case "4":
		info := m.coord.GetCacheInfo()
		fmt.Fprintf(m.out, "Cookies: %d\nLocal storage: %d\nSession storage: %d\n",
			info.Cookies, info.LocalStorage, info.SessionStorage)
		return nil
	case "":
		return nil
	}
	fmt.Fprintf(m.out, "Unknown choice %q\n", choice)
	return nil
}

func (m *Menu) runProduction() error {
	if !m.confirm("Clear events cache?") {
		return nil
	}
	return m.report(m.coord.ClearEventsCache(), "Events cache cleared.")
}

func (m *Menu) report(err error, ok string) error {
	if err != nil {
		m.coord.log.WithError(err).Error("cache menu action failed")
		fmt.Fprintln(m.out, menuFailure)
		return err
	}
	fmt.Fprintln(m.out, ok)
	return nil
}
