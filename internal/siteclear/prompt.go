package siteclear

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Prompter asks questions on a line-oriented terminal.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// ReadLine prints prompt and returns the trimmed answer. io.EOF is returned
// once input is exhausted and nothing was typed.
func (p *Prompter) ReadLine(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return line, nil
}

// Confirm asks a yes/no question; anything but y or yes is a no.
func (p *Prompter) Confirm(message string) bool {
	ans, err := p.ReadLine(message + " [y/N] ")
	if err != nil {
		fmt.Fprintln(p.out)
		return false
	}
	switch strings.ToLower(ans) {
	case "y", "yes":
		return true
	}
	return false
}

// AlwaysConfirm answers yes without asking.
func AlwaysConfirm(string) bool { return true }

// NeverConfirm answers no without asking.
func NeverConfirm(string) bool { return false }

// ReloaderFunc adapts a function to Reloader.
type ReloaderFunc func(ctx context.Context, hard bool) error

func (f ReloaderFunc) Reload(ctx context.Context, hard bool) error { return f(ctx, hard) }

// HTTPReloader asks a dev server to reload its pages by POSTing to URL.
// A hard reload sends Cache-Control: no-cache.
type HTTPReloader struct {
	URL    string
	Client *http.Client
}

func NewHTTPReloader(url string) *HTTPReloader {
	return &HTTPReloader{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (r *HTTPReloader) Reload(ctx context.Context, hard bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, nil)
	if err != nil {
		return err
	}
	if hard {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("reload %s: unexpected status %d", r.URL, resp.StatusCode)
	}
	return nil
}
