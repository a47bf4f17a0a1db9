package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodDriver drives a browser through a direct CDP attach using go-rod/rod,
// with the browser connection and page opened up front by AttachRod and
// per-action page operations.
type RodDriver struct {
	browser *rod.Browser
	page    *rod.Page
}

// AttachRod connects to a running Chrome/Chromium debugger at debuggerURL
// and opens a fresh page, per spec.md §4.I's session resolution.
func AttachRod(debuggerURL string) (*RodDriver, error) {
	browser := rod.New().ControlURL(debuggerURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("no reachable debugger: %w", err)
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return &RodDriver{browser: browser, page: page}, nil
}

// LaunchMirroredRod starts a fresh browser process against a mirrored
// profile directory on the given port, per spec.md §4.I.
func LaunchMirroredRod(mirrorDir string, port int) (*RodDriver, error) {
	l := launcher.New().
		Set("user-data-dir", mirrorDir).
		Set("remote-debugging-port", fmt.Sprintf("%d", port)).
		Headless(false)
	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("will not relaunch chrome: %w", err)
	}
	return AttachRod(url)
}

func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	if err := d.page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	_ = d.page.Context(waitCtx).WaitLoad()
	return nil
}

func (d *RodDriver) Click(ctx context.Context, selector string) error {
	el, err := d.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (d *RodDriver) Type(ctx context.Context, selector, value string) error {
	el, err := d.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	return el.Input(value)
}

func (d *RodDriver) Fill(ctx context.Context, selector, value string) error {
	return d.Type(ctx, selector, value)
}

func (d *RodDriver) WaitFor(ctx context.Context, selector string) error {
	el, err := d.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	return el.WaitVisible()
}

func (d *RodDriver) Press(ctx context.Context, key string) error {
	k, ok := keyByName(key)
	if !ok {
		return fmt.Errorf("unknown key %q", key)
	}
	return d.page.Context(ctx).Keyboard.Type(k)
}

func (d *RodDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return d.page.Context(ctx).Screenshot(false, nil)
}

func (d *RodDriver) ExtractText(ctx context.Context, selector string) (string, error) {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return "", fmt.Errorf("query elements: %w", err)
	}
	var lines []string
	for _, el := range els {
		text, _ := el.Text()
		if t := strings.TrimSpace(text); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (d *RodDriver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (d *RodDriver) VisibleText(ctx context.Context) (string, error) {
	res, err := d.page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", err
	}
	return res.Value.String(), nil
}

func (d *RodDriver) Close() error {
	if d.page != nil {
		_ = d.page.Close()
	}
	if d.browser != nil {
		return d.browser.Close()
	}
	return nil
}

func keyByName(name string) (input.Key, bool) {
	switch strings.ToLower(name) {
	case "enter", "return":
		return input.Enter, true
	case "tab":
		return input.Tab, true
	case "escape", "esc":
		return input.Escape, true
	case "backspace":
		return input.Backspace, true
	default:
		return 0, false
	}
}
