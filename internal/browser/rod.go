package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RodConfig configures a Chrome session.
type RodConfig struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty = launch a local Chrome.
	RemoteURL string

	Headless bool

	// DownloadDir receives files produced by export buttons.
	DownloadDir string

	// DiagnosticsDir receives screenshots. Empty disables capture.
	DiagnosticsDir string

	NavigateTimeout time.Duration
	WindowWidth     int
	WindowHeight    int

	Logger *slog.Logger
}

func (c *RodConfig) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1920
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 1080
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// RodDriver implements Driver on a single stealth Chrome page.
type RodDriver struct {
	cfg     RodConfig
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
}

// LaunchRod starts (or connects to) Chrome, routes downloads to
// cfg.DownloadDir and opens one stealth page.
func LaunchRod(ctx context.Context, cfg RodConfig) (*RodDriver, error) {
	cfg.defaults()
	d := &RodDriver{cfg: cfg}

	wsURL := cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(cfg.Headless).
			Set("disable-blink-features", "AutomationControlled").
			Set("window-size", fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight))
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		d.lnch = l
		cfg.Logger.Info("Launched local chrome", "headless", cfg.Headless)
	} else {
		cfg.Logger.Info("Connecting to remote chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		d.Close()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	d.browser = b

	if cfg.DownloadDir != "" {
		abs, err := filepath.Abs(cfg.DownloadDir)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("browser: download dir: %w", err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			d.Close()
			return nil, fmt.Errorf("browser: create download dir: %w", err)
		}
		err = proto.BrowserSetDownloadBehavior{
			Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
			DownloadPath: abs,
		}.Call(b)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("browser: set download behavior: %w", err)
		}
	}

	page, err := stealth.Page(b)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  cfg.WindowWidth,
		Height: cfg.WindowHeight,
	}); err != nil {
		cfg.Logger.Warn("Set viewport failed", "error", err)
	}
	d.page = page
	return d, nil
}

// Navigate loads url with the configured timeout.
func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, d.cfg.NavigateTimeout)
	defer cancel()

	p := d.page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		// Client-rendered dashboards often never settle; the caller verifies content.
		d.cfg.Logger.Warn("Wait load timeout", "url", url, "error", err)
	}
	return nil
}

// Location returns the page URL.
func (d *RodDriver) Location(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

// EvaluateScript runs js in the page.
func (d *RodDriver) EvaluateScript(ctx context.Context, js string) (any, error) {
	res, err := d.page.Context(ctx).Eval(js)
	if err != nil {
		return nil, fmt.Errorf("browser: eval: %w", err)
	}
	return res.Value.Val(), nil
}

// describeJS is evaluated with `this` bound to each matched element.
const describeJS = `() => {
	var r = this.getBoundingClientRect();
	var attrs = {};
	for (var i = 0; i < this.attributes.length; i++) {
		attrs[this.attributes[i].name] = this.attributes[i].value;
	}
	return {
		tag: this.tagName,
		text: (this.innerText || this.textContent || '').trim(),
		attrs: attrs,
		visible: this.offsetParent !== null || getComputedStyle(this).position === 'fixed',
		enabled: !this.disabled && this.getAttribute('aria-disabled') !== 'true',
		box: {x: r.x, y: r.y, width: r.width, height: r.height}
	};
}`

type elementInfo struct {
	Tag     string            `json:"tag"`
	Text    string            `json:"text"`
	Attrs   map[string]string `json:"attrs"`
	Visible bool              `json:"visible"`
	Enabled bool              `json:"enabled"`
	Box     Rect              `json:"box"`
}

// FindElements queries the page without waiting.
func (d *RodDriver) FindElements(ctx context.Context, selector string) ([]Element, error) {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}

	out := make([]Element, 0, len(els))
	for i, el := range els {
		res, err := el.Context(ctx).Eval(describeJS)
		if err != nil {
			// Detached between query and describe; skip it.
			continue
		}
		var info elementInfo
		if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &info); err != nil {
			continue
		}
		out = append(out, Element{
			Tag:     strings.ToLower(info.Tag),
			Text:    info.Text,
			Attrs:   info.Attrs,
			Visible: info.Visible,
			Enabled: info.Enabled,
			Box:     info.Box,
			Order:   i,
			Handle:  el,
		})
	}
	return out, nil
}

func rodElement(el Element) (*rod.Element, error) {
	h, ok := el.Handle.(*rod.Element)
	if !ok || h == nil {
		return nil, fmt.Errorf("browser: element %s has no rod handle", el.Describe())
	}
	return h, nil
}

// Activate clicks el, falling back to a DOM click when the element is
// covered or not hit-testable.
func (d *RodDriver) Activate(ctx context.Context, el Element) error {
	h, err := rodElement(el)
	if err != nil {
		return err
	}
	h = h.Context(ctx)
	if err := h.ScrollIntoView(); err != nil {
		d.cfg.Logger.Debug("Scroll into view failed", "element", el.Describe(), "error", err)
	}
	if err := h.Click(proto.InputMouseButtonLeft, 1); err == nil {
		return nil
	}
	if _, err := h.Eval(`() => { this.click(); return true; }`); err != nil {
		return fmt.Errorf("browser: click %s: %w", el.Describe(), err)
	}
	return nil
}

// Fill selects any existing text in el and types value over it.
func (d *RodDriver) Fill(ctx context.Context, el Element, value string) error {
	h, err := rodElement(el)
	if err != nil {
		return err
	}
	h = h.Context(ctx)
	if err := h.SelectAllText(); err != nil {
		d.cfg.Logger.Debug("Select all text failed", "element", el.Describe(), "error", err)
	}
	if err := h.Input(value); err != nil {
		return fmt.Errorf("browser: input %s: %w", el.Describe(), err)
	}
	return nil
}

// Viewport returns the window's inner size.
func (d *RodDriver) Viewport(ctx context.Context) (Rect, error) {
	res, err := d.page.Context(ctx).Eval(`() => ({width: window.innerWidth, height: window.innerHeight})`)
	if err != nil {
		return Rect{}, fmt.Errorf("browser: viewport: %w", err)
	}
	return Rect{
		Width:  res.Value.Get("width").Num(),
		Height: res.Value.Get("height").Num(),
	}, nil
}

// Cookies returns cookies visible to the current page.
func (d *RodDriver) Cookies(ctx context.Context) ([]Cookie, error) {
	cs, err := d.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("browser: cookies: %w", err)
	}
	out := make([]Cookie, 0, len(cs))
	for _, c := range cs {
		out = append(out, Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
	}
	return out, nil
}

// CaptureDiagnostic writes a full-page PNG into DiagnosticsDir.
func (d *RodDriver) CaptureDiagnostic(ctx context.Context, name string) (string, error) {
	if d.cfg.DiagnosticsDir == "" {
		return "", nil
	}
	data, err := d.page.Context(ctx).Screenshot(true, nil)
	if err != nil {
		return "", fmt.Errorf("browser: screenshot: %w", err)
	}
	if err := os.MkdirAll(d.cfg.DiagnosticsDir, 0o755); err != nil {
		return "", fmt.Errorf("browser: diagnostics dir: %w", err)
	}
	path := filepath.Join(d.cfg.DiagnosticsDir,
		fmt.Sprintf("%s_%s.png", name, time.Now().Format("20060102-150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("browser: write screenshot: %w", err)
	}
	return path, nil
}

// Close shuts down the page, the browser and any launched process. Safe to
// call more than once.
func (d *RodDriver) Close() error {
	if d.page != nil {
		_ = d.page.Close()
		d.page = nil
	}
	if d.browser != nil {
		_ = d.browser.Close()
		d.browser = nil
	}
	if d.lnch != nil {
		d.lnch.Cleanup()
		d.lnch = nil
	}
	return nil
}
