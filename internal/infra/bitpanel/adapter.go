// Package bitpanel drives the BitPanel web panel with a headless browser.
package bitpanel

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"iptv-bot/internal/provisioning"
)

type Config struct {
	PanelURL     string
	Username     string
	Password     string
	Headless     bool
	PlanLabel    string
	PricePlan    string
	ArtifactsDir string
	StepTimeout  time.Duration
}

// Adapter implements provisioning.Adapter. One browser page is reused and every call
// holds the page exclusively.
type Adapter struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	pw       *playwright.Playwright
	browser  playwright.Browser
	page     playwright.Page
	loggedIn bool
}

func New(cfg Config, logger *slog.Logger) *Adapter {
	cfg.PanelURL = strings.TrimRight(cfg.PanelURL, "/")
	return &Adapter{cfg: cfg, logger: logger}
}

// Start launches the browser. Login happens lazily on the first call.
func (a *Adapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	pw, err := playwright.Run()
	if err != nil {
		return errors.Wrap(err, "start playwright")
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(a.cfg.Headless),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-gpu",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return errors.Wrap(err, "launch browser")
	}

	page, err := browser.NewPage()
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return errors.Wrap(err, "open page")
	}
	page.SetDefaultTimeout(float64(a.cfg.StepTimeout.Milliseconds()))

	a.pw, a.browser, a.page = pw, browser, page
	a.logger.Info("BitPanel browser started", "headless", a.cfg.Headless)
	return nil
}

func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			a.logger.Error("Failed to close browser", "error", err)
		}
	}
	if a.pw != nil {
		if err := a.pw.Stop(); err != nil {
			a.logger.Error("Failed to stop playwright", "error", err)
		}
	}
	a.browser, a.pw, a.page = nil, nil, nil
	a.loggedIn = false
}

func (a *Adapter) CreateAccount(ctx context.Context, username string, connections, months int) (provisioning.Snapshot, error) {
	return a.run(ctx, "create", username, func() (provisioning.Snapshot, error) {
		if err := a.click(selAddButton); err != nil {
			return nil, err
		}
		if err := a.page.Locator(selUsernameIn).Fill(username); err != nil {
			return nil, errors.Wrap(err, "fill username")
		}
		if err := a.choose(selPlanDropdown, a.cfg.PlanLabel); err != nil {
			return nil, err
		}
		if err := a.choose(selPriceDrop, a.cfg.PricePlan); err != nil {
			return nil, err
		}
		if err := a.setConnections(connections); err != nil {
			return nil, err
		}
		if err := a.choose(selMonthsDrop, monthsOption(months)); err != nil {
			return nil, err
		}
		if err := a.click(dialogButton("Criar")); err != nil {
			return nil, err
		}
		return a.readInfo()
	})
}

func (a *Adapter) RenewAccount(ctx context.Context, username string, months int) (provisioning.Snapshot, error) {
	return a.run(ctx, "renew", username, func() (provisioning.Snapshot, error) {
		if err := a.openRowMenu(username); err != nil {
			return nil, err
		}
		if err := a.click(selRenewItem); err != nil {
			return nil, err
		}
		if err := a.choose(selPriceDrop, a.cfg.PricePlan); err != nil {
			return nil, err
		}
		if err := a.choose(selMonthsDrop, monthsOption(months)); err != nil {
			return nil, err
		}
		if err := a.click(dialogButton("Renovar")); err != nil {
			return nil, err
		}
		return a.readInfo()
	})
}

func (a *Adapter) FetchSnapshot(ctx context.Context, username string) (provisioning.Snapshot, error) {
	return a.run(ctx, "fetch", username, func() (provisioning.Snapshot, error) {
		if err := a.openRowMenu(username); err != nil {
			return nil, err
		}
		if err := a.click(selInfoItem); err != nil {
			return nil, err
		}
		return a.readInfo()
	})
}

// run holds the page for one operation, makes sure the session is logged in and
// classifies failures. Timeouts and layout failures leave a screenshot and HTML dump.
func (a *Adapter) run(ctx context.Context, op, username string, fn func() (provisioning.Snapshot, error)) (provisioning.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &provisioning.Error{Kind: provisioning.KindTimeout, Op: op, Username: username, Err: err}
	}
	if a.page == nil {
		return nil, &provisioning.Error{Kind: provisioning.KindUnknown, Op: op, Username: username, Err: errors.New("browser not started")}
	}

	snapshot, err := a.withSession(fn)
	if err == nil {
		a.logger.Info("BitPanel operation completed", "op", op, "username", username, "fields", len(snapshot))
		return snapshot, nil
	}
	if errors.Is(err, provisioning.ErrNotFound) {
		return nil, err
	}

	perr := &provisioning.Error{Kind: classify(err), Op: op, Username: username, Err: err}
	if perr.Kind == provisioning.KindAuthFailure {
		a.loggedIn = false
	}
	if perr.Kind == provisioning.KindTimeout || perr.Kind == provisioning.KindUnexpectedLayout {
		perr.Artifact = a.capture(op, username)
	}
	a.logger.Error("BitPanel operation failed", "op", op, "username", username, "kind", perr.Kind, "artifact", perr.Artifact, "error", err)
	return nil, perr
}

// withSession opens the list page, logging in again once when the session has expired.
func (a *Adapter) withSession(fn func() (provisioning.Snapshot, error)) (provisioning.Snapshot, error) {
	if !a.loggedIn {
		if err := a.login(); err != nil {
			return nil, err
		}
	}
	if err := a.openList(); err != nil {
		if !errors.Is(err, errSessionExpired) {
			return nil, err
		}
		a.loggedIn = false
		if err := a.login(); err != nil {
			return nil, err
		}
		if err := a.openList(); err != nil {
			return nil, err
		}
	}
	return fn()
}

var (
	errSessionExpired = errors.New("panel session expired")
	errLoginRejected  = errors.New("panel rejected credentials")
	errLayout         = errors.New("unexpected panel layout")
)

func (a *Adapter) login() error {
	if _, err := a.page.Goto(a.cfg.PanelURL+"/login", playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return errors.Wrap(err, "open login page")
	}
	if err := a.page.Locator(selLoginUsername).Fill(a.cfg.Username); err != nil {
		return errors.Wrap(err, "fill login username")
	}
	if err := a.page.Locator(selLoginPassword).Fill(a.cfg.Password); err != nil {
		return errors.Wrap(err, "fill login password")
	}
	if err := a.page.Locator(selLoginSubmit).Click(); err != nil {
		return errors.Wrap(err, "submit login")
	}
	if err := a.page.WaitForURL(func(u string) bool { return !isLoginURL(u) }); err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return errors.Wrap(errLoginRejected, "still on login page")
		}
		return errors.Wrap(err, "wait for dashboard")
	}

	a.loggedIn = true
	a.logger.Info("Logged in to BitPanel")
	return nil
}

func (a *Adapter) openList() error {
	if _, err := a.page.Goto(a.cfg.PanelURL+"/list", playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return errors.Wrap(err, "open list page")
	}
	if isLoginURL(a.page.URL()) {
		return errSessionExpired
	}
	return nil
}

func (a *Adapter) openRowMenu(username string) error {
	search := a.page.Locator(selSearch)
	if err := search.Fill(username); err != nil {
		return errors.Wrap(err, "fill search")
	}
	if err := search.Press("Enter"); err != nil {
		return errors.Wrap(err, "submit search")
	}

	cell := a.page.Locator(rowCell(username))
	if err := cell.First().WaitFor(); err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return provisioning.ErrNotFound
		}
		return errors.Wrap(err, "wait for search results")
	}
	return a.click(rowMenu(username))
}

func (a *Adapter) click(selector string) error {
	if err := a.page.Locator(selector).First().Click(); err != nil {
		return errors.Wrapf(err, "click %s", selector)
	}
	return nil
}

// choose opens a dropdown and picks the option with the given title.
func (a *Adapter) choose(dropdown, option string) error {
	if err := a.click(dropdown); err != nil {
		return err
	}
	if err := a.click(optionSelector(option)); err != nil {
		return errors.Wrapf(err, "choose %q", option)
	}
	return nil
}

// setConnections moves the connections slider from its current value with arrow keys.
func (a *Adapter) setConnections(connections int) error {
	if err := a.click(selSliderTrack); err != nil {
		return err
	}
	slider := a.page.Locator(selSlider).First()
	raw, err := slider.GetAttribute("aria-valuenow")
	if err != nil {
		return errors.Wrap(err, "read slider value")
	}
	current, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return errors.Wrapf(errLayout, "slider value %q", raw)
	}

	key := "ArrowRight"
	steps := connections - current
	if steps < 0 {
		key, steps = "ArrowLeft", -steps
	}
	for i := 0; i < steps; i++ {
		if err := slider.Press(key); err != nil {
			return errors.Wrap(err, "move slider")
		}
	}
	return nil
}

func (a *Adapter) readInfo() (provisioning.Snapshot, error) {
	lines := a.page.Locator(selInfoLines)
	if err := lines.First().WaitFor(); err != nil {
		return nil, errors.Wrap(err, "wait for account info")
	}
	texts, err := lines.AllInnerTexts()
	if err != nil {
		return nil, errors.Wrap(err, "read account info")
	}
	snapshot := parseInfoLines(texts)
	if len(snapshot) == 0 {
		return nil, errors.Wrap(errLayout, "account info is empty")
	}
	return snapshot, nil
}

// capture stores a screenshot and the page HTML and returns the screenshot path.
func (a *Adapter) capture(op, username string) string {
	if err := os.MkdirAll(a.cfg.ArtifactsDir, 0o755); err != nil {
		a.logger.Error("Failed to create artifacts dir", "error", err)
		return ""
	}

	base := filepath.Join(a.cfg.ArtifactsDir, artifactName(op, username, time.Now()))
	shot := base + ".png"
	if _, err := a.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(shot),
		FullPage: playwright.Bool(true),
	}); err != nil {
		a.logger.Error("Failed to take screenshot", "error", err)
		shot = ""
	}

	if html, err := a.page.Content(); err == nil {
		if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
			a.logger.Error("Failed to write page html", "error", err)
		}
	}

	if shot == "" {
		return base + ".html"
	}
	return shot
}

func artifactName(op, username string, at time.Time) string {
	return strings.Join([]string{
		op,
		username,
		at.UTC().Format("20060102T150405"),
		uuid.NewString()[:8],
	}, "_")
}

func classify(err error) provisioning.Kind {
	switch {
	case errors.Is(err, errLoginRejected):
		return provisioning.KindAuthFailure
	case errors.Is(err, errSessionExpired):
		return provisioning.KindAuthFailure
	case errors.Is(err, errLayout):
		return provisioning.KindUnexpectedLayout
	case errors.Is(err, playwright.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return provisioning.KindTimeout
	default:
		return provisioning.KindUnknown
	}
}

func isLoginURL(u string) bool {
	return strings.Contains(strings.ToLower(u), "/login")
}
