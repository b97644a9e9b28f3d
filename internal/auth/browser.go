package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/models"
)

// BrowserStrategy performs login by driving a headless browser through the
// recipe's selector sequence and capturing the resulting session cookies.
type BrowserStrategy struct {
	logger    arbor.ILogger
	headless  bool
	timeout   time.Duration
	userAgent string
}

// NewBrowserStrategy creates the browser-automation login strategy.
func NewBrowserStrategy(logger arbor.ILogger, headless bool, timeout time.Duration, userAgent string) *BrowserStrategy {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &BrowserStrategy{
		logger:    logger,
		headless:  headless,
		timeout:   timeout,
		userAgent: userAgent,
	}
}

// Login drives navigate, fill-username, fill-password, submit, then waits
// for a success signal before capturing cookies from the browser.
func (b *BrowserStrategy) Login(ctx context.Context, recipe *models.LoginRecipe, credentials map[string]string) ([]models.Cookie, error) {
	spec := recipe.Browser
	if spec == nil {
		return nil, fmt.Errorf("recipe %s has no browser spec", recipe.SiteID)
	}

	username := credentials["username"]
	password := credentials["password"]
	if username == "" || password == "" {
		return nil, fmt.Errorf("credentials for %s are missing username or password", recipe.SiteID)
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	defer allocatorCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	defer browserCancel()

	runCtx, runCancel := context.WithTimeout(browserCtx, b.timeout)
	defer runCancel()

	b.logger.Debug().
		Str("site_id", recipe.SiteID).
		Str("login_url", spec.LoginURL).
		Msg("Driving browser login")

	var preSubmitURL string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(spec.LoginURL),
		chromedp.WaitVisible(spec.UsernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(spec.UsernameSelector, username, chromedp.ByQuery),
		chromedp.SendKeys(spec.PasswordSelector, password, chromedp.ByQuery),
		chromedp.Location(&preSubmitURL),
		chromedp.Click(spec.SubmitSelector, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("browser login sequence failed: %w", err)
	}

	if err := b.awaitPostLogin(runCtx, spec, preSubmitURL); err != nil {
		return nil, err
	}

	if spec.SuccessText != "" {
		if err := b.confirmSuccessText(runCtx, spec); err != nil {
			return nil, err
		}
	}

	cookies, err := captureCookies(runCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture cookies after login: %w", err)
	}

	b.logger.Debug().
		Str("site_id", recipe.SiteID).
		Int("cookies", len(cookies)).
		Msg("Browser login captured cookies")
	return cookies, nil
}

// awaitPostLogin confirms the login landed, either by the configured
// post-login element appearing or by the URL changing away from the form.
func (b *BrowserStrategy) awaitPostLogin(ctx context.Context, spec *models.BrowserLoginSpec, preSubmitURL string) error {
	if spec.PostLoginSelector != "" {
		if err := chromedp.Run(ctx, chromedp.WaitVisible(spec.PostLoginSelector, chromedp.ByQuery)); err != nil {
			return fmt.Errorf("post-login element %q never appeared: %w", spec.PostLoginSelector, err)
		}
		return nil
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		var current string
		if err := chromedp.Run(ctx, chromedp.Location(&current)); err != nil {
			return fmt.Errorf("failed to read location after submit: %w", err)
		}
		if current != preSubmitURL {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("login did not navigate away from %s: %w", preSubmitURL, ctx.Err())
		case <-ticker.C:
		}
	}
}

// confirmSuccessText requires the configured text to be present after the
// navigation succeeded. Its absence is a hard failure.
func (b *BrowserStrategy) confirmSuccessText(ctx context.Context, spec *models.BrowserLoginSpec) error {
	selector := spec.SuccessTextSelector
	if selector == "" {
		selector = "body"
	}

	var text string
	if err := chromedp.Run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Text(selector, &text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("success-text element %q not found: %w", selector, err)
	}
	if !strings.Contains(text, spec.SuccessText) {
		return fmt.Errorf("success text %q not found after login", spec.SuccessText)
	}
	return nil
}

func captureCookies(ctx context.Context) ([]models.Cookie, error) {
	var cookies []models.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		browserCookies, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range browserCookies {
			cookie := models.Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
			}
			if c.Expires > 0 {
				cookie.Expires = int64(c.Expires)
			}
			cookies = append(cookies, cookie)
		}
		return nil
	}))
	return cookies, err
}

func (b *BrowserStrategy) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.WindowSize(1920, 1080),
	}
	if b.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.userAgent))
	}
	if b.headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	return opts
}
