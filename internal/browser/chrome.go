package browser

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Options configures a headless Chrome session.
type Options struct {
	Headless    bool
	UserAgent   string
	WindowW     int
	WindowH     int
	NavTimeout  time.Duration
	SettleDelay time.Duration
}

// DefaultOptions mirrors the flags the scraper has always run Chrome with.
func DefaultOptions() Options {
	return Options{
		Headless:    true,
		UserAgent:   "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		WindowW:     1920,
		WindowH:     1080,
		NavTimeout:  30 * time.Second,
		SettleDelay: time.Second,
	}
}

// ChromeSession implements Session on a dedicated chromedp browser context.
type ChromeSession struct {
	opts        Options
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancelCtx   context.CancelFunc
}

var _ Session = (*ChromeSession)(nil)

// NewChrome starts a headless Chrome instance and opens one tab. The
// returned session owns the browser process; Close releases it.
func NewChrome(ctx context.Context, opts Options) (*ChromeSession, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(opts.WindowW, opts.WindowH),
		chromedp.UserAgent(opts.UserAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	// Force the browser process up front so startup failures surface
	// here rather than on the first navigation.
	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, &SessionError{Op: "start", Err: err}
	}

	return &ChromeSession{
		opts:        opts,
		browserCtx:  browserCtx,
		cancelAlloc: cancelAlloc,
		cancelCtx:   cancelCtx,
	}, nil
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := s.bound(ctx, s.opts.NavTimeout)
	defer cancel()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return &SessionError{Op: "navigate", Err: err}
	}
	return nil
}

func (s *ChromeSession) WaitReady(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := s.bound(ctx, timeout)
	defer cancel()

	err := chromedp.Run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return &SessionError{Op: "wait", Err: err}
	}
	return nil
}

func (s *ChromeSession) Click(ctx context.Context, selector string) error {
	clickCtx, cancel := s.bound(ctx, s.opts.NavTimeout)
	defer cancel()

	var clicked bool
	script := `(function(sel) {
		const el = document.querySelector(sel);
		if (!el) { return false; }
		el.scrollIntoView(true);
		el.click();
		return true;
	})(` + jsString(selector) + `)`

	if err := chromedp.Run(clickCtx, chromedp.Evaluate(script, &clicked)); err != nil {
		return &SessionError{Op: "click", Err: err}
	}
	if !clicked {
		return ErrNotFound
	}
	return nil
}

func (s *ChromeSession) ClickText(ctx context.Context, fragments ...string) (bool, error) {
	clickCtx, cancel := s.bound(ctx, s.opts.NavTimeout)
	defer cancel()

	needles := make([]string, len(fragments))
	for i, f := range fragments {
		needles[i] = jsString(f)
	}
	script := `(function(needles) {
		const nodes = document.querySelectorAll('a, span, button');
		for (const el of nodes) {
			const text = (el.textContent || '').trim();
			if (needles.some(n => text.includes(n))) {
				el.scrollIntoView(true);
				el.click();
				return true;
			}
		}
		return false;
	})([` + strings.Join(needles, ",") + `])`

	var clicked bool
	if err := chromedp.Run(clickCtx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, &SessionError{Op: "click-text", Err: err}
	}
	return clicked, nil
}

func (s *ChromeSession) ScrollBottom(ctx context.Context) error {
	scrollCtx, cancel := s.bound(ctx, s.opts.NavTimeout)
	defer cancel()

	err := chromedp.Run(scrollCtx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
	)
	if err != nil {
		return &SessionError{Op: "scroll", Err: err}
	}
	return nil
}

func (s *ChromeSession) Document(ctx context.Context) (*goquery.Document, error) {
	snapCtx, cancel := s.bound(ctx, s.opts.NavTimeout)
	defer cancel()

	var html string
	if err := chromedp.Run(snapCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, &SessionError{Op: "snapshot", Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &SessionError{Op: "parse", Err: err}
	}
	return doc, nil
}

func (s *ChromeSession) Close(_ context.Context) error {
	s.cancelCtx()
	s.cancelAlloc()
	return nil
}

// bound derives a chromedp-compatible context with a deadline, anchored to
// the session's browser context but cancellable through the caller's ctx.
func (s *ChromeSession) bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	boundCtx, cancelTimeout := context.WithTimeout(s.browserCtx, timeout)
	stop := context.AfterFunc(ctx, cancelTimeout)
	return boundCtx, func() {
		stop()
		cancelTimeout()
	}
}

// jsString quotes a Go string as a JS string literal.
func jsString(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`)
	return "'" + r.Replace(v) + "'"
}
