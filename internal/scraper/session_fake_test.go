package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/matchpoint-analytics/matchpoint/internal/browser"
)

// fakeSession serves fixture HTML keyed by URL. WaitReady and Click
// resolve selectors against the current page; afterWait lets a test swap
// the page when a selector wait succeeds, imitating late-rendering
// content.
type fakeSession struct {
	pages     map[string]string
	afterWait map[string]string

	current   string
	navErr    error
	docErr    error
	navCount  int
	closed    bool
	clickLog  []string
	scrolled  bool
	textClick bool
}

func newFakeSession(pages map[string]string) *fakeSession {
	return &fakeSession{pages: pages}
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	f.navCount++
	if f.navErr != nil {
		return f.navErr
	}
	html, ok := f.pages[url]
	if !ok {
		return &browser.SessionError{Op: "navigate", Err: browser.ErrNotFound}
	}
	f.current = html
	return nil
}

func (f *fakeSession) doc() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(f.current))
}

func (f *fakeSession) WaitReady(ctx context.Context, selector string, timeout time.Duration) error {
	doc, err := f.doc()
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		if next, ok := f.afterWait[selector]; ok {
			f.current = next
			return nil
		}
		return browser.ErrTimeout
	}
	return nil
}

func (f *fakeSession) Click(ctx context.Context, selector string) error {
	doc, err := f.doc()
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return browser.ErrNotFound
	}
	f.clickLog = append(f.clickLog, selector)
	return nil
}

func (f *fakeSession) ClickText(ctx context.Context, fragments ...string) (bool, error) {
	if f.textClick {
		f.clickLog = append(f.clickLog, "text:"+strings.Join(fragments, ","))
		return true, nil
	}
	return false, nil
}

func (f *fakeSession) ScrollBottom(ctx context.Context) error {
	f.scrolled = true
	return nil
}

func (f *fakeSession) Document(ctx context.Context) (*goquery.Document, error) {
	if f.docErr != nil {
		return nil, f.docErr
	}
	return f.doc()
}

func (f *fakeSession) Close(ctx context.Context) error {
	f.closed = true
	return nil
}
