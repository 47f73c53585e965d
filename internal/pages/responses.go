package pages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// ErrNoMatchingResponse is returned when the context ends before a match.
var ErrNoMatchingResponse = errors.New("pages: no matching response")

// ResponseMatch selects a network response. Zero fields match anything.
type ResponseMatch struct {
	URLContains string
	Method      string
	Status      int
}

// Matches reports whether a response with the given attributes is selected.
func (m ResponseMatch) Matches(url, method string, status int) bool {
	if m.URLContains != "" && !strings.Contains(url, m.URLContains) {
		return false
	}
	if m.Method != "" && !strings.EqualFold(m.Method, method) {
		return false
	}
	return m.Status == 0 || m.Status == status
}

func (m ResponseMatch) String() string {
	method := m.Method
	if method == "" {
		method = "*"
	}
	return fmt.Sprintf("%s *%s* %d", method, m.URLContains, m.Status)
}

// ResponseWaiter captures the first page response matching its ResponseMatch.
// Register it before triggering the action. It stops listening after the
// first match, when Wait gives up, or on Stop.
type ResponseWaiter struct {
	page  playwright.Page
	match ResponseMatch
	once  sync.Once
	ch    chan playwright.Response
}

// WaitForResponse starts listening on page for a response selected by m.
func WaitForResponse(page playwright.Page, m ResponseMatch) *ResponseWaiter {
	w := &ResponseWaiter{page: page, match: m, ch: make(chan playwright.Response, 1)}
	subscribe(page, w)
	return w
}

func (w *ResponseWaiter) offer(resp playwright.Response) {
	if !w.match.Matches(resp.URL(), resp.Request().Method(), resp.Status()) {
		return
	}
	w.once.Do(func() {
		w.ch <- resp
		unsubscribe(w.page, w)
	})
}

// Stop detaches the waiter from the page. A response already captured is
// still returned by Wait.
func (w *ResponseWaiter) Stop() {
	unsubscribe(w.page, w)
}

// Wait returns the captured response or ErrNoMatchingResponse when ctx ends.
func (w *ResponseWaiter) Wait(ctx context.Context) (playwright.Response, error) {
	select {
	case resp := <-w.ch:
		return resp, nil
	case <-ctx.Done():
		w.Stop()
		return nil, fmt.Errorf("%w: %s: %w", ErrNoMatchingResponse, w.match, ctx.Err())
	}
}

// One response listener per page fans out to the waiters pending on it. The
// entry is dropped when the page closes.
var (
	hubsMu sync.Mutex
	hubs   = map[playwright.Page]map[*ResponseWaiter]struct{}{}
)

func subscribe(page playwright.Page, w *ResponseWaiter) {
	hubsMu.Lock()
	defer hubsMu.Unlock()
	waiters, ok := hubs[page]
	if !ok {
		waiters = map[*ResponseWaiter]struct{}{}
		hubs[page] = waiters
		page.OnResponse(func(resp playwright.Response) { dispatch(page, resp) })
		page.OnClose(func(playwright.Page) {
			hubsMu.Lock()
			delete(hubs, page)
			hubsMu.Unlock()
		})
	}
	waiters[w] = struct{}{}
}

func unsubscribe(page playwright.Page, w *ResponseWaiter) {
	hubsMu.Lock()
	defer hubsMu.Unlock()
	delete(hubs[page], w)
}

func dispatch(page playwright.Page, resp playwright.Response) {
	hubsMu.Lock()
	pending := make([]*ResponseWaiter, 0, len(hubs[page]))
	for w := range hubs[page] {
		pending = append(pending, w)
	}
	hubsMu.Unlock()

	for _, w := range pending {
		w.offer(resp)
	}
}
