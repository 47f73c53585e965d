// Package pages holds the Playwright page objects of the OrangeHRM UI. Every
// action ends on an assertion so a returned nil means the UI reached the
// expected state.
package pages

import (
	"fmt"
	"regexp"

	"github.com/playwright-community/playwright-go"
)

// BasePage carries the page and the assertion helper shared by page objects.
type BasePage struct {
	page   playwright.Page
	expect playwright.PlaywrightAssertions
}

// NewBasePage wraps page.
func NewBasePage(page playwright.Page) BasePage {
	return BasePage{page: page, expect: playwright.NewPlaywrightAssertions()}
}

// Page returns the underlying Playwright page.
func (b *BasePage) Page() playwright.Page {
	return b.page
}

// Wait pauses for ms milliseconds.
func (b *BasePage) Wait(ms int) {
	b.page.WaitForTimeout(float64(ms))
}

// inputGroup is the input of the OrangeHRM form group labelled exactly label.
func (b *BasePage) inputGroup(label string) playwright.Locator {
	return b.page.Locator(".oxd-input-group").
		Filter(playwright.LocatorFilterOptions{HasText: regexp.MustCompile("^" + regexp.QuoteMeta(label) + "$")}).
		Locator("input")
}

func (b *BasePage) link(name string) playwright.Locator {
	return b.page.GetByRole(*playwright.AriaRoleLink, playwright.PageGetByRoleOptions{Name: name})
}

func (b *BasePage) button(name string) playwright.Locator {
	return b.page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: name})
}

func (b *BasePage) visible(l playwright.Locator, what string) error {
	if err := b.expect.Locator(l).ToBeVisible(); err != nil {
		return fmt.Errorf("%s not visible: %w", what, err)
	}
	return nil
}

func (b *BasePage) toast(message string) error {
	return b.visible(b.page.GetByText(message), "toast "+message)
}

type step struct {
	name string
	fn   func() error
}

// runSteps stops at the first failing step.
func runSteps(op string, steps ...step) error {
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("%s: %s: %w", op, s.name, err)
		}
	}
	return nil
}

func click(l playwright.Locator) func() error {
	return func() error { return l.Click() }
}

func fill(l playwright.Locator, value string) func() error {
	return func() error { return l.Fill(value) }
}
