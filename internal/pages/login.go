package pages

import (
	"fmt"

	"github.com/playwright-community/playwright-go"
)

// LoginPage is the OrangeHRM login form and the user dropdown.
type LoginPage struct {
	BasePage

	usernameInput playwright.Locator
	passwordInput playwright.Locator
	loginButton   playwright.Locator
	userDropdown  playwright.Locator
	logoutLink    playwright.Locator
}

// NewLoginPage resolves the login locators on page.
func NewLoginPage(page playwright.Page) *LoginPage {
	p := &LoginPage{BasePage: NewBasePage(page)}
	p.usernameInput = page.Locator("input[name='username']")
	p.passwordInput = page.Locator("input[name='password']")
	p.loginButton = page.Locator("button[type='submit']")
	p.userDropdown = page.Locator(".oxd-userdropdown-name")
	p.logoutLink = page.GetByRole(*playwright.AriaRoleMenuitem, playwright.PageGetByRoleOptions{Name: "Logout"})
	return p
}

// Navigate opens the application root, which redirects to the login form.
func (p *LoginPage) Navigate() error {
	if _, err := p.page.Goto("/"); err != nil {
		return fmt.Errorf("login: navigate: %w", err)
	}
	return nil
}

// Login submits the credentials.
func (p *LoginPage) Login(username, password string) error {
	return runSteps("login",
		step{"username", fill(p.usernameInput, username)},
		step{"password", fill(p.passwordInput, password)},
		step{"submit", click(p.loginButton)},
	)
}

// IsLoggedIn asserts the user dropdown is visible.
func (p *LoginPage) IsLoggedIn() error {
	return p.visible(p.userDropdown, "user dropdown")
}

// Logout signs out and asserts the login form is back.
func (p *LoginPage) Logout() error {
	return runSteps("logout",
		step{"open dropdown", click(p.userDropdown)},
		step{"logout", click(p.logoutLink)},
		step{"login form", func() error { return p.visible(p.usernameInput, "username input") }},
	)
}

// VerifyRoleAccess opens module and checks the breadcrumbs show module and level.
func (p *LoginPage) VerifyRoleAccess(module, level string) error {
	moduleHeader := p.page.Locator(".oxd-topbar-header-breadcrumb-module")
	levelHeader := p.page.Locator(".oxd-topbar-header-breadcrumb-level")
	return runSteps("role access",
		step{"open " + module, click(p.link(module))},
		step{"module breadcrumb", func() error { return p.expect.Locator(moduleHeader).ToHaveText(module) }},
		step{"module breadcrumb", func() error { return p.visible(moduleHeader, "module breadcrumb") }},
		step{"level breadcrumb", func() error { return p.expect.Locator(levelHeader).ToHaveText(level) }},
		step{"level breadcrumb", func() error { return p.visible(levelHeader, "level breadcrumb") }},
	)
}
