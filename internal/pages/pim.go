package pages

import (
	"regexp"

	"github.com/playwright-community/playwright-go"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/envconfig"
)

// LoginDetails optionally creates an ESS login together with the employee.
type LoginDetails struct {
	Username string
	Password string
}

// PIMPage is the employee management module.
type PIMPage struct {
	BasePage
	messages envconfig.SuccessMessages

	pimMenuLink     playwright.Locator
	addButton       playwright.Locator
	firstNameInput  playwright.Locator
	lastNameInput   playwright.Locator
	employeeIDInput playwright.Locator
	saveButton      playwright.Locator

	loginDetailsSwitch   playwright.Locator
	usernameInput        playwright.Locator
	passwordInput        playwright.Locator
	confirmPasswordInput playwright.Locator

	employeeListTab       playwright.Locator
	searchEmployeeIDInput playwright.Locator
	searchButton          playwright.Locator
	confirmDeleteButton   playwright.Locator

	personalDetailsHeader playwright.Locator
}

var pimURL = regexp.MustCompile(`.*pim`)

// NewPIMPage resolves the PIM locators on page. messages are the toasts
// expected after save, update and delete.
func NewPIMPage(page playwright.Page, messages envconfig.SuccessMessages) *PIMPage {
	p := &PIMPage{BasePage: NewBasePage(page), messages: messages}

	p.pimMenuLink = p.link("PIM")
	p.addButton = p.button("Add")
	p.firstNameInput = page.Locator(`input[name="firstName"]`)
	p.lastNameInput = page.Locator(`input[name="lastName"]`)
	p.employeeIDInput = p.inputGroup("Employee Id")
	p.saveButton = p.button("Save")

	p.loginDetailsSwitch = page.Locator(".oxd-switch-input")
	p.usernameInput = p.inputGroup("Username")
	p.passwordInput = p.inputGroup("Password")
	p.confirmPasswordInput = p.inputGroup("Confirm Password")

	p.employeeListTab = p.link("Employee List")
	// the search form label is not alone in its group, so match by substring
	p.searchEmployeeIDInput = page.Locator(".oxd-input-group").
		Filter(playwright.LocatorFilterOptions{HasText: "Employee Id"}).
		Locator("input")
	p.searchButton = p.button("Search")
	p.confirmDeleteButton = p.button("Yes, Delete")

	p.personalDetailsHeader = page.GetByRole(*playwright.AriaRoleHeading, playwright.PageGetByRoleOptions{Name: "Personal Details"})
	return p
}

// NavigateToPIM opens the PIM module.
func (p *PIMPage) NavigateToPIM() error {
	return runSteps("pim",
		step{"open menu", click(p.pimMenuLink)},
		step{"url", func() error { return p.expect.Page(p.page).ToHaveURL(pimURL) }},
	)
}

// AddEmployee fills the add-employee form and waits for the saved toast.
func (p *PIMPage) AddEmployee(firstName, lastName, id string, login *LoginDetails) error {
	steps := []step{
		{"add", click(p.addButton)},
		{"first name", fill(p.firstNameInput, firstName)},
		{"last name", fill(p.lastNameInput, lastName)},
		// the id is pre-filled
		{"focus employee id", click(p.employeeIDInput)},
		{"employee id", fill(p.employeeIDInput, id)},
	}
	if login != nil {
		steps = append(steps,
			step{"login details", click(p.loginDetailsSwitch)},
			step{"username", fill(p.usernameInput, login.Username)},
			step{"password", fill(p.passwordInput, login.Password)},
			step{"confirm password", fill(p.confirmPasswordInput, login.Password)},
		)
	}
	steps = append(steps,
		step{"save", click(p.saveButton)},
		step{"saved", func() error { return p.toast(p.messages.Saved) }},
	)
	return runSteps("add employee", steps...)
}

// SearchEmployeeByID filters the employee list by id.
func (p *PIMPage) SearchEmployeeByID(id string) error {
	err := runSteps("search employee",
		step{"employee list", click(p.employeeListTab)},
		step{"employee id", fill(p.searchEmployeeIDInput, id)},
		step{"search", click(p.searchButton)},
	)
	if err != nil {
		return err
	}
	// the table re-renders after the search request returns
	p.Wait(1000)
	return nil
}

// VerifyEmployeeExists asserts a row named "first last" is visible.
func (p *PIMPage) VerifyEmployeeExists(firstName, lastName string) error {
	row := p.page.GetByRole(*playwright.AriaRoleRow, playwright.PageGetByRoleOptions{Name: firstName + " " + lastName})
	return p.visible(row, "employee row")
}

func (p *PIMPage) row(id string) playwright.Locator {
	return p.page.GetByRole(*playwright.AriaRoleRow).Filter(playwright.LocatorFilterOptions{HasText: id})
}

// EditEmployee changes the last name of the listed employee id.
func (p *PIMPage) EditEmployee(id, newLastName string) error {
	return runSteps("edit employee",
		step{"edit", click(p.row(id).Locator(".bi-pencil-fill"))},
		step{"personal details", func() error { return p.visible(p.personalDetailsHeader, "personal details heading") }},
		step{"form", func() error { return p.visible(p.page.Locator(".oxd-form"), "form") }},
		step{"last name", fill(p.lastNameInput, newLastName)},
		step{"save", click(p.page.Locator(`.oxd-form-actions button[type="submit"]`).First())},
		step{"updated", func() error { return p.toast(p.messages.Updated) }},
	)
}

// DeleteEmployee searches for id, deletes the row and confirms.
func (p *PIMPage) DeleteEmployee(id string) error {
	if err := runSteps("delete employee", step{"employee list", click(p.employeeListTab)}); err != nil {
		return err
	}
	if err := p.SearchEmployeeByID(id); err != nil {
		return err
	}
	return runSteps("delete employee",
		step{"trash", click(p.row(id).Locator(".bi-trash"))},
		step{"confirm", click(p.confirmDeleteButton)},
		step{"deleted", func() error { return p.toast(p.messages.Deleted) }},
	)
}
