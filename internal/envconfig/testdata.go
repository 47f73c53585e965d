package envconfig

import (
	"bytes"
	"fmt"

	"github.com/spf13/viper"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/generator"
)

// SuccessMessages are the toast texts shown after PIM actions.
type SuccessMessages struct {
	Saved   string `mapstructure:"saved"`
	Updated string `mapstructure:"updated"`
	Deleted string `mapstructure:"deleted"`
}

// Messages groups user-visible messages.
type Messages struct {
	Success SuccessMessages `mapstructure:"success"`
}

// Labels are accessible names used by the page objects.
type Labels struct {
	PIMMenu         string `mapstructure:"pimMenu"`
	EmployeeList    string `mapstructure:"employeeList"`
	PersonalDetails string `mapstructure:"personalDetails"`
	EmployeeID      string `mapstructure:"employeeId"`
}

// Defaults are the fixed parts of generated employees.
type Defaults struct {
	FirstName  string `mapstructure:"firstName"`
	MiddleName string `mapstructure:"middleName"`
}

// RoleValidation names the breadcrumb an admin should see.
type RoleValidation struct {
	Module string `mapstructure:"module"`
	Level  string `mapstructure:"level"`
}

// TestData is everything a suite needs besides the browser.
type TestData struct {
	User           Credentials
	Messages       Messages       `mapstructure:"messages"`
	Labels         Labels         `mapstructure:"labels"`
	Defaults       Defaults       `mapstructure:"defaults"`
	RoleValidation RoleValidation `mapstructure:"roleValidation"`

	employees *generator.EmployeeGenerator
}

// Employee is a generated UI employee.
type Employee struct {
	FirstName string
	LastName  string
	ID        string
}

// LoadTestData combines env credentials with the embedded data file.
func LoadTestData(env *Environment) (*TestData, error) {
	raw, err := files.ReadFile("data.json")
	if err != nil {
		return nil, fmt.Errorf("envconfig: reading data.json: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("envconfig: parsing data.json: %w", err)
	}

	td := &TestData{}
	if err := v.Unmarshal(td); err != nil {
		return nil, fmt.Errorf("envconfig: decoding data.json: %w", err)
	}
	if env != nil {
		td.User = env.Credentials
	}

	td.employees, err = generator.NewEmployeeGenerator(generator.Config{
		FirstName:  td.Defaults.FirstName,
		MiddleName: td.Defaults.MiddleName,
	})
	if err != nil {
		return nil, err
	}
	return td, nil
}

// GenerateEmployee returns {defaults.firstName, User_<n>, n} with n in [0, 100000).
func (td *TestData) GenerateEmployee() Employee {
	rec := td.employees.Next()
	return Employee{
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		ID:        rec.EmployeeID,
	}
}
