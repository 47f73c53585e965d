package hrmapi

// Web routes.
const (
	LoginPath       = "/web/index.php/auth/login"
	ValidatePath    = "/web/index.php/auth/validate"
	AddEmployeePath = "/web/index.php/pim/addEmployee"
	DashboardPath   = "/web/index.php/dashboard/index"
)

// REST routes under api/v2.
const (
	EmployeesPath        = "/web/index.php/api/v2/pim/employees"
	UniqueValidationPath = "/web/index.php/api/v2/core/validation/unique"
)

// SessionCookie is the name of the OrangeHRM session cookie.
const SessionCookie = "orangehrm"

// UniqueEmployeeIDQuery is the query of the "is this employee id free" check.
func UniqueEmployeeIDQuery(id string) map[string]string {
	return map[string]string{
		"value":         id,
		"entityName":    "Employee",
		"attributeName": "employeeId",
	}
}
