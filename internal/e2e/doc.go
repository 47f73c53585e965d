// Package e2e holds the browser suites that run against a live OrangeHRM
// instance. They are skipped unless HRM_E2E_TEST=1; TEST_ENV and BASE_URL pick
// the target and HEADLESS=false shows the browser.
package e2e
