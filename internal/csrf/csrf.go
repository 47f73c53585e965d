// Package csrf finds the anti-forgery token OrangeHRM embeds in its pages.
//
// The login page carries it either as a hidden _token input or as a Vue prop
// (:token="&quot;...&quot;"). Application pages may use any of five layouts, so
// extraction walks an ordered list of strategies and stops at the first hit.
package csrf

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy names one way of locating a token.
type Strategy string

const (
	// HiddenInput reads <input name="_token" value="...">.
	HiddenInput Strategy = "hidden-input"
	// MetaTag reads <meta name="csrf-token" content="...">.
	MetaTag Strategy = "meta-tag"
	// EscapedJSON matches &quot;_token&quot;:&quot;...&quot; in serialized props.
	EscapedJSON Strategy = "escaped-json"
	// ScriptVariable matches "csrf_token": "..." in inline scripts, case-insensitive.
	ScriptVariable Strategy = "script-variable"
	// VueProp matches :token="&quot;...&quot;".
	VueProp Strategy = "vue-prop"
)

// LoginStrategies is the cascade used on the login page.
var LoginStrategies = []Strategy{HiddenInput, VueProp}

// ActionStrategies is the cascade used on authenticated pages such as pim/addEmployee.
var ActionStrategies = []Strategy{HiddenInput, MetaTag, EscapedJSON, ScriptVariable, VueProp}

var (
	escapedJSONRe    = regexp.MustCompile(`&quot;_token&quot;:&quot;([a-zA-Z0-9_\-]+)&quot;`)
	scriptVariableRe = regexp.MustCompile(`(?i)["']csrf_token["']\s*:\s*["']([^"']+)["']`)
	vuePropRe        = regexp.MustCompile(`:token="&quot;([^&]+)&quot;"`)
)

// Match is a token together with the strategy that found it.
type Match struct {
	Token    string
	Strategy Strategy
}

// Extract runs strategies in order over body and returns the first non-empty
// token. An unparseable document only disables the DOM strategies.
func Extract(body string, strategies ...Strategy) (Match, bool) {
	var doc *goquery.Document
	parsed := false

	for _, s := range strategies {
		var token string
		switch s {
		case HiddenInput, MetaTag:
			if !parsed {
				doc, _ = goquery.NewDocumentFromReader(strings.NewReader(body))
				parsed = true
			}
			if doc == nil {
				continue
			}
			if s == HiddenInput {
				token = doc.Find(`input[name="_token"]`).First().AttrOr("value", "")
			} else {
				token = doc.Find(`meta[name="csrf-token"]`).First().AttrOr("content", "")
			}
		case EscapedJSON:
			token = submatch(escapedJSONRe, body)
		case ScriptVariable:
			token = submatch(scriptVariableRe, body)
		case VueProp:
			token = submatch(vuePropRe, body)
		}
		if token != "" {
			return Match{Token: token, Strategy: s}, true
		}
	}
	return Match{}, false
}

// LoginToken extracts the token of the login form.
func LoginToken(body string) (Match, bool) {
	return Extract(body, LoginStrategies...)
}

// ActionToken extracts the token API calls must echo back.
func ActionToken(body string) (Match, bool) {
	return Extract(body, ActionStrategies...)
}

func submatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return ""
}
