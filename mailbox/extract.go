// Package mailbox retrieves one-time passcodes from an email inbox, either
// over IMAP or from a webmail page rendered by the automation browser.
package mailbox

import "regexp"

// Defaults match the subject lines and code shapes providers actually send.
const (
	DefaultSubjectPattern = `(verification code|security code|one-time code|passcode|verification)`
	DefaultCodePattern    = `(\d{4,8})`
)

// CompilePatterns compiles the subject and code patterns, falling back to
// the defaults when a pattern is empty. Subject matching is always
// case-insensitive.
func CompilePatterns(subjectPattern, codePattern string) (subjectRe, codeRe *regexp.Regexp, err error) {
	if subjectPattern == "" {
		subjectPattern = DefaultSubjectPattern
	}
	if codePattern == "" {
		codePattern = DefaultCodePattern
	}
	subjectRe, err = regexp.Compile(`(?i)` + subjectPattern)
	if err != nil {
		return nil, nil, err
	}
	codeRe, err = regexp.Compile(codePattern)
	if err != nil {
		return nil, nil, err
	}
	return subjectRe, codeRe, nil
}

// ExtractCode applies the shared subject+code extraction used by both
// passcode channels: the subject must match subjectRe, and the code is the
// first codeRe match in the body. Webmail scraping passes the page text as
// both subject and body.
func ExtractCode(subjectRe, codeRe *regexp.Regexp, subject, body string) (string, bool) {
	if !subjectRe.MatchString(subject) {
		return "", false
	}
	m := codeRe.FindStringSubmatch(body)
	switch {
	case len(m) > 1:
		return m[1], true
	case len(m) == 1:
		return m[0], true
	default:
		return "", false
	}
}
