package mailbox

import "testing"

func TestExtractCodeWithDefaults(t *testing.T) {
	subjectRe, codeRe, err := CompilePatterns("", "")
	if err != nil {
		t.Fatalf("compile defaults: %v", err)
	}

	code, ok := ExtractCode(subjectRe, codeRe, "Your verification code", "Use 482193 to sign in")
	if !ok || code != "482193" {
		t.Fatalf("expected 482193, got %q (ok=%v)", code, ok)
	}
}

func TestExtractCodeSubjectMustMatch(t *testing.T) {
	subjectRe, codeRe, _ := CompilePatterns("", "")

	if code, ok := ExtractCode(subjectRe, codeRe, "Weekly newsletter", "Offer code 123456"); ok {
		t.Fatalf("expected no match for unrelated subject, got %q", code)
	}
}

func TestExtractCodeSubjectCaseInsensitive(t *testing.T) {
	subjectRe, codeRe, _ := CompilePatterns("", "")

	code, ok := ExtractCode(subjectRe, codeRe, "YOUR SECURITY CODE", "code: 9081")
	if !ok || code != "9081" {
		t.Fatalf("expected 9081, got %q (ok=%v)", code, ok)
	}
}

func TestExtractCodeCustomPatterns(t *testing.T) {
	subjectRe, codeRe, err := CompilePatterns(`acme login`, `code is (\d{6})`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	code, ok := ExtractCode(subjectRe, codeRe, "Acme login attempt", "Your code is 765432, it expires in 961 seconds")
	if !ok || code != "765432" {
		t.Fatalf("expected 765432, got %q (ok=%v)", code, ok)
	}
}

func TestExtractCodeFirstMatchWins(t *testing.T) {
	subjectRe, codeRe, _ := CompilePatterns("", "")

	code, ok := ExtractCode(subjectRe, codeRe, "passcode", "first 1111 then 2222")
	if !ok || code != "1111" {
		t.Fatalf("expected first code 1111, got %q (ok=%v)", code, ok)
	}
}

func TestExtractCodeTooShort(t *testing.T) {
	subjectRe, codeRe, _ := CompilePatterns("", "")

	if code, ok := ExtractCode(subjectRe, codeRe, "verification", "pin 123"); ok {
		t.Fatalf("expected no match for 3-digit pin, got %q", code)
	}
}

func TestCompilePatternsRejectsBadRegex(t *testing.T) {
	if _, _, err := CompilePatterns("(unclosed", ""); err == nil {
		t.Fatal("expected error for invalid subject pattern")
	}
	if _, _, err := CompilePatterns("", "(unclosed"); err == nil {
		t.Fatal("expected error for invalid code pattern")
	}
}
