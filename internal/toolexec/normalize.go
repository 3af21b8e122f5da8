package toolexec

import (
	"regexp"
	"strings"
)

// spokenDigitWords maps number words an ASR transcript may emit in place of
// digits onto their digit characters. Each whitespace-separated word is
// looked up on its own; multi-word phrases such as "double oh" are not
// recognized.
var spokenDigitWords = map[string]string{
	"zero": "0", "oh": "0",
	"one": "1",
	"two": "2", "to": "2", "too": "2",
	"three": "3",
	"four": "4", "for": "4",
	"five": "5",
	"six": "6",
	"seven": "7",
	"eight": "8", "ate": "8",
	"nine": "9",
}

// phoneFillerPhrases are stripped from a caller's phone number utterance
// before digit extraction.
var phoneFillerPhrases = []string{
	"my number is", "my phone number is", "it's", "it is", "phone number",
	"number is", "you can reach me at",
}

// emailPattern is the conservative syntactic check spec.md requires for a
// normalized email address.
var emailPattern = regexp.MustCompile(`^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)

// NormalizePhone extracts a digit string of at least 10 digits from a
// caller's spoken phone number, stripping filler phrases and translating
// spoken digit words ("two one four" -> "214"). Returns ok=false if fewer
// than 10 digits can be recovered.
func NormalizePhone(raw string) (digits string, ok bool) {
	s := strings.ToLower(raw)
	for _, phrase := range phoneFillerPhrases {
		s = strings.ReplaceAll(s, phrase, " ")
	}

	var b strings.Builder
	for _, word := range strings.Fields(s) {
		word = strings.Trim(word, ".,!?-")
		if d, isDigitWord := spokenDigitWords[word]; isDigitWord {
			b.WriteString(d)
			continue
		}
		for _, r := range word {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
	}

	digits = b.String()
	if len(digits) < 10 {
		return "", false
	}
	return digits, true
}

// NormalizeEmail translates ASR-spoken email separators ("at" -> "@", "dot"
// -> ".") and validates the result against a conservative syntactic
// pattern. Returns ok=false if the result does not match.
func NormalizeEmail(raw string) (email string, ok bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	fields := strings.Fields(s)
	for i, w := range fields {
		switch strings.Trim(w, ".,") {
		case "at":
			fields[i] = "@"
		case "dot":
			fields[i] = "."
		}
	}
	s = strings.Join(fields, "")

	if !emailPattern.MatchString(s) {
		return "", false
	}
	return s, true
}
