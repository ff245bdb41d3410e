package auth

import (
	"bufio"
	_ "embed"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// MinPasswordLength is the shortest password accepted at sign-up and on
// password changes.
const MinPasswordLength = 8

// maxSimilarity is the character-overlap ratio above which a password is
// considered derived from a user attribute.
const maxSimilarity = 0.7

//go:embed common_passwords.txt
var commonPasswordsFile string

var (
	commonOnce      sync.Once
	commonPasswords map[string]struct{}
)

var nonWord = regexp.MustCompile(`\W+`)

// UserAttribute is a piece of user data the password must not resemble,
// e.g. {"Courriel", "jean@example.com"}.
type UserAttribute struct {
	Label string
	Value string
}

// PasswordProblems lists every rule a password breaks. It is an error so
// callers can return it directly; Error joins the messages.
type PasswordProblems []string

func (p PasswordProblems) Error() string {
	return strings.Join(p, " ")
}

// ValidatePassword runs the password rules and returns nil when the
// password is acceptable:
//   - not too similar to any of attrs
//   - at least MinPasswordLength characters
//   - not in the list of common passwords
//   - not entirely numeric
//
// All broken rules are reported, not only the first.
func ValidatePassword(password string, attrs ...UserAttribute) error {
	var problems PasswordProblems

	for _, attr := range attrs {
		if tooSimilar(password, attr.Value) {
			problems = append(problems, "Le mot de passe est trop semblable au champ « "+attr.Label+" ».")
			break
		}
	}
	if len([]rune(password)) < MinPasswordLength {
		problems = append(problems, "Ce mot de passe est trop court. Il doit contenir au minimum 8 caractères.")
	}
	if isCommon(password) {
		problems = append(problems, "Ce mot de passe est trop courant.")
	}
	if isNumeric(password) {
		problems = append(problems, "Ce mot de passe est entièrement numérique.")
	}

	if len(problems) == 0 {
		return nil
	}
	return problems
}

// tooSimilar compares the password with the attribute value and each of its
// word parts ("jean.dupont@example.com" → jean, dupont, example, com).
func tooSimilar(password, value string) bool {
	if value == "" {
		return false
	}
	password = strings.ToLower(password)
	parts := append(nonWord.Split(value, -1), value)
	for _, part := range parts {
		if part == "" {
			continue
		}
		if quickRatio(password, strings.ToLower(part)) >= maxSimilarity {
			return true
		}
	}
	return false
}

// quickRatio is an upper bound of the similarity of a and b: twice the size
// of the multiset intersection of their characters over the total length.
func quickRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}

	avail := make(map[rune]int, len(rb))
	for _, r := range rb {
		avail[r]++
	}
	matches := 0
	for _, r := range ra {
		if avail[r] > 0 {
			avail[r]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(total)
}

func isCommon(password string) bool {
	commonOnce.Do(func() {
		commonPasswords = make(map[string]struct{})
		sc := bufio.NewScanner(strings.NewReader(commonPasswordsFile))
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				commonPasswords[line] = struct{}{}
			}
		}
	})
	_, ok := commonPasswords[strings.ToLower(strings.TrimSpace(password))]
	return ok
}

func isNumeric(password string) bool {
	if password == "" {
		return false
	}
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
