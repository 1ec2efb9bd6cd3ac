package environment

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

var usernameDisallowed = regexp.MustCompile(`[^a-z0-9 -]`)

// Username returns the local account name in a form that is safe to embed in
// AWS resource names and tags. It never fails; an account name made entirely of
// disallowed characters yields the empty string.
func Username() string {
	name := ""
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	if name == "" {
		name = os.Getenv("USER")
	}
	if name == "" {
		name = os.Getenv("USERNAME")
	}
	return SanitizeUsername(name)
}

// SanitizeUsername lower-cases name and strips every character outside
// [a-z0-9 -].
func SanitizeUsername(name string) string {
	return usernameDisallowed.ReplaceAllString(strings.ToLower(name), "")
}
