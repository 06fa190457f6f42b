package infrastructure

import (
	"net/url"
	"strings"
)

// secretFlags take a value that must not appear in logs
var secretFlags = map[string]bool{
	"--cookies":  true,
	"--password": true,
	"--username": true,
}

// ShellEscape quotes s for display in a logged command line.
// exec does not need this; it is for humans copying commands from logs.
func ShellEscape(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsFunc(s, isShellSpecialChar) {
		return s
	}
	// ' becomes '"'"' inside single quotes
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// ShellEscapeCommand builds a copyable command line for logging, with
// credentials masked: cookie paths, login values, proxy passwords and
// Cookie headers.
func ShellEscapeCommand(binary string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, ShellEscape(binary))

	redactNext := false
	for _, arg := range args {
		switch {
		case redactNext:
			arg = "REDACTED"
			redactNext = false
		case secretFlags[arg]:
			redactNext = true
		default:
			arg = redactArg(arg)
		}
		parts = append(parts, ShellEscape(arg))
	}
	return strings.Join(parts, " ")
}

// redactArg masks proxy passwords and cookie header values inside a single argument
func redactArg(arg string) string {
	if strings.HasPrefix(strings.ToLower(arg), "cookie:") {
		return "Cookie:REDACTED"
	}
	if strings.Contains(arg, "://") && strings.Contains(arg, "@") {
		if u, err := url.Parse(arg); err == nil && u.User != nil {
			if _, hasPassword := u.User.Password(); hasPassword {
				u.User = url.UserPassword(u.User.Username(), "xxxxx")
				return u.String()
			}
		}
	}
	return arg
}

// isShellSpecialChar returns true if the character has special meaning in shell
func isShellSpecialChar(c rune) bool {
	switch c {
	case ' ', '\t', '\'', '"', '$', '`', '\\', '!', '*', '?', '[', ']',
		'(', ')', '{', '}', '|', ';', '<', '>', '&', '~', '#', '%', '\n', '\r':
		return true
	default:
		return false
	}
}
