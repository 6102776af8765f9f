package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrPathEscapes  = errors.New("path is outside the data directory")

	// letters, digits and _ . @ - so email addresses work as usernames
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@-]{3,50}$`)
)

const MaxPathsPerRun = 100

// SanitizeString trims whitespace and strips NUL and control characters other
// than newline and tab.
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")

	var builder strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) || r == '\n' || r == '\t' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

func ValidateUsername(username string) error {
	username = SanitizeString(username)

	if username == "" {
		return errors.New("username cannot be empty")
	}
	if len(username) < 3 {
		return errors.New("username must be at least 3 characters")
	}
	if len(username) > 50 {
		return errors.New("username must not exceed 50 characters")
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username must contain only letters, numbers, and _ . @ -")
	}
	return nil
}

// ValidatePassword requires 8 to 128 characters with upper, lower, digit and
// special characters.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if len(password) > 128 {
		return errors.New("password must not exceed 128 characters")
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return errors.New("password must contain at least one number")
	}
	if !hasSpecial {
		return errors.New("password must contain at least one special character")
	}
	return nil
}

// ParseCredentials splits "name:password" and validates both halves. The
// password may itself contain colons.
func ParseCredentials(credentials string) (string, string, error) {
	username, password, ok := strings.Cut(credentials, ":")
	if !ok {
		return "", "", fmt.Errorf("%w: expected name:password", ErrInvalidInput)
	}

	username = SanitizeString(username)
	if err := ValidateUsername(username); err != nil {
		return "", "", err
	}
	if err := ValidatePassword(password); err != nil {
		return "", "", err
	}
	return username, password, nil
}

func ValidateRunID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: run id must be a UUID", ErrInvalidInput)
	}
	return nil
}

// SanitizePaths resolves user-supplied capture paths against dataDir and
// rejects any that would land outside it. Relative paths are taken relative
// to dataDir; absolute paths must already be inside it.
func SanitizePaths(dataDir string, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: at least one path is required", ErrInvalidInput)
	}
	if len(paths) > MaxPathsPerRun {
		return nil, fmt.Errorf("%w: at most %d paths per run", ErrInvalidInput, MaxPathsPerRun)
	}

	root, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = SanitizeString(p)
		if p == "" {
			return nil, fmt.Errorf("%w: empty path", ErrInvalidInput)
		}

		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		p = filepath.Clean(p)

		rel, err := filepath.Rel(root, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("%w: %s", ErrPathEscapes, p)
		}
		out = append(out, p)
	}
	return out, nil
}
