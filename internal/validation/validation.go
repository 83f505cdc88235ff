// Package validation provides validation functions for GitHub identifiers
// and collaborator events. The handle rules follow GitHub's username
// constraints: letters, numbers and single hyphens, at most 39 characters,
// never starting or ending with a hyphen.
package validation

import (
	"fmt"
	"strings"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/datewindow"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
)

const (
	maxHandleLength   = 39
	maxRepoNameLength = 100
	maxTagLength      = 64
)

// isAlpha returns true if the byte is an ASCII letter.
func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// isNum returns true if the byte is an ASCII digit.
func isNum(b byte) bool {
	return b >= '0' && b <= '9'
}

// isAlphaNum returns true if the byte is an ASCII letter or digit.
func isAlphaNum(b byte) bool {
	return isAlpha(b) || isNum(b)
}

// validateLogin validates GitHub user and organization logins, which share
// one naming scheme.
func validateLogin(value, entityType string) error {
	if value == "" {
		return fmt.Errorf("%s must not be empty", entityType)
	}
	if len(value) > maxHandleLength {
		return fmt.Errorf("%s must be at most %d characters", entityType, maxHandleLength)
	}
	if value[0] == '-' || value[len(value)-1] == '-' {
		return fmt.Errorf("%s must not start or end with a hyphen", entityType)
	}
	if strings.Contains(value, "--") {
		return fmt.Errorf("%s must not contain consecutive hyphens", entityType)
	}
	for _, b := range []byte(value) {
		if !isAlphaNum(b) && b != '-' {
			return fmt.Errorf("%s can only contain letters, numbers, or hyphens", entityType)
		}
	}
	return nil
}

// ValidateGithubHandle validates a GitHub username.
func ValidateGithubHandle(handle string) error {
	return validateLogin(handle, "GitHub handle")
}

// ValidateOrgName validates a GitHub organization login.
func ValidateOrgName(org string) error {
	return validateLogin(org, "organization")
}

// ValidateRepository validates a full repository name in the form owner/name.
func ValidateRepository(fullName string) error {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok {
		return fmt.Errorf("repository must be in the form owner/name")
	}
	if err := validateLogin(owner, "repository owner"); err != nil {
		return err
	}
	if name == "" || len(name) > maxRepoNameLength {
		return fmt.Errorf("repository name must be 1 to %d characters", maxRepoNameLength)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("repository name %q is reserved", name)
	}
	for _, b := range []byte(name) {
		if !isAlphaNum(b) && b != '-' && b != '_' && b != '.' {
			return fmt.Errorf("repository names can only contain letters, numbers, hyphens, underscores, or dots")
		}
	}
	return nil
}

// ValidateDate validates a calendar date in YYYY-MM-DD form.
func ValidateDate(value string) error {
	if _, err := datewindow.Parse(value); err != nil {
		return fmt.Errorf("date must be in YYYY-MM-DD form")
	}
	return nil
}

// ValidateTag validates a ticket tag identifier.
func ValidateTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("tag must not be empty")
	}
	if len(tag) > maxTagLength {
		return fmt.Errorf("tag must be at most %d characters", maxTagLength)
	}
	if strings.ContainsAny(tag, " \t\r\n") {
		return fmt.Errorf("tag must not contain whitespace")
	}
	return nil
}

// ValidateEvent checks the identifiers on a collaborator event and returns
// all problems found. The actor is not checked: apps act as "name[bot]".
func ValidateEvent(ev *domain.CollaboratorEvent) ValidationErrors {
	var errs ValidationErrors
	check := func(field, value string, fn func(string) error) {
		if err := fn(value); err != nil {
			errs.Add(field, value, err.Error())
		}
	}

	check("subject", ev.Subject, ValidateGithubHandle)
	check("organization", ev.Organization, ValidateOrgName)
	check("repository", ev.Repository, ValidateRepository)
	if !ev.Action.Valid() {
		errs.Add("action", string(ev.Action), "action must be added, removed, or edited")
	}
	return errs
}
