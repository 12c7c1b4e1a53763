// Package request validates the inputs of each command before any host
// state is read.
package request

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/edvin/lampctl/internal/model"
	"github.com/edvin/lampctl/internal/platform"
)

var validate = validator.New()

// dbIdentRegex limits database and user names to characters that need no
// quoting in SQL.
var dbIdentRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var envNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func init() {
	validate.RegisterValidation("dbident", func(fl validator.FieldLevel) bool {
		return dbIdentRegex.MatchString(fl.Field().String())
	})
	validate.RegisterValidation("envname", func(fl validator.FieldLevel) bool {
		return envNameRegex.MatchString(fl.Field().String())
	})
}

// Validate checks v against its struct tags and returns an Invalid error
// naming every failing field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewInvalid("validation error: %v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return model.NewInvalid("validation error: %s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	name := flagName(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "fqdn":
		return fmt.Sprintf("%s %q is not a valid domain name", name, fe.Value())
	case "dbident":
		return fmt.Sprintf("%s %q may only contain letters, digits and underscores", name, fe.Value())
	case "envname":
		return fmt.Sprintf("%s %q is not a valid environment variable name", name, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", name, fe.Tag())
	}
}

var flagNames = map[string]string{
	"Domain":        "domain",
	"DocRoot":       "--doc-root",
	"DBName":        "--db-name",
	"DBUser":        "--db-user",
	"DBPassword":    "--db-password",
	"DBRootAuth":    "--db-root-auth",
	"DBEngine":      "--db-engine",
	"DBRootPassEnv": "--db-root-pass-env",
	"WaitAptLock":   "--wait-apt-lock",
	"Path":          "path",
}

func flagName(field string) string {
	if n, ok := flagNames[field]; ok {
		return n
	}
	return field
}

// ValidateDocRoot requires docRoot to lie strictly below webRoot.
func ValidateDocRoot(webRoot, docRoot string) error {
	if !platform.IsChildPath(webRoot, docRoot) {
		return model.NewInvalid("--doc-root %s must be inside web root %s", docRoot, webRoot)
	}
	return nil
}
