package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	if _, exists := v[field]; !exists {
		v[field] = message
	}
}

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

type registerRequest struct {
	Email       string `validate:"required,email"`
	Username    string `validate:"required,min=3,max=50,username"`
	DisplayName string `validate:"required,min=2,max=100"`
}

type loginRequest struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type sendRequest struct {
	Content string `validate:"notblank,max=4000"`
	Nonce   string `validate:"omitempty,max=64"`
}

var fieldNames = map[string]string{
	"Email":       "email",
	"Username":    "username",
	"DisplayName": "display_name",
	"Password":    "password",
	"Content":     "content",
	"Nonce":       "nonce",
}

var labels = map[string]string{
	"email":        "Email",
	"username":     "Username",
	"display_name": "Display name",
	"password":     "Password",
	"content":      "Message",
	"nonce":        "Nonce",
}

func ValidateRegister(email, username, displayName, password string) ValidationErrors {
	errs := check(registerRequest{
		Email:       strings.TrimSpace(email),
		Username:    strings.TrimSpace(username),
		DisplayName: strings.TrimSpace(displayName),
	})
	validatePassword(password, errs)
	return errs
}

func ValidateLogin(email, password string) ValidationErrors {
	return check(loginRequest{Email: strings.TrimSpace(email), Password: password})
}

func ValidateSendMessage(content, nonce string) ValidationErrors {
	return check(sendRequest{Content: content, Nonce: nonce})
}

func check(req any) ValidationErrors {
	errs := make(ValidationErrors)
	err := validate.Struct(req)
	if err == nil {
		return errs
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs.Add("request", "Invalid request")
		return errs
	}
	for _, fe := range fieldErrs {
		field := fieldNames[fe.Field()]
		errs.Add(field, message(labels[field], fe))
	}
	return errs
}

func message(label string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return label + " is required"
	case "email":
		return "Invalid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return label + " is too long"
	case "username":
		return "Username can only contain letters, numbers, _ and -"
	default:
		return label + " is invalid"
	}
}

func validatePassword(password string, errs ValidationErrors) {
	if len(password) < 8 {
		errs.Add("password", "Password must be at least 8 characters")
		return
	}

	var hasUpper, hasLower, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}

	missing := []string{}
	if !hasUpper {
		missing = append(missing, "one uppercase letter")
	}
	if !hasLower {
		missing = append(missing, "one lowercase letter")
	}
	if !hasDigit {
		missing = append(missing, "one number")
	}

	if len(missing) > 0 {
		errs.Add("password", fmt.Sprintf("Password must contain at least %s", strings.Join(missing, ", ")))
	}
}
