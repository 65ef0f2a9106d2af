package auth

import (
	"errors"
	"regexp"

	"github.com/Ryan-Har/authgate/pkg/models"
	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func newValidator() *validator.Validate {
	v := validator.New()
	err := v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}
	return v
}

// validateRegistration checks the inputs in order and returns the first failure.
func (s *Service) validateRegistration(username, email, password string) error {
	if err := s.validateUsername(username); err != nil {
		return err
	}
	if err := s.validateEmail(email); err != nil {
		return err
	}
	return s.validatePassword(password)
}

func (s *Service) validateUsername(username string) error {
	err := s.validate.Var(username, "required,min=3,max=30,username")
	switch failedTag(err) {
	case "":
		return nil
	case "username":
		return models.NewValidationError("username", "may only contain letters, digits and underscores")
	default:
		return models.NewValidationError("username", "must be between 3 and 30 characters")
	}
}

func (s *Service) validateEmail(email string) error {
	if email == "" {
		if s.requireEmail {
			return models.NewValidationError("email", "is required")
		}
		return nil
	}
	err := s.validate.Var(email, "max=100,email")
	switch failedTag(err) {
	case "":
		return nil
	case "max":
		return models.NewValidationError("email", "must be at most 100 characters")
	default:
		return models.NewValidationError("email", "must be a valid email address")
	}
}

func (s *Service) validatePassword(password string) error {
	if failedTag(s.validate.Var(password, "min=6,max=100")) != "" {
		return models.NewValidationError("password", "must be between 6 and 100 characters")
	}
	return nil
}

// failedTag returns the first validation tag that failed, or "" when err is nil.
func failedTag(err error) string {
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Tag()
	}
	return "invalid"
}
