package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// DefaultPhoneRegion is used to parse phone numbers written without a
// country prefix.
var DefaultPhoneRegion = "NG"

// ValidationFailure carries per field messages. It unwraps to ErrValidation.
type ValidationFailure struct {
	Fields map[string]string
}

func (v *ValidationFailure) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, v.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v *ValidationFailure) Unwrap() error {
	return ErrValidation
}

// validationFailure converts an ozzo error into a ValidationFailure.
func validationFailure(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		fields := make(map[string]string, len(errs))
		for field, ferr := range errs {
			fields[field] = ferr.Error()
		}
		return &ValidationFailure{Fields: fields}
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return internal
	}
	return &ValidationFailure{Fields: map[string]string{"payload": err.Error()}}
}

func fieldFailure(field, msg string) error {
	return &ValidationFailure{Fields: map[string]string{field: msg}}
}

var passwordRules = []validation.Rule{
	validation.Required,
	validation.Length(MinPasswordLength, MaxPasswordLength),
}

// PhoneNumber validates a phone number for region.
func PhoneNumber(region string) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if strings.TrimSpace(s) == "" {
			return nil
		}
		if _, err := NormalizePhone(s, region); err != nil {
			return errors.New("must be a valid phone number")
		}
		return nil
	})
}

// NormalizePhone parses s and formats it as E.164. Empty input is allowed.
func NormalizePhone(s, region string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if region == "" {
		region = DefaultPhoneRegion
	}
	num, err := phonenumbers.Parse(s, region)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number %q", s)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// LoginPayload is the login request body
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will validate the payload
func (p LoginPayload) Validate() error {
	p.Email = NormalizeEmail(p.Email)
	return validationFailure(validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required, validation.Length(1, MaxPasswordLength)),
	))
}

// ProfilePayload is the self-service profile update body
type ProfilePayload struct {
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Phone     string         `json:"phone_number"`
	Profile   map[string]any `json:"profile"`
}

// Validate will validate the payload
func (p ProfilePayload) Validate() error {
	return validationFailure(validation.ValidateStruct(&p,
		validation.Field(&p.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.Phone, PhoneNumber(DefaultPhoneRegion)),
	))
}

// ChangePasswordPayload requires the current password
type ChangePasswordPayload struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Validate will validate the payload
func (p ChangePasswordPayload) Validate() error {
	return validationFailure(validation.ValidateStruct(&p,
		validation.Field(&p.CurrentPassword, validation.Required),
		validation.Field(&p.NewPassword, append(passwordRules,
			validation.By(func(value any) error {
				if s, _ := value.(string); s != "" && s == p.CurrentPassword {
					return errors.New("must differ from the current password")
				}
				return nil
			}),
		)...),
	))
}

// StatusPayload is the actor lifecycle change body
type StatusPayload struct {
	Status ActorStatus `json:"status"`
	Reason string      `json:"reason"`
}

// Validate will validate the payload
func (p StatusPayload) Validate() error {
	return validationFailure(validation.ValidateStruct(&p,
		validation.Field(&p.Status, validation.Required, validation.In(
			ActorStatusPending,
			ActorStatusActive,
			ActorStatusDeactivated,
		)),
		validation.Field(&p.Reason, validation.Length(0, 500)),
	))
}

// PermissionsPayload replaces an actor's explicit permission set
type PermissionsPayload struct {
	Permissions []Grant `json:"permissions"`
}
