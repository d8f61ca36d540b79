package portal

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// defaultPhoneRegion seeds phone parsing for numbers entered without a
// country prefix.
const defaultPhoneRegion = "LV"

// backendPhonePattern mirrors the server-side rule so pre-checks never
// reject a value the backend would accept.
var backendPhonePattern = regexp.MustCompile(`^\+?\d{7,15}$`)

// LoginPayload is the body sent to the token endpoint.
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (p LoginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(
			&p.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&p.Password,
			validation.Required,
		),
	)
}

// RegisterPayload is the body sent to the registration endpoint.
type RegisterPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	LastName string `json:"last_name,omitempty"`
	Phone    string `json:"number,omitempty"`
}

// Validate will validate the payload
func (p RegisterPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&p.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&p.Name, validation.Length(0, 100)),
		validation.Field(&p.LastName, validation.Length(0, 100)),
		validation.Field(&p.Phone, validation.By(ValidatePhoneNumber)),
	)
}

// ChangePasswordPayload is the body for the password-change endpoint. The
// server re-validates old-password correctness and new/confirm equality
// independent of these checks.
type ChangePasswordPayload struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will validate the payload
func (p ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.OldPassword, validation.Required),
		validation.Field(&p.NewPassword, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&p.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(p.NewPassword)),
		),
	)
}

// ProfileUpdatePayload patches mutable profile fields. Nil fields are left
// untouched. Role is honored by the backend only for administrators.
type ProfileUpdatePayload struct {
	Name     *string
	LastName *string
	Phone    *string
	Role     *Role
}

func (p ProfileUpdatePayload) wire() map[string]any {
	body := map[string]any{}
	if p.Name != nil {
		body["name"] = *p.Name
	}
	if p.LastName != nil {
		body["last_name"] = *p.LastName
	}
	if p.Phone != nil {
		body["number"] = *p.Phone
	}
	if p.Role != nil {
		body["user_type"] = p.Role.WireValue()
	}
	return body
}

// AdminUserCreatePayload creates an account with an admin-chosen role and
// school affiliation.
type AdminUserCreatePayload struct {
	Email    string
	Password string
	Name     string
	LastName string
	Phone    string
	Role     *Role
	SchoolID *int64
}

// Validate will validate the payload
func (p AdminUserCreatePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&p.Phone, validation.By(ValidatePhoneNumber)),
	)
}

func (p AdminUserCreatePayload) wire() map[string]any {
	body := map[string]any{
		"email":    p.Email,
		"password": p.Password,
	}
	if p.Name != "" {
		body["name"] = p.Name
	}
	if p.LastName != "" {
		body["last_name"] = p.LastName
	}
	if p.Phone != "" {
		body["number"] = p.Phone
	}
	if p.Role != nil {
		body["user_type"] = p.Role.WireValue()
	}
	if p.SchoolID != nil {
		body["skola"] = *p.SchoolID
	}
	return body
}

// AdminUserUpdatePayload patches an account; nil fields are left untouched.
type AdminUserUpdatePayload struct {
	Name     *string
	LastName *string
	Phone    *string
	Role     *Role
	SchoolID *int64
}

func (p AdminUserUpdatePayload) wire() map[string]any {
	body := map[string]any{}
	if p.Name != nil {
		body["name"] = *p.Name
	}
	if p.LastName != nil {
		body["last_name"] = *p.LastName
	}
	if p.Phone != nil {
		body["number"] = *p.Phone
	}
	if p.Role != nil {
		body["user_type"] = p.Role.WireValue()
	}
	if p.SchoolID != nil {
		body["skola"] = *p.SchoolID
	}
	return body
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// ValidatePhoneNumber accepts empty values and otherwise requires the number
// to parse as a real phone number, falling back to the backend's loose
// digit pattern for inputs libphonenumber cannot interpret.
func ValidatePhoneNumber(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}

	if num, err := phonenumbers.Parse(s, defaultPhoneRegion); err == nil {
		if phonenumbers.IsValidNumber(num) {
			return nil
		}
		return errors.New("must be a valid phone number")
	}

	if backendPhonePattern.MatchString(s) {
		return nil
	}

	return errors.New("must be a valid phone number")
}

// localFieldErrors converts client-side ozzo validation errors into the same
// field-error shape the backend reports.
func localFieldErrors(err error) FieldErrors {
	fields := FieldErrors{}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			fields[field] = []string{ferr.Error()}
		}
		return fields
	}

	fields["non_field_errors"] = []string{err.Error()}
	return fields
}
