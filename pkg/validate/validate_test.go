package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tickethub/tickethub/pkg/validate"
)

type resetInput struct {
	Token    string `json:"token"    validate:"required,hex"`
	Password string `json:"password" validate:"required,min=6"`
}

type verifyInput struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp"   validate:"required,digits=6"`
}

type statusInput struct {
	Status string  `json:"status" validate:"required,in=PENDING,CONFIRMED,CANCELLED"`
	UserID string  `json:"userId" validate:"nullable,objectid"`
	Note   *string `json:"note"   validate:"nullable,max=5"`
	Amount float64 `json:"amount" validate:"nullable,min=1"`
}

func TestStruct_Valid(t *testing.T) {
	assert.Empty(t, validate.Struct(resetInput{Token: "a1b2c3", Password: "secret"}))
	assert.Empty(t, validate.Struct(&verifyInput{Email: "a@x.io", OTP: "012345"}))
	assert.Empty(t, validate.Struct(statusInput{Status: "CANCELLED", UserID: "65f1c2a9e4b0a1b2c3d4e5f6"}))
}

func TestStruct_Required(t *testing.T) {
	errs := validate.Struct(resetInput{})
	assert.Equal(t, "The token field is required.", errs["token"])
	assert.Equal(t, "The password field is required.", errs["password"])

	errs = validate.Struct(resetInput{Token: "   ", Password: "secret"})
	assert.Contains(t, errs, "token")
}

func TestStruct_FirstFailingRuleWins(t *testing.T) {
	errs := validate.Struct(resetInput{Token: "zz", Password: "12345"})
	assert.Equal(t, "The token must be hexadecimal.", errs["token"])
	assert.Equal(t, "The password must be at least 6 characters.", errs["password"])
}

func TestStruct_Digits(t *testing.T) {
	for _, otp := range []string{"12345", "1234567", "12a456"} {
		errs := validate.Struct(verifyInput{Email: "a@x.io", OTP: otp})
		assert.Equal(t, "The otp must be 6 digits.", errs["otp"], otp)
	}
}

func TestStruct_Email(t *testing.T) {
	errs := validate.Struct(verifyInput{Email: "not-an-email", OTP: "123456"})
	assert.Contains(t, errs, "email")
}

func TestStruct_InIsCaseSensitive(t *testing.T) {
	errs := validate.Struct(statusInput{Status: "confirmed"})
	assert.Equal(t, "The selected status is invalid.", errs["status"])

	errs = validate.Struct(statusInput{Status: "SHIPPED"})
	assert.Contains(t, errs, "status")
}

func TestStruct_Nullable(t *testing.T) {
	long := "too long"
	errs := validate.Struct(statusInput{Status: "PENDING", UserID: "123", Note: &long, Amount: 0.5})
	assert.Contains(t, errs, "userId")
	assert.Contains(t, errs, "note")
	assert.Contains(t, errs, "amount")
}

func TestHasErrors(t *testing.T) {
	assert.False(t, validate.HasErrors(nil))
	assert.True(t, validate.HasErrors(map[string]string{"a": "b"}))
}
