package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type contactPayload struct {
	Number   string `json:"number" validate:"required,phone"`
	Email    string `json:"email" validate:"omitempty,email"`
	Opens    string `json:"opens" validate:"omitempty,clock"`
	Timezone string `json:"time_zone,omitempty" validate:"omitempty,timezone"`
}

func TestValidateStructSuccess(t *testing.T) {
	err := ValidateStruct(contactPayload{
		Number:   "+55 (11) 99999-0000",
		Email:    "ana@example.com",
		Opens:    "09:30",
		Timezone: "America/Sao_Paulo",
	})
	require.NoError(t, err)
}

func TestValidateStructReportsEveryFailure(t *testing.T) {
	err := ValidateStruct(contactPayload{Number: "abc", Email: "invalid", Opens: "25:00", Timezone: "Mars/Olympus"})

	var failures ValidationErrors
	require.ErrorAs(t, err, &failures)
	require.Len(t, failures, 4)

	byField := map[string]ValidationError{}
	for _, failure := range failures {
		byField[failure.Field] = failure
	}
	require.Equal(t, "phone", byField["number"].Tag)
	require.Equal(t, "email must be a valid email address", byField["email"].Message)
	require.Equal(t, "opens must be a time of day as HH:MM", byField["opens"].Message)
	require.Equal(t, "time zone must be an IANA time zone such as America/Sao_Paulo", byField["time_zone"].Message)
	require.Contains(t, err.Error(), "number must be a WhatsApp number")
}

func TestDescribeFallsBackToTag(t *testing.T) {
	require.Equal(t, "age failed validation: gte=18", describe("age", "gte", "18"))
	require.Equal(t, "field is required", describe("", "required", ""))
}

func TestIsTimezone(t *testing.T) {
	require.True(t, IsTimezone("UTC"))
	require.True(t, IsTimezone(" Europe/Lisbon "))
	require.False(t, IsTimezone("Local"))
	require.False(t, IsTimezone(""))
}

func TestNormalizePhone(t *testing.T) {
	require.Equal(t, "15550109999", NormalizePhone(" +1 (555) 010-9999 "))
	require.True(t, IsPhone("+1 (555) 010-9999"))
	require.False(t, IsPhone("12345"))
}

func TestValidateVar(t *testing.T) {
	require.NoError(t, ValidateVar("ana@example.com", "email"))
	require.Error(t, ValidateVar("not-an-email", "email"))
}
