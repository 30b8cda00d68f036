package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Code  string `json:"code" validate:"required,referral_code"`
	Count int    `json:"count" validate:"omitempty,min=1,max=100"`
}

func TestReferralCode(t *testing.T) {
	valid := []string{"ABCD", "A1B2C3D4", "abcd1234", "0123456789ABCDEF"}
	for _, c := range valid {
		assert.NoError(t, ReferralCode(c), c)
	}

	invalid := []string{"", "ABC", "ABCD-123", "0123456789ABCDEFG", "ÄBCD", "AB CD"}
	for _, c := range invalid {
		assert.Error(t, ReferralCode(c), c)
	}
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(&sample{Code: "XYZ12345"}))

	err := Struct(&sample{Code: "X", Count: 500})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code referral_code")
	assert.Contains(t, err.Error(), "count max")

	assert.Error(t, Struct(nil))
	assert.Error(t, Struct("not a struct"))
}
