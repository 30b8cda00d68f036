package referral

import (
	"context"
	"fmt"
	"strings"
	"tapearn/lib/validate"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultCodeLength   = 8
	DefaultCodeAttempts = 10
)

// CodeGenerator produces candidate referral codes; uniqueness is checked by the registry.
type CodeGenerator func() string

// UUIDCodeGenerator takes the hex digits of a random UUID, upper-cased.
// Lengths the apply step would reject fall back to DefaultCodeLength.
func UUIDCodeGenerator(length int) CodeGenerator {
	if length < validate.ReferralCodeMinLen || length > validate.ReferralCodeMaxLen {
		length = DefaultCodeLength
	}
	return func() string {
		raw := strings.ReplaceAll(uuid.New().String(), "-", "")
		return strings.ToUpper(raw[:length])
	}
}

// CodeRegistry hands out one immutable referral code per user.
type CodeRegistry struct {
	generate    CodeGenerator
	maxAttempts int
}

func NewCodeRegistry(generate CodeGenerator, maxAttempts int) CodeRegistry {
	if generate == nil {
		generate = UUIDCodeGenerator(DefaultCodeLength)
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultCodeAttempts
	}
	return CodeRegistry{generate: generate, maxAttempts: maxAttempts}
}

// Allocate returns the user's code, creating it on first use. Must run inside tx.
func (r CodeRegistry) Allocate(ctx context.Context, tx Tx, userId primitive.ObjectID) (string, error) {
	user, err := tx.UserById(ctx, userId)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", notFoundError("user %s", userId.Hex())
	}
	if user.ReferralCode != "" {
		return user.ReferralCode, nil
	}

	code, err := r.unique(ctx, tx)
	if err != nil {
		return "", err
	}

	stored, err := tx.SetReferralCode(ctx, userId, code)
	if err != nil {
		return "", err
	}
	if !stored {
		// a concurrent allocation won; its code is the one to keep
		user, err = tx.UserById(ctx, userId)
		if err != nil {
			return "", err
		}
		if user == nil || user.ReferralCode == "" {
			return "", fmt.Errorf("%w: referral code for %s changed concurrently", ErrTransient, userId.Hex())
		}
		return user.ReferralCode, nil
	}
	return code, nil
}

func (r CodeRegistry) unique(ctx context.Context, tx Tx) (string, error) {
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		code := r.generate()
		taken, err := tx.ReferralCodeTaken(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: no unique referral code after %d attempts", ErrExhausted, r.maxAttempts)
}
