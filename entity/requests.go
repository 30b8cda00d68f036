package entity

import (
	"errors"
	"net/http"
	"strings"
	"tapearn/lib/validate"
	"time"
)

type ApplyCodeRequest struct {
	ReferralCode string `json:"referral_code" validate:"required,referral_code"`
}

func (a *ApplyCodeRequest) Bind(_ *http.Request) error {
	a.ReferralCode = strings.TrimSpace(a.ReferralCode)
	return validate.Struct(a)
}

// ProfileUpdate carries the player preferences the mini app may change. Telegram
// owned fields (username, names) are refreshed on every login and are not editable.
type ProfileUpdate struct {
	AvatarUrl *string `json:"avatar_url" validate:"omitempty,url,max=512"`
	Language  *string `json:"language" validate:"omitempty,min=2,max=16"`
	Theme     *string `json:"theme" validate:"omitempty,oneof=light dark system"`
}

func (p *ProfileUpdate) Bind(_ *http.Request) error {
	if p.AvatarUrl == nil && p.Language == nil && p.Theme == nil {
		return errors.New("nothing to update")
	}
	if p.AvatarUrl != nil {
		trimmed := strings.TrimSpace(*p.AvatarUrl)
		p.AvatarUrl = &trimmed
	}
	return validate.Struct(p)
}

type TapRequest struct {
	Count int64 `json:"count" validate:"omitempty,min=1,max=100"`
}

func (t *TapRequest) Bind(_ *http.Request) error {
	if t.Count == 0 {
		t.Count = 1
	}
	return validate.Struct(t)
}

type TapResult struct {
	XPGained     int64 `json:"xp_gained"`
	XPBefore     int64 `json:"xp_before"`
	NewTotalXP   int64 `json:"new_total_xp"`
	TotalTaps    int64 `json:"total_taps"`
	ComputePower int64 `json:"compute_power"`
}

type DailyClaimResult struct {
	XPGained      int64     `json:"xp_gained"`
	NewTotalXP    int64     `json:"new_total_xp"`
	CheckInStreak int       `json:"check_in_streak"`
	NextClaimTime time.Time `json:"next_claim_time"`
}

type DailyStatus struct {
	IsClaimable   bool      `json:"is_claimable"`
	NextClaimTime time.Time `json:"next_claim_time"`
	CheckInStreak int       `json:"check_in_streak"`
}
