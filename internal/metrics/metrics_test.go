package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelpersBeforeSetup(t *testing.T) {
	assert.NotPanics(t, func() {
		RewardDistributedAdd(1, 10)
		IntegrityFindingsSet("orphaned", 1)
		APIRequestAndTime("/api/user/tap", 200, 0.01)
	})
}

func TestExposition(t *testing.T) {
	require.NoError(t, Setup())
	require.NoError(t, Setup())

	RewardDistributedAdd(1, 10)
	RewardDistributedAdd(2, 5)
	DistributionFailureInc("exhausted")
	DistributionRetriesAdd(2)
	ReferralApplyInc("applied")
	CodeIssuedInc()
	IntegrityFindingsSet("circular", 2)
	XPEarnedAdd("tap", 20)
	APIRequestAndTime("/api/user/tap", 200, 0.01)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `tapearn_referral_rewards_xp_total{tier="1"} 10`)
	assert.Contains(t, text, `tapearn_referral_rewards_total{tier="2"} 1`)
	assert.Contains(t, text, `tapearn_referral_distribution_failures_total{reason="exhausted"} 1`)
	assert.Contains(t, text, `tapearn_referral_integrity_findings{kind="circular"} 2`)
	assert.Contains(t, text, `tapearn_xp_earned_total{source="tap"} 20`)
	assert.Contains(t, text, `tapearn_request_count_total{route="/api/user/tap",status="200"} 1`)
}
