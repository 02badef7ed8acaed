package services

import (
	"errors"
	"testing"
	"time"

	"growth-engine/models"

	"github.com/stretchr/testify/require"
)

// recordingIssuer counts issuance calls and can be told to fail
type recordingIssuer struct {
	calls int
	fail  bool
}

func (r *recordingIssuer) IssueCampaignReward(_ *models.Campaign) error {
	r.calls++
	if r.fail {
		return errors.New("reward service unavailable")
	}
	return nil
}

func newTestCampaigns(t *testing.T, issuer RewardIssuer) *CampaignTracker {
	t.Helper()
	tracker := NewCampaignTracker(newTestDB(t), issuer)
	tracker.now = fixedClock(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))
	return tracker
}

func activeSpec() CampaignSpec {
	return CampaignSpec{
		Name:         "Summer Invite Drive",
		TargetMetric: MetricInvitesAccepted,
		TargetValue:  3,
		StartAt:      time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		EndAt:        time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateValidatesAndSlugsCampaign(t *testing.T) {
	tracker := newTestCampaigns(t, NoopRewardIssuer{})

	campaign, err := tracker.Create(activeSpec())
	require.NoError(t, err)
	require.Equal(t, "summer-invite-drive", campaign.Slug)
	require.Equal(t, models.CampaignStatusActive, campaign.Status)

	future := activeSpec()
	future.Name = "Autumn Drive"
	future.StartAt = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	future.EndAt = time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	scheduled, err := tracker.Create(future)
	require.NoError(t, err)
	require.Equal(t, models.CampaignStatusScheduled, scheduled.Status)

	var validationErr *ValidationError
	bad := activeSpec()
	bad.TargetMetric = "bogus"
	_, err = tracker.Create(bad)
	require.ErrorAs(t, err, &validationErr)

	bad = activeSpec()
	bad.EndAt = bad.StartAt
	_, err = tracker.Create(bad)
	require.ErrorAs(t, err, &validationErr)
}

func TestRecordProgressAccruesWhileActive(t *testing.T) {
	tracker := newTestCampaigns(t, NoopRewardIssuer{})
	campaign, err := tracker.Create(activeSpec())
	require.NoError(t, err)

	require.NoError(t, tracker.RecordProgress(campaign.ID, "u1", 1, "k1"))
	require.NoError(t, tracker.RecordProgress(campaign.ID, "u2", 1, "k2"))

	got, err := tracker.GetProgress(campaign.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, got.CurrentValue)
	require.EqualValues(t, 2, got.ParticipantCount)
}

func TestRecordProgressIsIdempotentPerKey(t *testing.T) {
	tracker := newTestCampaigns(t, NoopRewardIssuer{})
	campaign, err := tracker.Create(activeSpec())
	require.NoError(t, err)

	require.NoError(t, tracker.RecordProgress(campaign.ID, "u1", 1, "k1"))
	require.NoError(t, tracker.RecordProgress(campaign.ID, "u1", 1, "k1"))

	got, err := tracker.GetProgress(campaign.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, got.CurrentValue)
}

func TestRepeatParticipationDoesNotGrowTheSet(t *testing.T) {
	tracker := newTestCampaigns(t, NoopRewardIssuer{})
	campaign, err := tracker.Create(activeSpec())
	require.NoError(t, err)

	require.NoError(t, tracker.RecordProgress(campaign.ID, "u1", 1, "k1"))
	require.NoError(t, tracker.RecordProgress(campaign.ID, "u1", 1, "k2"))

	got, err := tracker.GetProgress(campaign.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, got.CurrentValue)
	require.EqualValues(t, 1, got.ParticipantCount)
}

func TestProgressFrozenAfterCompletion(t *testing.T) {
	issuer := &recordingIssuer{}
	tracker := newTestCampaigns(t, issuer)
	campaign, err := tracker.Create(activeSpec())
	require.NoError(t, err)

	require.NoError(t, tracker.RecordProgress(campaign.ID, "u1", 1, "k1"))
	require.NoError(t, tracker.RecordProgress(campaign.ID, "u2", 1, "k2"))
	require.NoError(t, tracker.RecordProgress(campaign.ID, "u3", 1, "k3"))

	got, err := tracker.GetProgress(campaign.ID)
	require.NoError(t, err)
	require.Equal(t, models.CampaignStatusCompleted, got.Status)
	require.EqualValues(t, 3, got.CurrentValue)
	require.Equal(t, 1, issuer.calls)

	// late event after completion: logged upstream, never counted here
	require.NoError(t, tracker.RecordProgress(campaign.ID, "u4", 1, "k4"))
	got, err = tracker.GetProgress(campaign.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, got.CurrentValue)
	require.Equal(t, 1, issuer.calls)
}

func TestProgressOutsideWindowIsDropped(t *testing.T) {
	tracker := newTestCampaigns(t, NoopRewardIssuer{})
	campaign, err := tracker.Create(activeSpec())
	require.NoError(t, err)

	tracker.now = fixedClock(time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, tracker.RecordProgress(campaign.ID, "u1", 1, "k1"))

	got, err := tracker.GetProgress(campaign.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, got.CurrentValue)
	// the window closed, so the evaluation completes the campaign
	require.Equal(t, models.CampaignStatusCompleted, got.Status)
}

func TestRecordProgressRejectsNegativeDelta(t *testing.T) {
	tracker := newTestCampaigns(t, NoopRewardIssuer{})
	campaign, err := tracker.Create(activeSpec())
	require.NoError(t, err)

	err = tracker.RecordProgress(campaign.ID, "u1", -1, "k1")
	var invariantErr *InvariantViolationError
	require.ErrorAs(t, err, &invariantErr)
}

func TestSweepActivatesAndCompletes(t *testing.T) {
	tracker := newTestCampaigns(t, NoopRewardIssuer{})

	future := activeSpec()
	future.StartAt = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	future.EndAt = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	scheduled, err := tracker.Create(future)
	require.NoError(t, err)
	require.Equal(t, models.CampaignStatusScheduled, scheduled.Status)

	tracker.now = fixedClock(time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC))
	tracker.SweepTransitions()

	got, err := tracker.GetProgress(scheduled.ID)
	require.NoError(t, err)
	require.Equal(t, models.CampaignStatusActive, got.Status)

	tracker.now = fixedClock(time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC))
	tracker.SweepTransitions()

	got, err = tracker.GetProgress(scheduled.ID)
	require.NoError(t, err)
	require.Equal(t, models.CampaignStatusCompleted, got.Status)
}

func TestRewardRetriedBySweepAfterIssuerFailure(t *testing.T) {
	issuer := &recordingIssuer{fail: true}
	tracker := newTestCampaigns(t, issuer)
	campaign, err := tracker.Create(activeSpec())
	require.NoError(t, err)

	for i, actor := range []string{"u1", "u2", "u3"} {
		require.NoError(t, tracker.RecordProgress(campaign.ID, actor, 1, "k"+string(rune('1'+i))))
	}
	require.Equal(t, 1, issuer.calls)

	got, err := tracker.GetProgress(campaign.ID)
	require.NoError(t, err)
	require.Equal(t, models.CampaignStatusCompleted, got.Status)
	require.False(t, got.RewardIssued)

	issuer.fail = false
	tracker.SweepTransitions()

	got, err = tracker.GetProgress(campaign.ID)
	require.NoError(t, err)
	require.True(t, got.RewardIssued)
	require.Equal(t, 2, issuer.calls)
}

func TestUpdateOnlyAllowsCancellation(t *testing.T) {
	tracker := newTestCampaigns(t, NoopRewardIssuer{})
	campaign, err := tracker.Create(activeSpec())
	require.NoError(t, err)

	active := models.CampaignStatusActive
	var validationErr *ValidationError
	_, err = tracker.Update(campaign.ID, CampaignPatch{Status: &active})
	require.ErrorAs(t, err, &validationErr)

	cancelled := models.CampaignStatusCancelled
	got, err := tracker.Update(campaign.ID, CampaignPatch{Status: &cancelled})
	require.NoError(t, err)
	require.Equal(t, models.CampaignStatusCancelled, got.Status)

	_, err = tracker.Update("no-such-campaign", CampaignPatch{Status: &cancelled})
	require.ErrorIs(t, err, ErrNotFound)
}
