package referral

import (
	"context"
	"fmt"
	"sort"
	"tapearn/entity"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GetReferralStats summarizes what userId earned from the users below it.
func (s *Service) GetReferralStats(ctx context.Context, userId primitive.ObjectID) (*entity.ReferralStats, error) {
	user, err := s.store.UserById(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, notFoundError("user %s", userId.Hex())
	}

	direct, err := s.store.DirectEdgesOf(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("direct referrals: %w", err)
	}
	totals, err := s.store.TierTotals(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("tier totals: %w", err)
	}

	ids := make([]primitive.ObjectID, 0, len(direct))
	for _, edge := range direct {
		ids = append(ids, edge.Referred)
	}
	referred, err := s.store.UsersByIds(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("referred users: %w", err)
	}

	stats := &entity.ReferralStats{
		Code:            user.ReferralCode,
		Link:            s.Link(user.ReferralCode),
		TotalReferrals:  len(user.Referrals),
		TotalEarnings:   user.TotalReferralXP,
		Tiers:           make(map[string]entity.TierStats),
		DirectReferrals: make([]entity.DirectReferral, 0, len(direct)),
	}
	for _, total := range totals {
		stats.Tiers[fmt.Sprintf("tier%d", total.Tier)] = entity.TierStats{
			Count:    total.Count,
			Earnings: total.Earnings,
		}
	}

	sort.SliceStable(direct, func(i, j int) bool {
		return direct[i].DateReferred.After(direct[j].DateReferred)
	})
	for _, edge := range direct {
		item := entity.DirectReferral{
			RewardsGenerated: edge.TotalRewardsDistributed,
			JoinedDate:       edge.DateReferred,
		}
		if u, ok := referred[edge.Referred]; ok {
			item.Username = u.Username
			item.LastActive = u.LastTapTime
		}
		stats.DirectReferrals = append(stats.DirectReferrals, item)
	}
	return stats, nil
}

// GetUserReferralRewards lists the rewards userId's activity has paid to each ancestor.
func (s *Service) GetUserReferralRewards(ctx context.Context, userId primitive.ObjectID) (*entity.UserReferralRewards, error) {
	edges, err := s.store.ActiveEdgesOf(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("active edges: %w", err)
	}
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Tier < edges[j].Tier })

	ids := make([]primitive.ObjectID, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.Referrer)
	}
	ancestors, err := s.store.UsersByIds(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("ancestors: %w", err)
	}

	rewards := &entity.UserReferralRewards{
		Rewards: make([]entity.AncestorReward, 0, len(edges)),
	}
	for _, edge := range edges {
		item := entity.AncestorReward{
			Tier:           edge.Tier,
			TotalRewards:   edge.TotalRewardsDistributed,
			StartDate:      edge.DateReferred,
			LastRewardDate: edge.LastRewardDate,
		}
		if u, ok := ancestors[edge.Referrer]; ok {
			item.Referrer = entity.RewardReferrer{Username: u.Username, TelegramId: u.TelegramId}
		}
		rewards.Rewards = append(rewards.Rewards, item)
		rewards.TotalReceived += edge.TotalRewardsDistributed
	}
	return rewards, nil
}
