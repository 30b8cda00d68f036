package referral

import (
	"context"
	"fmt"
	"log/slog"
	"tapearn/entity"
	"tapearn/internal/metrics"
	"tapearn/lib/sl"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type FindingKind string

const (
	FindingOrphaned     FindingKind = "orphaned"
	FindingCircular     FindingKind = "circular"
	FindingInconsistent FindingKind = "inconsistent_reward"
	FindingTierBound    FindingKind = "tier_bound"
)

type Finding struct {
	Kind     FindingKind        `json:"kind"`
	EdgeId   primitive.ObjectID `json:"edge_id"`
	Referrer primitive.ObjectID `json:"referrer"`
	Referred primitive.ObjectID `json:"referred"`
	Tier     int                `json:"tier"`
	Detail   string             `json:"detail"`
}

// Snapshot is the read-only input of an integrity check. Users is optional;
// when set, edges that reference ids not in it are reported as orphaned.
type Snapshot struct {
	Edges []*entity.ReferralEdge
	Users map[primitive.ObjectID]bool
}

type Report struct {
	Edges    int       `json:"edges"`
	Findings []Finding `json:"findings"`
}

func (r *Report) Count(kind FindingKind) int {
	n := 0
	for _, f := range r.Findings {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

func (r *Report) Clean() bool {
	return len(r.Findings) == 0
}

func (r *Report) Summary() string {
	return fmt.Sprintf("edges: %d; orphaned: %d; circular: %d; inconsistent: %d; tier bound: %d",
		r.Edges,
		r.Count(FindingOrphaned),
		r.Count(FindingCircular),
		r.Count(FindingInconsistent),
		r.Count(FindingTierBound),
	)
}

// Inspect checks the referral graph for structural damage. It never mutates the snapshot.
func Inspect(snap Snapshot) *Report {
	report := &Report{Edges: len(snap.Edges)}

	// inactive tier-1 edges stay in the graph: a cycle through them is still damage
	parents := make(map[primitive.ObjectID][]primitive.ObjectID)
	perReferred := make(map[primitive.ObjectID][]*entity.ReferralEdge)
	for _, edge := range snap.Edges {
		if edge == nil {
			continue
		}
		if edge.Tier == 1 && !edge.Referrer.IsZero() && !edge.Referred.IsZero() {
			parents[edge.Referred] = append(parents[edge.Referred], edge.Referrer)
		}
		if edge.IsActive && !edge.Referred.IsZero() {
			perReferred[edge.Referred] = append(perReferred[edge.Referred], edge)
		}
	}

	for _, edge := range snap.Edges {
		if edge == nil {
			continue
		}
		if detail, bad := orphaned(edge, snap.Users); bad {
			report.add(FindingOrphaned, edge, detail)
			continue
		}
		if edge.Referrer == edge.Referred {
			report.add(FindingCircular, edge, "edge references itself")
		} else if closesCycle(edge, parents) {
			report.add(FindingCircular, edge, "referrer chain leads back to the referred user")
		}
		if edge.TotalRewardsDistributed > 0 && edge.LastRewardDate == nil {
			report.add(FindingInconsistent, edge, fmt.Sprintf("%d distributed without last reward date", edge.TotalRewardsDistributed))
		}
	}

	for _, edges := range perReferred {
		if len(edges) > entity.MaxReferralTier {
			report.add(FindingTierBound, edges[0], fmt.Sprintf("%d active edges", len(edges)))
		}
		seen := make(map[int]bool)
		for _, edge := range edges {
			if edge.Tier < 1 || edge.Tier > entity.MaxReferralTier {
				report.add(FindingTierBound, edge, fmt.Sprintf("tier %d out of range", edge.Tier))
				continue
			}
			if seen[edge.Tier] {
				report.add(FindingTierBound, edge, fmt.Sprintf("duplicate tier %d", edge.Tier))
			}
			seen[edge.Tier] = true
		}
	}
	return report
}

func (r *Report) add(kind FindingKind, edge *entity.ReferralEdge, detail string) {
	r.Findings = append(r.Findings, Finding{
		Kind:     kind,
		EdgeId:   edge.Id,
		Referrer: edge.Referrer,
		Referred: edge.Referred,
		Tier:     edge.Tier,
		Detail:   detail,
	})
}

func orphaned(edge *entity.ReferralEdge, users map[primitive.ObjectID]bool) (string, bool) {
	if edge.Referrer.IsZero() {
		return "missing referrer", true
	}
	if edge.Referred.IsZero() {
		return "missing referred", true
	}
	if users == nil {
		return "", false
	}
	if !users[edge.Referrer] {
		return fmt.Sprintf("referrer %s does not exist", edge.Referrer.Hex()), true
	}
	if !users[edge.Referred] {
		return fmt.Sprintf("referred %s does not exist", edge.Referred.Hex()), true
	}
	return "", false
}

// closesCycle reports whether the referrer's tier-1 ancestry reaches the
// referred user, i.e. the edge itself lies on a cycle. Users merely below a
// cycle are not reported.
func closesCycle(edge *entity.ReferralEdge, parents map[primitive.ObjectID][]primitive.ObjectID) bool {
	visited := make(map[primitive.ObjectID]bool)
	stack := []primitive.ObjectID{edge.Referrer}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == edge.Referred {
			return true
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		stack = append(stack, parents[current]...)
	}
	return false
}

// CheckIntegrity loads all edges and users and reports what Inspect finds.
// Findings are logged one per line at warn level with a single error-level
// summary; nothing is repaired.
func (s *Service) CheckIntegrity(ctx context.Context) (*Report, error) {
	edges, err := s.store.AllEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}

	ids := make([]primitive.ObjectID, 0, len(edges)*2)
	for _, edge := range edges {
		if !edge.Referrer.IsZero() {
			ids = append(ids, edge.Referrer)
		}
		if !edge.Referred.IsZero() {
			ids = append(ids, edge.Referred)
		}
	}
	found, err := s.store.UsersByIds(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	users := make(map[primitive.ObjectID]bool, len(found))
	for id := range found {
		users[id] = true
	}

	report := Inspect(Snapshot{Edges: edges, Users: users})

	for _, f := range report.Findings {
		s.log.With(
			slog.String("kind", string(f.Kind)),
			sl.Id("edge", f.EdgeId),
			sl.Id("referrer", f.Referrer),
			sl.Id("referred", f.Referred),
			slog.Int("tier", f.Tier),
		).Warn(f.Detail)
	}
	for _, kind := range []FindingKind{FindingOrphaned, FindingCircular, FindingInconsistent, FindingTierBound} {
		metrics.IntegrityFindingsSet(string(kind), report.Count(kind))
	}
	if report.Clean() {
		s.log.Info("integrity check finished", slog.String("summary", report.Summary()))
	} else {
		s.log.Error("integrity check found damage", slog.String("summary", report.Summary()))
	}
	return report, nil
}
