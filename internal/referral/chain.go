package referral

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AncestorLookup returns a user's referrer. found is false when the user
// itself does not exist; a zero id with found=true means the user has no referrer.
type AncestorLookup interface {
	ReferrerOf(ctx context.Context, userId primitive.ObjectID) (referrer primitive.ObjectID, found bool, err error)
}

type ChainLink struct {
	UserId primitive.ObjectID
	Tier   int
}

// StopReason tells why a chain walk ended.
type StopReason int

const (
	StopNoAncestor StopReason = iota
	StopMissingNode
	StopScanBound
	StopCycle
	StopSelfMatch
)

func (r StopReason) String() string {
	switch r {
	case StopNoAncestor:
		return "no_ancestor"
	case StopMissingNode:
		return "missing_node"
	case StopScanBound:
		return "scan_bound"
	case StopCycle:
		return "cycle"
	case StopSelfMatch:
		return "self_match"
	default:
		return "unknown"
	}
}

// Resolution is the chain materialized for a new user. Truncated is set when
// ancestors exist beyond MaxTier.
type Resolution struct {
	Links     []ChainLink
	Stop      StopReason
	Truncated bool
}

// ChainResolver walks referrer-of-referrer links. Links are emitted up to MaxTier;
// the walk itself may continue up to ScanDepth hops so that a user cannot become
// their own ancestor through a chain longer than MaxTier.
type ChainResolver struct {
	MaxTier   int
	ScanDepth int
}

func NewChainResolver(maxTier, scanDepth int) ChainResolver {
	if maxTier <= 0 {
		maxTier = 3
	}
	if scanDepth < maxTier {
		scanDepth = maxTier
	}
	return ChainResolver{MaxTier: maxTier, ScanDepth: scanDepth}
}

// Resolve materializes the chain for newUser who applies referrer's code.
// Self-referral and cycles fail with ErrValidation; a missing intermediate user
// ends the walk and the partial chain is returned.
func (c ChainResolver) Resolve(ctx context.Context, lookup AncestorLookup, referrer, newUser primitive.ObjectID) (*Resolution, error) {
	if referrer == newUser {
		return &Resolution{Stop: StopSelfMatch}, validationError("cannot use your own referral code")
	}

	res := &Resolution{}
	visited := map[primitive.ObjectID]bool{newUser: true}
	current := referrer
	for depth := 1; ; depth++ {
		if reason, stop := c.checkNode(current, newUser, visited); stop {
			res.Stop = reason
			return res, validationError("referral chain rejected: %s at depth %d", reason, depth)
		}
		visited[current] = true

		next, found, err := lookup.ReferrerOf(ctx, current)
		if err != nil {
			return nil, err
		}
		if !found {
			res.Stop = StopMissingNode
			return res, nil
		}
		if depth <= c.MaxTier {
			res.Links = append(res.Links, ChainLink{UserId: current, Tier: depth})
		} else {
			res.Truncated = true
		}
		if next.IsZero() {
			res.Stop = StopNoAncestor
			return res, nil
		}
		if depth >= c.ScanDepth {
			res.Stop = StopScanBound
			res.Truncated = true
			return res, nil
		}
		current = next
	}
}

// checkNode applies the per-node termination rules that reject the whole chain.
func (c ChainResolver) checkNode(id, newUser primitive.ObjectID, visited map[primitive.ObjectID]bool) (StopReason, bool) {
	if id == newUser {
		return StopSelfMatch, true
	}
	if visited[id] {
		return StopCycle, true
	}
	return 0, false
}
