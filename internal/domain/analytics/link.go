package analytics

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AssociationType records how a post was linked to a campaign.
type AssociationType string

const (
	AssociationManual     AssociationType = "manual"
	AssociationAuto       AssociationType = "auto"
	AssociationCorrelated AssociationType = "correlated"
)

// PostCampaignLink is the junction between a post and a campaign, unique on
// (PostID, CampaignID).
type PostCampaignLink struct {
	PostID          uuid.UUID
	CampaignID      string
	AssociationType AssociationType
	Confidence      float64
	CreatedAt       time.Time
}

// PrimaryLinkPolicy decides whether a later correlation pass may replace a
// post's primary campaign.
type PrimaryLinkPolicy string

const (
	// PrimaryFirstWriteWins keeps the first primary campaign ever assigned.
	PrimaryFirstWriteWins PrimaryLinkPolicy = "first_write_wins"
	// PrimaryHighestConfidence replaces the primary when a new link has
	// strictly higher confidence than the current primary link.
	PrimaryHighestConfidence PrimaryLinkPolicy = "highest_confidence"
)

// ParsePrimaryLinkPolicy validates a policy name. Empty selects first write wins.
func ParsePrimaryLinkPolicy(s string) (PrimaryLinkPolicy, error) {
	switch PrimaryLinkPolicy(s) {
	case "", PrimaryFirstWriteWins:
		return PrimaryFirstWriteWins, nil
	case PrimaryHighestConfidence:
		return PrimaryHighestConfidence, nil
	}
	return "", fmt.Errorf("unknown primary link policy %q", s)
}

// ShouldReplacePrimary applies the policy to a candidate link.
func (p PrimaryLinkPolicy) ShouldReplacePrimary(current *PostCampaignLink, candidate PostCampaignLink) bool {
	if current == nil {
		return true
	}
	if p == PrimaryHighestConfidence {
		return candidate.CampaignID != current.CampaignID && candidate.Confidence > current.Confidence
	}
	return false
}
