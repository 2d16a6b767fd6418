package model

// BenefitType classifies a drop reward. Unknown platform values map to BenefitOther.
type BenefitType string

const (
	// BenefitItem is an in-game item entitlement.
	BenefitItem BenefitType = "ITEM"
	// BenefitBadge is a chat badge.
	BenefitBadge BenefitType = "BADGE"
	// BenefitEmote is a chat emote.
	BenefitEmote BenefitType = "EMOTE"
	// BenefitOther covers every distribution type the platform may add.
	BenefitOther BenefitType = "OTHER"
)

// ParseBenefitType maps the platform's distribution type string to a BenefitType.
func ParseBenefitType(s string) BenefitType {
	switch s {
	case "DIRECT_ENTITLEMENT":
		return BenefitItem
	case "BADGE":
		return BenefitBadge
	case "EMOTE":
		return BenefitEmote
	default:
		return BenefitOther
	}
}

// Benefit represents a reward attached to a drop.
type Benefit struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Type     BenefitType `json:"type"`
	ImageURL string      `json:"image_url,omitempty"`
}

// IsBadgeOrEmote reports whether the benefit can be earned without account linking.
func (b *Benefit) IsBadgeOrEmote() bool {
	return b.Type == BenefitBadge || b.Type == BenefitEmote
}
