package cards

import "fmt"

// RewardKind discriminates reward payloads.
type RewardKind string

const (
	RewardVP           RewardKind = "vp"
	RewardToken        RewardKind = "token"
	RewardSlot         RewardKind = "slot"
	RewardResource     RewardKind = "resource"
	RewardHealWound    RewardKind = "heal_wound"
	RewardStanceChange RewardKind = "stance_change"
)

// Reward is a payout granted for defeating a threat, clearing a boss
// threshold or buying a card. Only the fields relevant to Kind are set.
type Reward struct {
	Kind     RewardKind
	Amount   int
	Token    TokenType
	Slot     CardKind
	Resource ResourceType
	Stance   Stance
}

// Validate checks that the payload matches the kind.
func (r Reward) Validate() error {
	switch r.Kind {
	case RewardVP, RewardHealWound:
		if r.Amount <= 0 {
			return fmt.Errorf("%s reward needs a positive amount", r.Kind)
		}
	case RewardToken:
		if _, err := ParseToken(string(r.Token)); err != nil {
			return fmt.Errorf("token reward: %w", err)
		}
		if r.Amount <= 0 {
			return fmt.Errorf("token reward needs a positive amount")
		}
	case RewardSlot:
		if r.Slot != KindUpgrade && r.Slot != KindWeapon {
			return fmt.Errorf("slot reward: unknown slot %q", r.Slot)
		}
	case RewardResource:
		if _, err := ParseResource(string(r.Resource)); err != nil {
			return fmt.Errorf("resource reward: %w", err)
		}
		if r.Amount <= 0 {
			return fmt.Errorf("resource reward needs a positive amount")
		}
	case RewardStanceChange:
		if _, err := ParseStance(string(r.Stance)); err != nil {
			return fmt.Errorf("stance reward: %w", err)
		}
	default:
		return fmt.Errorf("unknown reward kind %q", r.Kind)
	}
	return nil
}

func (r Reward) String() string {
	switch r.Kind {
	case RewardToken:
		return fmt.Sprintf("+%d %s token", r.Amount, r.Token)
	case RewardSlot:
		return fmt.Sprintf("+1 %s slot", r.Slot)
	case RewardResource:
		return fmt.Sprintf("+%d %s", r.Amount, r.Resource)
	case RewardStanceChange:
		return fmt.Sprintf("stance -> %s", r.Stance)
	case RewardHealWound:
		return fmt.Sprintf("heal %d", r.Amount)
	default:
		return fmt.Sprintf("+%d VP", r.Amount)
	}
}
