// Package cards holds the immutable card records shared by every match:
// threats, market cards, bosses and the rewards they grant.
package cards

import "fmt"

// ResourceType is one of the three resource piles.
type ResourceType string

const (
	Red   ResourceType = "RED"
	Blue  ResourceType = "BLUE"
	Green ResourceType = "GREEN"
)

// Resources lists resource types in their canonical order. Tie-breaks that
// depend on resource order use this slice.
var Resources = []ResourceType{Red, Blue, Green}

// ParseResource validates a resource name.
func ParseResource(s string) (ResourceType, error) {
	switch ResourceType(s) {
	case Red, Blue, Green:
		return ResourceType(s), nil
	}
	return "", fmt.Errorf("unknown resource: %q", s)
}

// TokenType is a kind of token a player can hold.
type TokenType string

const (
	TokenAttack     TokenType = "ATTACK"
	TokenConversion TokenType = "CONVERSION"
	TokenMass       TokenType = "MASS"
	TokenWild       TokenType = "WILD"
	TokenBoss       TokenType = "BOSS"
)

// Tokens lists token types in canonical order.
var Tokens = []TokenType{TokenAttack, TokenConversion, TokenMass, TokenWild, TokenBoss}

// ParseToken validates a token name.
func ParseToken(s string) (TokenType, error) {
	switch TokenType(s) {
	case TokenAttack, TokenConversion, TokenMass, TokenWild, TokenBoss:
		return TokenType(s), nil
	}
	return "", fmt.Errorf("unknown token: %q", s)
}

// Stance is a player's posture.
type Stance string

const (
	Aggressive Stance = "AGGRESSIVE"
	Tactical   Stance = "TACTICAL"
	Hunkered   Stance = "HUNKERED"
	Balanced   Stance = "BALANCED"
)

// Stances is the stance ring used by stance steps.
var Stances = []Stance{Aggressive, Tactical, Hunkered, Balanced}

// ParseStance validates a stance name.
func ParseStance(s string) (Stance, error) {
	switch Stance(s) {
	case Aggressive, Tactical, Hunkered, Balanced:
		return Stance(s), nil
	}
	return "", fmt.Errorf("unknown stance: %q", s)
}

// ThreatType tags how a threat attacks.
type ThreatType string

const (
	Feral   ThreatType = "feral"
	Cunning ThreatType = "cunning"
	Massive ThreatType = "massive"
	Hybrid  ThreatType = "hybrid"
)

// ParseThreatType validates a threat type tag.
func ParseThreatType(s string) (ThreatType, error) {
	switch ThreatType(s) {
	case Feral, Cunning, Massive, Hybrid:
		return ThreatType(s), nil
	}
	return "", fmt.Errorf("unknown threat type: %q", s)
}

// Cost is an amount per resource.
type Cost map[ResourceType]int

// Clone copies c.
func (c Cost) Clone() Cost {
	out := make(Cost, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Total sums every resource amount.
func (c Cost) Total() int {
	total := 0
	for _, v := range c {
		total += v
	}
	return total
}

// Era names the threat deck an effect is bound to.
type Era string

const (
	EraAny   Era = ""
	EraDay   Era = "day"
	EraNight Era = "night"
)

// EraFor maps an era counter (1-based) to its name.
func EraFor(n int) Era {
	if n <= 1 {
		return EraDay
	}
	return EraNight
}

// ThreatCard is the static record of an enemy.
type ThreatCard struct {
	ID            string
	Name          string
	Type          ThreatType
	Cost          Cost
	VP            int
	Spoils        []Reward
	MassReduction int // green removed per MASS token; zero means the default
	Era           Era
}

// CardKind discriminates market cards.
type CardKind string

const (
	KindUpgrade CardKind = "UPGRADE"
	KindWeapon  CardKind = "WEAPON"
)

// MarketCard is a purchasable card. Everything except Uses is immutable.
type MarketCard struct {
	ID      string
	Name    string
	Kind    CardKind
	Cost    Cost
	VP      int
	Tags    []string
	Effects []Effect
	MaxUses int // printed uses of a consumable weapon; zero means unlimited
	Uses    int // remaining uses
}

// Clone copies the card so per-match counters do not leak between matches.
func (c *MarketCard) Clone() *MarketCard {
	out := *c
	return &out
}

// Consumable reports whether the card is destroyed after its uses run out.
func (c *MarketCard) Consumable() bool {
	return c.Kind == KindWeapon && c.MaxUses > 0
}

// EffectsOf returns the card's effects of the given kind.
func (c *MarketCard) EffectsOf(kind EffectKind) []Effect {
	var out []Effect
	for _, eff := range c.Effects {
		if eff.Kind == kind {
			out = append(out, eff)
		}
	}
	return out
}

// Threshold is one independently defeatable boss objective.
type Threshold struct {
	Label   string
	Cost    Cost
	Rewards []Reward
}

// Boss is an ordered list of thresholds.
type Boss struct {
	ID         string
	Name       string
	Era        Era
	Thresholds []Threshold
}
