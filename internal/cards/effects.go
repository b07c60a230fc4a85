package cards

import (
	"fmt"
	"strconv"
	"strings"
)

// EffectKind discriminates parsed card effect tags.
type EffectKind int

const (
	// EffectReduce lowers one resource of a fight cost, optionally only in one era.
	EffectReduce EffectKind = iota
	// EffectVersusType lowers a fight cost against one threat type.
	EffectVersusType
	// EffectStanceReduce lowers the resource matching the player's stance.
	EffectStanceReduce
	// EffectProduction adds resources at round start.
	EffectProduction
	// EffectActiveGain adds resources once per turn when activated.
	EffectActiveGain
	// EffectActiveToken grants a token once per turn when activated.
	EffectActiveToken
	// EffectActiveHeal removes a wound once per turn when activated.
	EffectActiveHeal
	// EffectOnBuyVP grants victory points when bought.
	EffectOnBuyVP
)

var effectKindNames = map[EffectKind]string{
	EffectReduce:       "reduce",
	EffectVersusType:   "vs_type",
	EffectStanceReduce: "stance_reduce",
	EffectProduction:   "production",
	EffectActiveGain:   "active:gain",
	EffectActiveToken:  "active:token",
	EffectActiveHeal:   "active:heal",
	EffectOnBuyVP:      "on_buy:vp",
}

func (k EffectKind) String() string {
	if name, ok := effectKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EFFECT_%d", int(k))
}

// IsActive reports whether the effect has to be activated by the player.
func (k EffectKind) IsActive() bool {
	return k == EffectActiveGain || k == EffectActiveToken || k == EffectActiveHeal
}

// Effect is the typed form of one card tag.
type Effect struct {
	Kind       EffectKind
	Resource   ResourceType
	Amount     int
	Era        Era
	ThreatType ThreatType
	Token      TokenType
	Tag        string
}

// AppliesInEra reports whether the effect is active in era.
func (e Effect) AppliesInEra(era Era) bool {
	return e.Era == EraAny || e.Era == era
}

// ParseEffects parses every tag of a card.
func ParseEffects(tags []string) ([]Effect, error) {
	effects := make([]Effect, 0, len(tags))
	for _, tag := range tags {
		eff, err := ParseEffect(tag)
		if err != nil {
			return nil, err
		}
		effects = append(effects, eff)
	}
	return effects, nil
}

// ParseEffect parses a single tag such as "reduce:RED:1:night".
func ParseEffect(tag string) (Effect, error) {
	parts := strings.Split(strings.TrimSpace(tag), ":")
	eff := Effect{Tag: tag}
	bad := func(reason string) (Effect, error) {
		return Effect{}, fmt.Errorf("effect tag %q: %s", tag, reason)
	}

	switch parts[0] {
	case "reduce":
		if len(parts) != 3 && len(parts) != 4 {
			return bad("expected reduce:<resource>:<n>[:<era>]")
		}
		res, err := ParseResource(parts[1])
		if err != nil {
			return bad(err.Error())
		}
		n, err := positive(parts[2])
		if err != nil {
			return bad(err.Error())
		}
		eff.Kind, eff.Resource, eff.Amount = EffectReduce, res, n
		if len(parts) == 4 {
			switch Era(parts[3]) {
			case EraDay, EraNight:
				eff.Era = Era(parts[3])
			default:
				return bad("unknown era " + parts[3])
			}
		}
	case "vs_type":
		if len(parts) != 4 {
			return bad("expected vs_type:<threat type>:<resource>:<n>")
		}
		tt, err := ParseThreatType(parts[1])
		if err != nil {
			return bad(err.Error())
		}
		res, err := ParseResource(parts[2])
		if err != nil {
			return bad(err.Error())
		}
		n, err := positive(parts[3])
		if err != nil {
			return bad(err.Error())
		}
		eff.Kind, eff.ThreatType, eff.Resource, eff.Amount = EffectVersusType, tt, res, n
	case "stance_reduce":
		if len(parts) != 2 {
			return bad("expected stance_reduce:<n>")
		}
		n, err := positive(parts[1])
		if err != nil {
			return bad(err.Error())
		}
		eff.Kind, eff.Amount = EffectStanceReduce, n
	case "production":
		if len(parts) != 3 {
			return bad("expected production:<resource>:<n>")
		}
		res, err := ParseResource(parts[1])
		if err != nil {
			return bad(err.Error())
		}
		n, err := positive(parts[2])
		if err != nil {
			return bad(err.Error())
		}
		eff.Kind, eff.Resource, eff.Amount = EffectProduction, res, n
	case "active":
		if len(parts) < 2 {
			return bad("missing active effect")
		}
		switch parts[1] {
		case "gain":
			if len(parts) != 4 {
				return bad("expected active:gain:<resource>:<n>")
			}
			res, err := ParseResource(parts[2])
			if err != nil {
				return bad(err.Error())
			}
			n, err := positive(parts[3])
			if err != nil {
				return bad(err.Error())
			}
			eff.Kind, eff.Resource, eff.Amount = EffectActiveGain, res, n
		case "token":
			if len(parts) != 3 {
				return bad("expected active:token:<token>")
			}
			tok, err := ParseToken(parts[2])
			if err != nil {
				return bad(err.Error())
			}
			eff.Kind, eff.Token, eff.Amount = EffectActiveToken, tok, 1
		case "heal":
			eff.Kind, eff.Amount = EffectActiveHeal, 1
		default:
			return bad("unknown active effect " + parts[1])
		}
	case "on_buy":
		if len(parts) != 3 || parts[1] != "vp" {
			return bad("expected on_buy:vp:<n>")
		}
		n, err := positive(parts[2])
		if err != nil {
			return bad(err.Error())
		}
		eff.Kind, eff.Amount = EffectOnBuyVP, n
	default:
		return bad("unknown effect")
	}
	return eff, nil
}

func positive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %d", n)
	}
	return n, nil
}
