package planner

import (
	"github.com/threatlanes/threatlanes-server-go/internal/cards"
	"github.com/threatlanes/threatlanes-server-go/internal/game"
)

// LegalActions lists the candidate actions worth searching for playerID.
// Candidates are cheap pre-filters; the rule handlers remain the authority
// and may still refuse one.
func LegalActions(s *game.GameState, playerID string) []game.Action {
	p, ok := s.Players[playerID]
	if !ok || s.Finished() || s.ActivePlayerID() != playerID || !p.Active() {
		return nil
	}
	var out []game.Action
	add := func(t game.ActionType, pl game.ActionPayload) {
		out = append(out, game.Action{Type: t, Payload: pl})
	}

	if !p.ActionUsed {
		switch s.Phase {
		case game.PhasePlayerTurn:
			for _, pl := range fightCandidates(s, p) {
				add(game.ActionFight, pl)
			}
		case game.PhaseBoss:
			for _, pl := range thresholdCandidates(s, p) {
				add(game.ActionFight, pl)
			}
		}
	}

	if !p.BuyUsed {
		for _, kind := range []cards.CardKind{cards.KindUpgrade, cards.KindWeapon} {
			owned, slots := len(p.Upgrades), p.UpgradeSlots
			t := game.ActionBuyUpgrade
			if kind == cards.KindWeapon {
				owned, slots = len(p.Weapons), p.WeaponSlots
				t = game.ActionBuyWeapon
			}
			if owned >= slots {
				continue
			}
			for _, c := range s.Market.RowFor(kind).Row {
				if game.CanAfford(p.Resources, c.Cost) {
					add(t, game.ActionPayload{CardID: c.ID})
				}
			}
		}
	}

	if !p.ActionUsed {
		for _, tok := range cards.Tokens {
			if tok != cards.TokenBoss && p.Tokens[tok] < s.Rules.MaxTokens {
				add(game.ActionPickToken, game.ActionPayload{Token: tok})
			}
		}
	}

	if !p.ExtendUsed {
		if p.UpgradeSlots < s.Rules.MaxSlots && game.CanAfford(p.Resources, s.Rules.ExtendCost[cards.KindUpgrade]) {
			add(game.ActionExtendSlot, game.ActionPayload{SlotType: cards.KindUpgrade})
		}
		if p.WeaponSlots < s.Rules.MaxSlots && game.CanAfford(p.Resources, s.Rules.ExtendCost[cards.KindWeapon]) {
			add(game.ActionExtendSlot, game.ActionPayload{SlotType: cards.KindWeapon})
		}
	}

	if p.Stance == p.TurnInitialStance {
		add(game.ActionStanceStep, game.ActionPayload{Direction: 1})
		add(game.ActionStanceStep, game.ActionPayload{Direction: -1})
	}

	for _, c := range append(append([]*cards.MarketCard(nil), p.Upgrades...), p.Weapons...) {
		if !p.ActiveUsed[c.ID] && hasActive(c) {
			add(game.ActionActivateCard, game.ActionPayload{CardID: c.ID})
		}
	}

	if p.Tokens[cards.TokenConversion] > 0 {
		from, to := cards.Resources[0], cards.Resources[0]
		for _, res := range cards.Resources {
			if p.Resources[res] > p.Resources[from] {
				from = res
			}
			if p.Resources[res] < p.Resources[to] {
				to = res
			}
		}
		if n := min(p.Resources[from], s.Rules.ConvertMax); from != to && n > 0 {
			add(game.ActionConvert, game.ActionPayload{From: from, To: to, Amount: n})
		}
	}

	add(game.ActionEndTurn, game.ActionPayload{})
	return out
}

// fightCandidates proposes a plain fight against every lane's front-most
// threat, plus a variant spending the ATTACK tokens that still lower the cost.
func fightCandidates(s *game.GameState, p *game.PlayerBoard) []game.ActionPayload {
	var out []game.ActionPayload
	for _, lane := range s.Lanes {
		threat := lane.FrontMost()
		if threat == nil {
			continue
		}
		plain := game.ActionPayload{Lane: lane.Index}
		q, err := s.QuoteFight(p.ID, plain)
		if err != nil {
			continue
		}
		if q.CanAfford {
			out = append(out, plain)
		}
		if held := p.Tokens[cards.TokenAttack]; held > 0 && q.AdjustedCost[cards.Red] > 0 {
			per := s.Rules.AttackTokenValue
			n := min(held, (q.AdjustedCost[cards.Red]+per-1)/per)
			withTokens := game.ActionPayload{Lane: lane.Index, AttackTokens: n}
			if q, err := s.QuoteFight(p.ID, withTokens); err == nil && q.CanAfford {
				out = append(out, withTokens)
			}
		}
	}
	return out
}

// thresholdCandidates proposes every open threshold of the boss, with and
// without held BOSS tokens.
func thresholdCandidates(s *game.GameState, p *game.PlayerBoard) []game.ActionPayload {
	if s.Boss == nil {
		return nil
	}
	var out []game.ActionPayload
	for i, th := range s.BossThresholds {
		if th.Defeated || th.DefeatedBy[p.ID] {
			continue
		}
		variants := []game.ActionPayload{{ThresholdIndex: i}}
		if held := p.Tokens[cards.TokenBoss]; held > 0 {
			variants = append(variants, game.ActionPayload{ThresholdIndex: i, BossTokens: held})
		}
		for _, pl := range variants {
			if q, err := s.QuoteFight(p.ID, pl); err == nil && q.CanAfford {
				out = append(out, pl)
			}
		}
	}
	return out
}

func hasActive(c *cards.MarketCard) bool {
	for _, eff := range c.Effects {
		if eff.Kind.IsActive() {
			return true
		}
	}
	return false
}
