package game

import (
	"github.com/threatlanes/threatlanes-server-go/internal/cards"
)

// logTail is how many log lines a state view carries.
const logTail = 20

// StateView is the redacted projection of a match sent to clients. Deck
// contents are reduced to counts and only the viewer sees their own steal
// preference.
type StateView struct {
	GameID       string         `json:"game_id"`
	Phase        GamePhase      `json:"phase"`
	Round        int            `json:"round"`
	EraRound     int            `json:"era_round"`
	Era          cards.Era      `json:"era"`
	ActivePlayer string         `json:"active_player"`
	TurnOrder    []string       `json:"turn_order"`
	Players      []PlayerView   `json:"players"`
	Lanes        []LaneView     `json:"lanes"`
	Market       MarketView     `json:"market"`
	Boss         *BossView      `json:"boss,omitempty"`
	DayDeck      int            `json:"day_deck"`
	NightDeck    int            `json:"night_deck"`
	Log          []string       `json:"log"`
	WinnerID     string         `json:"winner_id,omitempty"`
	EndReason    string         `json:"end_reason,omitempty"`
	Scores       map[string]int `json:"scores,omitempty"`
	Checksum     string         `json:"checksum"`
	Viewer       string         `json:"viewer,omitempty"`
}

// PlayerView is one player's public board.
type PlayerView struct {
	ID              string                     `json:"id"`
	Name            string                     `json:"name"`
	IsBot           bool                       `json:"is_bot"`
	Status          PlayerStatus               `json:"status"`
	Stance          cards.Stance               `json:"stance"`
	Resources       map[cards.ResourceType]int `json:"resources"`
	Tokens          map[cards.TokenType]int    `json:"tokens"`
	UpgradeSlots    int                        `json:"upgrade_slots"`
	WeaponSlots     int                        `json:"weapon_slots"`
	Upgrades        []CardView                 `json:"upgrades"`
	Weapons         []CardView                 `json:"weapons"`
	VP              int                        `json:"vp"`
	Wounds          int                        `json:"wounds"`
	ThreatsDefeated int                        `json:"threats_defeated"`
	ActionUsed      bool                       `json:"action_used"`
	BuyUsed         bool                       `json:"buy_used"`
	ExtendUsed      bool                       `json:"extend_used"`
	StealPreference map[cards.ResourceType]int `json:"steal_preference,omitempty"`
}

// CardView is a market card as shown to clients.
type CardView struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Kind cards.CardKind `json:"kind"`
	Cost cards.Cost     `json:"cost"`
	VP   int            `json:"vp"`
	Tags []string       `json:"tags"`
	Uses int            `json:"uses,omitempty"`
}

// ThreatView is a threat instance as shown to clients.
type ThreatView struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Type     cards.ThreatType `json:"type"`
	Position string           `json:"position"`
	Cost     cards.Cost       `json:"cost"`
	VP       int              `json:"vp"`
	Weight   int              `json:"weight"`
	Enraged  bool             `json:"enraged"`
}

// LaneView is one lane front to back; empty slots are nil.
type LaneView struct {
	Index   int           `json:"index"`
	OwnerID string        `json:"owner_id"`
	Enraged bool          `json:"enraged"`
	Slots   []*ThreatView `json:"slots"`
}

// MarketView shows the visible rows and pile sizes.
type MarketView struct {
	Upgrades       []CardView `json:"upgrades"`
	Weapons        []CardView `json:"weapons"`
	UpgradeDeck    int        `json:"upgrade_deck"`
	WeaponDeck     int        `json:"weapon_deck"`
	UpgradeDiscard int        `json:"upgrade_discard"`
	WeaponDiscard  int        `json:"weapon_discard"`
}

// BossView shows the current boss and its thresholds.
type BossView struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Round      int             `json:"round"`
	Thresholds []ThresholdView `json:"thresholds"`
}

// ThresholdView is one boss threshold.
type ThresholdView struct {
	Label      string     `json:"label"`
	Cost       cards.Cost `json:"cost"`
	Rewards    []string   `json:"rewards"`
	Defeated   bool       `json:"defeated"`
	DefeatedBy []string   `json:"defeated_by,omitempty"`
}

// View builds the projection of s seen by viewerID. An empty viewer gets the
// spectator view.
func (s *GameState) View(viewerID string) *StateView {
	v := &StateView{
		GameID:       s.GameID,
		Phase:        s.Phase,
		Round:        s.Round,
		EraRound:     s.EraRound,
		Era:          s.CurrentEra(),
		ActivePlayer: s.ActivePlayerID(),
		TurnOrder:    append([]string(nil), s.TurnOrder...),
		DayDeck:      len(s.DayDeck),
		NightDeck:    len(s.NightDeck),
		WinnerID:     s.WinnerID,
		EndReason:    s.EndReason,
		Checksum:     s.Checksum(),
		Viewer:       viewerID,
	}

	for _, id := range s.TurnOrder {
		p := s.Players[id]
		pv := PlayerView{
			ID:              p.ID,
			Name:            p.Name,
			IsBot:           p.IsBot,
			Status:          p.Status,
			Stance:          p.Stance,
			Resources:       copyCounts(p.Resources),
			Tokens:          copyCounts(p.Tokens),
			UpgradeSlots:    p.UpgradeSlots,
			WeaponSlots:     p.WeaponSlots,
			Upgrades:        cardViews(p.Upgrades),
			Weapons:         cardViews(p.Weapons),
			VP:              p.VP,
			Wounds:          p.Wounds,
			ThreatsDefeated: p.ThreatsDefeated,
			ActionUsed:      p.ActionUsed,
			BuyUsed:         p.BuyUsed,
			ExtendUsed:      p.ExtendUsed,
		}
		if id == viewerID {
			pv.StealPreference = copyCounts(p.StealPreference)
		}
		v.Players = append(v.Players, pv)
	}

	for _, lane := range s.Lanes {
		lv := LaneView{Index: lane.Index, OwnerID: lane.OwnerID, Enraged: lane.Enraged, Slots: make([]*ThreatView, len(lane.Slots))}
		for pos, t := range lane.Slots {
			if t == nil {
				continue
			}
			lv.Slots[pos] = &ThreatView{
				ID:       t.ID,
				Name:     t.Card.Name,
				Type:     t.Card.Type,
				Position: Position(pos).String(),
				Cost:     ThreatBaseCost(s.Rules, t),
				VP:       t.Card.VP,
				Weight:   t.Weight,
				Enraged:  t.Enraged(),
			}
		}
		v.Lanes = append(v.Lanes, lv)
	}

	v.Market = MarketView{
		Upgrades:       cardViews(s.Market.Upgrades.Row),
		Weapons:        cardViews(s.Market.Weapons.Row),
		UpgradeDeck:    len(s.Market.Upgrades.Deck),
		WeaponDeck:     len(s.Market.Weapons.Deck),
		UpgradeDiscard: len(s.Market.Upgrades.Discard),
		WeaponDiscard:  len(s.Market.Weapons.Discard),
	}

	if s.Boss != nil {
		bv := &BossView{ID: s.Boss.ID, Name: s.Boss.Name, Round: s.BossRounds}
		for i, th := range s.Boss.Thresholds {
			tv := ThresholdView{Label: th.Label, Cost: th.Cost.Clone()}
			for _, r := range th.Rewards {
				tv.Rewards = append(tv.Rewards, r.String())
			}
			if st := s.BossThresholds[i]; st != nil {
				tv.Defeated = st.Defeated
				for _, id := range s.TurnOrder {
					if st.DefeatedBy[id] {
						tv.DefeatedBy = append(tv.DefeatedBy, id)
					}
				}
			}
			bv.Thresholds = append(bv.Thresholds, tv)
		}
		v.Boss = bv
	}

	start := max(len(s.Log)-logTail, 0)
	v.Log = append([]string(nil), s.Log[start:]...)

	if s.Phase == PhaseGameOver {
		v.Scores = make(map[string]int, len(s.Players))
		for id, p := range s.Players {
			v.Scores[id] = p.Score(s.Rules)
		}
	}
	return v
}

func cardViews(list []*cards.MarketCard) []CardView {
	out := make([]CardView, 0, len(list))
	for _, c := range list {
		out = append(out, CardView{
			ID:   c.ID,
			Name: c.Name,
			Kind: c.Kind,
			Cost: c.Cost.Clone(),
			VP:   c.VP,
			Tags: append([]string(nil), c.Tags...),
			Uses: c.Uses,
		})
	}
	return out
}

func copyCounts[K comparable](m map[K]int) map[K]int {
	out := make(map[K]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
