package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/threatlanes/threatlanes-server-go/internal/cards"
)

// StateChecksum is a digest of a deterministic rendering of a GameState.
// Two states with the same checksum agree on every rule-relevant field,
// including deck order and generator state.
type StateChecksum struct {
	Hash    string // SHA-256 of the canonical rendering
	Version int    // rendering version
}

// ComputeChecksum digests the state.
func ComputeChecksum(s *GameState) (*StateChecksum, error) {
	hash := sha256.New()
	if _, err := hash.Write([]byte(s.canonical())); err != nil {
		return nil, fmt.Errorf("failed to compute hash: %w", err)
	}
	return &StateChecksum{
		Hash:    hex.EncodeToString(hash.Sum(nil)),
		Version: 1,
	}, nil
}

// Checksum is ComputeChecksum without the error, for callers that only
// compare digests.
func (s *GameState) Checksum() string {
	sum, err := ComputeChecksum(s)
	if err != nil {
		return ""
	}
	return sum.Hash
}

// canonical renders the state independent of map iteration order.
func (s *GameState) canonical() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "GAME:%s|%d|%s|%d|%d|%d|%d|%s|%s|%d\n",
		s.GameID, s.Seed, s.Phase, s.Round, s.EraRound, s.Era,
		s.ActivePlayerIndex, s.WinnerID, s.EndReason, s.NextInstance)
	fmt.Fprintf(&buf, "RNG:%x\n", s.Rand.State())
	fmt.Fprintf(&buf, "ORDER:%v\n", s.TurnOrder)

	ended := make([]string, 0, len(s.EndedTurn))
	for id, done := range s.EndedTurn {
		if done {
			ended = append(ended, id)
		}
	}
	sort.Strings(ended)
	fmt.Fprintf(&buf, "ENDED:%v\n", ended)

	playerIDs := make([]string, 0, len(s.Players))
	for id := range s.Players {
		playerIDs = append(playerIDs, id)
	}
	sort.Strings(playerIDs)
	for _, id := range playerIDs {
		p := s.Players[id]
		fmt.Fprintf(&buf, "PLAYER:%s|%s|%s|%s|%d|%d|%d|%d|%d|%t|%t|%t\n",
			id, p.Status, p.Stance, p.TurnInitialStance, p.VP, p.Wounds,
			p.ThreatsDefeated, p.UpgradeSlots, p.WeaponSlots,
			p.ActionUsed, p.BuyUsed, p.ExtendUsed)
		for _, res := range cards.Resources {
			fmt.Fprintf(&buf, "  RES:%s=%d\n", res, p.Resources[res])
		}
		for _, tok := range cards.Tokens {
			fmt.Fprintf(&buf, "  TOKEN:%s=%d\n", tok, p.Tokens[tok])
		}
		for _, res := range cards.Resources {
			if n := p.StealPreference[res]; n > 0 {
				fmt.Fprintf(&buf, "  STEAL:%s=%d\n", res, n)
			}
		}
		for _, c := range p.Upgrades {
			fmt.Fprintf(&buf, "  UPGRADE:%s\n", c.ID)
		}
		for _, c := range p.Weapons {
			fmt.Fprintf(&buf, "  WEAPON:%s|%d\n", c.ID, c.Uses)
		}
		used := make([]string, 0, len(p.ActiveUsed))
		for cardID, ok := range p.ActiveUsed {
			if ok {
				used = append(used, cardID)
			}
		}
		sort.Strings(used)
		for _, cardID := range used {
			fmt.Fprintf(&buf, "  ACTIVATED:%s\n", cardID)
		}
	}

	for _, lane := range s.Lanes {
		fmt.Fprintf(&buf, "LANE:%d|%s|%t\n", lane.Index, lane.OwnerID, lane.Enraged)
		for pos, t := range lane.Slots {
			if t == nil {
				continue
			}
			fmt.Fprintf(&buf, "  %s:%s|%s|%d|%d|%d\n",
				Position(pos), t.ID, t.Card.ID, t.Weight, t.EnrageTokens, t.Position)
		}
	}

	writeThreatDeck(&buf, "DAY", s.DayDeck)
	writeThreatDeck(&buf, "NIGHT", s.NightDeck)

	for _, row := range []*MarketRow{s.Market.Upgrades, s.Market.Weapons} {
		fmt.Fprintf(&buf, "MARKET:%s\n", row.Kind)
		writeMarketCards(&buf, "  DECK", row.Deck)
		writeMarketCards(&buf, "  ROW", row.Row)
		writeMarketCards(&buf, "  DISCARD", row.Discard)
	}

	if s.Boss != nil {
		fmt.Fprintf(&buf, "BOSS:%s|%d|%d\n", s.Boss.ID, s.BossIndex, s.BossRounds)
		for i, th := range s.BossThresholds {
			by := make([]string, 0, len(th.DefeatedBy))
			for id := range th.DefeatedBy {
				by = append(by, id)
			}
			sort.Strings(by)
			fmt.Fprintf(&buf, "  THRESHOLD:%d|%t|%v\n", i, th.Defeated, by)
		}
	} else {
		fmt.Fprintf(&buf, "BOSS:-|%d|%d\n", s.BossIndex, s.BossRounds)
	}
	fmt.Fprintf(&buf, "CLEARED:%d\n", s.BossesCleared)
	fmt.Fprintf(&buf, "LOG:%d\n", len(s.Log))

	return buf.String()
}

func writeThreatDeck(buf *bytes.Buffer, label string, deck []*cards.ThreatCard) {
	fmt.Fprintf(buf, "%s:", label)
	for _, c := range deck {
		fmt.Fprintf(buf, " %s", c.ID)
	}
	buf.WriteByte('\n')
}

func writeMarketCards(buf *bytes.Buffer, label string, list []*cards.MarketCard) {
	fmt.Fprintf(buf, "%s:", label)
	for _, c := range list {
		fmt.Fprintf(buf, " %s/%d", c.ID, c.Uses)
	}
	buf.WriteByte('\n')
}
