package game

import (
	"github.com/threatlanes/threatlanes-server-go/internal/cards"
	"github.com/threatlanes/threatlanes-server-go/internal/journal"
)

// stealAmount is how many resources a cunning threat takes.
const stealAmount = 2

// IsWeakTo reports whether a stance is a weakness against a threat type.
func IsWeakTo(stance cards.Stance, tt cards.ThreatType) bool {
	switch tt {
	case cards.Feral:
		return stance == cards.Aggressive || stance == cards.Balanced
	case cards.Cunning:
		return stance == cards.Tactical || stance == cards.Balanced
	case cards.Massive:
		return stance == cards.Hunkered || stance == cards.Balanced
	case cards.Hybrid:
		return stance != cards.Balanced
	}
	return false
}

// resolveLanes runs the end-of-round lane sequence: parked front occupants
// grow, threats advance, front occupants attack, and back slots refill.
func (s *GameState) resolveLanes(j *journal.Journal) {
	for _, lane := range s.Lanes {
		if front := lane.Slots[Front]; front != nil {
			if front.EnrageTokens < 1 {
				journal.Set(j, &front.EnrageTokens, 1)
			}
			if front.Weight < s.Rules.MaxWeight {
				journal.Set(j, &front.Weight, front.Weight+1)
			}
		}
		s.advanceLane(j, lane)
		if lane.Slots[Front] != nil {
			s.attack(j, lane)
		}
	}
	for _, lane := range s.Lanes {
		if lane.Slots[Back] != nil {
			continue
		}
		if card := s.drawThreat(j); card != nil {
			journal.Set(j, &lane.Slots[Back], s.spawn(j, card, Back))
		}
	}
}

// advanceLane moves every occupant one step forward into a free slot.
func (s *GameState) advanceLane(j *journal.Journal, lane *Lane) {
	for pos := Front; pos < Back; pos++ {
		if lane.Slots[pos] != nil || lane.Slots[pos+1] == nil {
			continue
		}
		t := lane.Slots[pos+1]
		journal.Set(j, &lane.Slots[pos], t)
		journal.Set(j, &lane.Slots[pos+1], nil)
		journal.Set(j, &t.Position, pos)
	}
	front := lane.Slots[Front]
	enraged := front != nil && front.Enraged()
	if lane.Enraged != enraged {
		journal.Set(j, &lane.Enraged, enraged)
	}
}

// attack resolves the front occupant of lane against the lane owner. Enraged
// threats attack regardless of stance.
func (s *GameState) attack(j *journal.Journal, lane *Lane) {
	t := lane.Slots[Front]
	p := s.Players[lane.OwnerID]
	if p == nil || !p.Active() {
		return
	}
	if !t.Enraged() && !IsWeakTo(p.Stance, t.Card.Type) {
		s.logf(j, "%s's %s stance holds off %s", p.Name, p.Stance, t.Card.Name)
		return
	}

	switch t.Card.Type {
	case cards.Feral:
		s.wound(j, p, 1, t)
	case cards.Massive:
		if t.Weight >= 3 {
			s.wound(j, p, 1, t)
		} else {
			s.logf(j, "%s is too light to hurt %s", t.Card.Name, p.Name)
		}
	case cards.Cunning:
		s.steal(j, p, t)
	case cards.Hybrid:
		s.wound(j, p, 1, t)
		if p.Stance == cards.Hunkered {
			if t.Weight < s.Rules.MaxWeight {
				journal.Set(j, &t.Weight, t.Weight+1)
			}
			s.wound(j, p, 1, t)
		}
	}
}

func (s *GameState) wound(j *journal.Journal, p *PlayerBoard, n int, t *ThreatInstance) {
	journal.Set(j, &p.Wounds, p.Wounds+n)
	s.logf(j, "%s wounds %s", t.Card.Name, p.Name)
}

// steal takes resources from the player's preferred piles first, then from
// the largest pile. A player holding fewer than two resources is wounded.
func (s *GameState) steal(j *journal.Journal, p *PlayerBoard, t *ThreatInstance) {
	if p.TotalResources() < stealAmount {
		s.wound(j, p, 1, t)
		return
	}
	remaining := stealAmount
	take := func(res cards.ResourceType, n int) {
		n = min(n, p.Resources[res], remaining)
		if n <= 0 {
			return
		}
		journal.MapAdd(j, p.Resources, res, -n)
		remaining -= n
		s.logf(j, "%s steals %d %s from %s", t.Card.Name, n, res, p.Name)
	}
	for _, res := range cards.Resources {
		if pref := p.StealPreference[res]; pref > 0 {
			take(res, pref)
		}
	}
	for remaining > 0 {
		largest := cards.Resources[0]
		for _, res := range cards.Resources[1:] {
			if p.Resources[res] > p.Resources[largest] {
				largest = res
			}
		}
		if p.Resources[largest] == 0 {
			break
		}
		take(largest, remaining)
	}
}
