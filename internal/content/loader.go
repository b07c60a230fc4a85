// Package content loads the static threat, boss and market decks from JSON.
package content

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"

	"github.com/threatlanes/threatlanes-server-go/internal/cards"
)

//go:embed data/*.json
var embedded embed.FS

// Default file names inside a content directory.
const (
	ThreatsFile = "threats.json"
	MarketFile  = "market.json"
)

// ThreatSet is the result of LoadThreats.
type ThreatSet struct {
	DayThreats   []*cards.ThreatCard
	NightThreats []*cards.ThreatCard
	Bosses       []*cards.Boss
}

// MarketSet is the result of LoadMarket.
type MarketSet struct {
	UpgradeDeck []*cards.MarketCard
	WeaponDeck  []*cards.MarketCard
}

// Library bundles every deck needed to set up a match.
type Library struct {
	Threats *ThreatSet
	Market  *MarketSet
}

type rewardJSON struct {
	Kind     string `json:"kind"`
	Amount   int    `json:"amount"`
	Token    string `json:"token,omitempty"`
	Slot     string `json:"slot,omitempty"`
	Resource string `json:"resource,omitempty"`
	Stance   string `json:"stance,omitempty"`
}

type threatJSON struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Cost          map[string]int `json:"cost"`
	VP            int            `json:"vp"`
	Spoils        []rewardJSON   `json:"spoils"`
	MassReduction int            `json:"mass_reduction"`
	Copies        int            `json:"copies"`
}

type thresholdJSON struct {
	Label   string         `json:"label"`
	Cost    map[string]int `json:"cost"`
	Rewards []rewardJSON   `json:"rewards"`
}

type bossJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Era        string          `json:"era"`
	Thresholds []thresholdJSON `json:"thresholds"`
}

type threatsFileJSON struct {
	Day    []threatJSON `json:"day"`
	Night  []threatJSON `json:"night"`
	Bosses []bossJSON   `json:"bosses"`
}

type marketCardJSON struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Cost   map[string]int `json:"cost"`
	VP     int            `json:"vp"`
	Tags   []string       `json:"tags"`
	Uses   int            `json:"uses"`
	Copies int            `json:"copies"`
}

type marketFileJSON struct {
	Upgrades []marketCardJSON `json:"upgrades"`
	Weapons  []marketCardJSON `json:"weapons"`
}

// Default loads the decks embedded in the binary.
func Default() (*Library, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, fmt.Errorf("embedded content: %w", err)
	}
	return Load(sub)
}

// Load reads both content files from fsys.
func Load(fsys fs.FS) (*Library, error) {
	threats, err := LoadThreats(fsys, ThreatsFile)
	if err != nil {
		return nil, err
	}
	market, err := LoadMarket(fsys, MarketFile)
	if err != nil {
		return nil, err
	}
	return &Library{Threats: threats, Market: market}, nil
}

// LoadThreats reads the day/night threat decks and the bosses.
func LoadThreats(fsys fs.FS, name string) (*ThreatSet, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read threats: %w", err)
	}
	var doc threatsFileJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode threats: %w", err)
	}

	set := &ThreatSet{}
	if set.DayThreats, err = convertThreats(doc.Day, cards.EraDay); err != nil {
		return nil, err
	}
	if set.NightThreats, err = convertThreats(doc.Night, cards.EraNight); err != nil {
		return nil, err
	}
	if len(doc.Bosses) < 2 {
		return nil, fmt.Errorf("threats: need a boss per era, got %d", len(doc.Bosses))
	}
	for _, b := range doc.Bosses {
		boss := &cards.Boss{ID: b.ID, Name: b.Name, Era: cards.Era(b.Era)}
		if len(b.Thresholds) == 0 {
			return nil, fmt.Errorf("boss %s has no thresholds", b.ID)
		}
		for _, th := range b.Thresholds {
			cost, err := convertCost(th.Cost)
			if err != nil {
				return nil, fmt.Errorf("boss %s: %w", b.ID, err)
			}
			rewards, err := convertRewards(th.Rewards)
			if err != nil {
				return nil, fmt.Errorf("boss %s: %w", b.ID, err)
			}
			boss.Thresholds = append(boss.Thresholds, cards.Threshold{Label: th.Label, Cost: cost, Rewards: rewards})
		}
		set.Bosses = append(set.Bosses, boss)
	}
	return set, nil
}

// LoadMarket reads the upgrade and weapon decks.
func LoadMarket(fsys fs.FS, name string) (*MarketSet, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read market: %w", err)
	}
	var doc marketFileJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode market: %w", err)
	}

	set := &MarketSet{}
	if set.UpgradeDeck, err = convertMarket(doc.Upgrades, cards.KindUpgrade); err != nil {
		return nil, err
	}
	if set.WeaponDeck, err = convertMarket(doc.Weapons, cards.KindWeapon); err != nil {
		return nil, err
	}
	return set, nil
}

func convertThreats(in []threatJSON, era cards.Era) ([]*cards.ThreatCard, error) {
	out := make([]*cards.ThreatCard, 0, len(in))
	for _, t := range in {
		tt, err := cards.ParseThreatType(t.Type)
		if err != nil {
			return nil, fmt.Errorf("threat %s: %w", t.ID, err)
		}
		cost, err := convertCost(t.Cost)
		if err != nil {
			return nil, fmt.Errorf("threat %s: %w", t.ID, err)
		}
		spoils, err := convertRewards(t.Spoils)
		if err != nil {
			return nil, fmt.Errorf("threat %s: %w", t.ID, err)
		}
		for i := 0; i < max(t.Copies, 1); i++ {
			id := t.ID
			if t.Copies > 1 {
				id = fmt.Sprintf("%s#%d", t.ID, i+1)
			}
			out = append(out, &cards.ThreatCard{
				ID:            id,
				Name:          t.Name,
				Type:          tt,
				Cost:          cost,
				VP:            t.VP,
				Spoils:        spoils,
				MassReduction: t.MassReduction,
				Era:           era,
			})
		}
	}
	return out, nil
}

func convertMarket(in []marketCardJSON, kind cards.CardKind) ([]*cards.MarketCard, error) {
	out := make([]*cards.MarketCard, 0, len(in))
	for _, c := range in {
		cost, err := convertCost(c.Cost)
		if err != nil {
			return nil, fmt.Errorf("card %s: %w", c.ID, err)
		}
		effects, err := cards.ParseEffects(c.Tags)
		if err != nil {
			return nil, fmt.Errorf("card %s: %w", c.ID, err)
		}
		if kind == cards.KindUpgrade && c.Uses != 0 {
			return nil, fmt.Errorf("card %s: upgrades cannot have uses", c.ID)
		}
		for i := 0; i < max(c.Copies, 1); i++ {
			id := c.ID
			if c.Copies > 1 {
				id = fmt.Sprintf("%s#%d", c.ID, i+1)
			}
			out = append(out, &cards.MarketCard{
				ID:      id,
				Name:    c.Name,
				Kind:    kind,
				Cost:    cost,
				VP:      c.VP,
				Tags:    c.Tags,
				Effects: effects,
				MaxUses: c.Uses,
				Uses:    c.Uses,
			})
		}
	}
	return out, nil
}

func convertCost(in map[string]int) (cards.Cost, error) {
	cost := make(cards.Cost, len(in))
	for name, amount := range in {
		res, err := cards.ParseResource(name)
		if err != nil {
			return nil, err
		}
		if amount < 0 {
			return nil, fmt.Errorf("negative cost %d for %s", amount, name)
		}
		cost[res] = amount
	}
	return cost, nil
}

func convertRewards(in []rewardJSON) ([]cards.Reward, error) {
	out := make([]cards.Reward, 0, len(in))
	for _, r := range in {
		reward := cards.Reward{
			Kind:     cards.RewardKind(r.Kind),
			Amount:   r.Amount,
			Token:    cards.TokenType(r.Token),
			Slot:     cards.CardKind(r.Slot),
			Resource: cards.ResourceType(r.Resource),
			Stance:   cards.Stance(r.Stance),
		}
		if err := reward.Validate(); err != nil {
			return nil, err
		}
		out = append(out, reward)
	}
	return out, nil
}
