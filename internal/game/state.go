package game

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/threatlanes/threatlanes-server-go/internal/cards"
	"github.com/threatlanes/threatlanes-server-go/internal/content"
	"github.com/threatlanes/threatlanes-server-go/internal/journal"
)

// GamePhase is a node of the match state machine.
type GamePhase string

const (
	PhaseSetup      GamePhase = "SETUP"
	PhaseRoundStart GamePhase = "ROUND_START"
	PhasePlayerTurn GamePhase = "PLAYER_TURN"
	PhaseBoss       GamePhase = "BOSS"
	PhaseRoundEnd   GamePhase = "ROUND_END"
	PhaseGameOver   GamePhase = "GAME_OVER"
)

// phaseTransitions lists every legal edge of the state machine.
var phaseTransitions = map[GamePhase][]GamePhase{
	PhaseSetup:      {PhaseRoundStart, PhaseGameOver},
	PhaseRoundStart: {PhasePlayerTurn, PhaseGameOver},
	PhasePlayerTurn: {PhaseRoundEnd, PhaseGameOver},
	PhaseBoss:       {PhaseRoundEnd, PhaseGameOver},
	PhaseRoundEnd:   {PhaseRoundStart, PhaseBoss, PhaseGameOver},
	PhaseGameOver:   {},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to GamePhase) bool {
	for _, next := range phaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PlayerStatus models elimination without destroying the board.
type PlayerStatus string

const (
	StatusActive       PlayerStatus = "ACTIVE"
	StatusSurrendered  PlayerStatus = "SURRENDERED"
	StatusDisconnected PlayerStatus = "DISCONNECTED"
)

// Position is a slot inside a lane.
type Position int

const (
	Front Position = iota
	Mid
	Back
)

var positionNames = [...]string{"front", "mid", "back"}

func (p Position) String() string {
	if p >= Front && p <= Back {
		return positionNames[p]
	}
	return fmt.Sprintf("position_%d", int(p))
}

// Rules holds the tunable numbers of the rule set.
type Rules struct {
	MaxTokens         int
	MaxSlots          int
	StartingSlots     int
	MaxWeight         int
	EnrageSurcharge   int
	MassReduction     int
	AttackTokenValue  int
	BossTokenValue    int
	MarketRowSize     int
	BossRound         int
	BossRoundLimit    int // boss rounds before the era moves on regardless; 0 waits for every threshold
	WoundPenalty      int
	RealignCost       int
	ConvertMax        int
	StartingResources cards.Cost
	ExtendCost        map[cards.CardKind]cards.Cost
}

// DefaultRules returns the standard rule numbers.
func DefaultRules() Rules {
	return Rules{
		MaxTokens:         5,
		MaxSlots:          5,
		StartingSlots:     1,
		MaxWeight:         5,
		EnrageSurcharge:   2,
		MassReduction:     2,
		AttackTokenValue:  2,
		BossTokenValue:    2,
		MarketRowSize:     3,
		BossRound:         6,
		BossRoundLimit:    0,
		WoundPenalty:      1,
		RealignCost:       1,
		ConvertMax:        3,
		StartingResources: cards.Cost{cards.Red: 1, cards.Blue: 1, cards.Green: 1},
		ExtendCost: map[cards.CardKind]cards.Cost{
			cards.KindUpgrade: {cards.Blue: 2},
			cards.KindWeapon:  {cards.Red: 2},
		},
	}
}

// stanceProduction is granted to every active player at round start.
var stanceProduction = map[cards.Stance]cards.Cost{
	cards.Aggressive: {cards.Red: 3, cards.Blue: 1},
	cards.Tactical:   {cards.Red: 1, cards.Blue: 3},
	cards.Hunkered:   {cards.Blue: 1, cards.Green: 3},
	cards.Balanced:   {cards.Red: 2, cards.Blue: 2, cards.Green: 2},
}

// PlayerBoard is one player's mutable economy.
type PlayerBoard struct {
	ID                string
	Name              string
	IsBot             bool
	Stance            cards.Stance
	TurnInitialStance cards.Stance
	Resources         map[cards.ResourceType]int
	Tokens            map[cards.TokenType]int
	UpgradeSlots      int
	WeaponSlots       int
	Upgrades          []*cards.MarketCard
	Weapons           []*cards.MarketCard
	VP                int
	Wounds            int
	ThreatsDefeated   int
	ActionUsed        bool
	BuyUsed           bool
	ExtendUsed        bool
	ActiveUsed        map[string]bool
	StealPreference   map[cards.ResourceType]int
	Status            PlayerStatus
}

// Active reports whether the player still takes turns.
func (p *PlayerBoard) Active() bool {
	return p.Status == StatusActive
}

// TotalResources sums the player's resource piles.
func (p *PlayerBoard) TotalResources() int {
	total := 0
	for _, v := range p.Resources {
		total += v
	}
	return total
}

// Score is the final ranking value.
func (p *PlayerBoard) Score(rules Rules) int {
	return p.VP - p.Wounds*rules.WoundPenalty
}

func (p *PlayerBoard) findUpgrade(cardID string) *cards.MarketCard {
	for _, c := range p.Upgrades {
		if c.ID == cardID {
			return c
		}
	}
	return nil
}

func (p *PlayerBoard) findWeapon(cardID string) *cards.MarketCard {
	for _, c := range p.Weapons {
		if c.ID == cardID {
			return c
		}
	}
	return nil
}

// ThreatInstance is a spawned threat sitting in a lane.
type ThreatInstance struct {
	ID           string
	Card         *cards.ThreatCard
	Weight       int
	Position     Position
	EnrageTokens int
}

// Enraged reports whether the threat carries its enrage token.
func (t *ThreatInstance) Enraged() bool {
	return t.EnrageTokens > 0
}

// Lane holds up to one threat per position.
type Lane struct {
	Index   int
	OwnerID string
	Slots   [3]*ThreatInstance
	Enraged bool
}

// FrontMost returns the closest occupant, or nil for an empty lane.
func (l *Lane) FrontMost() *ThreatInstance {
	for _, t := range l.Slots {
		if t != nil {
			return t
		}
	}
	return nil
}

// Empty reports whether the lane has no occupants.
func (l *Lane) Empty() bool {
	return l.FrontMost() == nil
}

// MarketRow is one card economy: draw deck, visible row and discard pile.
type MarketRow struct {
	Kind    cards.CardKind
	Deck    []*cards.MarketCard
	Row     []*cards.MarketCard
	Discard []*cards.MarketCard
}

// MarketState holds both card economies.
type MarketState struct {
	Upgrades *MarketRow
	Weapons  *MarketRow
}

// RowFor returns the economy for kind.
func (m *MarketState) RowFor(kind cards.CardKind) *MarketRow {
	if kind == cards.KindWeapon {
		return m.Weapons
	}
	return m.Upgrades
}

// ThresholdState tracks who cleared a boss threshold.
type ThresholdState struct {
	DefeatedBy map[string]bool
	Defeated   bool
}

// GameState is the aggregate root of one match.
type GameState struct {
	GameID            string
	Seed              uint64
	Rules             Rules
	Players           map[string]*PlayerBoard
	TurnOrder         []string
	ActivePlayerIndex int
	Phase             GamePhase
	Round             int
	EraRound          int
	Era               int
	Bosses            []*cards.Boss
	Boss              *cards.Boss
	BossIndex         int
	BossThresholds    []*ThresholdState
	BossRounds        int
	BossesCleared     int
	Lanes             []*Lane
	DayDeck           []*cards.ThreatCard
	NightDeck         []*cards.ThreatCard
	Market            *MarketState
	Log               []string
	WinnerID          string
	EndReason         string
	EndedTurn         map[string]bool
	NextInstance      int
	Rand              *journal.Rand
}

// PlayerSeat describes a player joining a match.
type PlayerSeat struct {
	ID              string
	Name            string
	IsBot           bool
	Stance          cards.Stance
	StealPreference map[cards.ResourceType]int
}

// NewGameState performs match setup. The returned state is in SETUP; call
// Start to enter the first round.
func NewGameState(gameID string, seats []PlayerSeat, lib *content.Library, rules Rules, seed uint64) (*GameState, error) {
	if gameID == "" {
		return nil, fmt.Errorf("gameID is required")
	}
	if len(seats) < 2 {
		return nil, fmt.Errorf("at least 2 players required")
	}
	if lib == nil || lib.Threats == nil || lib.Market == nil {
		return nil, fmt.Errorf("content library is required")
	}
	if len(lib.Threats.Bosses) < 2 {
		return nil, fmt.Errorf("content needs two bosses, got %d", len(lib.Threats.Bosses))
	}

	s := &GameState{
		GameID:    gameID,
		Seed:      seed,
		Rules:     rules,
		Players:   make(map[string]*PlayerBoard, len(seats)),
		TurnOrder: make([]string, 0, len(seats)),
		Phase:     PhaseSetup,
		Era:       1,
		Bosses:    lib.Threats.Bosses[:2],
		BossIndex: -1,
		EndedTurn: make(map[string]bool),
		Log:       make([]string, 0, 64),
		Rand:      journal.NewRand(seed),
	}

	for _, seat := range seats {
		if seat.ID == "" {
			return nil, fmt.Errorf("player id is required")
		}
		if _, dup := s.Players[seat.ID]; dup {
			return nil, fmt.Errorf("duplicate player %s", seat.ID)
		}
		stance := seat.Stance
		if stance == "" {
			stance = cards.Balanced
		}
		if _, err := cards.ParseStance(string(stance)); err != nil {
			return nil, err
		}
		name := seat.Name
		if name == "" {
			name = seat.ID
		}
		board := &PlayerBoard{
			ID:                seat.ID,
			Name:              name,
			IsBot:             seat.IsBot,
			Stance:            stance,
			TurnInitialStance: stance,
			Resources:         make(map[cards.ResourceType]int, len(cards.Resources)),
			Tokens:            make(map[cards.TokenType]int, len(cards.Tokens)),
			UpgradeSlots:      rules.StartingSlots,
			WeaponSlots:       rules.StartingSlots,
			ActiveUsed:        make(map[string]bool),
			StealPreference:   make(map[cards.ResourceType]int),
			Status:            StatusActive,
		}
		for _, res := range cards.Resources {
			board.Resources[res] = rules.StartingResources[res]
		}
		for _, tok := range cards.Tokens {
			board.Tokens[tok] = 0
		}
		for res, n := range seat.StealPreference {
			board.StealPreference[res] = n
		}
		s.Players[seat.ID] = board
		s.TurnOrder = append(s.TurnOrder, seat.ID)
	}

	s.DayDeck = append([]*cards.ThreatCard(nil), lib.Threats.DayThreats...)
	s.NightDeck = append([]*cards.ThreatCard(nil), lib.Threats.NightThreats...)
	journal.Shuffle(nil, &s.DayDeck, s.Rand)
	journal.Shuffle(nil, &s.NightDeck, s.Rand)

	s.Market = &MarketState{
		Upgrades: newMarketRow(cards.KindUpgrade, lib.Market.UpgradeDeck, s.Rand),
		Weapons:  newMarketRow(cards.KindWeapon, lib.Market.WeaponDeck, s.Rand),
	}
	for _, row := range []*MarketRow{s.Market.Upgrades, s.Market.Weapons} {
		for len(row.Row) < rules.MarketRowSize {
			if !s.drawMarketCard(nil, row) {
				break
			}
		}
	}

	s.Lanes = make([]*Lane, len(s.TurnOrder))
	for i, owner := range s.TurnOrder {
		lane := &Lane{Index: i, OwnerID: owner}
		s.Lanes[i] = lane
		for _, pos := range []Position{Mid, Back} {
			if card := s.drawThreat(nil); card != nil {
				s.Lanes[i].Slots[pos] = s.spawn(nil, card, pos)
			}
		}
	}

	s.logf(nil, "Match %s set up with %d players", gameID, len(seats))
	return s, nil
}

func newMarketRow(kind cards.CardKind, deck []*cards.MarketCard, r *journal.Rand) *MarketRow {
	row := &MarketRow{
		Kind: kind,
		Deck: make([]*cards.MarketCard, 0, len(deck)),
	}
	for _, c := range deck {
		row.Deck = append(row.Deck, c.Clone())
	}
	journal.Shuffle(nil, &row.Deck, r)
	return row
}

// ActivePlayerID returns the player whose turn it is.
func (s *GameState) ActivePlayerID() string {
	if len(s.TurnOrder) == 0 || s.ActivePlayerIndex < 0 || s.ActivePlayerIndex >= len(s.TurnOrder) {
		return ""
	}
	return s.TurnOrder[s.ActivePlayerIndex]
}

// CurrentEra names the era used by era-bound effects.
func (s *GameState) CurrentEra() cards.Era {
	return cards.EraFor(s.Era)
}

// ActivePlayers returns the ids of active players in turn order.
func (s *GameState) ActivePlayers() []string {
	ids := make([]string, 0, len(s.TurnOrder))
	for _, id := range s.TurnOrder {
		if s.Players[id].Active() {
			ids = append(ids, id)
		}
	}
	return ids
}

// ThreatRows is the derived per-lane view of threat occupants.
func (s *GameState) ThreatRows() [][]*ThreatInstance {
	rows := make([][]*ThreatInstance, len(s.Lanes))
	for i, lane := range s.Lanes {
		rows[i] = []*ThreatInstance{lane.Slots[Front], lane.Slots[Mid], lane.Slots[Back]}
	}
	return rows
}

// FindThreat locates a threat instance by id.
func (s *GameState) FindThreat(id string) (*Lane, Position, bool) {
	for _, lane := range s.Lanes {
		for pos, t := range lane.Slots {
			if t != nil && t.ID == id {
				return lane, Position(pos), true
			}
		}
	}
	return nil, 0, false
}

// Finished reports whether the match reached its terminal phase.
func (s *GameState) Finished() bool {
	return s.Phase == PhaseGameOver
}

func (s *GameState) logf(j *journal.Journal, format string, args ...any) {
	journal.Append(j, &s.Log, fmt.Sprintf(format, args...))
}

func (s *GameState) setPhase(j *journal.Journal, to GamePhase) error {
	if !CanTransition(s.Phase, to) {
		return fmt.Errorf("illegal phase transition %s -> %s", s.Phase, to)
	}
	journal.Set(j, &s.Phase, to)
	return nil
}

// drawThreat takes the top card of the day deck, falling back to the night
// deck once the day deck is exhausted.
func (s *GameState) drawThreat(j *journal.Journal) *cards.ThreatCard {
	if card, ok := journal.Pop(j, &s.DayDeck); ok {
		return card
	}
	if card, ok := journal.Pop(j, &s.NightDeck); ok {
		return card
	}
	return nil
}

// instanceNamespace scopes deterministic threat instance ids.
var instanceNamespace = uuid.MustParse("6f1f7a4e-5d1c-4c55-9a53-2f0c1d8e7b10")

func (s *GameState) spawn(j *journal.Journal, card *cards.ThreatCard, pos Position) *ThreatInstance {
	journal.Set(j, &s.NextInstance, s.NextInstance+1)
	id := uuid.NewSHA1(instanceNamespace, []byte(fmt.Sprintf("%s/%d", s.GameID, s.NextInstance)))
	return &ThreatInstance{
		ID:       id.String(),
		Card:     card,
		Position: pos,
	}
}

// drawMarketCard moves the top card of row's deck into the visible row,
// reshuffling the discard pile into the deck when the deck is empty.
func (s *GameState) drawMarketCard(j *journal.Journal, row *MarketRow) bool {
	if len(row.Deck) == 0 {
		if len(row.Discard) == 0 {
			return false
		}
		journal.Set(j, &row.Deck, append([]*cards.MarketCard(nil), row.Discard...))
		journal.Clear(j, &row.Discard)
		journal.Shuffle(j, &row.Deck, s.Rand)
		s.logf(j, "%s deck reshuffled from discard", row.Kind)
	}
	card, ok := journal.Pop(j, &row.Deck)
	if !ok {
		return false
	}
	journal.Append(j, &row.Row, card)
	return true
}
