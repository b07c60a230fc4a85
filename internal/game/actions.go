package game

import (
	"fmt"
	"slices"
	"strings"

	"github.com/threatlanes/threatlanes-server-go/internal/cards"
	"github.com/threatlanes/threatlanes-server-go/internal/journal"
)

// ActionType names a player action.
type ActionType string

const (
	ActionFight        ActionType = "fight"
	ActionBuyUpgrade   ActionType = "buy_upgrade"
	ActionBuyWeapon    ActionType = "buy_weapon"
	ActionPickToken    ActionType = "pick_token"
	ActionExtendSlot   ActionType = "extend_slot"
	ActionRealign      ActionType = "realign"
	ActionStanceStep   ActionType = "stance_step"
	ActionActivateCard ActionType = "activate_card"
	ActionConvert      ActionType = "convert"
	ActionEndTurn      ActionType = "end_turn"
	ActionSurrender    ActionType = "surrender"
	ActionDisconnect   ActionType = "disconnect"
)

// ActionTypes lists every action in dispatch order.
var ActionTypes = []ActionType{
	ActionFight, ActionBuyUpgrade, ActionBuyWeapon, ActionPickToken,
	ActionExtendSlot, ActionRealign, ActionStanceStep, ActionActivateCard,
	ActionConvert, ActionEndTurn, ActionSurrender, ActionDisconnect,
}

// ActionPayload carries the arguments of every action type. Handlers read
// only the fields relevant to them.
type ActionPayload struct {
	Lane           int                        `json:"lane,omitempty"`
	ThreatID       string                     `json:"threat_id,omitempty"`
	ThresholdIndex int                        `json:"threshold_index,omitempty"`
	AttackTokens   int                        `json:"attack_tokens,omitempty"`
	WildAllocation map[cards.ResourceType]int `json:"wild_allocation,omitempty"`
	BossTokens     int                        `json:"boss_tokens,omitempty"`
	PlayedWeapons  []string                   `json:"played_weapons,omitempty"`
	BalancedTarget cards.ResourceType         `json:"balanced_target,omitempty"`
	CardID         string                     `json:"card_id,omitempty"`
	Token          cards.TokenType            `json:"token,omitempty"`
	SlotType       cards.CardKind             `json:"slot_type,omitempty"`
	Stance         cards.Stance               `json:"stance,omitempty"`
	Direction      int                        `json:"direction,omitempty"`
	From           cards.ResourceType         `json:"from,omitempty"`
	To             cards.ResourceType         `json:"to,omitempty"`
	Amount         int                        `json:"amount,omitempty"`
}

// Action is one player command.
type Action struct {
	Type    ActionType    `json:"type"`
	Payload ActionPayload `json:"payload"`
}

func (a Action) String() string {
	p := a.Payload
	var b strings.Builder
	b.WriteString(string(a.Type))
	switch a.Type {
	case ActionFight:
		if p.ThreatID != "" {
			fmt.Fprintf(&b, " threat=%s", p.ThreatID)
		} else {
			fmt.Fprintf(&b, " lane=%d threshold=%d", p.Lane, p.ThresholdIndex)
		}
		if p.AttackTokens > 0 {
			fmt.Fprintf(&b, " attack=%d", p.AttackTokens)
		}
		if p.BossTokens > 0 {
			fmt.Fprintf(&b, " boss=%d", p.BossTokens)
		}
		if len(p.PlayedWeapons) > 0 {
			fmt.Fprintf(&b, " weapons=%s", strings.Join(p.PlayedWeapons, ","))
		}
	case ActionBuyUpgrade, ActionBuyWeapon, ActionActivateCard:
		fmt.Fprintf(&b, " card=%s", p.CardID)
	case ActionPickToken:
		fmt.Fprintf(&b, " token=%s", p.Token)
	case ActionExtendSlot:
		fmt.Fprintf(&b, " slot=%s", p.SlotType)
	case ActionRealign:
		fmt.Fprintf(&b, " stance=%s", p.Stance)
	case ActionStanceStep:
		fmt.Fprintf(&b, " dir=%d", p.Direction)
	case ActionConvert:
		fmt.Fprintf(&b, " %d %s->%s", p.Amount, p.From, p.To)
	}
	return b.String()
}

// Apply validates and executes one action. Every write goes through j, so a
// failed or speculative action can be rolled back to the state before it.
// Apply may leave partial writes behind on error; callers roll back.
func Apply(s *GameState, j *journal.Journal, playerID string, a Action) error {
	if s.Phase == PhaseGameOver {
		return actionErr(KindGameOver, "match %s is over", s.GameID)
	}
	p, ok := s.Players[playerID]
	if !ok {
		return actionErr(KindPlayerNotFound, "player %s not in match", playerID)
	}

	switch a.Type {
	case ActionSurrender:
		return s.leave(j, p, StatusSurrendered)
	case ActionDisconnect:
		return s.leave(j, p, StatusDisconnected)
	}

	if s.Phase != PhasePlayerTurn && s.Phase != PhaseBoss {
		return actionErr(KindWrongPhase, "%s not allowed in %s", a.Type, s.Phase)
	}
	if !p.Active() {
		return actionErr(KindNotYourTurn, "player %s is %s", playerID, p.Status)
	}
	if s.ActivePlayerID() != playerID {
		return actionErr(KindNotYourTurn, "it is %s's turn", s.ActivePlayerID())
	}

	switch a.Type {
	case ActionFight:
		if s.Phase == PhaseBoss {
			return s.fightBoss(j, p, a.Payload)
		}
		return s.fight(j, p, a.Payload)
	case ActionBuyUpgrade:
		return s.buy(j, p, cards.KindUpgrade, a.Payload.CardID)
	case ActionBuyWeapon:
		return s.buy(j, p, cards.KindWeapon, a.Payload.CardID)
	case ActionPickToken:
		return s.pickToken(j, p, a.Payload.Token)
	case ActionExtendSlot:
		return s.extendSlot(j, p, a.Payload.SlotType)
	case ActionRealign:
		return s.realign(j, p, a.Payload.Stance)
	case ActionStanceStep:
		return s.stanceStep(j, p, a.Payload.Direction)
	case ActionActivateCard:
		return s.activateCard(j, p, a.Payload.CardID)
	case ActionConvert:
		return s.convert(j, p, a.Payload)
	case ActionEndTurn:
		return s.endTurn(j, p)
	}
	return actionErr(KindUnknownAction, "unknown action %q", a.Type)
}

// resolveFightOptions validates the token and weapon choices of a fight.
func (s *GameState) resolveFightOptions(p *PlayerBoard, pl ActionPayload, boss bool) (FightOptions, error) {
	opts := FightOptions{
		AttackTokens:   pl.AttackTokens,
		WildAllocation: pl.WildAllocation,
		BalancedTarget: pl.BalancedTarget,
	}
	if pl.AttackTokens < 0 || pl.AttackTokens > p.Tokens[cards.TokenAttack] {
		return opts, actionErr(KindInsufficientTokens, "cannot spend %d ATTACK tokens, have %d", pl.AttackTokens, p.Tokens[cards.TokenAttack])
	}
	wild := 0
	for res, n := range pl.WildAllocation {
		if _, err := cards.ParseResource(string(res)); err != nil {
			return opts, actionErr(KindInvalidPayload, "wild allocation: %v", err)
		}
		if n < 0 {
			return opts, actionErr(KindInvalidPayload, "negative wild allocation for %s", res)
		}
		wild += n
	}
	if wild > p.Tokens[cards.TokenWild] {
		return opts, actionErr(KindInsufficientTokens, "cannot spend %d WILD tokens, have %d", wild, p.Tokens[cards.TokenWild])
	}
	if pl.BossTokens != 0 {
		if !boss {
			return opts, actionErr(KindInvalidPayload, "BOSS tokens only apply to boss thresholds")
		}
		if pl.BossTokens < 0 || pl.BossTokens > p.Tokens[cards.TokenBoss] {
			return opts, actionErr(KindInsufficientTokens, "cannot spend %d BOSS tokens, have %d", pl.BossTokens, p.Tokens[cards.TokenBoss])
		}
		opts.BossTokens = pl.BossTokens
	}
	if pl.BalancedTarget != "" {
		if _, err := cards.ParseResource(string(pl.BalancedTarget)); err != nil {
			return opts, actionErr(KindInvalidPayload, "balanced target: %v", err)
		}
	}
	seen := make(map[string]bool, len(pl.PlayedWeapons))
	for _, id := range pl.PlayedWeapons {
		if seen[id] {
			return opts, actionErr(KindInvalidPayload, "weapon %s played twice", id)
		}
		seen[id] = true
		w := p.findWeapon(id)
		if w == nil {
			return opts, actionErr(KindCardNotFound, "weapon %s not owned", id)
		}
		opts.PlayedWeapons = append(opts.PlayedWeapons, w)
	}
	return opts, nil
}

// targetThreat resolves the fight target: an explicit instance id, or the
// front-most occupant of the given lane.
func (s *GameState) targetThreat(pl ActionPayload) (*Lane, Position, *ThreatInstance, error) {
	if pl.ThreatID != "" {
		lane, pos, ok := s.FindThreat(pl.ThreatID)
		if !ok {
			return nil, 0, nil, actionErr(KindNoTarget, "threat %s not found", pl.ThreatID)
		}
		return lane, pos, lane.Slots[pos], nil
	}
	if pl.Lane < 0 || pl.Lane >= len(s.Lanes) {
		return nil, 0, nil, actionErr(KindInvalidPayload, "lane %d out of range", pl.Lane)
	}
	lane := s.Lanes[pl.Lane]
	for pos, t := range lane.Slots {
		if t != nil {
			return lane, Position(pos), t, nil
		}
	}
	return nil, 0, nil, actionErr(KindNoTarget, "lane %d is empty", pl.Lane)
}

// QuoteFight prices a fight without mutating the state.
func (s *GameState) QuoteFight(playerID string, pl ActionPayload) (FightQuote, error) {
	p, ok := s.Players[playerID]
	if !ok {
		return FightQuote{}, actionErr(KindPlayerNotFound, "player %s not in match", playerID)
	}
	if s.Phase == PhaseBoss {
		th, _, err := s.targetThreshold(pl.ThresholdIndex)
		if err != nil {
			return FightQuote{}, err
		}
		opts, err := s.resolveFightOptions(p, pl, true)
		if err != nil {
			return FightQuote{}, err
		}
		return ComputeThresholdCost(s, p, th, opts), nil
	}
	_, _, threat, err := s.targetThreat(pl)
	if err != nil {
		return FightQuote{}, err
	}
	opts, err := s.resolveFightOptions(p, pl, false)
	if err != nil {
		return FightQuote{}, err
	}
	return ComputeFightCost(s, p, threat, opts), nil
}

func (s *GameState) fight(j *journal.Journal, p *PlayerBoard, pl ActionPayload) error {
	if p.ActionUsed {
		return actionErr(KindAlreadyUsed, "action already used this turn")
	}
	lane, pos, threat, err := s.targetThreat(pl)
	if err != nil {
		return err
	}
	opts, err := s.resolveFightOptions(p, pl, false)
	if err != nil {
		return err
	}
	quote := ComputeFightCost(s, p, threat, opts)
	if !quote.CanAfford {
		return actionErr(KindInsufficient, "fight costs %s", formatCost(quote.AdjustedCost))
	}

	s.pay(j, p, quote.AdjustedCost)
	s.spendFightTokens(j, p, opts)
	s.useWeapons(j, p, opts.PlayedWeapons)

	journal.Set(j, &lane.Slots[pos], nil)
	if pos == Front {
		journal.Set(j, &lane.Enraged, false)
	}
	journal.Set(j, &p.VP, p.VP+threat.Card.VP)
	journal.Set(j, &p.ThreatsDefeated, p.ThreatsDefeated+1)
	journal.Set(j, &p.ActionUsed, true)
	s.logf(j, "%s defeated %s in lane %d for %s", p.Name, threat.Card.Name, lane.Index, formatCost(quote.AdjustedCost))
	for _, r := range threat.Card.Spoils {
		s.grantReward(j, p, r)
	}
	return nil
}

// spendFightTokens removes the ATTACK, WILD and BOSS tokens committed to a fight.
func (s *GameState) spendFightTokens(j *journal.Journal, p *PlayerBoard, opts FightOptions) {
	if opts.AttackTokens > 0 {
		journal.MapAdd(j, p.Tokens, cards.TokenAttack, -opts.AttackTokens)
	}
	wild := 0
	for _, n := range opts.WildAllocation {
		wild += n
	}
	if wild > 0 {
		journal.MapAdd(j, p.Tokens, cards.TokenWild, -wild)
	}
	if opts.BossTokens > 0 {
		journal.MapAdd(j, p.Tokens, cards.TokenBoss, -opts.BossTokens)
	}
}

// useWeapons spends one use of every consumable weapon played. Exhausted
// weapons go to the weapon discard pile restocked to their printed uses.
func (s *GameState) useWeapons(j *journal.Journal, p *PlayerBoard, played []*cards.MarketCard) {
	for _, w := range played {
		if !w.Consumable() {
			continue
		}
		journal.Set(j, &w.Uses, w.Uses-1)
		if w.Uses <= 0 {
			journal.Remove(j, &p.Weapons, w)
			journal.Set(j, &w.Uses, w.MaxUses)
			journal.Append(j, &s.Market.Weapons.Discard, w)
			s.logf(j, "%s's %s broke", p.Name, w.Name)
		}
	}
}

func (s *GameState) pay(j *journal.Journal, p *PlayerBoard, cost cards.Cost) {
	for _, res := range cards.Resources {
		if n := cost[res]; n > 0 {
			journal.MapAdd(j, p.Resources, res, -n)
		}
	}
}

func (s *GameState) buy(j *journal.Journal, p *PlayerBoard, kind cards.CardKind, cardID string) error {
	if p.BuyUsed {
		return actionErr(KindAlreadyUsed, "buy already used this turn")
	}
	row := s.Market.RowFor(kind)
	idx := slices.IndexFunc(row.Row, func(c *cards.MarketCard) bool { return c.ID == cardID })
	if idx < 0 {
		return actionErr(KindCardNotFound, "%s %s not in market row", kind, cardID)
	}
	card := row.Row[idx]

	owned, slots := &p.Upgrades, p.UpgradeSlots
	if kind == cards.KindWeapon {
		owned, slots = &p.Weapons, p.WeaponSlots
	}
	if len(*owned) >= slots {
		return actionErr(KindSlotFull, "%d/%d %s slots used", len(*owned), slots, kind)
	}
	if !CanAfford(p.Resources, card.Cost) {
		return actionErr(KindInsufficient, "%s costs %s", card.Name, formatCost(card.Cost))
	}

	s.pay(j, p, card.Cost)
	journal.RemoveAt(j, &row.Row, idx)
	journal.Append(j, owned, card)
	vp := card.VP
	for _, eff := range card.EffectsOf(cards.EffectOnBuyVP) {
		vp += eff.Amount
	}
	if vp > 0 {
		journal.Set(j, &p.VP, p.VP+vp)
	}
	journal.Set(j, &p.BuyUsed, true)
	s.drawMarketCard(j, row)
	s.logf(j, "%s bought %s", p.Name, card.Name)
	return nil
}

func (s *GameState) pickToken(j *journal.Journal, p *PlayerBoard, tok cards.TokenType) error {
	if p.ActionUsed {
		return actionErr(KindAlreadyUsed, "action already used this turn")
	}
	if _, err := cards.ParseToken(string(tok)); err != nil {
		return actionErr(KindInvalidPayload, "%v", err)
	}
	if tok == cards.TokenBoss {
		return actionErr(KindInvalidPayload, "BOSS tokens are only earned from bosses")
	}
	if p.Tokens[tok] >= s.Rules.MaxTokens {
		return actionErr(KindCapReached, "already holding %d %s tokens", p.Tokens[tok], tok)
	}
	journal.MapAdd(j, p.Tokens, tok, 1)
	journal.Set(j, &p.ActionUsed, true)
	s.logf(j, "%s picked a %s token", p.Name, tok)
	return nil
}

func (s *GameState) extendSlot(j *journal.Journal, p *PlayerBoard, kind cards.CardKind) error {
	if p.ExtendUsed {
		return actionErr(KindAlreadyUsed, "slot extension already used this turn")
	}
	var slots *int
	switch kind {
	case cards.KindUpgrade:
		slots = &p.UpgradeSlots
	case cards.KindWeapon:
		slots = &p.WeaponSlots
	default:
		return actionErr(KindInvalidPayload, "unknown slot type %q", kind)
	}
	if *slots >= s.Rules.MaxSlots {
		return actionErr(KindCapReached, "%s slots already at %d", kind, *slots)
	}
	cost := s.Rules.ExtendCost[kind]
	if !CanAfford(p.Resources, cost) {
		return actionErr(KindInsufficient, "extending %s slots costs %s", kind, formatCost(cost))
	}
	s.pay(j, p, cost)
	journal.Set(j, slots, *slots+1)
	journal.Set(j, &p.ExtendUsed, true)
	s.logf(j, "%s extended %s slots to %d", p.Name, kind, *slots)
	return nil
}

func (s *GameState) realign(j *journal.Journal, p *PlayerBoard, stance cards.Stance) error {
	if _, err := cards.ParseStance(string(stance)); err != nil {
		return actionErr(KindInvalidPayload, "%v", err)
	}
	if stance == p.Stance {
		return actionErr(KindInvalidPayload, "already %s", stance)
	}
	if p.Stance != p.TurnInitialStance {
		return actionErr(KindAlreadyUsed, "stance already changed this turn")
	}
	cost := make(cards.Cost, len(cards.Resources))
	for _, res := range cards.Resources {
		cost[res] = s.Rules.RealignCost
	}
	if !CanAfford(p.Resources, cost) {
		return actionErr(KindInsufficient, "realign costs %s", formatCost(cost))
	}
	s.pay(j, p, cost)
	journal.Set(j, &p.Stance, stance)
	s.logf(j, "%s realigned to %s", p.Name, stance)
	return nil
}

func (s *GameState) stanceStep(j *journal.Journal, p *PlayerBoard, dir int) error {
	if dir != 1 && dir != -1 {
		return actionErr(KindInvalidPayload, "direction must be 1 or -1, got %d", dir)
	}
	if p.Stance != p.TurnInitialStance {
		return actionErr(KindAlreadyUsed, "stance already changed this turn")
	}
	i := slices.Index(cards.Stances, p.Stance)
	n := len(cards.Stances)
	next := cards.Stances[((i+dir)%n+n)%n]
	journal.Set(j, &p.Stance, next)
	s.logf(j, "%s shifted stance to %s", p.Name, next)
	return nil
}

func (s *GameState) activateCard(j *journal.Journal, p *PlayerBoard, cardID string) error {
	card := p.findUpgrade(cardID)
	if card == nil {
		card = p.findWeapon(cardID)
	}
	if card == nil {
		return actionErr(KindCardNotFound, "card %s not owned", cardID)
	}
	var active []cards.Effect
	for _, eff := range card.Effects {
		if eff.Kind.IsActive() {
			active = append(active, eff)
		}
	}
	if len(active) == 0 {
		return actionErr(KindInvalidPayload, "%s has no active effect", card.Name)
	}
	if p.ActiveUsed[card.ID] {
		return actionErr(KindAlreadyUsed, "%s already activated this turn", card.Name)
	}
	for _, eff := range active {
		switch eff.Kind {
		case cards.EffectActiveGain:
			journal.MapAdd(j, p.Resources, eff.Resource, eff.Amount)
		case cards.EffectActiveToken:
			if p.Tokens[eff.Token] >= s.Rules.MaxTokens {
				return actionErr(KindCapReached, "already holding %d %s tokens", p.Tokens[eff.Token], eff.Token)
			}
			journal.MapAdd(j, p.Tokens, eff.Token, 1)
		case cards.EffectActiveHeal:
			if p.Wounds == 0 {
				return actionErr(KindInvalidPayload, "no wounds to heal")
			}
			journal.Set(j, &p.Wounds, p.Wounds-1)
		}
	}
	journal.MapSet(j, p.ActiveUsed, card.ID, true)
	s.logf(j, "%s activated %s", p.Name, card.Name)
	return nil
}

func (s *GameState) convert(j *journal.Journal, p *PlayerBoard, pl ActionPayload) error {
	if _, err := cards.ParseResource(string(pl.From)); err != nil {
		return actionErr(KindInvalidPayload, "from: %v", err)
	}
	if _, err := cards.ParseResource(string(pl.To)); err != nil {
		return actionErr(KindInvalidPayload, "to: %v", err)
	}
	if pl.From == pl.To {
		return actionErr(KindInvalidPayload, "cannot convert %s into itself", pl.From)
	}
	if pl.Amount < 1 || pl.Amount > s.Rules.ConvertMax {
		return actionErr(KindInvalidPayload, "amount must be 1..%d, got %d", s.Rules.ConvertMax, pl.Amount)
	}
	if p.Tokens[cards.TokenConversion] < 1 {
		return actionErr(KindInsufficientTokens, "no CONVERSION token")
	}
	if p.Resources[pl.From] < pl.Amount {
		return actionErr(KindInsufficient, "have %d %s, need %d", p.Resources[pl.From], pl.From, pl.Amount)
	}
	journal.MapAdd(j, p.Tokens, cards.TokenConversion, -1)
	journal.MapAdd(j, p.Resources, pl.From, -pl.Amount)
	journal.MapAdd(j, p.Resources, pl.To, pl.Amount)
	s.logf(j, "%s converted %d %s to %s", p.Name, pl.Amount, pl.From, pl.To)
	return nil
}

// grantReward applies a spoil, threshold reward or effect payout. Token and
// slot rewards beyond their cap are dropped.
// SetStealPreference replaces the resources playerID would rather lose to a
// cunning threat. It may be changed at any time before the match ends.
func (s *GameState) SetStealPreference(j *journal.Journal, playerID string, pref map[cards.ResourceType]int) error {
	if s.Phase == PhaseGameOver {
		return actionErr(KindGameOver, "match %s is over", s.GameID)
	}
	p, ok := s.Players[playerID]
	if !ok {
		return actionErr(KindPlayerNotFound, "player %s not in match", playerID)
	}
	for res, n := range pref {
		if _, err := cards.ParseResource(string(res)); err != nil {
			return actionErr(KindInvalidPayload, "%v", err)
		}
		if n < 0 {
			return actionErr(KindInvalidPayload, "negative preference for %s", res)
		}
	}
	for _, res := range cards.Resources {
		n, had := pref[res], p.StealPreference[res]
		switch {
		case n > 0 && n != had:
			journal.MapSet(j, p.StealPreference, res, n)
		case n == 0:
			journal.MapDelete(j, p.StealPreference, res)
		}
	}
	return nil
}

func (s *GameState) grantReward(j *journal.Journal, p *PlayerBoard, r cards.Reward) {
	switch r.Kind {
	case cards.RewardVP:
		journal.Set(j, &p.VP, p.VP+r.Amount)
	case cards.RewardToken:
		n := min(p.Tokens[r.Token]+r.Amount, s.Rules.MaxTokens)
		if n > p.Tokens[r.Token] {
			journal.MapSet(j, p.Tokens, r.Token, n)
		}
	case cards.RewardSlot:
		slots := &p.UpgradeSlots
		if r.Slot == cards.KindWeapon {
			slots = &p.WeaponSlots
		}
		if *slots < s.Rules.MaxSlots {
			journal.Set(j, slots, *slots+1)
		}
	case cards.RewardResource:
		journal.MapAdd(j, p.Resources, r.Resource, r.Amount)
	case cards.RewardHealWound:
		if healed := min(p.Wounds, r.Amount); healed > 0 {
			journal.Set(j, &p.Wounds, p.Wounds-healed)
		}
	case cards.RewardStanceChange:
		journal.Set(j, &p.Stance, r.Stance)
	}
	s.logf(j, "%s gained %s", p.Name, r)
}

func formatCost(c cards.Cost) string {
	parts := make([]string, 0, len(cards.Resources))
	for _, res := range cards.Resources {
		if n := c[res]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", res, n))
		}
	}
	if len(parts) == 0 {
		return "nothing"
	}
	return strings.Join(parts, ", ")
}
