// Package bots contains the bot strategies and the orchestrator that drives
// them through the same action API human players use.
package bots

import (
	rand "math/rand/v2"
	"sort"

	"github.com/lox/zapzap/internal/cards"
	"github.com/lox/zapzap/internal/game"
	"github.com/lox/zapzap/internal/store"
)

// Action is a strategy's decision for one turn.
type Action struct {
	Type   game.ActionType
	Cards  []cards.Card
	Source game.DrawSource
	CardID *cards.Card
}

// Strategy decides one action from a seat-scoped view of the round. The
// orchestrator treats strategies as black boxes; a slow or panicking strategy
// costs its seat a forfeit draw, never the party.
type Strategy interface {
	Name() string
	Decide(view game.View, rng *rand.Rand) Action
}

// Resolve maps a bot user's difficulty onto a strategy. Unknown difficulties
// play random rather than failing the seat.
func Resolve(difficulty store.BotDifficulty) Strategy {
	switch difficulty {
	case store.BotEasy:
		return randomStrategy{}
	case store.BotMedium:
		return cautiousStrategy{}
	case store.BotHard:
		return greedyStrategy{}
	default:
		return randomStrategy{}
	}
}

// ForfeitAction is the safe default committed when a strategy times out or
// panics: draw from the deck, passing the turn.
func ForfeitAction() Action {
	return Action{Type: game.ActionDraw, Source: game.SourceDeck}
}

type randomStrategy struct{}

func (randomStrategy) Name() string { return "random" }

func (randomStrategy) Decide(view game.View, rng *rand.Rand) Action {
	if view.Phase == game.PhaseDraw {
		if len(view.DiscardTop) > 0 && rng.IntN(4) == 0 {
			pick := view.DiscardTop[rng.IntN(len(view.DiscardTop))]
			return Action{Type: game.ActionDraw, Source: game.SourceDiscard, CardID: &pick}
		}
		return Action{Type: game.ActionDraw, Source: game.SourceDeck}
	}

	if view.ZapZapEligible() && rng.IntN(3) == 0 {
		return Action{Type: game.ActionZapZap}
	}
	plays := candidatePlays(view.Hand)
	return Action{Type: game.ActionPlay, Cards: plays[rng.IntN(len(plays))]}
}

type cautiousStrategy struct{}

func (cautiousStrategy) Name() string { return "cautious" }

func (cautiousStrategy) Decide(view game.View, rng *rand.Rand) Action {
	if view.Phase == game.PhaseDraw {
		// Take a low card off the discard when it beats an unknown draw.
		if pick, ok := lowestDiscard(view.DiscardTop); ok && pick.Value(cards.Eligibility) <= 3 {
			return Action{Type: game.ActionDraw, Source: game.SourceDiscard, CardID: &pick}
		}
		return Action{Type: game.ActionDraw, Source: game.SourceDeck}
	}

	if view.ZapZapEligible() {
		return Action{Type: game.ActionZapZap}
	}
	return Action{Type: game.ActionPlay, Cards: heaviestPlay(view.Hand)}
}

type greedyStrategy struct{}

func (greedyStrategy) Name() string { return "greedy" }

func (greedyStrategy) Decide(view game.View, rng *rand.Rand) Action {
	if view.Phase == game.PhaseDraw {
		// Prefer a discard card that pairs with the hand, then any cheap one.
		for _, d := range view.DiscardTop {
			if d.IsJoker() {
				pick := d
				return Action{Type: game.ActionDraw, Source: game.SourceDiscard, CardID: &pick}
			}
			for _, h := range view.Hand {
				if !h.IsJoker() && h.Rank() == d.Rank() {
					pick := d
					return Action{Type: game.ActionDraw, Source: game.SourceDiscard, CardID: &pick}
				}
			}
		}
		if pick, ok := lowestDiscard(view.DiscardTop); ok && pick.Value(cards.Eligibility) <= 2 {
			return Action{Type: game.ActionDraw, Source: game.SourceDiscard, CardID: &pick}
		}
		return Action{Type: game.ActionDraw, Source: game.SourceDeck}
	}

	if view.ZapZapEligible() {
		return Action{Type: game.ActionZapZap}
	}
	return Action{Type: game.ActionPlay, Cards: heaviestPlay(view.Hand)}
}

// candidatePlays enumerates every legal combination in the hand: all
// singles, rank pairs and suit runs. The hand always yields at least the
// singles, so the result is never empty for a non-empty hand.
func candidatePlays(hand []cards.Card) [][]cards.Card {
	var plays [][]cards.Card
	for _, c := range hand {
		plays = append(plays, []cards.Card{c})
	}

	byRank := make(map[int][]cards.Card)
	for _, c := range hand {
		if !c.IsJoker() {
			byRank[c.Rank()] = append(byRank[c.Rank()], c)
		}
	}
	for _, group := range byRank {
		if len(group) >= 2 {
			plays = append(plays, append([]cards.Card(nil), group...))
		}
	}

	for _, run := range suitRuns(hand) {
		plays = append(plays, run)
	}
	return plays
}

// heaviestPlay picks the combination that sheds the most penalty points.
func heaviestPlay(hand []cards.Card) []cards.Card {
	best := []cards.Card{}
	bestValue := -1
	for _, play := range candidatePlays(hand) {
		// Never lead with a lone joker: it is worth 0 now and 25 if the
		// round ends in hand.
		if len(play) == 1 && play[0].IsJoker() && len(hand) > 1 {
			continue
		}
		v := 0
		for _, c := range play {
			v += c.Value(cards.Penalty)
		}
		if v > bestValue {
			best = play
			bestValue = v
		}
	}
	if len(best) == 0 && len(hand) > 0 {
		best = []cards.Card{hand[0]}
	}
	return best
}

// suitRuns finds maximal consecutive runs of three or more within one suit.
// Jokers are not placed; natural runs are enough for strategy purposes.
func suitRuns(hand []cards.Card) [][]cards.Card {
	bySuit := make(map[cards.Suit][]cards.Card)
	for _, c := range hand {
		if !c.IsJoker() {
			bySuit[c.Suit()] = append(bySuit[c.Suit()], c)
		}
	}

	var runs [][]cards.Card
	for _, suited := range bySuit {
		sort.Slice(suited, func(i, j int) bool { return suited[i].Rank() < suited[j].Rank() })
		start := 0
		for i := 1; i <= len(suited); i++ {
			if i < len(suited) && suited[i].Rank() == suited[i-1].Rank()+1 {
				continue
			}
			if i-start >= 3 {
				runs = append(runs, append([]cards.Card(nil), suited[start:i]...))
			}
			start = i
		}
	}
	return runs
}

func lowestDiscard(discard []cards.Card) (cards.Card, bool) {
	if len(discard) == 0 {
		return 0, false
	}
	best := discard[0]
	for _, c := range discard[1:] {
		if c.Value(cards.Eligibility) < best.Value(cards.Eligibility) {
			best = c
		}
	}
	return best, true
}
