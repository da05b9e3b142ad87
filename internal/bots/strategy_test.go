package bots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/zapzap/internal/cards"
	"github.com/lox/zapzap/internal/game"
	"github.com/lox/zapzap/internal/randutil"
	"github.com/lox/zapzap/internal/store"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "random", Resolve(store.BotEasy).Name())
	assert.Equal(t, "cautious", Resolve(store.BotMedium).Name())
	assert.Equal(t, "greedy", Resolve(store.BotHard).Name())
	assert.Equal(t, "random", Resolve(store.BotNone).Name())
	assert.Equal(t, "random", Resolve(store.BotDifficulty("turbo")).Name())
}

func TestCandidatePlaysAreLegal(t *testing.T) {
	t.Parallel()

	// A♠ 2♠ 3♠ plus A♥: singles, the ace pair and the spade run.
	hand := []cards.Card{0, 1, 2, 13}
	plays := candidatePlays(hand)
	require.Len(t, plays, 6)

	var sawPair, sawRun bool
	for _, play := range plays {
		analysis := cards.AnalyzePlay(play)
		assert.True(t, analysis.Valid, "play %v: %s", play, analysis.Reason)
		switch analysis.Kind {
		case cards.Pair:
			sawPair = true
		case cards.Sequence:
			sawRun = true
		}
	}
	assert.True(t, sawPair)
	assert.True(t, sawRun)
}

func TestHeaviestPlay(t *testing.T) {
	t.Parallel()

	// Three jacks outweigh any single.
	play := heaviestPlay([]cards.Card{10, 23, 36, 5})
	assert.ElementsMatch(t, []cards.Card{10, 23, 36}, play)

	// A lone joker is never led while other cards remain.
	play = heaviestPlay([]cards.Card{cards.JokerRed, 4})
	assert.Equal(t, []cards.Card{4}, play)

	// A joker alone in hand is the only option left.
	play = heaviestPlay([]cards.Card{cards.JokerBlack})
	assert.Equal(t, []cards.Card{cards.JokerBlack}, play)
}

func TestCautiousCallsWhenEligible(t *testing.T) {
	t.Parallel()

	view := game.View{
		Phase: game.PhasePlay,
		Hand:  []cards.Card{0, 13},
	}
	action := cautiousStrategy{}.Decide(view, randutil.New(1))
	assert.Equal(t, game.ActionZapZap, action.Type)
}

func TestGreedyDrawsPairingDiscard(t *testing.T) {
	t.Parallel()

	// 6♥ on the discard pairs with the 6♠ in hand.
	view := game.View{
		Phase:      game.PhaseDraw,
		Hand:       []cards.Card{5, 20},
		DiscardTop: []cards.Card{18},
	}
	action := greedyStrategy{}.Decide(view, randutil.New(1))
	assert.Equal(t, game.ActionDraw, action.Type)
	assert.Equal(t, game.SourceDiscard, action.Source)
	require.NotNil(t, action.CardID)
	assert.Equal(t, cards.Card(18), *action.CardID)
}

func TestRandomDecisionsAreLegal(t *testing.T) {
	t.Parallel()

	view := game.View{
		Phase:      game.PhasePlay,
		Hand:       []cards.Card{0, 14, 28, 3, 4},
		DiscardTop: []cards.Card{7},
	}
	for seed := int64(0); seed < 25; seed++ {
		action := randomStrategy{}.Decide(view, randutil.New(seed))
		switch action.Type {
		case game.ActionPlay:
			analysis := cards.AnalyzePlay(action.Cards)
			assert.True(t, analysis.Valid, "seed %d play %v: %s", seed, action.Cards, analysis.Reason)
		case game.ActionZapZap:
			assert.True(t, view.ZapZapEligible(), "seed %d called without eligibility", seed)
		default:
			t.Fatalf("seed %d: unexpected %s in play phase", seed, action.Type)
		}
	}

	view.Phase = game.PhaseDraw
	for seed := int64(0); seed < 25; seed++ {
		action := randomStrategy{}.Decide(view, randutil.New(seed))
		require.Equal(t, game.ActionDraw, action.Type)
		if action.Source == game.SourceDiscard {
			require.NotNil(t, action.CardID)
			assert.Contains(t, view.DiscardTop, *action.CardID)
		}
	}
}
