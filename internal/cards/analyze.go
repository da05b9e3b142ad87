package cards

import "sort"

// PlayKind classifies a valid combination.
type PlayKind string

const (
	Single   PlayKind = "single"
	Pair     PlayKind = "pair"
	Sequence PlayKind = "sequence"
)

// Analysis reasons, returned verbatim in RuleViolation errors.
const (
	ReasonInvalidCardID  = "invalid card id"
	ReasonNotEnoughCards = "not enough cards for pair/sequence"
	ReasonDuplicateRank  = "duplicate rank"
	ReasonMixedSuits     = "mixed suits"
	ReasonNotConsecutive = "cards not consecutive"
)

// Analysis is the result of checking a proposed combination.
type Analysis struct {
	Valid  bool
	Kind   PlayKind
	Reason string
}

func invalid(reason string) Analysis {
	return Analysis{Reason: reason}
}

// AnalyzePlay decides whether the cards form a playable combination.
//
// A single card always plays. A pair is two or more cards whose non-jokers
// share one rank. A sequence is three or more cards of one suit whose ranks
// run consecutively, with jokers filling gaps or extending the run; Ace is
// low only and runs never wrap past the King.
func AnalyzePlay(play []Card) Analysis {
	for _, c := range play {
		if !c.Valid() {
			return invalid(ReasonInvalidCardID)
		}
	}

	switch {
	case len(play) == 0:
		return invalid(ReasonNotEnoughCards)
	case len(play) == 1:
		return Analysis{Valid: true, Kind: Single}
	}

	var natural []Card
	jokers := 0
	for _, c := range play {
		if c.IsJoker() {
			jokers++
		} else {
			natural = append(natural, c)
		}
	}

	if isPair(natural) {
		return Analysis{Valid: true, Kind: Pair}
	}
	if len(play) < 3 {
		return invalid(ReasonNotEnoughCards)
	}
	return analyzeSequence(natural, jokers)
}

// isPair reports whether the non-joker cards all share one rank. A play of
// jokers alone pairs trivially.
func isPair(natural []Card) bool {
	for _, c := range natural[min(1, len(natural)):] {
		if c.Rank() != natural[0].Rank() {
			return false
		}
	}
	return true
}

func analyzeSequence(natural []Card, jokers int) Analysis {
	// All jokers: any placement forms a run.
	if len(natural) == 0 {
		return Analysis{Valid: true, Kind: Sequence}
	}

	suit := natural[0].Suit()
	ranks := make([]int, 0, len(natural))
	seen := make(map[int]bool, len(natural))
	for _, c := range natural {
		if c.Suit() != suit {
			return invalid(ReasonMixedSuits)
		}
		if seen[c.Rank()] {
			return invalid(ReasonDuplicateRank)
		}
		seen[c.Rank()] = true
		ranks = append(ranks, c.Rank())
	}
	sort.Ints(ranks)

	lo, hi := ranks[0], ranks[len(ranks)-1]
	gaps := hi - lo + 1 - len(ranks)
	if gaps > jokers {
		return invalid(ReasonNotConsecutive)
	}

	// Leftover jokers must extend the run below the low or above the high
	// rank without wrapping around Ace or King.
	headroom := lo + (12 - hi)
	if jokers-gaps > headroom {
		return invalid(ReasonNotConsecutive)
	}

	return Analysis{Valid: true, Kind: Sequence}
}
