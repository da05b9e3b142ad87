package cards

const (
	// EligibilityThreshold is the highest eligibility hand value that may
	// still call ZapZap.
	EligibilityThreshold = 5

	// EliminationThreshold is the cumulative score a seat must exceed to be
	// eliminated. Exactly 100 stays in.
	EliminationThreshold = 100

	// counteractStep is the per-opponent surcharge applied to a counteracted
	// ZapZap caller.
	counteractStep = 5
)

// IsZapZapEligible reports whether a hand may declare ZapZap: its
// eligibility value (jokers worth 0) is at most the threshold.
func IsZapZapEligible(hand []Card) bool {
	return HandValue(hand, Eligibility) <= EligibilityThreshold
}

// Eliminated reports whether a cumulative score puts a seat out of the game.
func Eliminated(cumulative int) bool {
	return cumulative > EliminationThreshold
}

// RoundScore is the outcome of scoring a finished round.
type RoundScore struct {
	// PerSeatDelta maps seat index to the score added this round.
	PerSeatDelta map[int]int
	// Counteracted is true when the ZapZap caller was not strictly lowest.
	Counteracted bool
	// LowestSeat is the first seat holding the lowest penalty value.
	LowestSeat int
}

// ScoreRound computes the score deltas for every hand still in play.
//
// Seats tied at the lowest penalty value score 0, everyone else scores their
// penalty value (jokers 25). A ZapZap caller must be strictly lowest: if any
// other seat matches or beats the caller's value the call is counteracted
// and the caller instead scores their own penalty plus 5 per opponent.
// zapCaller is -1 when the round ended without a call.
func ScoreRound(hands map[int][]Card, zapCaller int, activeSeats int) RoundScore {
	penalties := make(map[int]int, len(hands))
	lowest := -1
	for seat, hand := range hands {
		penalties[seat] = HandValue(hand, Penalty)
	}
	for seat, value := range penalties {
		if lowest < 0 || value < penalties[lowest] || (value == penalties[lowest] && seat < lowest) {
			lowest = seat
		}
	}

	score := RoundScore{
		PerSeatDelta: make(map[int]int, len(hands)),
		LowestSeat:   lowest,
	}
	for seat, value := range penalties {
		if value == penalties[lowest] {
			score.PerSeatDelta[seat] = 0
		} else {
			score.PerSeatDelta[seat] = value
		}
	}

	if zapCaller < 0 {
		return score
	}

	for seat, value := range penalties {
		if seat != zapCaller && value <= penalties[zapCaller] {
			score.Counteracted = true
			break
		}
	}
	if score.Counteracted {
		score.PerSeatDelta[zapCaller] = penalties[zapCaller] + (activeSeats-1)*counteractStep
	}

	return score
}
