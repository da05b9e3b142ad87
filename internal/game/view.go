package game

import "github.com/lox/zapzap/internal/cards"

// OpponentView is what a seat may know about another seat: never the cards,
// only the count and the running total.
type OpponentView struct {
	Seat       int    `json:"seat"`
	UserID     string `json:"userId"`
	HandSize   int    `json:"handSize"`
	Cumulative int    `json:"cumulative"`
	Eliminated bool   `json:"eliminated"`
}

// View is the read-only snapshot handed to bot strategies and clients. It
// carries everything a legal decision can depend on and nothing hidden.
type View struct {
	PartyID     string         `json:"partyId"`
	RoundID     string         `json:"roundId"`
	RoundNumber int            `json:"roundNumber"`
	Seat        int            `json:"seat"`
	Phase       Phase          `json:"phase"`
	Hand        []cards.Card   `json:"hand"`
	Cumulative  int            `json:"cumulative"`
	Opponents   []OpponentView `json:"opponents"`
	DiscardTop  []cards.Card   `json:"discardTop"`
	DeckSize    int            `json:"deckSize"`
	HandSize    int            `json:"handSize"`
	GoldenScore bool           `json:"goldenScore"`
}

// NewView builds a seat's view of the round. seatUsers maps seat index to
// user id for opponent display; missing entries are fine.
func NewView(r *Round, s *State, seat int, seatUsers map[int]string, handSize int) View {
	view := View{
		PartyID:     r.PartyID,
		RoundID:     r.ID,
		RoundNumber: r.RoundNumber,
		Seat:        seat,
		Phase:       r.CurrentAction,
		Hand:        append([]cards.Card(nil), s.Hands[seat]...),
		Cumulative:  s.Scores[seat],
		DiscardTop:  append([]cards.Card(nil), s.DiscardTop...),
		DeckSize:    len(s.Deck),
		HandSize:    handSize,
		GoldenScore: s.GoldenScore,
	}
	for i := 0; i < s.SeatCount; i++ {
		if i == seat {
			continue
		}
		view.Opponents = append(view.Opponents, OpponentView{
			Seat:       i,
			UserID:     seatUsers[i],
			HandSize:   len(s.Hands[i]),
			Cumulative: s.Scores[i],
			Eliminated: s.Eliminated[i],
		})
	}
	return view
}

// ZapZapEligible reports whether the viewing seat could call ZapZap now.
func (v View) ZapZapEligible() bool {
	return v.Phase == PhasePlay && cards.IsZapZapEligible(v.Hand)
}
