// Package cards implements the ZapZap card model: a 54-card deck addressed
// by integer id, play analysis and round scoring. Everything here is pure.
package cards

// Card is an integer id in [0, 54). Ids 0-12 are Spades A..K, 13-25 Hearts,
// 26-38 Clubs, 39-51 Diamonds, 52 and 53 the red and black jokers.
type Card int

const (
	// DeckSize is the number of cards in a full ZapZap deck, jokers included.
	DeckSize = 54

	// JokerRed and JokerBlack are the two joker ids.
	JokerRed   Card = 52
	JokerBlack Card = 53
)

// Suit identifies one of the four french suits.
type Suit int

const (
	Spades Suit = iota
	Hearts
	Clubs
	Diamonds
)

var suitNames = [...]string{"Spades", "Hearts", "Clubs", "Diamonds"}

func (s Suit) String() string {
	if s < Spades || s > Diamonds {
		return "Unknown"
	}
	return suitNames[s]
}

var rankNames = [...]string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

// ValueMode selects which point value a card carries. Jokers are worth
// nothing when checking ZapZap eligibility but cost 25 when a round is
// scored.
type ValueMode int

const (
	Eligibility ValueMode = iota
	Penalty
)

const jokerPenalty = 25

// Valid reports whether id addresses a card in the deck.
func (c Card) Valid() bool {
	return c >= 0 && c < DeckSize
}

// IsJoker reports whether the card is one of the two jokers.
func (c Card) IsJoker() bool {
	return c == JokerRed || c == JokerBlack
}

// Suit returns the card's suit. Jokers have no suit; callers must check
// IsJoker first.
func (c Card) Suit() Suit {
	return Suit(c / 13)
}

// Rank returns the card's rank, 0 for Ace through 12 for King.
func (c Card) Rank() int {
	return int(c % 13)
}

// Value returns the card's point value under the given mode. Ace scores 1,
// number cards their face, J=11, Q=12, K=13.
func (c Card) Value(mode ValueMode) int {
	if c.IsJoker() {
		if mode == Penalty {
			return jokerPenalty
		}
		return 0
	}
	return c.Rank() + 1
}

func (c Card) String() string {
	switch {
	case c == JokerRed:
		return "Joker(red)"
	case c == JokerBlack:
		return "Joker(black)"
	case !c.Valid():
		return "Invalid"
	}
	return rankNames[c.Rank()] + "-" + c.Suit().String()
}

// HandValue sums the point values of a hand under the given mode.
func HandValue(hand []Card, mode ValueMode) int {
	total := 0
	for _, c := range hand {
		total += c.Value(mode)
	}
	return total
}

// NewDeck returns all 54 card ids in id order. Callers shuffle.
func NewDeck() []Card {
	deck := make([]Card, DeckSize)
	for i := range deck {
		deck[i] = Card(i)
	}
	return deck
}
