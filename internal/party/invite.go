package party

import rand "math/rand/v2"

// inviteAlphabet excludes characters that read ambiguously (I, O, 0, 1).
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const inviteLength = 8

// NewInviteCode returns an 8-character invite code drawn from the
// unambiguous alphabet.
func NewInviteCode(rng *rand.Rand) string {
	code := make([]byte, inviteLength)
	for i := range code {
		code[i] = inviteAlphabet[rng.IntN(len(inviteAlphabet))]
	}
	return string(code)
}
