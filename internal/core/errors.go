package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/lox/zapzap/internal/game"
	"github.com/lox/zapzap/internal/store"
)

// Kind classifies an action error for callers that dispatch on failure class
// rather than on the specific code.
type Kind string

const (
	KindInvalidInput  Kind = "invalid_input"
	KindNotFound      Kind = "not_found"
	KindUnauthorized  Kind = "unauthorized"
	KindConflict      Kind = "conflict"
	KindWrongState    Kind = "wrong_state"
	KindRuleViolation Kind = "rule_violation"
	KindTimeout       Kind = "timeout"
	KindInternal      Kind = "internal"
)

// Machine codes carried alongside the kind. Codes are stable; messages are
// for humans and may change.
const (
	CodeInvalidInput     = "invalid_input"
	CodeUserNotFound     = "user_not_found"
	CodePartyNotFound    = "party_not_found"
	CodeBotNotFound      = "bot_not_found"
	CodePartyFull        = "party_full"
	CodePartyStarted     = "party_started"
	CodeAlreadyInParty   = "already_in_party"
	CodeNotInParty       = "not_in_party"
	CodePartyFinished    = "party_finished"
	CodeNotOwner         = "not_owner"
	CodeTooFewPlayers    = "too_few_players"
	CodeWrongState       = "wrong_state"
	CodeNotYourTurn      = "not_your_turn"
	CodeWrongPhase       = "wrong_phase"
	CodeInvalidPlay      = "invalid_play"
	CodeNotInHand        = "not_in_hand"
	CodeInvalidSource    = "invalid_source"
	CodeCardNotInDiscard = "card_not_in_discard"
	CodeNotEligible      = "not_eligible"
	CodeRoundNotFinished = "round_not_finished"
	CodeGameOver         = "game_over"
	CodeTimeout          = "timeout"
	CodeInternal         = "internal"
)

// Error is the structured failure every action returns.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func newError(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func internalError(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", cause: err}
}

// IsKind reports whether err is a core error of the given kind.
func IsKind(err error, kind Kind) bool {
	var coreErr *Error
	return errors.As(err, &coreErr) && coreErr.Kind == kind
}

// CodeOf extracts the machine code, or "internal" for foreign errors.
func CodeOf(err error) string {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Code
	}
	return CodeInternal
}

// gameError translates the round machine's sentinels into structured errors.
func gameError(err error) *Error {
	var ruleErr *game.RuleError
	switch {
	case errors.As(err, &ruleErr):
		return &Error{Kind: KindRuleViolation, Code: CodeInvalidPlay, Message: ruleErr.Reason, cause: err}
	case errors.Is(err, game.ErrNotYourTurn):
		return &Error{Kind: KindWrongState, Code: CodeNotYourTurn, Message: "not your turn", cause: err}
	case errors.Is(err, game.ErrWrongPhase):
		return &Error{Kind: KindWrongState, Code: CodeWrongPhase, Message: "wrong phase for this action", cause: err}
	case errors.Is(err, game.ErrRoundFinished):
		return &Error{Kind: KindWrongState, Code: CodeWrongState, Message: "round already finished", cause: err}
	case errors.Is(err, game.ErrRoundActive):
		return &Error{Kind: KindWrongState, Code: CodeRoundNotFinished, Message: "round still active", cause: err}
	case errors.Is(err, game.ErrNotInHand):
		return &Error{Kind: KindRuleViolation, Code: CodeNotInHand, Message: "card not in hand", cause: err}
	case errors.Is(err, game.ErrNotInDiscard):
		return &Error{Kind: KindRuleViolation, Code: CodeCardNotInDiscard, Message: "card not in current discard", cause: err}
	case errors.Is(err, game.ErrNotEligible):
		return &Error{Kind: KindRuleViolation, Code: CodeNotEligible, Message: "hand value too high for zapzap", cause: err}
	case errors.Is(err, game.ErrDeckExhausted):
		return &Error{Kind: KindWrongState, Code: CodeWrongState, Message: "deck exhausted", cause: err}
	default:
		return internalError(err)
	}
}

// storeError maps repository failures: missing rows become NotFound with the
// given code, everything else is Internal.
func storeError(err error, code, format string, args ...any) *Error {
	if errors.Is(err, store.ErrNotFound) {
		return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...), cause: err}
	}
	return internalError(err)
}

// checkDeadline aborts an action whose caller-supplied deadline expired
// before the commit point.
func checkDeadline(ctx context.Context) *Error {
	if err := ctx.Err(); err != nil {
		return &Error{Kind: KindTimeout, Code: CodeTimeout, Message: "deadline exceeded", cause: err}
	}
	return nil
}
