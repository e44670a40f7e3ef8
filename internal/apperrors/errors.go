package apperrors

import (
	"errors"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidTransition      = errors.New("invalid order status transition")
	ErrConcurrentModification = errors.New("order was modified concurrently")
	ErrNotParticipant         = errors.New("actor is not a participant of the order")

	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionExists   = errors.New("transaction already exists for the order")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrLedgerPostingFailed = errors.New("ledger posting failed")
	ErrInvalidAmount       = errors.New("amount is invalid")

	ErrChannelNotFound = errors.New("chat channel not found")

	ErrEffectNotFound               = errors.New("effect not found")
	ErrEffectDispatchPartialFailure = errors.New("some order side effects failed")

	ErrBadRequest = errors.New("bad request")
)
