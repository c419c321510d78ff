package common

import "errors"

// Business logic errors
var (
	// General errors
	ErrNotFound  = errors.New("resource not found")
	ErrForbidden = errors.New("forbidden")

	// Admission errors: expected outcomes, surfaced as upgrade prompts,
	// never retried automatically
	ErrQuotaExceeded      = errors.New("no conversation start credits remaining")
	ErrMonthlyCapExceeded = errors.New("monthly message allowance exceeded")

	// Conversation errors
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSelfConversation     = errors.New("cannot start a conversation with yourself")
	ErrSameRole             = errors.New("participants must be a seeker and a lister")

	// Member errors
	ErrMemberNotFound = errors.New("member not found")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
)
