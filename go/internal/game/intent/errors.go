package intent

import "errors"

var (
	ErrWrongPhase        = errors.New("not allowed in the current phase")
	ErrEmptyInput        = errors.New("input must not be empty")
	ErrAlreadySubmitted  = errors.New("answer already submitted this round")
	ErrAlreadyReady      = errors.New("already marked ready")
	ErrRoleForbidden     = errors.New("not allowed for your role")
	ErrNoUsesLeft        = errors.New("no uses left")
	ErrInvalidIdentifier = errors.New("display name and room id are required")
)
