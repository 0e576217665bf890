package router

import "errors"

// Router errors
var (
	ErrWrongSender    = errors.New("update from unexpected sender chain")
	ErrWrongRecipient = errors.New("update addressed to a different chain")
	ErrInvalidBundle  = errors.New("invalid bundle")
	ErrNotConfirmed   = errors.New("certificate does not confirm a block")
)
