package engine

import (
	"errors"
)

// Rejections. A rejected command leaves the state untouched; callers drop it
// and may tell the sender privately.
var (
	ErrNotLive       = errors.New("auction is not live")
	ErrPaused        = errors.New("auction is paused")
	ErrStaleItem     = errors.New("bid is for an item that is not under the hammer")
	ErrStaleAmount   = errors.New("bid amount does not match the required bid")
	ErrSelfRaise     = errors.New("bidder already holds the standing bid")
	ErrUnknownBidder = errors.New("unknown bidder")
	ErrUnknownKind   = errors.New("unknown command")
)
