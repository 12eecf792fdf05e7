package world

import "errors"

// Action-level errors. All of these abort only the single command/action that
// caused them and are reported back to the originating session; they never
// abort the tick or affect other entities.
var (
	ErrNotFound             = errors.New("entity not found")
	ErrOutOfRange           = errors.New("target out of range")
	ErrOnCooldown           = errors.New("skill on cooldown")
	ErrInsufficientResource = errors.New("insufficient resource")
	ErrInvalidState         = errors.New("invalid state")
	ErrOutOfBounds          = errors.New("position out of map bounds")
)
