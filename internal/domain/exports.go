package domain

import (
	interfaces "olmera/internal/domain/interfaces"
	types "olmera/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID             = types.UserID
	DeviceKey          = types.DeviceKey
	SessionID          = types.SessionID
	MessageType        = types.MessageType
	Ciphertext         = types.Ciphertext
	InboundSession     = types.InboundSession
	SessionRecord      = types.SessionRecord
	ExportedSession    = types.ExportedSession
	ExportedState      = types.ExportedState
	OneTimeKey         = types.OneTimeKey
	IdentityKeys       = types.IdentityKeys
	ClaimedKey         = types.ClaimedKey
	ClaimResult        = types.ClaimResult
	DeviceEnsureResult = types.DeviceEnsureResult
	EnsureResult       = types.EnsureResult
	Curve25519Public   = types.Curve25519Public
	Curve25519Private  = types.Curve25519Private
	Ed25519Public      = types.Ed25519Public
	Ed25519Private     = types.Ed25519Private
)

// Constant re-exports for the ciphertext type tags and export schema.
const (
	MessageTypePreKey   = types.MessageTypePreKey
	MessageTypeNormal   = types.MessageTypeNormal
	ExportFormatVersion = types.ExportFormatVersion
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	DeviceService  = interfaces.DeviceService
	SessionEnsurer = interfaces.SessionEnsurer
	SessionStore   = interfaces.SessionStore
	KeyClaimer     = interfaces.KeyClaimer
)
