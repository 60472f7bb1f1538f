// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const MaxWalletLen = 64

var (
	ErrEmptySessionID = errors.New("empty session id")
	ErrEmptyWallet    = errors.New("empty wallet")
	ErrWalletTooLong  = errors.New("wallet too long")
)

type SessionID string

// ParticipantID is the wallet address a player joined the lobby with.
type ParticipantID string

// Normalize folds a participant id to the canonical form used for
// election and candidate keys.
func (p ParticipantID) Normalize() ParticipantID {
	return ParticipantID(strings.ToLower(strings.TrimSpace(string(p))))
}

type Session struct {
	ID           SessionID
	Participants []ParticipantID
}

func ValidateSessionID(id SessionID) error {
	if id == "" {
		return ErrEmptySessionID
	}
	return nil
}

func ValidateWallet(p ParticipantID) error {
	if p == "" {
		return ErrEmptyWallet
	}
	if len(p) > MaxWalletLen {
		return ErrWalletTooLong
	}
	return nil
}
