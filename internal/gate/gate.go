// Package gate decides whether a visitor may view a share.
//
// A Gate lives for one view session and moves through
//
//	Unknown -> Checking -> Unlocked
//	                    -> Locked -> Locked (wrong code)
//	                              -> Unlocked (right code, grant persisted)
//
// Unlocked is terminal. The only side effects are one grant read during Check
// and one grant write after a successful Submit.
package gate

import (
	"context"
	"errors"
	"fmt"

	"arshare/api/internal/bypass"
	"arshare/api/internal/grant"
	"arshare/api/internal/store"
)

type State int

const (
	StateUnknown State = iota
	StateChecking
	StateUnlocked
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateUnlocked:
		return "unlocked"
	case StateLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// InvalidCodeMessage is shown to the visitor after a rejected submission.
const InvalidCodeMessage = "Invalid access code. Please try again."

var (
	ErrInvalidAccessCode = errors.New("invalid access code")
	ErrNotLocked         = errors.New("gate is not waiting for an access code")
	ErrAlreadyChecked    = errors.New("gate already checked")
	// ErrGrantNotSaved accompanies a successful unlock whose grant could not
	// be written; the session stays unlocked.
	ErrGrantNotSaved = errors.New("access grant not saved")
)

// Unlock records how a gate reached Unlocked.
type Unlock string

const (
	UnlockNone   Unlock = ""
	UnlockPublic Unlock = "public"
	UnlockToken  Unlock = "token"
	UnlockGrant  Unlock = "grant"
	UnlockManual Unlock = "manual"
)

// Prompt is the entry form state shown while Locked.
type Prompt struct {
	Input string `json:"input"`
	Error string `json:"error,omitempty"`
}

type Gate struct {
	shareLinkID string
	grants      grant.KV
	codec       bypass.Codec

	state    State
	record   store.ProjectShare
	via      Unlock
	prompt   Prompt
	history  []State
	grantErr error
	// stored is the grant value this session read or wrote, when it matches
	// the record.
	stored string
}

func New(shareLinkID string, grants grant.KV, codec bypass.Codec) *Gate {
	if codec == nil {
		codec = bypass.Default
	}
	return &Gate{
		shareLinkID: shareLinkID,
		grants:      grants,
		codec:       codec,
		state:       StateUnknown,
		history:     []State{StateUnknown},
	}
}

func (g *Gate) State() State {
	return g.state
}

// Via reports which path unlocked the gate.
func (g *Gate) Via() Unlock {
	return g.via
}

func (g *Gate) Prompt() Prompt {
	return g.prompt
}

// History lists every state the gate has been in, oldest first.
func (g *Gate) History() []State {
	out := make([]State, len(g.history))
	copy(out, g.history)
	return out
}

// Prompted reports whether the entry prompt was ever shown.
func (g *Gate) Prompted() bool {
	for _, s := range g.history {
		if s == StateLocked {
			return true
		}
	}
	return false
}

// GrantErr is the grant read failure seen during Check, if any. Such a failure
// is treated as "no grant" so the visitor can still unlock by hand.
func (g *Gate) GrantErr() error {
	return g.grantErr
}

// StoredGrant returns the device's grant for the share as seen by this
// session, or "" when none matched. It never touches the grant store.
func (g *Gate) StoredGrant() string {
	return g.stored
}

// Begin moves Unknown to Checking while the record is being fetched.
func (g *Gate) Begin() {
	if g.state == StateUnknown {
		g.transition(StateChecking)
	}
}

// Check evaluates a freshly resolved record. token is the optional bypass
// token from the URL; an empty or undecodable token is simply ignored.
func (g *Gate) Check(ctx context.Context, record store.ProjectShare, token string) (State, error) {
	if g.state != StateUnknown && g.state != StateChecking {
		return g.state, ErrAlreadyChecked
	}
	g.Begin()
	g.record = record

	if !record.HasAccessCode() {
		g.unlock(UnlockPublic)
		return g.state, nil
	}

	if token != "" {
		if code, err := g.codec.Decode(token); err == nil && code == record.AccessCode {
			g.unlock(UnlockToken)
			return g.state, nil
		}
	}

	stored, ok, err := grant.Lookup(ctx, g.grants, g.shareLinkID)
	if err != nil {
		g.grantErr = err
	} else if ok && stored == record.AccessCode {
		g.stored = stored
		g.unlock(UnlockGrant)
		return g.state, nil
	}

	g.transition(StateLocked)
	return g.state, nil
}

// Submit handles a manually entered code. The comparison ignores ASCII case
// only; the grant stores the record's canonical code, not the submitted casing.
func (g *Gate) Submit(ctx context.Context, code string) (State, error) {
	switch g.state {
	case StateUnlocked:
		return g.state, nil
	case StateLocked:
	default:
		return g.state, ErrNotLocked
	}

	g.prompt.Input = code
	if !equalFoldASCII(code, g.record.AccessCode) {
		g.prompt = Prompt{Input: "", Error: InvalidCodeMessage}
		g.transition(StateLocked)
		return g.state, ErrInvalidAccessCode
	}

	g.prompt = Prompt{}
	g.unlock(UnlockManual)
	if err := g.grants.Set(ctx, grant.Key(g.shareLinkID), g.record.AccessCode); err != nil {
		return g.state, fmt.Errorf("%w: %w", ErrGrantNotSaved, err)
	}
	g.stored = g.record.AccessCode
	return g.state, nil
}

// equalFoldASCII folds a-z only, so look-alikes such as the Kelvin sign do not
// match "K".
func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if lowerASCII(a[i]) != lowerASCII(b[i]) {
			return false
		}
	}
	return true
}

func lowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

func (g *Gate) unlock(via Unlock) {
	g.via = via
	g.transition(StateUnlocked)
}

func (g *Gate) transition(next State) {
	g.state = next
	g.history = append(g.history, next)
}
