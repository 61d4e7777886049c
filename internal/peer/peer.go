// Package peer drives the offer/answer/candidate exchange for one pair of
// connections. The server relays these payloads without looking inside;
// interpretation happens here, at the endpoints.
package peer

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

// State of a negotiation link.
type State int

const (
	StateNew State = iota
	StateLocalOfferSent
	StateRemoteOfferReceived
	StateAnswerSent
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateLocalOfferSent:
		return "local-offer-sent"
	case StateRemoteOfferReceived:
		return "remote-offer-received"
	case StateAnswerSent:
		return "answer-sent"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SignalData is the negotiation payload carried opaquely by the relay.
// Exactly one of SDP or Candidate is set.
type SignalData struct {
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

var (
	// ErrClosed is returned by operations on a torn-down link.
	ErrClosed = errors.New("peer link is closed")

	// ErrOfferOutstanding is returned when a local offer is attempted while
	// the link is past NEW. Only one unanswered local offer may exist.
	ErrOfferOutstanding = errors.New("peer link already has an outstanding offer")

	// ErrNoLocalDescription is returned when a local candidate is emitted
	// before any local description exists.
	ErrNoLocalDescription = errors.New("peer link has no local description yet")

	// ErrEmptySignal is returned for a payload carrying neither a
	// description nor a candidate.
	ErrEmptySignal = errors.New("signal payload carries no description or candidate")
)
