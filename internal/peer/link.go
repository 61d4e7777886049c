package peer

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultAnswerTimeout bounds how long a sent offer may wait for an answer.
const DefaultAnswerTimeout = 30 * time.Second

// Config wires a Link to its owner. Send and NewAnswer are required; the
// remaining callbacks are optional hand-offs to the embedding media layer.
// Callbacks are invoked without the link lock held and may call back into
// the link.
type Config struct {
	LocalID  string
	RemoteID string

	// Send emits a negotiation payload toward the remote endpoint, normally
	// through the signaling relay.
	Send func(SignalData) error

	// NewAnswer produces the local answer for a received remote offer.
	NewAnswer func(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)

	// ApplyRemoteDescription hands the remote description to the media layer.
	ApplyRemoteDescription func(webrtc.SessionDescription) error

	// ApplyCandidate hands one remote connectivity fragment to the media
	// layer. Called exactly once per fragment, in arrival order.
	ApplyCandidate func(webrtc.ICECandidateInit) error

	OnConnected func()
	OnClosed    func()

	// AnswerTimeout closes the link when a sent offer stays unanswered.
	// Zero means DefaultAnswerTimeout; negative disables the timer.
	AnswerTimeout time.Duration
}

// Link is the negotiation state machine for one pair of connections.
// Transitions are functions of (state, event) guarded by a single mutex;
// candidates that arrive before the remote description are buffered FIFO and
// flushed exactly once when it lands.
type Link struct {
	mu  sync.Mutex
	cfg Config

	state      State
	localDesc  *webrtc.SessionDescription
	remoteDesc *webrtc.SessionDescription

	pending     []webrtc.ICECandidateInit
	remoteSet   bool
	answerTimer *time.Timer
}

func NewLink(cfg Config) *Link {
	if cfg.AnswerTimeout == 0 {
		cfg.AnswerTimeout = DefaultAnswerTimeout
	}
	return &Link{cfg: cfg, state: StateNew}
}

// State reports the current negotiation state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// RemoteID reports the remote endpoint this link negotiates with.
func (l *Link) RemoteID() string {
	return l.cfg.RemoteID
}

// Offer emits a local offer. Legal only from NEW: a link that already sent
// an offer, answered one, or connected never emits a second offer.
func (l *Link) Offer(desc webrtc.SessionDescription) error {
	l.mu.Lock()
	switch l.state {
	case StateClosed:
		l.mu.Unlock()
		return ErrClosed
	case StateNew:
	default:
		l.mu.Unlock()
		return ErrOfferOutstanding
	}

	l.localDesc = &desc
	l.state = StateLocalOfferSent
	if l.cfg.AnswerTimeout > 0 {
		l.answerTimer = time.AfterFunc(l.cfg.AnswerTimeout, l.answerTimedOut)
	}
	l.mu.Unlock()

	if err := l.cfg.Send(SignalData{SDP: &desc}); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	return nil
}

// AddLocalCandidate emits a locally gathered connectivity fragment. The
// local negotiation layer may produce these at any time once a local
// description exists.
func (l *Link) AddLocalCandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.localDesc == nil {
		l.mu.Unlock()
		return ErrNoLocalDescription
	}
	l.mu.Unlock()

	if err := l.cfg.Send(SignalData{Candidate: &c}); err != nil {
		return fmt.Errorf("send candidate: %w", err)
	}
	return nil
}

// HandleRemote feeds one relayed payload into the state machine. Payloads
// for a closed link are dropped silently; negotiation teardown racing an
// in-flight message is expected, not an error.
func (l *Link) HandleRemote(data SignalData) error {
	switch {
	case data.SDP != nil:
		return l.handleDescription(*data.SDP)
	case data.Candidate != nil:
		return l.handleCandidate(*data.Candidate)
	default:
		return ErrEmptySignal
	}
}

func (l *Link) handleDescription(desc webrtc.SessionDescription) error {
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		return l.handleRemoteOffer(desc)
	case webrtc.SDPTypeAnswer:
		return l.handleRemoteAnswer(desc)
	default:
		l.logger().Debug().Str("sdp_type", desc.Type.String()).Msg("Unsupported description type, dropped")
		return nil
	}
}

func (l *Link) handleRemoteOffer(desc webrtc.SessionDescription) error {
	l.mu.Lock()
	switch l.state {
	case StateClosed:
		l.mu.Unlock()
		return nil
	case StateNew:
	case StateLocalOfferSent:
		// Glare. The lexicographically smaller endpoint yields its own offer
		// and answers; the larger one drops the incoming offer and waits.
		if l.cfg.LocalID >= l.cfg.RemoteID {
			l.mu.Unlock()
			l.logger().Debug().Msg("Offer glare, holding local offer")
			return nil
		}
		l.logger().Debug().Msg("Offer glare, yielding to remote offer")
		l.stopAnswerTimerLocked()
		l.localDesc = nil
	default:
		l.mu.Unlock()
		l.logger().Debug().Str("state", l.State().String()).Msg("Unexpected offer, dropped")
		return nil
	}

	l.remoteDesc = &desc
	l.state = StateRemoteOfferReceived
	flush := l.takeBufferLocked()
	l.mu.Unlock()

	if err := l.applyRemote(desc, flush); err != nil {
		return err
	}

	answer, err := l.cfg.NewAnswer(desc)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}

	l.mu.Lock()
	if l.state != StateRemoteOfferReceived {
		// Torn down while the answer was being produced.
		l.mu.Unlock()
		return nil
	}
	l.localDesc = &answer
	l.state = StateAnswerSent
	l.mu.Unlock()

	if err := l.cfg.Send(SignalData{SDP: &answer}); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	return nil
}

func (l *Link) handleRemoteAnswer(desc webrtc.SessionDescription) error {
	l.mu.Lock()
	if l.state != StateLocalOfferSent {
		l.mu.Unlock()
		l.logger().Debug().Str("state", l.State().String()).Msg("Unexpected answer, dropped")
		return nil
	}
	l.stopAnswerTimerLocked()
	l.remoteDesc = &desc
	l.state = StateConnected
	flush := l.takeBufferLocked()
	l.mu.Unlock()

	if err := l.applyRemote(desc, flush); err != nil {
		return err
	}
	if l.cfg.OnConnected != nil {
		l.cfg.OnConnected()
	}
	return nil
}

func (l *Link) handleCandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return nil
	}
	if !l.remoteSet {
		l.pending = append(l.pending, c)
		l.mu.Unlock()
		return nil
	}
	confirmed := l.state == StateAnswerSent
	if confirmed {
		l.state = StateConnected
	}
	l.mu.Unlock()

	if l.cfg.ApplyCandidate != nil {
		if err := l.cfg.ApplyCandidate(c); err != nil {
			return fmt.Errorf("apply candidate: %w", err)
		}
	}
	if confirmed && l.cfg.OnConnected != nil {
		l.cfg.OnConnected()
	}
	return nil
}

// Close tears the link down, discarding any unflushed buffer. Idempotent.
func (l *Link) Close() {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	l.stopAnswerTimerLocked()
	l.state = StateClosed
	l.pending = nil
	l.localDesc = nil
	l.remoteDesc = nil
	l.mu.Unlock()

	if l.cfg.OnClosed != nil {
		l.cfg.OnClosed()
	}
}

// takeBufferLocked marks the remote description applied and hands over the
// buffered fragments. The buffer is gone for good after this; later
// fragments apply immediately.
func (l *Link) takeBufferLocked() []webrtc.ICECandidateInit {
	l.remoteSet = true
	flush := l.pending
	l.pending = nil
	return flush
}

func (l *Link) applyRemote(desc webrtc.SessionDescription, flush []webrtc.ICECandidateInit) error {
	if l.cfg.ApplyRemoteDescription != nil {
		if err := l.cfg.ApplyRemoteDescription(desc); err != nil {
			return fmt.Errorf("apply remote description: %w", err)
		}
	}
	for _, c := range flush {
		if l.cfg.ApplyCandidate != nil {
			if err := l.cfg.ApplyCandidate(c); err != nil {
				return fmt.Errorf("apply buffered candidate: %w", err)
			}
		}
	}
	return nil
}

func (l *Link) logger() *zerolog.Logger {
	lg := log.With().Str("local_id", l.cfg.LocalID).Str("remote_id", l.cfg.RemoteID).Logger()
	return &lg
}

func (l *Link) stopAnswerTimerLocked() {
	if l.answerTimer != nil {
		l.answerTimer.Stop()
		l.answerTimer = nil
	}
}

func (l *Link) answerTimedOut() {
	l.mu.Lock()
	if l.state != StateLocalOfferSent {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	l.logger().Warn().Msg("Offer unanswered, closing link")
	l.Close()
}
