// Package rtc implements the client-side peer negotiation state
// machine for voice rooms. The relay forwards signals verbatim; all
// offer/answer ordering and ICE buffering rules live here.
package rtc

import (
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"
)

// SignalData is the opaque payload carried inside voice:signal events.
type SignalData struct {
	Type      string                     `json:"type"` // offer, answer, ice
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// PeerConn is the subset of *webrtc.PeerConnection the negotiator
// drives. *webrtc.PeerConnection satisfies it directly.
type PeerConn interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	Close() error
}

// SignalSender delivers a signal to one peer through the relay.
type SignalSender func(peerID string, data SignalData) error

// ShouldOffer reports whether the local peer initiates toward peerID.
// Exactly one side of any pair offers: the one with the smaller id.
func ShouldOffer(selfID, peerID string) bool {
	return selfID < peerID
}

type peerState struct {
	pc        PeerConn
	pending   []webrtc.ICECandidateInit // ICE received before the remote description
	remoteSet bool
	offered   bool
	closed    bool
}

// Negotiator tracks one connection per remote peer and applies the
// deterministic offerer rule so no pair ever double-offers.
type Negotiator struct {
	selfID  string
	newPeer func(peerID string) (PeerConn, error)
	send    SignalSender

	mu    sync.Mutex
	peers map[string]*peerState
}

// NewNegotiator creates a Negotiator. newPeer builds the transport for
// one remote peer; send pushes a signal to the relay.
func NewNegotiator(selfID string, newPeer func(peerID string) (PeerConn, error), send SignalSender) *Negotiator {
	return &Negotiator{
		selfID:  selfID,
		newPeer: newPeer,
		send:    send,
		peers:   make(map[string]*peerState),
	}
}

// SyncParticipants reconciles local peer state against an authoritative
// participant list: offers to unseen peers we should offer to, and
// tears down peers no longer present. Our own id is skipped.
func (n *Negotiator) SyncParticipants(peerIDs []string) {
	present := make(map[string]bool, len(peerIDs))
	for _, id := range peerIDs {
		present[id] = true
	}

	n.mu.Lock()
	var gone []string
	for id := range n.peers {
		if !present[id] {
			gone = append(gone, id)
		}
	}
	n.mu.Unlock()

	for _, id := range gone {
		n.Teardown(id)
	}

	for _, id := range peerIDs {
		if id == n.selfID || !ShouldOffer(n.selfID, id) {
			continue
		}
		if err := n.OfferTo(id); err != nil {
			log.Printf("[rtc] offer to %s: %v", id, err)
		}
	}
}

// OfferTo creates the connection for peerID if needed and sends one
// offer. Repeat calls for a peer already offered to are no-ops.
func (n *Negotiator) OfferTo(peerID string) error {
	n.mu.Lock()
	st, err := n.ensureLocked(peerID)
	if err != nil {
		n.mu.Unlock()
		return err
	}
	if st.offered {
		n.mu.Unlock()
		return nil
	}
	st.offered = true
	pc := st.pc
	n.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return n.send(peerID, SignalData{Type: "offer", SDP: &offer})
}

// HandleSignal applies one relayed signal from peerID.
//
// ICE candidates that arrive before the remote description are buffered
// and flushed in arrival order once it lands; candidates are never
// dropped or reordered.
func (n *Negotiator) HandleSignal(peerID string, data SignalData) error {
	switch data.Type {
	case "offer":
		return n.handleOffer(peerID, data)
	case "answer":
		return n.handleAnswer(peerID, data)
	case "ice":
		return n.handleICE(peerID, data)
	default:
		log.Printf("[rtc] ignoring signal type %q from %s", data.Type, peerID)
		return nil
	}
}

func (n *Negotiator) handleOffer(peerID string, data SignalData) error {
	if data.SDP == nil {
		return fmt.Errorf("offer from %s missing sdp", peerID)
	}

	n.mu.Lock()
	st, err := n.ensureLocked(peerID)
	if err != nil {
		n.mu.Unlock()
		return err
	}
	pc := st.pc
	n.mu.Unlock()

	if err := pc.SetRemoteDescription(*data.SDP); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	if err := n.flushPending(peerID); err != nil {
		return err
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return n.send(peerID, SignalData{Type: "answer", SDP: &answer})
}

func (n *Negotiator) handleAnswer(peerID string, data SignalData) error {
	if data.SDP == nil {
		return fmt.Errorf("answer from %s missing sdp", peerID)
	}

	n.mu.Lock()
	st, ok := n.peers[peerID]
	if !ok || st.closed {
		n.mu.Unlock()
		log.Printf("[rtc] answer from unknown peer %s", peerID)
		return nil
	}
	pc := st.pc
	n.mu.Unlock()

	if err := pc.SetRemoteDescription(*data.SDP); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return n.flushPending(peerID)
}

func (n *Negotiator) handleICE(peerID string, data SignalData) error {
	if data.Candidate == nil {
		return fmt.Errorf("ice from %s missing candidate", peerID)
	}

	n.mu.Lock()
	st, err := n.ensureLocked(peerID)
	if err != nil {
		n.mu.Unlock()
		return err
	}
	if !st.remoteSet {
		st.pending = append(st.pending, *data.Candidate)
		n.mu.Unlock()
		return nil
	}
	pc := st.pc
	n.mu.Unlock()

	if err := pc.AddICECandidate(*data.Candidate); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

func (n *Negotiator) flushPending(peerID string) error {
	n.mu.Lock()
	st, ok := n.peers[peerID]
	if !ok || st.closed {
		n.mu.Unlock()
		return nil
	}
	st.remoteSet = true
	pending := st.pending
	st.pending = nil
	pc := st.pc
	n.mu.Unlock()

	for _, cand := range pending {
		if err := pc.AddICECandidate(cand); err != nil {
			return fmt.Errorf("add buffered ice candidate: %w", err)
		}
	}
	return nil
}

// Teardown closes and forgets the connection to peerID. Safe to call
// for unknown peers and safe to call twice.
func (n *Negotiator) Teardown(peerID string) {
	n.mu.Lock()
	st, ok := n.peers[peerID]
	if ok {
		delete(n.peers, peerID)
	}
	n.mu.Unlock()

	if !ok || st.closed {
		return
	}
	st.closed = true
	if err := st.pc.Close(); err != nil {
		log.Printf("[rtc] close peer %s: %v", peerID, err)
	}
}

// Close tears down every peer
func (n *Negotiator) Close() {
	n.mu.Lock()
	ids := make([]string, 0, len(n.peers))
	for id := range n.peers {
		ids = append(ids, id)
	}
	n.mu.Unlock()

	for _, id := range ids {
		n.Teardown(id)
	}
}

// PeerCount reports how many peer connections are tracked
func (n *Negotiator) PeerCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.peers)
}

func (n *Negotiator) ensureLocked(peerID string) (*peerState, error) {
	if st, ok := n.peers[peerID]; ok && !st.closed {
		return st, nil
	}
	pc, err := n.newPeer(peerID)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	st := &peerState{pc: pc}
	n.peers[peerID] = st
	return st, nil
}
