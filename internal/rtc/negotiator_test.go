package rtc

import (
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePeer records every call the negotiator makes
type fakePeer struct {
	mu          sync.Mutex
	offers      int
	answers     int
	localSet    []webrtc.SessionDescription
	remoteSet   []webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	closeCalled int
}

func (f *fakePeer) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (f *fakePeer) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (f *fakePeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.localSet = append(f.localSet, desc)
	return nil
}

func (f *fakePeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteSet = append(f.remoteSet, desc)
	return nil
}

func (f *fakePeer) AddICECandidate(cand webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, cand)
	return nil
}

func (f *fakePeer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalled++
	return nil
}

type sentSignal struct {
	peerID string
	data   SignalData
}

type testRig struct {
	neg   *Negotiator
	peers map[string]*fakePeer
	sent  []sentSignal
}

func newTestRig(selfID string) *testRig {
	rig := &testRig{peers: make(map[string]*fakePeer)}
	rig.neg = NewNegotiator(selfID,
		func(peerID string) (PeerConn, error) {
			fp := &fakePeer{}
			rig.peers[peerID] = fp
			return fp, nil
		},
		func(peerID string, data SignalData) error {
			rig.sent = append(rig.sent, sentSignal{peerID: peerID, data: data})
			return nil
		})
	return rig
}

func candidate(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func TestShouldOffer(t *testing.T) {
	tests := []struct {
		name   string
		selfID string
		peerID string
		want   bool
	}{
		{name: "smaller id offers", selfID: "abc", peerID: "xyz", want: true},
		{name: "larger id waits", selfID: "xyz", peerID: "abc", want: false},
		{name: "equal ids never offer", selfID: "abc", peerID: "abc", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldOffer(tt.selfID, tt.peerID))
		})
	}
}

func TestExactlyOneSideOffers(t *testing.T) {
	low := newTestRig("abc")
	high := newTestRig("xyz")
	participants := []string{"abc", "xyz"}

	low.neg.SyncParticipants(participants)
	high.neg.SyncParticipants(participants)

	require.Len(t, low.sent, 1)
	assert.Equal(t, "xyz", low.sent[0].peerID)
	assert.Equal(t, "offer", low.sent[0].data.Type)
	assert.Equal(t, 1, low.peers["xyz"].offers)

	// the higher id creates no connection until the offer arrives
	assert.Empty(t, high.sent)
	assert.Empty(t, high.peers)

	// a repeated list does not re-offer
	low.neg.SyncParticipants(participants)
	assert.Len(t, low.sent, 1)
	assert.Equal(t, 1, low.peers["xyz"].offers)
}

func TestHandleOfferProducesAnswer(t *testing.T) {
	rig := newTestRig("xyz")

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}
	require.NoError(t, rig.neg.HandleSignal("abc", SignalData{Type: "offer", SDP: &offer}))

	fp := rig.peers["abc"]
	require.NotNil(t, fp)
	assert.Equal(t, []webrtc.SessionDescription{offer}, fp.remoteSet)
	assert.Equal(t, 1, fp.answers)

	require.Len(t, rig.sent, 1)
	assert.Equal(t, "abc", rig.sent[0].peerID)
	assert.Equal(t, "answer", rig.sent[0].data.Type)
	require.NotNil(t, rig.sent[0].data.SDP)
	assert.Equal(t, "answer-sdp", rig.sent[0].data.SDP.SDP)
}

func TestAnswerCompletesOffer(t *testing.T) {
	rig := newTestRig("abc")
	require.NoError(t, rig.neg.OfferTo("xyz"))

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}
	require.NoError(t, rig.neg.HandleSignal("xyz", SignalData{Type: "answer", SDP: &answer}))

	assert.Equal(t, []webrtc.SessionDescription{answer}, rig.peers["xyz"].remoteSet)
}

func TestAnswerFromUnknownPeerIgnored(t *testing.T) {
	rig := newTestRig("abc")

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}
	require.NoError(t, rig.neg.HandleSignal("ghost", SignalData{Type: "answer", SDP: &answer}))
	assert.Empty(t, rig.peers)
}

func TestICEBufferedUntilRemoteDescription(t *testing.T) {
	rig := newTestRig("xyz")

	first := candidate("cand-1")
	second := candidate("cand-2")
	require.NoError(t, rig.neg.HandleSignal("abc", SignalData{Type: "ice", Candidate: &first}))
	require.NoError(t, rig.neg.HandleSignal("abc", SignalData{Type: "ice", Candidate: &second}))

	fp := rig.peers["abc"]
	require.NotNil(t, fp)
	assert.Empty(t, fp.candidates, "candidates wait for the remote description")

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}
	require.NoError(t, rig.neg.HandleSignal("abc", SignalData{Type: "offer", SDP: &offer}))

	// flushed in arrival order
	require.Equal(t, []webrtc.ICECandidateInit{first, second}, fp.candidates)

	// later candidates apply immediately
	third := candidate("cand-3")
	require.NoError(t, rig.neg.HandleSignal("abc", SignalData{Type: "ice", Candidate: &third}))
	assert.Equal(t, []webrtc.ICECandidateInit{first, second, third}, fp.candidates)
}

func TestICEBufferedOnOfferSide(t *testing.T) {
	rig := newTestRig("abc")
	require.NoError(t, rig.neg.OfferTo("xyz"))

	early := candidate("cand-early")
	require.NoError(t, rig.neg.HandleSignal("xyz", SignalData{Type: "ice", Candidate: &early}))
	assert.Empty(t, rig.peers["xyz"].candidates)

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}
	require.NoError(t, rig.neg.HandleSignal("xyz", SignalData{Type: "answer", SDP: &answer}))
	assert.Equal(t, []webrtc.ICECandidateInit{early}, rig.peers["xyz"].candidates)
}

func TestUnknownSignalTypeIgnored(t *testing.T) {
	rig := newTestRig("abc")
	require.NoError(t, rig.neg.HandleSignal("xyz", SignalData{Type: "renegotiate"}))
	assert.Empty(t, rig.peers)
}

func TestTeardownIdempotent(t *testing.T) {
	rig := newTestRig("abc")
	require.NoError(t, rig.neg.OfferTo("xyz"))
	require.Equal(t, 1, rig.neg.PeerCount())

	rig.neg.Teardown("xyz")
	rig.neg.Teardown("xyz")
	rig.neg.Teardown("never-existed")

	assert.Equal(t, 1, rig.peers["xyz"].closeCalled)
	assert.Zero(t, rig.neg.PeerCount())
}

func TestSyncTearsDownDepartedPeers(t *testing.T) {
	rig := newTestRig("abc")
	rig.neg.SyncParticipants([]string{"abc", "mno", "xyz"})
	require.Equal(t, 2, rig.neg.PeerCount())

	rig.neg.SyncParticipants([]string{"abc", "mno"})

	assert.Equal(t, 1, rig.neg.PeerCount())
	assert.Equal(t, 1, rig.peers["xyz"].closeCalled)
	assert.Zero(t, rig.peers["mno"].closeCalled)
}

func TestCloseTearsDownEverything(t *testing.T) {
	rig := newTestRig("abc")
	rig.neg.SyncParticipants([]string{"abc", "mno", "xyz"})

	rig.neg.Close()

	assert.Zero(t, rig.neg.PeerCount())
	assert.Equal(t, 1, rig.peers["mno"].closeCalled)
	assert.Equal(t, 1, rig.peers["xyz"].closeCalled)
}
