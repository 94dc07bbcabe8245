// voiceprobe joins a voice room as a real peer and negotiates audio
// with everyone already in it. Useful for smoke-testing the signaling
// relay and the offerer rule against a running server.
//
//	voiceprobe -url ws://localhost:5001/ws -token <jwt> -room 1
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"collabspace-backend/internal/handler"
	"collabspace-backend/internal/rtc"
)

func main() {
	var (
		serverURL = flag.String("url", "ws://localhost:5001/ws", "realtime endpoint")
		token     = flag.String("token", "", "access token")
		room      = flag.String("room", "", "workspace id of the voice room")
	)
	flag.Parse()
	if *token == "" || *room == "" {
		log.Fatal("[probe] -token and -room are required")
	}

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL+"?token="+*token, nil)
	if err != nil {
		log.Fatalf("[probe] dial: %v", err)
	}
	defer conn.Close()

	probe := &probe{conn: conn, room: *room}
	go probe.handleSignals()
	probe.run()
}

type probe struct {
	conn *websocket.Conn
	room string

	writeMu sync.Mutex
	ackSeq  atomic.Int64

	selfID     string
	negotiator *rtc.Negotiator
}

func (p *probe) run() {
	for {
		_, msg, err := p.conn.ReadMessage()
		if err != nil {
			log.Printf("[probe] read: %v", err)
			return
		}

		var ev handler.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "connected":
			var c handler.ConnectedPayload
			if json.Unmarshal(ev.Payload, &c) != nil {
				continue
			}
			p.selfID = c.ConnID
			p.negotiator = rtc.NewNegotiator(p.selfID, p.newPeer, p.sendSignal)
			log.Printf("[probe] connected as %s, joining room %s", p.selfID, p.room)
			p.send(handler.Event{Type: "voice:join", AckID: p.ackSeq.Add(1)}, handler.VoiceJoinPayload{RoomID: p.room})

		case "ack":
			var a handler.AckPayload
			if json.Unmarshal(ev.Payload, &a) != nil {
				continue
			}
			if !a.OK {
				log.Fatalf("[probe] request rejected: %s", a.Message)
			}

		case "voice:participants:update":
			var pl handler.VoiceParticipantsPayload
			if json.Unmarshal(ev.Payload, &pl) != nil {
				continue
			}
			ids := make([]string, 0, len(pl.Participants))
			for _, part := range pl.Participants {
				ids = append(ids, part.PeerID)
			}
			log.Printf("[probe] participants: %v", ids)
			p.negotiator.SyncParticipants(ids)

		case "voice:signal":
			var relay handler.VoiceSignalRelayPayload
			if json.Unmarshal(ev.Payload, &relay) != nil {
				continue
			}
			var data rtc.SignalData
			if json.Unmarshal(relay.Data, &data) != nil {
				continue
			}
			if err := p.negotiator.HandleSignal(relay.From, data); err != nil {
				log.Printf("[probe] signal from %s: %v", relay.From, err)
			}

		case "voice:peer-left":
			var peer handler.VoicePeerPayload
			if json.Unmarshal(ev.Payload, &peer) != nil {
				continue
			}
			log.Printf("[probe] peer left: %s", peer.PeerID)
			p.negotiator.Teardown(peer.PeerID)
		}
	}
}

func (p *probe) send(ev handler.Event, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[probe] marshal %s: %v", ev.Type, err)
		return
	}
	ev.Payload = data

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.WriteJSON(ev); err != nil {
		log.Printf("[probe] write %s: %v", ev.Type, err)
	}
}

func (p *probe) sendSignal(peerID string, data rtc.SignalData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	p.send(handler.Event{Type: "voice:signal"}, handler.VoiceSignalPayload{To: peerID, Data: raw})
	return nil
}

// newPeer builds an audio-only transport for one remote peer and wires
// its trickle ICE back through the relay
func (p *probe) newPeer(peerID string) (rtc.PeerConn, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return nil, err
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio); err != nil {
		pc.Close()
		return nil, err
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		if err := p.sendSignal(peerID, rtc.SignalData{Type: "ice", Candidate: &init}); err != nil {
			log.Printf("[probe] send ice to %s: %v", peerID, err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("[probe] peer %s state: %s", peerID, state)
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			p.negotiator.Teardown(peerID)
		}
	})

	return &probePeer{pc: pc, peerID: peerID}, nil
}

// probePeer wires trickle ICE from pion back through the relay
type probePeer struct {
	pc     *webrtc.PeerConnection
	peerID string
}

func (pp *probePeer) CreateOffer(opts *webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return pp.pc.CreateOffer(opts)
}

func (pp *probePeer) CreateAnswer(opts *webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	return pp.pc.CreateAnswer(opts)
}

func (pp *probePeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	return pp.pc.SetLocalDescription(desc)
}

func (pp *probePeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return pp.pc.SetRemoteDescription(desc)
}

func (pp *probePeer) AddICECandidate(cand webrtc.ICECandidateInit) error {
	return pp.pc.AddICECandidate(cand)
}

func (pp *probePeer) Close() error {
	return pp.pc.Close()
}

func (p *probe) handleSignals() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if p.negotiator != nil {
		p.negotiator.Close()
	}
	p.send(handler.Event{Type: "voice:leave"}, handler.VoiceJoinPayload{RoomID: p.room})
	p.conn.Close()
}
