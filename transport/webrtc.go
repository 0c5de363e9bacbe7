// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
)

var _ SessionFactory = (*RTCFactory)(nil)

// channelLabel names the single data channel each session opens.
const channelLabel = "swarm"

// iceGatherTimeout is the maximum time to wait for ICE candidate gathering
// to complete before emitting the SDP.
const iceGatherTimeout = 15 * time.Second

// RTCFactory creates WebRTC sessions.
type RTCFactory struct {
	logger *slog.Logger

	// iceConfig is protected by configMu because TURN credentials may
	// be refreshed while sessions are being created.
	configMu  sync.RWMutex
	iceConfig ICEConfig

	sessionCounter atomic.Uint64
}

// NewRTCFactory creates a factory. A nil logger discards.
func NewRTCFactory(iceConfig ICEConfig, logger *slog.Logger) *RTCFactory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RTCFactory{iceConfig: iceConfig, logger: logger}
}

// UpdateICEConfig replaces the ICE configuration for new sessions.
// Existing sessions keep their configuration.
func (f *RTCFactory) UpdateICEConfig(config ICEConfig) {
	f.configMu.Lock()
	defer f.configMu.Unlock()
	f.iceConfig = config
}

// NewSession implements SessionFactory. The initiator creates the data
// channel and emits an offer once candidate gathering completes. The
// responder waits for an offer through Signal.
func (f *RTCFactory) NewSession(initiator bool, callbacks Callbacks) (Session, error) {
	pc, err := f.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}

	session := &rtcSession{
		connection: pc,
		initiator:  initiator,
		events:     newSessionEvents(callbacks),
		label:      fmt.Sprintf("%s-%d", channelLabel, f.sessionCounter.Add(1)),
		logger:     f.logger,
		closed:     make(chan struct{}),
	}

	pc.OnICEConnectionStateChange(session.handleICEStateChange)

	if !initiator {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() != channelLabel {
				f.logger.Debug("closing unexpected data channel", "label", dc.Label())
				dc.OnOpen(func() { dc.Close() })
				return
			}
			session.attach(dc)
		})
		return session, nil
	}

	ordered := true
	dc, err := pc.CreateDataChannel(channelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("creating data channel: %w", err)
	}
	session.attach(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("creating SDP offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("setting local description: %w", err)
	}
	go session.emitLocalDescription(gatherComplete)

	return session, nil
}

// newPeerConnection creates a pion PeerConnection with the current ICE config.
func (f *RTCFactory) newPeerConnection() (*webrtc.PeerConnection, error) {
	f.configMu.RLock()
	config := webrtc.Configuration{
		ICEServers: f.iceConfig.Servers,
	}
	includeLoopback := f.iceConfig.IncludeLoopback
	f.configMu.RUnlock()

	// Detached data channels give a ReadWriteCloser instead of
	// OnMessage callbacks.
	settingEngine := webrtc.SettingEngine{}
	settingEngine.DetachDataChannels()
	settingEngine.SetIncludeLoopbackCandidate(includeLoopback)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(config)
}

// rtcSession is one PeerConnection carrying one data channel.
type rtcSession struct {
	connection *webrtc.PeerConnection
	initiator  bool
	events     *sessionEvents
	label      string
	logger     *slog.Logger

	mu        sync.Mutex
	conn      *sessionConn
	answered  bool
	closed    chan struct{}
	closeOnce sync.Once
}

// Signal implements Session. The responder applies an offer and emits
// its answer after gathering; the initiator applies the answer.
func (s *rtcSession) Signal(signal Signal) error {
	select {
	case <-s.closed:
		return net.ErrClosed
	default:
	}

	switch {
	case signal.Type == SignalOffer && !s.initiator:
		s.mu.Lock()
		if s.answered {
			s.mu.Unlock()
			return fmt.Errorf("%w: second offer", ErrUnexpectedSignal)
		}
		s.answered = true
		s.mu.Unlock()

		remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: signal.SDP}
		if err := s.connection.SetRemoteDescription(remoteOffer); err != nil {
			return fmt.Errorf("setting remote description: %w", err)
		}
		answer, err := s.connection.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("creating SDP answer: %w", err)
		}
		gatherComplete := webrtc.GatheringCompletePromise(s.connection)
		if err := s.connection.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("setting local description: %w", err)
		}
		go s.emitLocalDescription(gatherComplete)
		return nil

	case signal.Type == SignalAnswer && s.initiator:
		answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: signal.SDP}
		if err := s.connection.SetRemoteDescription(answer); err != nil {
			return fmt.Errorf("setting remote description: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %q for initiator=%t", ErrUnexpectedSignal, signal.Type, s.initiator)
}

// emitLocalDescription waits for vanilla ICE gathering and hands the
// complete SDP to OnSignal.
func (s *rtcSession) emitLocalDescription(gatherComplete <-chan struct{}) {
	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		s.fail(fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout))
		return
	case <-s.closed:
		return
	}
	description := s.connection.LocalDescription()
	if description == nil {
		s.fail(errors.New("no local description after gathering"))
		return
	}
	s.events.signal(Signal{Type: description.Type.String(), SDP: description.SDP})
}

// attach waits for dc to open, detaches it, and reports the stream.
func (s *rtcSession) attach(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		rawChannel, err := dc.Detach()
		if err != nil {
			s.fail(fmt.Errorf("detaching data channel: %w", err))
			return
		}
		role := "responder"
		if s.initiator {
			role = "initiator"
		}
		conn := &sessionConn{
			DataChannelConn: NewDataChannelConn(rawChannel, s.label+"/"+role, s.label+"/remote"),
			session:         s,
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		if !s.events.connect(conn) {
			conn.DataChannelConn.Close()
		}
	})
}

func (s *rtcSession) handleICEStateChange(state webrtc.ICEConnectionState) {
	s.logger.Debug("ICE state change", "session", s.label, "state", state.String())

	switch state {
	case webrtc.ICEConnectionStateFailed:
		s.fail(errors.New("ICE connection failed"))
	case webrtc.ICEConnectionStateClosed:
		s.fail(net.ErrClosed)
	}
}

// fail reports err if the stream was never established, and tears the
// session down either way.
func (s *rtcSession) fail(err error) {
	s.events.fail(err)
	s.Close()
}

// Close implements Session.
func (s *rtcSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.events.settle()
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			conn.DataChannelConn.Close()
		}
		// PeerConnection.Close blocks on pion internals; never run it
		// on a pion callback goroutine.
		go s.connection.Close()
	})
	return nil
}

// sessionConn closes the whole PeerConnection when the stream closes.
type sessionConn struct {
	*DataChannelConn
	session *rtcSession
}

func (c *sessionConn) Close() error {
	return c.session.Close()
}
