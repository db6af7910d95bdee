package peer

import (
	"log/slog"
	"time"

	"github.com/BioHazard786/warpcall/internal/media"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// ICE timeouts are generous so a short outage on a relay path does not end
// the call.
const (
	iceDisconnectedTimeout = 30 * time.Second
	iceFailedTimeout       = 120 * time.Second
	iceKeepaliveInterval   = 2 * time.Second
)

// Options configure a PionFactory.
type Options struct {
	// Configuration carries ICE servers and transport policy.
	Configuration webrtc.Configuration

	// Codecs registers the encoders in use. Nil means pion's defaults.
	Codecs media.CodecRegistrar

	// IncludeLoopback gathers 127.0.0.1 candidates, for same-host calls.
	IncludeLoopback bool

	Logger *slog.Logger
}

// PionFactory builds links from one shared webrtc.API.
type PionFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
	log    *slog.Logger
}

func NewFactory(opts Options) (*PionFactory, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "peer")

	mediaEngine := &webrtc.MediaEngine{}
	if opts.Codecs != nil {
		if err := opts.Codecs.RegisterCodecs(mediaEngine); err != nil {
			return nil, NewError("register codecs", "", err)
		}
	} else if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, NewError("register codecs", "", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, NewError("register interceptors", "", err)
	}

	se := webrtc.SettingEngine{LoggerFactory: newLoggerFactory(log)}
	se.SetICETimeouts(iceDisconnectedTimeout, iceFailedTimeout, iceKeepaliveInterval)
	if opts.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	return &PionFactory{api: api, config: opts.Configuration, log: log}, nil
}

// NewLink creates a peer connection for peerID carrying tracks. Kinds with no
// local track get a receive-only transceiver so the remote side can still
// send them.
func (f *PionFactory) NewLink(peerID string, tracks []webrtc.TrackLocal, ev Events) (Link, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, NewError("create peer connection", peerID, err)
	}

	l := &pionLink{
		peerID:  peerID,
		pc:      pc,
		senders: make(map[webrtc.RTPCodecType]*webrtc.RTPSender),
		log:     f.log.With("peer", peerID),
	}

	for _, t := range tracks {
		sender, err := pc.AddTrack(t)
		if err != nil {
			pc.Close()
			return nil, NewError("add track", peerID, err)
		}
		l.senders[t.Kind()] = sender
		go drainRTCP(sender)
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, ok := l.senders[kind]; ok {
			continue
		}
		_, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			pc.Close()
			return nil, NewError("add transceiver", peerID, err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || ev.OnICECandidate == nil {
			return
		}
		ev.OnICECandidate(c.ToJSON())
	})

	pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		l.handleTrack(tr, ev)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		l.log.Info("connection state", "state", state.String())
		if ev.OnStateChange != nil {
			ev.OnStateChange(state)
		}
	})

	return l, nil
}
