package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/gotunnel/gt/internal/router"
)

// ErrNoChannelTimeout is returned by Handle when no data channel has
// existed for two consecutive idle-timeout windows.
var ErrNoChannelTimeout = errors.New("peer: no channel in peer connection timeout")

// Controller owns one WebRTC peer connection and its signalling loop.
// Exactly one Controller exists per SubP2P child.
type Controller struct {
	log    *zap.Logger
	reader *Reader
	writer *Writer

	pc      *webrtc.PeerConnection
	tables  router.Tables
	timeout time.Duration

	channelCount int32
	noChannelID  int32

	fatal chan error
}

// New builds a peer connection from cfg, constrains its ICE UDP range
// and enables data-channel detachment, and installs the ICE, state
// and data-channel handlers.
func New(log *zap.Logger, reader *Reader, writer *Writer, cfg Config) (*Controller, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("peer: registering default codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("peer: registering default interceptors: %w", err)
	}

	settings := webrtc.SettingEngine{}
	if cfg.PortMin != 0 || cfg.PortMax != 0 {
		if err := settings.SetEphemeralUDPPortRange(cfg.PortMin, cfg.PortMax); err != nil {
			return nil, fmt.Errorf("peer: setting udp port range: %w", err)
		}
	}
	settings.DetachDataChannels()

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settings),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: cfg.Stuns}},
	})
	if err != nil {
		return nil, fmt.Errorf("peer: creating peer connection: %w", err)
	}

	c := &Controller{
		log:     log,
		reader:  reader,
		writer:  writer,
		pc:      pc,
		tables:  router.NewTables(cfg.HTTPRoutes, cfg.TCPRoutes),
		timeout: time.Duration(cfg.EffectiveTimeout()) * time.Second,
		fatal:   make(chan error, 1),
	}
	c.installHandlers()
	return c, nil
}

func (c *Controller) installHandlers() {
	c.pc.OnICECandidate(func(ice *webrtc.ICECandidate) {
		if ice == nil {
			if err := c.writer.Send(CandidateOp("")); err != nil {
				c.log.Error("failed to write end-of-candidates marker", zap.Error(err))
			}
			return
		}
		b, err := json.Marshal(ice.ToJSON())
		if err != nil {
			c.log.Error("failed to serialize ice candidate init", zap.Error(err))
			return
		}
		if err := c.writer.Send(CandidateOp(string(b))); err != nil {
			c.log.Error("failed to write ice candidate", zap.Error(err))
		}
	})

	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.log.Info("peer connection state changed", zap.Stringer("state", state))
		if state == webrtc.PeerConnectionStateFailed {
			select {
			case c.fatal <- fmt.Errorf("peer: connection state failed"):
			default:
			}
		}
	})

	c.pc.OnDataChannel(func(d *webrtc.DataChannel) {
		c.log.Info("new data channel", zap.String("label", d.Label()))
		c.setupDataChannel(d)
	})
}

func (c *Controller) setupDataChannel(d *webrtc.DataChannel) {
	d.OnOpen(func() {
		atomic.AddInt32(&c.channelCount, 1)
		go c.runChannel(d)
	})
}

func (c *Controller) runChannel(d *webrtc.DataChannel) {
	label := d.Label()
	c.log.Info("data channel open", zap.String("label", label))
	defer func() {
		c.log.Info("data channel done", zap.String("label", label))
		c.channelClosed()
	}()

	target, ok := c.tables.Resolve(label)
	if !ok {
		c.log.Error("no route for data channel", zap.String("label", label))
		return
	}

	raw, err := d.Detach()
	if err != nil {
		c.log.Error("failed to detach data channel", zap.String("label", label), zap.Error(err))
		return
	}

	if err := router.Bridge(c.log, label, target, raw); err != nil {
		c.log.Info("data channel bridge ended with error", zap.String("label", label), zap.Error(err))
	}
}

// channelClosed decrements channelCount and, if it had just
// transitioned from 1 to 0, bumps noChannelID so the idle check in
// Handle can tell a fresh no-channel window from a stale one.
func (c *Controller) channelClosed() {
	for {
		old := atomic.LoadInt32(&c.channelCount)
		if atomic.CompareAndSwapInt32(&c.channelCount, old, old-1) {
			if old == 1 {
				atomic.AddInt32(&c.noChannelID, 1)
			}
			return
		}
	}
}

// Handle drives the controller's three-way select loop: incoming ops,
// a fatal signal from the connection-state handler, and an idle timer
// that fails the child if no channel has existed for a full window.
func (c *Controller) Handle(ctx context.Context) error {
	type recv struct {
		op  Op
		err error
	}
	ops := make(chan recv, 1)
	go func() {
		for {
			op, err := c.reader.Recv()
			ops <- recv{op: op, err: err}
			if err != nil {
				return
			}
		}
	}()

	// Start below any real counter value so the first empty window only
	// records; the failure requires two consecutive windows with no
	// channels.
	lastNoChannelID := int32(-1)

	for {
		timer := time.NewTimer(c.timeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case err := <-c.fatal:
			timer.Stop()
			return err

		case r := <-ops:
			timer.Stop()
			if r.err != nil {
				return fmt.Errorf("peer: reading op: %w", r.err)
			}
			if err := c.dispatch(r.op); err != nil {
				return err
			}

		case <-timer.C:
			if atomic.LoadInt32(&c.channelCount) == 0 {
				id := atomic.LoadInt32(&c.noChannelID)
				if id == lastNoChannelID {
					return ErrNoChannelTimeout
				}
				lastNoChannelID = id
			}
		}
	}
}

func (c *Controller) dispatch(op Op) error {
	switch op.Tag() {
	case "OfferSDP":
		var sd webrtc.SessionDescription
		if err := json.Unmarshal([]byte(op.OfferSDP), &sd); err != nil {
			return fmt.Errorf("peer: decoding offer sdp: %w", err)
		}
		if err := c.pc.SetRemoteDescription(sd); err != nil {
			return fmt.Errorf("peer: setting remote description: %w", err)
		}
		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("peer: creating answer: %w", err)
		}
		b, err := json.Marshal(answer)
		if err != nil {
			return fmt.Errorf("peer: encoding answer sdp: %w", err)
		}
		if err := c.writer.Send(AnswerSDPOp(string(b))); err != nil {
			return fmt.Errorf("peer: writing answer sdp: %w", err)
		}
		return c.pc.SetLocalDescription(answer)

	case "AnswerSDP":
		var sd webrtc.SessionDescription
		if err := json.Unmarshal([]byte(op.AnswerSDP), &sd); err != nil {
			return fmt.Errorf("peer: decoding answer sdp: %w", err)
		}
		return c.pc.SetRemoteDescription(sd)

	case "Candidate":
		if op.Candidate == "" {
			return nil
		}
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(op.Candidate), &init); err != nil {
			return fmt.Errorf("peer: decoding ice candidate: %w", err)
		}
		return c.pc.AddICECandidate(init)

	case "GetOfferSDP":
		d, err := c.pc.CreateDataChannel(op.GetOfferSDP.ChannelName, nil)
		if err != nil {
			return fmt.Errorf("peer: creating data channel %q: %w", op.GetOfferSDP.ChannelName, err)
		}
		c.setupDataChannel(d)

		offer, err := c.pc.CreateOffer(nil)
		if err != nil {
			return fmt.Errorf("peer: creating offer: %w", err)
		}
		b, err := json.Marshal(offer)
		if err != nil {
			return fmt.Errorf("peer: encoding offer sdp: %w", err)
		}
		if err := c.writer.Send(OfferSDPOp(string(b))); err != nil {
			return fmt.Errorf("peer: writing offer sdp: %w", err)
		}
		return c.pc.SetLocalDescription(offer)

	case "Config":
		return fmt.Errorf("peer: Config op received after initialization")

	default:
		return fmt.Errorf("peer: unknown op tag %q", op.Tag())
	}
}

// Run is the SubP2P child entry point: obtain peer config from the
// first incoming op (a Config op is consumed; anything else falls
// back to DefaultConfig and is then dispatched as the first op), build
// the peer connection, and drive its main loop.
func Run(ctx context.Context, log *zap.Logger, reader *Reader, writer *Writer) error {
	first, err := reader.Recv()
	if err != nil {
		return fmt.Errorf("peer: reading initial op: %w", err)
	}

	cfg := DefaultConfig()
	var pending *Op
	if first.Tag() == "Config" {
		cfg = *first.Config
	} else {
		pending = &first
	}

	ctrl, err := New(log, reader, writer, cfg)
	if err != nil {
		return err
	}

	if pending != nil {
		if err := ctrl.dispatch(*pending); err != nil {
			return err
		}
	}

	return ctrl.Handle(ctx)
}
