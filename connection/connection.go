// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/concord-team/concord/concorderr"
	"github.com/concord-team/concord/graph"
	"github.com/concord-team/concord/lib/clock"
	"github.com/concord-team/concord/lib/codec"
	"github.com/concord-team/concord/primitives"
	"github.com/concord-team/concord/team"
)

// defaultTimeout is how long a Driver waits in any non-terminal,
// non-Connected phase before giving up and disconnecting.
const defaultTimeout = 30 * time.Second

// Options configures a Driver.
type Options struct {
	// SendMessage ships one encoded Message to the peer. The Driver
	// encodes with lib/codec before calling it; the transport (pipe,
	// TLS socket, relay frame) is entirely the host's concern.
	SendMessage func([]byte) error

	// Team is this side's existing team state. Nil for a brand new
	// invitee, who has none yet.
	Team *team.Team

	// Self describes what this side claims to be.
	Self Identity

	// DeviceEncryptionKeypair is this device's own encryption keypair,
	// used to open the peer's sealed session-seed half (and, for an
	// invitee, the admitter's sealed team key).
	DeviceEncryptionKeypair *primitives.EncryptionKeypair

	// Clock abstracts timeouts for testability. Defaults to clock.Real().
	Clock clock.Clock

	// Timeout bounds every non-terminal phase. Defaults to 30s.
	Timeout time.Duration

	// Events receives "connected", "joined", "updated", "disconnected",
	// "localError", and "remoteError" notifications, mirroring how
	// Team emits "updated" on the same mechanism.
	Events *team.EventEmitter

	Logger *slog.Logger
}

// ConnectedEvent is the "connected" event payload: the negotiated
// session key, ready for the host to use to wrap subsequent traffic.
type ConnectedEvent struct {
	SessionKey []byte
}

// ErrorEvent is the "localError"/"remoteError" event payload.
type ErrorEvent struct {
	Kind concorderr.Kind
}

// Driver is the imperative shell around Step: it owns the clock, the
// Team reference, and the sendMessage callback, and turns every
// Action Step returns into a real effect. All exported methods are
// safe to call from any goroutine.
type Driver struct {
	opts Options

	mu    sync.Mutex
	state State
	team  *team.Team
	timer *clock.Timer
}

// NewDriver constructs a Driver in PhaseDisconnected. Call Start to
// begin the handshake.
func NewDriver(opts Options) *Driver {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Events == nil {
		opts.Events = team.NewEventEmitter()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Driver{opts: opts, team: opts.Team}
}

// Start sends this side's opening message and arms the first timeout.
func (d *Driver) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.apply(Step(d.state, Event{Kind: EventStart}, d.env()))
}

// Stop tears the connection down locally without notifying the peer.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.apply(Step(d.state, Event{Kind: EventStop}, d.env()))
}

// Deliver feeds one message received from the peer into the state
// machine.
func (d *Driver) Deliver(data []byte) error {
	var msg Message
	if err := codec.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("connection: decoding message: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.apply(Step(d.state, Event{Kind: EventMessageReceived, Message: &msg}, d.env()))
	return nil
}

// State returns the current connection State for inspection/logging.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) env() Environment {
	return Environment{
		Team:                    d.team,
		Self:                    d.opts.Self,
		DeviceEncryptionKeypair: d.opts.DeviceEncryptionKeypair,
		Now:                     d.opts.Clock.Now().Unix(),
	}
}

// apply executes actions against real IO, re-entering Step for any
// synthetic follow-up events an action's own execution produces
// (EventAdmitted/EventAdmissionFailed/EventTeamJoined/EventGraphMerged),
// and emits "disconnected" once those actions ran whenever the
// transition moves into PhaseDisconnected from any other phase.
// Must be called with mu held.
func (d *Driver) apply(next State, actions []Action) {
	disconnecting := d.state.Phase != PhaseDisconnected && next.Phase == PhaseDisconnected
	d.state = next
	for _, action := range actions {
		d.perform(action)
	}
	if disconnecting {
		d.opts.Events.Emit("disconnected", struct{}{})
	}
}

func (d *Driver) perform(action Action) {
	switch action.Type {
	case ActionSend:
		data, err := codec.Marshal(action.Message)
		if err != nil {
			d.opts.Logger.Error("connection: encoding outgoing message", "error", err)
			return
		}
		if err := d.opts.SendMessage(data); err != nil {
			d.opts.Logger.Warn("connection: sending message", "error", err)
		}

	case ActionArmTimeout:
		d.cancelTimeout()
		d.timer = d.opts.Clock.AfterFunc(d.opts.Timeout, func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.apply(Step(d.state, Event{Kind: EventTimeout}, d.env()))
		})

	case ActionCancelTimeout:
		d.cancelTimeout()

	case ActionJoinTeam:
		d.performJoinTeam(action)

	case ActionMergeGraph:
		d.performMergeGraph(action)

	case ActionMergeLinkSet:
		d.performMergeLinkSet(action)

	case ActionAdmitMember:
		d.performAdmit(action, false)

	case ActionAdmitDevice:
		d.performAdmit(action, true)

	case ActionEmitConnected:
		d.opts.Events.Emit("connected", ConnectedEvent{SessionKey: action.SessionKey})

	case ActionEmitJoined:
		d.opts.Events.Emit("joined", struct{}{})

	case ActionEmitUpdated:
		d.opts.Events.Emit("updated", struct{}{})

	case ActionEmitLocalErr:
		d.opts.Events.Emit("localError", ErrorEvent{Kind: action.Kind})

	case ActionEmitRemoteErr:
		d.opts.Events.Emit("remoteError", ErrorEvent{Kind: action.Kind})

	case ActionDisconnect:
		d.cancelTimeout()
	}
}

func (d *Driver) cancelTimeout() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// performJoinTeam reconstructs this invitee's *team.Team from an
// ACCEPT_INVITATION payload: the graph snapshot plus the sealed team
// key that closes the bootstrap gap described in team.SealTeamKeyFor's
// doc comment.
func (d *Driver) performJoinTeam(action Action) {
	teamKeys, err := team.OpenTeamKeySeal(action.JoinSealedTeamKey, d.opts.DeviceEncryptionKeypair)
	if err != nil {
		d.opts.Logger.Error("connection: opening sealed team key", "error", err)
		d.apply(Step(d.state, Event{Kind: EventAdmissionFailed, Kind2: concorderr.Of(err)}, d.env()))
		return
	}

	g, err := graph.Load(action.JoinGraph)
	if err != nil {
		d.opts.Logger.Error("connection: loading joined graph", "error", err)
		d.apply(Step(d.state, Event{Kind: EventAdmissionFailed, Kind2: concorderr.KindGraphCorrupt}, d.env()))
		return
	}

	t, err := team.Join(g, teamKeys.Scope, d.opts.Self.UserID, d.opts.Self.DeviceName,
		teamKeys, d.opts.Self.UserSecrets, d.opts.Self.DeviceSecrets, d.opts.Events, d.opts.Logger)
	if err != nil {
		d.opts.Logger.Error("connection: joining team", "error", err)
		d.apply(Step(d.state, Event{Kind: EventAdmissionFailed, Kind2: concorderr.Of(err)}, d.env()))
		return
	}

	d.team = t
	d.apply(Step(d.state, Event{Kind: EventTeamJoined}, d.env()))
}

func (d *Driver) performMergeGraph(action Action) {
	g, err := graph.Load(action.MergeGraph)
	if err != nil {
		d.opts.Logger.Error("connection: loading peer graph snapshot", "error", err)
		return
	}
	if err := d.team.Merge(g); err != nil {
		d.opts.Logger.Error("connection: merging peer graph snapshot", "error", err)
		return
	}
	d.opts.Events.Emit("updated", struct{}{})
	d.apply(Step(d.state, Event{Kind: EventGraphMerged}, d.env()))
}

// performMergeLinkSet applies the missing-links delta a converged
// parent-map exchange produced. A bad delta (a link whose declared
// parent neither arrived with it nor is already held) is logged and
// dropped rather than tearing the connection down. No new sync round
// is started from here, so unless the peer sends another SYNC the
// phase's timeout ends the connection.
func (d *Driver) performMergeLinkSet(action Action) {
	if err := d.team.MergeLinkSet(action.MergeLinks, action.MergeParentOf); err != nil {
		d.opts.Logger.Error("connection: merging peer link set", "error", err)
		return
	}
	d.opts.Events.Emit("updated", struct{}{})
	d.apply(Step(d.state, Event{Kind: EventGraphMerged}, d.env()))
}

func (d *Driver) performAdmit(action Action, forDevice bool) {
	var err error
	if forDevice {
		err = d.team.AdmitDevice(action.AdmitInvitationID, action.AdmitUserID, action.AdmitDeviceName, action.AdmitDeviceSigning, action.AdmitDeviceEncryption)
	} else {
		err = d.team.AdmitMember(action.AdmitInvitationID, action.AdmitUserID, action.AdmitUserName, action.AdmitMemberSigning, action.AdmitMemberEncryption)
		if err == nil {
			// A member invitation mints a member identity and its
			// first device together; AdmitMember only records the
			// former, so the latter is a second, ordinary AddDevice
			// the admitter's own authority covers.
			err = d.team.AddDevice(action.AdmitUserID, action.AdmitDeviceName, action.AdmitDeviceSigning, action.AdmitDeviceEncryption)
		}
	}
	if err != nil {
		d.opts.Logger.Warn("connection: admitting invitee", "error", err)
		d.apply(Step(d.state, Event{Kind: EventAdmissionFailed, Kind2: concorderr.Of(err)}, d.env()))
		return
	}

	sealed, err := d.team.SealTeamKeyFor(action.AdmitDeviceEncryption)
	if err != nil {
		d.opts.Logger.Error("connection: sealing team key for invitee", "error", err)
		d.apply(Step(d.state, Event{Kind: EventAdmissionFailed, Kind2: concorderr.Of(err)}, d.env()))
		return
	}
	graphBytes, err := d.team.Save()
	if err != nil {
		d.opts.Logger.Error("connection: saving graph for invitee", "error", err)
		d.apply(Step(d.state, Event{Kind: EventAdmissionFailed, Kind2: concorderr.Of(err)}, d.env()))
		return
	}

	d.opts.Events.Emit("updated", struct{}{})
	d.apply(Step(d.state, Event{Kind: EventAdmitted, Graph: graphBytes, SealedTeamKey: sealed}, d.env()))
}
