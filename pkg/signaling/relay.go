// Package signaling pairs two live connections into a call room and forwards
// WebRTC offer/answer/ICE payloads between them verbatim. Room state lives
// only in memory and only while the pairing is active.
package signaling

import (
	"encoding/json"
	"strings"
	"sync"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/metrics"
	"chatrelay/pkg/telemetry"
	"chatrelay/pkg/tracker"
)

// Room lifecycle events.
const (
	EventRoomJoin     = "room:join"
	EventIncomingCall = "incoming-call"
	EventUserJoined   = "user:joined"
	EventCallReject   = "call:reject"
	EventRoomLeave    = "room:leave"
	EventCallEnded    = "call:ended"
)

// Reasons carried by call:ended.
const (
	ReasonRejected     = "rejected"
	ReasonLeft         = "left"
	ReasonDisconnected = "disconnected"
)

type route struct {
	out   string
	field string
}

// forwarded maps an inbound relay event to what the room peer receives.
var forwarded = map[string]route{
	"user:call":        {out: "incomming:calls", field: "offer"},
	"call:accepted":    {out: "call:accepted", field: "ans"},
	"peer:nego:needed": {out: "peer:nego:needed", field: "offer"},
	"peer:nego:done":   {out: "peer:nego:final", field: "ans"},
	"ice:candidate":    {out: "ice:candidate", field: "candidate"},
}

// Transport reaches live connections, by connection id or by user.
type Transport interface {
	SendTo(connID, event string, payload any) bool
	Deliver(userID, event string, payload any) int
}

type room struct {
	id         string
	caller     string // connection id
	callerUser string
	callee     string // user id
	calleeConn string // empty until the callee joins
}

func (r *room) peerOf(connID string) string {
	switch connID {
	case r.caller:
		return r.calleeConn
	case r.calleeConn:
		return r.caller
	}
	return ""
}

type Relay struct {
	tr Transport

	mu     sync.Mutex
	rooms  map[string]*room
	byConn map[string]map[string]struct{}
}

func New(tr Transport) *Relay {
	return &Relay{
		tr:     tr,
		rooms:  make(map[string]*room),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Handles reports whether event belongs to the call flow.
func Handles(event string) bool {
	switch event {
	case EventRoomJoin, EventCallReject, EventRoomLeave:
		return true
	}
	_, ok := forwarded[event]
	return ok
}

// JoinRequest is the payload of room:join. RecUserID is set by the caller
// only.
type JoinRequest struct {
	Room      string `json:"room"`
	RecUserID string `json:"recUserId"`
}

type IncomingCall struct {
	From string `json:"from"`
	Room string `json:"room"`
}

type UserJoined struct {
	UserID string `json:"userId"`
	ID     string `json:"id"`
}

type CallEnded struct {
	Room   string `json:"room"`
	Reason string `json:"reason"`
}

func forbidden(msg string) error {
	return &tracker.Error{Kind: tracker.ErrForbidden, Message: msg}
}

func invalid(msg string) error {
	return &tracker.Error{Kind: tracker.ErrInvalidArgument, Message: msg}
}

// Join opens a room (caller) or binds the invited callee's connection to it.
func (r *Relay) Join(connID, userID string, req JoinRequest) error {
	req.Room = strings.TrimSpace(req.Room)
	if req.Room == "" {
		return invalid("room is required")
	}

	r.mu.Lock()
	rm, ok := r.rooms[req.Room]
	if !ok {
		if req.RecUserID == "" {
			r.mu.Unlock()
			return invalid("recUserId is required to open a room")
		}
		if req.RecUserID == userID {
			r.mu.Unlock()
			return invalid("cannot call yourself")
		}
		rm = &room{id: req.Room, caller: connID, callerUser: userID, callee: req.RecUserID}
		r.rooms[rm.id] = rm
		r.track(connID, rm.id)
		r.mu.Unlock()

		metrics.CallRooms.Inc()
		logger.Debug("call_room_opened", "room", rm.id, "caller", userID, "callee", rm.callee)
		r.tr.Deliver(rm.callee, EventIncomingCall, IncomingCall{From: userID, Room: rm.id})
		return nil
	}

	switch {
	case connID == rm.caller || connID == rm.calleeConn:
		r.mu.Unlock()
		return nil
	case userID != rm.callee:
		r.mu.Unlock()
		return forbidden("not invited to room " + rm.id)
	case rm.calleeConn != "":
		r.mu.Unlock()
		return forbidden("room " + rm.id + " is already paired")
	}
	rm.calleeConn = connID
	r.track(connID, rm.id)
	caller := rm.caller
	r.mu.Unlock()

	logger.Debug("call_room_paired", "room", rm.id, "callee", userID)
	r.tr.SendTo(caller, EventUserJoined, UserJoined{UserID: userID, ID: connID})
	return nil
}

// Forward relays one offer/answer/ICE event to the emitter's room peer. The
// payload field is passed through without being decoded.
func (r *Relay) Forward(connID, event string, data json.RawMessage) error {
	tr := telemetry.Track("signaling.forward")
	defer tr.Finish()

	rt, ok := forwarded[event]
	if !ok {
		return invalid("unknown call event " + event)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return invalid("malformed " + event + " payload")
	}
	var to string
	if raw, ok := fields["to"]; ok {
		if err := json.Unmarshal(raw, &to); err != nil {
			return invalid("to must be a string")
		}
	}
	if to == "" {
		return invalid("to is required")
	}
	body, ok := fields[rt.field]
	if !ok {
		return invalid(rt.field + " is required")
	}

	r.mu.Lock()
	paired := false
	for id := range r.byConn[connID] {
		if rm := r.rooms[id]; rm != nil && rm.peerOf(connID) == to {
			paired = true
			break
		}
	}
	r.mu.Unlock()
	if !paired {
		return forbidden("not paired with " + to)
	}

	r.tr.SendTo(to, rt.out, map[string]any{"from": connID, rt.field: body})
	return nil
}

// Reject tears down a room the callee declined. Either party may call it.
func (r *Relay) Reject(connID, userID, roomID string) error {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return &tracker.Error{Kind: tracker.ErrNotFound, Message: "room " + roomID + " not found"}
	}
	if userID != rm.callee && connID != rm.caller {
		r.mu.Unlock()
		return forbidden("not a party to room " + roomID)
	}
	r.remove(rm)
	r.mu.Unlock()

	r.notifyEnded(rm, connID, ReasonRejected)
	return nil
}

// RejectFrom declines every pending call userID has from caller, for clients
// that only know who is calling.
func (r *Relay) RejectFrom(connID, userID, caller string) error {
	r.mu.Lock()
	var ended []*room
	for _, rm := range r.rooms {
		if rm.callee == userID && rm.callerUser == caller && rm.calleeConn == "" {
			r.remove(rm)
			ended = append(ended, rm)
		}
	}
	r.mu.Unlock()
	if len(ended) == 0 {
		return &tracker.Error{Kind: tracker.ErrNotFound, Message: "no pending call from " + caller}
	}
	for _, rm := range ended {
		r.notifyEnded(rm, connID, ReasonRejected)
	}
	return nil
}

// Leave tears down a room the connection is part of.
func (r *Relay) Leave(connID, roomID string) error {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return &tracker.Error{Kind: tracker.ErrNotFound, Message: "room " + roomID + " not found"}
	}
	if connID != rm.caller && connID != rm.calleeConn {
		r.mu.Unlock()
		return forbidden("not a party to room " + roomID)
	}
	r.remove(rm)
	r.mu.Unlock()

	r.notifyEnded(rm, connID, ReasonLeft)
	return nil
}

// Disconnect tears down every room connID is part of.
func (r *Relay) Disconnect(connID string) {
	r.mu.Lock()
	var ended []*room
	for id := range r.byConn[connID] {
		if rm := r.rooms[id]; rm != nil {
			r.remove(rm)
			ended = append(ended, rm)
		}
	}
	delete(r.byConn, connID)
	r.mu.Unlock()

	for _, rm := range ended {
		r.notifyEnded(rm, connID, ReasonDisconnected)
	}
}

// Rooms is the number of open rooms.
func (r *Relay) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// notifyEnded tells the other side of rm, unless it is the one ending it.
// An unpaired callee is reached through its user so a ringing client stops.
func (r *Relay) notifyEnded(rm *room, by, reason string) {
	msg := CallEnded{Room: rm.id, Reason: reason}
	switch {
	case by == rm.caller && rm.calleeConn != "":
		r.tr.SendTo(rm.calleeConn, EventCallEnded, msg)
	case by == rm.caller:
		r.tr.Deliver(rm.callee, EventCallEnded, msg)
	default:
		r.tr.SendTo(rm.caller, EventCallEnded, msg)
	}
	logger.Debug("call_room_closed", "room", rm.id, "reason", reason)
}

// must hold mu
func (r *Relay) track(connID, roomID string) {
	set, ok := r.byConn[connID]
	if !ok {
		set = make(map[string]struct{})
		r.byConn[connID] = set
	}
	set[roomID] = struct{}{}
}

// must hold mu
func (r *Relay) remove(rm *room) {
	if _, ok := r.rooms[rm.id]; !ok {
		return
	}
	delete(r.rooms, rm.id)
	for _, c := range []string{rm.caller, rm.calleeConn} {
		if set, ok := r.byConn[c]; ok {
			delete(set, rm.id)
			if len(set) == 0 {
				delete(r.byConn, c)
			}
		}
	}
	metrics.CallRooms.Dec()
}
