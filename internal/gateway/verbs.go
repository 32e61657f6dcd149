package gateway

import (
	"context"
	"encoding/json"
	"time"

	"familytether/internal/location"
	"familytether/internal/logging"
)

type ackError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func errAck(message string) ackError { return ackError{Success: false, Error: message} }

const errUnauthorizedFamily = "Unauthorized family access"

// dispatch routes one inbound verb frame (spec §4.6's table) to its
// handler and writes back the ack. All verbs require the socket to already
// be OPEN, which is guaranteed here since handleConn only reaches dispatch
// after the handshake completes.
func (srv *Server) dispatch(ctx context.Context, sock *socket, frame Frame) {
	switch frame.Verb {
	case "location_update":
		srv.verbLocationUpdate(ctx, sock, frame)
	case "ping":
		srv.sendEvent(sock, "pong", map[string]int64{"server_ts_ms": time.Now().UnixMilli()})
	case "join_family":
		srv.verbJoinFamily(ctx, sock, frame)
	case "leave_family":
		srv.verbLeaveFamily(ctx, sock, frame)
	case "ghost_mode":
		srv.verbGhostMode(ctx, sock, frame)
	case "user_added_to_family":
		srv.verbUserAddedToFamily(ctx, sock, frame)
	case "user_removed_from_family":
		srv.verbUserRemovedFromFamily(ctx, sock, frame)
	case "family_deleted":
		srv.verbFamilyDeleted(ctx, sock, frame)
	case "member_role_updated":
		srv.verbMemberRoleUpdated(ctx, sock, frame)
	case "refresh_family_cache":
		srv.verbRefreshFamilyCache(ctx, sock, frame)
	default:
		srv.sendEvent(sock, frame.Verb, errAck("unknown verb"))
	}
}

func decodePayload[T any](frame Frame) (T, bool) {
	var out T
	raw, err := json.Marshal(frame.D)
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}

type locationUpdatePayload struct {
	FamilyID     string   `json:"family_id"`
	Latitude     float64  `json:"lat"`
	Longitude    float64  `json:"lon"`
	Accuracy     float64  `json:"accuracy"`
	ClientTSMs   int64    `json:"client_ts_ms"`
	BatteryPct   *int     `json:"battery_pct,omitempty"`
	BatteryState string   `json:"battery_state,omitempty"`
}

func (srv *Server) verbLocationUpdate(ctx context.Context, sock *socket, frame Frame) {
	payload, ok := decodePayload[locationUpdatePayload](frame)
	if !ok {
		srv.sendEvent(sock, "location_update", errAck("malformed payload"))
		return
	}
	if !sock.hasFamily(payload.FamilyID) {
		srv.sendEvent(sock, "location_update", errAck(errUnauthorizedFamily))
		return
	}
	result, err := srv.location.Ingest(ctx, sock.userID, location.Sample{
		FamilyID: payload.FamilyID, Latitude: payload.Latitude, Longitude: payload.Longitude,
		Accuracy: payload.Accuracy, ClientTSMs: payload.ClientTSMs,
		BatteryPct: payload.BatteryPct, BatteryState: payload.BatteryState,
	})
	if err != nil {
		logging.Log.WithError(err).Warn("gateway: ingest failed")
		srv.sendEvent(sock, "location_update", errAck("transient backend failure, retry"))
		return
	}
	srv.sendEvent(sock, "location_update", map[string]any{"success": true, "server_ts_ms": result.ServerTSMs})
}

type familyIDPayload struct {
	FamilyID string `json:"family_id"`
}

func (srv *Server) verbJoinFamily(ctx context.Context, sock *socket, frame Frame) {
	payload, ok := decodePayload[familyIDPayload](frame)
	if !ok {
		srv.sendEvent(sock, "join_family", errAck("malformed payload"))
		return
	}
	_, memberOK, err := srv.cache.RoleOf(ctx, sock.userID, payload.FamilyID)
	if err != nil || !memberOK {
		srv.sendEvent(sock, "join_family", errAck(errUnauthorizedFamily))
		return
	}
	sock.addFamily(payload.FamilyID)
	srv.registry.join(payload.FamilyID, sock)
	srv.goOnline(ctx, sock.userID, payload.FamilyID)
	srv.sendEvent(sock, "join_family", map[string]any{"success": true, "family_id": payload.FamilyID})
}

func (srv *Server) verbLeaveFamily(ctx context.Context, sock *socket, frame Frame) {
	payload, ok := decodePayload[familyIDPayload](frame)
	if !ok {
		srv.sendEvent(sock, "leave_family", errAck("malformed payload"))
		return
	}
	sock.removeFamily(payload.FamilyID)
	srv.registry.leave(payload.FamilyID, sock)
	srv.goOfflineIfLastSocket(ctx, sock.userID, payload.FamilyID, time.Now().UnixMilli())
	srv.sendEvent(sock, "leave_family", map[string]any{"success": true, "family_id": payload.FamilyID})
}

type ghostModePayload struct {
	Enabled  bool   `json:"enabled"`
	Scope    string `json:"scope"`
	FamilyID string `json:"family_id,omitempty"`
}

type ghostModeEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	FamilyID string `json:"family_id,omitempty"`
	Enabled  bool   `json:"enabled"`
	Scope    string `json:"scope"`
}

func (srv *Server) verbGhostMode(ctx context.Context, sock *socket, frame Frame) {
	payload, ok := decodePayload[ghostModePayload](frame)
	if !ok {
		srv.sendEvent(sock, "ghost_mode", errAck("malformed payload"))
		return
	}
	if payload.Scope == "family" && (payload.FamilyID == "" || !sock.hasFamily(payload.FamilyID)) {
		srv.sendEvent(sock, "ghost_mode", errAck(errUnauthorizedFamily))
		return
	}

	var err error
	affected := sock.families()
	switch payload.Scope {
	case "global":
		err = srv.privacy.SetGlobalGhost(ctx, sock.userID, payload.Enabled)
	case "family":
		err = srv.privacy.SetFamilyGhost(ctx, sock.userID, payload.FamilyID, payload.Enabled)
		affected = []string{payload.FamilyID}
	default:
		srv.sendEvent(sock, "ghost_mode", errAck("invalid scope"))
		return
	}
	if err != nil {
		logging.Log.WithError(err).Warn("gateway: ghost_mode write failed")
		srv.sendEvent(sock, "ghost_mode", errAck("transient backend failure"))
		return
	}

	for _, fid := range affected {
		srv.broadcastRoomEvent(fid, "ghost_mode", ghostModeEvent{
			Type: "ghost_mode", UserID: sock.userID, FamilyID: fid, Enabled: payload.Enabled, Scope: payload.Scope,
		})
	}
	srv.sendEvent(sock, "ghost_mode", map[string]bool{"success": true})
}

// broadcastRoomEvent delivers an event to every socket currently joined to
// family:<familyID> on THIS instance. These C8 broadcasts (membership and
// role mutations) are not also published through C1 pub/sub — unlike
// location_update/geofence_alert/notification, spec §4.6 lists them
// separately from the bus-routed outbound events, so they stay local to
// the instance that handled the originating verb (see DESIGN.md).
func (srv *Server) broadcastRoomEvent(familyID, eventType string, data any) {
	for _, target := range srv.registry.roomTargets(familyID) {
		srv.sendEvent(target, eventType, data)
	}
}
