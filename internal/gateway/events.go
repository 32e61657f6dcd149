package gateway

import (
	"context"
	"fmt"

	"familytether/internal/logging"
)

// This file is the C8 event handlers (spec §4.8): each is the composition
// of (a) authorization against the requester's socket membership, (b) the
// matching C3 composite invalidation, (c) the outbound room broadcast.

type userAddedPayload struct {
	FamilyID    string `json:"family_id"`
	AddedUserID string `json:"added_user_id"`
	Role        string `json:"role"`
}

type familyMemberAddedEvent struct {
	Type        string `json:"type"`
	FamilyID    string `json:"family_id"`
	AddedUserID string `json:"added_user_id"`
	Role        string `json:"role"`
}

func (srv *Server) verbUserAddedToFamily(ctx context.Context, sock *socket, frame Frame) {
	payload, ok := decodePayload[userAddedPayload](frame)
	if !ok {
		srv.sendEvent(sock, "user_added_to_family", errAck("malformed payload"))
		return
	}
	if !sock.hasFamily(payload.FamilyID) {
		srv.sendEvent(sock, "user_added_to_family", errAck(errUnauthorizedFamily))
		return
	}

	srv.cache.OnUserJoinsFamily(ctx, payload.AddedUserID, payload.FamilyID)
	srv.broadcastRoomEvent(payload.FamilyID, "family_member_added", familyMemberAddedEvent{
		Type: "family_member_added", FamilyID: payload.FamilyID, AddedUserID: payload.AddedUserID, Role: payload.Role,
	})
	if srv.notify != nil {
		srv.notify.Notify(ctx, payload.AddedUserID, "You were added to a family")
	}
	srv.sendEvent(sock, "user_added_to_family", map[string]any{"success": true, "message": "member added"})
}

type userRemovedPayload struct {
	FamilyID      string `json:"family_id"`
	RemovedUserID string `json:"removed_user_id"`
}

type familyMemberRemovedEvent struct {
	Type          string `json:"type"`
	FamilyID      string `json:"family_id"`
	RemovedUserID string `json:"removed_user_id"`
}

func (srv *Server) verbUserRemovedFromFamily(ctx context.Context, sock *socket, frame Frame) {
	payload, ok := decodePayload[userRemovedPayload](frame)
	if !ok {
		srv.sendEvent(sock, "user_removed_from_family", errAck("malformed payload"))
		return
	}
	if !sock.hasFamily(payload.FamilyID) {
		srv.sendEvent(sock, "user_removed_from_family", errAck(errUnauthorizedFamily))
		return
	}

	srv.cache.OnUserLeavesFamily(ctx, payload.RemovedUserID, payload.FamilyID)
	srv.broadcastRoomEvent(payload.FamilyID, "family_member_removed", familyMemberRemovedEvent{
		Type: "family_member_removed", FamilyID: payload.FamilyID, RemovedUserID: payload.RemovedUserID,
	})
	if srv.notify != nil {
		srv.notify.Notify(ctx, payload.RemovedUserID, "You were removed from a family")
	}
	srv.forceLeaveUser(ctx, payload.RemovedUserID, payload.FamilyID)

	srv.sendEvent(sock, "user_removed_from_family", map[string]bool{"success": true})
}

type familyDeletedEvent struct {
	Type     string `json:"type"`
	FamilyID string `json:"family_id"`
}

func (srv *Server) verbFamilyDeleted(ctx context.Context, sock *socket, frame Frame) {
	payload, ok := decodePayload[familyIDPayload](frame)
	if !ok {
		srv.sendEvent(sock, "family_deleted", errAck("malformed payload"))
		return
	}
	if !sock.hasFamily(payload.FamilyID) {
		srv.sendEvent(sock, "family_deleted", errAck(errUnauthorizedFamily))
		return
	}

	members, err := srv.cache.MembersOf(ctx, payload.FamilyID)
	if err != nil {
		logging.Log.WithError(err).Warn("gateway: family_deleted members snapshot failed")
	}
	memberIDs := make([]string, 0, len(members))
	for _, m := range members {
		memberIDs = append(memberIDs, m.UserID)
	}

	srv.cache.OnFamilyDeleted(ctx, payload.FamilyID, memberIDs)
	if err := srv.privacy.InvalidateFamilyAcrossMembers(ctx, payload.FamilyID); err != nil {
		logging.Log.WithError(err).Warn("gateway: ghost invalidation on family_deleted failed")
	}

	srv.broadcastRoomEvent(payload.FamilyID, "family_deleted", familyDeletedEvent{Type: "family_deleted", FamilyID: payload.FamilyID})
	if alerter, ok := srv.notify.(OperatorAlerter); ok && alerter != nil {
		alerter.AlertOperator(ctx, fmt.Sprintf("family %s deleted (%d members)", payload.FamilyID, len(memberIDs)))
	}

	for _, uid := range memberIDs {
		srv.forceLeaveUser(ctx, uid, payload.FamilyID)
	}

	srv.sendEvent(sock, "family_deleted", map[string]bool{"success": true})
}

type memberRoleUpdatedPayload struct {
	FamilyID string `json:"family_id"`
	UserID   string `json:"user_id"`
	NewRole  string `json:"new_role"`
}

type memberRoleUpdatedEvent struct {
	Type     string `json:"type"`
	FamilyID string `json:"family_id"`
	UserID   string `json:"user_id"`
	NewRole  string `json:"new_role"`
}

func (srv *Server) verbMemberRoleUpdated(ctx context.Context, sock *socket, frame Frame) {
	payload, ok := decodePayload[memberRoleUpdatedPayload](frame)
	if !ok {
		srv.sendEvent(sock, "member_role_updated", errAck("malformed payload"))
		return
	}
	if !sock.hasFamily(payload.FamilyID) {
		srv.sendEvent(sock, "member_role_updated", errAck(errUnauthorizedFamily))
		return
	}

	if err := srv.cache.InvalidateRole(ctx, payload.UserID, payload.FamilyID); err != nil {
		logging.Log.WithError(err).Warn("gateway: role invalidation failed")
	}
	srv.broadcastRoomEvent(payload.FamilyID, "member_role_updated", memberRoleUpdatedEvent{
		Type: "member_role_updated", FamilyID: payload.FamilyID, UserID: payload.UserID, NewRole: payload.NewRole,
	})
	if srv.notify != nil {
		srv.notify.Notify(ctx, payload.UserID, "Your family role changed")
	}
	srv.sendEvent(sock, "member_role_updated", map[string]bool{"success": true})
}

type cacheRefreshedEvent struct {
	Type     string `json:"type"`
	FamilyID string `json:"family_id"`
}

func (srv *Server) verbRefreshFamilyCache(ctx context.Context, sock *socket, frame Frame) {
	payload, ok := decodePayload[familyIDPayload](frame)
	if !ok {
		srv.sendEvent(sock, "refresh_family_cache", errAck("malformed payload"))
		return
	}
	if !sock.hasFamily(payload.FamilyID) {
		srv.sendEvent(sock, "refresh_family_cache", errAck(errUnauthorizedFamily))
		return
	}

	if err := srv.cache.RefreshFamily(ctx, payload.FamilyID); err != nil {
		logging.Log.WithError(err).Warn("gateway: refresh_family_cache failed")
	}
	srv.broadcastRoomEvent(payload.FamilyID, "cache_refreshed", cacheRefreshedEvent{Type: "cache_refreshed", FamilyID: payload.FamilyID})
	srv.sendEvent(sock, "refresh_family_cache", map[string]bool{"success": true})
}

// forceLeaveUser drops every socket of userID from family:<familyID>'s room
// and clears their socket-local family membership, per the
// user_removed_from_family and family_deleted verbs (spec §4.6).
func (srv *Server) forceLeaveUser(ctx context.Context, userID, familyID string) {
	for _, target := range srv.registry.userTargets(userID) {
		if !target.hasFamily(familyID) {
			continue
		}
		target.removeFamily(familyID)
		srv.registry.leave(familyID, target)
	}
	srv.goOfflineIfLastSocket(ctx, userID, familyID, 0)
}
