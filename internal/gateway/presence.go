package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"familytether/internal/logging"
)

type presenceUpdateEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	FamilyID string `json:"family_id"`
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen,omitempty"`
}

// goOnline marks (user, family) online in the cache and publishes
// presence_update{status:"online"} to the room (spec §4.6 AUTHENTICATING
// and join_family paths).
func (srv *Server) goOnline(ctx context.Context, userID, familyID string) {
	if err := srv.cache.SetOnline(ctx, userID, familyID); err != nil {
		logging.Log.WithError(err).Warn("gateway: set_online failed")
	}
	srv.publishPresence(ctx, userID, familyID, "online", 0)
}

// goOfflineIfLastSocket clears online and broadcasts presence_update only
// when the departing socket was the user's last one joined to familyID,
// satisfying P4: presence is online iff n >= 1 open sockets.
func (srv *Server) goOfflineIfLastSocket(ctx context.Context, userID, familyID string, lastSeenMs int64) {
	if srv.registry.userSocketCountInFamily(userID, familyID) > 0 {
		return
	}
	if err := srv.cache.ClearOnline(ctx, userID, familyID); err != nil {
		logging.Log.WithError(err).Warn("gateway: clear_online failed")
	}
	srv.publishPresence(ctx, userID, familyID, "offline", lastSeenMs)
}

func (srv *Server) publishPresence(ctx context.Context, userID, familyID, status string, lastSeenMs int64) {
	event := presenceUpdateEvent{Type: "presence_update", UserID: userID, FamilyID: familyID, Status: status, LastSeen: lastSeenMs}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	channel := fmt.Sprintf("family:%s:location", familyID)
	if err := srv.kv.Publish(ctx, channel, payload); err != nil {
		logging.Log.WithError(err).Warn("gateway: presence publish failed")
	}
}
