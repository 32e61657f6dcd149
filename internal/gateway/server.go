package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"familytether/internal/auth"
	"familytether/internal/cache"
	"familytether/internal/concurrency"
	"familytether/internal/kv"
	"familytether/internal/latency"
	"familytether/internal/location"
	"familytether/internal/logging"
	"familytether/internal/privacy"
)

var sendLatency latency.Ring

// MessageP99 returns the p99 of recent gateway send latencies.
func MessageP99() time.Duration {
	return sendLatency.P99()
}

// Notifier delivers a best-effort out-of-band notification to a user
// outside the socket layer (e.g. Discord DM). Optional; nil disables it.
type Notifier interface {
	Notify(ctx context.Context, userID, message string)
}

// OperatorAlerter is an optional extension a Notifier may also implement to
// surface family-wide events to an operator, independent of any single
// user's DMs. Only family_deleted raises such an alert.
type OperatorAlerter interface {
	AlertOperator(ctx context.Context, message string)
}

// Server is the C6 gateway plus the C8 event handlers layered on top of it.
// It generalizes the teacher's websocket.Server: same upgrade/hello/
// heartbeat/write-mutex machinery, rebuilt around family rooms instead of
// Discord user subscriptions.
type Server struct {
	kv       kv.Client
	cache    *cache.Cache
	location *location.Service
	privacy  *privacy.Service
	verifier auth.TokenVerifier
	notify   Notifier

	upgrader websocket.Upgrader
	registry *registry
}

// Config bundles Server's dependencies.
type Config struct {
	KV       kv.Client
	Cache    *cache.Cache
	Location *location.Service
	Privacy  *privacy.Service
	Verifier auth.TokenVerifier
	Notifier Notifier
}

// NewServer builds a gateway Server. It starts no bus subscriptions; those
// are wired separately (see internal/bus) — this constructor only prepares
// the socket-facing half.
func NewServer(cfg Config) *Server {
	return &Server{
		kv:       cfg.KV,
		cache:    cfg.Cache,
		location: cfg.Location,
		privacy:  cfg.Privacy,
		verifier: cfg.Verifier,
		notify:   cfg.Notifier,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		registry: newRegistry(),
	}
}

// ServeHTTP implements the NEW -> AUTHENTICATING -> OPEN handshake of spec
// §4.6. When the bearer token arrives via the Authorization header or the
// "token" query parameter, it's verified before the upgrade so a rejected
// connection never consumes a websocket slot. The third source — a token
// carried in the socket's first frame — only exists once the socket is
// open, so that case upgrades first and waits briefly in NEW state for
// the auth frame before DISCONNECT.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var claims auth.Claims
	token, haveToken := auth.ExtractToken(r, "")
	if haveToken {
		var err error
		claims, err = srv.verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Log.WithError(err).Warn("gateway: upgrade failed")
		return
	}
	conn.SetReadLimit(1 << 20)

	if !haveToken {
		token, haveToken = srv.awaitAuthFrame(conn)
		if !haveToken {
			srv.rejectConn(conn, 4001, "missing bearer token")
			return
		}
		claims, err = srv.verifier.Verify(token)
		if err != nil {
			srv.rejectConn(conn, 4001, "invalid token")
			return
		}
	}

	familyIDs, err := srv.cache.FamiliesOf(ctx, claims.UserID)
	if err != nil {
		logging.Log.WithError(err).WithField("user_id", claims.UserID).Warn("gateway: families_of failed during auth")
		familyIDs = nil
	}

	sock := newSocket(conn, claims.UserID, familyIDs)
	srv.registry.addSocket(sock)
	for _, fid := range familyIDs {
		srv.registry.join(fid, sock)
		srv.goOnline(ctx, claims.UserID, fid)
	}

	srv.sendHello(sock)
	_ = sock.writeJSON(Frame{Op: opEvent, T: "connected", D: connectedPayload{UserID: claims.UserID, FamilyIDs: familyIDs}})

	concurrency.GoSafe(func() { srv.watchHeartbeats(sock) })
	srv.handleConn(ctx, sock)
}

// awaitAuthFrame reads the socket's first frame, expecting Op=opAuth
// carrying {"token": "..."}. It's the NEW-state fallback for a socket that
// opened without a header or query token (spec §4.6's third bearer
// source). conn has had no deadline set yet; one is installed for the
// duration of this read and cleared before returning.
func (srv *Server) awaitAuthFrame(conn *websocket.Conn) (string, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(authFrameTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return "", false
	}
	if frame.Op != opAuth {
		return "", false
	}
	payload, ok := decodePayload[authPayload](frame)
	if !ok || payload.Token == "" {
		return "", false
	}
	return payload.Token, true
}

// rejectConn closes a socket still in NEW state with a close frame,
// without ever reaching AUTHENTICATING or joining any room.
func (srv *Server) rejectConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = conn.Close()
}

func (srv *Server) sendHello(sock *socket) {
	_ = sock.writeJSON(Frame{Op: opHello, D: helloPayload{HeartbeatInterval: heartbeatIntervalMs}})
}

func (srv *Server) handleConn(ctx context.Context, sock *socket) {
	defer srv.cleanupConn(ctx, sock)
	for {
		var frame Frame
		if err := sock.conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Op {
		case opHeartbeat:
			sock.touchHeartbeat()
			_ = sock.writeJSON(Frame{Op: opHeartbeat})
		case opVerb:
			srv.dispatch(ctx, sock, frame)
		default:
			srv.closeWithCode(ctx, sock, 4004, "unknown_opcode")
			return
		}
	}
}

func (srv *Server) sendEvent(sock *socket, t string, data any) {
	start := time.Now()
	err := sock.writeJSON(Frame{Op: opEvent, T: t, D: data})
	sendLatency.Record(time.Since(start))
	if err != nil {
		logging.Log.WithError(err).Warn("gateway: send failed")
	}
}

func (srv *Server) cleanupConn(ctx context.Context, sock *socket) {
	srv.registry.removeSocket(sock)
	lastSeen := time.Now().UnixMilli()
	for _, fid := range sock.families() {
		srv.goOfflineIfLastSocket(ctx, sock.userID, fid, lastSeen)
	}
	_ = sock.conn.Close()
}

func (srv *Server) closeWithCode(ctx context.Context, sock *socket, code int, reason string) {
	_ = sock.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	srv.cleanupConn(ctx, sock)
}

func (srv *Server) watchHeartbeats(sock *socket) {
	ticker := time.NewTicker(heartbeatIntervalMs * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		sock.hbMu.Lock()
		since := time.Since(sock.lastHeartbeat)
		expected := heartbeatIntervalMs*time.Millisecond + heartbeatJitter
		if since > expected {
			sock.misses++
		} else {
			sock.misses = 0
		}
		misses := sock.misses
		sock.hbMu.Unlock()

		if misses >= maxHeartbeatMisses || since > heartbeatTimeoutMs*time.Millisecond {
			logging.Log.WithField("socket_id", sock.id).Warn("gateway: heartbeat timeout")
			srv.cleanupConn(context.Background(), sock)
			return
		}
	}
}

// BroadcastRoom sends a raw payload to every socket currently joined to
// family:<familyID>, used by the C7 bus dispatcher. Targets are copied out
// under the registry lock before any write, matching spec §5's
// callback-during-mutation avoidance.
func (srv *Server) BroadcastRoom(familyID string, payload []byte) {
	for _, sock := range srv.registry.roomTargets(familyID) {
		srv.writeRaw(sock, payload)
	}
}

// SendToUser sends a raw payload to every socket belonging to userID.
func (srv *Server) SendToUser(userID string, payload []byte) {
	for _, sock := range srv.registry.userTargets(userID) {
		srv.writeRaw(sock, payload)
	}
}

func (srv *Server) writeRaw(sock *socket, payload []byte) {
	sock.writeMu.Lock()
	defer sock.writeMu.Unlock()
	if err := sock.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		logging.Log.WithError(err).Warn("gateway: room broadcast write failed")
	}
}
