package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// socket is one authenticated connection. Spec §5 requires inbound verbs on
// a single socket to be processed in arrival order by a single logical
// dispatcher. familyIDs is still written from other goroutines as well —
// forceLeaveUser, run by another socket's handler, removes families from
// every socket of the affected user — so every access takes mu.
type socket struct {
	id     string
	userID string
	conn   *websocket.Conn

	mu        sync.Mutex
	familyIDs map[string]struct{}

	writeMu sync.Mutex

	hbMu          sync.Mutex
	lastHeartbeat time.Time
	misses        int
}

func newSocket(conn *websocket.Conn, userID string, familyIDs []string) *socket {
	fids := make(map[string]struct{}, len(familyIDs))
	for _, f := range familyIDs {
		fids[f] = struct{}{}
	}
	return &socket{
		id:            uuid.NewString(),
		userID:        userID,
		conn:          conn,
		familyIDs:     fids,
		lastHeartbeat: time.Now(),
	}
}

func (s *socket) hasFamily(familyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.familyIDs[familyID]
	return ok
}

func (s *socket) addFamily(familyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.familyIDs[familyID] = struct{}{}
}

func (s *socket) removeFamily(familyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.familyIDs, familyID)
}

func (s *socket) families() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.familyIDs))
	for f := range s.familyIDs {
		out = append(out, f)
	}
	return out
}

func (s *socket) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *socket) writeControl(messageType int, data []byte, deadline time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteControl(messageType, data, deadline)
}

func (s *socket) touchHeartbeat() {
	s.hbMu.Lock()
	defer s.hbMu.Unlock()
	s.lastHeartbeat = time.Now()
	s.misses = 0
}
