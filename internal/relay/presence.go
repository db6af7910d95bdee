package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BioHazard786/warpcall/internal/signaling"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// Member is a presence record for one participant.
type Member struct {
	UserID   string    `json:"userId" msgpack:"u"`
	UserName string    `json:"userName" msgpack:"n"`
	IsHost   bool      `json:"isHost" msgpack:"h"`
	JoinedAt time.Time `json:"joinedAt" msgpack:"t"`
}

// Presence records who is in which session, for the HTTP API and for relays
// sharing one store.
type Presence interface {
	Join(ctx context.Context, sessionID string, p signaling.ParticipantInfo) error
	Leave(ctx context.Context, sessionID, userID string) error
	// Members returns the session's members ordered by join time.
	Members(ctx context.Context, sessionID string) ([]Member, error)
}

func sortMembers(ms []Member) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].JoinedAt.Before(ms[j].JoinedAt) })
}

// MemoryPresence keeps presence in process.
type MemoryPresence struct {
	mu       sync.Mutex
	sessions map[string]map[string]Member
	now      func() time.Time
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{sessions: make(map[string]map[string]Member), now: time.Now}
}

func (m *MemoryPresence) Join(_ context.Context, sessionID string, p signaling.ParticipantInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		s = make(map[string]Member)
		m.sessions[sessionID] = s
	}
	s[p.UserID] = Member{UserID: p.UserID, UserName: p.UserName, IsHost: p.IsHost, JoinedAt: m.now()}
	return nil
}

func (m *MemoryPresence) Leave(_ context.Context, sessionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(s, userID)
	if len(s) == 0 {
		delete(m.sessions, sessionID)
	}
	return nil
}

func (m *MemoryPresence) Members(_ context.Context, sessionID string) ([]Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Member, 0, len(m.sessions[sessionID]))
	for _, mem := range m.sessions[sessionID] {
		out = append(out, mem)
	}
	sortMembers(out)
	return out, nil
}

// RedisPresence stores each session as a Redis hash of msgpack-encoded
// members keyed by user id. The hash expires ttl after the last join.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// RedisOptions locate the Redis server.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisPresence connects to Redis and verifies the connection.
func NewRedisPresence(ctx context.Context, opts RedisOptions) (*RedisPresence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return &RedisPresence{client: client, ttl: opts.TTL, now: time.Now}, nil
}

func presenceKey(sessionID string) string {
	return "warpcall:session:" + sessionID + ":members"
}

func (r *RedisPresence) Join(ctx context.Context, sessionID string, p signaling.ParticipantInfo) error {
	data, err := encodeMember(Member{UserID: p.UserID, UserName: p.UserName, IsHost: p.IsHost, JoinedAt: r.now()})
	if err != nil {
		return err
	}
	key := presenceKey(sessionID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, p.UserID, data)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence join: %w", err)
	}
	return nil
}

// Leave removes the member. Redis deletes the hash with its last field.
func (r *RedisPresence) Leave(ctx context.Context, sessionID, userID string) error {
	if err := r.client.HDel(ctx, presenceKey(sessionID), userID).Err(); err != nil {
		return fmt.Errorf("presence leave: %w", err)
	}
	return nil
}

func (r *RedisPresence) Members(ctx context.Context, sessionID string) ([]Member, error) {
	fields, err := r.client.HGetAll(ctx, presenceKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence members: %w", err)
	}
	out := make([]Member, 0, len(fields))
	for id, raw := range fields {
		m, err := decodeMember([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("presence member %s: %w", id, err)
		}
		out = append(out, m)
	}
	sortMembers(out)
	return out, nil
}

func (r *RedisPresence) Close() error {
	return r.client.Close()
}

func encodeMember(m Member) ([]byte, error) {
	data, err := msgpack.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("encode member: %w", err)
	}
	return data, nil
}

func decodeMember(data []byte) (Member, error) {
	var m Member
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return Member{}, fmt.Errorf("decode member: %w", err)
	}
	return m, nil
}
