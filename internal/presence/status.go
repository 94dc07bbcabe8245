package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status user-level online status
type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

// statusTTL keys expire if the heartbeat stops (heartbeat runs every 30s)
const statusTTL = 60 * time.Second

// StatusData is the value stored per online user
type StatusData struct {
	UserID        int64  `json:"user_id"`
	Status        Status `json:"status"`
	LastHeartbeat int64  `json:"last_heartbeat"`
}

// StatusManager tracks which users currently hold a realtime connection,
// backed by Redis TTL keys so a crashed process cannot leave users
// permanently "online".
type StatusManager struct {
	client *redis.Client
}

// NewStatusManager connects to Redis and verifies the connection
func NewStatusManager(addr, password string, db int) (*StatusManager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Presence] Connected to Redis at %s", addr)
	return &StatusManager{client: client}, nil
}

func userKey(userID int64) string {
	return fmt.Sprintf("presence:user:%d", userID)
}

// SetOnline marks a user online (called on realtime connect)
func (m *StatusManager) SetOnline(ctx context.Context, userID int64) error {
	data := StatusData{
		UserID:        userID,
		Status:        StatusOnline,
		LastHeartbeat: time.Now().Unix(),
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return m.client.Set(ctx, userKey(userID), jsonData, statusTTL).Err()
}

// Heartbeat extends the TTL while the connection is alive
func (m *StatusManager) Heartbeat(ctx context.Context, userID int64) error {
	ok, err := m.client.Expire(ctx, userKey(userID), statusTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		// key expired underneath us, re-create it
		return m.SetOnline(ctx, userID)
	}
	return nil
}

// SetOffline removes the status key (called on disconnect)
func (m *StatusManager) SetOffline(ctx context.Context, userID int64) error {
	return m.client.Del(ctx, userKey(userID)).Err()
}

// GetMulti returns status data for the given users; absent users are offline
func (m *StatusManager) GetMulti(ctx context.Context, userIDs []int64) (map[int64]*StatusData, error) {
	if len(userIDs) == 0 {
		return map[int64]*StatusData{}, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = userKey(id)
	}

	results, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	statusMap := make(map[int64]*StatusData)
	for i, result := range results {
		if result == nil {
			continue // offline
		}

		strVal, ok := result.(string)
		if !ok {
			continue
		}

		var data StatusData
		if err := json.Unmarshal([]byte(strVal), &data); err == nil {
			statusMap[userIDs[i]] = &data
		}
	}

	return statusMap, nil
}

// Close shuts the Redis client down
func (m *StatusManager) Close() error {
	return m.client.Close()
}
