package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcdev12/bidroom/go/internal/models"
)

const (
	defaultRoomTTL = 24 * time.Hour
	maxTxRetries   = 5
)

// joinScript seats or reclaims a participant atomically.
//
// KEYS[1] room record, KEYS[2] participants hash, KEYS[3] join order list
// ARGV[1] name, ARGV[2] new participant json, ARGV[3] last_seen
var joinScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return {-1, ''}
end
local raw = redis.call('HGET', KEYS[2], ARGV[1])
if raw then
	local p = cjson.decode(raw)
	if p['online'] then
		return {0, raw}
	end
	p['last_seen'] = ARGV[3]
	local out = cjson.encode(p)
	redis.call('HSET', KEYS[2], ARGV[1], out)
	return {2, out}
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('RPUSH', KEYS[3], ARGV[1])
return {1, ARGV[2]}
`)

// claimScript hands a team to a participant and frees the one they held.
//
// KEYS[1] claims hash, KEYS[2] participants hash
// ARGV[1] team id, ARGV[2] name
var claimScript = redis.NewScript(`
local raw = redis.call('HGET', KEYS[2], ARGV[2])
if not raw then
	return {-1, ''}
end
local holder = redis.call('HGET', KEYS[1], ARGV[1])
if holder and holder ~= ARGV[2] then
	return {0, holder}
end
local p = cjson.decode(raw)
local prev = p['team_id'] or ''
if prev ~= '' and prev ~= ARGV[1] then
	redis.call('HDEL', KEYS[1], prev)
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
p['team_id'] = ARGV[1]
redis.call('HSET', KEYS[2], ARGV[2], cjson.encode(p))
if prev == ARGV[1] then
	prev = ''
end
return {1, prev}
`)

// Redis shares the directory between instances.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient parses url, applies pool settings and pings the server.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultRoomTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Keys of one room share a hash tag so scripts can touch them together on
// a cluster.
func roomKey(code string) string         { return fmt.Sprintf("bidroom:room:{%s}", strings.ToUpper(code)) }
func participantsKey(code string) string { return roomKey(code) + ":participants" }
func orderKey(code string) string        { return roomKey(code) + ":order" }
func claimsKey(code string) string       { return roomKey(code) + ":claims" }

func (d *Redis) CreateRoom(ctx context.Context, room Room, host models.Participant) error {
	room.Code = strings.ToUpper(room.Code)
	host.TeamID = ""

	roomJSON, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	hostJSON, err := json.Marshal(host)
	if err != nil {
		return fmt.Errorf("marshal participant: %w", err)
	}

	ok, err := d.client.SetNX(ctx, roomKey(room.Code), roomJSON, d.ttl).Result()
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	if !ok {
		return ErrRoomExists
	}

	_, err = d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, participantsKey(room.Code), orderKey(room.Code), claimsKey(room.Code))
		pipe.HSet(ctx, participantsKey(room.Code), host.Name, hostJSON)
		pipe.RPush(ctx, orderKey(room.Code), host.Name)
		pipe.Expire(ctx, participantsKey(room.Code), d.ttl)
		pipe.Expire(ctx, orderKey(room.Code), d.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("seat host: %w", err)
	}
	return nil
}

func (d *Redis) GetRoom(ctx context.Context, code string) (Room, error) {
	raw, err := d.client.Get(ctx, roomKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("get room: %w", err)
	}
	var room Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return Room{}, fmt.Errorf("decode room: %w", err)
	}
	return room, nil
}

func (d *Redis) SetStatus(ctx context.Context, code string, status models.RoomStatus) error {
	key := roomKey(code)
	return d.watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		var room Room
		if err := json.Unmarshal(raw, &room); err != nil {
			return fmt.Errorf("decode room: %w", err)
		}
		room.Status = status
		data, err := json.Marshal(room)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		return err
	}, key)
}

func (d *Redis) DeleteRoom(ctx context.Context, code string) error {
	if err := d.client.Del(ctx, roomKey(code), participantsKey(code), orderKey(code), claimsKey(code)).Err(); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

func (d *Redis) Join(ctx context.Context, code, name string, at time.Time) (JoinResult, error) {
	fresh := models.Participant{Name: name, Role: models.RolePlayer, LastSeen: at}
	data, err := json.Marshal(fresh)
	if err != nil {
		return JoinResult{}, fmt.Errorf("marshal participant: %w", err)
	}
	lastSeen, err := at.MarshalText()
	if err != nil {
		return JoinResult{}, err
	}

	status, raw, err := runPair(ctx, joinScript, d.client,
		[]string{roomKey(code), participantsKey(code), orderKey(code)},
		name, data, string(lastSeen))
	if err != nil {
		return JoinResult{}, fmt.Errorf("join: %w", err)
	}

	switch status {
	case -1:
		return JoinResult{}, ErrRoomNotFound
	case 0:
		return JoinResult{}, ErrNameTaken
	}
	var p models.Participant
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return JoinResult{}, fmt.Errorf("decode participant: %w", err)
	}
	d.client.Expire(ctx, participantsKey(code), d.ttl)
	d.client.Expire(ctx, orderKey(code), d.ttl)
	return JoinResult{Participant: p, Reconnected: status == 2}, nil
}

func (d *Redis) Participants(ctx context.Context, code string) ([]models.Participant, error) {
	if err := d.requireRoom(ctx, code); err != nil {
		return nil, err
	}

	var order *redis.StringSliceCmd
	var all *redis.MapStringStringCmd
	_, err := d.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		order = pipe.LRange(ctx, orderKey(code), 0, -1)
		all = pipe.HGetAll(ctx, participantsKey(code))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	byName := all.Val()
	out := make([]models.Participant, 0, len(byName))
	for _, name := range order.Val() {
		raw, ok := byName[name]
		if !ok {
			continue
		}
		var p models.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode participant %s: %w", name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (d *Redis) UpdateParticipant(ctx context.Context, code, name string, fn func(*models.Participant)) (models.Participant, error) {
	if err := d.requireRoom(ctx, code); err != nil {
		return models.Participant{}, err
	}

	key := participantsKey(code)
	var updated models.Participant
	err := d.watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, name).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrParticipantNotFound
		}
		if err != nil {
			return err
		}
		var p models.Participant
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode participant: %w", err)
		}
		team := p.TeamID
		fn(&p)
		p.TeamID = team
		p.Name = name

		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, name, data)
			return nil
		})
		if err == nil {
			updated = p
		}
		return err
	}, key)
	return updated, err
}

func (d *Redis) ClaimTeam(ctx context.Context, code, name, teamID string) (string, error) {
	if err := d.requireRoom(ctx, code); err != nil {
		return "", err
	}

	status, prev, err := runPair(ctx, claimScript, d.client,
		[]string{claimsKey(code), participantsKey(code)}, teamID, name)
	if err != nil {
		return "", fmt.Errorf("claim team: %w", err)
	}
	switch status {
	case -1:
		return "", ErrParticipantNotFound
	case 0:
		return "", ErrTeamTaken
	}
	d.client.Expire(ctx, claimsKey(code), d.ttl)
	return prev, nil
}

func (d *Redis) Claims(ctx context.Context, code string) (map[string]string, error) {
	if err := d.requireRoom(ctx, code); err != nil {
		return nil, err
	}
	claims, err := d.client.HGetAll(ctx, claimsKey(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return claims, nil
}

func (d *Redis) requireRoom(ctx context.Context, code string) error {
	n, err := d.client.Exists(ctx, roomKey(code)).Result()
	if err != nil {
		return fmt.Errorf("check room: %w", err)
	}
	if n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// watch runs fn in an optimistic transaction, retrying when a watched key
// changes underneath it.
func (d *Redis) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := d.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("transaction on %v: %w", keys, redis.TxFailedErr)
}

// runPair runs a script that returns {status, value}.
func runPair(ctx context.Context, script *redis.Script, c redis.Scripter, keys []string, args ...any) (int64, string, error) {
	res, err := script.Run(ctx, c, keys, args...).Slice()
	if err != nil {
		return 0, "", err
	}
	if len(res) != 2 {
		return 0, "", fmt.Errorf("unexpected script result %v", res)
	}
	status, ok := res[0].(int64)
	if !ok {
		return 0, "", fmt.Errorf("unexpected script status %v", res[0])
	}
	value, _ := res[1].(string)
	return status, value, nil
}
