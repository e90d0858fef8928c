package attempts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "auth:attempt:"

// Script replies other than a stored state name.
const (
	replyOK       = "ok"
	replyMissing  = "missing"
	replyNotOwner = "not_owner"
)

// completeScript swaps in the Done latch when ARGV[1] still owns a Running
// latch. KEEPTTL leaves the expiry set by Begin.
var completeScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
	return 'missing'
end
local latch = cjson.decode(data)
if latch.owner ~= ARGV[1] then
	return 'not_owner'
end
if latch.state ~= 'running' then
	return latch.state
end
redis.call('SET', KEYS[1], ARGV[2], 'KEEPTTL')
return 'ok'
`)

// resetScript deletes the latch when ARGV[1] still owns it and it is Running.
var resetScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
	return 'missing'
end
local latch = cjson.decode(data)
if latch.owner ~= ARGV[1] then
	return 'not_owner'
end
if latch.state ~= 'running' then
	return latch.state
end
redis.call('DEL', KEYS[1])
return 'ok'
`)

// RedisRepo shares latches between replicas. Begin relies on SET NX so exactly
// one caller across all replicas wins the Idle->Running move.
type RedisRepo struct {
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
	nowFunc   func() time.Time
}

// RedisRepoOption configures a RedisRepo.
type RedisRepoOption func(*RedisRepo)

// WithKeyPrefix sets the prefix of latch keys (default "auth:attempt:").
func WithKeyPrefix(prefix string) RedisRepoOption {
	return func(r *RedisRepo) {
		r.keyPrefix = prefix
	}
}

// WithRedisNowFunc sets the clock stamped into UpdatedAt (primarily for testing)
func WithRedisNowFunc(nowFunc func() time.Time) RedisRepoOption {
	return func(r *RedisRepo) {
		r.nowFunc = nowFunc
	}
}

// NewRedisRepo creates a latch store on client. Latches expire ttl after Begin.
func NewRedisRepo(client redis.UniversalClient, ttl time.Duration, opts ...RedisRepoOption) *RedisRepo {
	r := &RedisRepo{
		client:    client,
		ttl:       ttl,
		keyPrefix: defaultKeyPrefix,
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRepo) key(key string) string {
	return r.keyPrefix + key
}

func (r *RedisRepo) Begin(ctx context.Context, key string) (Latch, bool, error) {
	if key == "" {
		return Latch{}, false, errors.New("key cannot be empty")
	}

	state, err := Transition(StateIdle, StateRunning)
	if err != nil {
		return Latch{}, false, err
	}
	latch := Latch{State: state, Owner: uuid.NewString(), UpdatedAt: r.nowFunc()}
	payload, err := json.Marshal(latch)
	if err != nil {
		return Latch{}, false, fmt.Errorf("[RedisRepo Begin] marshal latch: %w", err)
	}

	// A latch can expire between SET NX and GET; one retry covers that window.
	for range 2 {
		won, err := r.client.SetNX(ctx, r.key(key), payload, r.ttl).Result()
		if err != nil {
			return Latch{}, false, fmt.Errorf("[RedisRepo Begin] set latch: %w", err)
		}
		if won {
			return latch, true, nil
		}

		existing, err := r.get(ctx, key)
		if errors.Is(err, ErrUnknownAttempt) {
			continue
		}
		if err != nil {
			return Latch{}, false, err
		}
		return existing, false, nil
	}
	return Latch{}, false, fmt.Errorf("[RedisRepo Begin] latch for %s kept vanishing", key)
}

func (r *RedisRepo) get(ctx context.Context, key string) (Latch, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Latch{}, ErrUnknownAttempt
	}
	if err != nil {
		return Latch{}, fmt.Errorf("[RedisRepo] get latch: %w", err)
	}
	var latch Latch
	if err := json.Unmarshal(raw, &latch); err != nil {
		return Latch{}, fmt.Errorf("[RedisRepo] decode latch: %w", err)
	}
	return latch, nil
}

func (r *RedisRepo) Complete(ctx context.Context, key, owner string, result Result) error {
	state, err := Transition(StateRunning, StateDone)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Latch{
		State:       state,
		Owner:       owner,
		SubjectID:   result.SubjectID,
		RedirectURI: result.RedirectURI,
		UpdatedAt:   r.nowFunc(),
	})
	if err != nil {
		return fmt.Errorf("[RedisRepo Complete] marshal latch: %w", err)
	}

	reply, err := completeScript.Run(ctx, r.client, []string{r.key(key)}, owner, payload).Text()
	if err != nil {
		return fmt.Errorf("[RedisRepo Complete] set latch: %w", err)
	}
	switch reply {
	case replyOK:
		return nil
	case replyMissing:
		return ErrUnknownAttempt
	}
	return scriptRefusal(reply, StateDone)
}

func (r *RedisRepo) Reset(ctx context.Context, key, owner string) error {
	reply, err := resetScript.Run(ctx, r.client, []string{r.key(key)}, owner).Text()
	if err != nil {
		return fmt.Errorf("[RedisRepo Reset] delete latch: %w", err)
	}
	switch reply {
	case replyOK, replyMissing:
		return nil
	}
	return scriptRefusal(reply, StateIdle)
}

// scriptRefusal turns a refused script reply into ErrNotOwner or the
// transition error for the stored state.
func scriptRefusal(reply string, to State) error {
	if reply == replyNotOwner {
		return ErrNotOwner
	}
	var current State
	if err := current.UnmarshalText([]byte(reply)); err != nil {
		return fmt.Errorf("[RedisRepo] unexpected script reply: %w", err)
	}
	_, err := Transition(current, to)
	return err
}

var _ Repo = (*RedisRepo)(nil)

// Ping reports whether redis is reachable.
func (r *RedisRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
