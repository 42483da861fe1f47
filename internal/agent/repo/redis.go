package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Chative-support-agent/server/internal/agent/model"
	errx "github.com/Chative-support-agent/server/internal/core/error"
	logx "github.com/Chative-support-agent/server/pkg/logger"
)

const (
	indexKey = "conversations:index"

	fieldTurn       = "turn"
	fieldFeedback   = "feedback"
	fieldEvaluation = "evaluation"
)

// appendTurn stores the turn only if absent, then indexes it and sets the TTL,
// so a turn is never left unindexed or without expiry.
// KEYS: conversation hash, index. ARGV: turn field, turn json, score, id, ttl ms.
var appendTurn = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
  return 0
end
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
if tonumber(ARGV[5]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[5])
end
return 1
`)

// attachField writes a field only while the turn exists, so an expired
// conversation is never recreated as a hash without TTL.
// KEYS: conversation hash. ARGV: turn field, field, value, "1" for set-once.
// Returns -1 when the turn is gone, 0 when a set-once field already exists.
var attachField = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
  return -1
end
if ARGV[4] == '1' then
  return redis.call('HSETNX', KEYS[1], ARGV[2], ARGV[3])
end
redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
return 1
`)

// RedisStore keeps each turn in a hash with feedback and evaluation as separate
// fields, so feedback can be set once with HSETNX. A sorted set indexes turns by time.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (r *RedisStore) conversationKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

func (r *RedisStore) Append(ctx context.Context, turn *model.ConversationTurn) error {
	record := *turn
	record.UserFeedback = nil
	record.LlmEvaluation = nil
	b, err := json.Marshal(record)
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", turn.ConversationID).Msg("failed to marshal turn")
		return fmt.Errorf("marshal turn: %w", err)
	}
	key := r.conversationKey(turn.ConversationID)

	created, err := appendTurn.Run(ctx, r.rdb,
		[]string{key, indexKey},
		fieldTurn, b, float64(turn.Timestamp.UnixNano()), turn.ConversationID, r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to store turn in redis")
		return errx.WrapRedis(err)
	}
	if created == 0 {
		return errx.AlreadyExists("Conversation already exists")
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, conversationID string) (*model.ConversationTurn, error) {
	fields, err := r.rdb.HGetAll(ctx, r.conversationKey(conversationID)).Result()
	if err != nil {
		return nil, errx.WrapRedis(err)
	}
	if len(fields) == 0 {
		return nil, errx.NotFound(errx.ConversationNotFoundMessage)
	}
	return decodeTurn(conversationID, fields)
}

func (r *RedisStore) List(ctx context.Context) ([]*model.ConversationTurn, error) {
	ids, err := r.rdb.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, errx.WrapRedis(err)
	}
	if len(ids) == 0 {
		return []*model.ConversationTurn{}, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.conversationKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errx.WrapRedis(err)
	}

	out := make([]*model.ConversationTurn, 0, len(ids))
	var expired []any
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			expired = append(expired, ids[i])
			continue
		}
		t, err := decodeTurn(ids[i], fields)
		if err != nil {
			logx.Error().Err(err).Str("conversation_id", ids[i]).Msg("skipping unreadable turn")
			continue
		}
		out = append(out, t)
	}
	if len(expired) > 0 {
		if err := r.rdb.ZRem(ctx, indexKey, expired...).Err(); err != nil {
			logx.Warn().Err(err).Int("count", len(expired)).Msg("failed to prune expired turns from index")
		}
	}
	return out, nil
}

func (r *RedisStore) AttachFeedback(ctx context.Context, conversationID string, feedback model.UserFeedback) error {
	b, err := json.Marshal(feedback)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	set, err := r.attach(ctx, conversationID, fieldFeedback, b, true)
	if err != nil {
		return err
	}
	if !set {
		return errx.AlreadyExists(errx.FeedbackExistsMessage)
	}
	return nil
}

func (r *RedisStore) AttachEvaluation(ctx context.Context, conversationID string, evaluation model.LlmEvaluation) error {
	b, err := json.Marshal(evaluation)
	if err != nil {
		return fmt.Errorf("marshal evaluation: %w", err)
	}
	_, err = r.attach(ctx, conversationID, fieldEvaluation, b, false)
	return err
}

func (r *RedisStore) attach(ctx context.Context, conversationID, field string, value []byte, once bool) (bool, error) {
	onceArg := "0"
	if once {
		onceArg = "1"
	}
	key := r.conversationKey(conversationID)
	res, err := attachField.Run(ctx, r.rdb, []string{key}, fieldTurn, field, value, onceArg).Int()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Str("field", field).Msg("failed to attach field in redis")
		return false, errx.WrapRedis(err)
	}
	if res < 0 {
		return false, errx.NotFound(errx.ConversationNotFoundMessage)
	}
	return res == 1, nil
}

func decodeTurn(conversationID string, fields map[string]string) (*model.ConversationTurn, error) {
	raw, ok := fields[fieldTurn]
	if !ok {
		return nil, errx.NotFound(errx.ConversationNotFoundMessage)
	}
	var t model.ConversationTurn
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("unmarshal turn %s: %w", conversationID, err)
	}
	if s, ok := fields[fieldFeedback]; ok {
		var fb model.UserFeedback
		if err := json.Unmarshal([]byte(s), &fb); err != nil {
			return nil, fmt.Errorf("unmarshal feedback %s: %w", conversationID, err)
		}
		t.UserFeedback = &fb
	}
	if s, ok := fields[fieldEvaluation]; ok {
		var ev model.LlmEvaluation
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal evaluation %s: %w", conversationID, err)
		}
		t.LlmEvaluation = &ev
	}
	return &t, nil
}

var _ model.ConversationStore = (*RedisStore)(nil)
