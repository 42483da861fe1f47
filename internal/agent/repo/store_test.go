package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/Chative-support-agent/server/internal/agent/model"
	errx "github.com/Chative-support-agent/server/internal/core/error"
)

type storeFactory func(t *testing.T) model.ConversationStore

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) model.ConversationStore {
			return NewMemoryStore()
		},
		"redis": func(t *testing.T) model.ConversationStore {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return NewRedisStore(rdb, time.Hour)
		},
		"sqlite": func(t *testing.T) model.ConversationStore {
			dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
			db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
				TranslateError: true,
				Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
			})
			require.NoError(t, err)
			sqlDB, err := db.DB()
			require.NoError(t, err)
			sqlDB.SetMaxOpenConns(1)
			t.Cleanup(func() { _ = sqlDB.Close() })

			store, err := NewSQLStore(context.Background(), db)
			require.NoError(t, err)
			return store
		},
	}
}

func newTurn(id string, ts time.Time) *model.ConversationTurn {
	return &model.ConversationTurn{
		ConversationID: id,
		UserQuery:      "Show me gaming laptops",
		AgentResponse:  "Here are two gaming laptops.",
		Timestamp:      ts,
		CustomerState:  model.CustomerState{Status: model.StatusUnverified},
		Outcome:        model.OutcomeAnswered,
		ToolRounds:     1,
	}
}

func TestStores(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			t.Run("append and get", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				ts := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

				require.NoError(t, s.Append(ctx, newTurn("a", ts)))
				err := s.Append(ctx, newTurn("a", ts))
				assert.True(t, errors.Is(err, errx.ErrAlreadyExists))

				got, err := s.Get(ctx, "a")
				require.NoError(t, err)
				assert.Equal(t, "Show me gaming laptops", got.UserQuery)
				assert.True(t, ts.Equal(got.Timestamp))
				assert.Equal(t, model.OutcomeAnswered, got.Outcome)
				assert.Equal(t, model.StatusUnverified, got.CustomerState.Status)
				assert.Nil(t, got.UserFeedback)
				assert.Nil(t, got.LlmEvaluation)

				_, err = s.Get(ctx, "missing")
				assert.True(t, errors.Is(err, errx.ErrNotFound))
			})

			t.Run("list is ordered by timestamp", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

				require.NoError(t, s.Append(ctx, newTurn("late", base.Add(2*time.Minute))))
				require.NoError(t, s.Append(ctx, newTurn("early", base)))
				require.NoError(t, s.Append(ctx, newTurn("middle", base.Add(time.Minute))))

				list, err := s.List(ctx)
				require.NoError(t, err)
				require.Len(t, list, 3)
				assert.Equal(t, "early", list[0].ConversationID)
				assert.Equal(t, "middle", list[1].ConversationID)
				assert.Equal(t, "late", list[2].ConversationID)
			})

			t.Run("feedback is set once", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				require.NoError(t, s.Append(ctx, newTurn("fb", time.Now().UTC())))

				fb := model.UserFeedback{ThumbsUp: true, Comment: "great", SubmittedAt: time.Now().UTC()}
				require.NoError(t, s.AttachFeedback(ctx, "fb", fb))

				err := s.AttachFeedback(ctx, "fb", model.UserFeedback{ThumbsUp: false})
				assert.True(t, errors.Is(err, errx.ErrAlreadyExists))

				err = s.AttachFeedback(ctx, "nope", fb)
				assert.True(t, errors.Is(err, errx.ErrNotFound))

				got, err := s.Get(ctx, "fb")
				require.NoError(t, err)
				require.NotNil(t, got.UserFeedback)
				assert.True(t, got.UserFeedback.ThumbsUp)
				assert.Equal(t, "great", got.UserFeedback.Comment)
			})

			t.Run("concurrent feedback has exactly one winner", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				require.NoError(t, s.Append(ctx, newTurn("race", time.Now().UTC())))

				const writers = 8
				var (
					wg       sync.WaitGroup
					mu       sync.Mutex
					ok, dups int
				)
				for i := 0; i < writers; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						err := s.AttachFeedback(ctx, "race", model.UserFeedback{ThumbsUp: i%2 == 0, SubmittedAt: time.Now().UTC()})
						mu.Lock()
						defer mu.Unlock()
						switch {
						case err == nil:
							ok++
						case errors.Is(err, errx.ErrAlreadyExists):
							dups++
						default:
							t.Errorf("unexpected error: %v", err)
						}
					}(i)
				}
				wg.Wait()
				assert.Equal(t, 1, ok)
				assert.Equal(t, writers-1, dups)
			})

			t.Run("evaluation is replaced", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()
				require.NoError(t, s.Append(ctx, newTurn("ev", time.Now().UTC())))

				first := model.LlmEvaluation{Helpfulness: model.CategoryScore{Score: 2}, OverallScore: 2}
				second := model.LlmEvaluation{Helpfulness: model.CategoryScore{Score: 5}, OverallScore: 5, Summary: "good"}
				require.NoError(t, s.AttachEvaluation(ctx, "ev", first))
				require.NoError(t, s.AttachEvaluation(ctx, "ev", second))

				got, err := s.Get(ctx, "ev")
				require.NoError(t, err)
				require.NotNil(t, got.LlmEvaluation)
				assert.Equal(t, 5, got.LlmEvaluation.Helpfulness.Score)
				assert.Equal(t, "good", got.LlmEvaluation.Summary)

				err = s.AttachEvaluation(ctx, "nope", second)
				assert.True(t, errors.Is(err, errx.ErrNotFound))
			})
		})
	}
}

func TestRedisStorePrunesExpiredTurns(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	s := NewRedisStore(rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, newTurn("old", time.Now().UTC())))
	mr.FastForward(2 * time.Minute)
	require.NoError(t, s.Append(ctx, newTurn("new", time.Now().UTC())))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].ConversationID)

	members, err := rdb.ZRange(ctx, indexKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, members)
}

func TestRedisAttachAfterExpiryCreatesNothing(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	s := NewRedisStore(rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, newTurn("gone", time.Now().UTC())))
	mr.FastForward(2 * time.Minute)

	err := s.AttachFeedback(ctx, "gone", model.UserFeedback{ThumbsUp: true})
	assert.True(t, errors.Is(err, errx.ErrNotFound))
	err = s.AttachEvaluation(ctx, "gone", model.LlmEvaluation{})
	assert.True(t, errors.Is(err, errx.ErrNotFound))
	assert.False(t, mr.Exists("conversation:gone"))
}

func TestRedisAppendIndexesAndExpiresTogether(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	s := NewRedisStore(rdb, time.Minute)
	ctx := context.Background()
	ts := time.Now().UTC()

	require.NoError(t, s.Append(ctx, newTurn("c1", ts)))
	assert.Equal(t, time.Minute, mr.TTL("conversation:c1"))
	score, err := rdb.ZScore(ctx, indexKey, "c1").Result()
	require.NoError(t, err)
	assert.InDelta(t, float64(ts.UnixNano()), score, 1e4)

	mr.FastForward(30 * time.Second)
	err = s.Append(ctx, newTurn("c1", ts.Add(time.Hour)))
	assert.True(t, errors.Is(err, errx.ErrAlreadyExists))
	assert.Equal(t, 30*time.Second, mr.TTL("conversation:c1"))

	require.NoError(t, s.AttachFeedback(ctx, "c1", model.UserFeedback{ThumbsUp: true}))
	require.NoError(t, s.AttachEvaluation(ctx, "c1", model.LlmEvaluation{}))
	assert.Equal(t, 30*time.Second, mr.TTL("conversation:c1"))

	score, err = rdb.ZScore(ctx, indexKey, "c1").Result()
	require.NoError(t, err)
	assert.InDelta(t, float64(ts.UnixNano()), score, 1e4)
}
