package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowforge/enginecore/engine"
)

// Redis is a github.com/redis/go-redis/v9-backed ResumeTokenManager for
// multi-process deployments: a token's binding lives as a Redis key with a
// TTL matching its deadline, so expiry requires no sweep. Consume uses GETDEL
// for atomic single-use semantics — two concurrent Consume calls on the same
// token can only have one winner.
type Redis struct {
	client *redis.Client
	prefix string
	execIndex string
}

// NewRedis wraps client. prefix namespaces token keys (default "rtok:");
// the execution index used by Revoke lives under prefix+"exec:".
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "rtok:"
	}
	return &Redis{client: client, prefix: prefix, execIndex: prefix + "exec:"}
}

func (r *Redis) tokenKey(token string) string { return r.prefix + token }
func (r *Redis) execKey(executionID string) string { return r.execIndex + executionID }

func (r *Redis) Issue(ctx context.Context, executionID string, deadlineUnixNano int64) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	tok := hex.EncodeToString(buf)

	var ttl time.Duration
	if deadlineUnixNano > 0 {
		ttl = time.Until(time.Unix(0, deadlineUnixNano).UTC())
		if ttl <= 0 {
			ttl = time.Millisecond
		}
	}

	pipe := r.client.TxPipeline()
	if ttl > 0 {
		pipe.Set(ctx, r.tokenKey(tok), executionID, ttl)
	} else {
		pipe.Set(ctx, r.tokenKey(tok), executionID, 0)
	}
	pipe.SAdd(ctx, r.execKey(executionID), tok)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return tok, nil
}

func (r *Redis) Consume(ctx context.Context, token string) (string, error) {
	executionID, err := r.client.GetDel(ctx, r.tokenKey(token)).Result()
	if err == redis.Nil {
		return "", engine.NewError(engine.CodeInvalidResumeToken, "resume token not found or already used")
	}
	if err != nil {
		return "", err
	}
	return executionID, nil
}

func (r *Redis) Revoke(ctx context.Context, executionID string) error {
	tokens, err := r.client.SMembers(ctx, r.execKey(executionID)).Result()
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = r.tokenKey(t)
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.Del(ctx, r.execKey(executionID))
	_, err = pipe.Exec(ctx)
	return err
}
