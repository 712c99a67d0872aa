package authportal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisSessionKeyPrefix = "authportal:session:"

// Session database backed by Redis. Expiry is enforced by Redis itself: every
// session key carries a TTL equal to the token's remaining lifetime, so a
// crashed portal never leaves immortal sessions behind.
type redisSessionDB struct {
	client *redis.Client
}

func NewSessionDB_Redis(config *ConfigRedis) SessionDB {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return &redisSessionDB{client: client}
}

func (x *redisSessionDB) Write(sessionkey string, token *Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	ttl := time.Until(token.Expires)
	if ttl <= 0 {
		// Writing an already-expired token is pointless, but not an error
		return nil
	}
	return x.client.Set(context.Background(), redisSessionKeyPrefix+sessionkey, raw, ttl).Err()
}

func (x *redisSessionDB) Read(sessionkey string) (*Token, error) {
	raw, err := x.client.Get(context.Background(), redisSessionKeyPrefix+sessionkey).Bytes()
	if err == redis.Nil {
		return nil, ErrInvalidSessionToken
	} else if err != nil {
		return nil, NewError(ErrConnect, err.Error())
	}
	token := &Token{}
	if err := json.Unmarshal(raw, token); err != nil {
		return nil, err
	}
	return token, nil
}

func (x *redisSessionDB) Delete(sessionkey string) error {
	return x.client.Del(context.Background(), redisSessionKeyPrefix+sessionkey).Err()
}

func (x *redisSessionDB) Close() {
	if x.client != nil {
		x.client.Close()
		x.client = nil
	}
}
