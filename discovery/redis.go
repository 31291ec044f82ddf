package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/feedmesh/core"
)

// RedisDirectory is a Directory backed by Redis, letting independent mesh
// nodes resolve each other's agents. Registrations expire after a TTL so
// crashed nodes age out of the directory.
type RedisDirectory struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// Compile-time check that RedisDirectory satisfies Directory.
var _ Directory = (*RedisDirectory)(nil)

// RedisDirectoryOptions configures a RedisDirectory.
type RedisDirectoryOptions struct {
	// KeyPrefix namespaces directory keys. Defaults to "feedmesh:directory:".
	KeyPrefix string

	// TTL is the registration lifetime. Defaults to DefaultRegistrationTTL;
	// 0 keeps entries until explicitly deregistered.
	TTL time.Duration
}

// NewRedisDirectory returns a Directory stored in the given Redis client.
func NewRedisDirectory(client redis.UniversalClient, optFns ...func(o *RedisDirectoryOptions)) *RedisDirectory {
	opts := RedisDirectoryOptions{
		KeyPrefix: "feedmesh:directory:",
		TTL:       DefaultRegistrationTTL,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisDirectory{
		client:    client,
		keyPrefix: opts.KeyPrefix,
		ttl:       opts.TTL,
	}
}

func (d *RedisDirectory) key(agentID string) string { return d.keyPrefix + agentID }

func (d *RedisDirectory) Register(ctx context.Context, ep Endpoint) error {
	if err := validateEndpoint(ep); err != nil {
		return err
	}
	payload, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("marshal endpoint: %w", err)
	}
	if err := d.client.Set(ctx, d.key(ep.AgentID), payload, d.ttl).Err(); err != nil {
		return core.WrapProtocolError(core.CodeAgentUnavailable, "directory register failed", err)
	}
	return nil
}

func (d *RedisDirectory) Resolve(ctx context.Context, agentID string) (Endpoint, error) {
	raw, err := d.client.Get(ctx, d.key(agentID)).Result()
	if errors.Is(err, redis.Nil) {
		return Endpoint{}, notFoundError(agentID)
	}
	if err != nil {
		return Endpoint{}, core.WrapProtocolError(core.CodeAgentUnavailable, "directory resolve failed", err)
	}
	var ep Endpoint
	if err := json.Unmarshal([]byte(raw), &ep); err != nil {
		return Endpoint{}, fmt.Errorf("unmarshal endpoint for %q: %w", agentID, err)
	}
	return ep, nil
}

func (d *RedisDirectory) Deregister(ctx context.Context, agentID string) error {
	if err := d.client.Del(ctx, d.key(agentID)).Err(); err != nil {
		return core.WrapProtocolError(core.CodeAgentUnavailable, "directory deregister failed", err)
	}
	return nil
}

func (d *RedisDirectory) List(ctx context.Context) ([]Endpoint, error) {
	var (
		out    []Endpoint
		cursor uint64
	)
	for {
		keys, next, err := d.client.Scan(ctx, cursor, d.keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, core.WrapProtocolError(core.CodeAgentUnavailable, "directory scan failed", err)
		}
		for _, key := range keys {
			raw, err := d.client.Get(ctx, key).Result()
			if errors.Is(err, redis.Nil) {
				// Expired between scan and get.
				continue
			}
			if err != nil {
				return nil, core.WrapProtocolError(core.CodeAgentUnavailable, "directory read failed", err)
			}
			var ep Endpoint
			if err := json.Unmarshal([]byte(raw), &ep); err != nil {
				return nil, fmt.Errorf("unmarshal endpoint at %q: %w", key, err)
			}
			out = append(out, ep)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}
