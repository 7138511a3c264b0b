package redis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedisConfig(t *testing.T) {
	config := &RedisConfig{
		Host:      "localhost",
		Port:      6379,
		Password:  "secret",
		Namespace: "photos",
	}

	require.Equal(t, "localhost", config.Host)
	require.Equal(t, 6379, config.Port)
	require.Equal(t, "secret", config.Password)
	require.Equal(t, "photos", config.Namespace)
}

func TestRedisSentinelConfig(t *testing.T) {
	config := &RedisSentinelConfig{
		SentinelHost:     "localhost",
		SentinelPort:     26379,
		Password:         "secret",
		MasterName:       "photos-master",
		SentinelUsername: "sentinel",
		Namespace:        "photos",
	}

	require.Equal(t, "localhost", config.SentinelHost)
	require.Equal(t, 26379, config.SentinelPort)
	require.Equal(t, "photos-master", config.MasterName)
	require.Equal(t, "sentinel", config.SentinelUsername)
	require.Equal(t, "photos", config.Namespace)
}

func TestNewRedisClientUnreachable(t *testing.T) {
	tests := []struct {
		name   string
		config *RedisConfig
	}{
		{"bogus host", &RedisConfig{Host: "no-such-redis-host.invalid", Port: 6379}},
		{"bogus port", &RedisConfig{Host: "localhost", Port: 99999}},
		{"empty config", &RedisConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewRedisClient(tt.config)
			require.Error(t, err)
			require.Nil(t, client)
			require.Contains(t, err.Error(), "failed to connect to Redis")
		})
	}
}

func TestNewRedisSentinelClientUnreachable(t *testing.T) {
	tests := []struct {
		name   string
		config *RedisSentinelConfig
	}{
		{"bogus host", &RedisSentinelConfig{SentinelHost: "no-such-sentinel.invalid", SentinelPort: 26379, MasterName: "photos-master"}},
		{"bogus port", &RedisSentinelConfig{SentinelHost: "localhost", SentinelPort: 99999, MasterName: "photos-master"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewRedisSentinelClient(tt.config)
			require.Error(t, err)
			require.Nil(t, client)
			require.Contains(t, err.Error(), "failed to connect to Redis through Sentinel")
		})
	}
}

func TestNewRedisSentinelClientEmptyMasterName(t *testing.T) {
	config := &RedisSentinelConfig{
		SentinelHost: "localhost",
		SentinelPort: 26379,
	}

	client, err := NewRedisSentinelClient(config)
	require.Error(t, err)
	require.Nil(t, client)
}
