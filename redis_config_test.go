package contentbase

import (
	"testing"
)

func TestRedisOptions(t *testing.T) {
	tests := []struct {
		name         string
		env          map[string]string
		wantAddr     string
		wantPassword string
		wantDB       int
	}{
		{"defaults", nil, "localhost:6379", "", 0},
		{
			name:         "from environment",
			env:          map[string]string{"REDIS_ADDR": "redis.example.com:6380", "REDIS_PASSWORD": "secret123", "REDIS_DB": "5"},
			wantAddr:     "redis.example.com:6380",
			wantPassword: "secret123",
			wantDB:       5,
		},
		{
			name:     "invalid db falls back",
			env:      map[string]string{"REDIS_DB": "invalid"},
			wantAddr: "localhost:6379",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REDIS_ADDR", "")
			t.Setenv("REDIS_PASSWORD", "")
			t.Setenv("REDIS_DB", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			opts := RedisOptions()
			if opts.Addr != tt.wantAddr {
				t.Errorf("Addr = %s, want %s", opts.Addr, tt.wantAddr)
			}
			if opts.Password != tt.wantPassword {
				t.Errorf("Password = %s, want %s", opts.Password, tt.wantPassword)
			}
			if opts.DB != tt.wantDB {
				t.Errorf("DB = %d, want %d", opts.DB, tt.wantDB)
			}
		})
	}
}

func TestRedisOptionsWithOverrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "env:6379")
	t.Setenv("REDIS_PASSWORD", "envpass")

	opts := RedisOptionsWithOverrides("cfg:6379", "", 20, 5)
	if opts.Addr != "cfg:6379" {
		t.Errorf("Addr = %s, want override", opts.Addr)
	}
	if opts.Password != "envpass" {
		t.Errorf("Password = %s, want environment value", opts.Password)
	}
	if opts.PoolSize != 20 || opts.MinIdleConns != 5 {
		t.Errorf("pool = (%d, %d), want (20, 5)", opts.PoolSize, opts.MinIdleConns)
	}
}
