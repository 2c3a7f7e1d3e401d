package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestPatchLastEndScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()

	tests := []struct {
		name    string
		lines   []string
		end     string
		want    string
		wantErr string
	}{
		{
			name:  "patch open session",
			lines: []string{"kitty\tbash\t0\t1000", "code\tmain.go\t1000\t"},
			end:   "2500",
			want:  "code\tmain.go\t1000\t2500",
		},
		{
			name:  "replace existing end",
			lines: []string{"kitty\tbash\t0\t1000"},
			end:   "1200",
			want:  "kitty\tbash\t0\t1200",
		},
		{
			name:  "empty title",
			lines: []string{"firefox\t\t50\t60"},
			end:   "70",
			want:  "firefox\t\t50\t70",
		},
		{
			name:    "empty list",
			end:     "1",
			wantErr: "NOTFOUND",
		},
		{
			name:    "wrong column count",
			lines:   []string{"kitty\tbash\t0"},
			end:     "1",
			wantErr: "CORRUPT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client.FlushAll(ctx)
			key := "ttw:sessions"
			for _, line := range tt.lines {
				if err := client.RPush(ctx, key, line).Err(); err != nil {
					t.Fatalf("seed list: %v", err)
				}
			}

			result, err := client.Eval(ctx, patchLastEndScript, []string{key}, tt.end).Result()
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Expected %s error, got result %v", tt.wantErr, result)
				}
				if got := err.Error(); len(got) < len(tt.wantErr) || got[:len(tt.wantErr)] != tt.wantErr {
					t.Fatalf("Expected error prefix %s, got %q", tt.wantErr, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Script execution failed: %v", err)
			}
			if result != tt.want {
				t.Errorf("Expected result %q, got %q", tt.want, result)
			}

			list, err := client.LRange(ctx, key, 0, -1).Result()
			if err != nil {
				t.Fatalf("read list: %v", err)
			}
			if list[len(list)-1] != tt.want {
				t.Errorf("Expected last entry %q, got %q", tt.want, list[len(list)-1])
			}
			for i := 0; i < len(list)-1; i++ {
				if list[i] != tt.lines[i] {
					t.Errorf("Entry %d changed: %q", i, list[i])
				}
			}
		})
	}
}
