package modal

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spachava753/canary/internal/environment"
)

func TestParseProviderConfig(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
		want   ProviderConfig
	}{
		{
			name:   "nil config",
			config: nil,
			want:   ProviderConfig{},
		},
		{
			name: "single region",
			config: map[string]any{
				"app_name": "canary",
				"region":   "us-east",
				"verbose":  true,
			},
			want: ProviderConfig{AppName: "canary", Regions: []string{"us-east"}, Verbose: true},
		},
		{
			name: "regions and commands",
			config: map[string]any{
				"regions":             []any{"us-east", "us-west", 3},
				"dockerfile_commands": []any{"RUN apt-get update && apt-get install -y git"},
			},
			want: ProviderConfig{
				Regions:            []string{"us-east", "us-west"},
				DockerfileCommands: []string{"RUN apt-get update && apt-get install -y git"},
			},
		},
		{
			name: "wrong types ignored",
			config: map[string]any{
				"app_name": 12,
				"verbose":  "yes",
			},
			want: ProviderConfig{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseProviderConfig(tt.config))
		})
	}
}

func TestLockedWriterConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := &lockedWriter{w: &buf}

	var wg sync.WaitGroup
	for _, line := range []string{"out\n", "err\n"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				w.Write([]byte(line))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, strings.Count(buf.String(), "out\n"))
	assert.Equal(t, 100, strings.Count(buf.String(), "err\n"))
}

func TestAppName(t *testing.T) {
	opts := environment.CreateEnvironmentOptions{Name: "canary-1a2b3c4d"}

	configured := &Provider{config: ProviderConfig{AppName: "lint-canary"}}
	assert.Equal(t, "lint-canary", configured.appName(opts))

	unconfigured := &Provider{}
	assert.Equal(t, "canary-1a2b3c4d", unconfigured.appName(opts))
	assert.Contains(t, unconfigured.appName(environment.CreateEnvironmentOptions{}), "canary-")
}
