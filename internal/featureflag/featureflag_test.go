package featureflag

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_Defaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	flags := NewStatic()

	assert.False(t, flags.BoolVariation(ctx, UseSocketDataChannel))
	assert.Equal(t, 0, flags.IntVariation(ctx, DataChannelSocketCount))
	assert.Equal(t, "", flags.StringVariation(ctx, DataChannelSerializationOverride))

	custom := Flag[int]{Name: "custom", Default: 7}
	assert.Equal(t, 7, flags.IntVariation(ctx, custom))
}

func TestStatic_ContextResolution(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	flags := NewStatic().
		Set(UseSocketDataChannel.Name, false).
		SetFor(UseSocketDataChannel.Name, Connection("conn-1"), true).
		SetFor(UseSocketDataChannel.Name, Workspace("ws-1"), false)

	tests := []struct {
		name     string
		contexts []Context
		want     bool
	}{
		{name: "no contexts uses default", contexts: nil, want: false},
		{name: "matching connection", contexts: []Context{Connection("conn-1")}, want: true},
		{name: "first matching context wins", contexts: []Context{Workspace("ws-1"), Connection("conn-1")}, want: false},
		{name: "non matching context falls back", contexts: []Context{Connection("conn-2")}, want: false},
		{name: "case insensitive keys", contexts: []Context{Connection("CONN-1")}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, flags.BoolVariation(ctx, UseSocketDataChannel, tt.contexts...))
		})
	}
}

func TestStatic_MalformedValuesFallBackToDefault(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	flags := NewStatic().
		Set(UseSocketDataChannel.Name, "not-a-bool").
		Set(DataChannelSocketCount.Name, "many").
		Set(DataChannelSerializationOverride.Name, struct{}{})

	assert.False(t, flags.BoolVariation(ctx, UseSocketDataChannel))
	assert.Equal(t, 0, flags.IntVariation(ctx, DataChannelSocketCount))
	assert.Equal(t, "", flags.StringVariation(ctx, DataChannelSerializationOverride))
}

func TestStatic_CoercesStrings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	flags := NewStatic().
		Set(UseSocketDataChannel.Name, "true").
		Set(DataChannelSocketCount.Name, "4")

	assert.True(t, flags.BoolVariation(ctx, UseSocketDataChannel))
	assert.Equal(t, 4, flags.IntVariation(ctx, DataChannelSocketCount))
}

func writeFlagFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestFileClient(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "flags.yaml")
	writeFlagFile(t, path, `flags:
  platform.use-socket-data-channel:
    default: false
    contexts:
      "connection:abc": true
  platform.data-channel-socket-count:
    default: 3
  platform.data-channel-serialization-override:
    default: PROTOBUF
`)

	client, err := NewFileClient(path)
	require.NoError(t, err)

	ctx := context.Background()
	assert.False(t, client.BoolVariation(ctx, UseSocketDataChannel))
	assert.True(t, client.BoolVariation(ctx, UseSocketDataChannel, Connection("abc")))
	assert.Equal(t, 3, client.IntVariation(ctx, DataChannelSocketCount))
	assert.Equal(t, "PROTOBUF", client.StringVariation(ctx, DataChannelSerializationOverride))
	assert.False(t, client.BoolVariation(ctx, RunawayPodDeletion))
}

func TestFileClient_Reload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "flags.yaml")
	writeFlagFile(t, path, `flags:
  runaway-pods.deletion-enabled:
    default: false
`)

	client, err := NewFileClient(path)
	require.NoError(t, err)
	require.False(t, client.BoolVariation(context.Background(), RunawayPodDeletion))

	writeFlagFile(t, path, `flags:
  runaway-pods.deletion-enabled:
    default: true
`)

	require.Eventually(t, func() bool {
		return client.BoolVariation(context.Background(), RunawayPodDeletion)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestNewFileClient_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewFileClient("")
	require.Error(t, err)

	_, err = NewFileClient(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read feature flag file")
}

func TestContext_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "workspace:w", Workspace("w").String())
	assert.Equal(t, "connection:c", Connection("c").String())
	assert.Equal(t, "dataplane:d", Dataplane("d").String())
	assert.Equal(t, "dataplane-name:n", DataplaneName("n").String())
}
