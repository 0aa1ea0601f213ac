package negotiation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIPCOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    *IPCOptions
		wantErr error
	}{
		{
			name: "nested declaration",
			raw:  `{"connectorIPCOptions":{"dataChannel":{"version":"0.0.2","supportedSerialization":["JSONL","protobuf"],"supportedTransport":["SOCKET"]}}}`,
			want: &IPCOptions{DataChannel: DataChannel{
				Version:                "0.0.2",
				SupportedSerialization: []Serialization{SerializationJSONL, SerializationProtobuf},
				SupportedTransport:     []Transport{TransportSocket},
			}},
		},
		{
			name: "top level declaration",
			raw:  `{"dataChannel":{"version":"1","supportedTransport":["STDIO"]}}`,
			want: &IPCOptions{DataChannel: DataChannel{
				Version:            "1",
				SupportedTransport: []Transport{TransportStdio},
			}},
		},
		{name: "empty", raw: ``, wantErr: ErrMissingIPCOptions},
		{name: "no data channel", raw: `{"other":true}`, wantErr: ErrMissingIPCOptions},
		{name: "invalid json", raw: `{`, wantErr: ErrInvalidIPCOptions},
		{name: "missing version", raw: `{"dataChannel":{"supportedTransport":["STDIO"]}}`, wantErr: ErrInvalidIPCOptions},
		{name: "numeric version", raw: `{"dataChannel":{"version":2}}`, wantErr: ErrInvalidIPCOptions},
		{name: "transport not an array", raw: `{"dataChannel":{"version":"1","supportedTransport":"STDIO"}}`, wantErr: ErrInvalidIPCOptions},
		{name: "non string entry", raw: `{"dataChannel":{"version":"1","supportedSerialization":[1]}}`, wantErr: ErrInvalidIPCOptions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseIPCOptions(json.RawMessage(tt.raw))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSerialization(t *testing.T) {
	t.Parallel()

	s, ok := ParseSerialization(" jsonl ")
	assert.True(t, ok)
	assert.Equal(t, SerializationJSONL, s)

	_, ok = ParseSerialization("csv")
	assert.False(t, ok)
}
