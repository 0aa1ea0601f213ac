package negotiation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrMissingIPCOptions is returned when a connector declares no data channel
	ErrMissingIPCOptions = errors.New("connector does not declare ipc options")

	// ErrInvalidIPCOptions is returned when the declaration cannot be read
	ErrInvalidIPCOptions = errors.New("invalid ipc options")
)

// ParseIPCOptions reads the data channel declaration from a connector's metadata.
// The declaration is looked up under connectorIPCOptions.dataChannel, then under dataChannel.
func ParseIPCOptions(raw json.RawMessage) (*IPCOptions, error) {
	if len(raw) == 0 {
		return nil, ErrMissingIPCOptions
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidIPCOptions)
	}

	root := gjson.ParseBytes(raw)
	dc := root.Get("connectorIPCOptions.dataChannel")
	if !dc.Exists() {
		dc = root.Get("dataChannel")
	}
	if !dc.Exists() {
		return nil, ErrMissingIPCOptions
	}
	if !dc.IsObject() {
		return nil, fmt.Errorf("%w: dataChannel is not an object", ErrInvalidIPCOptions)
	}

	version := dc.Get("version")
	if version.Type != gjson.String || strings.TrimSpace(version.String()) == "" {
		return nil, fmt.Errorf("%w: dataChannel.version must be a non-empty string", ErrInvalidIPCOptions)
	}

	serializations, err := stringArray(dc, "supportedSerialization")
	if err != nil {
		return nil, err
	}
	transports, err := stringArray(dc, "supportedTransport")
	if err != nil {
		return nil, err
	}

	opts := &IPCOptions{DataChannel: DataChannel{Version: version.String()}}
	for _, s := range serializations {
		opts.DataChannel.SupportedSerialization = append(opts.DataChannel.SupportedSerialization, Serialization(s))
	}
	for _, t := range transports {
		opts.DataChannel.SupportedTransport = append(opts.DataChannel.SupportedTransport, Transport(t))
	}
	return opts, nil
}

func stringArray(obj gjson.Result, key string) ([]string, error) {
	field := obj.Get(key)
	if !field.Exists() {
		return nil, nil
	}
	if !field.IsArray() {
		return nil, fmt.Errorf("%w: dataChannel.%s must be an array", ErrInvalidIPCOptions, key)
	}

	var out []string
	for _, item := range field.Array() {
		if item.Type != gjson.String {
			return nil, fmt.Errorf("%w: dataChannel.%s must contain strings", ErrInvalidIPCOptions, key)
		}
		out = append(out, strings.ToUpper(strings.TrimSpace(item.String())))
	}
	return out, nil
}
