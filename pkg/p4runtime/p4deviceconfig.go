package p4runtime

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of p4.tmp.P4DeviceConfig, the device config envelope used
// by PI-based P4Runtime servers.
const (
	fieldReassign   protowire.Number = 1
	fieldExtras     protowire.Number = 2
	fieldDeviceData protowire.Number = 3
)

// DeviceConfig is a decoded p4.tmp.P4DeviceConfig.
type DeviceConfig struct {
	// Reassign replaces the pipeline wholesale instead of merging.
	Reassign bool
	// HasExtras is set when the extras message is present.
	HasExtras  bool
	DeviceData []byte
}

// EncodeDeviceConfig wraps deviceData in a P4DeviceConfig with reassign set
// and an empty extras message. Fields are emitted in field-number order so
// the same input always yields the same bytes.
func EncodeDeviceConfig(deviceData []byte) []byte {
	b := make([]byte, 0, len(deviceData)+8)
	b = protowire.AppendTag(b, fieldReassign, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	b = protowire.AppendTag(b, fieldExtras, protowire.BytesType)
	b = protowire.AppendBytes(b, nil)
	if len(deviceData) > 0 {
		b = protowire.AppendTag(b, fieldDeviceData, protowire.BytesType)
		b = protowire.AppendBytes(b, deviceData)
	}
	return b
}

// DecodeDeviceConfig parses a P4DeviceConfig. Unknown fields are skipped.
func DecodeDeviceConfig(b []byte) (*DeviceConfig, error) {
	cfg := &DeviceConfig{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("device config tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldReassign && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("device config reassign: %w", protowire.ParseError(n))
			}
			cfg.Reassign = protowire.DecodeBool(v)
			b = b[n:]
		case num == fieldExtras && typ == protowire.BytesType:
			_, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("device config extras: %w", protowire.ParseError(n))
			}
			cfg.HasExtras = true
			b = b[n:]
		case num == fieldDeviceData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("device config device_data: %w", protowire.ParseError(n))
			}
			cfg.DeviceData = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("device config field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return cfg, nil
}
