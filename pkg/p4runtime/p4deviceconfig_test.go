package p4runtime

import (
	"bytes"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestEncodeDeviceConfig(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []byte
	}{
		{"with data", []byte{0x01, 0x02}, []byte{0x08, 0x01, 0x12, 0x00, 0x1a, 0x02, 0x01, 0x02}},
		{"empty data", nil, []byte{0x08, 0x01, 0x12, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeDeviceConfig(tt.data); !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeDeviceConfig() = %x, want %x", got, tt.want)
			}
		})
	}
}

func TestDecodeDeviceConfig(t *testing.T) {
	data := bytes.Repeat([]byte{0xab}, 300)
	cfg, err := DecodeDeviceConfig(EncodeDeviceConfig(data))
	if err != nil {
		t.Fatalf("DecodeDeviceConfig() error = %v", err)
	}
	if !cfg.Reassign {
		t.Error("Reassign = false, want true")
	}
	if !cfg.HasExtras {
		t.Error("HasExtras = false, want true")
	}
	if !bytes.Equal(cfg.DeviceData, data) {
		t.Errorf("DeviceData length = %d, want %d", len(cfg.DeviceData), len(data))
	}
}

func TestDecodeDeviceConfig_UnknownField(t *testing.T) {
	b := EncodeDeviceConfig([]byte{0x07})
	b = protowire.AppendTag(b, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 12345)

	cfg, err := DecodeDeviceConfig(b)
	if err != nil {
		t.Fatalf("DecodeDeviceConfig() error = %v", err)
	}
	if !bytes.Equal(cfg.DeviceData, []byte{0x07}) {
		t.Errorf("DeviceData = %x, want 07", cfg.DeviceData)
	}
}

func TestDecodeDeviceConfig_Truncated(t *testing.T) {
	b := EncodeDeviceConfig([]byte{0x01, 0x02, 0x03})
	if _, err := DecodeDeviceConfig(b[:len(b)-1]); err == nil {
		t.Error("DecodeDeviceConfig() on truncated input: expected error")
	}
}
