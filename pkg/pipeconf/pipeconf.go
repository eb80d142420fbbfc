// Package pipeconf holds pipeline artifacts: a P4 program description
// (P4Info), the target-specific device data built from the same program, and
// a fingerprint identifying that combination.
package pipeconf

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Pipeconf is a versioned pipeline artifact. Two pipeconfs with the same
// fingerprint describe the same pipeline configuration.
type Pipeconf interface {
	ID() string
	Fingerprint() uint64
}

// P4InfoFormat is the encoding of a P4Info source.
type P4InfoFormat int

const (
	// FormatText is the protobuf text format p4c emits with --p4runtime-files *.txt.
	FormatText P4InfoFormat = iota
	// FormatBinary is the protobuf wire format.
	FormatBinary
)

// Artifact is a Pipeconf backed by in-memory P4Info and device data.
type Artifact struct {
	id          string
	p4info      []byte
	format      P4InfoFormat
	deviceData  []byte
	fingerprint uint64
}

// NewArtifact creates an artifact. A zero fingerprint is replaced by a hash
// of the P4Info source and the device data.
func NewArtifact(id string, p4info []byte, format P4InfoFormat, deviceData []byte, fingerprint uint64) *Artifact {
	if fingerprint == 0 {
		fingerprint = Fingerprint(p4info, deviceData)
	}
	return &Artifact{
		id:          id,
		p4info:      p4info,
		format:      format,
		deviceData:  deviceData,
		fingerprint: fingerprint,
	}
}

// Load reads an artifact from disk. The P4Info format is taken from the file
// extension: .bin and .pb are binary, anything else is text. deviceDataPath
// may be empty for targets that take no device data.
func Load(id, p4infoPath, deviceDataPath string, fingerprint uint64) (*Artifact, error) {
	p4info, err := os.ReadFile(p4infoPath)
	if err != nil {
		return nil, fmt.Errorf("reading p4info for pipeconf %s: %w", id, err)
	}

	var deviceData []byte
	if deviceDataPath != "" {
		deviceData, err = os.ReadFile(deviceDataPath)
		if err != nil {
			return nil, fmt.Errorf("reading device data for pipeconf %s: %w", id, err)
		}
	}

	return NewArtifact(id, p4info, formatFor(p4infoPath), deviceData, fingerprint), nil
}

func formatFor(path string) P4InfoFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bin", ".pb":
		return FormatBinary
	default:
		return FormatText
	}
}

// ID returns the pipeconf identifier.
func (a *Artifact) ID() string { return a.id }

// Fingerprint returns the configuration cookie for this artifact.
func (a *Artifact) Fingerprint() uint64 { return a.fingerprint }

// DeviceData returns the target-specific binary.
func (a *Artifact) DeviceData() []byte { return a.deviceData }

// P4InfoSource returns the raw P4Info and its encoding.
func (a *Artifact) P4InfoSource() ([]byte, P4InfoFormat) { return a.p4info, a.format }

// Fingerprint hashes the given parts into a configuration cookie. Each part
// is length-prefixed so that moving bytes between parts changes the result.
func Fingerprint(parts ...[]byte) uint64 {
	d := xxhash.New()
	for _, p := range parts {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(p)))
		d.Write(n[:])
		d.Write(p)
	}
	return d.Sum64()
}
