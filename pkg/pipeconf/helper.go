package pipeconf

import (
	"fmt"
	"sync"

	p4configv1 "github.com/p4lang/p4runtime/go/p4/config/v1"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"

	"github.com/newtron-network/p4rt/pkg/util"
)

// Resolver maps a pipeconf to its P4Info. A failed resolution is reported
// by the resolver itself; callers only need to abort.
type Resolver interface {
	P4Info(pc Pipeconf) (*p4configv1.P4Info, error)
}

// Source is implemented by pipeconfs that carry their own P4Info.
type Source interface {
	Pipeconf
	P4InfoSource() ([]byte, P4InfoFormat)
}

type cacheKey struct {
	id          string
	fingerprint uint64
}

// Helper parses P4Info from pipeconfs that implement Source and caches the
// result per pipeconf id and fingerprint. Only the latest fingerprint of an
// id is kept.
type Helper struct {
	mu    sync.Mutex
	cache map[cacheKey]*p4configv1.P4Info
}

// NewHelper creates an empty helper.
func NewHelper() *Helper {
	return &Helper{cache: make(map[cacheKey]*p4configv1.P4Info)}
}

// P4Info returns the parsed P4Info of pc. The returned message is shared and
// must not be modified.
func (h *Helper) P4Info(pc Pipeconf) (*p4configv1.P4Info, error) {
	key := cacheKey{id: pc.ID(), fingerprint: pc.Fingerprint()}

	h.mu.Lock()
	defer h.mu.Unlock()

	if info, ok := h.cache[key]; ok {
		return info, nil
	}

	src, ok := pc.(Source)
	if !ok {
		err := fmt.Errorf("pipeconf %s has no P4Info: %w", pc.ID(), util.ErrPipeconfUnresolved)
		util.WithField("pipeconf", pc.ID()).Warn("Missing P4Info extension")
		return nil, err
	}

	data, format := src.P4InfoSource()
	info := &p4configv1.P4Info{}
	var err error
	switch format {
	case FormatBinary:
		err = proto.Unmarshal(data, info)
	default:
		err = prototext.Unmarshal(data, info)
	}
	if err != nil {
		util.WithField("pipeconf", pc.ID()).Errorf("Unable to parse P4Info: %v", err)
		return nil, fmt.Errorf("parsing P4Info of pipeconf %s: %w: %w", pc.ID(), util.ErrPipeconfUnresolved, err)
	}

	h.evictLocked(pc.ID())
	h.cache[key] = info
	return info, nil
}

// evictLocked drops every cached entry for the pipeconf id, so a pipeconf
// whose fingerprint changed keeps only its latest P4Info.
func (h *Helper) evictLocked(id string) {
	for k := range h.cache {
		if k.id == id {
			delete(h.cache, k)
		}
	}
}
