package coordinator

import (
	"github.com/google/uuid"

	"github.com/frostsnap/frostsnap/protocol"
)

// deviceNonceCache is the coordinator's record of one device's most
// recently advertised, not-yet-consumed nonce batch. Per the
// coordinator's nonce-accounting contract it tracks only
// (stream id, next unused index, remaining count) plus the actual
// advertised nonce values themselves; it never trusts its own
// bookkeeping over a device's, since every SignatureShare response
// replaces this wholesale with the device's own report of what it has
// left (NewNonces).
//
// This coordinator opens at most one nonce stream per device: a more
// general multi-stream cache is representable (see
// protocol.NonceStream, which this type's View projects onto) but
// nothing in this system currently needs concurrent streams for one
// device, so a second stream is never opened.
type deviceNonceCache struct {
	streamId protocol.NonceStreamId
	start    uint64
	cached   []protocol.NoncePair
}

// NonceStream reports a device's current nonce bookkeeping in the
// shape the data model names, for display or diagnostics.
func (c *Coordinator) NonceStream(device protocol.DeviceId) (protocol.NonceStream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.nonceCache[device]
	if !ok {
		return protocol.NonceStream{}, false
	}
	return protocol.NonceStream{
		Id:         entry.streamId,
		DeviceId:   device,
		NextUnused: entry.start,
		Remaining:  uint32(len(entry.cached)),
	}, true
}

// requestOrTakeNonces claims exactly count nonces for device toward one
// sign proposal. If the cache already holds exactly count entries they
// are consumed and returned directly (second return nil); otherwise a
// fresh RequestNonces for exactly count is returned and any stale
// cache entry is discarded, since a device only ever has one coherent
// unused batch at a time and a size mismatch means this batch cannot
// satisfy the proposal being built.
func (c *Coordinator) requestOrTakeNonces(device protocol.DeviceId, count uint32) (protocol.SignRequestNonces, *protocol.RequestNonces) {
	entry, ok := c.nonceCache[device]
	if ok && uint32(len(entry.cached)) == count {
		taken := protocol.SignRequestNonces{StreamId: entry.streamId, Start: entry.start, Nonces: entry.cached}
		delete(c.nonceCache, device)
		return taken, nil
	}

	var streamId protocol.NonceStreamId
	if ok {
		streamId = entry.streamId
	} else {
		copy(streamId[:], uuidBytes())
	}
	delete(c.nonceCache, device)
	return protocol.SignRequestNonces{}, &protocol.RequestNonces{StreamId: streamId, Count: count}
}

// applyNonceResponse records a device's currently-advertised batch,
// replacing whatever was cached before.
func (c *Coordinator) applyNonceResponse(device protocol.DeviceId, resp protocol.NonceResponse) {
	c.nonceCache[device] = &deviceNonceCache{
		streamId: resp.StreamId,
		start:    resp.StartIndex,
		cached:   resp.Nonces,
	}
}

func uuidBytes() []byte {
	id := uuid.New()
	return id[:]
}
