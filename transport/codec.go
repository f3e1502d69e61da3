package transport

import (
	"bytes"
	"encoding/gob"

	"github.com/frostsnap/frostsnap/protocol"
	"github.com/frostsnap/frostsnap/wire"
)

func init() {
	for _, t := range []any{
		wire.CoreMessage{}, wire.AnnounceAck{}, wire.SetName{}, wire.NamingPreview{},
		wire.NamingFinish{}, wire.Debug{}, wire.DisconnectDownstream{},
		wire.ConfirmFirmwareUpgrade{}, wire.AckUpgradeMode{}, wire.LinkCancel{},
		wire.Announce{}, wire.NeedName{}, wire.CoreResponse{}, wire.DebugEcho{},
		protocol.DoKeyGen{}, protocol.FinishKeyGen{}, protocol.RequestNonces{},
		protocol.RequestSign{}, protocol.LoadPhysicalBackup{}, protocol.SavePhysicalBackup{},
		protocol.ConsolidatePhysicalBackup{}, protocol.Cancel{},
		protocol.KeyGenResponse{}, protocol.KeyGenAck{}, protocol.NonceResponse{},
		protocol.SignatureShare{}, protocol.PhysicalBackupEntered{}, protocol.ProtocolError{},
		&protocol.BitcoinTransactionTask{}, &protocol.TestMessageTask{}, &protocol.NostrEventTask{},
	} {
		gob.Register(t)
	}
}

// GobCodec implements Codec using encoding/gob. Unlike the coordinator's
// persisted mutation log, which must produce a byte-stable record format
// stable enough to pin as test vectors, wire traffic is ephemeral
// session state: nothing ever needs to re-decode an old frame after a
// software upgrade. gob is the standard library's answer to exactly
// this shape of problem (encode a struct graph behind an interface) and
// is what net/rpc itself uses, so it is the idiomatic stdlib choice
// here rather than a hand-rolled tag+length format. Every concrete type
// reachable through a sealed interface field (the envelope bodies
// themselves, plus nested ones like SignTask) must be gob.Register'd
// below; protocol.ShareImage additionally implements GobEncoder since
// its embedded *btcec.PublicKey has no exported fields for gob's
// reflection to find.
type GobCodec struct{}

// EncodeSend implements Codec.
func (GobCodec) EncodeSend(body wire.CoordinatorSendBody) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeReceive implements Codec.
func (GobCodec) DecodeReceive(payload []byte) (wire.DeviceSendBody, error) {
	var body wire.DeviceSendBody
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

// DeviceGobCodec is GobCodec's mirror image for the device side of a
// link: it encodes DeviceSendBody and decodes CoordinatorSendBody.
type DeviceGobCodec struct{}

// EncodeSend serializes a device's outbound body.
func (DeviceGobCodec) EncodeSend(body wire.DeviceSendBody) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeReceive parses a frame payload into a CoordinatorSendBody.
func (DeviceGobCodec) DecodeReceive(payload []byte) (wire.CoordinatorSendBody, error) {
	var body wire.CoordinatorSendBody
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}
