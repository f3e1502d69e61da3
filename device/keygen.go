package device

import (
	"crypto/sha256"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/frostsnap/frostsnap/frost"
	"github.com/frostsnap/frostsnap/protocol"
)

func (s *Signer) handleDoKeyGen(m protocol.DoKeyGen) ([]protocol.DeviceSend, error) {
	if s.state != Idle {
		return protocolError("device: DoKeyGen received while busy (%s)", s.state), nil
	}
	myIndex, ok := m.DeviceToShareIndex[s.id]
	if !ok {
		return protocolError("device: DoKeyGen did not name this device"), nil
	}
	if _, ok := indexScalar(myIndex); !ok {
		return protocolError("device: DoKeyGen assigned an illegal share index"), nil
	}

	round, err := frost.BeginKeygen(myIndex, m.Threshold)
	if err != nil {
		return nil, err
	}

	pop, err := proofOfPossession(round)
	if err != nil {
		return nil, err
	}

	encrypted := make(map[protocol.DeviceId]protocol.EncryptedShare, len(m.DeviceToShareIndex))
	for deviceId, shareIndex := range m.DeviceToShareIndex {
		share, err := round.ShareFor(shareIndex)
		if err != nil {
			return nil, err
		}
		recipientPub, err := deviceId.PubKey()
		if err != nil {
			return nil, err
		}
		enc, err := frost.EncryptShareForRecipient(recipientPub, share)
		if err != nil {
			return nil, err
		}
		encrypted[deviceId] = enc
	}

	pointPoly := round.PointPolynomial()
	pointBytes := make([]*protocol.PointBytes, len(pointPoly))
	for i, p := range pointPoly {
		var pb protocol.PointBytes
		copy(pb[:], p.SerializeCompressed())
		pointBytes[i] = &pb
	}

	s.keygen = &keygenProposal{
		round:              round,
		myIndex:            myIndex,
		deviceToShareIndex: m.DeviceToShareIndex,
		threshold:          m.Threshold,
		purpose:            m.Purpose,
	}
	s.state = KeyGenProposed

	return []protocol.DeviceSend{protocol.ToCoordinator{Message: protocol.KeyGenResponse{
		From:              s.id,
		PointPolynomial:   pointBytes,
		EncryptedShares:   encrypted,
		ProofOfPossession: pop,
	}}}, nil
}

// pointPolyTranscript hashes one participant's claimed point
// polynomial. A proof of possession is produced and verified against
// exactly this value, computed independently on each side: the signer
// knows it at DoKeyGen time (its own polynomial), and a verifier knows
// it once it has parsed that participant's PointPolynomial out of
// FinishKeyGen, with no need for a round trip or any other
// participant's data.
func pointPolyTranscript(pointPoly []*btcec.PublicKey) [32]byte {
	h := sha256.New()
	h.Write([]byte("frostsnap/keygen-proposal"))
	for _, p := range pointPoly {
		h.Write(p.SerializeCompressed())
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// proofOfPossession signs this participant's own point polynomial.
func proofOfPossession(round *frost.KeygenRound) ([64]byte, error) {
	transcript := pointPolyTranscript(round.PointPolynomial())
	return frost.ProofOfPossession(round.SecretConstant(), transcript)
}

func (s *Signer) handleFinishKeyGen(m protocol.FinishKeyGen) ([]protocol.DeviceSend, error) {
	if s.state != KeyGenProposed {
		return protocolError("device: FinishKeyGen received in state %s", s.state), nil
	}

	prop := s.keygen
	ids := make([]protocol.DeviceId, 0, len(m.SharesProvided))
	for id := range m.SharesProvided {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return string(ids[i][:]) < string(ids[j][:])
	})

	pointPolys := make([][]*btcec.PublicKey, 0, len(ids))
	receivedShares := make([][32]byte, 0, len(ids))
	for _, id := range ids {
		resp := m.SharesProvided[id]

		pointPoly := make([]*btcec.PublicKey, len(resp.PointPolynomial))
		for i, pb := range resp.PointPolynomial {
			p, err := btcec.ParsePubKey(pb[:])
			if err != nil {
				s.reset()
				return protocolError("device: bad point polynomial from %s: %v", id, err), nil
			}
			pointPoly[i] = p
		}

		ok, err := frost.VerifyProofOfPossession(pointPoly, pointPolyTranscript(pointPoly), resp.ProofOfPossession)
		if err != nil || !ok {
			s.reset()
			return protocolError("device: proof of possession failed for %s", id), nil
		}

		enc, ok := resp.EncryptedShares[s.id]
		if !ok {
			s.reset()
			return protocolError("device: no share provided for this device by %s", id), nil
		}
		share, err := frost.DecryptShareFromSender(s.devicePriv, enc)
		if err != nil {
			s.reset()
			return protocolError("device: could not decrypt share from %s: %v", id, err), nil
		}
		ok, err = frost.VerifyShare(pointPoly, prop.myIndex, share)
		if err != nil || !ok {
			s.reset()
			return protocolError("device: share from %s failed verification", id), nil
		}

		pointPolys = append(pointPolys, pointPoly)
		receivedShares = append(receivedShares, share)
	}

	sharedKey, secretShare, err := frost.FinishKeygen(pointPolys, receivedShares)
	if err != nil {
		s.reset()
		return protocolError("device: finish keygen: %v", err), nil
	}

	expectedImage, err := frost.ShareImageAt(sharedKey, prop.myIndex)
	if err != nil {
		s.reset()
		return nil, err
	}
	if !frost.SelfVerifySecretShare(secretShare, expectedImage.Point) {
		s.reset()
		return protocolError("device: self-verification of finished secret share failed"), nil
	}

	var sessionHash [32]byte
	copy(sessionHash[:], schnorr.SerializePubKey(sharedKey.PublicKey()))

	prop.finished = &finishedKeyGen{
		sharedKey:   sharedKey,
		secretShare: secretShare,
		sessionHash: sessionHash,
	}
	s.state = KeyGenAckPending

	return []protocol.DeviceSend{protocol.ToUser{Message: protocol.CheckKeyGen{SessionHash: sessionHash}}}, nil
}

func (s *Signer) confirmKeyGen() ([]protocol.DeviceSend, error) {
	if s.state != KeyGenAckPending {
		return nil, nil
	}
	prop := s.keygen
	finished := prop.finished
	keyId := keyIdFor(finished.sharedKey)

	k := KeyData{
		AccessStructureRef: protocol.AccessStructureRef{KeyId: keyId, AccessStructureId: masterAccessStructureId(keyId)},
		Purpose:            prop.purpose,
		SharedKey:          finished.sharedKey,
		ShareIndex:         prop.myIndex,
		SecretShare:        finished.secretShare,
		ChainCode:          frost.RootChainCode(finished.sharedKey.PublicKey()),
	}
	s.keys[keyId] = k
	s.reset()

	return []protocol.DeviceSend{
		protocol.ToStorage{Change: protocol.SaveKey{
			KeyId:      keyId,
			ShareIndex: k.ShareIndex,
			SecretKey:  k.SecretShare,
			SharedKey:  k.SharedKey,
		}},
		protocol.ToCoordinator{Message: protocol.KeyGenAck{SessionHash: finished.sessionHash}},
	}, nil
}

func indexScalar(idx protocol.ShareIndex) (*btcec.ModNScalar, bool) {
	var s btcec.ModNScalar
	overflow := s.SetBytes((*[32]byte)(&idx))
	if overflow != 0 || s.IsZero() {
		return nil, false
	}
	return &s, true
}
