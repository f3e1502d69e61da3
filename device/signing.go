package device

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/frostsnap/frostsnap/frost"
	"github.com/frostsnap/frostsnap/protocol"
)

func (s *Signer) handleRequestNonces(m protocol.RequestNonces) ([]protocol.DeviceSend, error) {
	seed := frost.NonceStreamSeed(s.deviceSecret, m.StreamId)
	start := s.nonceCounters[m.StreamId]

	secrets, err := frost.DeriveNonceBatch(seed, start, m.Count)
	if err != nil {
		return nil, err
	}
	pairs := make([]protocol.NoncePair, len(secrets))
	for i, n := range secrets {
		pairs[i] = n.Public()
	}

	return []protocol.DeviceSend{protocol.ToCoordinator{Message: protocol.NonceResponse{
		StreamId:   m.StreamId,
		StartIndex: start,
		Nonces:     pairs,
	}}}, nil
}

func (s *Signer) handleRequestSign(m protocol.RequestSign) ([]protocol.DeviceSend, error) {
	if s.state != Idle {
		return protocolError("device: RequestSign received while busy (%s)", s.state), nil
	}
	key, ok := s.keys[m.KeyId]
	if !ok {
		return protocolError("device: RequestSign for unknown key %s", m.KeyId), nil
	}
	if key.AccessStructureRef != m.AccessStructureRef {
		return protocolError("device: RequestSign access structure mismatch"), nil
	}
	myNonces, ok := m.Nonces[key.ShareIndex]
	if !ok {
		return protocolError("device: RequestSign did not include nonces for this device"), nil
	}
	if myNonces.Start != s.nonceCounters[myNonces.StreamId] {
		return protocolError("device: RequestSign nonces start at %d, expected %d", myNonces.Start, s.nonceCounters[myNonces.StreamId]), nil
	}
	items := m.SignTask.SignItems()
	if len(items) != len(myNonces.Nonces) {
		return protocolError("device: RequestSign supplied %d nonces for %d sign items", len(myNonces.Nonces), len(items)), nil
	}

	s.signing = &signingProposal{
		keyId:              m.KeyId,
		accessStructureRef: m.AccessStructureRef,
		signTask:           m.SignTask,
		nonces:             m.Nonces,
	}
	s.state = SigningProposed

	return []protocol.DeviceSend{protocol.ToUser{Message: protocol.SignatureRequest{
		SignTask: m.SignTask,
		KeyId:    m.KeyId,
	}}}, nil
}

// sortedShareIndices returns the participant set of a nonce map in a
// canonical order, so every participant computing SignShare/
// VerifySignatureShare agrees on index positions without a separate
// round trip to agree on ordering.
func sortedShareIndices(nonces map[protocol.ShareIndex]protocol.SignRequestNonces) []protocol.ShareIndex {
	out := make([]protocol.ShareIndex, 0, len(nonces))
	for idx := range nonces {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i][:]) < string(out[j][:])
	})
	return out
}

func (s *Signer) confirmSigning() ([]protocol.DeviceSend, error) {
	if s.state != SigningProposed {
		return nil, nil
	}
	prop := s.signing
	key := s.keys[prop.keyId]

	allIndices := sortedShareIndices(prop.nonces)
	myPosition := -1
	for i, idx := range allIndices {
		if idx == key.ShareIndex {
			myPosition = i
			break
		}
	}
	if myPosition < 0 {
		s.reset()
		return protocolError("device: this device's share index missing from its own sign proposal"), nil
	}

	myNonces := prop.nonces[key.ShareIndex]
	seed := frost.NonceStreamSeed(s.deviceSecret, myNonces.StreamId)

	var secretShare btcec.ModNScalar
	if overflow := secretShare.SetBytes(&key.SecretShare); overflow != 0 {
		s.reset()
		return nil, fmt.Errorf("device: stored secret share overflows scalar field")
	}

	myShareImage, err := frost.ShareImageAt(key.SharedKey, key.ShareIndex)
	if err != nil {
		s.reset()
		return nil, err
	}

	items := prop.signTask.SignItems()
	shares := make([][32]byte, len(items))
	s.state = SigningAckPending

	for i, item := range items {
		tweak, err := derivedTweakForItem(key, item)
		if err != nil {
			s.reset()
			return nil, err
		}

		allNoncesForItem := make([]protocol.NoncePair, len(allIndices))
		for j, idx := range allIndices {
			allNoncesForItem[j] = prop.nonces[idx].Nonces[i]
		}

		secretNonce, err := frost.DeriveNonce(seed, myNonces.Start+uint64(i))
		if err != nil {
			s.reset()
			return nil, err
		}

		share, err := frost.SignShare(
			&secretShare, key.ShareIndex, allIndices, secretNonce,
			key.SharedKey.PublicKey(), tweak, item.Message, allNoncesForItem, myPosition,
		)
		if err != nil {
			s.reset()
			return nil, err
		}

		ok, err := frost.VerifySignatureShare(
			share, myShareImage.Point, key.ShareIndex, allIndices,
			key.SharedKey.PublicKey(), tweak, item.Message, allNoncesForItem, myPosition,
		)
		if err != nil || !ok {
			s.reset()
			return protocolError("device: self-verification of signature share %d failed", i), nil
		}

		shares[i] = share
	}

	newStart := myNonces.Start + uint64(len(items))
	replenished, err := frost.DeriveNonceBatch(seed, newStart, uint32(len(items)))
	if err != nil {
		s.reset()
		return nil, err
	}
	replenishedPairs := make([]protocol.NoncePair, len(replenished))
	for i, n := range replenished {
		replenishedPairs[i] = n.Public()
	}

	s.nonceCounters[myNonces.StreamId] = newStart
	s.reset()

	return []protocol.DeviceSend{
		protocol.ToStorage{Change: protocol.ExpendNonce{StreamId: myNonces.StreamId, NonceCounter: newStart}},
		protocol.ToCoordinator{Message: protocol.SignatureShare{
			Shares: shares,
			NewNonces: protocol.NonceResponse{
				StreamId:   myNonces.StreamId,
				StartIndex: newStart,
				Nonces:     replenishedPairs,
			},
		}},
	}, nil
}

// derivedTweakForItem applies a SignItem's BIP32 path and optional
// taproot tweak on top of a key's root, returning the combined tweak
// scalar SignShare/VerifySignatureShare expect (nil if the item applies
// neither).
func derivedTweakForItem(key KeyData, item protocol.SignItem) (*btcec.ModNScalar, error) {
	if len(item.Bip32Path) == 0 && !item.TapTweak {
		return nil, nil
	}
	childKey, _, pathTweak, err := frost.DerivePath(key.SharedKey.PublicKey(), key.ChainCode, item.Bip32Path)
	if err != nil {
		return nil, err
	}
	if len(item.Bip32Path) == 0 {
		childKey = key.SharedKey.PublicKey()
		pathTweak = nil
	}
	return frost.CombineTweaks(pathTweak, childKey, item.TapTweak), nil
}
