package ota

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

const testImageSize = 4 * SectorSize

func newTestFlash() (*MemRawFlash, Partition, Partition, Partition, uint32) {
	const otadataOffset = 0
	const factoryOffset = 2 * SectorSize
	const slot0Offset = factoryOffset + testImageSize
	const slot1Offset = slot0Offset + testImageSize

	flash := NewMemRawFlash(slot1Offset + testImageSize)
	factory := Partition{Offset: factoryOffset, Size: testImageSize, flash: flash}
	slot0 := Partition{Offset: slot0Offset, Size: testImageSize, flash: flash}
	slot1 := Partition{Offset: slot1Offset, Size: testImageSize, flash: flash}
	return flash, factory, slot0, slot1, otadataOffset
}

func writeImage(t *testing.T, p Partition, fill byte) [32]byte {
	t.Helper()
	h := sha256.New()
	for s := uint32(0); s < p.SectorsPerImage(); s++ {
		require.NoError(t, p.EraseImageSector(s))
		sector := make([]byte, SectorSize)
		for i := range sector {
			sector[i] = fill
		}
		require.NoError(t, p.WriteSector(s, sector))
		h.Write(sector)
	}
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

func TestOtaFlash_NoSlotActivatedFallsBackToFactory(t *testing.T) {
	flash, factory, slot0, slot1, otadataOffset := newTestFlash()
	_ = flash
	o := New(flash, otadataOffset, factory, slot0, slot1)

	_, _, _, ok := o.CurrentSlot()
	require.False(t, ok)
	require.Equal(t, factory.Offset, o.ActivePartition().Offset)
}

func TestOtaFlash_PassiveWhenDigestMatchesActive(t *testing.T) {
	flash, factory, slot0, slot1, otadataOffset := newTestFlash()
	o := New(flash, otadataOffset, factory, slot0, slot1)

	activeDigest := writeImage(t, factory, 0x42)
	mode := o.StartUpgrade(testImageSize, activeDigest, activeDigest)
	require.True(t, mode.Passive())

	done, err := mode.WriteChunk(make([]byte, testImageSize))
	require.NoError(t, err)
	require.True(t, done)
}

func TestOtaFlash_UpgradingWritesAndSwitchesSlot(t *testing.T) {
	flash, factory, slot0, slot1, otadataOffset := newTestFlash()
	o := New(flash, otadataOffset, factory, slot0, slot1)

	activeDigest := writeImage(t, factory, 0x11)

	image := make([]byte, testImageSize)
	for i := range image {
		image[i] = byte(i)
	}
	h := sha256.New()
	h.Write(image)
	var expectedDigest [32]byte
	copy(expectedDigest[:], h.Sum(nil))

	mode := o.StartUpgrade(testImageSize, expectedDigest, activeDigest)
	require.False(t, mode.Passive())

	require.NoError(t, mode.Confirm())
	for {
		done, err := mode.EraseChunk(1)
		require.NoError(t, err)
		if done {
			break
		}
	}

	done, err := mode.WriteChunk(image)
	require.NoError(t, err)
	require.True(t, done)

	switched, digest, err := mode.Finish()
	require.NoError(t, err)
	require.True(t, switched)
	require.Equal(t, expectedDigest, digest)

	slot, seq, _, ok := o.CurrentSlot()
	require.True(t, ok)
	require.Equal(t, 0, slot)
	require.Equal(t, uint32(1), seq)
	require.Equal(t, slot0.Offset, o.ActivePartition().Offset)
}

func TestOtaFlash_FinishFailsOnDigestMismatch(t *testing.T) {
	flash, factory, slot0, slot1, otadataOffset := newTestFlash()
	o := New(flash, otadataOffset, factory, slot0, slot1)

	activeDigest := writeImage(t, factory, 0x11)
	var wrongDigest [32]byte
	wrongDigest[0] = 0xAB

	mode := o.StartUpgrade(testImageSize, wrongDigest, activeDigest)
	require.NoError(t, mode.Confirm())
	for {
		done, err := mode.EraseChunk(4)
		require.NoError(t, err)
		if done {
			break
		}
	}
	done, err := mode.WriteChunk(make([]byte, testImageSize))
	require.NoError(t, err)
	require.True(t, done)

	switched, _, err := mode.Finish()
	require.Error(t, err)
	require.False(t, switched)

	_, _, _, ok := o.CurrentSlot()
	require.False(t, ok, "a failed upgrade must never touch otadata")
}

func TestOtaFlash_SecondUpgradeTargetsOtherSlotWithHigherSeq(t *testing.T) {
	flash, factory, slot0, slot1, otadataOffset := newTestFlash()
	o := New(flash, otadataOffset, factory, slot0, slot1)

	slot0Digest := writeImage(t, slot0, 0x02)

	// Manually activate slot 0 first, as a first upgrade cycle would.
	require.NoError(t, o.switchPartition(0, &OtaMetadata{}))
	slot, seq, _, ok := o.CurrentSlot()
	require.True(t, ok)
	require.Equal(t, 0, slot)
	require.Equal(t, uint32(1), seq)

	image := make([]byte, testImageSize)
	for i := range image {
		image[i] = byte(i)
	}
	h := sha256.New()
	h.Write(image)
	var nextDigest [32]byte
	copy(nextDigest[:], h.Sum(nil))

	mode := o.StartUpgrade(testImageSize, nextDigest, slot0Digest)
	require.False(t, mode.Passive())
	require.Equal(t, 1, mode.slot)

	require.NoError(t, mode.Confirm())
	for {
		done, err := mode.EraseChunk(4)
		require.NoError(t, err)
		if done {
			break
		}
	}

	done, err := mode.WriteChunk(image)
	require.NoError(t, err)
	require.True(t, done)

	switched, _, err := mode.Finish()
	require.NoError(t, err)
	require.True(t, switched)

	newSlot, newSeq, _, ok := o.CurrentSlot()
	require.True(t, ok)
	require.Equal(t, 1, newSlot)
	require.Equal(t, uint32(2), newSeq)
}
