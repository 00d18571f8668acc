package atcmi

import (
	"crypto/aes"
	"fmt"

	"github.com/pion/dtls/v2/pkg/crypto/ccm"

	"github.com/nerrad567/atc-bridge/internal/bridges/ble"
)

// micLen is the AES-CCM tag length used by every supported firmware.
const micLen = 4

// customEncAAD is the associated data pvvx firmware authenticates.
var customEncAAD = []byte{0x11}

// customEncNonce builds the 11-byte nonce of a pvvx encrypted frame:
// the reversed address followed by the advertisement element header
// (length, type 0x16, UUID little-endian) and the frame counter.
func customEncNonce(addr ble.Address, dataLen int, counter byte) []byte {
	nonce := make([]byte, 0, 11)
	nonce = append(nonce, addr.Reversed()...)
	nonce = append(nonce,
		byte(dataLen+3), 0x16,
		byte(UUIDEnvironmentalSensing&0xFF), byte(UUIDEnvironmentalSensing>>8),
		counter,
	)
	return nonce
}

// bthomeNonce builds the 13-byte BTHome v2 nonce: address, UUID
// little-endian, device info byte and the 4-byte counter.
func bthomeNonce(addr ble.Address, info byte, counter []byte) []byte {
	nonce := make([]byte, 0, 13)
	nonce = append(nonce, addr[:]...)
	nonce = append(nonce, byte(UUIDBTHome&0xFF), byte(UUIDBTHome>>8), info)
	nonce = append(nonce, counter...)
	return nonce
}

func newCCM(key []byte, nonceLen int) (ccm.CCM, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptFailed, err)
	}
	aead, err := ccm.NewCCM(block, micLen, nonceLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptFailed, err)
	}
	return aead, nil
}

// openCCM verifies and decrypts sealed (ciphertext followed by the tag).
func openCCM(key, nonce, sealed, aad []byte) ([]byte, error) {
	aead, err := newCCM(key, len(nonce))
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptFailed, err)
	}
	return plain, nil
}
