// Package protocol implements the TP-Link smart home wire protocol: JSON payloads
// obfuscated with an XOR autokey cipher, length-prefixed over TCP and bare over UDP.
package protocol

// initialKey seeds the autokey cipher used by every TP-Link smart home device.
const initialKey byte = 171

// Encrypt obfuscates a plaintext payload. Each output byte becomes the key for the next.
func Encrypt(plain []byte) []byte {
	out := make([]byte, len(plain))
	key := initialKey
	for i, b := range plain {
		key ^= b
		out[i] = key
	}
	return out
}

// Decrypt reverses Encrypt.
func Decrypt(cipher []byte) []byte {
	out := make([]byte, len(cipher))
	key := initialKey
	for i, b := range cipher {
		out[i] = key ^ b
		key = b
	}
	return out
}
