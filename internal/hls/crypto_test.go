package hls

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encrypt is the reference AES-128-CBC + PKCS#7 encoder used by the tests.
func encrypt(t *testing.T, key, iv, plaintext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	n := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(append([]byte{}, plaintext...), bytes.Repeat([]byte{byte(n)}, n)...)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestDecrypt_round_trip(t *testing.T) {
	for _, size := range []int{0, 1, 15, 16, 17, 1000, 4096} {
		key := randomBytes(t, 16)
		iv := randomBytes(t, 16)
		plaintext := randomBytes(t, size)

		got, err := Decrypt(encrypt(t, key, iv, plaintext), key, iv)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, plaintext, got, "size %d", size)
	}
}

func TestDecrypt_padding_errors(t *testing.T) {
	key := randomBytes(t, 16)
	iv := randomBytes(t, 16)

	t.Run("not_block_aligned", func(t *testing.T) {
		_, err := Decrypt(make([]byte, 31), key, iv)
		var pe *PaddingError
		assert.ErrorAs(t, err, &pe)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Decrypt(nil, key, iv)
		var pe *PaddingError
		assert.ErrorAs(t, err, &pe)
	})

	t.Run("bad_pad_value", func(t *testing.T) {
		// A final block of all 0x20 decodes to pad value 32 > 16.
		block, err := aes.NewCipher(key)
		require.NoError(t, err)
		plain := bytes.Repeat([]byte{0x20}, 32)
		ct := make([]byte, len(plain))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, plain)

		_, err = Decrypt(ct, key, iv)
		var pe *PaddingError
		assert.ErrorAs(t, err, &pe)
	})

	t.Run("inconsistent_pad_bytes", func(t *testing.T) {
		block, err := aes.NewCipher(key)
		require.NoError(t, err)
		plain := make([]byte, 16)
		plain[15] = 3
		plain[14] = 3
		plain[13] = 9
		ct := make([]byte, 16)
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, plain)

		_, err = Decrypt(ct, key, iv)
		var pe *PaddingError
		assert.ErrorAs(t, err, &pe)
	})
}

func TestDecrypt_rejects_bad_key_material(t *testing.T) {
	_, err := Decrypt(make([]byte, 16), make([]byte, 8), make([]byte, 16))
	var de *DecryptError
	assert.ErrorAs(t, err, &de)

	_, err = Decrypt(make([]byte, 16), make([]byte, 16), make([]byte, 4))
	assert.ErrorAs(t, err, &de)
}
