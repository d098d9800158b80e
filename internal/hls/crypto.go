package hls

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// Decrypt reverses AES-128-CBC encryption of one segment and strips its
// PKCS#7 padding. ciphertext is not modified.
func Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	if len(key) != aes.BlockSize {
		return nil, &DecryptError{Err: fmt.Errorf("key is %d bytes, want %d", len(key), aes.BlockSize)}
	}
	if len(iv) != aes.BlockSize {
		return nil, &DecryptError{Err: fmt.Errorf("iv is %d bytes, want %d", len(iv), aes.BlockSize)}
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, &PaddingError{Reason: fmt.Sprintf("ciphertext length %d is not a positive multiple of %d", len(ciphertext), aes.BlockSize)}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &DecryptError{Err: err}
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return unpad(plaintext)
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize {
		return nil, &PaddingError{Reason: fmt.Sprintf("pad value %d out of range", n)}
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, &PaddingError{Reason: "pad bytes differ"}
		}
	}
	return b[:len(b)-n], nil
}
