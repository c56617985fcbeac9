package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate random key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewAESEncryptor(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		errorMsg  string
		wantError bool
	}{
		{
			name:      "empty key",
			key:       "",
			wantError: true,
			errorMsg:  "encryption key is empty",
		},
		{
			name:      "invalid base64",
			key:       "not-valid-base64!@#$",
			wantError: true,
			errorMsg:  "base64 decode failed",
		},
		{
			name:      "key too short",
			key:       base64.StdEncoding.EncodeToString(make([]byte, 16)),
			wantError: true,
			errorMsg:  "must be 32 bytes",
		},
		{
			name:      "key too long",
			key:       base64.StdEncoding.EncodeToString(make([]byte, 64)),
			wantError: true,
			errorMsg:  "must be 32 bytes",
		},
		{
			name:      "valid 32-byte key",
			key:       base64.StdEncoding.EncodeToString(make([]byte, 32)),
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewAESEncryptor(tt.key)
			if tt.wantError {
				if err == nil {
					t.Errorf("NewAESEncryptor() expected error but got nil")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("NewAESEncryptor() error = %v, want error containing %q", err, tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Errorf("NewAESEncryptor() unexpected error = %v", err)
				}
				if enc == nil {
					t.Errorf("NewAESEncryptor() returned nil encryptor")
				}
			}
		})
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}

	plaintexts := [][]byte{
		[]byte("a"),
		[]byte("eyJhbGciOiJSUzI1NiJ9.access-token-payload"),
		[]byte("refresh token with spaces and unicode: éè"),
		bytes.Repeat([]byte("long"), 4096),
	}

	for _, plaintext := range plaintexts {
		ciphertext, err := enc.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if bytes.Contains(ciphertext, plaintext) {
			t.Error("ciphertext contains plaintext")
		}

		decrypted, err := enc.Decrypt(ciphertext)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if !bytes.Equal(decrypted, plaintext) {
			t.Errorf("round trip mismatch: got %d bytes, want %d bytes", len(decrypted), len(plaintext))
		}
	}
}

func TestEncrypt_EmptyPlaintext(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}
	if _, err := enc.Encrypt(nil); err == nil {
		t.Error("Encrypt(nil) expected error but got nil")
	}
}

func TestEncrypt_NonceUnique(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}

	plaintext := []byte("same plaintext")
	first, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	second, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Equal(first, second) {
		t.Error("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestDecrypt_Tampered(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}

	ciphertext, err := enc.Encrypt([]byte("token material"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	// Flip one bit in the ciphertext body. GCM must reject it.
	tampered := append([]byte(nil), ciphertext...)
	tampered[len(tampered)-1] ^= 0x01
	if _, err := enc.Decrypt(tampered); err == nil {
		t.Error("Decrypt() accepted tampered ciphertext")
	}

	// Truncated input is missing nonce or tag bytes.
	if _, err := enc.Decrypt(ciphertext[:8]); err == nil {
		t.Error("Decrypt() accepted truncated ciphertext")
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}
	other, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}

	ciphertext, err := enc.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := other.Decrypt(ciphertext); err == nil {
		t.Error("Decrypt() with wrong key expected error but got nil")
	}
}

func TestEncryptDecryptString(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}

	encoded, err := EncryptString(enc, "oauth-refresh-token")
	if err != nil {
		t.Fatalf("EncryptString() error = %v", err)
	}
	if encoded == "" || encoded == "oauth-refresh-token" {
		t.Errorf("EncryptString() = %q, want opaque non-empty value", encoded)
	}
	if _, err := base64.StdEncoding.DecodeString(encoded); err != nil {
		t.Errorf("EncryptString() output is not valid base64: %v", err)
	}

	decoded, err := DecryptString(enc, encoded)
	if err != nil {
		t.Fatalf("DecryptString() error = %v", err)
	}
	if decoded != "oauth-refresh-token" {
		t.Errorf("DecryptString() = %q, want oauth-refresh-token", decoded)
	}
}

func TestEncryptDecryptString_Empty(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}

	encoded, err := EncryptString(enc, "")
	if err != nil {
		t.Fatalf("EncryptString(\"\") error = %v", err)
	}
	if encoded != "" {
		t.Errorf("EncryptString(\"\") = %q, want empty", encoded)
	}

	decoded, err := DecryptString(enc, "")
	if err != nil {
		t.Fatalf("DecryptString(\"\") error = %v", err)
	}
	if decoded != "" {
		t.Errorf("DecryptString(\"\") = %q, want empty", decoded)
	}
}

func TestDecryptString_InvalidBase64(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}
	if _, err := DecryptString(enc, "%%not-base64%%"); err == nil {
		t.Error("DecryptString() accepted invalid base64")
	}
}
