package cryptobox

import (
	"bytes"
	"errors"
	"testing"

	"github.com/starfrich/cryptletter/internal/common"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := GenerateKey()
	payloads := [][]byte{
		[]byte("hello"),
		[]byte(""),
		bytes.Repeat([]byte{0xAB}, 1<<16),
	}

	for _, p := range payloads {
		b, err := Encrypt(p, key)
		if err != nil {
			t.Fatalf("encrypt error: %v", err)
		}
		got, err := Decrypt(b, key)
		if err != nil {
			t.Fatalf("decrypt error: %v", err)
		}
		if !bytes.Equal(got, p) {
			t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(p))
		}
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	key := GenerateKey()
	a, err := Encrypt([]byte("same plaintext"), key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	b, err := Encrypt([]byte("same plaintext"), key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	if bytes.Equal(a.Nonce, b.Nonce) {
		t.Fatal("nonce reused across calls")
	}
	if bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Fatal("identical ciphertext for identical plaintext; nonce not applied")
	}
}

func TestDecrypt_TamperDetection(t *testing.T) {
	key := GenerateKey()
	b, err := Encrypt([]byte("do not touch"), key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}

	tamper := func(name string, mutate func(*Bundle)) {
		t.Run(name, func(t *testing.T) {
			c := &Bundle{
				Ciphertext: bytes.Clone(b.Ciphertext),
				Nonce:      bytes.Clone(b.Nonce),
				Tag:        bytes.Clone(b.Tag),
				Version:    b.Version,
			}
			mutate(c)
			if _, err := Decrypt(c, key); !errors.Is(err, common.ErrDecryptionFailed) {
				t.Fatalf("expected ErrDecryptionFailed, got %v", err)
			}
		})
	}

	tamper("ciphertext bit flip", func(c *Bundle) { c.Ciphertext[0] ^= 0x01 })
	tamper("nonce bit flip", func(c *Bundle) { c.Nonce[0] ^= 0x01 })
	tamper("tag bit flip", func(c *Bundle) { c.Tag[len(c.Tag)-1] ^= 0x80 })
}

func TestDecrypt_WrongKey(t *testing.T) {
	b, err := Encrypt([]byte("secret"), GenerateKey())
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	if _, err := Decrypt(b, GenerateKey()); !errors.Is(err, common.ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestKeyLengthGate(t *testing.T) {
	short := make([]byte, 16)
	if _, err := Encrypt([]byte("x"), short); !errors.Is(err, common.ErrInvalidKey) {
		t.Fatalf("encrypt: expected ErrInvalidKey, got %v", err)
	}
	b, err := Encrypt([]byte("x"), GenerateKey())
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	if _, err := Decrypt(b, short); !errors.Is(err, common.ErrInvalidKey) {
		t.Fatalf("decrypt: expected ErrInvalidKey, got %v", err)
	}
}

func TestBundle_MarshalParse(t *testing.T) {
	key := GenerateKey()
	b, err := Encrypt([]byte("persist me"), key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}

	data, err := b.Marshal()
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	parsed, err := ParseBundle(data)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	got, err := Decrypt(parsed, key)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}
	if string(got) != "persist me" {
		t.Fatalf("unexpected plaintext: %q", got)
	}
}

func TestBundle_EmptyPayloadSurvivesStorage(t *testing.T) {
	key := GenerateKey()
	b, err := Encrypt([]byte{}, key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	if len(b.Ciphertext) != 0 {
		t.Fatalf("expected empty ciphertext, got %d bytes", len(b.Ciphertext))
	}

	data, err := b.Marshal()
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	parsed, err := ParseBundle(data)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	got, err := Decrypt(parsed, key)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty plaintext, got %d bytes", len(got))
	}
}

func TestParseBundle_Malformed(t *testing.T) {
	cases := map[string][]byte{
		"not json":      []byte("<!DOCTYPE html><html>error</html>"),
		"empty object":  []byte(`{}`),
		"bad version":   []byte(`{"ciphertext":"YQ==","nonce":"AAAAAAAAAAAAAAAA","tag":"AAAAAAAAAAAAAAAAAAAAAA==","version":"v9"}`),
		"short nonce":   []byte(`{"ciphertext":"YQ==","nonce":"AAA=","tag":"AAAAAAAAAAAAAAAAAAAAAA==","version":"v1"}`),
		"truncated doc": []byte(`{"ciphertext":`),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseBundle(data); !errors.Is(err, common.ErrMalformedBundle) {
				t.Fatalf("expected ErrMalformedBundle, got %v", err)
			}
		})
	}
}
