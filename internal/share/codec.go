// Package share turns PQL text into compact URL-safe tokens for shareable
// portal links, and back.
package share

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// DefaultMaxBytes caps the decoded size of a token.
const DefaultMaxBytes = 64 << 10

var (
	ErrEmptyToken = errors.New("empty share token")
	ErrTooLarge   = errors.New("share token exceeds size limit")
)

// Codec encodes and decodes share tokens. It is safe for concurrent use.
type Codec struct {
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
	maxBytes int
}

// NewCodec creates a codec that refuses payloads larger than maxBytes
// (DefaultMaxBytes when maxBytes <= 0).
func NewCodec(maxBytes int) (*Codec, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(maxBytes)))
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &Codec{encoder: enc, decoder: dec, maxBytes: maxBytes}, nil
}

// Encode compresses text into a token.
func (c *Codec) Encode(text string) (string, error) {
	if len(text) > c.maxBytes {
		return "", ErrTooLarge
	}
	compressed := c.encoder.EncodeAll([]byte(text), nil)
	return base64.RawURLEncoding.EncodeToString(compressed), nil
}

// Decode expands a token produced by Encode.
func (c *Codec) Decode(token string) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	compressed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("decoding share token: %w", err)
	}
	out, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
			return "", ErrTooLarge
		}
		return "", fmt.Errorf("decompressing share token: %w", err)
	}
	if len(out) > c.maxBytes {
		return "", ErrTooLarge
	}
	return string(out), nil
}

// Close releases encoder and decoder resources.
func (c *Codec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}
