package qrcode

import (
	"fmt"

	qr "github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge in pixels; large enough for phone scanners
// reading a printed card.
const DefaultSize = 320

// PNG renders a card QR payload. Medium recovery tolerates a worn card.
func PNG(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("empty qr payload")
	}
	if size <= 0 {
		size = DefaultSize
	}
	code, err := qr.New(payload, qr.Medium)
	if err != nil {
		return nil, fmt.Errorf("create qr code: %w", err)
	}
	png, err := code.PNG(size)
	if err != nil {
		return nil, fmt.Errorf("render qr png: %w", err)
	}
	return png, nil
}
