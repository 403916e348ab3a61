package qr

import (
	"bytes"
	"image/png"

	"github.com/skip2/go-qrcode"
)

// Encode renders content as a QR code and returns the PNG bytes.
func Encode(content string, size int) ([]byte, error) {
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, code.Image(size)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
