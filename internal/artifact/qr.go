package artifact

import (
	"errors"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultQRSize = 512

var ErrEmptyQRContent = errors.New("qr content is empty")

// QRPNG renders the public card URL as a PNG. Medium recovery keeps the code
// scannable when printed on badges or shown on cracked phone screens.
func QRPNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, ErrEmptyQRContent
	}

	if size <= 0 {
		size = defaultQRSize
	}

	return qrcode.Encode(content, qrcode.Medium, size)
}
