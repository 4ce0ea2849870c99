package whatsapp

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

// PlaceholderQR is returned when the pairing challenge cannot be rendered.
// It is a tiny valid PNG so operator UIs still display something scannable
// as "broken" rather than erroring out.
const PlaceholderQR = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

// EncodeQR renders the opaque pairing challenge as a base64 PNG for the
// out-of-band human pairing step. Encoding failures fall back to the
// placeholder instead of failing initialization.
func EncodeQR(challenge string) string {
	if challenge == "" {
		return ""
	}
	png, err := qrcode.Encode(challenge, qrcode.Medium, 256)
	if err != nil {
		return PlaceholderQR
	}
	return base64.StdEncoding.EncodeToString(png)
}
