package mpesa

import "encoding/base64"

// passwordFor derives the STK push password: base64(shortcode+passkey+timestamp),
// per the Daraja Lipa Na M-Pesa Online spec.
func passwordFor(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}
