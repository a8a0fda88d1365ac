package rest

import "encoding/base64"

// The backend's action endpoints embed base64-encoded ids in their URL
// paths. It is a cosmetic convention, not a security boundary, so the codec
// lives here at the client boundary and never leaks into the domain model.

func ObfuscateID(id string) string {
	return base64.StdEncoding.EncodeToString([]byte(id))
}

func DeobfuscateID(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
