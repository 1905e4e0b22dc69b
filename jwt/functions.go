package jwt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/floralog/floralog"
)

// Algorithm is the only signature scheme accepted: secp256k1 over keccak with
// public-key recovery, the principal being derived from the recovered key.
const Algorithm = "FLORALOG"

// Create creates a signed JWT for the principal owning privatekey.
func Create(claims Claims, privatekey string) (string, error) {
	header := Header{
		Type:      "JWT",
		Algorithm: Algorithm,
	}
	headerStr, err := json.Marshal(header)
	if err != nil {
		return "", err
	}

	payloadStr, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	headerB64 := base64.RawURLEncoding.EncodeToString(headerStr)
	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadStr)
	target := headerB64 + "." + payloadB64

	signatureBytes, err := floralog.SignBytes([]byte(target), privatekey)
	if err != nil {
		return "", err
	}
	signatureB64 := base64.RawURLEncoding.EncodeToString(signatureBytes)

	return target + "." + signatureB64, nil
}

// Validate checks that the jwt signature is valid and the token not expired.
func Validate(jwt string) (*Header, *Claims, error) {

	split := strings.Split(jwt, ".")
	if len(split) != 3 {
		return nil, nil, fmt.Errorf("invalid jwt format")
	}

	var header Header
	headerBytes, err := base64.RawURLEncoding.DecodeString(split[0])
	if err != nil {
		return nil, nil, err
	}
	err = json.Unmarshal(headerBytes, &header)
	if err != nil {
		return nil, nil, err
	}

	if header.Type != "JWT" || header.Algorithm != Algorithm {
		return nil, nil, fmt.Errorf("unsupported jwt type")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(split[1])
	if err != nil {
		return nil, nil, err
	}

	var claims Claims
	err = json.Unmarshal(payloadBytes, &claims)
	if err != nil {
		return nil, nil, err
	}

	if claims.ExpirationTime != "" {
		exp, err := strconv.ParseInt(claims.ExpirationTime, 10, 64)
		if err != nil {
			return nil, nil, err
		}
		now := time.Now().Unix()
		if exp < now {
			return nil, nil, fmt.Errorf("jwt is already expired")
		}
	}

	signatureBytes, err := base64.RawURLEncoding.DecodeString(split[2])
	if err != nil {
		return nil, nil, err
	}

	keyID := header.KeyID
	if keyID == "" {
		keyID = claims.Issuer
	}

	err = floralog.VerifySignature([]byte(split[0]+"."+split[1]), signatureBytes, keyID)
	if err != nil {
		return nil, nil, err
	}

	return &header, &claims, nil
}
