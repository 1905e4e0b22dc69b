package floralog

import (
	"crypto/sha256"
	"fmt"

	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"
)

// AddrPrefix is the bech32 human-readable part of every principal address.
const AddrPrefix = "flora"

// PrivKeyToAddr derives the bech32 principal for a hex-encoded secp256k1
// private key.
func PrivKeyToAddr(privHex, prefix string) (string, error) {
	key, err := crypto.HexToECDSA(privHex)
	if err != nil {
		return "", err
	}
	return pubkeyToAddr(crypto.CompressPubkey(&key.PublicKey), prefix)
}

// addr = bech32(ripemd160(sha256(compressed pubkey)))
func pubkeyToAddr(compressed []byte, prefix string) (string, error) {
	sha := sha256.Sum256(compressed)
	h := ripemd160.New()
	h.Write(sha[:])
	return bech32.ConvertAndEncode(prefix, h.Sum(nil))
}

// SignBytes signs the keccak digest of data, producing a 65-byte recoverable
// signature.
func SignBytes(data []byte, privHex string) ([]byte, error) {
	key, err := crypto.HexToECDSA(privHex)
	if err != nil {
		return nil, err
	}
	return crypto.Sign(crypto.Keccak256(data), key)
}

// VerifySignature recovers the signer from a recoverable signature and checks
// that the derived principal matches addr.
func VerifySignature(message, signature []byte, addr string) error {
	if len(signature) != 65 {
		return fmt.Errorf("invalid signature length: %d", len(signature))
	}
	pub, err := crypto.SigToPub(crypto.Keccak256(message), signature)
	if err != nil {
		return err
	}
	derived, err := pubkeyToAddr(crypto.CompressPubkey(pub), AddrPrefix)
	if err != nil {
		return err
	}
	if derived != addr {
		return fmt.Errorf("signature does not match principal %s", addr)
	}
	return nil
}

// IsPrincipal reports whether s is a well-formed principal address.
func IsPrincipal(s string) bool {
	prefix, _, err := bech32.DecodeAndConvert(s)
	return err == nil && prefix == AddrPrefix
}
