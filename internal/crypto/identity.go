package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Identity is the resolver's on-chain identity. The hub trusts its Address
// for ResolveMarket calls.
type Identity struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewIdentity derives an Identity from a hex-encoded secp256k1 private key.
func NewIdentity(privateKeyHex string) (*Identity, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &Identity{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// LoadIdentity resolves the key via LoadKey and derives the identity.
func LoadIdentity(cfg KeyConfig) (*Identity, error) {
	keyHex, err := LoadKey(cfg)
	if err != nil {
		return nil, err
	}
	return NewIdentity(keyHex)
}

// Address returns the identity's address.
func (id *Identity) Address() common.Address {
	return id.address
}

// Sign produces a 65-byte [R || S || V] secp256k1 signature over digest.
func (id *Identity) Sign(digest []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(digest, id.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign: %w", err)
	}
	return sig, nil
}
