// Package wallet derives Cosmos SDK account addresses from BIP-39 mnemonics.
package wallet

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cosmos/go-bip39"
	"github.com/ethereum/go-ethereum/accounts"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // cosmos addresses are defined over ripemd160
)

// DerivationPath is the Cosmos Hub HD path (coin type 118), first account.
const DerivationPath = "m/44'/118'/0'/0/0"

var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrEmptyPrefix     = errors.New("address prefix is empty")
)

// Derive returns the bech32 address for the first account of mnemonic. The
// result only depends on the two inputs.
func Derive(mnemonic, addressPrefix string) (string, error) {
	pub, err := publicKey(mnemonic)
	if err != nil {
		return "", err
	}
	return Address(pub, addressPrefix)
}

// Address encodes a compressed secp256k1 public key as a bech32 account
// address: bech32(prefix, ripemd160(sha256(pubkey))).
func Address(compressedPubKey []byte, addressPrefix string) (string, error) {
	prefix := strings.TrimSpace(addressPrefix)
	if prefix == "" {
		return "", ErrEmptyPrefix
	}
	sha := sha256.Sum256(compressedPubKey)
	hasher := ripemd160.New()
	hasher.Write(sha[:])
	conv, err := bech32.ConvertBits(hasher.Sum(nil), 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert address bits: %w", err)
	}
	addr, err := bech32.Encode(strings.ToLower(prefix), conv)
	if err != nil {
		return "", fmt.Errorf("bech32 encode with prefix %q: %w", prefix, err)
	}
	return addr, nil
}

func publicKey(mnemonic string) ([]byte, error) {
	phrase := normalize(mnemonic)
	if !bip39.IsMnemonicValid(phrase) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(phrase, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}

	dpath, err := accounts.ParseDerivationPath(DerivationPath)
	if err != nil {
		return nil, err
	}

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	for _, n := range dpath {
		key, err = key.Derive(n)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", DerivationPath, err)
		}
	}

	pub, err := key.ECPubKey()
	if err != nil {
		return nil, err
	}
	return pub.SerializeCompressed(), nil
}

// NewMnemonic generates a fresh 24-word mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// IsValid reports whether mnemonic is a well-formed BIP-39 phrase.
func IsValid(mnemonic string) bool {
	return bip39.IsMnemonicValid(normalize(mnemonic))
}

// normalize collapses the whitespace users tend to paste around phrases.
func normalize(mnemonic string) string {
	return strings.Join(strings.Fields(mnemonic), " ")
}
