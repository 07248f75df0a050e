package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"

	"github.com/mr-tron/base58"
)

// LoginMessage is the text a wallet signs to log in, followed by a nonce.
const LoginMessage = "Sign this message to authenticate with QA Escrow"

// LoginMessageFor returns the exact text to sign for nonce.
func LoginMessageFor(nonce string) string {
	return LoginMessage + "\nNonce: " + nonce
}

var (
	ErrInvalidPublicKey  = errors.New("invalid public key format")
	ErrInvalidSignature  = errors.New("invalid signature format")
	ErrSignatureMismatch = errors.New("invalid signature")
)

// VerifyWalletSignature checks an ed25519 signature over message made by the
// wallet's key. Wallets return signatures in base58; hex is accepted too.
func VerifyWalletSignature(walletAddress, message, signature string) error {
	pubKey, err := base58.Decode(walletAddress)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return ErrInvalidPublicKey
	}

	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		sig, err = hex.DecodeString(signature)
		if err != nil || len(sig) != ed25519.SignatureSize {
			return ErrInvalidSignature
		}
	}

	if !ed25519.Verify(ed25519.PublicKey(pubKey), []byte(message), sig) {
		return ErrSignatureMismatch
	}
	return nil
}
