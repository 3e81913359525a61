package cryptoutil

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

// KMSAPI is the subset of the KMS client a release key needs.
type KMSAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// KMSKey signs releases with an asymmetric KMS key and verifies them
// locally against its public key.
type KMSKey struct {
	client KMSAPI
	keyID  string

	// AllowPKCS1v15 accepts RSA PKCS1v15 signatures when PSS fails.
	AllowPKCS1v15 bool

	mu     sync.RWMutex
	pubKey crypto.PublicKey
}

func NewKMSKey(client KMSAPI, keyID string) *KMSKey {
	return &KMSKey{client: client, keyID: keyID}
}

func (k *KMSKey) KeyID() string { return k.keyID }

// PublicKey fetches and caches the KMS public key. Only the first call
// reaches KMS.
func (k *KMSKey) PublicKey(ctx context.Context) (crypto.PublicKey, error) {
	k.mu.RLock()
	if k.pubKey != nil {
		defer k.mu.RUnlock()
		return k.pubKey, nil
	}
	k.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.pubKey != nil {
		return k.pubKey, nil
	}

	if k.client == nil {
		return nil, xerrors.New("kms client is not configured")
	}

	out, err := k.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(k.keyID),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "kms get public key")
	}

	// refuse to cache an encryption key
	if out.KeyUsage != kmstypes.KeyUsageTypeSignVerify {
		return nil, xerrors.Newf("kms key %s has KeyUsage=%s, expected SIGN_VERIFY", k.keyID, out.KeyUsage)
	}

	pub, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse kms public key DER")
	}

	k.pubKey = pub
	return k.pubKey, nil
}

// Sign asks KMS to sign message. The algorithm follows the key type so
// VerifySignature picks the matching digest.
func (k *KMSKey) Sign(ctx context.Context, message []byte) ([]byte, error) {
	pub, err := k.PublicKey(ctx)
	if err != nil {
		return nil, err
	}
	alg, err := signingAlgorithm(pub)
	if err != nil {
		return nil, err
	}
	out, err := k.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(k.keyID),
		Message:          message,
		MessageType:      kmstypes.MessageTypeRaw,
		SigningAlgorithm: alg,
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "kms sign")
	}
	if len(out.Signature) == 0 {
		return nil, xerrors.New("kms returned an empty signature")
	}
	return out.Signature, nil
}

func signingAlgorithm(pub crypto.PublicKey) (kmstypes.SigningAlgorithmSpec, error) {
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		switch key.Curve {
		case elliptic.P256():
			return kmstypes.SigningAlgorithmSpecEcdsaSha256, nil
		case elliptic.P384():
			return kmstypes.SigningAlgorithmSpecEcdsaSha384, nil
		}
		return "", xerrors.Newf("unsupported ECDSA curve: %v", key.Curve.Params().Name)
	case *rsa.PublicKey:
		return kmstypes.SigningAlgorithmSpecRsassaPssSha256, nil
	default:
		return "", xerrors.Newf("unsupported public key type: %T", pub)
	}
}

// VerifySignature checks signature over message with the cached public key.
//
// Key type determines the hash algorithm:
//   - ECDSA P-384: SHA-384
//   - ECDSA P-256: SHA-256
//   - RSA: SHA-256 (PSS only unless AllowPKCS1v15)
func (k *KMSKey) VerifySignature(ctx context.Context, message, signature []byte) error {
	pub, err := k.PublicKey(ctx)
	if err != nil {
		return err
	}

	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		return verifyECDSA(key, message, signature)
	case *rsa.PublicKey:
		return verifyRSA(key, message, signature, k.AllowPKCS1v15)
	default:
		return xerrors.Newf("unsupported public key type: %T", pub)
	}
}

func verifyECDSA(key *ecdsa.PublicKey, message, signature []byte) error {
	hashFunc, digest, err := ecdsaDigest(key, message)
	if err != nil {
		return err
	}
	if !ecdsa.VerifyASN1(key, digest, signature) {
		return xerrors.Newf("ECDSA signature verification failed. hash: %s, curve: %s", hashFunc.String(), key.Curve.Params().Name)
	}
	return nil
}

func ecdsaDigest(key *ecdsa.PublicKey, message []byte) (crypto.Hash, []byte, error) {
	switch key.Curve {
	case elliptic.P256():
		d := sha256.Sum256(message)
		return crypto.SHA256, d[:], nil
	case elliptic.P384():
		d := sha512.Sum384(message)
		return crypto.SHA384, d[:], nil
	default:
		return 0, nil, xerrors.Newf("unsupported ECDSA curve: %v", key.Curve.Params().Name)
	}
}

func verifyRSA(key *rsa.PublicKey, message, signature []byte, allowFallback bool) error {
	digest := sha256.Sum256(message)

	pssErr := rsa.VerifyPSS(key, crypto.SHA256, digest[:], signature, nil)
	if pssErr == nil {
		return nil
	}
	if !allowFallback {
		return xerrors.Newf("RSA-PSS verification failed (PKCS1v15 fallback disabled): %v", pssErr)
	}
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature)
}
