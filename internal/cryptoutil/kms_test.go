package cryptoutil

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// fakeKMS signs with a local private key the way KMS does in RAW mode.
type fakeKMS struct {
	priv      crypto.Signer
	usage     kmstypes.KeyUsageType
	pubCalls  int
	lastAlg   kmstypes.SigningAlgorithmSpec
	signErr   error
	pubKeyErr error
}

func (f *fakeKMS) GetPublicKey(context.Context, *kms.GetPublicKeyInput, ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	f.pubCalls++
	if f.pubKeyErr != nil {
		return nil, f.pubKeyErr
	}
	der, err := x509.MarshalPKIXPublicKey(f.priv.Public())
	if err != nil {
		return nil, err
	}
	usage := f.usage
	if usage == "" {
		usage = kmstypes.KeyUsageTypeSignVerify
	}
	return &kms.GetPublicKeyOutput{PublicKey: der, KeyUsage: usage}, nil
}

func (f *fakeKMS) Sign(_ context.Context, in *kms.SignInput, _ ...func(*kms.Options)) (*kms.SignOutput, error) {
	if f.signErr != nil {
		return nil, f.signErr
	}
	f.lastAlg = in.SigningAlgorithm
	var sig []byte
	var err error
	switch in.SigningAlgorithm {
	case kmstypes.SigningAlgorithmSpecEcdsaSha256:
		d := sha256.Sum256(in.Message)
		sig, err = ecdsa.SignASN1(rand.Reader, f.priv.(*ecdsa.PrivateKey), d[:])
	case kmstypes.SigningAlgorithmSpecEcdsaSha384:
		d := sha512.Sum384(in.Message)
		sig, err = ecdsa.SignASN1(rand.Reader, f.priv.(*ecdsa.PrivateKey), d[:])
	case kmstypes.SigningAlgorithmSpecRsassaPssSha256:
		d := sha256.Sum256(in.Message)
		sig, err = rsa.SignPSS(rand.Reader, f.priv.(*rsa.PrivateKey), crypto.SHA256, d[:], nil)
	default:
		return nil, errors.New("unexpected algorithm " + string(in.SigningAlgorithm))
	}
	return &kms.SignOutput{Signature: sig}, err
}

func ecKey(t *testing.T, c elliptic.Curve) *ecdsa.PrivateKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(c, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func TestKMSKey_SignThenVerify(t *testing.T) {
	tests := []struct {
		name string
		priv crypto.Signer
		alg  kmstypes.SigningAlgorithmSpec
	}{
		{"ecdsa p256", ecKey(t, elliptic.P256()), kmstypes.SigningAlgorithmSpecEcdsaSha256},
		{"ecdsa p384", ecKey(t, elliptic.P384()), kmstypes.SigningAlgorithmSpecEcdsaSha384},
		{"rsa pss", rsaKey(t), kmstypes.SigningAlgorithmSpecRsassaPssSha256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeKMS{priv: tt.priv}
			k := NewKMSKey(f, "alias/tmodkit-release")
			msg := []byte("9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08")

			sig, err := k.Sign(t.Context(), msg)
			if err != nil {
				t.Fatalf("Sign: %v", err)
			}
			if f.lastAlg != tt.alg {
				t.Fatalf("algorithm = %s, want %s", f.lastAlg, tt.alg)
			}
			if err := k.VerifySignature(t.Context(), msg, sig); err != nil {
				t.Fatalf("VerifySignature: %v", err)
			}
			if err := k.VerifySignature(t.Context(), []byte("other release"), sig); err == nil {
				t.Fatal("signature over another message should not verify")
			}
			if f.pubCalls != 1 {
				t.Fatalf("GetPublicKey calls = %d, want 1 (cached)", f.pubCalls)
			}
		})
	}
}

func TestKMSKey_WrongKeyRejects(t *testing.T) {
	signer := NewKMSKey(&fakeKMS{priv: ecKey(t, elliptic.P256())}, "a")
	verifier := NewKMSKey(&fakeKMS{priv: ecKey(t, elliptic.P256())}, "b")

	sig, err := signer.Sign(t.Context(), []byte("release"))
	if err != nil {
		t.Fatal(err)
	}
	if err := verifier.VerifySignature(t.Context(), []byte("release"), sig); err == nil {
		t.Fatal("signature from another key should not verify")
	}
}

func TestKMSKey_CorruptSignatures(t *testing.T) {
	k := NewKMSKey(&fakeKMS{priv: ecKey(t, elliptic.P384())}, "a")
	sig, err := k.Sign(t.Context(), []byte("release"))
	if err != nil {
		t.Fatal(err)
	}
	bad := append([]byte(nil), sig...)
	bad[len(bad)/2] ^= 0xff
	for name, s := range map[string][]byte{"flipped": bad, "empty": {}, "nil": nil} {
		if err := k.VerifySignature(t.Context(), []byte("release"), s); err == nil {
			t.Errorf("%s signature should not verify", name)
		}
	}
}

func TestKMSKey_PKCS1v15Fallback(t *testing.T) {
	priv := rsaKey(t)
	k := NewKMSKey(&fakeKMS{priv: priv}, "a")
	msg := []byte("release")
	d := sha256.Sum256(msg)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, d[:])
	if err != nil {
		t.Fatal(err)
	}
	if err := k.VerifySignature(t.Context(), msg, sig); err == nil {
		t.Fatal("PKCS1v15 should be rejected by default")
	}
	k.AllowPKCS1v15 = true
	if err := k.VerifySignature(t.Context(), msg, sig); err != nil {
		t.Fatalf("PKCS1v15 with fallback: %v", err)
	}
}

func TestKMSKey_PublicKeyErrors(t *testing.T) {
	tests := []struct {
		name string
		k    *KMSKey
	}{
		{"nil client", NewKMSKey(nil, "a")},
		{"encrypt key", NewKMSKey(&fakeKMS{priv: ecKey(t, elliptic.P256()), usage: kmstypes.KeyUsageTypeEncryptDecrypt}, "a")},
		{"api error", NewKMSKey(&fakeKMS{priv: ecKey(t, elliptic.P256()), pubKeyErr: errors.New("AccessDenied")}, "a")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.k.PublicKey(t.Context()); err == nil {
				t.Fatal("expected error")
			}
			if _, err := tt.k.Sign(t.Context(), []byte("x")); err == nil {
				t.Fatal("Sign should fail without a usable key")
			}
		})
	}
}

func TestKMSKey_SignError(t *testing.T) {
	k := NewKMSKey(&fakeKMS{priv: ecKey(t, elliptic.P256()), signErr: errors.New("throttled")}, "a")
	if _, err := k.Sign(t.Context(), []byte("x")); err == nil {
		t.Fatal("expected sign error")
	}
}

func TestSigningAlgorithm_UnsupportedCurve(t *testing.T) {
	k := ecKey(t, elliptic.P224())
	if _, err := signingAlgorithm(&k.PublicKey); err == nil {
		t.Fatal("P-224 should be unsupported")
	}
}
