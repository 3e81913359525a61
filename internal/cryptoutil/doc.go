// Package cryptoutil holds the integrity primitives of the release channel:
// constant-time hash comparison and KMS-backed release signatures.
//
// Signatures are made by KMS over the raw message and verified locally
// against the cached public key. Supported keys are ECDSA P-256 and P-384
// and RSA with PSS, with an optional PKCS1v15 fallback on verification.
package cryptoutil
