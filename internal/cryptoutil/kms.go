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

	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

// KMSAPI is the subset of the KMS client the signer uses.
type KMSAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// KMSSigner signs messages with an asymmetric KMS key. The private key never
// leaves KMS; only the digest is sent. The public key is fetched once and
// cached for local verification.
type KMSSigner struct {
	client KMSAPI
	keyID  string

	mu     sync.RWMutex
	pubKey crypto.PublicKey
}

func NewKMSSigner(client KMSAPI, keyID string) *KMSSigner {
	return &KMSSigner{client: client, keyID: keyID}
}

func (s *KMSSigner) KeyID() string { return s.keyID }

// PublicKey fetches and caches the KMS public key.
// First call hits KMS API, subsequent calls return cached key.
func (s *KMSSigner) PublicKey(ctx context.Context) (crypto.PublicKey, error) {
	s.mu.RLock()
	if s.pubKey != nil {
		defer s.mu.RUnlock()
		return s.pubKey, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pubKey != nil {
		return s.pubKey, nil
	}

	if s.client == nil {
		return nil, xerrors.New("kms client is not configured")
	}

	out, err := s.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(s.keyID),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "kms get public key")
	}

	if out.KeyUsage != kmstypes.KeyUsageTypeSignVerify {
		return nil, xerrors.Newf("kms key %s has KeyUsage=%s, expected SIGN_VERIFY", s.keyID, out.KeyUsage)
	}

	pub, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse kms public key DER")
	}

	s.pubKey = pub
	return s.pubKey, nil
}

// Sign returns a detached signature over message. The signing algorithm is
// picked from the key type:
//   - ECDSA P-256: ECDSA_SHA_256
//   - ECDSA P-384: ECDSA_SHA_384
//   - RSA: RSASSA_PSS_SHA_256
func (s *KMSSigner) Sign(ctx context.Context, message []byte) ([]byte, error) {
	pub, err := s.PublicKey(ctx)
	if err != nil {
		return nil, err
	}
	alg, _, digest, err := signingSpec(pub, message)
	if err != nil {
		return nil, err
	}

	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyID),
		Message:          digest,
		MessageType:      kmstypes.MessageTypeDigest,
		SigningAlgorithm: alg,
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "kms sign")
	}
	if len(out.Signature) == 0 {
		return nil, xerrors.New("kms sign returned an empty signature")
	}
	return out.Signature, nil
}

// Verify checks signature over message against the cached public key.
func (s *KMSSigner) Verify(ctx context.Context, message, signature []byte) error {
	pub, err := s.PublicKey(ctx)
	if err != nil {
		return err
	}
	_, hash, digest, err := signingSpec(pub, message)
	if err != nil {
		return err
	}

	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, digest, signature) {
			return xerrors.Newf("ECDSA signature verification failed. hash: %s, curve: %s", hash, key.Curve.Params().Name)
		}
		return nil
	case *rsa.PublicKey:
		if err := rsa.VerifyPSS(key, hash, digest, signature, nil); err != nil {
			return xerrors.Wrap(err, "RSA-PSS signature verification failed")
		}
		return nil
	default:
		return xerrors.Newf("unsupported public key type: %T", pub)
	}
}

func signingSpec(pub crypto.PublicKey, message []byte) (kmstypes.SigningAlgorithmSpec, crypto.Hash, []byte, error) {
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		switch key.Curve {
		case elliptic.P256():
			d := sha256.Sum256(message)
			return kmstypes.SigningAlgorithmSpecEcdsaSha256, crypto.SHA256, d[:], nil
		case elliptic.P384():
			d := sha512.Sum384(message)
			return kmstypes.SigningAlgorithmSpecEcdsaSha384, crypto.SHA384, d[:], nil
		default:
			return "", 0, nil, xerrors.Newf("unsupported ECDSA curve: %v", key.Curve.Params().Name)
		}
	case *rsa.PublicKey:
		d := sha256.Sum256(message)
		return kmstypes.SigningAlgorithmSpecRsassaPssSha256, crypto.SHA256, d[:], nil
	default:
		return "", 0, nil, xerrors.Newf("unsupported public key type: %T", pub)
	}
}
