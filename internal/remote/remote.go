// Package remote is the release channel for built mods: containers are
// stored in S3 under their sha256 and an SSM parameter names the current
// release.
package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/tmodkit/internal/archive"
	"github.com/keithlinneman/tmodkit/internal/cryptoutil"
	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

// Signer signs the release hash at publish time.
type Signer interface {
	Sign(ctx context.Context, message []byte) ([]byte, error)
}

// Verifier checks a release signature before a download is installed.
type Verifier interface {
	VerifySignature(ctx context.Context, message, signature []byte) error
}

// S3API is the part of the S3 client the channel uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SSMAPI is the part of the SSM client the channel uses.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, in *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

type Options struct {
	Logger log.Logger

	// SSMParam holds the sha256 of the current release
	SSMParam string

	// containers live at s3://{S3Bucket}/{S3Prefix}/{sha}.tmod
	S3Bucket string
	S3Prefix string

	// KMSKeyID turns on release signatures: Publish stores
	// {key}.sig next to the container and fetches verify it.
	KMSKeyID string

	// override the KMS-backed key, mostly for tests
	Signer   Signer
	Verifier Verifier

	// AWS config (uses default if nil)
	AWSConfig *aws.Config
}

type Channel struct {
	opts   Options
	s3     S3API
	ssm    SSMAPI
	logger log.Logger
}

// New builds a channel on the default AWS credential chain.
func New(ctx context.Context, opts Options) (*Channel, error) {
	if err := validate(opts); err != nil {
		return nil, err
	}
	var awsCfg aws.Config
	if opts.AWSConfig != nil {
		awsCfg = *opts.AWSConfig
	} else {
		var err error
		awsCfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
	}
	if opts.KMSKeyID != "" {
		key := cryptoutil.NewKMSKey(kms.NewFromConfig(awsCfg), opts.KMSKeyID)
		if opts.Signer == nil {
			opts.Signer = key
		}
		if opts.Verifier == nil {
			opts.Verifier = key
		}
	}
	return NewWithClients(opts, s3.NewFromConfig(awsCfg), ssm.NewFromConfig(awsCfg))
}

// NewWithClients builds a channel on caller-supplied clients.
func NewWithClients(opts Options, s3c S3API, ssmc SSMAPI) (*Channel, error) {
	if err := validate(opts); err != nil {
		return nil, err
	}
	if s3c == nil || ssmc == nil {
		return nil, xerrors.New("S3 and SSM clients are required")
	}
	return &Channel{opts: opts, s3: s3c, ssm: ssmc, logger: log.OrNop(opts.Logger)}, nil
}

func validate(opts Options) error {
	if opts.SSMParam == "" {
		return xerrors.New("SSMParam is required")
	}
	if opts.S3Bucket == "" {
		return xerrors.New("S3Bucket is required")
	}
	return nil
}

// key is the object key of a container with the given hash
func (c *Channel) key(hash string) string {
	if c.opts.S3Prefix != "" {
		return path.Join(c.opts.S3Prefix, hash+archive.Ext)
	}
	return hash + archive.Ext
}

func sigKey(objectKey string) string { return objectKey + ".sig" }

// copyWithHash copies from src to dst while computing SHA256
func copyWithHash(dst io.Writer, src io.Reader) (written int64, hash string, err error) {
	h := sha256.New()
	written, err = io.Copy(io.MultiWriter(dst, h), src)
	if err != nil {
		return written, "", err
	}
	return written, hex.EncodeToString(h.Sum(nil)), nil
}
