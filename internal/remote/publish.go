package remote

import (
	"bytes"
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/keithlinneman/tmodkit/internal/archive"
	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/version"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

// Publish uploads a built container and points the release parameter at
// it. It returns the container's sha256.
func (c *Channel) Publish(ctx context.Context, modPath string) (string, error) {
	hash, err := archive.Digest(modPath)
	if err != nil {
		return "", err
	}
	f, err := os.Open(modPath)
	if err != nil {
		return "", xerrors.WithStack(err)
	}
	defer f.Close()

	key := c.key(hash)
	c.logger.Info(ctx, "uploading mod", "bucket", c.opts.S3Bucket, "key", key, "hash", hash)
	if _, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.opts.S3Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/octet-stream"),
		Metadata:    map[string]string{log.ModKey: archive.Name(modPath), "built-by": version.Get().Stamp()},
	}); err != nil {
		return "", xerrors.Wrapf(err, "put S3 object s3://%s/%s", c.opts.S3Bucket, key)
	}
	if err := c.sign(ctx, key, hash); err != nil {
		return "", err
	}

	if _, err := c.ssm.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(c.opts.SSMParam),
		Value:     aws.String(hash),
		Type:      ssmtypes.ParameterTypeString,
		Overwrite: aws.Bool(true),
	}); err != nil {
		return "", xerrors.Wrapf(err, "put SSM parameter %s", c.opts.SSMParam)
	}
	c.logger.Info(ctx, "published mod", "param", c.opts.SSMParam, "hash", hash)
	return hash, nil
}

// sign stores the signature before the release pointer moves, so a
// verifying fetch never sees a release without one.
func (c *Channel) sign(ctx context.Context, key, hash string) error {
	if c.opts.Signer == nil {
		return nil
	}
	sig, err := c.opts.Signer.Sign(ctx, []byte(hash))
	if err != nil {
		return xerrors.Wrapf(err, "sign release %s", hash)
	}
	if _, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.opts.S3Bucket),
		Key:         aws.String(sigKey(key)),
		Body:        bytes.NewReader(sig),
		ContentType: aws.String("application/octet-stream"),
	}); err != nil {
		return xerrors.Wrapf(err, "put S3 object s3://%s/%s", c.opts.S3Bucket, sigKey(key))
	}
	c.logger.Info(ctx, "signed release", "key", sigKey(key))
	return nil
}
