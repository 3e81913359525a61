package remote

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/tmodkit/internal/archive"
	"github.com/keithlinneman/tmodkit/internal/cryptoutil"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

// ErrBadSignature marks a release whose signature does not verify.
var ErrBadSignature = errors.New("release signature rejected")

const maxSignatureBytes = 64 << 10

// CurrentHash reads the hash of the current release from SSM.
func (c *Channel) CurrentHash(ctx context.Context) (string, error) {
	out, err := c.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(c.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", c.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", c.opts.SSMParam)
	}
	hash := strings.TrimSpace(*out.Parameter.Value)
	if hash == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", c.opts.SSMParam)
	}
	return hash, nil
}

// Fetch downloads the current release into modsDir as <name>.tmod. The
// download is verified against the release hash before it replaces any
// existing file.
func (c *Channel) Fetch(ctx context.Context, modsDir, name string) (string, error) {
	hash, err := c.CurrentHash(ctx)
	if err != nil {
		return "", err
	}
	return c.FetchHash(ctx, modsDir, name, hash)
}

func (c *Channel) FetchHash(ctx context.Context, modsDir, name, hash string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", xerrors.Newf("invalid mod name %q", name)
	}
	key := c.key(hash)
	if err := c.verify(ctx, key, hash); err != nil {
		return "", err
	}
	c.logger.Info(ctx, "downloading mod", "bucket", c.opts.S3Bucket, "key", key, "expected_hash", hash)

	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.opts.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get S3 object s3://%s/%s", c.opts.S3Bucket, key)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(modsDir, 0o755); err != nil {
		return "", xerrors.Wrapf(err, "create %s", modsDir)
	}
	tmp, err := os.CreateTemp(modsDir, ".fetch-*")
	if err != nil {
		return "", xerrors.Wrap(err, "create temp file")
	}
	tmpPath := tmp.Name()
	written, actual, err := copyWithHash(tmp, out.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", xerrors.Wrap(err, "download mod")
	}
	c.logger.Info(ctx, "downloaded mod", "bytes", written, "actual_hash", actual)

	if !cryptoutil.HashEqual(actual, hash) {
		os.Remove(tmpPath)
		return "", xerrors.Newf("checksum mismatch: expected %s, got %s", hash, actual)
	}
	dst := filepath.Join(modsDir, name+archive.Ext)
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return "", xerrors.Wrapf(err, "install %s", dst)
	}
	return dst, nil
}

// verify checks the release signature. Without a verifier every release
// is accepted on its hash alone.
func (c *Channel) verify(ctx context.Context, key, hash string) error {
	if c.opts.Verifier == nil {
		return nil
	}
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.opts.S3Bucket),
		Key:    aws.String(sigKey(key)),
	})
	if err != nil {
		return xerrors.Wrapf(err, "get release signature s3://%s/%s", c.opts.S3Bucket, sigKey(key))
	}
	defer out.Body.Close()
	sig, err := io.ReadAll(io.LimitReader(out.Body, maxSignatureBytes))
	if err != nil {
		return xerrors.Wrap(err, "read release signature")
	}
	if err := c.opts.Verifier.VerifySignature(ctx, []byte(hash), sig); err != nil {
		return xerrors.Mark(xerrors.Wrapf(err, "release %s", hash), ErrBadSignature)
	}
	c.logger.Info(ctx, "release signature verified", "hash", hash)
	return nil
}
