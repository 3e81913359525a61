// Package archive is the mod container codec: a zip of the mod directory
// whose bytes are reversed end to end. The reversal is an obfuscation, not
// a protection; applying it twice restores the zip.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/keithlinneman/tmodkit/internal/pathutil"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

const (
	// Ext is the distributable, reversed container.
	Ext = ".tmod"
	// ReadableExt is the plain zip kept next to it for inspection.
	ReadableExt = ".readable"

	cleanSuffix = "_clean"
)

var (
	ErrEmpty    = errors.New("empty archive")
	ErrTooLarge = errors.New("archive content exceeds limit")
)

// Limits bound extraction so a crafted package cannot fill the disk.
type Limits struct {
	MaxFile  int64
	MaxTotal int64
	MaxFiles int
}

// DefaultLimits fit a mod with a handful of baked lightmaps.
var DefaultLimits = Limits{
	MaxFile:  64 << 20,
	MaxTotal: 512 << 20,
	MaxFiles: 10000,
}

// Reverse reverses b in place.
func Reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// ReverseFile rewrites path with its bytes reversed.
func ReverseFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Wrapf(err, "read %s", path)
	}
	if len(data) == 0 {
		return xerrors.Mark(xerrors.Newf("reverse %s", path), ErrEmpty)
	}
	Reverse(data)
	return writeAtomic(path, data)
}

// Outputs are the two files a build produces for one mod.
type Outputs struct {
	Mod      string
	Readable string
}

func OutputPaths(outDir, name string) Outputs {
	return Outputs{
		Mod:      filepath.Join(outDir, name+Ext),
		Readable: filepath.Join(outDir, name+ReadableExt),
	}
}

// Pack zips the tree under srcDir into dst. Entry names are relative and
// slash separated; directories get their own entries so empty category
// folders survive.
func Pack(srcDir, dst string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".pack-*")
	if err != nil {
		return xerrors.Wrap(err, "create temp archive")
	}
	defer os.Remove(tmp.Name())

	zw := zip.NewWriter(tmp)
	walkErr := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil || rel == "." {
			return err
		}
		name := filepath.ToSlash(rel)
		if d.IsDir() {
			_, err := zw.CreateHeader(&zip.FileHeader{Name: name + "/", Method: zip.Store})
			return err
		}
		if !d.Type().IsRegular() {
			return xerrors.Newf("pack %s: not a regular file", name)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = name
		hdr.Method = zip.Deflate
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if walkErr != nil {
		tmp.Close()
		return xerrors.Wrapf(walkErr, "pack %s", srcDir)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return xerrors.Wrap(err, "finish zip")
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return xerrors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Wrap(err, "close temp archive")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return xerrors.Wrapf(err, "rename to %s", dst)
	}
	return nil
}

// Extract unpacks the zip at src into dstDir, which must not exist or be
// empty. Entry names are validated before anything is written.
func Extract(src, dstDir string, lim Limits) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return xerrors.Wrapf(err, "open zip %s", src)
	}
	defer zr.Close()

	if len(zr.File) == 0 {
		return xerrors.Mark(xerrors.Newf("extract %s", src), ErrEmpty)
	}
	if lim.MaxFiles > 0 && len(zr.File) > lim.MaxFiles {
		return xerrors.Mark(xerrors.Newf("extract %s: %d entries, limit %d", src, len(zr.File), lim.MaxFiles), ErrTooLarge)
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return xerrors.Wrapf(err, "create %s", dstDir)
	}

	var total int64
	for _, f := range zr.File {
		target, err := pathutil.SafeJoin(dstDir, f.Name)
		if err != nil {
			return xerrors.Wrapf(err, "extract %s", src)
		}
		mode := f.Mode()
		switch {
		case mode.IsDir() || strings.HasSuffix(f.Name, "/"):
			if err := os.MkdirAll(target, 0o755); err != nil {
				return xerrors.Wrapf(err, "create %s", target)
			}
		case mode.IsRegular():
			if lim.MaxFile > 0 && int64(f.UncompressedSize64) > lim.MaxFile {
				return xerrors.Mark(xerrors.Newf("%s: %d bytes, limit %d", f.Name, f.UncompressedSize64, lim.MaxFile), ErrTooLarge)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return xerrors.Wrapf(err, "create parent of %s", target)
			}
			n, err := writeEntry(f, target, lim.MaxFile)
			if err != nil {
				return err
			}
			total += n
			if lim.MaxTotal > 0 && total > lim.MaxTotal {
				return xerrors.Mark(xerrors.Newf("extract %s: %d bytes, limit %d", src, total, lim.MaxTotal), ErrTooLarge)
			}
		default:
			return xerrors.Newf("unsupported entry type in archive: %s (%s)", f.Name, mode.Type())
		}
	}
	return nil
}

// writeEntry copies one entry with a hard cap, since the header size can lie
func writeEntry(f *zip.File, target string, max int64) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, xerrors.Wrapf(err, "open entry %s", f.Name)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, xerrors.Wrapf(err, "create %s", target)
	}
	defer out.Close()

	var r io.Reader = rc
	if max > 0 {
		r = io.LimitReader(rc, max+1)
	}
	n, err := io.Copy(out, r)
	if err != nil {
		return n, xerrors.Wrapf(err, "write %s", target)
	}
	if max > 0 && n > max {
		return n, xerrors.Mark(xerrors.Newf("%s: exceeds %d bytes", f.Name, max), ErrTooLarge)
	}
	return n, nil
}

// Decode copies a .tmod into tempDir as <name>_clean.tmod, reverses the
// copy and extracts it to <tempDir>/<name>. The copy and any previous
// extraction are replaced. It returns the extraction directory and the
// path of the clean copy so the caller can delete both.
func Decode(modPath, tempDir string, lim Limits) (dir, clean string, err error) {
	name := Name(modPath)
	clean = filepath.Join(tempDir, name+cleanSuffix+Ext)
	dir = filepath.Join(tempDir, name)

	data, err := os.ReadFile(modPath)
	if err != nil {
		return "", "", xerrors.Wrapf(err, "read %s", modPath)
	}
	if len(data) == 0 {
		return "", "", xerrors.Mark(xerrors.Newf("decode %s", modPath), ErrEmpty)
	}
	if err := os.WriteFile(clean, data, 0o644); err != nil {
		return "", "", xerrors.Wrapf(err, "copy to %s", clean)
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", clean, xerrors.Wrapf(err, "clear %s", dir)
	}
	if err := ReverseFile(clean); err != nil {
		return "", clean, err
	}
	if err := Extract(clean, dir, lim); err != nil {
		return dir, clean, err
	}
	return dir, clean, nil
}

// Name is the mod name of a container path: its base without extension.
func Name(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Digest returns the hex sha256 of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", xerrors.WithStack(err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", xerrors.Wrapf(err, "hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".rev-*")
	if err != nil {
		return xerrors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return xerrors.Wrapf(err, "write %s", tmp.Name())
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return xerrors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		return xerrors.WithStack(err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return xerrors.Wrapf(err, "rename to %s", path)
	}
	return nil
}
