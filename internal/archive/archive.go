// Package archive copies recorded capture files off the backend host over
// SFTP and verifies them with SHA-256.
package archive

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	xssh "golang.org/x/crypto/ssh"
)

// ErrChecksumMismatch is returned when a fetched file does not match the
// checksum published next to it on the backend host.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ChecksumSuffix names the sidecar holding a file's sha256sum output.
const ChecksumSuffix = ".sha256"

// Result describes one fetched file.
type Result struct {
	Remote   string
	Local    string
	Size     int64
	SHA256   string
	Verified bool
}

// Fetcher copies files from one backend host.
type Fetcher struct {
	Addr     string
	User     string
	Signer   xssh.Signer
	HostKeys xssh.HostKeyCallback
	Timeout  time.Duration
}

// Dial opens an SSH connection to the backend host. The caller closes it.
func (f *Fetcher) Dial(ctx context.Context) (*xssh.Client, error) {
	if f.Signer == nil {
		return nil, errors.New("ssh: signer required")
	}
	if f.HostKeys == nil {
		return nil, errors.New("ssh: host key callback required")
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg := &xssh.ClientConfig{
		User:            f.User,
		Auth:            []xssh.AuthMethod{xssh.PublicKeys(f.Signer)},
		HostKeyCallback: f.HostKeys,
		Timeout:         timeout,
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", f.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", f.Addr, err)
	}
	c, chans, reqs, err := xssh.NewClientConn(conn, f.Addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", f.Addr, err)
	}
	return xssh.NewClient(c, chans, reqs), nil
}

// Fetch copies every remote file into destDir, stopping at the first failure.
// Each file is checked against sha256sum run on the host, or against its
// published sidecar when the host has no shell.
func (f *Fetcher) Fetch(ctx context.Context, remotePaths []string, destDir string) ([]Result, error) {
	cli, err := f.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer cli.Close()
	sf, err := sftp.NewClient(cli)
	if err != nil {
		return nil, fmt.Errorf("sftp client: %w", err)
	}
	defer sf.Close()
	sidecar := SidecarChecksum(sf)
	sums := func(p string) (string, error) {
		if sum, err := remoteSHA256(cli, p); err == nil {
			return sum, nil
		}
		return sidecar(p)
	}
	return FetchAll(ctx, sf, remotePaths, destDir, sums)
}

// ChecksumSource returns the expected SHA-256 of a remote file, or "" when
// none is known.
type ChecksumSource func(remotePath string) (string, error)

// FetchAll copies remotePaths into destDir over an existing SFTP session.
// sums may be nil.
func FetchAll(ctx context.Context, sf *sftp.Client, remotePaths []string, destDir string, sums ChecksumSource) ([]Result, error) {
	results := make([]Result, 0, len(remotePaths))
	for _, p := range remotePaths {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		want := ""
		if sums != nil {
			var err error
			if want, err = sums(p); err != nil {
				return results, fmt.Errorf("checksum %s: %w", p, err)
			}
		}
		res, err := FetchFile(sf, p, destDir, want)
		if err != nil {
			return results, fmt.Errorf("fetch %s: %w", p, err)
		}
		log.Info().Str("remote", res.Remote).Str("local", res.Local).Int64("bytes", res.Size).
			Bool("verified", res.Verified).Msg("Fetched capture file")
		results = append(results, res)
	}
	return results, nil
}

// FetchFile downloads remotePath into destDir, hashing it on the way. A
// non-empty want must match the download. A local sha256 sidecar is written
// next to the file.
func FetchFile(sf *sftp.Client, remotePath, destDir, want string) (Result, error) {
	res := Result{Remote: remotePath, Local: filepath.Join(destDir, path.Base(remotePath))}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return res, fmt.Errorf("mkdir local: %w", err)
	}

	src, err := sf.Open(remotePath)
	if err != nil {
		return res, fmt.Errorf("open remote: %w", err)
	}
	defer src.Close()

	part := res.Local + ".part"
	dst, err := os.Create(part)
	if err != nil {
		return res, fmt.Errorf("create local: %w", err)
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(dst, h), src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part)
		return res, fmt.Errorf("copy: %w", err)
	}
	res.Size = n
	res.SHA256 = hex.EncodeToString(h.Sum(nil))

	if want != "" {
		if !strings.EqualFold(want, res.SHA256) {
			os.Remove(part)
			return res, fmt.Errorf("%w: remote %s, local %s", ErrChecksumMismatch, want, res.SHA256)
		}
		res.Verified = true
	}
	if err := os.Rename(part, res.Local); err != nil {
		return res, fmt.Errorf("rename: %w", err)
	}
	sidecar := fmt.Sprintf("%s  %s\n", res.SHA256, filepath.Base(res.Local))
	if err := os.WriteFile(res.Local+ChecksumSuffix, []byte(sidecar), 0644); err != nil {
		return res, fmt.Errorf("write checksum: %w", err)
	}
	return res, nil
}

// SidecarChecksum reads expected checksums from the sha256sum-style file
// published next to each capture file. A missing sidecar yields "".
func SidecarChecksum(sf *sftp.Client) ChecksumSource {
	return func(remotePath string) (string, error) {
		return readSidecar(sf, remotePath+ChecksumSuffix)
	}
}

// remoteSHA256 runs sha256sum on the host.
func remoteSHA256(cli *xssh.Client, remotePath string) (string, error) {
	session, err := cli.NewSession()
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer session.Close()
	out, err := session.Output("sha256sum " + shellQuote(remotePath))
	if err != nil {
		return "", fmt.Errorf("sha256sum: %w", err)
	}
	return parseChecksum(string(out))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func parseChecksum(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", errors.New("empty checksum")
	}
	if _, err := hex.DecodeString(fields[0]); err != nil || len(fields[0]) != sha256.Size*2 {
		return "", fmt.Errorf("malformed checksum %q", fields[0])
	}
	return fields[0], nil
}

func readSidecar(sf *sftp.Client, p string) (string, error) {
	f, err := sf.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("open checksum: %w", err)
	}
	defer f.Close()
	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read checksum: %w", err)
	}
	sum, err := parseChecksum(line)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p, err)
	}
	return sum, nil
}
