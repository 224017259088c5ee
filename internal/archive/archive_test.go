package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/sftp"
)

// newPipeSFTP serves the local filesystem over an in-memory SFTP session.
func newPipeSFTP(t *testing.T) *sftp.Client {
	t.Helper()
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()
	server, err := sftp.NewServer(struct {
		io.Reader
		io.WriteCloser
	}{c2sR, s2cW})
	if err != nil {
		t.Fatalf("sftp server: %v", err)
	}
	go server.Serve()
	client, err := sftp.NewClientPipe(s2cR, c2sW)
	if err != nil {
		t.Fatalf("sftp client: %v", err)
	}
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return client
}

func sum(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

func writeRemote(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestFetchFileVerifiesChecksum(t *testing.T) {
	remote, local := t.TempDir(), t.TempDir()
	data := "visibilities"
	p := writeRemote(t, remote, "1700000000.unaugmented.h5", data)
	writeRemote(t, remote, "1700000000.unaugmented.h5.sha256", sum(data)+"  1700000000.unaugmented.h5\n")

	sf := newPipeSFTP(t)
	want, err := SidecarChecksum(sf)(p)
	if err != nil {
		t.Fatalf("sidecar: %v", err)
	}
	res, err := FetchFile(sf, p, local, want)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !res.Verified || res.SHA256 != sum(data) || res.Size != int64(len(data)) {
		t.Fatalf("unexpected result %+v", res)
	}
	got, err := os.ReadFile(res.Local)
	if err != nil || string(got) != data {
		t.Fatalf("local copy wrong: %q %v", got, err)
	}
	side, _ := os.ReadFile(res.Local + ChecksumSuffix)
	if !strings.HasPrefix(string(side), sum(data)) {
		t.Fatalf("sidecar not written: %q", side)
	}
}

func TestFetchFileWithoutRemoteChecksum(t *testing.T) {
	remote, local := t.TempDir(), t.TempDir()
	p := writeRemote(t, remote, "a.h5", "data")

	sf := newPipeSFTP(t)
	want, err := SidecarChecksum(sf)(p)
	if err != nil || want != "" {
		t.Fatalf("expected no sidecar, got %q %v", want, err)
	}
	res, err := FetchFile(sf, p, local, want)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Verified {
		t.Fatalf("nothing to verify against")
	}
	if res.SHA256 != sum("data") {
		t.Fatalf("checksum %s", res.SHA256)
	}
}

func TestFetchFileMismatchLeavesNothing(t *testing.T) {
	remote, local := t.TempDir(), t.TempDir()
	p := writeRemote(t, remote, "b.h5", "corrupted")
	writeRemote(t, remote, "b.h5.sha256", sum("original")+"  b.h5\n")

	sf := newPipeSFTP(t)
	_, err := FetchAll(context.Background(), sf, []string{p}, local, SidecarChecksum(sf))
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
	entries, _ := os.ReadDir(local)
	if len(entries) != 0 {
		t.Fatalf("expected no local files, found %d", len(entries))
	}
}

func TestFetchAllStopsOnMissingFile(t *testing.T) {
	remote, local := t.TempDir(), t.TempDir()
	ok := writeRemote(t, remote, "c.h5", "one")

	results, err := FetchAll(context.Background(), newPipeSFTP(t), []string{ok, filepath.Join(remote, "missing.h5")}, local, nil)
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
	if len(results) != 1 || results[0].Remote != ok {
		t.Fatalf("expected first file fetched, got %+v", results)
	}
}

func TestParseChecksum(t *testing.T) {
	good := sum("x")
	if got, err := parseChecksum(good + "  /data/x.h5\n"); err != nil || got != good {
		t.Fatalf("got %q %v", got, err)
	}
	for _, bad := range []string{"", "zz  file", "abcd  file"} {
		if _, err := parseChecksum(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestShellQuote(t *testing.T) {
	if got := shellQuote("/data/it's.h5"); got != `'/data/it'\''s.h5'` {
		t.Fatalf("got %s", got)
	}
}

func TestFetcherRequiresCredentials(t *testing.T) {
	f := &Fetcher{Addr: "127.0.0.1:1"}
	if _, err := f.Dial(context.Background()); err == nil {
		t.Fatalf("expected error without signer")
	}
}
