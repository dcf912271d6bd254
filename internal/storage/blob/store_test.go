package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/usage_console/internal/config"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
}

func readAll(t *testing.T, r io.ReadCloser) string {
	t.Helper()
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(context.Background(), config.ReportsConfig{Storage: "local", Local: config.ReportsLocalConfig{Directory: dir}})
	require.NoError(t, err)
	ctx := context.Background()

	info, err := s.Put(ctx, "reports/alice/r1.csv", bytes.NewBufferString("a,b\n1,2\n"), PutOptions{ContentType: "text/csv"})
	require.NoError(t, err)
	require.False(t, info.Encrypted)
	require.EqualValues(t, 8, info.Size)

	r, got, err := s.Get(ctx, "reports/alice/r1.csv")
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2\n", readAll(t, r))
	require.Equal(t, "text/csv", got.ContentType)

	require.NoError(t, s.Delete(ctx, "reports/alice/r1.csv"))
	_, _, err = s.Get(ctx, "reports/alice/r1.csv")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	s, err := newLocalStore(config.ReportsLocalConfig{Directory: t.TempDir()})
	require.NoError(t, err)

	for _, key := range []string{"../secret", "/etc/passwd", "."} {
		_, err := s.Put(context.Background(), key, bytes.NewBufferString("x"), PutOptions{})
		require.Error(t, err, key)
	}
}

func TestEncryptedStore(t *testing.T) {
	dir := t.TempDir()
	s, err := New(context.Background(), config.ReportsConfig{
		Storage:       "local",
		EncryptionKey: testKey(),
		Local:         config.ReportsLocalConfig{Directory: dir},
	})
	require.NoError(t, err)
	ctx := context.Background()

	info, err := s.Put(ctx, "reports/bob/r2.csv", bytes.NewBufferString("secret,data\n"), PutOptions{ContentType: "text/csv"})
	require.NoError(t, err)
	require.True(t, info.Encrypted)

	raw, err := os.ReadFile(filepath.Join(dir, "reports", "bob", "r2.csv"))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "secret")

	r, got, err := s.Get(ctx, "reports/bob/r2.csv")
	require.NoError(t, err)
	require.True(t, got.Encrypted)
	require.EqualValues(t, len("secret,data\n"), got.Size)
	require.Equal(t, "secret,data\n", readAll(t, r))
}

func TestEncryptedBlobIsBoundToItsKey(t *testing.T) {
	dir := t.TempDir()
	s, err := New(context.Background(), config.ReportsConfig{
		Storage:       "local",
		EncryptionKey: testKey(),
		Local:         config.ReportsLocalConfig{Directory: dir},
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Put(ctx, "reports/bob/r3.csv", bytes.NewBufferString("bob only\n"), PutOptions{})
	require.NoError(t, err)

	target := filepath.Join(dir, "reports", "eve")
	require.NoError(t, os.MkdirAll(target, 0o750))
	for _, suffix := range []string{"", ".meta"} {
		data, err := os.ReadFile(filepath.Join(dir, "reports", "bob", "r3.csv"+suffix))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(target, "r3.csv"+suffix), data, 0o640))
	}

	_, _, err = s.Get(ctx, "reports/eve/r3.csv")
	require.Error(t, err)
}

func TestEncryptedBlobWithoutKey(t *testing.T) {
	dir := t.TempDir()
	backend, err := newLocalStore(config.ReportsLocalConfig{Directory: dir})
	require.NoError(t, err)
	encrypted, err := wrap(backend, testKey())
	require.NoError(t, err)
	plain, err := wrap(backend, "")
	require.NoError(t, err)

	_, err = encrypted.Put(context.Background(), "k.csv", bytes.NewBufferString("x"), PutOptions{})
	require.NoError(t, err)
	_, _, err = plain.Get(context.Background(), "k.csv")
	require.ErrorContains(t, err, "no encryption key")
}

func TestNewEncryptorRejectsBadKeys(t *testing.T) {
	_, err := newEncryptor("not base64!")
	require.Error(t, err)
	_, err = newEncryptor(base64.StdEncoding.EncodeToString([]byte("short")))
	require.Error(t, err)
	enc, err := newEncryptor("")
	require.NoError(t, err)
	require.Nil(t, enc)
}

func TestLocalStoreStaysInsideRoot(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link")))

	s, err := newLocalStore(config.ReportsLocalConfig{Directory: dir})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Put(ctx, "link/escape.csv", bytes.NewBufferString("x"), PutOptions{})
	require.Error(t, err)
	entries, err := os.ReadDir(outside)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = s.Put(ctx, "reports/a/r.csv.meta", bytes.NewBufferString("x"), PutOptions{})
	require.Error(t, err)

	_, _, err = s.Get(ctx, "reports/a/missing.csv")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Delete(ctx, "reports/a/missing.csv"))
}
