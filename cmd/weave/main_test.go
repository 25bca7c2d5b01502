package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonsphere/weave"
	"github.com/neonsphere/weave/internal/contract"
	"github.com/neonsphere/weave/pkg/cipher"
)

const (
	alice = "0x00000000000000000000000000000000000000a1"
	bob   = "0x00000000000000000000000000000000000000b2"
)

func handleArg(b string) string {
	return "euint8:" + strings.Repeat(b, 32)
}

func weaveCmd(t *testing.T, dir string, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"-data", dir}, args...), strings.NewReader(""), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, errOut, code := weaveCmd(t, dir, args...)
	require.Equal(t, 0, code, errOut)
	return out
}

func TestRegisterConnectInteract(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "register", "-wallet", alice, "-username", "alice", "-rep", handleArg("01"), "-seal")
	out := mustRun(t, dir, "register", "-wallet", bob, "-username", "bob", "-rep", handleArg("02"), "-seal")

	var reg map[string]uint64
	require.NoError(t, json.Unmarshal([]byte(out), &reg))
	assert.Equal(t, uint64(2), reg["userId"])

	mustRun(t, dir, "connect", "-wallet", alice, "-to", "2", "-trust", handleArg("07"), "-seal")

	file := filepath.Join(t.TempDir(), "post.txt")
	require.NoError(t, os.WriteFile(file, []byte("first post"), 0o600))
	hash := strings.TrimSpace(mustRun(t, dir, "content-put", file))
	assert.True(t, strings.HasPrefix(hash, "sha3-256:"))

	mustRun(t, dir, "interact", "-wallet", bob, "-conn", "1",
		"-type", handleArg("03"), "-sentiment", handleArg("04"), "-content", hash, "-seal")

	out = mustRun(t, dir, "interactions", "1")
	assert.Contains(t, out, hash)

	out = mustRun(t, dir, "stats")
	var stats map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats["users"])
	assert.Equal(t, 1, stats["connections"])
	assert.Equal(t, 1, stats["interactions"])

	out = mustRun(t, dir, "lookup", bob)
	assert.Contains(t, out, `"userId": 2`)
}

func TestInvalidProofFails(t *testing.T) {
	dir := t.TempDir()
	_, errOut, code := weaveCmd(t, dir, "register", "-wallet", alice, "-username", "alice",
		"-rep", handleArg("01"), "-proof", strings.Repeat("00", 32))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid proof")
}

func TestSealMatchesRegister(t *testing.T) {
	dir := t.TempDir()
	proof := strings.TrimSpace(mustRun(t, dir, "seal", handleArg("01")))
	assert.Len(t, proof, 64)
	mustRun(t, dir, "register", "-wallet", alice, "-username", "alice", "-rep", handleArg("01"), "-proof", proof)
}

func TestExportImport(t *testing.T) {
	src := t.TempDir()
	mustRun(t, src, "register", "-wallet", alice, "-username", "alice", "-rep", handleArg("01"), "-seal")
	snapshot := filepath.Join(t.TempDir(), "weave.bak")
	mustRun(t, src, "export", snapshot)

	dst := t.TempDir()
	mustRun(t, dst, "import", snapshot)
	out := mustRun(t, dst, "profile", "1")
	assert.Contains(t, out, `"Username": "alice"`)
}

func TestUsage(t *testing.T) {
	_, errOut, code := weaveCmd(t, t.TempDir())
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Usage: weave")

	_, _, code = weaveCmd(t, t.TempDir(), "frobnicate")
	assert.Equal(t, 2, code)

	_, _, code = weaveCmd(t, t.TempDir(), "profile", "abc")
	assert.Equal(t, 1, code)
}

func TestServeAnswersCalls(t *testing.T) {
	parsed, err := contract.ABI()
	require.NoError(t, err)
	rep := cipher.NewHandle(cipher.KindUint8, bytes.Repeat([]byte{1}, cipher.PayloadSize))
	proof := cipher.NewKeccakVerifier(weave.DefaultConfig().Verifier.Domain).Seal(rep)

	register, err := parsed.Pack("registerUser", "alice", "", rep.Payload, []byte(proof))
	require.NoError(t, err)
	profile, err := parsed.Pack("getUserProfile", big.NewInt(1))
	require.NoError(t, err)

	stdin := strings.Join([]string{
		alice + " " + hex.EncodeToString(register),
		"",
		alice + " 0x" + hex.EncodeToString(register),
		"not-a-call",
		bob + " " + hex.EncodeToString(profile),
	}, "\n")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-data", t.TempDir(), "serve"}, strings.NewReader(stdin), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ok 0x"+hex.EncodeToString(common.LeftPadBytes([]byte{1}, 32)), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "err "), lines[1])
	assert.Contains(t, lines[1], "wallet already registered")
	assert.True(t, strings.HasPrefix(lines[2], "err "), lines[2])

	require.True(t, strings.HasPrefix(lines[3], "ok 0x"), lines[3])
	raw, err := hex.DecodeString(strings.TrimPrefix(lines[3], "ok 0x"))
	require.NoError(t, err)
	out, err := parsed.Methods["getUserProfile"].Outputs.Unpack(raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", out[0])
}

func TestParseHandle(t *testing.T) {
	h, err := parseHandle("euint32:" + strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Equal(t, "euint32", h.Kind.String())

	_, err = parseHandle("euint64:" + strings.Repeat("ab", 32))
	assert.Error(t, err)
	_, err = parseHandle("abcd")
	assert.Error(t, err)
}
