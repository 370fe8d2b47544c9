package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/agentuity/go-memocache/cache"
	"github.com/agentuity/go-memocache/config"
	"github.com/agentuity/go-memocache/docstore"
	"github.com/agentuity/go-memocache/tui"
	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestMain(m *testing.M) {
	tui.HasTTY = false
	os.Exit(m.Run())
}

func clearEnv(t *testing.T) {
	for _, key := range []string{
		config.EnvStore, config.EnvRedisURL, config.EnvPrefix, config.EnvTTL,
		config.EnvFetchTimeout, config.EnvQueryTimeout, config.EnvSingleFlight,
		config.EnvHistory, config.EnvLogFormat, config.EnvDocstore, config.EnvMarkdown,
		config.EnvOTLPURL, config.EnvOTLPToken, config.EnvOTLPSecret,
	} {
		t.Setenv(key, "")
	}
	t.Setenv(config.EnvLogLevel, "none")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd, a := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := execute(context.Background(), cmd, a)
	return strings.TrimSpace(out.String()), err
}

func redisArgs(t *testing.T) []string {
	mr := miniredis.RunT(t)
	return []string{"--store", "redis", "--redis-url", "redis://" + mr.Addr(), "--prefix", "cli"}
}

func TestStoreMemory(t *testing.T) {
	clearEnv(t)
	key, err := run(t, "store", "hello")
	require.NoError(t, err)
	assert.Len(t, key, 36)
}

func TestStoreGetReplay(t *testing.T) {
	clearEnv(t)
	base := redisArgs(t)
	with := func(args ...string) []string { return append(append([]string{}, base...), args...) }

	key, err := run(t, with("store", "hello")...)
	require.NoError(t, err)
	require.NotEmpty(t, key)

	out, err := run(t, with("get", key, "--as", "text")...)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	out, err = run(t, with("get", key)...)
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, out)

	_, err = run(t, with("get", key, "--as", "int")...)
	assert.True(t, errors.Is(err, cache.ErrCoercion), "got %v", err)

	_, err = run(t, with("get", "missing")...)
	assert.ErrorContains(t, err, "not found")

	numKey, err := run(t, with("store", "42", "--kind", "int")...)
	require.NoError(t, err)
	out, err = run(t, with("get", numKey, "--as", "int")...)
	require.NoError(t, err)
	assert.Equal(t, "42", out)

	out, err = run(t, with("count", cache.OpStore)...)
	require.NoError(t, err)
	assert.Equal(t, "2", out)

	out, err = run(t, with("replay", cache.OpStore)...)
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "store was called 2 times:", lines[0])
	assert.Equal(t, `store("hello") -> "`+key+`"`, lines[1])
	assert.Equal(t, `store(42) -> "`+numKey+`"`, lines[2])

	out, err = run(t, with("replay", cache.OpStore, "--table")...)
	require.NoError(t, err)
	assert.Contains(t, out, "#\tinput\toutput")

	_, err = run(t, with("store", "x", "--flush")...)
	require.NoError(t, err)
	out, err = run(t, with("count", cache.OpStore)...)
	require.NoError(t, err)
	assert.Equal(t, "1", out)

	_, err = run(t, with("flush")...)
	require.NoError(t, err)
	out, err = run(t, with("count", cache.OpStore)...)
	require.NoError(t, err)
	assert.Equal(t, "0", out)
}

func TestFetch(t *testing.T) {
	clearEnv(t)
	var served atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("page body"))
	}))
	t.Cleanup(srv.Close)
	base := redisArgs(t)
	with := func(args ...string) []string { return append(append([]string{}, base...), args...) }

	out, err := run(t, with("fetch", srv.URL, "--times", "3")...)
	require.NoError(t, err)
	assert.Equal(t, "page body\n"+srv.URL+" requested 3 times", out)
	assert.Equal(t, int32(1), served.Load())

	out, err = run(t, with("hits", srv.URL)...)
	require.NoError(t, err)
	assert.Equal(t, "3", out)

	out, err = run(t, with("count", cache.OpFetch)...)
	require.NoError(t, err)
	assert.Equal(t, "3", out)

	_, err = run(t, with("fetch", "ftp://example.com", "-q")...)
	assert.True(t, errors.Is(err, cache.ErrFetch), "got %v", err)
}

func TestSchools(t *testing.T) {
	clearEnv(t)
	db := []string{"--docstore", filepath.Join(t.TempDir(), "schools.db")}
	with := func(args ...string) []string { return append(append([]string{}, db...), args...) }

	id, err := run(t, with("schools", "insert", "name=UCSF", "address=505 Parnassus Ave")...)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	_, err = run(t, with("schools", "insert", "name=Holberton", `topics=["AI","C"]`)...)
	require.NoError(t, err)

	out, err := run(t, with("schools", "update-topics", "UCSF", "AI", "MongoDB")...)
	require.NoError(t, err)
	assert.Equal(t, "1", out)

	out, err = run(t, with("schools", "by-topic", "MongoDB")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"name":"UCSF"`)
	assert.NotContains(t, out, "Holberton")

	out, err = run(t, with("schools", "by-topic", "AI")...)
	require.NoError(t, err)
	assert.Len(t, strings.Split(out, "\n"), 2)

	out, err = run(t, with("schools", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, id)

	_, err = run(t, with("schools", "insert", "novalue")...)
	assert.Error(t, err)
}

func TestTopStudents(t *testing.T) {
	clearEnv(t)
	db := []string{"--docstore=" + filepath.Join(t.TempDir(), "students.db"), "schools", "--collection=students"}
	with := func(args ...string) []string { return append(append([]string{}, db...), args...) }

	_, err := run(t, with("insert", "name=Ann", `topics=[{"title":"C","score":4}]`)...)
	require.NoError(t, err)
	_, err = run(t, with("insert", "name=Bob", `topics=[{"title":"C","score":9},{"title":"Go","score":8}]`)...)
	require.NoError(t, err)

	out, err := run(t, with("top-students")...)
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id\tname\taverage", lines[0])
	assert.Contains(t, lines[1], "Bob\t8.50")
	assert.Contains(t, lines[2], "Ann\t4.00")
}

func TestInvalidFlags(t *testing.T) {
	clearEnv(t)
	_, err := run(t, "--store", "memcached", "count", "store")
	assert.True(t, errors.Is(err, config.ErrInvalid), "got %v", err)

	_, err = run(t, "store", "abc", "--kind", "int")
	assert.ErrorContains(t, err, "invalid int")
}

func TestTraceExport(t *testing.T) {
	clearEnv(t)
	var exported atomic.Int32
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/traces" {
			exported.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(collector.Close)
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	t.Setenv(config.EnvOTLPURL, collector.URL)

	_, err := run(t, "store", "traced")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, exported.Load(), int32(1))

	// a failed command still flushes its spans
	exported.Store(0)
	_, err = run(t, "fetch", "ftp://example.com", "-q")
	assert.True(t, errors.Is(err, cache.ErrFetch), "got %v", err)
	assert.GreaterOrEqual(t, exported.Load(), int32(1))
}

func TestFailedCommandReleasesDocstore(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "docs.db")

	_, err := run(t, "--docstore="+path, "schools", "insert", "_id=5")
	assert.True(t, errors.Is(err, docstore.ErrInvalidDocument), "got %v", err)

	// bbolt holds an exclusive file lock until the handle is closed
	_, err = run(t, "--docstore="+path, "schools", "list")
	require.NoError(t, err)
}
