package worker

import (
	"context"
	stdErrors "errors"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/packd/internal/build"
	"git.home.luguber.info/inful/packd/internal/foundation/errors"
)

type fakeBuilder struct {
	info []string
	out  *build.Output
	err  error
	got  build.Request
}

func (f *fakeBuilder) Build(_ context.Context, req build.Request, info func(string)) (*build.Output, error) {
	f.got = req
	for _, line := range f.info {
		info(line)
	}
	return f.out, f.err
}

// runSession connects Drive and Serve through in-memory pipes.
func runSession(t *testing.T, b Builder, req build.Request) ([]string, *build.Output, error) {
	t.Helper()
	toWorkerR, toWorkerW := io.Pipe()
	toParentR, toParentW := io.Pipe()

	serveErr := make(chan error, 1)
	go func() {
		err := Serve(context.Background(), toWorkerR, toParentW, b)
		_ = toParentW.Close()
		serveErr <- err
	}()

	var lines []string
	out, err := Drive(toParentR, toWorkerW, req, func(s string) { lines = append(lines, s) })
	_ = toWorkerW.Close()
	require.NoError(t, <-serveErr)
	return lines, out, err
}

func testRequest() build.Request {
	return build.NewRequest([]build.Package{{Name: "left-pad", Version: "1.3.0"}})
}

func TestSession_Result(t *testing.T) {
	b := &fakeBuilder{
		info: []string{"installing", "bundling"},
		out:  &build.Output{Code: []byte("export{}"), Minified: true, Stages: map[string]int64{"install": 12}},
	}
	req := testRequest()

	lines, out, err := runSession(t, b, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"installing", "bundling"}, lines)
	assert.Equal(t, "export{}", string(out.Code))
	assert.True(t, out.Minified)
	assert.Equal(t, int64(12), out.Stages["install"])
	assert.Equal(t, req.Hash, b.got.Hash)
	assert.Equal(t, req.Packages[0].Fragment(), b.got.Packages[0].Fragment())
}

func TestSession_FailureKeepsClassification(t *testing.T) {
	sentinel := errors.BuildError("generated multiple chunks").Build()
	b := &fakeBuilder{err: sentinel.WithContext("chunks", 2)}

	_, out, err := runSession(t, b, testRequest())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, stdErrors.Is(err, sentinel))

	c, ok := errors.AsClassified(err)
	require.True(t, ok)
	detail, _ := c.Context().GetString("detail")
	assert.Contains(t, detail, "chunks: 2")
}

func TestSession_UnclassifiedFailure(t *testing.T) {
	b := &fakeBuilder{err: stdErrors.New("boom")}
	_, _, err := runSession(t, b, testRequest())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryBuild))
	assert.Contains(t, err.Error(), "boom")
}

func TestDrive_NoTerminalMessage(t *testing.T) {
	r := strings.NewReader(`{"type":"ready"}` + "\n" + `{"type":"info","info":"x"}` + "\n")
	_, err := Drive(r, io.Discard, testRequest(), nil)
	assert.True(t, stdErrors.Is(err, ErrNoTerminalMessage), "got %v", err)
}

func TestDrive_ProtocolViolations(t *testing.T) {
	tests := []struct {
		name   string
		stream string
	}{
		{"result before ready", `{"type":"result","result":{"code":""}}`},
		{"garbage", `not json`},
		{"unknown type", `{"type":"ready"}` + "\n" + `{"type":"bogus"}`},
		{"empty error", `{"type":"ready"}` + "\n" + `{"type":"error"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Drive(strings.NewReader(tt.stream+"\n"), io.Discard, testRequest(), nil)
			assert.True(t, stdErrors.Is(err, ErrProtocol), "got %v", err)
		})
	}
}

func TestServe_RejectsNonStart(t *testing.T) {
	var sb strings.Builder
	err := Serve(context.Background(), strings.NewReader(`{"type":"info","info":"hi"}`+"\n"), &sb, &fakeBuilder{})
	require.Error(t, err)
	assert.True(t, stdErrors.Is(err, ErrProtocol))
	assert.Contains(t, sb.String(), `"type":"ready"`)
	assert.Contains(t, sb.String(), `"type":"error"`)
}

func TestServe_InputClosedBeforeStart(t *testing.T) {
	err := Serve(context.Background(), strings.NewReader(""), io.Discard, &fakeBuilder{})
	assert.True(t, stdErrors.Is(err, ErrProtocol))
}

func shellExecutor(t *testing.T, script string) *ProcessExecutor {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	e, err := NewProcessExecutor([]string{"sh", "-c", script}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return e
}

func TestProcessExecutor_Result(t *testing.T) {
	e := shellExecutor(t, `
echo '{"type":"ready"}'
read -r start
echo 'diagnostic on stderr' >&2
echo '{"type":"info","info":"working"}'
echo '{"type":"result","result":{"code":"aGk=","minified":true}}'
`)
	var lines []string
	out, err := e.Execute(context.Background(), testRequest(), func(s string) { lines = append(lines, s) })
	require.NoError(t, err)
	assert.Equal(t, "hi", string(out.Code))
	assert.Equal(t, []string{"working"}, lines)
}

func TestProcessExecutor_ExitWithoutResult(t *testing.T) {
	e := shellExecutor(t, `
echo '{"type":"ready"}'
read -r start
exit 3
`)
	_, err := e.Execute(context.Background(), testRequest(), nil)
	assert.True(t, stdErrors.Is(err, ErrNoTerminalMessage), "got %v", err)
}

func TestProcessExecutor_CancelKillsWorker(t *testing.T) {
	e := shellExecutor(t, `
echo '{"type":"ready"}'
sleep 30
`)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Execute(ctx, testRequest(), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestNewProcessExecutor_DefaultsToSelf(t *testing.T) {
	e, err := NewProcessExecutor(nil, nil)
	require.NoError(t, err)
	require.Len(t, e.Command(), 2)
	assert.Equal(t, "worker", e.Command()[1])
}
