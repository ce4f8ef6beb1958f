package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	ad4826 "github.com/hootrhino/goad4826"
	"github.com/hootrhino/goad4826/internal/config"
)

// fakeInstrument answers by command code; unknown commands time out.
type fakeInstrument struct {
	replies map[string]string
	pending []byte
	sent    []string
}

func (f *fakeInstrument) WriteRaw(data []byte) error {
	cmd := string(data[5:13])
	f.sent = append(f.sent, cmd)
	f.pending = []byte(f.replies[cmd])
	return nil
}

func (f *fakeInstrument) ReadUntil(terminator []byte) ([]byte, error) {
	p := f.pending
	f.pending = nil
	return p, nil
}

func (f *fakeInstrument) Close() error { return nil }

func newFake() *fakeInstrument {
	return &fakeInstrument{replies: map[string]string{
		"GROSS___": "\x020000GROSS___+00000120.500\r\n",
		"FF______": "\x060000FF______\r\n",
		"CFW_____": "\x060000CFW_____\r\n",
		"FDIS____": "\x150000FDIS____E1\r\n",
		"ID______": "\x020000ID______AD-4826A\r\n",
	}}
}

func runWith(t *testing.T, fake *fakeInstrument, args ...string) (int, string, string) {
	t.Helper()
	chdir(t, t.TempDir())
	t.Setenv(config.EnvConfigPath, "")
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr, func(ad4826.SerialConfig) (ad4826.Transporter, error) {
		return fake, nil
	})
	return code, stdout.String(), stderr.String()
}

func TestRun_Weight(t *testing.T) {
	code, out, _ := runWith(t, newFake(), "--log-level", "error", "weight")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "120.5\n", out)
}

func TestRun_CutOut(t *testing.T) {
	fake := newFake()
	code, out, _ := runWith(t, fake, "--log-level", "error", "cutout", "120")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "cutout: accepted\n", out)
	assert.Equal(t, []string{"FF______", "CFW_____"}, fake.sent)
}

func TestRun_DischargeRejected(t *testing.T) {
	code, out, _ := runWith(t, newFake(), "--log-level", "error", "discharge")
	assert.Equal(t, exitFailed, code)
	assert.True(t, strings.HasPrefix(out, "discharge: rejected"))
}

func TestRun_Raw(t *testing.T) {
	code, out, _ := runWith(t, newFake(), "--log-level", "error", "raw", "ID")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "STX 0000 ID______ AD-4826A\n", out)

	code, out, _ = runWith(t, newFake(), "--log-level", "error", "raw", "NOPE")
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, out, "no_response")
}

func TestRun_Usage(t *testing.T) {
	code, _, _ := runWith(t, newFake())
	assert.Equal(t, exitUsage, code)
	code, _, _ = runWith(t, newFake(), "cutout")
	assert.Equal(t, exitUsage, code)
	code, _, _ = runWith(t, newFake(), "cutout", "lots")
	assert.Equal(t, exitUsage, code)
	code, _, _ = runWith(t, newFake(), "frobnicate")
	assert.Equal(t, exitUsage, code)
	code, _, _ = runWith(t, newFake(), "--unit", "1", "weight")
	assert.Equal(t, exitSetupErr, code)
}

func TestRun_OpenFails(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv(config.EnvConfigPath, "")
	var stdout, stderr bytes.Buffer
	code := run([]string{"weight"}, &stdout, &stderr, func(ad4826.SerialConfig) (ad4826.Transporter, error) {
		return nil, errors.New("no such port")
	})
	assert.Equal(t, exitSetupErr, code)
	assert.Contains(t, stderr.String(), "no such port")
}

func TestApp_Poll(t *testing.T) {
	var out bytes.Buffer
	a := &app{
		cfg:     &config.Config{Poll: config.PollConfig{Interval: 5 * time.Millisecond}},
		log:     zap.NewNop(),
		dev:     ad4826.NewDevice(ad4826.NewClient(newFake())),
		reg:     prometheus.NewRegistry(),
		unit:    ad4826.MustCode("00"),
		channel: ad4826.MustCode("00"),
		out:     &out,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	require.Equal(t, exitOK, a.poll(ctx))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasSuffix(lines[0], " 120.5"))
}

func TestApp_MetricsServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	client := ad4826.NewClient(newFake(), ad4826.WithMetrics(ad4826.NewMetrics(reg)))
	a := &app{
		cfg:     &config.Config{Metrics: config.MetricsConfig{Addr: ":0", Path: "/metrics"}},
		log:     zap.NewNop(),
		dev:     ad4826.NewDevice(client),
		reg:     reg,
		unit:    ad4826.MustCode("00"),
		channel: ad4826.MustCode("00"),
		out:     &bytes.Buffer{},
	}
	assert.Nil(t, a.metricsServer(nil))

	a.cfg.Metrics.Enable = true
	srv := a.metricsServer(func() bool { return false })
	require.NotNil(t, srv)

	_, err := a.dev.ReadWeight(a.unit, a.channel)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `ad4826_exchange_total{cmd="GROSS___",result="accepted"} 1`)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
