// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package send

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/rdstation-connector/internal/commands/shared"
	"github.com/tombee/rdstation-connector/internal/operation"
)

// fakeAPI records event bodies and fails for emails listed in reject.
type fakeAPI struct {
	mu     sync.Mutex
	bodies []map[string]interface{}
	auth   []string
	reject map[string]bool
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var body map[string]interface{}
	_ = json.Unmarshal(data, &body)

	f.mu.Lock()
	f.bodies = append(f.bodies, body)
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	n := len(f.bodies)
	f.mu.Unlock()

	payload, _ := body["payload"].(map[string]interface{})
	if email, _ := payload["email"].(string); f.reject[email] {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":{"email":[{"error_type":"INVALID_FORMAT","error_message":"Email is invalid"}]}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"event_uuid": "uuid-" + string(rune('0'+n))})
}

// setup starts a fake API and points a config file and env credentials at it.
func setup(t *testing.T, reject ...string) (*fakeAPI, string) {
	t.Helper()

	api := &fakeAPI{reject: map[string]bool{}}
	for _, r := range reject {
		api.reject[r] = true
	}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, v := range []string{"RDSTATION_CONFIG", "RDSTATION_BASE_URL", "RDSTATION_CREDENTIAL", "RDSTATION_CONTINUE_ON_FAIL", "RDSTATION_TIMEOUT", "RDSTATION_CREDENTIAL_BACKEND", "LOG_LEVEL", "LOG_FORMAT", "RDSTATION_REFRESH_TOKEN", "RDSTATION_METRICS_FILE", "RDSTATION_TRACING_EXPORTER", "RDSTATION_TRACING_ENDPOINT"} {
		t.Setenv(v, "")
	}
	t.Setenv("RDSTATION_CLIENT_ID", "client")
	t.Setenv("RDSTATION_CLIENT_SECRET", "secret")
	t.Setenv("RDSTATION_ACCESS_TOKEN", "env-token")

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := "base_url: " + server.URL + "/platform\ncredentials:\n  backend: env\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))
	return api, path
}

func writeItems(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "items.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout, _, err := executeCapture(t, args...)
	return stdout, err
}

// executeCapture runs the command and returns stdout and stderr separately.
func executeCapture(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	defer shared.ResetFlagsForTest()

	root := &cobra.Command{Use: "rdstation", SilenceUsage: true, SilenceErrors: true}
	verbose, quiet, jsonPtr, configPtr := shared.RegisterFlagPointers()
	root.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "")
	root.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "")
	root.PersistentFlags().BoolVar(jsonPtr, "json", false, "")
	root.PersistentFlags().StringVar(configPtr, "config", "", "")
	root.AddCommand(NewCommand())

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func appendConfig(t *testing.T, path, extra string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(extra)
	require.NoError(t, err)
}

func decodeOutput(t *testing.T, out string) []map[string]interface{} {
	t.Helper()
	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &records), "output: %s", out)
	return records
}

const threeLeads = `[
  {"email": "a@example.com", "source": "blog"},
  {"email": "b@example.com", "source": "ads"},
  {"email": "c@example.com", "source": "blog"}
]`

func TestSend_ItemsWithExpressions(t *testing.T) {
	api, cfg := setup(t)
	items := writeItems(t, threeLeads)

	out, err := execute(t, "send", "conversion", "--config", cfg, "--items", items,
		"--param", "identifier==lead-{{ json.source }}",
		"--param", `custom_fields=[["cf_source", "={{ json.source }}"]]`)
	require.NoError(t, err)

	records := decodeOutput(t, out)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, float64(i), rec["paired_item"])
		assert.NotEmpty(t, rec["json"].(map[string]interface{})["event_uuid"])
	}

	require.Len(t, api.bodies, 3)
	assert.Equal(t, "Bearer env-token", api.auth[0])
	assert.Equal(t, "CONVERSION", api.bodies[1]["event_type"])
	payload := api.bodies[1]["payload"].(map[string]interface{})
	assert.Equal(t, "b@example.com", payload["email"])
	assert.Equal(t, "lead-ads", payload["conversion_identifier"])
	assert.Equal(t, "ads", payload["cf_source"])
	assert.NotContains(t, payload, "source", "item fields outside the category are not sent")
}

func TestSend_ParamsOnly(t *testing.T) {
	api, cfg := setup(t)

	_, err := execute(t, "send", "sale", "--config", cfg,
		"--param", "email=x@y.com", "--param", "funnel_name=default", "--param", "value=0")
	require.NoError(t, err)

	require.Len(t, api.bodies, 1)
	payload := api.bodies[0]["payload"].(map[string]interface{})
	assert.Equal(t, 0.0, payload["value"])
	assert.Equal(t, "SALE", api.bodies[0]["event_type"])
}

func TestSend_StopsOnFirstFailure(t *testing.T) {
	api, cfg := setup(t, "b@example.com")
	items := writeItems(t, threeLeads)

	out, err := execute(t, "send", "opportunity", "--config", cfg, "--items", items, "--param", "funnel_name=default")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidInput, shared.ExitCode(err))
	assert.Contains(t, err.Error(), "Email is invalid")

	var opErr *operation.Error
	require.ErrorAs(t, err, &opErr)
	idx, ok := opErr.ItemIndex()
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	assert.Len(t, decodeOutput(t, out), 1, "records before the failure are still printed")
	assert.Len(t, api.bodies, 2, "the third item is never sent")
}

func TestSend_ContinueOnFail(t *testing.T) {
	api, cfg := setup(t, "b@example.com")
	items := writeItems(t, threeLeads)

	out, err := execute(t, "send", "opportunity", "--config", cfg, "--items", items,
		"--param", "funnel_name=default", "--continue-on-fail")
	require.NoError(t, err)

	records := decodeOutput(t, out)
	require.Len(t, records, 3)
	assert.Contains(t, records[1]["error"], "Email is invalid")
	assert.Equal(t, "b@example.com", records[1]["json"].(map[string]interface{})["email"])
	assert.Nil(t, records[2]["error"])
	assert.Len(t, api.bodies, 3)
}

func TestSend_JSONEnvelopeWithTransform(t *testing.T) {
	_, cfg := setup(t)
	items := writeItems(t, threeLeads)

	out, err := execute(t, "--json", "send", "opportunity", "--config", cfg, "--items", items,
		"--param", "funnel_name=default", "--transform", "map(.paired_item)")
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &raw))
	assert.Equal(t, "send", raw["command"])
	assert.Equal(t, true, raw["success"])
	assert.Equal(t, "opportunity", raw["category"])
	assert.Equal(t, []interface{}{0.0, 1.0, 2.0}, raw["output"])
	assert.Len(t, raw["items"], 3)
}

func TestSend_TransformOnly(t *testing.T) {
	_, cfg := setup(t)
	items := writeItems(t, threeLeads)

	out, err := execute(t, "send", "opportunity", "--config", cfg, "--items", items,
		"--param", "funnel_name=default", "--transform", "length")
	require.NoError(t, err)
	assert.Equal(t, "3", strings.TrimSpace(out))
}

func TestSend_RejectsBeforeSending(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{name: "unknown category", args: []string{"send", "deal"}, code: shared.ExitInvalidInput},
		{name: "bad transform", args: []string{"send", "sale", "--transform", ".["}, code: shared.ExitInvalidInput},
		{name: "bad param", args: []string{"send", "sale", "--param", "novalue"}, code: shared.ExitInvalidInput},
		{name: "missing items file", args: []string{"send", "sale", "--items", "/nonexistent/items.json"}, code: shared.ExitInvalidInput},
		{name: "missing required field", args: []string{"send", "sale", "--param", "email=x@y.com"}, code: shared.ExitInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, cfg := setup(t)
			_, err := execute(t, append(tt.args, "--config", cfg)...)
			require.Error(t, err)
			assert.Equal(t, tt.code, shared.ExitCode(err), "err: %v", err)
			assert.Empty(t, api.bodies)
		})
	}
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]interface{}
		wantErr bool
	}{
		{name: "strings stay strings", pairs: []string{"value=1500", "mobile_phone=0123"}, want: map[string]interface{}{"value": "1500", "mobile_phone": "0123"}},
		{name: "value containing equals", pairs: []string{"identifier==lead-{{ json.a }}"}, want: map[string]interface{}{"identifier": "=lead-{{ json.a }}"}},
		{name: "empty value", pairs: []string{"reason="}, want: map[string]interface{}{"reason": ""}},
		{name: "inline list", pairs: []string{`custom_fields=[["cf_a", "1"]]`}, want: map[string]interface{}{"custom_fields": []interface{}{[]interface{}{"cf_a", "1"}}}},
		{name: "missing equals", pairs: []string{"email"}, wantErr: true},
		{name: "empty key", pairs: []string{"=x"}, wantErr: true},
		{name: "malformed list", pairs: []string{"custom_fields=[unclosed"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadItems(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{name: "json list", content: `[{"email":"a"},{"email":"b"}]`, want: 2},
		{name: "json object", content: `{"email":"a"}`, want: 1},
		{name: "yaml list", content: "- email: a\n  mobile_phone: \"0123\"\n- email: b\n", want: 2},
		{name: "empty file", content: "", want: 0},
		{name: "scalar", content: "42", wantErr: true},
		{name: "list of scalars", content: "[1, 2]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := readItems(writeItems(t, tt.content), nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, items, tt.want)
		})
	}
}

func TestReadItems_StdinAndDefault(t *testing.T) {
	items, err := readItems("-", strings.NewReader(`[{"email":"a@b.com"}]`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a@b.com", items[0].JSON["email"])

	items, err = readItems("", nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Empty(t, items[0].JSON)
}

func TestSend_WritesMetricsFile(t *testing.T) {
	_, cfg := setup(t, "bad@example.com")
	metricsFile := filepath.Join(t.TempDir(), "rdstation.prom")
	appendConfig(t, cfg, "metrics:\n  file: "+metricsFile+"\n")
	items := writeItems(t, `[{"email": "a@example.com"}, {"email": "bad@example.com"}]`)

	_, err := execute(t, "send", "lost", "--config", cfg, "--items", items,
		"--param", "funnel_name=default", "--continue-on-fail")
	require.NoError(t, err)

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err, "metrics file should be written when send finishes")
	metrics := string(data)
	assert.Contains(t, metrics, `rdstation_events_sent_total{category="lost"}`)
	assert.Contains(t, metrics, `rdstation_events_failed_total{category="lost",error_type="validation_error"}`)
	assert.Contains(t, metrics, `rdstation_request_duration_seconds_count{category="lost"}`)
}

func TestSend_ExportsSpansToStderr(t *testing.T) {
	_, cfg := setup(t)
	appendConfig(t, cfg, "tracing:\n  exporter: stdout\n")

	stdout, stderr, err := executeCapture(t, "send", "sale", "--config", cfg,
		"--param", "email=x@y.com", "--param", "funnel_name=default")
	require.NoError(t, err)

	assert.Contains(t, stderr, `"Name":"rdstation.request"`)
	assert.NotContains(t, stdout, "rdstation.request", "spans must not mix with output records")
	decodeOutput(t, stdout)
}

func TestSend_InvalidTraceExporter(t *testing.T) {
	api, cfg := setup(t)
	appendConfig(t, cfg, "tracing:\n  exporter: zipkin\n")

	_, err := execute(t, "send", "sale", "--config", cfg,
		"--param", "email=x@y.com", "--param", "funnel_name=default")
	assert.Equal(t, shared.ExitConfigError, shared.ExitCode(err))
	assert.Empty(t, api.bodies)
}
