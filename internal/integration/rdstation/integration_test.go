package rdstation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"

	"github.com/tombee/rdstation-connector/internal/credentials"
	"github.com/tombee/rdstation-connector/internal/operation"
	"github.com/tombee/rdstation-connector/internal/operation/api"
	"github.com/tombee/rdstation-connector/internal/operation/transport"
)

func TestNewIntegration(t *testing.T) {
	tests := []struct {
		name    string
		config  *api.ProviderConfig
		wantErr bool
	}{
		{name: "nil config", config: nil, wantErr: true},
		{name: "missing executor", config: &api.ProviderConfig{}, wantErr: true},
		{name: "default config", config: &api.ProviderConfig{Executor: &fakeExecutor{}}},
		{name: "custom base URL", config: &api.ProviderConfig{Executor: &fakeExecutor{}, BaseURL: "https://custom.rd.services/platform"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			integration, err := NewIntegration(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewIntegration() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && integration == nil {
				t.Error("NewIntegration() returned nil integration")
			}
		})
	}
}

func TestNewIntegration_Defaults(t *testing.T) {
	config := &api.ProviderConfig{Executor: &fakeExecutor{}}
	integration, err := NewIntegration(config)
	if err != nil {
		t.Fatalf("NewIntegration() error = %v", err)
	}

	if integration.Name() != "rdstation" {
		t.Errorf("Name() = %q", integration.Name())
	}
	if integration.BaseURL() != DefaultBaseURL {
		t.Errorf("BaseURL() = %q, want %q", integration.BaseURL(), DefaultBaseURL)
	}
	if integration.CredentialName() != "rdStationOAuth2Api" {
		t.Errorf("CredentialName() = %q", integration.CredentialName())
	}
	if integration.NodeName() != DefaultNodeName {
		t.Errorf("NodeName() = %q", integration.NodeName())
	}
	if config.BaseURL != "" {
		t.Error("NewIntegration() mutated the caller's config")
	}
}

func TestIntegration_Operations(t *testing.T) {
	integration := newTestIntegration(t, &fakeExecutor{})
	ops := integration.Operations()

	if len(ops) != len(Categories) {
		t.Errorf("Operations() returned %d operations, want %d", len(ops), len(Categories))
	}

	opNames := make(map[string]bool)
	for _, op := range ops {
		opNames[op.Name] = true
	}
	for _, c := range Categories {
		if !opNames[string(c)] {
			t.Errorf("Operations() missing %q", c)
		}
		if integration.OperationSchema(string(c)) == nil {
			t.Errorf("OperationSchema(%q) = nil", c)
		}
	}

	if integration.OperationSchema("unknown") != nil {
		t.Error("OperationSchema(unknown) should be nil")
	}
}

func TestIntegration_OperationSchema_CallFinished(t *testing.T) {
	schema := newTestIntegration(t, &fakeExecutor{}).OperationSchema("call_finished")

	callType := schema.Parameter("call_type")
	if callType == nil || callType.Default != "Outbound" || len(callType.Options) != 2 {
		t.Errorf("call_type parameter = %+v", callType)
	}
	status := schema.Parameter("call_status")
	if status == nil || !status.Hidden || status.Default != "in_progress" {
		t.Errorf("call_status parameter = %+v", status)
	}
	if schema.Parameter("funnel_name") != nil {
		t.Error("call_finished should not declare funnel_name")
	}
}

func TestIntegration_Execute_UnknownOperation(t *testing.T) {
	exec := &fakeExecutor{}
	_, err := newTestIntegration(t, exec).Execute(context.Background(), "won", map[string]interface{}{"email": "a@b.com"})

	var opErr *operation.Error
	if !errors.As(err, &opErr) || opErr.Type != operation.ErrorTypeConfiguration {
		t.Errorf("Execute() error = %v, want configuration error", err)
	}
	if len(exec.requests) != 0 {
		t.Error("unknown operation must not send a request")
	}
}

// TestIntegration_Execute_EndToEnd drives the integration through the real
// OAuth2 and HTTP transports against a fake RD Station.
func TestIntegration_Execute_EndToEnd(t *testing.T) {
	keyring.MockInit()

	var refreshForm map[string][]string
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		refreshForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "fresh-token",
			"refresh_token": "refresh-2",
			"expires_in":    86400,
		})
	}))
	defer tokenServer.Close()

	var gotAuth string
	var gotBody map[string]interface{}
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/platform/events" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)

		if gotBody["payload"].(map[string]interface{})["email"] == "bad" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"errors":{"email":[{"error_type":"INVALID_FORMAT","error_message":"Email is invalid"}]}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"event_uuid":"5408c5a3-4711-4f2e-8d0b-13407a3e30f3"}`))
	}))
	defer apiServer.Close()

	store := credentials.NewKeychainStore()
	err := store.Save(context.Background(), "rdStationOAuth2Api", &credentials.Credential{
		ClientID:     "client",
		ClientSecret: "secret",
		Token: &oauth2.Token{
			AccessToken:  "stale",
			RefreshToken: "refresh-1",
			Expiry:       time.Now().Add(-time.Minute),
		},
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	httpTransport, err := transport.NewHTTPTransport(&transport.HTTPTransportConfig{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewHTTPTransport() error = %v", err)
	}
	descriptor := credentials.RDStationOAuth2
	descriptor.AccessTokenURL = tokenServer.URL
	oauthTransport, err := transport.NewOAuth2Transport(&transport.OAuth2TransportConfig{
		HTTP:       httpTransport,
		Store:      store,
		Descriptor: &descriptor,
	})
	if err != nil {
		t.Fatalf("NewOAuth2Transport() error = %v", err)
	}

	integration, err := NewIntegration(&api.ProviderConfig{
		Executor: oauthTransport,
		BaseURL:  apiServer.URL + "/platform",
	})
	if err != nil {
		t.Fatalf("NewIntegration() error = %v", err)
	}

	sentBefore := testutil.ToFloat64(eventsSent.WithLabelValues("sale"))
	failedBefore := testutil.ToFloat64(eventsFailed.WithLabelValues("sale", string(operation.ErrorTypeValidation)))

	result, err := integration.Execute(context.Background(), "sale", map[string]interface{}{
		"email":       "x@y.com",
		"funnel_name": "default",
		"value":       0,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", result.StatusCode)
	}
	if gotAuth != "Bearer fresh-token" {
		t.Errorf("Authorization = %q, want refreshed bearer token", gotAuth)
	}
	if refreshForm["client_secret"][0] != "secret" {
		t.Errorf("refresh form = %v, want client credentials in body", refreshForm)
	}
	if gotBody["event_type"] != "SALE" || gotBody["event_family"] != "CDP" {
		t.Errorf("body = %v", gotBody)
	}
	if v, ok := gotBody["payload"].(map[string]interface{})["value"]; !ok || v != 0.0 {
		t.Errorf("payload value = %v, %v; want 0", v, ok)
	}
	resp, ok := result.Response.(map[string]interface{})
	if !ok || resp["event_uuid"] == nil {
		t.Errorf("Response = %v", result.Response)
	}

	saved, err := store.Get(context.Background(), "rdStationOAuth2Api")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if saved.Token.AccessToken != "fresh-token" {
		t.Errorf("stored access token = %q, want refreshed token", saved.Token.AccessToken)
	}

	_, err = integration.Execute(context.Background(), "sale", map[string]interface{}{
		"email":       "bad",
		"funnel_name": "default",
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Execute() error = %v, want *APIError in chain", err)
	}
	if apiErr.StatusCode != 422 || apiErr.Fields["email"][0].ErrorType != "INVALID_FORMAT" {
		t.Errorf("APIError = %+v", apiErr)
	}

	if got := testutil.ToFloat64(eventsSent.WithLabelValues("sale")) - sentBefore; got != 1 {
		t.Errorf("events sent delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(eventsFailed.WithLabelValues("sale", string(operation.ErrorTypeValidation))) - failedBefore; got != 1 {
		t.Errorf("events failed delta = %v, want 1", got)
	}
}
