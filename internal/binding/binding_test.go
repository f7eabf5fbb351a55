package binding

import (
	"reflect"
	"strings"
	"sync"
	"testing"
)

func TestResolver_Resolve(t *testing.T) {
	item := map[string]interface{}{
		"email":  "lead@example.com",
		"source": "blog",
		"score":  72.0,
		"value":  1500.5,
		"tags":   []interface{}{"a", "b"},
	}

	tests := []struct {
		name   string
		params map[string]interface{}
		want   map[string]interface{}
	}{
		{
			name:   "literal values pass through",
			params: map[string]interface{}{"funnel_name": "default", "value": 10, "flag": true},
			want:   map[string]interface{}{"funnel_name": "default", "value": 10, "flag": true},
		},
		{
			name:   "single segment keeps type",
			params: map[string]interface{}{"email": "={{ json.email }}", "value": "={{ json.value }}"},
			want:   map[string]interface{}{"email": "lead@example.com", "value": 1500.5},
		},
		{
			name:   "surrounding text is formatted",
			params: map[string]interface{}{"identifier": "=lead-{{ json.source }}-{{ json.score }}"},
			want:   map[string]interface{}{"identifier": "lead-blog-72"},
		},
		{
			name:   "conditional expression",
			params: map[string]interface{}{"funnel_name": `={{ json.score > 50 ? "hot" : "cold" }}`},
			want:   map[string]interface{}{"funnel_name": "hot"},
		},
		{
			name:   "missing field resolves to nil",
			params: map[string]interface{}{"reason": "={{ json.reason }}", "label": "=x{{ json.reason }}y"},
			want:   map[string]interface{}{"reason": nil, "label": "xy"},
		},
		{
			name:   "whole item",
			params: map[string]interface{}{"tags": "={{ json.tags }}"},
			want:   map[string]interface{}{"tags": []interface{}{"a", "b"}},
		},
		{
			name: "nested lists and maps",
			params: map[string]interface{}{
				"custom_fields": []interface{}{
					map[string]interface{}{"field_id": "cf_source", "field_value": "={{ json.source }}"},
					[]interface{}{"cf_email", "={{ json.email }}"},
				},
			},
			want: map[string]interface{}{
				"custom_fields": []interface{}{
					map[string]interface{}{"field_id": "cf_source", "field_value": "blog"},
					[]interface{}{"cf_email", "lead@example.com"},
				},
			},
		},
		{
			name:   "braces without marker stay literal",
			params: map[string]interface{}{"identifier": "{{ json.source }}"},
			want:   map[string]interface{}{"identifier": "{{ json.source }}"},
		},
	}

	r := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.params, item)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestResolver_DoesNotModifyParams(t *testing.T) {
	params := map[string]interface{}{
		"email":         "={{ json.email }}",
		"custom_fields": []interface{}{[]interface{}{"cf_a", "={{ json.a }}"}},
	}

	_, err := New().Resolve(params, map[string]interface{}{"email": "x@y.com", "a": "1"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if params["email"] != "={{ json.email }}" {
		t.Errorf("params modified: %v", params)
	}
	if params["custom_fields"].([]interface{})[0].([]interface{})[1] != "={{ json.a }}" {
		t.Errorf("nested params modified: %v", params)
	}
}

func TestResolver_Errors(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]interface{}
		errText string
	}{
		{name: "syntax error", params: map[string]interface{}{"email": "={{ json.email + }}"}, errText: `parameter "email"`},
		{name: "empty segment", params: map[string]interface{}{"email": "={{ }}"}, errText: "empty expression"},
		{name: "nested", params: map[string]interface{}{"custom_fields": []interface{}{"={{ ) }}"}}, errText: "[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Resolve(tt.params, map[string]interface{}{"email": "x@y.com"})
			if err == nil {
				t.Fatal("Resolve() expected error")
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.errText)
			}
		})
	}
}

func TestResolver_NilItem(t *testing.T) {
	got, err := New().Resolve(map[string]interface{}{"email": "={{ json.email }}"}, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got["email"] != nil {
		t.Errorf("email = %v, want nil", got["email"])
	}
}

func TestResolver_CachesPrograms(t *testing.T) {
	r := New()
	params := map[string]interface{}{"email": "={{ json.email }}", "other": "=a{{ json.email }}"}

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(params, map[string]interface{}{"email": "x"}); err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
	}
	if r.CacheSize() != 1 {
		t.Errorf("CacheSize() = %d, want 1", r.CacheSize())
	}
}

func TestResolver_Concurrent(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := r.Resolve(map[string]interface{}{"n": "={{ json.n * 2 }}"}, map[string]interface{}{"n": i})
			if err != nil {
				t.Errorf("Resolve() error = %v", err)
				return
			}
			if got["n"] != i*2 {
				t.Errorf("n = %v, want %d", got["n"], i*2)
			}
		}(i)
	}
	wg.Wait()
}

func TestIsExpression(t *testing.T) {
	if !IsExpression("={{ json.a }}") || IsExpression("{{ json.a }}") || IsExpression("plain") {
		t.Error("IsExpression() misclassified input")
	}
}
