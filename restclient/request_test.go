package restclient

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestNewRequest_Validation(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		opts    []RequestOption
		wantErr string
	}{
		{"valid http", "http://api.test/users", nil, ""},
		{"valid https with query", "https://api.test/users?page=1", nil, ""},
		{"empty", "", nil, "required"},
		{"blank", "   ", nil, "required"},
		{"unparseable", "http://api.test/%zz", nil, "invalid request uri"},
		{"relative", "/users/1", nil, "must be absolute"},
		{"no host", "http:///users", nil, "must be absolute"},
		{"unsupported scheme", "ftp://api.test/file", nil, "unsupported scheme"},
		{"negative timeout", "http://api.test", []RequestOption{WithTimeout(-time.Second)}, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest[string](tt.uri, tt.opts...)
			if tt.wantErr == "" {
				if err != nil || req == nil {
					t.Fatalf("NewRequest(%q) = %v, %v", tt.uri, req, err)
				}
				return
			}
			if !IsValidation(err) || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("NewRequest(%q) err = %v, want validation error containing %q", tt.uri, err, tt.wantErr)
			}
		})
	}
}

func TestMustRequest_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustRequest did not panic on an invalid uri")
		}
	}()
	MustRequest[string]("not a uri")
}

func TestClientRequest_Immutable(t *testing.T) {
	req := MustRequest[string]("http://api.test/users",
		WithMethod("post"),
		WithHeader("X-Trace", "a"),
		WithHeaders(map[string]string{"Accept": "text/plain"}),
		WithQueryParam("q", "1"),
		WithFormParam("name", "ada"),
		WithTimeout(2*time.Second),
	)
	if req.Method() != http.MethodPost {
		t.Errorf("Method() = %q, want POST", req.Method())
	}
	if req.Timeout() != 2*time.Second {
		t.Errorf("Timeout() = %v", req.Timeout())
	}

	req.Header().Set("X-Trace", "mutated")
	req.Query().Set("q", "mutated")
	req.Form().Set("name", "mutated")
	req.URI().Path = "/mutated"
	if req.Header().Get("X-Trace") != "a" || req.Query().Get("q") != "1" ||
		req.Form().Get("name") != "ada" || req.URI().Path != "/users" {
		t.Error("accessor copies leaked mutations into the request")
	}

	cp := req.WithMethod("put")
	if cp.Method() != http.MethodPut || req.Method() != http.MethodPost {
		t.Errorf("WithMethod changed the original: orig=%q copy=%q", req.Method(), cp.Method())
	}
	if cp.Header().Get("Accept") != "text/plain" {
		t.Error("WithMethod copy lost headers")
	}
}

func TestEncodePayload(t *testing.T) {
	form := url.Values{"name": {"ada"}}
	type dto struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name     string
		method   string
		form     url.Values
		body     any
		wantBody string
		wantType string
	}{
		{"nothing", http.MethodGet, nil, nil, "", ""},
		{"form only", http.MethodPut, form, nil, "name=ada", ContentTypeForm},
		{"form wins on POST", http.MethodPost, form, dto{Name: "body"}, "name=ada", ContentTypeForm},
		{"body wins on PUT", http.MethodPut, form, dto{Name: "body"}, `{"name":"body"}`, ContentTypeJSON},
		{"body wins on PATCH", http.MethodPatch, form, "raw", "raw", ContentTypeText},
		{"struct", http.MethodPost, nil, dto{Name: "x"}, `{"name":"x"}`, ContentTypeJSON},
		{"map", http.MethodPost, nil, map[string]int{"a": 1}, `{"a":1}`, ContentTypeJSON},
		{"string", http.MethodPost, nil, "hello", "hello", ContentTypeText},
		{"bytes", http.MethodPost, nil, []byte{0x01, 0x02}, "\x01\x02", ContentTypeBinary},
		{"reader", http.MethodPost, nil, strings.NewReader("streamed"), "streamed", ContentTypeBinary},
		{"raw json", http.MethodPost, nil, json.RawMessage(`{"pre":"encoded"}`), `{"pre":"encoded"}`, ContentTypeJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := EncodePayload(tt.method, tt.form, tt.body)
			if err != nil {
				t.Fatalf("EncodePayload: %v", err)
			}
			if string(p.Body) != tt.wantBody || p.ContentType != tt.wantType {
				t.Errorf("got %q (%s), want %q (%s)", p.Body, p.ContentType, tt.wantBody, tt.wantType)
			}
		})
	}
}

func TestEncodePayload_UnencodableBody(t *testing.T) {
	_, err := EncodePayload(http.MethodPost, nil, map[string]any{"ch": make(chan int)})
	if err == nil {
		t.Fatal("expected an encoding error")
	}
}

func TestMergeQuery(t *testing.T) {
	tests := []struct {
		name   string
		uri    string
		params url.Values
		want   string
	}{
		{"no params", "http://api.test/users?z=1&a=2", nil, "z=1&a=2"},
		{"no existing query", "http://api.test/users", url.Values{"page": {"2"}}, "page=2"},
		{"appended", "http://api.test/users?active=true", url.Values{"page": {"2"}, "tag": {"a", "b"}}, "active=true&page=2&tag=a&tag=b"},
		{"existing order and escaping kept", "http://api.test/search?z=1&q=a%20b&a=x,y", url.Values{"page": {"3"}}, "z=1&q=a%20b&a=x,y&page=3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.uri)
			if err != nil {
				t.Fatal(err)
			}
			before := u.RawQuery
			got := mergeQuery(u, tt.params)
			if got.RawQuery != tt.want {
				t.Errorf("RawQuery = %q, want %q", got.RawQuery, tt.want)
			}
			if u.RawQuery != before {
				t.Error("mergeQuery modified its input")
			}
		})
	}
}

func TestMergeHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-Client", "request")
	h.Add("X-Multi", "1")
	h.Add("X-Multi", "2")

	got := mergeHeaders(map[string]string{"x-client": "default", "Accept": "application/json"}, h)
	if got.Get("X-Client") != "request" {
		t.Errorf("X-Client = %q, want request value", got.Get("X-Client"))
	}
	if got.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q, want default", got.Get("Accept"))
	}
	if len(got.Values("X-Multi")) != 2 {
		t.Errorf("X-Multi = %v", got.Values("X-Multi"))
	}
	got.Set("X-Client", "changed")
	if h.Get("X-Client") != "request" {
		t.Error("mergeHeaders aliases the request header")
	}
}
