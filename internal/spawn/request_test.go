package spawn

import (
	"errors"
	"reflect"
	"testing"
)

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"command only", Request{Command: "true"}, false},
		{"full", Request{Command: "sh", Dir: "/tmp", Argv: []string{"sh", "-c", ""}, Env: []string{"A=1"}}, false},
		{"empty command", Request{}, true},
		{"nul in command", Request{Command: "tr\x00ue"}, true},
		{"nul in dir", Request{Command: "true", Dir: "/t\x00mp"}, true},
		{"nul in argv", Request{Command: "echo", Argv: []string{"echo", "\x00"}}, true},
		{"nul in env", Request{Command: "true", Env: []string{"A=\x00"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestRequest_DefaultArgv(t *testing.T) {
	req := Request{Command: "/bin/true"}
	if got := req.argv(); !reflect.DeepEqual(got, []string{"/bin/true"}) {
		t.Errorf("expected argv [/bin/true], got %v", got)
	}

	req.Argv = []string{"custom-name", "x"}
	if got := req.argv(); !reflect.DeepEqual(got, req.Argv) {
		t.Errorf("expected argv to be used verbatim, got %v", got)
	}
}

func TestEncodeRequest_RoundTrip(t *testing.T) {
	req := Request{
		Command: "printf",
		Dir:     "",
		Argv:    []string{"printf", "%s\n", "", "3"},
		Env:     []string{"PATH=/bin", "EMPTY="},
	}
	got, err := decodeRequest(req.encode())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, req) {
		t.Errorf("decoded %+v, want %+v", got, req)
	}
}

func TestEncodeRequest_EmptyEnv(t *testing.T) {
	got, err := decodeRequest(Request{Command: "true", Dir: "/tmp"}.encode())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Env) != 0 {
		t.Errorf("expected no environment, got %v", got.Env)
	}
	if !reflect.DeepEqual(got.Argv, []string{"true"}) {
		t.Errorf("expected argv [true], got %v", got.Argv)
	}
	if got.Dir != "/tmp" {
		t.Errorf("expected dir /tmp, got %q", got.Dir)
	}
}

func TestDecodeRequest_Malformed(t *testing.T) {
	for _, data := range []string{
		"",
		"\x00cmd",
		"\x00cmd\x00",
		"\x00cmd\x00x\x00",
		"\x00cmd\x00-1\x00",
		"\x00cmd\x002\x00only-one\x00",
	} {
		if _, err := decodeRequest([]byte(data)); err == nil {
			t.Errorf("expected error for %q", data)
		}
	}
}
