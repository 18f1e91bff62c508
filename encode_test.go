package pgwire

import (
	"testing"
	"time"
)

func TestEncodeParamScalars(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"string", "hello", "hello"},
		{"bool true", true, "t"},
		{"bool false", false, "f"},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"float64", 3.5, "3.5"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			text, ok, err := encodeParam(c.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !ok {
				t.Fatal("expected ok=true")
			}
			if string(text) != c.want {
				t.Fatalf("got %q, want %q", text, c.want)
			}
		})
	}
}

func TestEncodeParamNil(t *testing.T) {
	text, ok, err := encodeParam(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || text != nil {
		t.Fatalf("encodeParam(nil) = (%v, %v), want (nil, false)", text, ok)
	}
}

func TestEncodeParamTime(t *testing.T) {
	tv := time.Date(2024, time.March, 5, 10, 30, 0, 0, time.UTC)
	text, ok, err := encodeParam(tv)
	if err != nil || !ok {
		t.Fatalf("encodeParam(time.Time) error=%v ok=%v", err, ok)
	}
	if string(text) != "2024-03-05 10:30:00Z" {
		t.Fatalf("got %q", text)
	}
}

func TestEncodeParamArray(t *testing.T) {
	text, ok, err := encodeParam([]int{1, 2, 3})
	if err != nil || !ok {
		t.Fatalf("encodeParam([]int) error=%v ok=%v", err, ok)
	}
	if string(text) != "{1,2,3}" {
		t.Fatalf("got %q, want {1,2,3}", text)
	}
}

func TestEncodeParamStringArrayQuotesElements(t *testing.T) {
	text, ok, err := encodeParam([]string{`a"b`, `c\d`})
	if err != nil || !ok {
		t.Fatalf("encodeParam([]string) error=%v ok=%v", err, ok)
	}
	want := `{"a\"b","c\\d"}`
	if string(text) != want {
		t.Fatalf("got %q, want %q", text, want)
	}
}

func TestEncodeParamRejectsUnsupportedType(t *testing.T) {
	type weird struct{ X int }
	_, _, err := encodeParam(weird{X: 1})
	if err == nil {
		t.Fatal("expected error for unsupported type")
	}
	if _, ok := err.(*InterfaceError); !ok {
		t.Fatalf("expected *InterfaceError, got %T", err)
	}
}

func TestEncodeParamBoolSlice(t *testing.T) {
	text, ok, err := encodeParam([]bool{true, false})
	if err != nil || !ok {
		t.Fatalf("encodeParam([]bool) error=%v ok=%v", err, ok)
	}
	if string(text) != "{t,f}" {
		t.Fatalf("got %q, want {t,f}", text)
	}
}
