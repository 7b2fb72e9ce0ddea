package upstream

import (
	"errors"
	"testing"
)

type row struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func TestDecodeListBareArray(t *testing.T) {
	rows, warning, err := DecodeList[row]([]byte(`[{"id":"a"},{"id":"b"}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if warning != "" {
		t.Fatalf("warning = %q", warning)
	}
	if len(rows) != 2 || rows[0].ID != "a" || rows[1].ID != "b" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestDecodeListEnvelopeArray(t *testing.T) {
	rows, warning, err := DecodeList[row]([]byte(`{"data":[{"id":"a"}],"warning":"v1 endpoint is deprecated"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if warning != "v1 endpoint is deprecated" {
		t.Fatalf("warning = %q", warning)
	}
	if len(rows) != 1 || rows[0].ID != "a" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestDecodeListEnvelopeSingleObject(t *testing.T) {
	rows, _, err := DecodeList[row]([]byte(`{"data":{"id":"solo"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "solo" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestDecodeListEmptyBody(t *testing.T) {
	rows, _, err := DecodeList[row](nil)
	if err != nil || len(rows) != 0 {
		t.Fatalf("rows = %+v, err = %v", rows, err)
	}
}

func TestDecodeListShapeFailure(t *testing.T) {
	for _, body := range []string{`"just a string"`, `42`, `{"items":[]}`, `{not json`} {
		rows, _, err := DecodeList[row]([]byte(body))
		if !errors.Is(err, ErrShape) {
			t.Fatalf("body %q: err = %v, want ErrShape", body, err)
		}
		if rows == nil || len(rows) != 0 {
			t.Fatalf("body %q: rows = %v, want empty fallback", body, rows)
		}
	}
}

func TestDecodeOneEnvelopeObject(t *testing.T) {
	one, warning, err := DecodeOne[row]([]byte(`{"data":{"id":"a","title":"T"},"warning":"w"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if one == nil || one.ID != "a" || one.Title != "T" {
		t.Fatalf("one = %+v", one)
	}
	if warning != "w" {
		t.Fatalf("warning = %q", warning)
	}
}

func TestDecodeOneBareObject(t *testing.T) {
	one, _, err := DecodeOne[row]([]byte(`{"id":"a"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if one == nil || one.ID != "a" {
		t.Fatalf("one = %+v", one)
	}
}

func TestDecodeOneEnvelopeArrayTakesFirst(t *testing.T) {
	one, _, err := DecodeOne[row]([]byte(`{"data":[{"id":"first"},{"id":"second"}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if one == nil || one.ID != "first" {
		t.Fatalf("one = %+v", one)
	}

	one, _, err = DecodeOne[row]([]byte(`{"data":[]}`))
	if err != nil || one != nil {
		t.Fatalf("empty data array: one = %+v, err = %v", one, err)
	}
}

func TestDecodeOneNull(t *testing.T) {
	for _, body := range []string{``, `null`, `{"data":null}`} {
		one, _, err := DecodeOne[row]([]byte(body))
		if err != nil || one != nil {
			t.Fatalf("body %q: one = %+v, err = %v", body, one, err)
		}
	}
}

func TestDecodeOneShapeFailure(t *testing.T) {
	one, _, err := DecodeOne[row]([]byte(`[1,2,3]`))
	if !errors.Is(err, ErrShape) {
		t.Fatalf("err = %v, want ErrShape", err)
	}
	if one != nil {
		t.Fatalf("one = %+v, want nil fallback", one)
	}
}

// Precedence: a body that parses as a bare array must not be reinterpreted
// through the envelope path even if elements resemble envelopes.
func TestDecodeListPrecedence(t *testing.T) {
	type loose struct {
		Data    string `json:"data"`
		Warning string `json:"warning"`
	}
	rows, warning, err := DecodeList[loose]([]byte(`[{"data":"x","warning":"y"}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if warning != "" {
		t.Fatalf("warning = %q; bare array shape carries none", warning)
	}
	if len(rows) != 1 || rows[0].Data != "x" {
		t.Fatalf("rows = %+v", rows)
	}
}
