package bytescodec

import "testing"

func TestRoundTrip(t *testing.T) {
	c := Codec{}
	want := []byte("hello world")

	needed, err := c.Encode(want, nil)
	if err != nil {
		t.Fatal(err)
	}
	if needed != len(want) {
		t.Fatalf("needed = %d, want %d", needed, len(want))
	}

	buf := make([]byte, needed)
	n, err := c.Encode(want, buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != needed {
		t.Fatalf("n = %d, want %d", n, needed)
	}

	got, err := c.Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}

	// Decode must not alias its input.
	buf[0] = 'X'
	if got[0] == 'X' {
		t.Fatal("Decode aliased its input slice")
	}
}

func TestEncodeTooSmallDestinationLeavesItUntouched(t *testing.T) {
	c := Codec{}
	value := []byte("abc")
	out := make([]byte, 1)
	needed, err := c.Encode(value, out)
	if err != nil {
		t.Fatal(err)
	}
	if needed != 3 {
		t.Fatalf("needed = %d, want 3", needed)
	}
	if out[0] != 0 {
		t.Fatalf("out = %q, want it untouched", out)
	}
}
