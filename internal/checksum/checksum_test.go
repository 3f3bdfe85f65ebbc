package checksum

import "testing"

func TestSum(t *testing.T) {
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != empty {
		t.Errorf("Sum(nil) = %q, want %q", got, empty)
	}
	if Sum([]byte("a")) == Sum([]byte("b")) {
		t.Error("different input, same digest")
	}
}

func TestShort(t *testing.T) {
	sum := Sum([]byte("library"))
	if got := Short(sum); got != sum[:12] {
		t.Errorf("Short = %q", got)
	}
	if got := Short("abc"); got != "abc" {
		t.Errorf("Short(abc) = %q", got)
	}
}
