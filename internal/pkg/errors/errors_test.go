package errors

import (
	"errors"
	"testing"
)

func TestUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Unavailable("lrange user:queries:u1", cause)
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("err=%v should match both sentinel and cause", err)
	}
	if got, want := err.Error(), "lrange user:queries:u1: unavailable: dial tcp: refused"; got != want {
		t.Fatalf("message: got=%q want=%q", got, want)
	}
	if Unavailable("op", nil) != nil {
		t.Fatalf("nil cause must stay nil")
	}
}

func TestInvalidf(t *testing.T) {
	err := Invalidf("unknown stage %q", "x")
	if !errors.Is(err, ErrInvalidArgument) || err.Error() != `invalid argument: unknown stage "x"` {
		t.Fatalf("got=%v", err)
	}
}
