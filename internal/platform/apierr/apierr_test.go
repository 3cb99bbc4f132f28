package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	pkgerrors "github.com/yungbote/vizflow-backend/internal/pkg/errors"
)

func TestFromClassifies(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid", pkgerrors.Invalidf("userId required"), http.StatusBadRequest, "invalid_argument"},
		{"not found", fmt.Errorf("get: %w", pkgerrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{"unavailable", pkgerrors.Unavailable("enqueue", errors.New("refused")), http.StatusServiceUnavailable, "unavailable"},
		{"explicit", fmt.Errorf("wrap: %w", New(http.StatusConflict, "", errors.New("dup"))), http.StatusConflict, "submit_failed"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "submit_failed"},
	}
	for _, tc := range cases {
		got := From(tc.err, "submit_failed")
		if got.Status != tc.status || got.Code != tc.code {
			t.Fatalf("%s: got=%d/%s want=%d/%s", tc.name, got.Status, got.Code, tc.status, tc.code)
		}
		if !errors.Is(got, tc.err) {
			t.Fatalf("%s: classified error must wrap the original", tc.name)
		}
	}
}
