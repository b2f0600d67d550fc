package web

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/docmine/server/internal/store"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("get webhook: %w", store.ErrNotFound), http.StatusNotFound},
		{store.ErrDuplicateSKU, http.StatusConflict},
		{store.ErrDuplicateEmail, http.StatusConflict},
		{ErrTooManyUploads, http.StatusTooManyRequests},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
