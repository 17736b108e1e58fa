package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pathakanu/remindbot/internal/schedule"
	"github.com/pathakanu/remindbot/internal/store"
)

func TestClassify(t *testing.T) {
	malformed := fmt.Errorf("%w: %w", store.ErrInvalidSchedule, schedule.ErrMalformedRule)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("reminder 4: %w", store.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{store.ErrForbidden, http.StatusForbidden, CodeForbidden},
		{malformed, http.StatusBadRequest, CodeMalformedRule},
		{store.ErrInvalidSchedule, http.StatusBadRequest, CodeInvalidSchedule},
		{fmt.Errorf("next: %w", schedule.ErrNoOccurrence), http.StatusUnprocessableEntity, CodeNoOccurrence},
		{store.ErrValidation, http.StatusBadRequest, CodeValidation},
		{store.ErrConflict, http.StatusConflict, CodeConflict},
		{errors.New("disk full"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tc := range cases {
		status, code := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}
