package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamspace/backend/pkg/apperr"
)

func TestError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
		wantCode   string
	}{
		{"unauthorized", apperr.Unauthorized("invalid or expired token"), http.StatusUnauthorized, "invalid or expired token", "unauthorized"},
		{"wrapped forbidden", fmt.Errorf("guard: %w", apperr.Forbidden("insufficient permissions")), http.StatusForbidden, "insufficient permissions", "forbidden"},
		{"conflict", apperr.Conflict("role has members"), http.StatusConflict, "role has members", "conflict"},
		{"internal is masked", errors.New("pq: relation users does not exist"), http.StatusInternalServerError, "internal server error", "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			Error(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body Body
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantMsg, body.Error)
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}
