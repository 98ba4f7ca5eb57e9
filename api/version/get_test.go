package version

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tianzhicdev/dogetionary-sub008/api/types"
)

func TestGet(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name        string
		deps        *types.Dependencies
		wantVersion string
	}{
		{"with build version", &types.Dependencies{Version: "1.4.0"}, "1.4.0"},
		{"without dependencies", nil, "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			Get(tt.deps)(c)

			assert.Equal(t, http.StatusOK, w.Code)
			var response types.VersionResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.wantVersion, response.Version)
			assert.Equal(t, "running", response.Status)
		})
	}
}
