package security

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectError bool
	}{
		{name: "Plain", input: "alice-42", expectError: false},
		{name: "Unicode", input: "zoë", expectError: false},
		{name: "Empty", input: "", expectError: true},
		{name: "Too long", input: strings.Repeat("a", MaxUserIDLength+1), expectError: true},
		{name: "HTML characters", input: "<script>", expectError: true},
		{name: "Path traversal", input: "a..b", expectError: true},
		{name: "Slash", input: "a/b", expectError: true},
		{name: "Null byte", input: "a\x00b", expectError: true},
		{name: "Control", input: "a\tb", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.input)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrInvalidUserID)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditLogger(zerolog.New(&buf))

	a.LogAuditEntry(AuditEntry{
		UserID:    "admin",
		Operation: "round.create",
		Resource:  "r1",
		IPAddress: "10.0.0.1",
		Success:   true,
	})
	a.LogAuditEntry(AuditEntry{
		UserID:    "bob",
		Operation: "claim",
		Resource:  "r1",
		Success:   false,
		Reason:    "eliminated",
	})

	out := buf.String()
	assert.Contains(t, out, `"component":"security_audit"`)
	assert.Contains(t, out, `"operation":"round.create"`)
	assert.Contains(t, out, `"status":"success"`)
	assert.Contains(t, out, `"reason":"eliminated"`)
	assert.Contains(t, out, `"status":"failed"`)
}

func TestHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Headers())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
}
