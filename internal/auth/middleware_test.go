package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupMiddlewareTest() (*Manager, string, *APIKey) {
	store := NewMemoryStore()
	mgr := NewManager(store)
	rawKey, key, _ := mgr.GenerateKey(context.Background(), "agt_abc", "test-key")
	return mgr, rawKey, key
}

// --- Middleware() ---

func TestMiddleware_ValidKey_SetsContext(t *testing.T) {
	mgr, rawKey, _ := setupMiddlewareTest()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	c.Request.Header.Set("Authorization", rawKey)

	handler := Middleware(mgr)
	handler(c)

	// Should set agent ID
	id, exists := c.Get(ContextKeyAgentID)
	if !exists {
		t.Fatal("Expected agent ID to be set in context")
	}
	if id.(string) != "agt_abc" {
		t.Errorf("Expected agt_abc, got %s", id.(string))
	}

	// Should set API key object
	key, exists := c.Get(ContextKeyAPIKey)
	if !exists {
		t.Fatal("Expected API key to be set in context")
	}
	if key.(*APIKey).Name != "test-key" {
		t.Errorf("Expected key name 'test-key', got %s", key.(*APIKey).Name)
	}
}

func TestMiddleware_ValidKeyViaXAPIKey(t *testing.T) {
	mgr, rawKey, _ := setupMiddlewareTest()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	c.Request.Header.Set("X-API-Key", rawKey)

	Middleware(mgr)(c)

	if _, exists := c.Get(ContextKeyAgentID); !exists {
		t.Error("Expected agent ID set via X-API-Key header")
	}
}

func TestMiddleware_InvalidKey_DoesNotAbort(t *testing.T) {
	mgr, _, _ := setupMiddlewareTest()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	c.Request.Header.Set("Authorization", "sk_invalidkey000000000000000000000000000000000000000000000000000000")

	Middleware(mgr)(c)

	// Should NOT set context
	if _, exists := c.Get(ContextKeyAPIKey); exists {
		t.Error("Expected API key NOT to be set for invalid key")
	}

	// Should NOT abort (soft auth)
	if c.IsAborted() {
		t.Error("Middleware should not abort on invalid key")
	}
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 (pass-through), got %d", w.Code)
	}
}

func TestMiddleware_MissingHeader_PassesThrough(t *testing.T) {
	mgr, _, _ := setupMiddlewareTest()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)

	Middleware(mgr)(c)

	if _, exists := c.Get(ContextKeyAPIKey); exists {
		t.Error("Expected no API key in context when header missing")
	}
	if c.IsAborted() {
		t.Error("Middleware should not abort when header missing")
	}
}

func TestMiddleware_RevokedKey_DoesNotSetContext(t *testing.T) {
	mgr, rawKey, key := setupMiddlewareTest()
	_ = mgr.RevokeKey(context.Background(), key.ID, "agt_abc")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	c.Request.Header.Set("Authorization", rawKey)

	Middleware(mgr)(c)

	if _, exists := c.Get(ContextKeyAPIKey); exists {
		t.Error("Expected API key NOT to be set for revoked key")
	}
}

// --- RequireAuth() ---

func TestRequireAuth_Authenticated_Passes(t *testing.T) {
	mgr, rawKey, _ := setupMiddlewareTest()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", "/test", nil)
	c.Request.Header.Set("Authorization", rawKey)

	Middleware(mgr)(c)
	RequireAuth(mgr)(c)

	if c.IsAborted() {
		t.Error("RequireAuth should pass for authenticated request")
	}
}

func TestRequireAuth_Unauthenticated_Aborts(t *testing.T) {
	mgr, _, _ := setupMiddlewareTest()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", "/test", nil)

	RequireAuth(mgr)(c)

	if !c.IsAborted() {
		t.Error("RequireAuth should abort unauthenticated request")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

// --- RequireOwnership() ---

func TestRequireOwnership_Owner_Passes(t *testing.T) {
	mgr, rawKey, _ := setupMiddlewareTest()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("PUT", "/agents/agt_abc", nil)
	c.Request.Header.Set("Authorization", rawKey)
	c.Params = gin.Params{{Key: "id", Value: "agt_abc"}}

	Middleware(mgr)(c)
	RequireOwnership(mgr, "id")(c)

	if c.IsAborted() {
		t.Error("RequireOwnership should pass for the owner")
	}
}

func TestRequireOwnership_NotOwner_Forbidden(t *testing.T) {
	mgr, rawKey, _ := setupMiddlewareTest()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("PUT", "/agents/agt_other", nil)
	c.Request.Header.Set("Authorization", rawKey)
	c.Params = gin.Params{{Key: "id", Value: "agt_other"}}

	Middleware(mgr)(c)
	RequireOwnership(mgr, "id")(c)

	if !c.IsAborted() {
		t.Error("RequireOwnership should abort for non-owner")
	}
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", w.Code)
	}
}

func TestRequireOwnership_Unauthenticated_Unauthorized(t *testing.T) {
	mgr, _, _ := setupMiddlewareTest()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("PUT", "/agents/agt_abc", nil)
	c.Params = gin.Params{{Key: "id", Value: "agt_abc"}}

	RequireOwnership(mgr, "id")(c)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

// --- RequireAdmin() ---

func TestRequireAdmin_CorrectSecret_Passes(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", "/admin/test", nil)
	c.Request.Header.Set("X-Admin-Secret", "hunter2")

	RequireAdmin("hunter2")(c)

	if c.IsAborted() {
		t.Error("RequireAdmin should pass with correct secret")
	}
}

func TestRequireAdmin_WrongSecret_Forbidden(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", "/admin/test", nil)
	c.Request.Header.Set("X-Admin-Secret", "wrong")

	RequireAdmin("hunter2")(c)

	if !c.IsAborted() {
		t.Error("RequireAdmin should abort with wrong secret")
	}
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", w.Code)
	}
}

func TestRequireAdmin_NoSecretConfigured_Disabled(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", "/admin/test", nil)
	c.Request.Header.Set("X-Admin-Secret", "")

	RequireAdmin("")(c)

	if !c.IsAborted() {
		t.Error("RequireAdmin should abort when no secret configured")
	}
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", w.Code)
	}
}

// --- Helpers ---

func TestGetAuthenticatedAgent(t *testing.T) {
	mgr, rawKey, _ := setupMiddlewareTest()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	c.Request.Header.Set("Authorization", rawKey)

	Middleware(mgr)(c)

	if got := GetAuthenticatedAgent(c); got != "agt_abc" {
		t.Errorf("GetAuthenticatedAgent = %q, want agt_abc", got)
	}
	if !IsAuthenticated(c) {
		t.Error("IsAuthenticated should be true")
	}
}
