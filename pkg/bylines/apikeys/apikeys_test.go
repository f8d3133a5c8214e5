package apikeys

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/bylines/pkg/bylines/auth"
	"github.com/mikepea/bylines/pkg/bylines/models"
	"github.com/mikepea/bylines/pkg/bylines/testutil"
	"gorm.io/gorm"
)

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(db)

	api := r.Group("/api")
	handler.RegisterRoutes(api.Group("", auth.AuthMiddleware()))

	protected := api.Group("/protected", CombinedAuthMiddleware(db), auth.RequireCapability(auth.CapEditPosts))
	protected.GET("", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})

	api.GET("/public", OptionalAuthMiddleware(db), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"anonymous": auth.GetPrincipal(c).IsAnonymous()})
	})
	return r
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.Email, string(user.Role))
	return "Bearer " + token
}

func doRequest(router *gin.Engine, method, path, authorization string, body any) *httptest.ResponseRecorder {
	buf := &bytes.Buffer{}
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		buf = bytes.NewBuffer(jsonBody)
	}
	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func createKey(t *testing.T, router *gin.Engine, user models.User, name string) CreateAPIKeyResponse {
	t.Helper()
	resp := doRequest(router, "POST", "/api/api-keys", getAuthHeader(user), CreateAPIKeyRequest{Name: name})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created CreateAPIKeyResponse
	json.Unmarshal(resp.Body.Bytes(), &created)
	return created
}

func TestCreateAPIKey(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router := setupTestRouter(db)
	user := fx.CreateUser("Importer", models.RoleEditor)

	created := createKey(t, router, user, "nightly import")

	if len(created.Key) != KeyLength*2 {
		t.Errorf("Expected %d character key, got %d", KeyLength*2, len(created.Key))
	}
	if created.KeyPrefix != created.Key[:KeyPrefixLength] {
		t.Errorf("Expected prefix %s, got %s", created.Key[:KeyPrefixLength], created.KeyPrefix)
	}

	var stored models.APIKey
	db.First(&stored, created.ID)
	if stored.KeyHash == created.Key {
		t.Error("Expected key to be stored hashed")
	}
}

func TestListAPIKeysHidesKey(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router := setupTestRouter(db)
	user := fx.CreateUser("Importer", models.RoleEditor)
	other := fx.CreateUser("Other", models.RoleEditor)

	createKey(t, router, user, "one")
	createKey(t, router, user, "two")
	createKey(t, router, other, "not mine")

	resp := doRequest(router, "GET", "/api/api-keys", getAuthHeader(user), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	if bytes.Contains(resp.Body.Bytes(), []byte(`"key"`)) {
		t.Error("Expected full keys to be absent from the list")
	}

	var keys []APIKeyResponse
	json.Unmarshal(resp.Body.Bytes(), &keys)
	if len(keys) != 2 {
		t.Errorf("Expected 2 keys, got %d", len(keys))
	}
}

func TestAPIKeyAuthenticates(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router := setupTestRouter(db)
	editor := fx.CreateUser("Editor", models.RoleEditor)
	created := createKey(t, router, editor, "script")

	resp := doRequest(router, "GET", "/api/protected", "Bearer "+created.Key, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body map[string]uint
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body["user_id"] != editor.ID {
		t.Errorf("Expected user %d, got %d", editor.ID, body["user_id"])
	}

	var stored models.APIKey
	db.First(&stored, created.ID)
	if stored.LastUsedAt == nil {
		t.Error("Expected last_used_at to be recorded")
	}

	// JWTs keep working through the same middleware
	resp = doRequest(router, "GET", "/api/protected", getAuthHeader(editor), nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200 for JWT, got %d", resp.Code)
	}
}

func TestAPIKeyUsesCurrentRole(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router := setupTestRouter(db)
	user := fx.CreateUser("Demoted", models.RoleEditor)
	created := createKey(t, router, user, "script")

	db.Model(&user).Update("role", models.RoleSubscriber)

	resp := doRequest(router, "GET", "/api/protected", "Bearer "+created.Key, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 after demotion, got %d", resp.Code)
	}
}

func TestInvalidCredentials(t *testing.T) {
	db := testutil.NewDB(t)
	router := setupTestRouter(db)

	tests := []struct {
		name          string
		authorization string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic abc"},
		{"unknown key", "Bearer deadbeef"},
		{"bad jwt", "Bearer a.b.c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(router, "GET", "/api/protected", tt.authorization, nil)
			if resp.Code != http.StatusUnauthorized {
				t.Errorf("Expected status 401, got %d", resp.Code)
			}
		})
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router := setupTestRouter(db)
	user := fx.CreateUser("Reader", models.RoleSubscriber)
	created := createKey(t, router, user, "reader")

	tests := []struct {
		authorization string
		anonymous     bool
	}{
		{"", true},
		{"Bearer nonsense", true},
		{"Bearer " + created.Key, false},
	}
	for _, tt := range tests {
		resp := doRequest(router, "GET", "/api/public", tt.authorization, nil)
		if resp.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.Code)
			continue
		}
		var body map[string]bool
		json.Unmarshal(resp.Body.Bytes(), &body)
		if body["anonymous"] != tt.anonymous {
			t.Errorf("%q: Expected anonymous=%v, got %v", tt.authorization, tt.anonymous, body["anonymous"])
		}
	}
}

func TestDeleteAPIKey(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router := setupTestRouter(db)
	user := fx.CreateUser("Importer", models.RoleEditor)
	other := fx.CreateUser("Other", models.RoleEditor)
	created := createKey(t, router, user, "revoke me")

	path := fmt.Sprintf("/api/api-keys/%d", created.ID)
	if resp := doRequest(router, "DELETE", path, getAuthHeader(other), nil); resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for someone else's key, got %d", resp.Code)
	}

	resp := doRequest(router, "DELETE", path, getAuthHeader(user), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}

	resp = doRequest(router, "GET", "/api/protected", "Bearer "+created.Key, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected revoked key to be rejected, got %d", resp.Code)
	}
}
