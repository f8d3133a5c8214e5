package groups

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/bylines/pkg/bylines/auth"
	"github.com/mikepea/bylines/pkg/bylines/identity"
	"github.com/mikepea/bylines/pkg/bylines/models"
	"github.com/mikepea/bylines/pkg/bylines/permalink"
	"github.com/mikepea/bylines/pkg/bylines/testutil"
	"gorm.io/gorm"
)

func setupTestRouter(db *gorm.DB, groupsEnabled bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	dir := identity.NewDirectory(db, permalink.NewBuilder("http://example.com", "users/group"), groupsEnabled)
	handler := NewHandler(db, dir)

	api := r.Group("/api", auth.AuthMiddleware())
	handler.RegisterEditorRoutes(api.Group("", auth.RequireCapability(auth.CapEditPosts)))

	groups := api.Group("/groups", auth.RequireCapability(auth.CapManageGroups))
	handler.RegisterRoutes(groups)
	handler.RegisterMemberRoutes(groups)

	return r
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.Email, string(user.Role))
	return "Bearer " + token
}

func doRequest(router *gin.Engine, method, path string, body any, user *models.User) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		buf = bytes.NewBuffer(jsonBody)
	} else {
		buf = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", getAuthHeader(*user))
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestUserGroups(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router := setupTestRouter(db, true)
	author := fx.CreateUser("Author", models.RoleAuthor)
	fx.CreateGroup("Reviewers", "reviewers")
	fx.CreateGroup("<b>Editors</b>", "editors")

	resp := doRequest(router, "GET", "/api/user-groups", nil, &author)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var groups []GroupResponse
	json.Unmarshal(resp.Body.Bytes(), &groups)

	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}
	if groups[0].Name != "Editors" {
		t.Errorf("Expected sanitized name Editors first, got %s", groups[0].Name)
	}
	if groups[1].Slug != "reviewers" {
		t.Errorf("Expected reviewers second, got %s", groups[1].Slug)
	}
}

func TestUserGroupsRequiresEditCapability(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router := setupTestRouter(db, true)
	subscriber := fx.CreateUser("Reader", models.RoleSubscriber)

	resp := doRequest(router, "GET", "/api/user-groups", nil, &subscriber)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}

	resp = doRequest(router, "GET", "/api/user-groups", nil, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestUserGroupsUnavailable(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router := setupTestRouter(db, false)
	editor := fx.CreateUser("Editor", models.RoleEditor)

	for _, path := range []string{"/api/user-groups", "/api/current-user-groups", "/api/groups"} {
		resp := doRequest(router, "GET", path, nil, &editor)
		if resp.Code != http.StatusNotFound {
			t.Errorf("%s: Expected status 404, got %d", path, resp.Code)
			continue
		}

		var body RESTError
		json.Unmarshal(resp.Body.Bytes(), &body)
		if body.Code != "user_groups_not_found" {
			t.Errorf("%s: Expected code user_groups_not_found, got %q", path, body.Code)
		}
		if body.Data.Status != http.StatusNotFound {
			t.Errorf("%s: Expected data.status 404, got %d", path, body.Data.Status)
		}
	}
}

func TestCurrentUserGroups(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router := setupTestRouter(db, true)
	author := fx.CreateUser("Author", models.RoleAuthor)
	mine := fx.CreateGroup("Mine", "mine")
	fx.CreateGroup("Theirs", "theirs")
	fx.AddMember(mine.ID, author.ID)

	resp := doRequest(router, "GET", "/api/current-user-groups", nil, &author)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var groups []GroupResponse
	json.Unmarshal(resp.Body.Bytes(), &groups)
	if len(groups) != 1 || groups[0].ID != mine.ID {
		t.Errorf("Expected only group %d, got %+v", mine.ID, groups)
	}
}

func TestCreateGroup(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router := setupTestRouter(db, true)
	editor := fx.CreateUser("Editor", models.RoleEditor)

	resp := doRequest(router, "POST", "/api/groups", CreateGroupRequest{Name: "Night Desk", Description: "late shift"}, &editor)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var response GroupDetailResponse
	json.Unmarshal(resp.Body.Bytes(), &response)
	if response.Slug != "night-desk" {
		t.Errorf("Expected slug night-desk, got %s", response.Slug)
	}

	resp = doRequest(router, "POST", "/api/groups", CreateGroupRequest{Name: "Night Desk"}, &editor)
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for duplicate slug, got %d", resp.Code)
	}
}

func TestCreateGroupRequiresManageGroups(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router := setupTestRouter(db, true)
	author := fx.CreateUser("Author", models.RoleAuthor)

	resp := doRequest(router, "POST", "/api/groups", CreateGroupRequest{Name: "Mine"}, &author)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}
}

func TestUpdateAndDeleteGroup(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router := setupTestRouter(db, true)
	editor := fx.CreateUser("Editor", models.RoleEditor)
	group := fx.CreateGroup("Desk", "desk")
	fx.AddMember(group.ID, editor.ID)

	resp := doRequest(router, "PUT", fmt.Sprintf("/api/groups/%d", group.ID), UpdateGroupRequest{Name: "News Desk", Slug: "news"}, &editor)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var updated GroupDetailResponse
	json.Unmarshal(resp.Body.Bytes(), &updated)
	if updated.Name != "News Desk" || updated.Slug != "news" {
		t.Errorf("Expected News Desk/news, got %s/%s", updated.Name, updated.Slug)
	}
	if updated.MemberCount != 1 {
		t.Errorf("Expected 1 member, got %d", updated.MemberCount)
	}

	resp = doRequest(router, "DELETE", fmt.Sprintf("/api/groups/%d", group.ID), nil, &editor)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}

	var count int64
	db.Model(&models.GroupMembership{}).Where("group_id = ?", group.ID).Count(&count)
	if count != 0 {
		t.Errorf("Expected memberships to be removed, got %d", count)
	}

	resp = doRequest(router, "GET", fmt.Sprintf("/api/groups/%d", group.ID), nil, &editor)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", resp.Code)
	}
}

func TestMembers(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router := setupTestRouter(db, true)
	editor := fx.CreateUser("Editor", models.RoleEditor)
	ada := fx.CreateUser("Ada", models.RoleAuthor)
	group := fx.CreateGroup("Desk", "desk")
	path := fmt.Sprintf("/api/groups/%d/members", group.ID)

	resp := doRequest(router, "POST", path, AddMemberRequest{Email: ada.Email}, &editor)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doRequest(router, "POST", path, AddMemberRequest{UserID: ada.ID}, &editor)
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.Code)
	}

	resp = doRequest(router, "POST", path, AddMemberRequest{}, &editor)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}

	resp = doRequest(router, "GET", path, nil, &editor)
	var members []MemberResponse
	json.Unmarshal(resp.Body.Bytes(), &members)
	if len(members) != 1 || members[0].ID != ada.ID {
		t.Fatalf("Expected ada as only member, got %+v", members)
	}

	resp = doRequest(router, "DELETE", fmt.Sprintf("%s/%d", path, ada.ID), nil, &editor)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Code)
	}

	resp = doRequest(router, "DELETE", fmt.Sprintf("%s/%d", path, ada.ID), nil, &editor)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}
