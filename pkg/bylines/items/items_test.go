package items

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/bylines/pkg/bylines/assignment"
	"github.com/mikepea/bylines/pkg/bylines/auth"
	"github.com/mikepea/bylines/pkg/bylines/byline"
	"github.com/mikepea/bylines/pkg/bylines/identity"
	"github.com/mikepea/bylines/pkg/bylines/listing"
	"github.com/mikepea/bylines/pkg/bylines/models"
	"github.com/mikepea/bylines/pkg/bylines/permalink"
	"github.com/mikepea/bylines/pkg/bylines/reverseindex"
	"github.com/mikepea/bylines/pkg/bylines/testutil"
	"gorm.io/gorm"
)

func setupTestRouter(db *gorm.DB) (*gin.Engine, *assignment.Store) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	links := permalink.NewBuilder("http://example.com", "users/group")
	dir := identity.NewDirectory(db, links, true)
	store := assignment.NewStore(db, []string{"post"})
	engine := byline.NewEngine(dir, store, links)
	links.Use(engine.AuthorLinkFilter)

	listings := listing.NewEngine(db)
	listings.Use(listing.LoopFilter(reverseindex.NewFinder(db, reverseindex.StrategyIndex)))

	handler := NewHandler(db, store, engine, listings)
	handler.RegisterRoutes(r.Group("/api/items"))
	return r, store
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

func TestCreateItemAssignsCreator(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router, _ := setupTestRouter(db)
	author := fx.CreateUser("Ada Lovelace", models.RoleAuthor)

	resp := doRequest(router, "POST", "/api/items", CreateItemRequest{Type: "post", Title: "Notes on the Engine", Status: "publish"}, &author)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var item ItemResponse
	json.Unmarshal(resp.Body.Bytes(), &item)

	if item.Slug != "notes-on-the-engine" {
		t.Errorf("Expected generated slug, got %s", item.Slug)
	}
	if item.Authors == nil {
		t.Fatal("Expected a default assignment")
	}
	if len(item.Authors.Users) != 1 || item.Authors.Users[0] != author.ID {
		t.Errorf("Expected selected users [%d], got %v", author.ID, item.Authors.Users)
	}
	if len(item.Authors.Order) != 1 || item.Authors.Order[0] != fmt.Sprintf("user-%d", author.ID) {
		t.Errorf("Expected order [user-%d], got %v", author.ID, item.Authors.Order)
	}
	if item.Byline.Display != "Ada Lovelace" {
		t.Errorf("Expected byline Ada Lovelace, got %s", item.Byline.Display)
	}
	if item.Byline.Link != fmt.Sprintf("http://example.com/author/%d", author.ID) {
		t.Errorf("Unexpected byline link %s", item.Byline.Link)
	}
}

func TestCreateItemUnsupportedTypeHasNoAssignment(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router, _ := setupTestRouter(db)
	author := fx.CreateUser("Author", models.RoleAuthor)

	resp := doRequest(router, "POST", "/api/items", CreateItemRequest{Type: "page", Title: "About"}, &author)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var item ItemResponse
	json.Unmarshal(resp.Body.Bytes(), &item)
	if item.Authors != nil {
		t.Errorf("Expected no assignment for page, got %+v", item.Authors)
	}
	if item.Status != "draft" {
		t.Errorf("Expected default status draft, got %s", item.Status)
	}
}

func TestCreateItemRequiresEditCapability(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router, _ := setupTestRouter(db)
	subscriber := fx.CreateUser("Reader", models.RoleSubscriber)

	resp := doRequest(router, "POST", "/api/items", CreateItemRequest{Type: "post", Title: "Nope"}, &subscriber)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}

	resp = doRequest(router, "POST", "/api/items", CreateItemRequest{Type: "post", Title: "Nope"}, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestPutAssignmentUpdatesByline(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router, _ := setupTestRouter(db)
	editor := fx.CreateUser("Editor", models.RoleEditor)
	writer := fx.CreateUser("Grace Hopper", models.RoleAuthor)
	group := fx.CreateGroup("Reviewers", "reviewers")
	item := fx.CreateItem("post", models.StatusPublish, "Compilers", editor.ID)

	body := map[string]any{
		"selected_users":  []any{fmt.Sprint(writer.ID)},
		"selected_groups": []any{float64(group.ID)},
		"selected_order":  []any{fmt.Sprintf("group-%d", group.ID), fmt.Sprintf("user-%d", writer.ID)},
	}
	resp := doRequest(router, "PUT", fmt.Sprintf("/api/items/%d/assignment", item.ID), body, &editor)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var a assignment.Assignment
	json.Unmarshal(resp.Body.Bytes(), &a)
	if len(a.Users) != 1 || a.Users[0] != writer.ID {
		t.Errorf("Expected coerced user id %d, got %v", writer.ID, a.Users)
	}

	resp = doRequest(router, "GET", fmt.Sprintf("/api/items/%d/byline", item.ID), nil, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	var b byline.Byline
	json.Unmarshal(resp.Body.Bytes(), &b)
	if b.Display != "Reviewers and Grace Hopper" {
		t.Errorf("Expected ordered byline, got %q", b.Display)
	}
	if b.Link != "http://example.com/users/group/reviewers" {
		t.Errorf("Expected group archive link, got %s", b.Link)
	}
}

func TestPutAssignmentPartialUpdate(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router, store := setupTestRouter(db)
	editor := fx.CreateUser("Editor", models.RoleEditor)
	item := fx.CreateItem("post", models.StatusPublish, "Partial", editor.ID)

	path := fmt.Sprintf("/api/items/%d/assignment", item.ID)
	doRequest(router, "PUT", path, map[string]any{"selected_users": []any{editor.ID}}, &editor)
	resp := doRequest(router, "PUT", path, map[string]any{"selected_order": []any{"user-99"}}, &editor)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	a, err := store.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(a.Users) != 1 || a.Users[0] != editor.ID {
		t.Errorf("Expected users untouched, got %v", a.Users)
	}
	if len(a.Order) != 1 || a.Order[0] != "user-99" {
		t.Errorf("Expected order replaced, got %v", a.Order)
	}
}

func TestPutAssignmentPermissions(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router, _ := setupTestRouter(db)
	owner := fx.CreateUser("Owner", models.RoleAuthor)
	other := fx.CreateUser("Contributor", models.RoleContributor)
	subscriber := fx.CreateUser("Reader", models.RoleSubscriber)
	item := fx.CreateItem("post", models.StatusPublish, "Mine", owner.ID)
	page := fx.CreateItem("page", models.StatusPublish, "About", owner.ID)

	path := fmt.Sprintf("/api/items/%d/assignment", item.ID)
	body := map[string]any{"selected_users": []any{other.ID}}

	tests := []struct {
		name string
		path string
		user *models.User
		want int
	}{
		{"anonymous", path, nil, http.StatusUnauthorized},
		{"subscriber", path, &subscriber, http.StatusForbidden},
		{"not owner", path, &other, http.StatusForbidden},
		{"owner", path, &owner, http.StatusOK},
		{"unsupported type", fmt.Sprintf("/api/items/%d/assignment", page.ID), &owner, http.StatusBadRequest},
		{"missing item", "/api/items/9999/assignment", &owner, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(router, "PUT", tt.path, body, tt.user)
			if resp.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestGetAssignmentOfDraftIsHidden(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router, _ := setupTestRouter(db)
	author := fx.CreateUser("Author", models.RoleAuthor)
	draft := fx.CreateItem("post", models.StatusDraft, "WIP", author.ID)

	path := fmt.Sprintf("/api/items/%d/assignment", draft.ID)
	if resp := doRequest(router, "GET", path, nil, nil); resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for anonymous, got %d", resp.Code)
	}

	resp := doRequest(router, "GET", path, nil, &author)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	var a assignment.Assignment
	json.Unmarshal(resp.Body.Bytes(), &a)
	if a.Users == nil || a.Groups == nil || a.Order == nil {
		t.Errorf("Expected empty sequences, got %+v", a)
	}
}

func TestListFiltersByGroupWithinInclude(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router, store := setupTestRouter(db)
	admin := fx.CreateUser("Admin", models.RoleAdministrator)
	group := fx.CreateGroup("Desk", "desk")
	principal := auth.Principal{UserID: admin.ID, Role: admin.Role}

	var ids []uint
	for i := 0; i < 4; i++ {
		item := fx.CreateItem("post", models.StatusPublish, fmt.Sprintf("Story %d", i), admin.ID)
		ids = append(ids, item.ID)
	}
	for _, id := range []uint{ids[1], ids[3]} {
		_, err := store.Set(context.Background(), principal, id, assignment.Patch{Groups: []any{group.ID}})
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	path := fmt.Sprintf("/api/items?authors_filter=group-%d&include=%d,%d,%d", group.ID, ids[0], ids[1], ids[2])
	resp := doRequest(router, "GET", path, nil, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var list ListResponse
	json.Unmarshal(resp.Body.Bytes(), &list)
	if list.Count != 1 || list.Items[0].ID != ids[1] {
		t.Errorf("Expected only item %d, got %+v", ids[1], list.Items)
	}
}

func TestListUnmatchedFilterIsEmpty(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router, _ := setupTestRouter(db)
	author := fx.CreateUser("Author", models.RoleAuthor)
	fx.CreateItem("post", models.StatusPublish, "Unassigned", author.ID)

	resp := doRequest(router, "GET", "/api/items?authors_filter=user-4242", nil, nil)
	var list ListResponse
	json.Unmarshal(resp.Body.Bytes(), &list)
	if list.Count != 0 {
		t.Errorf("Expected no items, got %d", list.Count)
	}

	resp = doRequest(router, "GET", "/api/items?authors_filter=bogus", nil, nil)
	json.Unmarshal(resp.Body.Bytes(), &list)
	if list.Count != 1 {
		t.Errorf("Expected malformed filter to be ignored, got %d items", list.Count)
	}
}

func TestListUnpublishedNeedsEditor(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router, _ := setupTestRouter(db)
	author := fx.CreateUser("Author", models.RoleAuthor)
	fx.CreateItem("post", models.StatusDraft, "WIP", author.ID)

	if resp := doRequest(router, "GET", "/api/items?status=draft", nil, nil); resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}

	resp := doRequest(router, "GET", "/api/items?status=draft", nil, &author)
	var list ListResponse
	json.Unmarshal(resp.Body.Bytes(), &list)
	if list.Count != 1 {
		t.Errorf("Expected 1 draft, got %d", list.Count)
	}
}

func TestPreviewMatchesList(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router, store := setupTestRouter(db)
	admin := fx.CreateUser("Admin", models.RoleAdministrator)
	writer := fx.CreateUser("Writer", models.RoleAuthor)
	principal := auth.Principal{UserID: admin.ID, Role: admin.Role}

	first := fx.CreateItem("post", models.StatusPublish, "B side", admin.ID)
	second := fx.CreateItem("post", models.StatusPublish, "A side", admin.ID)
	fx.CreateItem("post", models.StatusPublish, "Other", admin.ID)
	for _, id := range []uint{first.ID, second.ID} {
		if _, err := store.Set(context.Background(), principal, id, assignment.Patch{Users: []any{writer.ID}}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	req := PreviewRequest{AuthorsFilter: fmt.Sprintf("user-%d", writer.ID), OrderBy: "title"}
	resp := doRequest(router, "POST", "/api/items/preview", req, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var list ListResponse
	json.Unmarshal(resp.Body.Bytes(), &list)
	if list.Count != 2 {
		t.Fatalf("Expected 2 items, got %d", list.Count)
	}
	if list.Items[0].ID != second.ID || list.Items[1].ID != first.ID {
		t.Errorf("Expected title order, got %d, %d", list.Items[0].ID, list.Items[1].ID)
	}

	resp = doRequest(router, "POST", "/api/items/preview", PreviewRequest{OrderBy: "random"}, nil)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown order, got %d", resp.Code)
	}
}

func TestDeleteItemPurgesAssignment(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router, _ := setupTestRouter(db)
	author := fx.CreateUser("Author", models.RoleAuthor)

	resp := doRequest(router, "POST", "/api/items", CreateItemRequest{Type: "post", Title: "Short lived"}, &author)
	var item ItemResponse
	json.Unmarshal(resp.Body.Bytes(), &item)

	resp = doRequest(router, "DELETE", fmt.Sprintf("/api/items/%d", item.ID), nil, &author)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var refs, meta int64
	db.Model(&models.ItemReference{}).Where("item_id = ?", item.ID).Count(&refs)
	db.Model(&models.ItemMeta{}).Where("item_id = ?", item.ID).Count(&meta)
	if refs != 0 || meta != 0 {
		t.Errorf("Expected assignment purged, got %d references and %d attributes", refs, meta)
	}

	resp = doRequest(router, "GET", fmt.Sprintf("/api/items/%d", item.ID), nil, &author)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", resp.Code)
	}
}

func TestUpdateOthersItemForbidden(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router, _ := setupTestRouter(db)
	owner := fx.CreateUser("Owner", models.RoleAuthor)
	other := fx.CreateUser("Other", models.RoleAuthor)
	editor := fx.CreateUser("Editor", models.RoleEditor)
	item := fx.CreateItem("post", models.StatusDraft, "Draft", owner.ID)

	path := fmt.Sprintf("/api/items/%d", item.ID)
	if resp := doRequest(router, "PUT", path, UpdateItemRequest{Status: "publish"}, &other); resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}

	resp := doRequest(router, "PUT", path, UpdateItemRequest{Status: "publish"}, &editor)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var updated ItemResponse
	json.Unmarshal(resp.Body.Bytes(), &updated)
	if updated.Status != "publish" {
		t.Errorf("Expected publish, got %s", updated.Status)
	}
}

// failOn makes every operation of kind on table fail for the rest of the test
func failOn(t *testing.T, db *gorm.DB, kind, table string) {
	t.Helper()
	fail := func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			tx.AddError(errors.New("injected failure"))
		}
	}
	var err error
	switch kind {
	case "delete":
		err = db.Callback().Delete().Before("gorm:delete").Register("test:fail_"+table, fail)
	case "query":
		err = db.Callback().Query().Before("gorm:query").Register("test:fail_"+table, fail)
	}
	if err != nil {
		t.Fatalf("Failed to register callback: %v", err)
	}
}

func TestDeleteItemKeepsAssignmentWhenDeleteFails(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router, _ := setupTestRouter(db)
	author := fx.CreateUser("Author", models.RoleAuthor)

	resp := doRequest(router, "POST", "/api/items", CreateItemRequest{Type: "post", Title: "Sticky", Status: "publish"}, &author)
	var item ItemResponse
	json.Unmarshal(resp.Body.Bytes(), &item)

	failOn(t, db, "delete", "items")

	resp = doRequest(router, "DELETE", fmt.Sprintf("/api/items/%d", item.ID), nil, &author)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d: %s", resp.Code, resp.Body.String())
	}

	var refs, meta int64
	db.Model(&models.ItemReference{}).Where("item_id = ?", item.ID).Count(&refs)
	db.Model(&models.ItemMeta{}).Where("item_id = ?", item.ID).Count(&meta)
	if refs != 1 || meta == 0 {
		t.Errorf("Expected assignment kept, got %d references and %d attributes", refs, meta)
	}
}

func TestCreateItemReportsReloadFailure(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	router, _ := setupTestRouter(db)
	author := fx.CreateUser("Author", models.RoleAuthor)

	failOn(t, db, "query", "items")

	resp := doRequest(router, "POST", "/api/items", CreateItemRequest{Type: "post", Title: "Unreadable"}, &author)
	if resp.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d: %s", resp.Code, resp.Body.String())
	}
}
