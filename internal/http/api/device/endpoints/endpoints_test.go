package endpoints

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/herald/internal/db"
	"github.com/Nixie-Tech-LLC/herald/internal/device"
	"github.com/Nixie-Tech-LLC/herald/internal/http/api"
	"github.com/Nixie-Tech-LLC/herald/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/herald/internal/model"
	"github.com/Nixie-Tech-LLC/herald/internal/schedule"
	"github.com/Nixie-Tech-LLC/herald/internal/storage"
)

func strp(v string) *string { return &v }
func intp(v int) *int       { return &v }

type fixture struct {
	store    *db.MemoryStore
	sessions *device.Service
	router   *gin.Engine
}

func newFixture(t *testing.T, publicURL string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := db.NewMemoryStore()
	store.PutPlayer(model.Player{ID: 1, Token: "tok-1", CalendarID: intp(7), IsActivated: true, Percent: model.UnknownPercent})
	store.PutPlayer(model.Player{ID: 2, Token: "tok-2", Pin: strp("123456"), Percent: model.UnknownPercent})
	store.PutPlayer(model.Player{ID: 3, Token: "tok-3", Pin: strp("654321"), IsActivated: true, Timezone: strp("UTC")})
	store.PutAssignment(model.Assignment{
		ID:         "base",
		CalendarID: 7,
		Base:       true,
		Playlist: model.Playlist{ID: 3, Entries: []model.PlaylistEntry{{
			ContentID: 11,
			Duration:  15,
			Content: model.Content{
				ID: 11, Type: model.ContentImage, URL: "files/a.png",
				Size: 10, MD5: "abc", Width: 800, Height: 600,
			},
		}}},
	})

	sessions := device.NewService(store, device.WithDebounce(50*time.Millisecond))
	t.Cleanup(sessions.Close)

	compiler := schedule.NewCompiler(store)
	players := []gin.HandlerFunc{middleware.PlayerMiddleware(store)}

	r := gin.New()
	api.MountGroup(r, api.GroupConfig{Prefix: "/v3/entrypoint"}, EntrypointModule(store, publicURL))
	api.MountGroup(r, api.GroupConfig{Prefix: "/v3/device", Middleware: players},
		UploadModule(store, storage.NewLocalStorage(t.TempDir())))
	api.MountGroup(r, api.GroupConfig{Prefix: "/v4/device", Middleware: players}, DataModule(compiler, publicURL))
	api.MountGroup(r, api.GroupConfig{Prefix: "/v4/device"}, SocketModule(sessions))

	return &fixture{store: store, sessions: sessions, router: r}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestActivate(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(jsonRequest(http.MethodPost, "/v3/entrypoint/activate", `{"pin":"123456","platform":"tizen"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"configuration":{
		"device_id":2,
		"backend_url":"http://example.com",
		"access_token":"tok-2",
		"timezone":"Europe/Moscow"
	}}`, w.Body.String())

	p, err := f.store.GetPlayerByID(testContext(t), 2)
	require.NoError(t, err)
	assert.True(t, p.IsActivated)
	assert.Nil(t, p.Pin)
	require.NotNil(t, p.Platform)
	assert.Equal(t, "tizen", *p.Platform)

	// the pin is spent
	w = f.do(jsonRequest(http.MethodPost, "/v3/entrypoint/activate", `{"pin":"123456","platform":"tizen"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestActivateRejects(t *testing.T) {
	f := newFixture(t, "https://signage.example.com/")

	cases := []struct {
		name string
		body string
		code int
	}{
		{"missing pin", `{"platform":"tizen"}`, http.StatusBadRequest},
		{"missing platform", `{"pin":"123456"}`, http.StatusBadRequest},
		{"unknown pin", `{"pin":"000000","platform":"tizen"}`, http.StatusUnprocessableEntity},
		{"already active", `{"pin":"654321","platform":"tizen"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(jsonRequest(http.MethodPost, "/v3/entrypoint/activate", tc.body))
			assert.Equal(t, tc.code, w.Code, w.Body.String())
		})
	}
}

func TestTimeAndPing(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(httptest.NewRequest(http.MethodGet, "/v3/entrypoint/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `"pong"`, w.Body.String())

	w = f.do(httptest.NewRequest(http.MethodGet, "/v3/entrypoint/time", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var raw string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	ts, err := time.Parse(time.RFC3339, raw)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
	assert.True(t, strings.HasSuffix(raw, "Z"))
}

func TestDataRequiresPlayer(t *testing.T) {
	f := newFixture(t, "")

	cases := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Bearer tok-1", http.StatusBadRequest},
		{"unknown token", "OAuth nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v4/device/data", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			assert.Equal(t, tc.code, f.do(req).Code)
		})
	}
}

func TestDataCompilesPackage(t *testing.T) {
	f := newFixture(t, "https://signage.example.com")

	req := httptest.NewRequest(http.MethodGet, "/v4/device/data", nil)
	req.Header.Set("Authorization", "OAuth tok-1")
	w := f.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var pkg model.SyncPackage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pkg))
	require.Len(t, pkg.ContentPackage.Files, 1)
	assert.Equal(t, "https://signage.example.com/files/a.png", pkg.ContentPackage.Files[0].URL)
	require.Len(t, pkg.ContentPackage.Triggers, 1)
}

func TestDataUnsupportedContent(t *testing.T) {
	f := newFixture(t, "")
	f.store.PutPlayer(model.Player{ID: 4, Token: "tok-4", CalendarID: intp(8), IsActivated: true})
	f.store.PutAssignment(model.Assignment{
		ID: "odd", CalendarID: 8, Base: true,
		Playlist: model.Playlist{ID: 9, Entries: []model.PlaylistEntry{{
			ContentID: 20, Content: model.Content{ID: 20, Type: "hologram"},
		}}},
	})

	req := httptest.NewRequest(http.MethodGet, "/v4/device/data", nil)
	req.Header.Set("Authorization", "OAuth tok-4")
	assert.Equal(t, http.StatusBadGateway, f.do(req).Code)
}

func uploadRequest(t *testing.T, target, filename string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "OAuth tok-1")
	return req
}

func TestUploadScreenshot(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(uploadRequest(t, "/v3/device/screenshot", "screen.jpg"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	p, err := f.store.GetPlayerByID(testContext(t), 1)
	require.NoError(t, err)
	require.NotNil(t, p.LastScreen)
	assert.True(t, strings.HasPrefix(p.LastScreen.URL, "/uploads/files/"), p.LastScreen.URL)
	assert.True(t, strings.HasSuffix(p.LastScreen.URL, ".jpg"))
	assert.Nil(t, p.LastLog)
}

func TestUploadLog(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(uploadRequest(t, "/v3/device/log", "logs.zip"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	p, err := f.store.GetPlayerByID(testContext(t), 1)
	require.NoError(t, err)
	require.NotNil(t, p.LastLog)
	assert.True(t, strings.HasSuffix(p.LastLog.URL, ".zip"))
}

func TestUploadWithoutFile(t *testing.T) {
	f := newFixture(t, "")

	req := httptest.NewRequest(http.MethodPost, "/v3/device/screenshot", nil)
	req.Header.Set("Authorization", "OAuth tok-1")
	assert.Equal(t, http.StatusBadRequest, f.do(req).Code)
}

func socketURL(srv *httptest.Server, authorization string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v4/device/socket?authorization=" + url.QueryEscape(authorization)
}

func TestSocketRejectsBadCredential(t *testing.T) {
	f := newFixture(t, "")
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(socketURL(srv, "OAuth nope"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(socketURL(srv, "Basic tok-1"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSocketSession(t *testing.T) {
	f := newFixture(t, "")
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(socketURL(srv, "OAuth tok-1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.sessions.Online(1) }, time.Second, 10*time.Millisecond)

	_, err = f.sessions.SendCommand(testContext(t), 1, model.CommandTakeScreenshot)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame device.CommandsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	require.Len(t, frame.Commands, 1)
	assert.Equal(t, model.CommandTakeScreenshot, frame.Commands[0].Command)

	// acknowledging clears the queue; the debounced reply is the empty list
	ack := map[string]any{"commands_acknowledge": []int{frame.Commands[0].ID}}
	require.NoError(t, conn.WriteJSON(ack))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Empty(t, frame.Commands)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool {
		p, err := f.store.GetPlayerByID(testContext(t), 1)
		return err == nil && !f.sessions.Online(1) && p.LastOnline != nil
	}, time.Second, 10*time.Millisecond)
}
