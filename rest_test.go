package derailed_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derailed "github.com/derailed-org/derailed-go"
)

// recordedRequest captures what the fake API server observed.
type recordedRequest struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   string
}

// newTestAPI starts a fake API server that answers every request with
// response and records what it saw.
func newTestAPI(response string) (*httptest.Server, *recordedRequest) {
	recorded := &recordedRequest{}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			panic(err)
		}

		recorded.method = r.Method
		recorded.path = r.URL.Path
		recorded.query = r.URL.Query()
		recorded.header = r.Header.Clone()
		recorded.body = string(body)

		if _, err := w.Write([]byte(response)); err != nil {
			panic(err)
		}
	}))

	return ts, recorded
}

func newTestInteractor(ts *httptest.Server) *derailed.Interactor {
	i := derailed.NewInteractor("test-token")
	i.BaseURL = ts.URL
	return i
}

func TestInteractor_Login(t *testing.T) {
	ts, recorded := newTestAPI(`{"id":"1","username":"a","discriminator":"0001","verification":{"email":true,"phone":false}}`)
	defer ts.Close()

	i := newTestInteractor(ts)

	user, err := i.Login(context.Background(), "a@b.c", "hunter2")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, recorded.method)
	assert.Equal(t, "/login", recorded.path)
	assert.Equal(t, "test-token", recorded.header.Get("Authorization"))
	assert.Equal(t, "application/json", recorded.header.Get("Content-Type"))
	assert.JSONEq(t, `{"email":"a@b.c","password":"hunter2"}`, recorded.body)

	assert.Equal(t, "1", user.ID)
	assert.True(t, user.Verification.Email)
}

func TestInteractor_RequestError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"invalid username"}`))
	}))
	defer ts.Close()

	i := newTestInteractor(ts)

	_, err := i.CurrentUser(context.Background())
	require.Error(t, err)

	var reqErr *derailed.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadRequest, reqErr.StatusCode)
	assert.Equal(t, "invalid username", err.Error())
}

func TestInteractor_TransportErrorNotWrapped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // nothing is listening anymore

	i := newTestInteractor(ts)

	_, err := i.CurrentUser(context.Background())
	require.Error(t, err)

	// Transport failures come back exactly as the HTTP client produced
	// them, not as API errors.
	var reqErr *derailed.RequestError
	assert.False(t, errors.As(err, &reqErr))

	var urlErr *url.Error
	assert.True(t, errors.As(err, &urlErr))
}

func TestInteractor_UndefinedFieldsOmitted(t *testing.T) {
	ts, recorded := newTestAPI(`{"id":"1","username":"new","discriminator":"0001","verification":{"email":true,"phone":false}}`)
	defer ts.Close()

	i := newTestInteractor(ts)

	_, err := i.ModifyCurrentUser(context.Background(),
		derailed.Some("new"),
		derailed.Undefined[string](),
		derailed.Undefined[string](),
	)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, recorded.method)
	assert.Equal(t, "/users/@me", recorded.path)
	assert.JSONEq(t, `{"username":"new"}`, recorded.body)
}

func TestInteractor_DefinedFalsyFieldsKept(t *testing.T) {
	ts, recorded := newTestAPI(`{"id":"1","name":"g"}`)
	defer ts.Close()

	i := newTestInteractor(ts)

	// Defined falsy values (false, "") must be sent verbatim; only the
	// undefined name is dropped.
	_, err := i.ModifyGuild(context.Background(), "guild-1",
		derailed.Undefined[string](),
		derailed.Some(""),
		derailed.Some(false),
	)
	require.NoError(t, err)

	assert.Equal(t, "/guilds/guild-1", recorded.path)
	assert.JSONEq(t, `{"description":"","nsfw":false}`, recorded.body)
}

func TestInteractor_ExplicitNullNick(t *testing.T) {
	ts, recorded := newTestAPI(`{}`)
	defer ts.Close()

	i := newTestInteractor(ts)

	require.NoError(t, i.ModifyMemberNick(context.Background(), "guild-1", "user-2", nil))

	assert.Equal(t, http.MethodPatch, recorded.method)
	assert.Equal(t, "/guilds/guild-1/members/user-2/nick", recorded.path)
	assert.JSONEq(t, `{"nick":null}`, recorded.body)
}

func TestInteractor_BanMemberReasonHeader(t *testing.T) {
	ts, recorded := newTestAPI(`{}`)
	defer ts.Close()

	i := newTestInteractor(ts)

	require.NoError(t, i.BanMember(context.Background(), "guild-1", "user-2", "spamming"))

	assert.Equal(t, http.MethodPost, recorded.method)
	assert.Equal(t, "/guilds/guild-1/members/user-2/ban", recorded.path)
	assert.Equal(t, "spamming", recorded.header.Get("X-Action-Reason"))
	assert.Equal(t, "test-token", recorded.header.Get("Authorization"))
}

func TestInteractor_CheckRelatableQuery(t *testing.T) {
	ts, recorded := newTestAPI(`{"user_id":"2","relatable":true}`)
	defer ts.Close()

	i := newTestInteractor(ts)

	relatable, err := i.CheckRelatable(context.Background(), "user name", "0001")
	require.NoError(t, err)

	assert.Equal(t, "/relationships/relatable", recorded.path)
	assert.Equal(t, "user name", recorded.query.Get("username"))
	assert.Equal(t, "0001", recorded.query.Get("discriminator"))
	assert.True(t, relatable.Relatable)
}

func TestInteractor_EndpointCatalogue(t *testing.T) {
	cases := map[string]struct {
		exercise   func(i *derailed.Interactor) error
		response   string
		wantMethod string
		wantPath   string
		wantBody   string
	}{
		"register": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.Register(context.Background(), "a@b.c", "a", "hunter2")
				return err
			},
			wantMethod: http.MethodPost,
			wantPath:   "/register",
			wantBody:   `{"email":"a@b.c","username":"a","password":"hunter2"}`,
		},
		"delete current user": {
			exercise: func(i *derailed.Interactor) error {
				return i.DeleteCurrentUser(context.Background(), "hunter2")
			},
			wantMethod: http.MethodDelete,
			wantPath:   "/users/@me",
			wantBody:   `{"password":"hunter2"}`,
		},
		"put presence": {
			exercise: func(i *derailed.Interactor) error {
				return i.PutPresence(context.Background(), "hello")
			},
			wantMethod: http.MethodPut,
			wantPath:   "/users/@me/presence",
			wantBody:   `{"content":"hello"}`,
		},
		"current profile": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.CurrentProfile(context.Background())
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "/profiles/@me",
		},
		"get profile": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.GetProfile(context.Background(), "user-2")
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "/profiles/user-2",
		},
		"settings": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.Settings(context.Background())
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "/users/@me/settings",
		},
		"modify settings": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.ModifySettings(context.Background(),
					derailed.Some(derailed.StatusDND),
					derailed.Undefined[derailed.Theme]())
				return err
			},
			wantMethod: http.MethodPatch,
			wantPath:   "/users/@me/settings",
			wantBody:   `{"status":"dnd"}`,
		},
		"relationships": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.Relationships(context.Background())
				return err
			},
			response:   `[]`,
			wantMethod: http.MethodGet,
			wantPath:   "/users/@me/relationships",
		},
		"put relationship": {
			exercise: func(i *derailed.Interactor) error {
				return i.PutRelationship(context.Background(), "user-2", derailed.RelationshipFriend)
			},
			wantMethod: http.MethodPut,
			wantPath:   "/relationships/user-2",
			wantBody:   `{"type":0}`,
		},
		"delete relationship": {
			exercise: func(i *derailed.Interactor) error {
				return i.DeleteRelationship(context.Background(), "user-2")
			},
			wantMethod: http.MethodDelete,
			wantPath:   "/relationships/user-2",
		},
		"guild": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.Guild(context.Background(), "guild-1")
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "/guilds/guild-1",
		},
		"guild preview": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.GuildPreview(context.Background(), "guild-1")
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "/guilds/guild-1/preview",
		},
		"create guild": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.CreateGuild(context.Background(), "g",
					derailed.Undefined[string](), derailed.Some(true))
				return err
			},
			wantMethod: http.MethodPost,
			wantPath:   "/guilds",
			wantBody:   `{"name":"g","nsfw":true}`,
		},
		"delete guild": {
			exercise: func(i *derailed.Interactor) error {
				return i.DeleteGuild(context.Background(), "guild-1")
			},
			wantMethod: http.MethodDelete,
			wantPath:   "/guilds/guild-1",
		},
		"kick member": {
			exercise: func(i *derailed.Interactor) error {
				return i.KickMember(context.Background(), "guild-1", "user-2")
			},
			wantMethod: http.MethodDelete,
			wantPath:   "/guilds/guild-1/members/user-2",
		},
		"modify member": {
			exercise: func(i *derailed.Interactor) error {
				return i.ModifyMember(context.Background(), "guild-1", "user-2", derailed.Some("nickname"))
			},
			wantMethod: http.MethodPatch,
			wantPath:   "/guilds/guild-1/members/user-2",
			wantBody:   `{"nick":"nickname"}`,
		},
		"guild roles": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.GuildRoles(context.Background(), "guild-1")
				return err
			},
			response:   `[]`,
			wantMethod: http.MethodGet,
			wantPath:   "/guilds/guild-1/roles",
		},
		"guild role": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.GuildRole(context.Background(), "guild-1", "role-3")
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "/guilds/guild-1/roles/role-3",
		},
		"create role": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.CreateRole(context.Background(), "guild-1", "mods", 8, derailed.Some(true))
				return err
			},
			wantMethod: http.MethodPost,
			wantPath:   "/guilds/guild-1/roles",
			wantBody:   `{"name":"mods","permissions":8,"hoist":true}`,
		},
		"modify role": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.ModifyRole(context.Background(), "guild-1", "role-3", "mods", 8, 2,
					derailed.Undefined[bool]())
				return err
			},
			wantMethod: http.MethodPatch,
			wantPath:   "/guilds/guild-1/roles/role-3",
			wantBody:   `{"name":"mods","permissions":8,"position":2}`,
		},
		"guild tracks": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.GuildTracks(context.Background(), "guild-1")
				return err
			},
			response:   `[]`,
			wantMethod: http.MethodGet,
			wantPath:   "/guilds/guild-1/tracks",
		},
		"guild track": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.GuildTrack(context.Background(), "guild-1", "track-4")
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "/guilds/guild-1/tracks/track-4",
		},
		"create guild track": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.CreateGuildTrack(context.Background(), "guild-1", "general",
					derailed.TrackTypeText,
					derailed.Undefined[string](),
					derailed.Some(0),
					derailed.Undefined[string]())
				return err
			},
			wantMethod: http.MethodPost,
			wantPath:   "/guilds/guild-1/tracks",
			wantBody:   `{"name":"general","type":0,"position":0}`,
		},
		"modify guild tracks": {
			exercise: func(i *derailed.Interactor) error {
				return i.ModifyGuildTracks(context.Background(), "guild-1", []derailed.TrackModification{
					{ID: "track-4", Position: 1, Sync: true, ParentID: nil},
				})
			},
			wantMethod: http.MethodPatch,
			wantPath:   "/guilds/guild-1/tracks",
			wantBody:   `[{"id":"track-4","position":1,"sync":true,"parent_id":null}]`,
		},
		"create group dm": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.CreateGroupDM(context.Background(), "pals", []string{"2", "3"},
					derailed.Some("hangout"))
				return err
			},
			wantMethod: http.MethodPost,
			wantPath:   "/users/@me/group-dms",
			wantBody:   `{"name":"pals","user_ids":["2","3"],"topic":"hangout"}`,
		},
		"modify track": {
			exercise: func(i *derailed.Interactor) error {
				_, err := i.ModifyTrack(context.Background(), "track-4",
					derailed.Some("renamed"), derailed.Undefined[string]())
				return err
			},
			wantMethod: http.MethodPatch,
			wantPath:   "/tracks/track-4",
			wantBody:   `{"name":"renamed"}`,
		},
		"close track": {
			exercise: func(i *derailed.Interactor) error {
				return i.CloseTrack(context.Background(), "track-4")
			},
			wantMethod: http.MethodDelete,
			wantPath:   "/tracks/track-4",
		},
	}

	for id, tc := range cases {
		response := tc.response
		if response == "" {
			response = `{}`
		}
		ts, recorded := newTestAPI(response)

		i := newTestInteractor(ts)
		err := tc.exercise(i)

		ts.Close()

		require.NoError(t, err, id)
		assert.Equal(t, tc.wantMethod, recorded.method, id)
		assert.Equal(t, tc.wantPath, recorded.path, id)
		assert.Equal(t, "test-token", recorded.header.Get("Authorization"), id)

		if tc.wantBody != "" {
			assert.JSONEq(t, tc.wantBody, recorded.body, id)
		}
	}
}
