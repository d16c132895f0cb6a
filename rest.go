package derailed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultAPIBase is the production REST endpoint.
const DefaultAPIBase = "https://derailed.one/api"

// Interactor issues authenticated requests against the Derailed REST API.
// Every public method maps one-to-one onto an API operation; the Interactor
// holds no state beyond the credentials and base URL, so its methods may be
// called concurrently.
type Interactor struct {
	// The base URL of the REST API, without a trailing slash.
	BaseURL string

	// The HTTPClient used to perform requests.
	HTTPClient *http.Client

	// Logger receives debug output. Defaults to a stderr logger when the
	// DEBUG environment variable is set, disabled otherwise.
	Logger zerolog.Logger

	token string
}

// NewInteractor creates an Interactor for the production API using the given
// authentication token.
func NewInteractor(token string) *Interactor {
	return &Interactor{
		BaseURL:    DefaultAPIBase,
		HTTPClient: &http.Client{},
		Logger:     defaultLogger(),
		token:      token,
	}
}

// errorEnvelope is the body the API sends with every non-success status.
type errorEnvelope struct {
	Detail string `json:"detail"`
}

// request is the single chokepoint every API operation goes through. The
// Authorization header is always sent; an X-Action-Reason header is added
// when reason is non-empty, and body, when non-nil, is JSON-encoded. A
// non-success status becomes a *RequestError carrying the server's detail
// message. On success the response body is decoded into out, unless out is
// nil.
//
// Transport-level failures (DNS, refused connections, timeouts) are
// returned exactly as the underlying client produced them.
func (i *Interactor) request(ctx context.Context, method, path string, body, out interface{}, reason string) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "body marshal failed")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, i.BaseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "request creation failed")
	}

	req.Header.Set("Authorization", i.token)
	if reason != "" {
		req.Header.Set("X-Action-Reason", reason)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	i.Logger.Debug().Str("method", method).Str("path", path).Str("reason", reason).Msg("sending request")

	resp, err := i.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "response read failed")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var envelope errorEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			return errors.Wrapf(err, "error envelope unmarshal failed (%s)", resp.Status)
		}
		return &RequestError{StatusCode: resp.StatusCode, Detail: envelope.Detail}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "response unmarshal failed")
	}

	return nil
}

// Register creates a new user account.
func (i *Interactor) Register(ctx context.Context, email, username, password string) (User, error) {
	var user User
	body := payload{}.set("email", email).set("username", username).set("password", password)
	err := i.request(ctx, http.MethodPost, "/register", body, &user, "")
	return user, err
}

// Login authenticates with an email and password.
func (i *Interactor) Login(ctx context.Context, email, password string) (User, error) {
	var user User
	body := payload{}.set("email", email).set("password", password)
	err := i.request(ctx, http.MethodPost, "/login", body, &user, "")
	return user, err
}

// CurrentUser fetches the authenticated user.
func (i *Interactor) CurrentUser(ctx context.Context) (User, error) {
	var user User
	err := i.request(ctx, http.MethodGet, "/users/@me", nil, &user, "")
	return user, err
}

// ModifyCurrentUser updates the authenticated user. Undefined parameters are
// left untouched server-side.
func (i *Interactor) ModifyCurrentUser(ctx context.Context, username, email, password Optional[string]) (User, error) {
	body := payload{}
	setOptional(body, "username", username)
	setOptional(body, "email", email)
	setOptional(body, "password", password)

	var user User
	err := i.request(ctx, http.MethodPatch, "/users/@me", body, &user, "")
	return user, err
}

// DeleteCurrentUser deletes the authenticated user's account. The account
// password is required as confirmation.
func (i *Interactor) DeleteCurrentUser(ctx context.Context, password string) error {
	return i.request(ctx, http.MethodDelete, "/users/@me", payload{}.set("password", password), nil, "")
}

// PutPresence replaces the authenticated user's presence.
func (i *Interactor) PutPresence(ctx context.Context, content string) error {
	return i.request(ctx, http.MethodPut, "/users/@me/presence", payload{}.set("content", content), nil, "")
}

// CurrentProfile fetches the authenticated user's profile.
func (i *Interactor) CurrentProfile(ctx context.Context) (Profile, error) {
	var profile Profile
	err := i.request(ctx, http.MethodGet, "/profiles/@me", nil, &profile, "")
	return profile, err
}

// GetProfile fetches another user's profile.
func (i *Interactor) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var profile Profile
	err := i.request(ctx, http.MethodGet, "/profiles/"+userID, nil, &profile, "")
	return profile, err
}

// Settings fetches the authenticated user's settings.
func (i *Interactor) Settings(ctx context.Context) (Settings, error) {
	var settings Settings
	err := i.request(ctx, http.MethodGet, "/users/@me/settings", nil, &settings, "")
	return settings, err
}

// ModifySettings updates the authenticated user's settings.
func (i *Interactor) ModifySettings(ctx context.Context, status Optional[Status], theme Optional[Theme]) (Settings, error) {
	body := payload{}
	setOptional(body, "status", status)
	setOptional(body, "theme", theme)

	var settings Settings
	err := i.request(ctx, http.MethodPatch, "/users/@me/settings", body, &settings, "")
	return settings, err
}

// CheckRelatable reports whether a relationship can be formed with the user
// identified by username and discriminator.
func (i *Interactor) CheckRelatable(ctx context.Context, username, discriminator string) (Relatable, error) {
	query := url.Values{}
	query.Set("username", username)
	query.Set("discriminator", discriminator)

	var relatable Relatable
	err := i.request(ctx, http.MethodGet, "/relationships/relatable?"+query.Encode(), nil, &relatable, "")
	return relatable, err
}

// Relationships lists the authenticated user's relationships.
func (i *Interactor) Relationships(ctx context.Context) ([]Relationship, error) {
	var relationships []Relationship
	err := i.request(ctx, http.MethodGet, "/users/@me/relationships", nil, &relationships, "")
	return relationships, err
}

// PutRelationship creates or replaces a relationship with another user.
func (i *Interactor) PutRelationship(ctx context.Context, userID string, typ RelationshipType) error {
	return i.request(ctx, http.MethodPut, "/relationships/"+userID, payload{}.set("type", typ), nil, "")
}

// DeleteRelationship removes the relationship with another user.
func (i *Interactor) DeleteRelationship(ctx context.Context, userID string) error {
	return i.request(ctx, http.MethodDelete, "/relationships/"+userID, nil, nil, "")
}

// Guild fetches a guild.
func (i *Interactor) Guild(ctx context.Context, guildID string) (Guild, error) {
	var guild Guild
	err := i.request(ctx, http.MethodGet, "/guilds/"+guildID, nil, &guild, "")
	return guild, err
}

// GuildPreview fetches the public preview of a guild.
func (i *Interactor) GuildPreview(ctx context.Context, guildID string) (Guild, error) {
	var guild Guild
	err := i.request(ctx, http.MethodGet, "/guilds/"+guildID+"/preview", nil, &guild, "")
	return guild, err
}

// CreateGuild creates a guild owned by the authenticated user.
func (i *Interactor) CreateGuild(ctx context.Context, name string, description Optional[string], nsfw Optional[bool]) (Guild, error) {
	body := payload{}.set("name", name)
	setOptional(body, "description", description)
	setOptional(body, "nsfw", nsfw)

	var guild Guild
	err := i.request(ctx, http.MethodPost, "/guilds", body, &guild, "")
	return guild, err
}

// ModifyGuild updates a guild. Undefined parameters are left untouched
// server-side.
func (i *Interactor) ModifyGuild(ctx context.Context, guildID string, name, description Optional[string], nsfw Optional[bool]) (Guild, error) {
	body := payload{}
	setOptional(body, "name", name)
	setOptional(body, "description", description)
	setOptional(body, "nsfw", nsfw)

	var guild Guild
	err := i.request(ctx, http.MethodPatch, "/guilds/"+guildID, body, &guild, "")
	return guild, err
}

// DeleteGuild deletes a guild.
func (i *Interactor) DeleteGuild(ctx context.Context, guildID string) error {
	return i.request(ctx, http.MethodDelete, "/guilds/"+guildID, nil, nil, "")
}

// BanMember bans a member from a guild. The reason, if non-empty, is
// recorded by the server through the X-Action-Reason header.
func (i *Interactor) BanMember(ctx context.Context, guildID, userID, reason string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s/ban", guildID, userID)
	return i.request(ctx, http.MethodPost, path, nil, nil, reason)
}

// KickMember removes a member from a guild.
func (i *Interactor) KickMember(ctx context.Context, guildID, userID string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s", guildID, userID)
	return i.request(ctx, http.MethodDelete, path, nil, nil, "")
}

// ModifyMember updates a guild member.
func (i *Interactor) ModifyMember(ctx context.Context, guildID, userID string, nick Optional[string]) error {
	body := payload{}
	setOptional(body, "nick", nick)

	path := fmt.Sprintf("/guilds/%s/members/%s", guildID, userID)
	return i.request(ctx, http.MethodPatch, path, body, nil, "")
}

// ModifyMemberNick sets or, with a nil nick, clears a member's nickname.
func (i *Interactor) ModifyMemberNick(ctx context.Context, guildID, userID string, nick *string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s/nick", guildID, userID)
	return i.request(ctx, http.MethodPatch, path, payload{}.set("nick", nick), nil, "")
}

// GuildRoles lists a guild's roles.
func (i *Interactor) GuildRoles(ctx context.Context, guildID string) ([]Role, error) {
	var roles []Role
	err := i.request(ctx, http.MethodGet, "/guilds/"+guildID+"/roles", nil, &roles, "")
	return roles, err
}

// GuildRole fetches a single role.
func (i *Interactor) GuildRole(ctx context.Context, guildID, roleID string) (Role, error) {
	var role Role
	path := fmt.Sprintf("/guilds/%s/roles/%s", guildID, roleID)
	err := i.request(ctx, http.MethodGet, path, nil, &role, "")
	return role, err
}

// CreateRole creates a role in a guild.
func (i *Interactor) CreateRole(ctx context.Context, guildID, name string, permissions int, hoist Optional[bool]) (Role, error) {
	body := payload{}.set("name", name).set("permissions", permissions)
	setOptional(body, "hoist", hoist)

	var role Role
	err := i.request(ctx, http.MethodPost, "/guilds/"+guildID+"/roles", body, &role, "")
	return role, err
}

// ModifyRole updates a role.
func (i *Interactor) ModifyRole(ctx context.Context, guildID, roleID, name string, permissions, position int, hoist Optional[bool]) (Role, error) {
	body := payload{}.set("name", name).set("permissions", permissions).set("position", position)
	setOptional(body, "hoist", hoist)

	var role Role
	path := fmt.Sprintf("/guilds/%s/roles/%s", guildID, roleID)
	err := i.request(ctx, http.MethodPatch, path, body, &role, "")
	return role, err
}

// GuildTracks lists a guild's tracks.
func (i *Interactor) GuildTracks(ctx context.Context, guildID string) ([]Track, error) {
	var tracks []Track
	err := i.request(ctx, http.MethodGet, "/guilds/"+guildID+"/tracks", nil, &tracks, "")
	return tracks, err
}

// GuildTrack fetches a single track in a guild.
func (i *Interactor) GuildTrack(ctx context.Context, guildID, trackID string) (Track, error) {
	var track Track
	path := fmt.Sprintf("/guilds/%s/tracks/%s", guildID, trackID)
	err := i.request(ctx, http.MethodGet, path, nil, &track, "")
	return track, err
}

// CreateGuildTrack creates a track in a guild.
func (i *Interactor) CreateGuildTrack(ctx context.Context, guildID, name string, typ TrackType, parentID Optional[string], position Optional[int], topic Optional[string]) (Track, error) {
	body := payload{}.set("name", name).set("type", typ)
	setOptional(body, "parent_id", parentID)
	setOptional(body, "position", position)
	setOptional(body, "topic", topic)

	var track Track
	err := i.request(ctx, http.MethodPost, "/guilds/"+guildID+"/tracks", body, &track, "")
	return track, err
}

// ModifyGuildTracks applies a bulk update to a guild's tracks.
func (i *Interactor) ModifyGuildTracks(ctx context.Context, guildID string, modifications []TrackModification) error {
	return i.request(ctx, http.MethodPatch, "/guilds/"+guildID+"/tracks", modifications, nil, "")
}

// CreateGroupDM opens a group DM track with the given users.
func (i *Interactor) CreateGroupDM(ctx context.Context, name string, userIDs []string, topic Optional[string]) (Track, error) {
	body := payload{}.set("name", name).set("user_ids", userIDs)
	setOptional(body, "topic", topic)

	var track Track
	err := i.request(ctx, http.MethodPost, "/users/@me/group-dms", body, &track, "")
	return track, err
}

// ModifyTrack updates a track.
func (i *Interactor) ModifyTrack(ctx context.Context, trackID string, name, topic Optional[string]) (Track, error) {
	body := payload{}
	setOptional(body, "name", name)
	setOptional(body, "topic", topic)

	var track Track
	err := i.request(ctx, http.MethodPatch, "/tracks/"+trackID, body, &track, "")
	return track, err
}

// CloseTrack deletes a track.
func (i *Interactor) CloseTrack(ctx context.Context, trackID string) error {
	return i.request(ctx, http.MethodDelete, "/tracks/"+trackID, nil, nil, "")
}
