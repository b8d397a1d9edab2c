package auth

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Result is the canonical shape of a login/register response. Everything
// past this boundary sees only this shape, regardless of what the backend
// sent.
type Result struct {
	User         User
	Token        string
	RefreshToken string
}

// NormalizeResponse maps an auth response body onto Result. The backend has
// been observed to answer in at least three shapes: a nested {user, token}
// object, flattened JWT claims (userId/sub, preferred_username including a
// historical "prefferred_username" misspelling, given_name+family_name), and
// role as a string, an array, or absent. None of these shapes may cause an
// error; unresolvable fields fall back to "unknown"/"User"/"user".
func NormalizeResponse(body []byte) Result {
	root := gjson.ParseBytes(body)

	token := firstString(root,
		"token", "accessToken", "access_Token",
		"data.token", "data.accessToken", "data.access_Token",
	)
	refreshToken := firstString(root,
		"refreshToken", "refresh_token", "refresh_Token",
		"data.refreshToken", "data.refresh_token", "data.refresh_Token",
	)

	// Shape 1: the backend already returns a user object.
	if u := firstResult(root, "user", "data.user"); u.Exists() {
		res := Result{
			User:         normalizeUser(u),
			Token:        token,
			RefreshToken: refreshToken,
		}
		if res.Token == "" {
			res.Token = firstString(root, "user.token", "data.user.token")
		}
		return res
	}

	// Shape 2: flattened claim fields, possibly under "data".
	flat := root
	if d := root.Get("data"); d.Exists() && d.IsObject() {
		flat = d
	}

	email := firstString(flat, "email", "prefferred_username", "preferred_username")
	username := firstString(flat, "prefferred_username", "preferred_username", "username")
	if username == "" {
		given := flat.Get("given_name").String()
		family := flat.Get("family_name").String()
		username = strings.TrimSpace(given + " " + family)
	}
	if username == "" {
		username = email
	}
	if username == "" {
		username = "User"
	}

	id := firstString(flat, "userId", "id", "sub")
	if id == "" {
		id = "unknown"
	}

	roles := firstResult(flat, "roles", "role")

	return Result{
		User: User{
			ID:       id,
			Username: username,
			Email:    email,
			Avatar:   firstString(flat, "avatar", "profileImage", "profile_image"),
			Role:     mapRole(roles),
		},
		Token:        token,
		RefreshToken: refreshToken,
	}
}

// normalizeUser maps a user object onto the canonical User.
func normalizeUser(u gjson.Result) User {
	id := firstString(u, "id", "userId")
	if id == "" {
		id = "unknown"
	}

	username := firstString(u, "username", "name")
	if username == "" {
		if email := u.Get("email").String(); email != "" {
			username = strings.SplitN(email, "@", 2)[0]
		}
	}
	if username == "" {
		username = "User"
	}

	role := firstString(u, "role")
	if role == "" {
		role = mapRole(firstResult(u, "roles"))
	}

	return User{
		ID:       id,
		Username: username,
		Email:    u.Get("email").String(),
		Avatar:   firstString(u, "avatar", "profileImage", "profile_image"),
		Role:     role,
	}
}

// mapRole collapses a roles claim (string, array or absent) to one of
// "user", "moderator", "admin".
func mapRole(roles gjson.Result) string {
	if !roles.Exists() {
		return "user"
	}

	if roles.IsArray() {
		for _, r := range roles.Array() {
			switch strings.ToLower(r.String()) {
			case "admin", "administrator":
				return "admin"
			case "moderator":
				return "moderator"
			}
		}
		return "user"
	}

	r := strings.ToLower(roles.String())
	switch {
	case strings.Contains(r, "admin"):
		return "admin"
	case strings.Contains(r, "moderator"):
		return "moderator"
	default:
		return "user"
	}
}

func firstString(root gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := root.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func firstResult(root gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := root.Get(p); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}
