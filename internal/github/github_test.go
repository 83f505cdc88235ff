package github

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/membership"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/retry"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/validation"
)

var testSecret = []byte("webhook-secret")

func sign(body []byte) string {
	mac := hmac.New(sha256.New, testSecret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func webhookRequest(eventType, body string, signed bool) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", "72d3162e-cc78-11e3-81ab-4c9367dc0958")
	if signed {
		req.Header.Set("X-Hub-Signature-256", sign([]byte(body)))
	}
	return req
}

const addedPayload = `{
  "action": "added",
  "member": {"login": "octocat"},
  "changes": {"permission": {"to": "write"}},
  "repository": {"full_name": "acme/widgets"},
  "organization": {"login": "acme"},
  "sender": {"login": "admin-user"}
}`

func TestParseWebhook(t *testing.T) {
	receivedAt := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	t.Run("added", func(t *testing.T) {
		d, err := ParseWebhook(webhookRequest("member", addedPayload, true), testSecret, receivedAt)
		require.NoError(t, err)
		assert.Equal(t, "72d3162e-cc78-11e3-81ab-4c9367dc0958", d.ID)
		ev := d.Event
		assert.Equal(t, domain.ActionAdded, ev.Action)
		assert.Equal(t, "octocat", ev.Subject)
		assert.Equal(t, "admin-user", ev.Actor)
		assert.Equal(t, "acme", ev.Organization)
		assert.Equal(t, "acme/widgets", ev.Repository)
		assert.Equal(t, "write", ev.Permission)
		assert.Nil(t, ev.PermissionChange)
		assert.Equal(t, receivedAt, ev.Timestamp)
		assert.Equal(t, d.ID, ev.DeliveryID)
	})

	t.Run("edited", func(t *testing.T) {
		body := `{"action":"edited","member":{"login":"octocat"},
			"changes":{"permission":{"from":"read","to":"admin"}},
			"repository":{"full_name":"acme/widgets"},"organization":{"login":"acme"},"sender":{"login":"admin-user"}}`
		d, err := ParseWebhook(webhookRequest("member", body, true), testSecret, receivedAt)
		require.NoError(t, err)
		require.NotNil(t, d.Event.PermissionChange)
		assert.Equal(t, domain.PermissionChange{From: "read", To: "admin"}, *d.Event.PermissionChange)
	})

	t.Run("removed has no changes", func(t *testing.T) {
		body := `{"action":"removed","member":{"login":"octocat"},
			"repository":{"full_name":"acme/widgets"},"organization":{"login":"acme"},"sender":{"login":"admin-user"}}`
		d, err := ParseWebhook(webhookRequest("member", body, true), testSecret, receivedAt)
		require.NoError(t, err)
		assert.Equal(t, domain.ActionRemoved, d.Event.Action)
	})

	t.Run("bad signature", func(t *testing.T) {
		req := webhookRequest("member", addedPayload, false)
		req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
		_, err := ParseWebhook(req, testSecret, receivedAt)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("unsigned", func(t *testing.T) {
		_, err := ParseWebhook(webhookRequest("member", addedPayload, false), testSecret, receivedAt)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("other event type", func(t *testing.T) {
		_, err := ParseWebhook(webhookRequest("push", `{"ref":"main"}`, true), testSecret, receivedAt)
		assert.ErrorIs(t, err, ErrIgnoredEvent)
	})

	t.Run("installation repositories", func(t *testing.T) {
		body := `{"action":"added","repositories_added":[{"full_name":"acme/new"}]}`
		_, err := ParseWebhook(webhookRequest("installation_repositories", body, true), testSecret, receivedAt)
		assert.ErrorIs(t, err, ErrIgnoredEvent)
	})

	t.Run("form encoded", func(t *testing.T) {
		body := url.Values{"payload": {addedPayload}}.Encode()
		req := webhookRequest("member", body, true)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		d, err := ParseWebhook(req, testSecret, receivedAt)
		require.NoError(t, err)
		assert.Equal(t, "octocat", d.Event.Subject)
		assert.Equal(t, "write", d.Event.Permission)
	})

	t.Run("sha1 signature", func(t *testing.T) {
		req := webhookRequest("member", addedPayload, false)
		mac := hmac.New(sha1.New, testSecret)
		mac.Write([]byte(addedPayload))
		req.Header.Set("X-Hub-Signature", "sha1="+hex.EncodeToString(mac.Sum(nil)))
		d, err := ParseWebhook(req, testSecret, receivedAt)
		require.NoError(t, err)
		assert.Equal(t, domain.ActionAdded, d.Event.Action)
	})

	t.Run("unsupported content type", func(t *testing.T) {
		req := webhookRequest("member", addedPayload, true)
		req.Header.Set("Content-Type", "text/plain")
		_, err := ParseWebhook(req, testSecret, receivedAt)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("no secret configured", func(t *testing.T) {
		_, err := ParseWebhook(webhookRequest("member", addedPayload, true), nil, receivedAt)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("invalid handle", func(t *testing.T) {
		body := `{"action":"added","member":{"login":"-bad-"},
			"repository":{"full_name":"acme/widgets"},"organization":{"login":"acme"},"sender":{"login":"admin-user"}}`
		_, err := ParseWebhook(webhookRequest("member", body, true), testSecret, receivedAt)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		var verrs validation.ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.Equal(t, []string{"subject"}, verrs.Fields())
	})

	t.Run("unknown action", func(t *testing.T) {
		body := `{"action":"invited","member":{"login":"octocat"},
			"repository":{"full_name":"acme/widgets"},"organization":{"login":"acme"},"sender":{"login":"admin-user"}}`
		_, err := ParseWebhook(webhookRequest("member", body, true), testSecret, receivedAt)
		assert.ErrorIs(t, err, ErrIgnoredEvent)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ParseWebhook(webhookRequest("member", `{"action":`, true), testSecret, receivedAt)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("missing member", func(t *testing.T) {
		body := `{"action":"added","repository":{"full_name":"acme/widgets"},"organization":{"login":"acme"},"sender":{"login":"a"}}`
		_, err := ParseWebhook(webhookRequest("member", body, true), testSecret, receivedAt)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(context.Background(), Config{
		Orgs:    []OrgCredentials{{Org: "acme", Token: "tok"}},
		BaseURL: srv.URL,
		Retry:   retry.Policy{Attempts: 3, Delay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	require.NoError(t, err)
	return c
}

func TestListOutsideCollaborators_Paginates(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/acme/outside_collaborators", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"login":"carol"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/orgs/acme/outside_collaborators?page=2>; rel="next"`, srvURL))
		fmt.Fprint(w, `[{"login":"alice"},{"login":"bob"}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	c, err := NewClient(context.Background(), Config{
		Orgs:    []OrgCredentials{{Org: "acme", Token: "tok"}},
		BaseURL: srv.URL,
	})
	require.NoError(t, err)

	logins, err := c.ListOutsideCollaborators(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, logins)
}

func TestRemoveOutsideCollaborator(t *testing.T) {
	var removed string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		removed = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.RemoveOutsideCollaborator(context.Background(), "acme", "octocat"))
	assert.Equal(t, "/orgs/acme/outside_collaborators/octocat", removed)

	err := c.RemoveOutsideCollaborator(context.Background(), "unknown-org", "octocat")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrConfiguration},
		{http.StatusUnprocessableEntity, domain.ErrDataIntegrity},
		{http.StatusBadGateway, domain.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"message":"nope"}`)
			}))
			err := c.RemoveOutsideCollaborator(context.Background(), "acme", "octocat")
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestMembershipDirectory(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/orgs/acme/memberships/employee":
			fmt.Fprint(w, `{"state":"active","role":"member"}`)
		case "/orgs/acme/memberships/invitee":
			fmt.Fprint(w, `{"state":"pending","role":"member"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
		}
	}))
	dir := NewMembershipDirectory(c)
	ctx := context.Background()

	assert.Equal(t, membership.StatusFound, dir.Lookup(ctx, "employee").Status)
	assert.Equal(t, membership.StatusUnrecognized, dir.Lookup(ctx, "invitee").Status)
	assert.Equal(t, membership.StatusUnrecognized, dir.Lookup(ctx, "stranger").Status)
}

func TestMembershipDirectory_FailuresAreRetryable(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"bad request", http.StatusBadRequest},
		{"unauthorized", http.StatusUnauthorized},
		{"forbidden", http.StatusForbidden},
		{"rate limited", http.StatusTooManyRequests},
		{"bad gateway", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"message":"nope"}`)
			}))

			res := NewMembershipDirectory(c).Lookup(context.Background(), "octocat")
			require.Equal(t, membership.StatusTransient, res.Status)
			assert.ErrorIs(t, res.Err, domain.ErrTransient)
			assert.NotErrorIs(t, res.Err, domain.ErrConfiguration)
			assert.NotErrorIs(t, res.Err, domain.ErrDataIntegrity)

			class := membership.Classify("octocat", res)
			assert.Equal(t, membership.KindLookupFailed, class.Kind)
			assert.True(t, class.Retryable)
			assert.True(t, domain.IsRetryable(class.Err))
		})
	}
}

func TestFileShim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "github.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"outside_collaborators": {"acme": ["alice", "bob"]},
		"members": {"acme": ["carol"]}
	}`), 0644))

	shim := NewFileShim(path, []string{"acme"})
	ctx := context.Background()

	logins, err := shim.ListOutsideCollaborators(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, logins)

	require.NoError(t, shim.RemoveOutsideCollaborator(ctx, "acme", "alice"))
	assert.ErrorIs(t, shim.RemoveOutsideCollaborator(ctx, "acme", "alice"), domain.ErrNotFound)

	logins, err = shim.ListOutsideCollaborators(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, logins)

	active, err := shim.IsActiveMember(ctx, "acme", "carol")
	require.NoError(t, err)
	assert.True(t, active)
}
