package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tradetalk/pkg/api"
	"tradetalk/pkg/auth"
	"tradetalk/pkg/client"
	"tradetalk/pkg/config"
	"tradetalk/pkg/logger"
	"tradetalk/pkg/models"
	"tradetalk/pkg/realtime"
	"tradetalk/pkg/store"

	"github.com/stretchr/testify/require"
)

const (
	frontendKey = "fe-test-key"
	backendKey  = "be-test-key"
	signingKey  = "test-signing-secret"
)

func defaultSec() auth.SecConfig {
	return auth.SecConfig{
		RPS:          1000,
		Burst:        2000,
		BackendKeys:  map[string]struct{}{backendKey: {}},
		FrontendKeys: map[string]struct{}{frontendKey: {}},
	}
}

// setupServer boots the full stack: pebble store, runtime keys, hub and
// the gateway-wrapped router, exactly as the binary wires them.
func setupServer(t *testing.T, sec auth.SecConfig) *httptest.Server {
	t.Helper()
	logger.Init()
	require.NoError(t, store.Open(t.TempDir()+"/db"))
	config.SetRuntime(&config.RuntimeConfig{
		BackendKeys: map[string]struct{}{backendKey: {}},
		SigningKeys: map[string]struct{}{signingKey: {}},
	})

	hub := realtime.NewHub(realtime.Options{TypingTTL: time.Second})
	go hub.Run()

	handler := auth.AuthenticateRequestMiddleware(sec)(api.Router(hub))
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
		_ = store.Close()
	})
	return srv
}

func seedDirectory(t *testing.T) {
	t.Helper()
	require.NoError(t, store.SaveAccount(models.Account{ID: "acct-a", DisplayName: "Ada"}))
	require.NoError(t, store.SaveAccount(models.Account{ID: "acct-b", DisplayName: "Bob"}))
	require.NoError(t, store.SaveContractor(models.Contractor{ID: "ctr-b", AccountID: "acct-b", BusinessName: "Bob Plumbing"}))
}

func frontendClient(srv *httptest.Server, accountID, role string) *client.Client {
	return client.New(srv.URL, frontendKey, accountID, role, signingKey)
}

func TestSendAndReadFlow(t *testing.T) {
	srv := setupServer(t, defaultSec())
	seedDirectory(t)
	ada := frontendClient(srv, "acct-a", "user")
	bob := frontendClient(srv, "acct-b", "user")

	m, err := ada.SendMessage(models.Participant{ID: "acct-b"}, "hello bob")
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)
	require.Equal(t, "acct-a", m.SenderAccount)
	require.False(t, m.Read)

	convs, err := bob.Conversations()
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, 1, convs[0].UnreadCount)
	require.Equal(t, "Ada", convs[0].Other.DisplayName)

	// peek is a pure read
	msgs, err := bob.ConversationMessages("acct-a", true)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.False(t, msgs[0].Read)

	// opening the conversation flips the flag
	msgs, err = bob.ConversationMessages("acct-a", false)
	require.NoError(t, err)
	require.True(t, msgs[0].Read)

	convs, err = bob.Conversations()
	require.NoError(t, err)
	require.Equal(t, 0, convs[0].UnreadCount)
}

func TestAliasedAddressingSharesOneConversation(t *testing.T) {
	srv := setupServer(t, defaultSec())
	seedDirectory(t)
	ada := frontendClient(srv, "acct-a", "user")

	m1, err := ada.SendMessage(models.Participant{ID: "acct-b"}, "to the person")
	require.NoError(t, err)
	m2, err := ada.SendMessage(models.Participant{ID: "ctr-b"}, "to the business")
	require.NoError(t, err)
	require.Equal(t, m1.ConversationID, m2.ConversationID)

	convs, err := ada.Conversations()
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, "to the business", convs[0].LastMessage.Text)
}

func TestContractorRoleSendsAsProfile(t *testing.T) {
	srv := setupServer(t, defaultSec())
	seedDirectory(t)
	bob := frontendClient(srv, "acct-b", "contractor")

	m, err := bob.SendMessage(models.Participant{ID: "acct-a"}, "quote ready")
	require.NoError(t, err)
	require.Equal(t, "ctr-b", m.Sender.ID)
	require.Equal(t, "acct-b", m.SenderAccount)
	require.Equal(t, "Bob Plumbing", m.SenderName)
}

func TestMarkMessageReadOnlyRecipient(t *testing.T) {
	srv := setupServer(t, defaultSec())
	seedDirectory(t)
	ada := frontendClient(srv, "acct-a", "user")
	bob := frontendClient(srv, "acct-b", "user")

	m, err := ada.SendMessage(models.Participant{ID: "acct-b"}, "receipt me")
	require.NoError(t, err)

	_, err = ada.MarkMessageRead(m.ID)
	require.ErrorContains(t, err, "403")

	got, err := bob.MarkMessageRead(m.ID)
	require.NoError(t, err)
	require.True(t, got.Read)
}

func TestMarkConversationReadExplicit(t *testing.T) {
	srv := setupServer(t, defaultSec())
	seedDirectory(t)
	ada := frontendClient(srv, "acct-a", "user")
	bob := frontendClient(srv, "acct-b", "user")

	_, err := ada.SendMessage(models.Participant{ID: "acct-b"}, "one")
	require.NoError(t, err)
	_, err = ada.SendMessage(models.Participant{ID: "acct-b"}, "two")
	require.NoError(t, err)

	n, err := bob.MarkConversationRead("acct-a")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = bob.MarkConversationRead("acct-a")
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestUnknownRecipientIs404(t *testing.T) {
	srv := setupServer(t, defaultSec())
	seedDirectory(t)
	ada := frontendClient(srv, "acct-a", "user")

	_, err := ada.SendMessage(models.Participant{ID: "acct-ghost"}, "anyone there")
	require.ErrorContains(t, err, "404")

	_, err = ada.ConversationMessages("acct-ghost", false)
	require.ErrorContains(t, err, "404")
}

func TestAuthRejections(t *testing.T) {
	srv := setupServer(t, defaultSec())
	seedDirectory(t)

	// no api key at all
	resp, err := http.Get(srv.URL + "/v1/messages/conversations")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// frontend key without signature headers
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/messages/conversations", nil)
	req.Header.Set("X-API-Key", frontendKey)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// frontend key with a forged signature
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/v1/messages/conversations", nil)
	req.Header.Set("X-API-Key", frontendKey)
	req.Header.Set("X-User-ID", "acct-a")
	req.Header.Set("X-User-Signature", "deadbeef")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// frontend keys cannot reach directory provisioning
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/v1/accounts", bytes.NewBufferString(`{"display_name":"Eve"}`))
	req.Header.Set("X-API-Key", frontendKey)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	sec := defaultSec()
	sec.RPS = 1
	sec.Burst = 2
	srv := setupServer(t, sec)
	seedDirectory(t)
	ada := frontendClient(srv, "acct-a", "user")

	var limited bool
	for i := 0; i < 10; i++ {
		if _, err := ada.Conversations(); err != nil {
			require.ErrorContains(t, err, "429")
			limited = true
			break
		}
	}
	require.True(t, limited, "burst of requests must trip the limiter")
}

func TestDirectoryProvisioning(t *testing.T) {
	srv := setupServer(t, defaultSec())

	post := func(path, body string) *http.Response {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewBufferString(body))
		req.Header.Set("X-API-Key", backendKey)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := post("/v1/accounts", `{"id":"acct-z","display_name":"Zoe"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// contractor without an owning account
	resp = post("/v1/contractors", `{"id":"ctr-x","account_id":"acct-missing","business_name":"Ghost LLC"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = post("/v1/contractors", `{"id":"ctr-z","account_id":"acct-z","business_name":"Zoe Tiling"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/contractors/ctr-z", nil)
	req.Header.Set("X-API-Key", backendKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var c models.Contractor
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&c))
	require.Equal(t, "acct-z", c.AccountID)
}

func TestWebsocketDeliveryEndToEnd(t *testing.T) {
	srv := setupServer(t, defaultSec())
	seedDirectory(t)
	ada := frontendClient(srv, "acct-a", "user")
	bob := frontendClient(srv, "acct-b", "user")

	conn, err := bob.Dial()
	require.NoError(t, err)
	defer conn.Close()

	// give the register event time to bind the account room
	require.Eventually(t, func() bool {
		online, err := ada.Presence("acct-b")
		return err == nil && online
	}, 2*time.Second, 20*time.Millisecond)

	sent, err := ada.SendMessage(models.Participant{ID: "acct-b"}, "live wire")
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		ev, err := conn.Next()
		require.NoError(t, err)
		if ev.Type != models.EventNewMessage {
			continue
		}
		var got models.Message
		require.NoError(t, json.Unmarshal(ev.Payload, &got))
		require.Equal(t, sent.ID, got.ID)
		require.Equal(t, "live wire", got.Text)
		break
	}
}
