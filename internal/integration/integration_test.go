//go:build integration
// +build integration

package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	httpapi "github.com/escrowroom/escrowroom/internal/api/http"
	"github.com/escrowroom/escrowroom/internal/application/auth"
	"github.com/escrowroom/escrowroom/internal/application/deposit"
	"github.com/escrowroom/escrowroom/internal/application/dispute"
	approom "github.com/escrowroom/escrowroom/internal/application/room"
	"github.com/escrowroom/escrowroom/internal/infrastructure/gateway"
	"github.com/escrowroom/escrowroom/internal/infrastructure/postgres"
	"github.com/escrowroom/escrowroom/internal/infrastructure/sse"
)

const (
	senderName   = "alice"
	receiverName = "bobby"
	testPassword = "S3cure!Passw0rd"
)

func TestEscrowHappyPathIntegration(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	sender := newAuthedClient(t, server.URL, senderName)
	receiver := newAuthedClient(t, server.URL, receiverName)

	// Sender creates the room and shares the join code.
	var created struct {
		RoomID   string `json:"roomId"`
		JoinCode string `json:"joinCode"`
		Step     string `json:"step"`
	}
	postJSON(t, sender, server.URL+"/v1/rooms/", map[string]interface{}{
		"name": "laptop sale",
	}, &created)
	if created.Step != "WAITING_FOR_PEER" {
		t.Fatalf("new room step = %s", created.Step)
	}

	var state roomState
	postJSON(t, receiver, server.URL+"/v1/rooms/join", map[string]interface{}{
		"join_code": created.JoinCode,
	}, &state)
	if state.Room.Step != "ROLE_SELECTION" {
		t.Fatalf("after join step = %s", state.Room.Step)
	}

	roomURL := server.URL + "/v1/rooms/" + created.RoomID

	// Roles.
	postJSON(t, sender, roomURL+"/role", map[string]interface{}{"role": "SENDER"}, nil)
	postJSON(t, receiver, roomURL+"/role", map[string]interface{}{"role": "RECEIVER"}, nil)
	postJSON(t, sender, roomURL+"/role/confirm", map[string]interface{}{}, nil)
	postJSON(t, receiver, roomURL+"/role/confirm", map[string]interface{}{}, &state)
	if state.Room.Step != "AMOUNT_AGREEMENT" {
		t.Fatalf("after role confirm step = %s", state.Room.Step)
	}

	// Amount.
	postJSON(t, sender, roomURL+"/amount", map[string]interface{}{"amount": "100.00"}, nil)
	postJSON(t, sender, roomURL+"/amount/confirm", map[string]interface{}{"confirmed": true}, nil)
	postJSON(t, receiver, roomURL+"/amount/confirm", map[string]interface{}{"confirmed": true}, &state)
	if state.Room.Step != "FEE_SELECTION" {
		t.Fatalf("after amount confirm step = %s", state.Room.Step)
	}

	// Fee: sender pays, so deposit is amount + 1%.
	postJSON(t, sender, roomURL+"/fee", map[string]interface{}{"fee_payer": "SENDER"}, nil)
	postJSON(t, sender, roomURL+"/fee/confirm", map[string]interface{}{}, nil)
	postJSON(t, receiver, roomURL+"/fee/confirm", map[string]interface{}{}, &state)
	if state.Room.Step != "AWAITING_DEPOSIT" {
		t.Fatalf("after fee confirm step = %s", state.Room.Step)
	}

	var info struct {
		EscrowAddress  string `json:"escrowAddress"`
		ExpectedAmount int64  `json:"expectedAmount"`
	}
	getJSON(t, sender, roomURL+"/deposit", &info)
	if info.EscrowAddress == "" || info.ExpectedAmount != 101000000 {
		t.Fatalf("unexpected deposit info: %+v", info)
	}

	// Deposit through the simulated path; a second check must be a no-op.
	var dep struct {
		Found bool   `json:"found"`
		TxRef string `json:"txRef"`
	}
	postJSON(t, sender, roomURL+"/deposit/simulate", map[string]interface{}{}, &dep)
	if !dep.Found || dep.TxRef == "" {
		t.Fatalf("simulated deposit not found: %+v", dep)
	}
	postJSON(t, sender, roomURL+"/deposit/check", map[string]interface{}{}, &dep)
	if dep.Found {
		t.Fatalf("second deposit check reprocessed the deposit")
	}
	getJSON(t, sender, roomURL+"/", &state)
	if state.Room.Step != "FUNDED" {
		t.Fatalf("after deposit step = %s", state.Room.Step)
	}

	// Release. Simulated mode pays out on the receiver's confirmation.
	postJSON(t, sender, roomURL+"/release", map[string]interface{}{}, nil)
	postJSON(t, receiver, roomURL+"/release/confirm", map[string]interface{}{}, &state)
	if state.Room.Step != "COMPLETED" || state.Room.Status != "COMPLETED" {
		t.Fatalf("after release step=%s status=%s", state.Room.Step, state.Room.Status)
	}

	// Terminal rooms reject further actions.
	resp := rawPost(t, sender, roomURL+"/cancel", map[string]interface{}{})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("action on completed room returned %d", resp.StatusCode)
	}
}

func TestSSEDeliveryIntegration(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	sender := newAuthedClient(t, server.URL, senderName)
	receiver := newAuthedClient(t, server.URL, receiverName)

	var created struct {
		RoomID   string `json:"roomId"`
		JoinCode string `json:"joinCode"`
	}
	postJSON(t, sender, server.URL+"/v1/rooms/", map[string]interface{}{"name": "sse room"}, &created)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/rooms/"+created.RoomID+"/events", nil)
	if err != nil {
		t.Fatalf("sse request: %v", err)
	}
	resp, err := sender.Do(req)
	if err != nil {
		t.Fatalf("sse connect: %v", err)
	}
	defer resp.Body.Close()

	msgCh := make(chan map[string]interface{}, 1)
	go func() {
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				payload := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
				var msg map[string]interface{}
				if err := json.Unmarshal([]byte(payload), &msg); err == nil {
					msgCh <- msg
					return
				}
			}
		}
	}()

	postJSON(t, receiver, server.URL+"/v1/rooms/join", map[string]interface{}{
		"join_code": created.JoinCode,
	}, nil)

	select {
	case msg := <-msgCh:
		if msg["action"] != "PEER_JOINED" {
			t.Fatalf("unexpected action: %v", msg["action"])
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("SSE message not received")
	}
}

type roomState struct {
	Room struct {
		RoomID string `json:"roomId"`
		Step   string `json:"step"`
		Status string `json:"status"`
	} `json:"room"`
}

func postJSON(t *testing.T, client *http.Client, url string, body interface{}, out interface{}) {
	t.Helper()
	resp := rawPost(t, client, url, body)
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("post %s status %d: %s", url, resp.StatusCode, string(bodyBytes))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func rawPost(t *testing.T, client *http.Client, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func getJSON(t *testing.T, client *http.Client, url string, out interface{}) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("get %s status %d: %s", url, resp.StatusCode, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func newAuthedClient(t *testing.T, baseURL, username string) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	client := &http.Client{Timeout: 10 * time.Second, Jar: jar}
	registerUser(t, client, baseURL, username)
	postJSON(t, client, baseURL+"/v1/auth/login", map[string]string{
		"username": username,
		"password": testPassword,
	}, nil)
	return client
}

func registerUser(t *testing.T, client *http.Client, baseURL, username string) {
	t.Helper()
	payload := map[string]string{"username": username, "password": testPassword}
	data, _ := json.Marshal(payload)
	resp, err := client.Post(baseURL+"/v1/auth/register", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusBadRequest {
		return
	}
	body, _ := io.ReadAll(resp.Body)
	t.Fatalf("register status %d: %s", resp.StatusCode, string(body))
}

func newTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	dsn := testDatabaseURL(t)

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("db pool: %v", err)
	}

	root := repoRoot(t)
	if err := postgres.RunMigrations(ctx, pool, filepath.Join(root, "internal", "migrations")); err != nil {
		pool.Close()
		t.Fatalf("migrations: %v", err)
	}
	if err := resetDatabase(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("reset db: %v", err)
	}

	logger := zerolog.Nop()
	roomRepo := postgres.NewRoomRepository(pool)
	settlementRepo := postgres.NewSettlementRepository(pool)
	disputeRepo := postgres.NewDisputeRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)

	sseHub := sse.NewHub(logger)
	locks := approom.NewLocker()
	simGw := gateway.NewSimulated(logger)

	authSvc := auth.NewService(userRepo, sessionRepo, 24*time.Hour, logger)
	roomSvc := approom.NewService(roomRepo, settlementRepo, simGw, sseHub, userRepo, locks, true, logger)
	depositSvc := deposit.NewService(roomRepo, simGw, simGw, sseHub, locks, logger)
	disputeSvc := dispute.NewService(disputeRepo, roomRepo, sseHub, userRepo, logger)

	defaults := httpapi.RoomDefaults{ChainID: "base-sepolia", TokenSymbol: "USDC", TokenDecimals: 6}
	apiServer := httpapi.NewServer(roomSvc, depositSvc, disputeSvc, authSvc, settlementRepo, sseHub, defaults, "escrow_room_session", false)
	server := httptest.NewServer(apiServer.Router())

	cleanup := func() {
		server.Close()
		pool.Close()
	}

	return server, cleanup
}

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	t.Skip("TEST_DATABASE_URL not set; skipping integration tests")
	return ""
}

func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}

func resetDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		TRUNCATE TABLE
			settlement_transactions,
			disputes,
			participants,
			rooms,
			sessions,
			users
		RESTART IDENTITY CASCADE
	`)
	return err
}
