package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gibiertrace/internal/adapters/httpapi"
	"gibiertrace/internal/auth"
	blobcore "gibiertrace/internal/blob/core"
	"gibiertrace/internal/core"
	dedupmemory "gibiertrace/internal/infra/dedup/memory"
	blobfs "gibiertrace/internal/infra/blob/fs"
	blobmemory "gibiertrace/internal/infra/blob/memory"
	"gibiertrace/internal/obs"
	"gibiertrace/pkg/domain"
)

var (
	examiner    = domain.Actor{ID: "u-exam", Roles: []domain.Role{domain.RoleExaminateurInitial}, Activated: true}
	firstHolder = domain.Actor{ID: "u-pd", Roles: []domain.Role{domain.RolePremierDetenteur}, Activated: true}
	etgUser     = domain.Actor{ID: "u-etg", Roles: []domain.Role{domain.RoleETG}, Activated: true, EntityIDs: []string{"e-etg"}}
	sviUser     = domain.Actor{ID: "u-svi", Roles: []domain.Role{domain.RoleSVI}, Activated: true, EntityIDs: []string{"e-svi"}}
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string][]core.Notification
}

func (n *recordingNotifier) Send(_ context.Context, user domain.User, msg core.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = map[string][]core.Notification{}
	}
	n.sent[user.ID] = append(n.sent[user.ID], msg)
	return nil
}

func (n *recordingNotifier) titles(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, msg := range n.sent[userID] {
		out = append(out, msg.Title)
	}
	return out
}

type harness struct {
	t          *testing.T
	server     *httptest.Server
	authn      *auth.Authenticator
	dispatcher *core.Dispatcher
	notifier   *recordingNotifier
	blobs      blobcore.Store
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func newHarness(t *testing.T, store core.SnapshotStore, blobs blobcore.Store) *harness {
	t.Helper()
	authn, err := auth.New("integration-secret")
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	notifier := &recordingNotifier{}
	dispatcher := core.NewDispatcher(core.DispatcherDeps{
		Directory: core.StoreDirectory{Store: store},
		Notifier:  notifier,
		Dedup:     dedupmemory.New(time.Hour),
	})
	dispatcher.Start()
	metrics := obs.NewMetrics()
	svc := core.NewService(store,
		core.WithEventSink(dispatcher),
		core.WithMetricsRecorder(metrics),
		core.WithJournal(core.BlobJournal{Store: blobs}),
	)
	ctx := context.Background()
	for _, u := range []domain.User{
		{ID: examiner.ID, Roles: examiner.Roles, Activated: true, Notifications: []string{"EMAIL"}},
		{ID: firstHolder.ID, Roles: firstHolder.Roles, Activated: true},
		{ID: etgUser.ID, Roles: etgUser.Roles, Activated: true},
		{ID: sviUser.ID, Roles: sviUser.Roles, Activated: true},
	} {
		if err := svc.PutUser(ctx, u); err != nil {
			t.Fatalf("put user %s: %v", u.ID, err)
		}
	}
	for _, e := range []domain.Entity{
		{ID: "e-etg", Type: domain.RoleETG, MemberIDs: []string{etgUser.ID}},
		{ID: "e-svi", Type: domain.RoleSVI, MemberIDs: []string{sviUser.ID}},
	} {
		if err := svc.PutEntity(ctx, e); err != nil {
			t.Fatalf("put entity %s: %v", e.ID, err)
		}
	}
	router := httpapi.NewRouter(httpapi.NewHandler(svc, authn, nil), httpapi.Options{Metrics: metrics, MaxBodyBytes: 1 << 20})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &harness{t: t, server: server, authn: authn, dispatcher: dispatcher, notifier: notifier, blobs: blobs}
}

func (h *harness) call(actor domain.Actor, method, path, body string, wantStatus int) json.RawMessage {
	h.t.Helper()
	token, err := h.authn.Issue(actor, time.Hour)
	if err != nil {
		h.t.Fatalf("issue token: %v", err)
	}
	req, err := http.NewRequest(method, h.server.URL+path, strings.NewReader(body))
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		h.t.Fatalf("decode %s %s: %v", method, path, err)
	}
	if resp.StatusCode != wantStatus {
		h.t.Fatalf("%s %s: expected %d, got %d (%s)", method, path, wantStatus, resp.StatusCode, env.Error)
	}
	return env.Data
}

// TestCustodyChainOverHTTP walks a dossier from the offline examination to the
// inspection closure for each storage and blob backend.
func TestCustodyChainOverHTTP(t *testing.T) {
	storeVariants := []struct {
		name string
		open func(t *testing.T) core.SnapshotStore
	}{
		{"memory-store", func(t *testing.T) core.SnapshotStore {
			s, err := core.OpenPersistentStore(context.Background(), core.StorageOptions{Driver: core.StorageMemory}, core.NewDefaultRulesEngine())
			if err != nil {
				t.Fatalf("open memory store: %v", err)
			}
			return s
		}},
		{"sqlite-store", func(t *testing.T) core.SnapshotStore {
			s, err := core.OpenPersistentStore(context.Background(), core.StorageOptions{
				Driver:     core.StorageSQLite,
				SQLitePath: filepath.Join(t.TempDir(), "custody.db"),
			}, core.NewDefaultRulesEngine())
			if err != nil {
				t.Fatalf("open sqlite store: %v", err)
			}
			return s
		}},
	}
	blobVariants := []struct {
		name string
		open func(t *testing.T) blobcore.Store
	}{
		{"memory-blob", func(*testing.T) blobcore.Store { return blobmemory.New() }},
		{"filesystem-blob", func(t *testing.T) blobcore.Store {
			s, err := blobfs.New(t.TempDir())
			if err != nil {
				t.Fatalf("new filesystem blob: %v", err)
			}
			return s
		}},
	}

	for _, sv := range storeVariants {
		for _, bv := range blobVariants {
			t.Run(sv.name+"/"+bv.name, func(t *testing.T) {
				runCustodyChain(t, newHarness(t, sv.open(t), bv.open(t)))
			})
		}
	}
}

func runCustodyChain(t *testing.T, h *harness) {
	const numero = "ZACH-20260301-001"
	const unitPath = "/api/v1/fei/" + numero + "/carcasse/" + numero + "_B1"

	// offline examination arrives as a sync batch
	var synced core.SyncResult
	raw := h.call(examiner, http.MethodPost, "/api/v1/sync", `{
	  "carcasses": [{"zacharie_carcasse_id": "`+numero+`_B1", "fei_numero": "`+numero+`", "numero_bracelet": "B1", "espece": "Chevreuil"}],
	  "feis": [{"numero": "`+numero+`", "date_mise_a_mort": "2026-03-01T06:30:00Z", "commune_mise_a_mort": "Rambouillet", "premier_detenteur_user_id": "u-pd"}],
	  "logs": [{"id": "log-1", "action": "fei_created_offline", "fei_numero": "`+numero+`"}]
	}`, http.StatusOK)
	if err := json.Unmarshal(raw, &synced); err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	if len(synced.Rejected) != 0 || len(synced.Dossiers) != 1 || len(synced.Dossiers[0].Units) != 1 {
		t.Fatalf("unexpected sync result %+v", synced)
	}

	path := "/api/v1/fei/" + numero
	h.call(examiner, http.MethodPost, path, `{"examinateur_initial_approbation_mise_sur_le_marche": true, "fei_next_owner_role": "PREMIER_DETENTEUR", "fei_next_owner_user_id": "u-pd"}`, http.StatusOK)
	h.call(firstHolder, http.MethodPost, path, `{
	  "fei_current_owner_role": "PREMIER_DETENTEUR", "fei_current_owner_user_id": "u-pd",
	  "fei_prev_owner_role": "EXAMINATEUR_INITIAL", "fei_prev_owner_user_id": "u-exam",
	  "fei_next_owner_role": "ETG", "fei_next_owner_user_id": null, "fei_next_owner_entity_id": "e-etg"
	}`, http.StatusOK)
	h.call(etgUser, http.MethodPost, path, `{
	  "fei_current_owner_role": "ETG", "fei_current_owner_user_id": "u-etg", "fei_current_owner_entity_id": "e-etg",
	  "fei_prev_owner_role": "PREMIER_DETENTEUR", "fei_prev_owner_user_id": "u-pd",
	  "fei_next_owner_role": null, "fei_next_owner_entity_id": null
	}`, http.StatusOK)
	h.call(etgUser, http.MethodPost, unitPath+"/intermediaire/hop-etg", `{"intermediaire_role": "ETG", "intermediaire_user_id": "u-etg", "intermediaire_entity_id": "e-etg", "decision": "ACCEPTE"}`, http.StatusOK)
	h.call(etgUser, http.MethodPost, path, `{"fei_next_owner_role": "SVI", "fei_next_owner_entity_id": "e-svi", "svi_entity_id": "e-svi"}`, http.StatusOK)
	h.call(sviUser, http.MethodPost, path, `{
	  "fei_current_owner_role": "SVI", "fei_current_owner_user_id": "u-svi", "fei_current_owner_entity_id": "e-svi",
	  "fei_prev_owner_role": "ETG", "fei_prev_owner_entity_id": "e-etg",
	  "fei_next_owner_role": null, "fei_next_owner_entity_id": null
	}`, http.StatusOK)
	h.call(sviUser, http.MethodPost, unitPath, `{"svi_ipm2_decision": "SAISIE_TOTALE", "svi_ipm2_lesions_ou_motifs": ["Abcès multiples"]}`, http.StatusOK)
	h.call(sviUser, http.MethodPost, path, `{"svi_closed_at": "2026-03-01T12:00:00Z", "svi_closed_by_user_id": "u-svi"}`, http.StatusOK)

	var closed struct {
		Fei domain.DossierView `json:"fei"`
	}
	if err := json.Unmarshal(h.call(examiner, http.MethodGet, path, "", http.StatusOK), &closed); err != nil {
		t.Fatalf("decode dossier: %v", err)
	}
	if !closed.Fei.IsTerminal() || len(closed.Fei.Units) != 1 || len(closed.Fei.Hops) != 1 {
		t.Fatalf("expected closed dossier with joined unit and hop, got %+v", closed.Fei)
	}
	if d := closed.Fei.Units[0].SVIIPM2Decision; d == nil || *d != domain.IPMDecisionSeizureTotal {
		t.Fatalf("expected seizure on the unit, got %v", d)
	}

	// a closed dossier refuses further ownership transitions
	h.call(etgUser, http.MethodPost, path, `{"fei_current_owner_role": "ETG", "fei_current_owner_entity_id": "e-etg"}`, http.StatusConflict)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.dispatcher.Close(ctx); err != nil {
		t.Fatalf("drain dispatcher: %v", err)
	}
	if titles := h.notifier.titles(examiner.ID); !containsSubstring(titles, "saisie") {
		t.Fatalf("expected the examiner to be told about the seizure, got %v", titles)
	}

	infos, err := h.blobs.List(context.Background(), "sync/")
	if err != nil {
		t.Fatalf("list journal: %v", err)
	}
	if len(infos) != 1 || !strings.HasSuffix(infos[0].Key, synced.BatchID+".json") {
		t.Fatalf("expected the sync batch to be journaled, got %+v", infos)
	}
}

func containsSubstring(values []string, sub string) bool {
	for _, v := range values {
		if strings.Contains(v, sub) {
			return true
		}
	}
	return false
}
