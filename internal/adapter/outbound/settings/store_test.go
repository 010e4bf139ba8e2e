package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// ---------------------------------------------------------------------------
// DefaultDocument tests
// ---------------------------------------------------------------------------

func TestDefaultDocument_RoutingDefaults(t *testing.T) {
	doc := DefaultDocument()

	if doc.Version != "1" {
		t.Errorf("expected Version '1', got %q", doc.Version)
	}

	r := doc.SystemConfig.Routing
	if !r.EnableGlobalRoute {
		t.Error("expected EnableGlobalRoute true by default")
	}
	if !r.EnableGroupNameRoute {
		t.Error("expected EnableGroupNameRoute true by default")
	}
	if r.RequireMcpAuth || r.EnableBearerAuth || r.SkipAuth {
		t.Errorf("expected auth flags false by default, got %+v", r)
	}
	if r.BearerAuthKey != "" {
		t.Errorf("expected empty BearerAuthKey, got %q", r.BearerAuthKey)
	}
	if doc.Users == nil || len(doc.Users) != 0 {
		t.Errorf("expected empty Users slice, got %v", doc.Users)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

// ---------------------------------------------------------------------------
// Load tests
// ---------------------------------------------------------------------------

func TestLoad_NoFile_ReturnsDefaults(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "mcp_settings.json"), testLogger())

	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if !doc.SystemConfig.Routing.EnableGlobalRoute {
		t.Error("expected default routing config")
	}
}

func TestLoad_InvalidJSON_ReturnsErrCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(path, testLogger())
	if _, err := s.Load(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_settings.json")
	s := NewFileStore(path, testLogger())

	issued := time.Now().UTC().Truncate(time.Second)
	original := DefaultDocument()
	original.SystemConfig.Routing.RequireMcpAuth = true
	original.SystemConfig.Routing.BearerAuthKey = "k"
	original.Users = []UserEntry{
		{Username: "alice", PasswordHash: "$argon2id$x", IsAdmin: true, AccessToken: "mg_abc", TokenIssuedAt: &issued},
		{Username: "bob", PasswordHash: "$argon2id$y"},
	}

	if err := s.Save(original); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if !loaded.SystemConfig.Routing.RequireMcpAuth {
		t.Error("RequireMcpAuth not persisted")
	}
	if len(loaded.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(loaded.Users))
	}
	u := loaded.FindUser("alice")
	if u == nil {
		t.Fatal("FindUser(alice) returned nil")
	}
	if u.AccessToken != "mg_abc" || !u.IsAdmin {
		t.Errorf("unexpected user record: %+v", u)
	}
	if u.TokenIssuedAt == nil || !u.TokenIssuedAt.Equal(issued) {
		t.Errorf("TokenIssuedAt not persisted: %v", u.TokenIssuedAt)
	}
	if loaded.FindUser("nobody") != nil {
		t.Error("FindUser(nobody) should return nil")
	}
}

func TestSave_SetsRestrictivePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "mcp_settings.json")
	s := NewFileStore(path, testLogger())

	if err := s.Save(DefaultDocument()); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		t.Errorf("expected 0600 permissions, got %04o", mode)
	}
}

func TestSave_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp_settings.json")
	s := NewFileStore(path, testLogger())

	if err := s.Save(DefaultDocument()); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after Save")
	}
}

// ---------------------------------------------------------------------------
// Update tests
// ---------------------------------------------------------------------------

func TestUpdate_AppliesMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_settings.json")
	s := NewFileStore(path, testLogger())

	err := s.Update(func(doc *Document) error {
		doc.Users = append(doc.Users, UserEntry{Username: "alice"})
		return nil
	})
	if err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}

	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if doc.FindUser("alice") == nil {
		t.Error("Update mutation not persisted")
	}
}

func TestUpdate_MutationError_NothingWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_settings.json")
	s := NewFileStore(path, testLogger())

	wantErr := errors.New("user not found")
	if err := s.Update(func(doc *Document) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("expected mutation error, got %v", err)
	}
	if s.Exists() {
		t.Error("Update wrote a file despite mutation error")
	}
}

// TestUpdate_ConcurrentWriters verifies that parallel Update calls serialize:
// every increment lands, none lost to a read-modify-write race.
func TestUpdate_ConcurrentWriters(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "mcp_settings.json")
	s := NewFileStore(path, testLogger())

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := s.Update(func(doc *Document) error {
				doc.Users = append(doc.Users, UserEntry{Username: fmt.Sprintf("user-%d", n)})
				return nil
			})
			if err != nil {
				t.Errorf("Update() from writer %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Users) != writers {
		t.Errorf("expected %d users after concurrent updates, got %d", writers, len(doc.Users))
	}
}

// ---------------------------------------------------------------------------
// Restore tests
// ---------------------------------------------------------------------------

func TestRestore_WritesBytesVerbatim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_settings.json")
	s := NewFileStore(path, testLogger())

	doc := DefaultDocument()
	doc.Users = []UserEntry{{Username: "alice", IsAdmin: true}}
	if err := s.Save(doc); err != nil {
		t.Fatal(err)
	}
	snapshot, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// Overwrite the live file, then put the snapshot back.
	if err := s.Update(func(d *Document) error { d.Users = nil; return nil }); err != nil {
		t.Fatal(err)
	}
	if err := s.Restore(snapshot); err != nil {
		t.Fatalf("Restore() returned error: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(snapshot) {
		t.Error("Restore did not reproduce the snapshot byte for byte")
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.UpdatedAt.Equal(doc.UpdatedAt) {
		t.Errorf("Restore re-stamped UpdatedAt: got %v, want %v", loaded.UpdatedAt, doc.UpdatedAt)
	}
}

func TestRestore_InvalidBytes_Rejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_settings.json")
	s := NewFileStore(path, testLogger())

	if err := s.Restore([]byte("{not json")); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
	if s.Exists() {
		t.Error("Restore wrote a file despite invalid bytes")
	}
}

func TestRestore_OnSaveHookRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_settings.json")
	s := NewFileStore(path, testLogger())

	data, err := json.MarshalIndent(DefaultDocument(), "", "  ")
	if err != nil {
		t.Fatal(err)
	}

	var called int
	s.SetOnSave(func(doc *Document) { called++ })

	if err := s.Restore(append(data, '\n')); err != nil {
		t.Fatal(err)
	}
	if called != 1 {
		t.Errorf("expected onSave hook to run once, ran %d times", called)
	}
}

func TestSave_OnSaveHookRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_settings.json")
	s := NewFileStore(path, testLogger())

	var called int
	s.SetOnSave(func(doc *Document) { called++ })

	if err := s.Save(DefaultDocument()); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(func(doc *Document) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if called != 2 {
		t.Errorf("expected onSave hook to run twice, ran %d times", called)
	}
}

// ---------------------------------------------------------------------------
// Fingerprint tests
// ---------------------------------------------------------------------------

func TestRoutingConfig_Fingerprint(t *testing.T) {
	a := RoutingConfig{EnableGlobalRoute: true}
	b := RoutingConfig{EnableGlobalRoute: true}
	c := RoutingConfig{EnableGlobalRoute: true, SkipAuth: true}
	d := RoutingConfig{EnableGlobalRoute: true, BearerAuthKey: "k"}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical configs must fingerprint identically")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("flag change must change the fingerprint")
	}
	if a.Fingerprint() == d.Fingerprint() {
		t.Error("bearer key change must change the fingerprint")
	}
}
