package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/kellnr/kellnr/pkg/auth"
	"github.com/kellnr/kellnr/pkg/dbtest"
	"github.com/kellnr/kellnr/pkg/name"
	"github.com/kellnr/kellnr/pkg/regerr"
	"github.com/kellnr/kellnr/pkg/storage/postgres"
)

func newPublishMetadata(name, vers string) postgres.PublishMetadata {
	return postgres.PublishMetadata{Name: name, Vers: vers}
}

// 8.1 Bootstrap
func TestStore_Bootstrap(t *testing.T) {
	store := dbtest.RequireStore(t)
	ctx := context.Background()

	if err := dbtest.Bootstrap(ctx, store); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	user, err := store.GetUser(ctx, auth.BootstrapAdminName)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Name != "admin" || !user.IsAdmin {
		t.Errorf("unexpected bootstrap user: %+v", user)
	}
	if user.Pwd != auth.HashPassword(auth.BootstrapAdminPassword, auth.BootstrapAdminSalt) {
		t.Errorf("bootstrap password hash mismatch")
	}

	if _, err := store.AuthenticateUser(ctx, "admin", "123"); err != nil {
		t.Errorf("AuthenticateUser with correct password: %v", err)
	}
	if _, err := store.AuthenticateUser(ctx, "admin", "abc"); !regerr.Is(err, regerr.KindBadCredentials) {
		t.Errorf("AuthenticateUser with wrong password: got %v, want BadCredentials", err)
	}
}

// 8.2 Download ranking
func TestStore_DownloadRanking(t *testing.T) {
	store := dbtest.RequireStore(t)
	ctx := context.Background()
	owner := dbtest.FixtureName("owner")
	if _, err := store.AddUser(ctx, owner, "pw", "salt", false, false); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	crate1 := dbtest.FixtureName("crate1")
	crate2 := dbtest.FixtureName("crate2")
	crate3 := dbtest.FixtureName("crate3")

	publish := func(name, vers string) {
		pm := newPublishMetadata(name, vers)
		if err := store.AddCrate(ctx, pm, "cksum", time.Now(), owner); err != nil {
			t.Fatalf("AddCrate(%s %s): %v", name, vers, err)
		}
	}
	publish(crate1, "1.0.0")
	publish(crate1, "2.0.0")
	publish(crate2, "1.0.0")
	publish(crate3, "1.0.0")
	publish(crate3, "2.0.0")

	bump := func(name, vers string, times int) {
		norm := normalizeForTest(name)
		for i := 0; i < times; i++ {
			if err := store.IncreaseDownloadCounter(ctx, norm, vers); err != nil {
				t.Fatalf("IncreaseDownloadCounter(%s %s): %v", name, vers, err)
			}
		}
	}
	bump(crate1, "1.0.0", 2)
	bump(crate1, "2.0.0", 1)
	bump(crate2, "1.0.0", 1)
	bump(crate3, "1.0.0", 2)

	top, err := store.GetTopCratesDownloads(ctx, 2)
	if err != nil {
		t.Fatalf("GetTopCratesDownloads: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("got %d results, want 2", len(top))
	}
	if top[0].Name != normalizeForTest(crate1) || top[0].TotalDownloads != 3 {
		t.Errorf("top[0] = %+v, want crate1 with 3 downloads", top[0])
	}
	if top[1].Name != normalizeForTest(crate3) || top[1].TotalDownloads != 2 {
		t.Errorf("top[1] = %+v, want crate3 with 2 downloads", top[1])
	}
}

// 8.3 Max version
func TestStore_MaxVersion(t *testing.T) {
	store := dbtest.RequireStore(t)
	ctx := context.Background()
	owner := dbtest.FixtureName("owner")
	if _, err := store.AddUser(ctx, owner, "pw", "salt", false, false); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	name := dbtest.FixtureName("acrate")
	for _, v := range []string{"0.1.0", "0.2.0", "0.10.0"} {
		if err := store.AddCrate(ctx, newPublishMetadata(name, v), "cksum", time.Now(), owner); err != nil {
			t.Fatalf("AddCrate(%s): %v", v, err)
		}
	}

	max, err := store.GetMaxVersionFromName(ctx, normalizeForTest(name))
	if err != nil {
		t.Fatalf("GetMaxVersionFromName: %v", err)
	}
	if max != "0.10.0" {
		t.Errorf("max version = %q, want 0.10.0", max)
	}
}

// 8.4 Etag change
func TestStore_EtagChangesOnDelete(t *testing.T) {
	store := dbtest.RequireStore(t)
	ctx := context.Background()
	owner := dbtest.FixtureName("owner")
	if _, err := store.AddUser(ctx, owner, "pw", "salt", false, false); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	name := dbtest.FixtureName("crate")
	normalized := normalizeForTest(name)
	if err := store.AddCrate(ctx, newPublishMetadata(name, "1.0.0"), "cksum", time.Now(), owner); err != nil {
		t.Fatalf("AddCrate 1.0.0: %v", err)
	}
	if err := store.AddCrate(ctx, newPublishMetadata(name, "2.0.0"), "cksum", time.Now(), owner); err != nil {
		t.Fatalf("AddCrate 2.0.0: %v", err)
	}

	prefetch1, err := store.GetPrefetchData(ctx, normalized)
	if err != nil {
		t.Fatalf("GetPrefetchData: %v", err)
	}

	if err := store.DeleteCrate(ctx, normalized, "1.0.0"); err != nil {
		t.Fatalf("DeleteCrate: %v", err)
	}

	prefetch2, err := store.GetPrefetchData(ctx, normalized)
	if err != nil {
		t.Fatalf("GetPrefetchData after delete: %v", err)
	}

	if prefetch1.Etag == prefetch2.Etag {
		t.Errorf("etag unchanged after delete: %q", prefetch1.Etag)
	}
}

// 8.6 Cache state machine
func TestStore_CacheStateMachine(t *testing.T) {
	store := dbtest.RequireStore(t)
	ctx := context.Background()

	name := dbtest.FixtureName("crate")
	if err := store.AddCratesioPrefetchData(ctx, name, name, nil, "etag", "last_modified", nil, time.Now()); err != nil {
		t.Fatalf("AddCratesioPrefetchData (seed): %v", err)
	}
	if err := store.AddCratesioPrefetchData(ctx, name, name, nil, "etag2", "last_modified2", nil, time.Now()); err != nil {
		t.Fatalf("AddCratesioPrefetchData (overwrite): %v", err)
	}

	result, err := store.IsCratesioCacheUpToDate(ctx, name, "old_etag", "last_modified", time.Now())
	if err != nil {
		t.Fatalf("IsCratesioCacheUpToDate: %v", err)
	}
	if result.State.String() != "NeedsUpdate" {
		t.Errorf("state = %v, want NeedsUpdate", result.State)
	}
	if result.Prefetch.Etag != "etag2" {
		t.Errorf("prefetch etag = %q, want etag2", result.Prefetch.Etag)
	}
}

// Boundary: unknown package versions list is empty, not an error.
func TestStore_GetCrateVersions_Unknown(t *testing.T) {
	store := dbtest.RequireStore(t)
	versions, err := store.GetCrateVersions(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("GetCrateVersions: %v", err)
	}
	if len(versions) != 0 {
		t.Errorf("got %v, want empty", versions)
	}
}

// Boundary: duplicate (package, version) fails Duplicate.
func TestStore_AddCrate_Duplicate(t *testing.T) {
	store := dbtest.RequireStore(t)
	ctx := context.Background()
	owner := dbtest.FixtureName("owner")
	if _, err := store.AddUser(ctx, owner, "pw", "salt", false, false); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	name := dbtest.FixtureName("crate")
	if err := store.AddCrate(ctx, newPublishMetadata(name, "1.0.0"), "cksum", time.Now(), owner); err != nil {
		t.Fatalf("AddCrate: %v", err)
	}
	err := store.AddCrate(ctx, newPublishMetadata(name, "1.0.0"), "cksum", time.Now(), owner)
	if !regerr.Is(err, regerr.KindDuplicate) {
		t.Errorf("got %v, want Duplicate", err)
	}
}

// Boundary: a different non-owner principal publishing under the same
// name fails Forbidden.
func TestStore_AddCrate_ForbiddenForNonOwner(t *testing.T) {
	store := dbtest.RequireStore(t)
	ctx := context.Background()
	owner := dbtest.FixtureName("owner")
	other := dbtest.FixtureName("other")
	if _, err := store.AddUser(ctx, owner, "pw", "salt", false, false); err != nil {
		t.Fatalf("AddUser owner: %v", err)
	}
	if _, err := store.AddUser(ctx, other, "pw", "salt", false, false); err != nil {
		t.Fatalf("AddUser other: %v", err)
	}

	name := dbtest.FixtureName("crate")
	if err := store.AddCrate(ctx, newPublishMetadata(name, "1.0.0"), "cksum", time.Now(), owner); err != nil {
		t.Fatalf("AddCrate: %v", err)
	}
	err := store.AddCrate(ctx, newPublishMetadata(name, "2.0.0"), "cksum", time.Now(), other)
	if !regerr.Is(err, regerr.KindForbidden) {
		t.Errorf("got %v, want Forbidden", err)
	}
}

// Boundary: increase_download_counter on an unknown version fails NotFound.
func TestStore_IncreaseDownloadCounter_NotFound(t *testing.T) {
	store := dbtest.RequireStore(t)
	err := store.IncreaseDownloadCounter(context.Background(), "does-not-exist", "1.0.0")
	if !regerr.Is(err, regerr.KindNotFound) {
		t.Errorf("got %v, want NotFound", err)
	}
}

// Invariant 5: deleting the last version removes the package; deleting a
// non-last version leaves the correct new max.
func TestStore_DeleteCrate_CascadeAndMax(t *testing.T) {
	store := dbtest.RequireStore(t)
	ctx := context.Background()
	owner := dbtest.FixtureName("owner")
	if _, err := store.AddUser(ctx, owner, "pw", "salt", false, false); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	name := dbtest.FixtureName("crate")
	normalized := normalizeForTest(name)
	if err := store.AddCrate(ctx, newPublishMetadata(name, "1.0.0"), "cksum", time.Now(), owner); err != nil {
		t.Fatalf("AddCrate 1.0.0: %v", err)
	}
	if err := store.AddCrate(ctx, newPublishMetadata(name, "2.0.0"), "cksum", time.Now(), owner); err != nil {
		t.Fatalf("AddCrate 2.0.0: %v", err)
	}

	if err := store.DeleteCrate(ctx, normalized, "2.0.0"); err != nil {
		t.Fatalf("DeleteCrate 2.0.0: %v", err)
	}
	max, err := store.GetMaxVersionFromName(ctx, normalized)
	if err != nil {
		t.Fatalf("GetMaxVersionFromName: %v", err)
	}
	if max != "1.0.0" {
		t.Errorf("max after partial delete = %q, want 1.0.0", max)
	}

	if err := store.DeleteCrate(ctx, normalized, "1.0.0"); err != nil {
		t.Fatalf("DeleteCrate 1.0.0: %v", err)
	}
	if _, ok, err := store.GetCrateID(ctx, normalized); err != nil {
		t.Fatalf("GetCrateID: %v", err)
	} else if ok {
		t.Errorf("package still present after deleting its last version")
	}
}

// Round-trip: add_crate then get_crate_data surfaces the latest
// version's metadata at top level plus every version descending.
func TestStore_GetCrateData_RoundTrip(t *testing.T) {
	store := dbtest.RequireStore(t)
	ctx := context.Background()
	owner := dbtest.FixtureName("owner")
	if _, err := store.AddUser(ctx, owner, "pw", "salt", false, false); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	name := dbtest.FixtureName("crate")
	normalized := normalizeForTest(name)
	desc := "first"
	desc2 := "second"
	pm1 := newPublishMetadata(name, "1.0.0")
	pm1.Description = &desc
	pm2 := newPublishMetadata(name, "2.0.0")
	pm2.Description = &desc2

	if err := store.AddCrate(ctx, pm1, "cksum1", time.Now(), owner); err != nil {
		t.Fatalf("AddCrate 1.0.0: %v", err)
	}
	if err := store.AddCrate(ctx, pm2, "cksum2", time.Now(), owner); err != nil {
		t.Fatalf("AddCrate 2.0.0: %v", err)
	}

	data, err := store.GetCrateData(ctx, normalized)
	if err != nil {
		t.Fatalf("GetCrateData: %v", err)
	}
	if data.MaxVersion != "2.0.0" {
		t.Errorf("MaxVersion = %q, want 2.0.0", data.MaxVersion)
	}
	if data.Description == nil || *data.Description != desc2 {
		t.Errorf("top-level description = %v, want %q", data.Description, desc2)
	}
	if len(data.Versions) != 2 || data.Versions[0].Version != "2.0.0" || data.Versions[1].Version != "1.0.0" {
		t.Errorf("versions = %+v, want descending [2.0.0, 1.0.0]", data.Versions)
	}
}

func normalizeForTest(original string) string {
	return name.NormalizedNameFromUnchecked(original).String()
}
