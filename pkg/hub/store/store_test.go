package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tilepad/tilepad-server/pkg/hub/models"
)

// createTestStore creates an in-memory SQLite store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(&Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	t.Run("seeds default profile and folder", func(t *testing.T) {
		store := createTestStore(t)
		ctx := context.Background()

		profile, err := store.GetDefaultProfile(ctx)
		if err != nil {
			t.Fatalf("expected seeded default profile: %v", err)
		}
		if !profile.Default {
			t.Error("expected profile default flag set")
		}

		folder, err := store.GetDefaultFolder(ctx, profile.ID)
		if err != nil {
			t.Fatalf("expected seeded default folder: %v", err)
		}
		if folder.ProfileID != profile.ID {
			t.Errorf("default folder belongs to %q, want %q", folder.ProfileID, profile.ID)
		}
	})

	t.Run("migrations apply once", func(t *testing.T) {
		store := createTestStore(t)

		if err := store.applyMigrations(); err != nil {
			t.Fatalf("reapplying migrations failed: %v", err)
		}
		profiles, err := store.ListProfiles(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(profiles) != 1 {
			t.Errorf("expected 1 seeded profile, got %d", len(profiles))
		}
	})
}

func TestProfileOperations(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	t.Run("create displaces default flag", func(t *testing.T) {
		oldDefault, err := store.GetDefaultProfile(ctx)
		if err != nil {
			t.Fatal(err)
		}

		id, err := store.CreateProfile(ctx, &models.Profile{Name: "Streaming", Default: true})
		if err != nil {
			t.Fatalf("failed to create profile: %v", err)
		}

		newDefault, err := store.GetDefaultProfile(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if newDefault.ID != id {
			t.Errorf("default profile is %q, want %q", newDefault.ID, id)
		}

		old, err := store.GetProfile(ctx, oldDefault.ID)
		if err != nil {
			t.Fatal(err)
		}
		if old.Default {
			t.Error("previous default profile still flagged")
		}
	})

	t.Run("delete default refused", func(t *testing.T) {
		profile, err := store.GetDefaultProfile(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := store.DeleteProfile(ctx, profile.ID); !errors.Is(err, models.ErrDeleteDefault) {
			t.Errorf("expected ErrDeleteDefault, got %v", err)
		}
	})

	t.Run("delete reparents devices to default", func(t *testing.T) {
		id, err := store.CreateProfile(ctx, &models.Profile{Name: "Doomed"})
		if err != nil {
			t.Fatal(err)
		}
		folderID, err := store.CreateFolder(ctx, &models.Folder{Name: "Main", ProfileID: id, Default: true})
		if err != nil {
			t.Fatal(err)
		}
		deviceID, err := store.CreateDevice(ctx, &models.Device{
			Name: "Phone", AccessToken: "tok-profile-delete",
			ProfileID: id, FolderID: folderID,
		})
		if err != nil {
			t.Fatal(err)
		}

		moved, err := store.DeleteProfile(ctx, id)
		if err != nil {
			t.Fatalf("failed to delete profile: %v", err)
		}
		if len(moved) != 1 || moved[0] != deviceID {
			t.Errorf("moved devices = %v, want [%s]", moved, deviceID)
		}

		device, err := store.GetDevice(ctx, deviceID)
		if err != nil {
			t.Fatal(err)
		}
		defaultProfile, _ := store.GetDefaultProfile(ctx)
		defaultFolder, _ := store.GetDefaultFolder(ctx, defaultProfile.ID)
		if device.ProfileID != defaultProfile.ID || device.FolderID != defaultFolder.ID {
			t.Errorf("device at (%s, %s), want (%s, %s)",
				device.ProfileID, device.FolderID, defaultProfile.ID, defaultFolder.ID)
		}

		if _, err := store.GetFolder(ctx, folderID); !errors.Is(err, models.ErrFolderNotFound) {
			t.Errorf("expected folder deleted with profile, got %v", err)
		}
	})

	t.Run("get not found", func(t *testing.T) {
		if _, err := store.GetProfile(ctx, "missing"); !errors.Is(err, models.ErrProfileNotFound) {
			t.Errorf("expected ErrProfileNotFound, got %v", err)
		}
	})
}

func TestFolderOperations(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	profile, err := store.GetDefaultProfile(ctx)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("create displaces per-profile default", func(t *testing.T) {
		oldDefault, err := store.GetDefaultFolder(ctx, profile.ID)
		if err != nil {
			t.Fatal(err)
		}
		id, err := store.CreateFolder(ctx, &models.Folder{Name: "Games", ProfileID: profile.ID, Default: true})
		if err != nil {
			t.Fatal(err)
		}
		newDefault, err := store.GetDefaultFolder(ctx, profile.ID)
		if err != nil {
			t.Fatal(err)
		}
		if newDefault.ID != id {
			t.Errorf("default folder is %q, want %q", newDefault.ID, id)
		}
		old, _ := store.GetFolder(ctx, oldDefault.ID)
		if old.Default {
			t.Error("previous default folder still flagged")
		}
	})

	t.Run("delete reparents viewing devices", func(t *testing.T) {
		folderID, err := store.CreateFolder(ctx, &models.Folder{Name: "Temp", ProfileID: profile.ID})
		if err != nil {
			t.Fatal(err)
		}
		deviceID, err := store.CreateDevice(ctx, &models.Device{
			Name: "Tablet", AccessToken: "tok-folder-delete",
			ProfileID: profile.ID, FolderID: folderID,
		})
		if err != nil {
			t.Fatal(err)
		}
		tileID, err := store.CreateTile(ctx, &models.Tile{FolderID: folderID, PluginID: "com.example.obs", ActionID: "scene"})
		if err != nil {
			t.Fatal(err)
		}

		moved, newFolderID, err := store.DeleteFolder(ctx, folderID)
		if err != nil {
			t.Fatalf("failed to delete folder: %v", err)
		}
		defaultFolder, _ := store.GetDefaultFolder(ctx, profile.ID)
		if newFolderID != defaultFolder.ID {
			t.Errorf("reparented to %q, want %q", newFolderID, defaultFolder.ID)
		}
		if len(moved) != 1 || moved[0] != deviceID {
			t.Errorf("moved devices = %v, want [%s]", moved, deviceID)
		}

		device, _ := store.GetDevice(ctx, deviceID)
		if device.FolderID != defaultFolder.ID {
			t.Errorf("device folder = %q, want %q", device.FolderID, defaultFolder.ID)
		}
		if _, err := store.GetTile(ctx, tileID); !errors.Is(err, models.ErrTileNotFound) {
			t.Errorf("expected tile deleted with folder, got %v", err)
		}
	})

	t.Run("delete default refused", func(t *testing.T) {
		folder, err := store.GetDefaultFolder(ctx, profile.ID)
		if err != nil {
			t.Fatal(err)
		}
		if _, _, err := store.DeleteFolder(ctx, folder.ID); !errors.Is(err, models.ErrDeleteDefault) {
			t.Errorf("expected ErrDeleteDefault, got %v", err)
		}
	})
}

func TestDeviceOperations(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	t.Run("create attaches to defaults", func(t *testing.T) {
		id, err := store.CreateDevice(ctx, &models.Device{Name: "Phone", AccessToken: "tok-1"})
		if err != nil {
			t.Fatalf("failed to create device: %v", err)
		}
		device, err := store.GetDevice(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		profile, _ := store.GetDefaultProfile(ctx)
		folder, _ := store.GetDefaultFolder(ctx, profile.ID)
		if device.ProfileID != profile.ID || device.FolderID != folder.ID {
			t.Errorf("device at (%s, %s), want defaults (%s, %s)",
				device.ProfileID, device.FolderID, profile.ID, folder.ID)
		}
	})

	t.Run("lookup by access token", func(t *testing.T) {
		device, err := store.GetDeviceByAccessToken(ctx, "tok-1")
		if err != nil {
			t.Fatalf("failed token lookup: %v", err)
		}
		if device.Name != "Phone" {
			t.Errorf("device name = %q, want Phone", device.Name)
		}

		if _, err := store.GetDeviceByAccessToken(ctx, "bogus"); !errors.Is(err, models.ErrDeviceNotFound) {
			t.Errorf("expected ErrDeviceNotFound, got %v", err)
		}
	})

	t.Run("duplicate access token refused", func(t *testing.T) {
		if _, err := store.CreateDevice(ctx, &models.Device{Name: "Clone", AccessToken: "tok-1"}); err == nil {
			t.Error("expected unique constraint error")
		}
	})

	t.Run("touch connected", func(t *testing.T) {
		device, _ := store.GetDeviceByAccessToken(ctx, "tok-1")
		at := time.Now().UTC().Truncate(time.Second)
		if err := store.TouchDeviceConnected(ctx, device.ID, at); err != nil {
			t.Fatal(err)
		}
		updated, _ := store.GetDevice(ctx, device.ID)
		if updated.LastConnectedAt == nil || !updated.LastConnectedAt.Equal(at) {
			t.Errorf("last_connected_at = %v, want %v", updated.LastConnectedAt, at)
		}

		if err := store.TouchDeviceConnected(ctx, "missing", at); !errors.Is(err, models.ErrDeviceNotFound) {
			t.Errorf("expected ErrDeviceNotFound, got %v", err)
		}
	})

	t.Run("set folder rejects cross-profile move", func(t *testing.T) {
		otherProfile, err := store.CreateProfile(ctx, &models.Profile{Name: "Other"})
		if err != nil {
			t.Fatal(err)
		}
		otherFolder, err := store.CreateFolder(ctx, &models.Folder{Name: "Main", ProfileID: otherProfile, Default: true})
		if err != nil {
			t.Fatal(err)
		}

		device, _ := store.GetDeviceByAccessToken(ctx, "tok-1")
		if err := store.SetDeviceFolder(ctx, device.ID, otherFolder); !errors.Is(err, models.ErrProfileMismatch) {
			t.Errorf("expected ErrProfileMismatch, got %v", err)
		}

		// Switching profile lands on that profile's default folder.
		if err := store.SetDeviceProfile(ctx, device.ID, otherProfile); err != nil {
			t.Fatal(err)
		}
		moved, _ := store.GetDevice(ctx, device.ID)
		if moved.ProfileID != otherProfile || moved.FolderID != otherFolder {
			t.Errorf("device at (%s, %s), want (%s, %s)",
				moved.ProfileID, moved.FolderID, otherProfile, otherFolder)
		}
	})
}

func TestTileOperations(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	profile, _ := store.GetDefaultProfile(ctx)
	folder, _ := store.GetDefaultFolder(ctx, profile.ID)

	t.Run("list orders by row then column", func(t *testing.T) {
		positions := [][2]int{{1, 2}, {0, 1}, {1, 0}, {0, 0}}
		for _, pos := range positions {
			_, err := store.CreateTile(ctx, &models.Tile{
				FolderID: folder.ID,
				PluginID: "com.example.obs",
				ActionID: "scene",
				Row:      pos[0],
				Column:   pos[1],
			})
			if err != nil {
				t.Fatal(err)
			}
		}

		tiles, err := store.ListTilesByFolder(ctx, folder.ID)
		if err != nil {
			t.Fatal(err)
		}
		want := [][2]int{{0, 0}, {0, 1}, {1, 0}, {1, 2}}
		if len(tiles) != len(want) {
			t.Fatalf("got %d tiles, want %d", len(tiles), len(want))
		}
		for i, tile := range tiles {
			if tile.Row != want[i][0] || tile.Column != want[i][1] {
				t.Errorf("tiles[%d] at (%d,%d), want (%d,%d)",
					i, tile.Row, tile.Column, want[i][0], want[i][1])
			}
		}
	})

	t.Run("properties round-trip", func(t *testing.T) {
		id, err := store.CreateTile(ctx, &models.Tile{
			FolderID:   folder.ID,
			PluginID:   "com.example.obs",
			ActionID:   "scene",
			Row:        5,
			Properties: models.JSONObject{"scene": "Intro", "volume": float64(80)},
		})
		if err != nil {
			t.Fatal(err)
		}
		tile, err := store.GetTile(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if tile.Properties["scene"] != "Intro" {
			t.Errorf("properties[scene] = %v, want Intro", tile.Properties["scene"])
		}
		if tile.Properties["volume"] != float64(80) {
			t.Errorf("properties[volume] = %v, want 80", tile.Properties["volume"])
		}
	})

	t.Run("count uploaded icon references", func(t *testing.T) {
		icon := models.TileIcon{Type: models.IconTypeUploaded, Src: "abc123.png"}
		id, err := store.CreateTile(ctx, &models.Tile{
			FolderID: folder.ID, PluginID: "com.example.obs", ActionID: "scene", Row: 6,
			Config: models.TileConfig{Icon: icon},
		})
		if err != nil {
			t.Fatal(err)
		}

		count, err := store.CountTilesWithUploadedIcon(ctx, "abc123.png")
		if err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Errorf("reference count = %d, want 1", count)
		}

		if err := store.DeleteTile(ctx, id); err != nil {
			t.Fatal(err)
		}
		count, _ = store.CountTilesWithUploadedIcon(ctx, "abc123.png")
		if count != 0 {
			t.Errorf("reference count after delete = %d, want 0", count)
		}
	})
}

func TestPluginProperties(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	t.Run("unknown plugin yields empty object", func(t *testing.T) {
		props, err := store.GetPluginProperties(ctx, "com.example.unknown")
		if err != nil {
			t.Fatal(err)
		}
		if len(props) != 0 {
			t.Errorf("expected empty properties, got %v", props)
		}
	})

	t.Run("partial set merges top-level keys", func(t *testing.T) {
		pluginID := "com.example.obs"
		if err := store.SetPluginProperties(ctx, pluginID,
			models.JSONObject{"host": "localhost", "port": float64(4455)}, false); err != nil {
			t.Fatal(err)
		}
		if err := store.SetPluginProperties(ctx, pluginID,
			models.JSONObject{"port": float64(4456)}, true); err != nil {
			t.Fatal(err)
		}

		props, err := store.GetPluginProperties(ctx, pluginID)
		if err != nil {
			t.Fatal(err)
		}
		if props["host"] != "localhost" || props["port"] != float64(4456) {
			t.Errorf("merged properties = %v", props)
		}
	})

	t.Run("full set replaces", func(t *testing.T) {
		pluginID := "com.example.obs"
		if err := store.SetPluginProperties(ctx, pluginID,
			models.JSONObject{"fresh": true}, false); err != nil {
			t.Fatal(err)
		}
		props, _ := store.GetPluginProperties(ctx, pluginID)
		if _, ok := props["host"]; ok {
			t.Error("full set kept stale key")
		}
	})
}

func TestSettings(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	settings, err := store.GetSettings(ctx)
	if err != nil {
		t.Fatalf("failed first settings read: %v", err)
	}
	if settings.Port != 0 {
		t.Errorf("fresh settings port = %d, want 0 (unset, config port applies)", settings.Port)
	}
	if settings.DeviceName == "" {
		t.Error("expected hostname-derived device name")
	}

	settings.DeveloperMode = true
	settings.Language = "de"
	settings.Port = 50123
	if err := store.UpdateSettings(ctx, settings); err != nil {
		t.Fatal(err)
	}

	reloaded, err := store.GetSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.DeveloperMode || reloaded.Language != "de" {
		t.Errorf("settings not persisted: %+v", reloaded)
	}
	if reloaded.Port != 50123 {
		t.Errorf("user-set port = %d, want 50123", reloaded.Port)
	}
}
