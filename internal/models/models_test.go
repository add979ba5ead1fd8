package models

import (
	"strings"
	"testing"
)

func TestNewGameMetadataDefaults(t *testing.T) {
	meta := NewGameMetadata()

	if meta.Title != MetaDefaultTitle {
		t.Errorf("Title = %q, want %q", meta.Title, MetaDefaultTitle)
	}
	if meta.Genre != MetaDefaultGenre {
		t.Errorf("Genre = %q, want %q", meta.Genre, MetaDefaultGenre)
	}
	if meta.Genre == "" {
		t.Error("default genre must not be the empty string")
	}
	if meta.Developer != "" {
		t.Errorf("Developer = %q, want empty", meta.Developer)
	}
	if meta.Rating != MetaDefaultRating {
		t.Errorf("Rating = %v, want %v", meta.Rating, MetaDefaultRating)
	}
	if meta.Tags != nil {
		t.Errorf("Tags = %v, want nil", meta.Tags)
	}
}

func TestOwnedGamesURL(t *testing.T) {
	got := OwnedGamesURL("SECRET", "76561198000000000")

	if !strings.HasPrefix(got, "https://api.steampowered.com/IPlayerService/GetOwnedGames/v0001/?") {
		t.Errorf("unexpected base: %s", got)
	}
	for _, part := range []string{"key=SECRET", "steamid=76561198000000000", "include_appinfo=1"} {
		if !strings.Contains(got, part) {
			t.Errorf("URL %s missing %q", got, part)
		}
	}
}

func TestAppDetailsURL(t *testing.T) {
	got := AppDetailsURL(620)
	want := "https://store.steampowered.com/api/appdetails?appids=620&cc=EE&l=english&v=1"
	if got != want {
		t.Errorf("AppDetailsURL(620) = %s, want %s", got, want)
	}
}

func TestStoreSearchURL(t *testing.T) {
	tests := []struct {
		name string
		term string
		want string
	}{
		{"simple", "Portal", "https://steamcommunity.com/actions/SearchApps/Portal"},
		{"spaces escaped", "Half Life", "https://steamcommunity.com/actions/SearchApps/Half%20Life"},
		{"registered mark", "Call of Duty®", "https://steamcommunity.com/actions/SearchApps/Call%20of%20Duty%C2%AE"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StoreSearchURL(tc.term); got != tc.want {
				t.Errorf("StoreSearchURL(%q) = %s, want %s", tc.term, got, tc.want)
			}
		})
	}
}
