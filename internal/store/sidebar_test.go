// ABOUTME: Tests for the sidebar entity accessors: projects, hats, shared chats
// ABOUTME: Covers round trips, owner scoping, and most-recent-first ordering

package store

import (
	"context"
	"testing"
	"time"
)

func TestUpsertAndListProjects(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	older := &Project{
		ID:          "proj-1",
		OwnerID:     "user-1",
		Name:        "Research",
		Description: "Papers and notes",
		CreatedAt:   base,
		UpdatedAt:   base,
	}
	newer := &Project{
		ID:        "proj-2",
		OwnerID:   "user-1",
		Name:      "Travel",
		CreatedAt: base.Add(time.Hour),
		UpdatedAt: base.Add(time.Hour),
	}
	other := &Project{
		ID:        "proj-3",
		OwnerID:   "user-2",
		Name:      "Not mine",
		CreatedAt: base,
		UpdatedAt: base,
	}
	for _, p := range []*Project{older, newer, other} {
		if err := cache.UpsertProject(ctx, p); err != nil {
			t.Fatalf("UpsertProject failed: %v", err)
		}
	}

	projects, err := cache.ListProjectsByOwner(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListProjectsByOwner failed: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(projects))
	}
	// Most recent first.
	if projects[0].ID != "proj-2" || projects[1].ID != "proj-1" {
		t.Errorf("wrong order: got %s, %s", projects[0].ID, projects[1].ID)
	}
	if projects[1].Description != "Papers and notes" {
		t.Errorf("Description mismatch: got %q", projects[1].Description)
	}
	if projects[0].Description != "" {
		t.Errorf("empty description should round-trip empty, got %q", projects[0].Description)
	}
	if !projects[1].CreatedAt.Equal(base) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", projects[1].CreatedAt, base)
	}
}

func TestUpsertProject_Replaces(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p := &Project{ID: "proj-1", OwnerID: "user-1", Name: "Before", CreatedAt: base, UpdatedAt: base}
	if err := cache.UpsertProject(ctx, p); err != nil {
		t.Fatalf("UpsertProject failed: %v", err)
	}
	p.Name = "After"
	if err := cache.UpsertProject(ctx, p); err != nil {
		t.Fatalf("UpsertProject (replace) failed: %v", err)
	}

	projects, err := cache.ListProjectsByOwner(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListProjectsByOwner failed: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("expected 1 project after replace, got %d", len(projects))
	}
	if projects[0].Name != "After" {
		t.Errorf("Name = %q, want %q", projects[0].Name, "After")
	}
}

func TestUpsertAndListHats(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	hats := []*Hat{
		{
			ID:        "hat-1",
			OwnerID:   "user-1",
			Name:      "Editor",
			Prompt:    "You edit prose.",
			Model:     "small-fast",
			CreatedAt: base,
			UpdatedAt: base,
		},
		{
			ID:        "hat-2",
			OwnerID:   "user-1",
			Name:      "Reviewer",
			Prompt:    "You review code.",
			CreatedAt: base.Add(time.Minute),
			UpdatedAt: base.Add(time.Minute),
		},
		{
			ID:        "hat-3",
			OwnerID:   "user-2",
			Name:      "Someone else's",
			Prompt:    "x",
			CreatedAt: base,
			UpdatedAt: base,
		},
	}
	for _, h := range hats {
		if err := cache.UpsertHat(ctx, h); err != nil {
			t.Fatalf("UpsertHat failed: %v", err)
		}
	}

	got, err := cache.ListHatsByOwner(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListHatsByOwner failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 hats, got %d", len(got))
	}
	if got[0].ID != "hat-2" || got[1].ID != "hat-1" {
		t.Errorf("wrong order: got %s, %s", got[0].ID, got[1].ID)
	}
	if got[1].Prompt != "You edit prose." {
		t.Errorf("Prompt mismatch: got %q", got[1].Prompt)
	}
	if got[1].Model != "small-fast" {
		t.Errorf("Model mismatch: got %q", got[1].Model)
	}
	if got[0].Model != "" {
		t.Errorf("empty model should round-trip empty, got %q", got[0].Model)
	}
}

func TestUpsertAndListSharedChats(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	shared := []*SharedChat{
		{ID: "share-1", ChatID: "chat-1", OwnerID: "user-1", Title: "Older share", CreatedAt: base},
		{ID: "share-2", ChatID: "chat-2", OwnerID: "user-1", Title: "Newer share", CreatedAt: base.Add(time.Hour)},
		{ID: "share-3", ChatID: "chat-3", OwnerID: "user-2", Title: "Other owner", CreatedAt: base},
	}
	for _, sc := range shared {
		if err := cache.UpsertSharedChat(ctx, sc); err != nil {
			t.Fatalf("UpsertSharedChat failed: %v", err)
		}
	}

	got, err := cache.ListSharedChatsByOwner(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListSharedChatsByOwner failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 shared chats, got %d", len(got))
	}
	if got[0].ID != "share-2" || got[1].ID != "share-1" {
		t.Errorf("wrong order: got %s, %s", got[0].ID, got[1].ID)
	}
	if got[1].ChatID != "chat-1" {
		t.Errorf("ChatID mismatch: got %q", got[1].ChatID)
	}
	if !got[0].CreatedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("CreatedAt mismatch: got %v", got[0].CreatedAt)
	}
}

func TestListSharedChatsByOwner_Empty(t *testing.T) {
	cache := newTestCache(t)

	got, err := cache.ListSharedChatsByOwner(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ListSharedChatsByOwner failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no shared chats, got %d", len(got))
	}
}
