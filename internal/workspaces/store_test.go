package workspaces

import (
	"context"
	"testing"

	"github.com/haasonsaas/companion/pkg/models"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"My Workspace!":  "my-workspace",
		"  already-slug": "already-slug",
		"Has_Underscore": "has-underscore",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStore_CreateGetListUpdateDelete(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	created, err := store.Create(ctx, models.Workspace{Name: "Writing", DefaultTrust: models.TrustDirect})
	if err != nil {
		t.Fatal(err)
	}
	if created.Slug != "writing" {
		t.Errorf("expected slug 'writing', got %q", created.Slug)
	}

	got, err := store.Get(ctx, "writing")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Writing" {
		t.Errorf("unexpected name %q", got.Name)
	}

	if _, err := store.Create(ctx, models.Workspace{Name: "Writing"}); err == nil {
		t.Error("expected duplicate create to fail")
	}

	list, err := store.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one workspace listed, got %d (err=%v)", len(list), err)
	}

	updated, err := store.Update(ctx, "writing", models.Workspace{Name: "Writing", Description: "updated"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Description != "updated" {
		t.Errorf("expected update applied, got %q", updated.Description)
	}
	if updated.CreatedAt != created.CreatedAt {
		t.Error("expected CreatedAt preserved across update")
	}

	if err := store.Delete(ctx, "writing"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "writing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStore_GetUnknownSlugReturnsErrNotFound(t *testing.T) {
	store := New(t.TempDir())
	if _, err := store.Get(context.Background(), "nope"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
