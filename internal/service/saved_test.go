package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mhr-212/talk-to-your-data/internal/domain"
)

func TestSavedQueryLifecycle(t *testing.T) {
	store := NewSavedQueryStore(10)

	saved, err := store.Save("u_1", "regional sales", "sales by region?", "SELECT region, SUM(amount) FROM sales GROUP BY region LIMIT 1000")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("saved query must get an ID")
	}
	if saved.RunCount != 0 {
		t.Errorf("RunCount = %d, want 0", saved.RunCount)
	}

	got, err := store.Get("u_1", saved.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "regional sales" {
		t.Errorf("Name = %q", got.Name)
	}

	ran, err := store.RecordRun("u_1", saved.ID)
	if err != nil {
		t.Fatalf("record run: %v", err)
	}
	if ran.RunCount != 1 {
		t.Errorf("RunCount = %d, want 1", ran.RunCount)
	}

	if err := store.Delete("u_1", saved.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get("u_1", saved.ID); err == nil {
		t.Error("deleted query must not be found")
	}
}

func TestSavedQueryOwnerScoping(t *testing.T) {
	store := NewSavedQueryStore(10)
	saved, err := store.Save("u_1", "mine", "q", "SELECT 1")
	if err != nil {
		t.Fatal(err)
	}

	var notFound *domain.NotFoundError
	if _, err := store.Get("u_2", saved.ID); !errors.As(err, &notFound) {
		t.Errorf("cross-user get: err = %v, want NotFoundError", err)
	}
	if err := store.Delete("u_2", saved.ID); !errors.As(err, &notFound) {
		t.Errorf("cross-user delete: err = %v, want NotFoundError", err)
	}
	if _, err := store.RecordRun("u_2", saved.ID); !errors.As(err, &notFound) {
		t.Errorf("cross-user run: err = %v, want NotFoundError", err)
	}
	if got := store.List("u_2", 0); len(got) != 0 {
		t.Errorf("cross-user list = %d entries, want 0", len(got))
	}
}

func TestSavedQueryListNewestFirst(t *testing.T) {
	store := NewSavedQueryStore(10)
	now := time.Now()
	for i := 0; i < 3; i++ {
		tick := now.Add(time.Duration(i) * time.Second)
		store.clock = func() time.Time { return tick }
		if _, err := store.Save("u_1", fmt.Sprintf("q%d", i), "question", "SELECT 1"); err != nil {
			t.Fatal(err)
		}
	}

	got := store.List("u_1", 2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "q2" || got[1].Name != "q1" {
		t.Errorf("order = %q, %q; want q2, q1", got[0].Name, got[1].Name)
	}
}

func TestSavedQuerySearch(t *testing.T) {
	store := NewSavedQueryStore(10)
	if _, err := store.Save("u_1", "Monthly Revenue", "total sales per month?", "SELECT 1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save("u_1", "signups", "how many users signed up?", "SELECT 2"); err != nil {
		t.Fatal(err)
	}

	if got := store.Search("u_1", "revenue"); len(got) != 1 || got[0].Name != "Monthly Revenue" {
		t.Errorf("search by name = %+v", got)
	}
	if got := store.Search("u_1", "users"); len(got) != 1 || got[0].Name != "signups" {
		t.Errorf("search by question = %+v", got)
	}
	if got := store.Search("u_1", "zzz"); len(got) != 0 {
		t.Errorf("no-match search = %+v", got)
	}
}

func TestSavedQueryCapacity(t *testing.T) {
	store := NewSavedQueryStore(2)
	for i := 0; i < 2; i++ {
		if _, err := store.Save("u_1", fmt.Sprintf("q%d", i), "question", "SELECT 1"); err != nil {
			t.Fatal(err)
		}
	}

	var vErr *domain.ValidationError
	if _, err := store.Save("u_1", "one too many", "question", "SELECT 1"); !errors.As(err, &vErr) {
		t.Errorf("err = %v, want ValidationError at capacity", err)
	}
}

func TestSavedQueryRejectsBlankFields(t *testing.T) {
	store := NewSavedQueryStore(10)

	var vErr *domain.ValidationError
	if _, err := store.Save("u_1", "  ", "question", "SELECT 1"); !errors.As(err, &vErr) {
		t.Errorf("blank name: err = %v, want ValidationError", err)
	}
	if _, err := store.Save("u_1", "name", "", "SELECT 1"); !errors.As(err, &vErr) {
		t.Errorf("blank question: err = %v, want ValidationError", err)
	}
}
