package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/brokenlinks/internal/crawler"
)

type emptySiteFetcher struct{}

func (emptySiteFetcher) FetchPage(_ context.Context, url string) (crawler.Page, error) {
	return crawler.Page{URL: url, FinalURL: url, StatusCode: 200, ContentType: "text/html"}, nil
}

func (emptySiteFetcher) CheckResource(context.Context, string) (int, error) {
	return 200, nil
}

func startSession(t *testing.T) *crawler.Session {
	t.Helper()
	sess, err := crawler.StartCrawl(context.Background(), "http://x.test/", 5, 1, emptySiteFetcher{})
	if err != nil {
		t.Fatalf("StartCrawl() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := sess.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return sess
}

func TestSessionStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewSessionStore()
	first := startSession(t)
	second := startSession(t)

	if err := store.Add(first); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := store.Add(first); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
	if err := store.Add(second); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	got, err := store.Get(first.ID())
	if err != nil || got != first {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if _, err := store.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	infos := store.List()
	if len(infos) != 2 || infos[0].ID != first.ID() || infos[1].ID != second.ID() {
		t.Fatalf("unexpected list order: %+v", infos)
	}
	if infos[0].Status != crawler.StatusCompleted || infos[0].Visited != 1 {
		t.Fatalf("unexpected info: %+v", infos[0])
	}
	if running := store.Running(); len(running) != 0 {
		t.Fatalf("expected no running sessions, got %d", len(running))
	}
}

func TestSessionStoreRejectsIdleSession(t *testing.T) {
	t.Parallel()

	sess, err := crawler.NewSession(crawler.DefaultConfig(), emptySiteFetcher{})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if err := NewSessionStore().Add(sess); err == nil {
		t.Fatal("expected error for session without id")
	}
}
