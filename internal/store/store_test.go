package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTask(id string) *ScheduledTask {
	next := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return &ScheduledTask{
		ID:            id,
		TenantFolder:  "family",
		ChatID:        "12345",
		Prompt:        "send the weather",
		ScheduleType:  ScheduleCron,
		ScheduleValue: "0 9 * * *",
		ContextMode:   ContextGroup,
		NextRun:       &next,
		Status:        StatusActive,
		CreatedAt:     time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestTaskRoundTrip(t *testing.T) {
	s := newTestStore(t)

	want := sampleTask("task-1")
	if err := s.CreateTask(want); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetTask("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.TenantFolder != want.TenantFolder || got.ChatID != want.ChatID ||
		got.Prompt != want.Prompt || got.ScheduleType != want.ScheduleType ||
		got.ScheduleValue != want.ScheduleValue || got.ContextMode != want.ContextMode ||
		got.Status != want.Status {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
	if got.NextRun == nil || !got.NextRun.Equal(*want.NextRun) {
		t.Errorf("NextRun = %v, want %v", got.NextRun, want.NextRun)
	}
	if got.LastRun != nil {
		t.Errorf("LastRun = %v, want nil", got.LastRun)
	}
}

func TestUpdateTask(t *testing.T) {
	s := newTestStore(t)

	task := sampleTask("task-1")
	if err := s.CreateTask(task); err != nil {
		t.Fatal(err)
	}

	fired := time.Date(2024, 3, 1, 9, 0, 5, 0, time.UTC)
	task.Status = StatusCompleted
	task.NextRun = nil
	task.LastRun = &fired
	task.LastResult = "ok"
	if err := s.UpdateTask(task); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetTask("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted || got.NextRun != nil || got.LastResult != "ok" {
		t.Errorf("update not persisted: %+v", got)
	}
	if got.LastRun == nil || !got.LastRun.Equal(fired) {
		t.Errorf("LastRun = %v, want %v", got.LastRun, fired)
	}
}

func TestRecordTaskResultLeavesScheduleAlone(t *testing.T) {
	s := newTestStore(t)

	task := sampleTask("task-1")
	task.Status = StatusPaused
	if err := s.CreateTask(task); err != nil {
		t.Fatal(err)
	}

	fired := time.Date(2024, 3, 1, 9, 0, 5, 0, time.UTC)
	if err := s.RecordTaskResult("task-1", fired, "ok"); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetTask("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPaused {
		t.Errorf("status = %q, result write must not touch it", got.Status)
	}
	if got.NextRun == nil || !got.NextRun.Equal(*task.NextRun) {
		t.Errorf("NextRun = %v, result write must not touch it", got.NextRun)
	}
	if got.LastRun == nil || !got.LastRun.Equal(fired) || got.LastResult != "ok" {
		t.Errorf("result not recorded: lastRun=%v lastResult=%q", got.LastRun, got.LastResult)
	}

	if err := s.RecordTaskResult("nope", fired, "ok"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetMissingTask(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetTask("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := s.UpdateTask(sampleTask("nope")); !errors.Is(err, ErrNotFound) {
		t.Errorf("update err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteTask("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete err = %v, want ErrNotFound", err)
	}
}

func TestDeleteTask(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateTask(sampleTask("task-1")); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteTask("task-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetTask("task-1"); !errors.Is(err, ErrNotFound) {
		t.Error("task should be gone")
	}
}

func TestListTasksByTenant(t *testing.T) {
	s := newTestStore(t)

	a := sampleTask("a")
	b := sampleTask("b")
	b.TenantFolder = "work"
	for _, task := range []*ScheduledTask{a, b} {
		if err := s.CreateTask(task); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListTasks("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("all tasks = %d, want 2", len(all))
	}

	family, err := s.ListTasks("family")
	if err != nil {
		t.Fatal(err)
	}
	if len(family) != 1 || family[0].ID != "a" {
		t.Errorf("family tasks = %+v", family)
	}
}

func TestDueTasks(t *testing.T) {
	s := newTestStore(t)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	due := sampleTask("due")
	past := now.Add(-time.Hour)
	due.NextRun = &past

	future := sampleTask("future")
	later := now.Add(time.Hour)
	future.NextRun = &later

	paused := sampleTask("paused")
	paused.NextRun = &past
	paused.Status = StatusPaused

	done := sampleTask("done")
	done.NextRun = nil
	done.Status = StatusCompleted

	for _, task := range []*ScheduledTask{due, future, paused, done} {
		if err := s.CreateTask(task); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.DueTasks(now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "due" {
		t.Errorf("due tasks = %+v, want only 'due'", got)
	}
}

func TestPreferences(t *testing.T) {
	s := newTestStore(t)

	if v, err := s.GetPreference("family", "tone"); err != nil || v != "" {
		t.Errorf("unset preference = (%q, %v), want empty", v, err)
	}

	if err := s.SetPreference("family", "tone", "casual"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPreference("family", "tone", "formal"); err != nil {
		t.Fatal(err)
	}

	v, err := s.GetPreference("family", "tone")
	if err != nil {
		t.Fatal(err)
	}
	if v != "formal" {
		t.Errorf("preference = %q, want formal (last write wins)", v)
	}

	// Other tenants are isolated.
	if v, _ := s.GetPreference("work", "tone"); v != "" {
		t.Errorf("work tenant sees %q, want empty", v)
	}
}

func TestListPreferences(t *testing.T) {
	s := newTestStore(t)

	empty, err := s.ListPreferences("family")
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("fresh tenant has %d preferences", len(empty))
	}

	if err := s.SetPreference("family", "tone", "casual"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPreference("family", "language", "en"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPreference("work", "tone", "formal"); err != nil {
		t.Fatal(err)
	}

	prefs, err := s.ListPreferences("family")
	if err != nil {
		t.Fatal(err)
	}
	if len(prefs) != 2 || prefs["tone"] != "casual" || prefs["language"] != "en" {
		t.Errorf("preferences = %v", prefs)
	}
}
