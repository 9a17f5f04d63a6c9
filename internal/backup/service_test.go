package backup

import (
	"reflect"
	"testing"
	"time"
)

func TestObjectName(t *testing.T) {
	takenAt := time.Date(2026, 9, 1, 3, 30, 0, 0, time.UTC)
	if got := ObjectName(takenAt); got != "redbook_backup_20260901_033000.json" {
		t.Errorf("ObjectName = %q", got)
	}
}

func TestExpiredKeepsNewest(t *testing.T) {
	names := []string{
		"redbook_backup_20260101_000000.json",
		"redbook_backup_20260301_000000.json",
		"redbook_backup_20260201_000000.json",
		"unrelated-object.txt",
	}

	expired := Expired(names, 2)
	want := []string{"redbook_backup_20260101_000000.json"}
	if !reflect.DeepEqual(expired, want) {
		t.Errorf("Expired = %v, want %v", expired, want)
	}
}

func TestExpiredUnderLimit(t *testing.T) {
	names := []string{"redbook_backup_20260101_000000.json"}
	if expired := Expired(names, 5); expired != nil {
		t.Errorf("Expired = %v, want nil", expired)
	}
}
