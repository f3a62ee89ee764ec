package events

// EventType represents different event types
type EventType string

const (
	RunStarted         EventType = "RUN_STARTED"
	RowRejected        EventType = "ROW_REJECTED"
	SnapshotBuilt      EventType = "SNAPSHOT_BUILT"
	DuplicatePeriod    EventType = "DUPLICATE_PERIOD"
	PeriodCommitted    EventType = "PERIOD_COMMITTED"
	DigestSkipped      EventType = "DIGEST_SKIPPED"
	NotificationSent   EventType = "NOTIFICATION_SENT"
	NotificationFailed EventType = "NOTIFICATION_FAILED"
	RunFailed          EventType = "RUN_FAILED"
	RunFinished        EventType = "RUN_FINISHED"
	BackupCompleted    EventType = "BACKUP_COMPLETED"
	BackupFailed       EventType = "BACKUP_FAILED"
)
