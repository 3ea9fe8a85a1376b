package config

type WorkerKeyStruct struct {
	PersistSessionsQueue string
	// PersistSessionsPending holds ids already queued, so a session is queued at most once.
	PersistSessionsPending string
	ProgressEventsQueue    string
}

var WorkerKey = &WorkerKeyStruct{
	PersistSessionsQueue:   "persist_sessions_queue",
	PersistSessionsPending: "persist_sessions_pending",
	ProgressEventsQueue:    "progress_events_queue",
}
