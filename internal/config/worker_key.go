package config

type WorkerKeyStruct struct {
	PersistSessionEventsQueue string
	DeadSessionEventsQueue    string
}

var WorkerKey = &WorkerKeyStruct{
	PersistSessionEventsQueue: "persist_session_events_queue",
	DeadSessionEventsQueue:    "dead_session_events_queue",
}
