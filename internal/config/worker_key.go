package config

type WorkerKeyStruct struct {
	CreateSessionsQueue   string
	PersistAnswersQueue   string
	SessionProgressQueue  string
	CompleteSessionsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	CreateSessionsQueue:   "create_sessions_queue",
	PersistAnswersQueue:   "persist_answers_queue",
	SessionProgressQueue:  "session_progress_queue",
	CompleteSessionsQueue: "complete_sessions_queue",
}
