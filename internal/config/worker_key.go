package config

type WorkerKeyStruct struct {
	PersistActivitiesQueue  string
	PersistExamRecordsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistActivitiesQueue:  "persist_activities_queue",
	PersistExamRecordsQueue: "persist_exam_records_queue",
}
