package event_bus

const (
	AuthStateChangedType EventType = "auth.state.changed"
	ExportCompletedType  EventType = "export.completed"
)

type AuthStateChanged struct {
	From string
	To   string
	Flow string
}

// ExportCompleted carries the selections an export ran with.
type ExportCompleted struct {
	CalendarIds []string
	Colours     []string
	TypeMap     map[string]string
	Filename    string
	Records     int
	Warnings    int
}
