package webbind

// Unwrapper is implemented by host-side proxies.
// Converters use it to reach the delegate a proxy forwards to.
type Unwrapper interface {
	Delegate() any
}

// Recorder is implemented by data objects that have a canonical
// key-unique record form.
type Recorder interface {
	ToRecord() map[string]any
}

// RecordLoader is implemented by data objects that can be filled from a record.
type RecordLoader interface {
	FromRecord(map[string]any) error
}
