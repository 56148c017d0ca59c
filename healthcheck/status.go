package healthcheck

import (
	"fmt"
	"maps"
)

// Status is the outcome reported by one procedure.
type Status struct {
	Data           map[string]any
	OK             bool
	ProcedureError bool
}

// StatusOK returns an UP status.
func StatusOK() *Status {
	return &Status{OK: true}
}

// StatusKO returns a DOWN status.
func StatusKO() *Status {
	return &Status{}
}

// OKWith returns an UP status carrying data.
func OKWith(data map[string]any) *Status {
	return &Status{OK: true, Data: data}
}

// KOWith returns a DOWN status carrying data.
func KOWith(data map[string]any) *Status {
	return &Status{Data: data}
}

// ToRecord renders the status as a host record.
func (s *Status) ToRecord() map[string]any {
	rec := map[string]any{"ok": s.OK}
	if len(s.Data) > 0 {
		rec["data"] = maps.Clone(s.Data)
	}
	if s.ProcedureError {
		rec["procedureError"] = true
	}
	return rec
}

// FromRecord fills the status from a host record. A record without "ok"
// is UP.
func (s *Status) FromRecord(rec map[string]any) error {
	s.OK = true
	if v, ok := rec["ok"]; ok {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("status field ok: expected boolean, got %T", v)
		}
		s.OK = b
	}
	if v, ok := rec["data"]; ok && v != nil {
		data, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("status field data: expected record, got %T", v)
		}
		s.Data = maps.Clone(data)
	}
	if v, ok := rec["procedureError"].(bool); ok {
		s.ProcedureError = v
	}
	return nil
}

func (s *Status) label() string {
	if s.OK {
		return "UP"
	}
	return "DOWN"
}
