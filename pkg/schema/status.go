package schema

import (
	"encoding/json"
	"errors"
	"time"
)

// LoadStatus is the outcome of the most recent load of one franchise.
type LoadStatus struct {
	Franchise string    `json:"franchise"`
	Snapshot  string    `json:"snapshot,omitzero"`
	Movies    int       `json:"movies"`
	LoadedAt  time.Time `json:"loaded_at,omitzero"`
	Warnings  []string  `json:"warnings,omitempty"`

	Error error `json:"-"`
}

func (s LoadStatus) OK() bool { return s.Error == nil }

type statusAlias struct {
	Franchise string    `json:"franchise"`
	OK        bool      `json:"ok"`
	Snapshot  string    `json:"snapshot,omitzero"`
	Movies    int       `json:"movies"`
	LoadedAt  time.Time `json:"loaded_at,omitzero"`
	Warnings  []string  `json:"warnings,omitempty"`
	Error     string    `json:"error,omitzero"`
}

func (s LoadStatus) MarshalJSON() ([]byte, error) {
	a := statusAlias{
		Franchise: s.Franchise,
		OK:        s.Error == nil,
		Snapshot:  s.Snapshot,
		Movies:    s.Movies,
		LoadedAt:  s.LoadedAt,
		Warnings:  s.Warnings,
	}
	if s.Error != nil {
		a.Error = s.Error.Error()
	}
	return json.Marshal(a)
}

func (s *LoadStatus) UnmarshalJSON(data []byte) error {
	var a statusAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	s.Franchise = a.Franchise
	s.Snapshot = a.Snapshot
	s.Movies = a.Movies
	s.LoadedAt = a.LoadedAt
	s.Warnings = a.Warnings
	s.Error = nil
	if a.Error != "" {
		s.Error = errors.New(a.Error)
	}
	return nil
}
