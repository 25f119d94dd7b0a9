package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CandidateType discriminates invite candidates on the wire and selects the
// channel they are dispatched through.
type CandidateType string

const (
	CandidateTypeUser       CandidateType = "user"
	CandidateTypeRoom       CandidateType = "room"
	CandidateTypeVideoSIPGW CandidateType = "videosipgw"
	CandidateTypePhone      CandidateType = "phone"
)

// Candidate is a closed union over the variants in this package. Variants
// are plain comparable values so that "remove this exact candidate" is a
// simple equality check.
type Candidate interface {
	// Type reports the wire discriminator of the variant.
	Type() CandidateType
	// Key reports the identity a candidate is cached and selected by:
	// the id for directory entries, the number for phone entries.
	Key() string

	isCandidate()
}

// User is a person found in the directory.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

func (User) Type() CandidateType { return CandidateTypeUser }
func (u User) Key() string       { return u.ID }
func (User) isCandidate()        {}

// Room is a named conference room found in the directory.
type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (Room) Type() CandidateType { return CandidateTypeRoom }
func (r Room) Key() string       { return r.ID }
func (Room) isCandidate()        {}

// VideoSIPGW is a video room reachable through a SIP gateway.
type VideoSIPGW struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (VideoSIPGW) Type() CandidateType { return CandidateTypeVideoSIPGW }
func (v VideoSIPGW) Key() string       { return v.ID }
func (VideoSIPGW) isCandidate()        {}

// Phone is a dialable number, either entered by the user and validated for
// dial-out or returned by the directory itself.
type Phone struct {
	Number  string `json:"number"`
	Allowed bool   `json:"allowed"`
	Country string `json:"country,omitempty"`
	// OriginalEntry preserves the text exactly as the user typed it.
	OriginalEntry string `json:"originalEntry"`
	// ShowCountryCodeReminder tells the client to warn that a default
	// country code was assumed because the entry had no "+" prefix.
	ShowCountryCodeReminder bool `json:"showCountryCodeReminder"`
}

func (Phone) Type() CandidateType { return CandidateTypePhone }
func (p Phone) Key() string       { return p.Number }
func (Phone) isCandidate()        {}

// MarshalCandidate encodes a single candidate with its type discriminator.
func MarshalCandidate(c Candidate) ([]byte, error) {
	switch v := c.(type) {
	case User:
		return json.Marshal(struct {
			Type CandidateType `json:"type"`
			User
		}{CandidateTypeUser, v})
	case Room:
		return json.Marshal(struct {
			Type CandidateType `json:"type"`
			Room
		}{CandidateTypeRoom, v})
	case VideoSIPGW:
		return json.Marshal(struct {
			Type CandidateType `json:"type"`
			VideoSIPGW
		}{CandidateTypeVideoSIPGW, v})
	case Phone:
		return json.Marshal(struct {
			Type CandidateType `json:"type"`
			Phone
		}{CandidateTypePhone, v})
	case nil:
		return nil, errors.New("cannot marshal nil candidate")
	default:
		return nil, fmt.Errorf("unknown candidate variant %T", c)
	}
}

// UnmarshalCandidate decodes a single candidate by its type discriminator.
func UnmarshalCandidate(data []byte) (Candidate, error) {
	var probe struct {
		Type CandidateType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode candidate: %w", err)
	}

	switch probe.Type {
	case CandidateTypeUser:
		var v User
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode user candidate: %w", err)
		}
		return v, nil
	case CandidateTypeRoom:
		var v Room
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode room candidate: %w", err)
		}
		return v, nil
	case CandidateTypeVideoSIPGW:
		var v VideoSIPGW
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode videosipgw candidate: %w", err)
		}
		return v, nil
	case CandidateTypePhone:
		var v Phone
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode phone candidate: %w", err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown candidate type %q", probe.Type)
	}
}

// CandidateList is a heterogeneous candidate slice with a tagged JSON form.
// It always encodes as an array, never as null.
type CandidateList []Candidate

func (l CandidateList) MarshalJSON() ([]byte, error) {
	items := make([]json.RawMessage, 0, len(l))
	for _, c := range l {
		b, err := MarshalCandidate(c)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return json.Marshal(items)
}

func (l *CandidateList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(CandidateList, 0, len(raw))
	for _, entry := range raw {
		c, err := UnmarshalCandidate(entry)
		if err != nil {
			return err
		}
		out = append(out, c)
	}
	*l = out
	return nil
}

// FilterType returns the candidates of one variant, preserving order.
func (l CandidateList) FilterType(t CandidateType) CandidateList {
	var out CandidateList
	for _, c := range l {
		if c.Type() == t {
			out = append(out, c)
		}
	}
	return out
}

// HasType reports whether any candidate of the given variant is present.
func (l CandidateList) HasType(t CandidateType) bool {
	for _, c := range l {
		if c.Type() == t {
			return true
		}
	}
	return false
}
