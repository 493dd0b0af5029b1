package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BatchScheme prefixes the stored form of a composite target. The member
// list follows as a JSON array, so commas or quotes inside a URL survive.
const BatchScheme = "batch://"

var ErrMalformedTarget = errors.New("malformed batch target")

// Target is either a single URL or an ordered batch of URLs.
type Target struct {
	url     string
	members []string
	batch   bool
}

func SingleTarget(url string) Target {
	return Target{url: url}
}

func BatchTarget(urls []string) Target {
	return Target{members: append([]string{}, urls...), batch: true}
}

func (t Target) IsBatch() bool { return t.batch }

// URLs lists the invocation targets in order. Duplicates are kept.
func (t Target) URLs() []string {
	if t.IsBatch() {
		return append([]string(nil), t.members...)
	}
	if t.url == "" {
		return nil
	}
	return []string{t.url}
}

func (t Target) Empty() bool {
	if t.IsBatch() {
		return len(t.members) == 0
	}
	return strings.TrimSpace(t.url) == ""
}

// Encode renders the target for storage and the wire.
func (t Target) Encode() string {
	if !t.IsBatch() {
		return t.url
	}
	b, _ := json.Marshal(t.members)
	return BatchScheme + string(b)
}

func (t Target) String() string { return t.Encode() }

// DecodeTarget is the inverse of Encode. A batch value whose member list is
// not a JSON array of non-empty strings, or is empty, is ErrMalformedTarget.
func DecodeTarget(s string) (Target, error) {
	raw, ok := strings.CutPrefix(s, BatchScheme)
	if !ok {
		return SingleTarget(s), nil
	}
	var urls []string
	if err := json.Unmarshal([]byte(raw), &urls); err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrMalformedTarget, err)
	}
	if len(urls) == 0 {
		return Target{}, fmt.Errorf("%w: empty member list", ErrMalformedTarget)
	}
	for i, u := range urls {
		if strings.TrimSpace(u) == "" {
			return Target{}, fmt.Errorf("%w: member %d is empty", ErrMalformedTarget, i)
		}
	}
	return BatchTarget(urls), nil
}

// RawTarget keeps an encoded value that has not been decoded yet. Stores
// hand it through so a malformed batch surfaces at execution time instead of
// hiding the task from listings.
func RawTarget(encoded string) Target {
	return Target{url: encoded}
}

func (t Target) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Encode())
}

func (t *Target) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	dec, err := DecodeTarget(s)
	if err != nil {
		return err
	}
	*t = dec
	return nil
}
