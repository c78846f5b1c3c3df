package usage

import (
	"fmt"
	"strings"
	"time"
)

// Category classifies a usage record.
type Category int

const (
	CategoryLogin Category = iota + 1
	CategoryFocus
	CategoryIdle
	CategoryLocked
	CategoryRemote
)

var categoryNames = map[Category]string{
	CategoryLogin:  "login",
	CategoryFocus:  "focus",
	CategoryIdle:   "idle",
	CategoryLocked: "locked",
	CategoryRemote: "remote",
}

// Categories lists every known category.
func Categories() []Category {
	return []Category{CategoryLogin, CategoryFocus, CategoryIdle, CategoryLocked, CategoryRemote}
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// ParseCategory converts a category name, case-insensitively.
func ParseCategory(s string) (Category, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	for c, name := range categoryNames {
		if name == normalized {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCategory, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Record is one activity span. End is nil while the record is open.
type Record struct {
	ID       string     `json:"id"`
	UserID   int64      `json:"user_id"`
	Category Category   `json:"category"`
	Start    time.Time  `json:"start"`
	End      *time.Time `json:"end,omitempty"`
	Current  bool       `json:"current"`
	LoginID  string     `json:"login_id,omitempty"`
}

// Closed reports whether the record has been closed.
func (r *Record) Closed() bool {
	return !r.Current && r.End != nil
}

// Duration returns the span length, measuring open records up to now.
func (r *Record) Duration(now time.Time) time.Duration {
	end := now
	if r.End != nil && !r.Current {
		end = *r.End
	}
	if end.Before(r.Start) {
		return 0
	}
	return end.Sub(r.Start)
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := *r
	if r.End != nil {
		end := *r.End
		c.End = &end
	}
	return &c
}
