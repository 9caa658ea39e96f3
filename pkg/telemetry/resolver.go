package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/ddialog/pkg/domain"
)

// ErrUnknownProperty is returned for addresses outside the supported set.
var ErrUnknownProperty = errors.New("unknown property")

// Scope is the data available when a telemetry event is resolved.
// Any field may be nil; addresses depending on it are skipped.
type Scope struct {
	Activity  *domain.Activity
	Result    *domain.RecognizerResult
	Step      *domain.StepDefinition
	Value     *domain.StepResult
	Dialog    *domain.DialogDefinition
	StepIndex int
}

// Address is a parsed property address.
type Address struct {
	Raw      string
	Segments []string
	Key      string
}

func (a Address) path() string {
	return strings.ToLower(strings.Join(a.Segments, "."))
}

var (
	addressPattern = regexp.MustCompile(`(?i)^(\S+?)(?:\s+as\s+(\S+))?$`)
	segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_$@-]+$`)
)

// ParseAddress parses "Class[.Nested].Property[ as alias]".
func ParseAddress(s string) (Address, error) {
	raw := strings.TrimSpace(s)
	m := addressPattern.FindStringSubmatch(raw)
	if m == nil {
		return Address{}, fmt.Errorf("malformed address %q", s)
	}

	segments := strings.Split(m[1], ".")
	if len(segments) < 2 {
		return Address{}, fmt.Errorf("address %q needs a class and a property", s)
	}
	for _, seg := range segments {
		if !segmentPattern.MatchString(seg) {
			return Address{}, fmt.Errorf("malformed segment %q in address %q", seg, s)
		}
	}

	key := m[2]
	if key == "" {
		key = segments[len(segments)-1]
	}
	return Address{Raw: raw, Segments: segments, Key: key}, nil
}

type accessor func(*Scope) (string, bool)

// Resolver maps addresses to values of a Scope.
type Resolver struct {
	accessors map[string]accessor
}

// NewResolver creates a Resolver with the supported address set.
func NewResolver() *Resolver {
	r := &Resolver{accessors: make(map[string]accessor)}

	activity := func(get func(*domain.Activity) string) accessor {
		return func(s *Scope) (string, bool) {
			if s.Activity == nil {
				return "", false
			}
			return get(s.Activity), true
		}
	}

	r.add("activity.id", activity(func(a *domain.Activity) string { return a.ID }))
	r.add("activity.type", activity(func(a *domain.Activity) string { return string(a.Type) }))
	r.add("activity.text", activity(func(a *domain.Activity) string { return a.Text }))
	r.add("activity.locale", activity(func(a *domain.Activity) string { return a.Locale }))
	r.add("activity.channelid", activity(func(a *domain.Activity) string { return a.ChannelID }))
	r.add("activity.timestamp", func(s *Scope) (string, bool) {
		if s.Activity == nil || s.Activity.Timestamp.IsZero() {
			return "", false
		}
		return s.Activity.Timestamp.UTC().Format(time.RFC3339Nano), true
	})

	for _, prefix := range []string{"activity.from", "from"} {
		r.addAccount(prefix, func(a *domain.Activity) domain.ChannelAccount { return a.From })
	}
	for _, prefix := range []string{"activity.recipient", "recipient"} {
		r.addAccount(prefix, func(a *domain.Activity) domain.ChannelAccount { return a.Recipient })
	}
	for _, prefix := range []string{"activity.conversation", "conversation"} {
		r.add(prefix+".id", activity(func(a *domain.Activity) string { return a.Conversation.ID }))
		r.add(prefix+".name", activity(func(a *domain.Activity) string { return a.Conversation.Name }))
		r.add(prefix+".isgroup", activity(func(a *domain.Activity) string { return strconv.FormatBool(a.Conversation.IsGroup) }))
	}

	r.add("recognizerresult.text", func(s *Scope) (string, bool) {
		if s.Result == nil {
			return "", false
		}
		return s.Result.Text, true
	})
	r.add("recognizerresult.topintent", func(s *Scope) (string, bool) {
		if s.Result == nil {
			return "", false
		}
		intent, _ := s.Result.TopIntent()
		return intent, true
	})
	r.add("recognizerresult.topscore", func(s *Scope) (string, bool) {
		if s.Result == nil {
			return "", false
		}
		_, score := s.Result.TopIntent()
		return strconv.FormatFloat(score, 'f', -1, 64), true
	})

	r.add("step.name", func(s *Scope) (string, bool) {
		if s.Step == nil {
			return "", false
		}
		return s.Step.Name, true
	})
	r.add("step.type", func(s *Scope) (string, bool) {
		if s.Step == nil {
			return "", false
		}
		return string(s.Step.Type), true
	})
	r.add("step.value", func(s *Scope) (string, bool) {
		if s.Value == nil || s.Value.Value == nil {
			return "", false
		}
		return stringify(s.Value.Value)
	})

	r.add("dialog.name", func(s *Scope) (string, bool) {
		if s.Dialog == nil {
			return "", false
		}
		return s.Dialog.Name, true
	})
	r.add("dialog.stepindex", func(s *Scope) (string, bool) {
		if s.Dialog == nil {
			return "", false
		}
		return strconv.Itoa(s.StepIndex), true
	})

	return r
}

func (r *Resolver) add(path string, fn accessor) {
	r.accessors[path] = fn
}

func (r *Resolver) addAccount(prefix string, get func(*domain.Activity) domain.ChannelAccount) {
	field := func(pick func(domain.ChannelAccount) string) accessor {
		return func(s *Scope) (string, bool) {
			if s.Activity == nil {
				return "", false
			}
			return pick(get(s.Activity)), true
		}
	}
	r.add(prefix+".id", field(func(c domain.ChannelAccount) string { return c.ID }))
	r.add(prefix+".name", field(func(c domain.ChannelAccount) string { return c.Name }))
	r.add(prefix+".role", field(func(c domain.ChannelAccount) string { return c.Role }))
}

// lookup returns the accessor for a parsed address.
func (r *Resolver) lookup(addr Address) (accessor, bool) {
	if fn, ok := r.accessors[addr.path()]; ok {
		return fn, true
	}
	if len(addr.Segments) != 2 {
		return nil, false
	}

	name := addr.Segments[1]
	switch strings.ToLower(addr.Segments[0]) {
	case "intents":
		return func(s *Scope) (string, bool) {
			if s.Result == nil {
				return "", false
			}
			for intent, score := range s.Result.Intents {
				if strings.EqualFold(intent, name) {
					return strconv.FormatFloat(score, 'f', -1, 64), true
				}
			}
			return "", false
		}, true
	case "entities":
		return func(s *Scope) (string, bool) {
			if s.Result == nil {
				return "", false
			}
			for entity, values := range s.Result.Entities {
				if !strings.EqualFold(entity, name) || len(values) == 0 {
					continue
				}
				parts := make([]string, 0, len(values))
				for _, v := range values {
					if str, ok := stringify(v); ok {
						parts = append(parts, str)
					}
				}
				return strings.Join(parts, ","), true
			}
			return "", false
		}, true
	}
	return nil, false
}

// Check reports every address that is malformed or unsupported.
func (r *Resolver) Check(addresses []string) error {
	var errs []error
	for _, raw := range addresses {
		addr, err := ParseAddress(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, ok := r.lookup(addr); !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownProperty, raw))
		}
	}
	return errors.Join(errs...)
}

// Validate reports whether every address is supported.
func (r *Resolver) Validate(addresses []string) bool {
	return r.Check(addresses) == nil
}

// Resolve returns the values of all resolvable addresses keyed by alias or
// property name. Invalid addresses and unavailable values are skipped.
func (r *Resolver) Resolve(scope *Scope, addresses []string) map[string]string {
	out := make(map[string]string, len(addresses))
	if scope == nil {
		return out
	}
	for _, raw := range addresses {
		addr, err := ParseAddress(raw)
		if err != nil {
			continue
		}
		fn, ok := r.lookup(addr)
		if !ok {
			continue
		}
		if v, ok := access(fn, scope); ok {
			out[addr.Key] = v
		}
	}
	return out
}

// access drops a field whose accessor panics, e.g. a nil pointer Stringer.
func access(fn accessor, scope *Scope) (v string, ok bool) {
	defer func() {
		if recover() != nil {
			v, ok = "", false
		}
	}()
	return fn(scope)
}

func stringify(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case int64:
		return strconv.FormatInt(val, 10), true
	case int:
		return strconv.Itoa(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	case fmt.Stringer:
		return val.String(), true
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val), true
		}
		return string(data), true
	}
}
