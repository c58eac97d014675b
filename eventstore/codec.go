package eventstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validator is an optional interface an EventData variant can implement so
// the codec can surface missing required fields as ErrMalformedEnvelope
// instead of silently accepting zero values.
type Validator interface {
	Validate() error
}

type envelopeContextWire struct {
	Time    string          `json:"time"`
	Subject json.RawMessage `json:"subject,omitempty"`
	Action  json.RawMessage `json:"action,omitempty"`
}

type envelopeWire struct {
	ID      uuid.UUID            `json:"id"`
	Data    json.RawMessage      `json:"data"`
	Context envelopeContextWire `json:"context"`
}

// legacyLayouts are the naive (non-UTC-suffixed) timestamp formats accepted
// on decode for compatibility with legacy stores (spec.md §4.1).
var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// Codec encodes and decodes Events against a Registry. It performs no I/O.
type Codec struct {
	registry *Registry
}

// NewCodec returns a Codec bound to the given variant registry.
func NewCodec(registry *Registry) *Codec {
	return &Codec{registry: registry}
}

// Encode produces the canonical on-wire JSON form of ev (spec.md §3):
// a flat object with "id", "data" (event_namespace/event_type inlined
// alongside the payload's own fields), and "context" (time formatted as
// RFC3339 UTC, subject/action passed through unchanged).
func (c *Codec) Encode(ev Event) ([]byte, error) {
	payloadBytes, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, newErr(ErrIo, "encode", ev.ID.String(), err)
	}

	var payloadFields map[string]json.RawMessage
	if err := json.Unmarshal(payloadBytes, &payloadFields); err != nil {
		return nil, newErr(ErrMalformedEnvelope, "encode", ev.ID.String(), err)
	}
	if payloadFields == nil {
		payloadFields = map[string]json.RawMessage{}
	}

	nsJSON, _ := json.Marshal(ev.Data.EventNamespace())
	typJSON, _ := json.Marshal(ev.Data.EventType())
	payloadFields["event_namespace"] = nsJSON
	payloadFields["event_type"] = typJSON

	dataBytes, err := json.Marshal(payloadFields)
	if err != nil {
		return nil, newErr(ErrIo, "encode", ev.ID.String(), err)
	}

	wire := envelopeWire{
		ID:   ev.ID,
		Data: dataBytes,
		Context: envelopeContextWire{
			Time:    ev.Context.Time.UTC().Format(time.RFC3339Nano),
			Subject: ev.Context.Subject,
			Action:  ev.Context.Action,
		},
	}

	out, err := json.Marshal(wire)
	if err != nil {
		return nil, newErr(ErrIo, "encode", ev.ID.String(), err)
	}
	return out, nil
}

// Decode resolves the variant for a canonical or legacy-form JSON envelope
// and deserializes its payload fields (spec.md §4.1). Decoders MUST attempt
// the new form first and fall back to the legacy form: this is that
// attempt-then-fallback, in one pass over the parsed "data" object.
func (c *Codec) Decode(raw []byte) (Event, error) {
	var wire envelopeWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Event{}, newErr(ErrMalformedEnvelope, "decode", "", err)
	}

	var dataFields map[string]json.RawMessage
	if err := json.Unmarshal(wire.Data, &dataFields); err != nil {
		return Event{}, newErr(ErrMalformedEnvelope, "decode", wire.ID.String(), err)
	}

	namespace, typ, err := resolveKind(dataFields)
	if err != nil {
		return Event{}, newErr(ErrMalformedEnvelope, "decode", wire.ID.String(), err)
	}

	factory, ok := c.registry.Lookup(namespace, typ)
	if !ok {
		return Event{}, newErr(ErrUnknownVariant, "decode", namespace+"."+typ, nil)
	}

	payload := factory()
	if err := json.Unmarshal(wire.Data, payload); err != nil {
		return Event{}, newErr(ErrMalformedEnvelope, "decode", wire.ID.String(), err)
	}
	if v, ok := payload.(Validator); ok {
		if err := v.Validate(); err != nil {
			return Event{}, newErr(ErrMalformedEnvelope, "decode", wire.ID.String(), err)
		}
	}

	t, err := parseContextTime(wire.Context.Time)
	if err != nil {
		return Event{}, newErr(ErrMalformedEnvelope, "decode", wire.ID.String(), err)
	}

	return Event{
		ID:   wire.ID,
		Data: payload,
		Context: EventContext{
			Time:    t,
			Subject: wire.Context.Subject,
			Action:  wire.Context.Action,
		},
	}, nil
}

// resolveKind implements spec.md §4.1's decode resolution order: canonical
// event_namespace/event_type keys first, then a legacy "type": "ns.Type"
// discriminator, else MalformedEnvelope.
func resolveKind(dataFields map[string]json.RawMessage) (namespace, typ string, err error) {
	if nsRaw, ok := dataFields["event_namespace"]; ok {
		if typRaw, ok := dataFields["event_type"]; ok {
			var ns, ty string
			if err := json.Unmarshal(nsRaw, &ns); err != nil {
				return "", "", err
			}
			if err := json.Unmarshal(typRaw, &ty); err != nil {
				return "", "", err
			}
			return ns, ty, nil
		}
	}

	if legacyRaw, ok := dataFields["type"]; ok {
		var legacy string
		if err := json.Unmarshal(legacyRaw, &legacy); err != nil {
			return "", "", err
		}
		idx := strings.Index(legacy, ".")
		if idx <= 0 || idx == len(legacy)-1 {
			return "", "", newErr(ErrMalformedEnvelope, "decode", legacy, nil)
		}
		return legacy[:idx], legacy[idx+1:], nil
	}

	return "", "", newErr(ErrMalformedEnvelope, "decode", "", nil)
}

// parseContextTime parses an RFC3339 timestamp, accepting a naive
// (non-UTC-suffixed) timestamp as UTC for compatibility with legacy stores
// (spec.md §4.1).
func parseContextTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range legacyLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, newErr(ErrMalformedEnvelope, "parse_time", s, nil)
}
