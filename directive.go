package directive

import (
	"fmt"
	"io"
	"reflect"
	"strings"
)

// NamespaceAndName identifies a directive type.
type NamespaceAndName struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Name      string `json:"name" yaml:"name"`
}

// NewType builds a NamespaceAndName.
func NewType(namespace, name string) NamespaceAndName {
	return NamespaceAndName{Namespace: namespace, Name: name}
}

func (n NamespaceAndName) String() string {
	return n.Namespace + ":" + n.Name
}

// IsZero reports whether both parts are empty.
func (n NamespaceAndName) IsZero() bool {
	return n.Namespace == "" && n.Name == ""
}

// Attachment is a reference to a byte stream delivered alongside a directive.
// The sequencer never reads it.
type Attachment interface {
	ContentID() string
	Open() (io.ReadCloser, error)
}

// Directive is a single instruction pushed down by the remote service.
// It is immutable once constructed.
type Directive struct {
	messageID       string
	typ             NamespaceAndName
	dialogRequestID string
	payload         []byte
	attachment      Attachment
}

// Option configures a Directive at construction time.
type Option func(*Directive)

// WithDialogRequestID scopes the directive to a dialog turn.
func WithDialogRequestID(id string) Option {
	return func(d *Directive) {
		d.dialogRequestID = id
	}
}

// WithPayload sets the opaque payload. The slice is copied.
func WithPayload(payload []byte) Option {
	return func(d *Directive) {
		if payload == nil {
			d.payload = nil
			return
		}
		d.payload = append([]byte(nil), payload...)
	}
}

// WithAttachment sets the attachment reference.
func WithAttachment(a Attachment) Option {
	return func(d *Directive) {
		d.attachment = a
	}
}

// New creates a directive of type namespace:name.
func New(namespace, name, messageID string, opts ...Option) *Directive {
	d := &Directive{
		messageID: messageID,
		typ:       NamespaceAndName{Namespace: namespace, Name: name},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

func (d *Directive) MessageID() string       { return d.messageID }
func (d *Directive) Namespace() string       { return d.typ.Namespace }
func (d *Directive) Name() string            { return d.typ.Name }
func (d *Directive) Type() NamespaceAndName  { return d.typ }
func (d *Directive) DialogRequestID() string { return d.dialogRequestID }
func (d *Directive) Attachment() Attachment  { return d.attachment }

// Payload returns a copy of the opaque payload.
func (d *Directive) Payload() []byte {
	if d.payload == nil {
		return nil
	}
	return append([]byte(nil), d.payload...)
}

// Validate checks that the directive carries an identity and a type.
func (d *Directive) Validate() error {
	if IsNil(d) {
		return NewError(ErrInvalidDirective, "nil directive", nil, nil)
	}

	var missing []string
	if strings.TrimSpace(d.messageID) == "" {
		missing = append(missing, "message_id")
	}
	if strings.TrimSpace(d.typ.Namespace) == "" {
		missing = append(missing, "namespace")
	}
	if strings.TrimSpace(d.typ.Name) == "" {
		missing = append(missing, "name")
	}
	if len(missing) == 0 {
		return nil
	}

	return NewError(ErrInvalidDirective, "directive is missing required fields", nil, map[string]any{
		"missing":    missing,
		"message_id": d.messageID,
		"type":       d.typ.String(),
	})
}

func (d *Directive) String() string {
	if d == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s[%s] dialog=%q", d.typ, d.messageID, d.dialogRequestID)
}

// IsNil reports whether v is nil or a typed nil value.
func IsNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Chan, reflect.Interface, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
