package convert

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/wippyai/webbind"
	"github.com/wippyai/webbind/errors"
	"github.com/wippyai/webbind/resource"
	"github.com/wippyai/webbind/shape"
)

// Binder resolves handle rules against registered classes.
type Binder interface {
	// Wrap builds the host proxy for a delegate of class.
	Wrap(delegate any, class string) (any, error)
	// Accepts reports whether a raw delegate satisfies class.
	Accepts(delegate any, class string) bool
}

// Converter marshals values between host and delegate representations.
// It holds no per-call state and is safe for concurrent use.
type Converter struct {
	binder Binder
	cache  *resource.Cache
}

// Option configures a Converter.
type Option func(*Converter)

// WithBinder sets the class binder used for handle rules.
func WithBinder(b Binder) Option {
	return func(c *Converter) { c.binder = b }
}

// WithCache sets the accessor cache used by ToHostFrom.
func WithCache(cache *resource.Cache) Option {
	return func(c *Converter) { c.cache = cache }
}

// New creates a converter.
func New(opts ...Option) *Converter {
	c := &Converter{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// mapper matches structured records such as *structpb.Struct.
type mapper interface {
	AsMap() map[string]any
}

// ToNative converts a host value into the canonical delegate representation
// for t: int64/uint64 for integers, float64, rune, []byte, []any,
// map[string]any, and unwrapped delegates for handles.
func (c *Converter) ToNative(v any, t Type) (any, error) {
	return c.toNative(v, t, nil)
}

func (c *Converter) toNative(v any, t Type, path []string) (any, error) {
	switch t := t.(type) {
	case Void:
		return nil, nil
	case Optional:
		if isNil(v) {
			return nil, nil
		}
		return c.toNative(v, t.Elem, path)
	case JSON:
		return c.normalize(v, path, errors.PhaseToNative)
	case Func:
		if shape.Of(v) != shape.Function {
			return nil, mismatch(errors.PhaseToNative, path, v, "function")
		}
		return v, nil
	case Handle:
		return c.handleToNative(v, t, path)
	}

	if isNil(v) {
		return nil, mismatch(errors.PhaseToNative, path, v, TypeString(t))
	}

	switch t := t.(type) {
	case String:
		s, ok := asString(v)
		if !ok {
			return nil, mismatch(errors.PhaseToNative, path, v, "string")
		}
		return s, nil
	case Bool:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Bool {
			return nil, mismatch(errors.PhaseToNative, path, v, "bool")
		}
		return rv.Bool(), nil
	case Int:
		return checkInt(v, t, path, errors.PhaseToNative)
	case Float:
		return checkFloat(v, t, path, errors.PhaseToNative)
	case Char:
		return toRune(v, path)
	case Enum:
		s, ok := asString(v)
		if !ok {
			return nil, mismatch(errors.PhaseToNative, path, v, TypeString(t))
		}
		for _, c := range t.Cases {
			if c == s {
				return s, nil
			}
		}
		return nil, errors.New(errors.PhaseToNative, errors.KindInvalidArguments).
			Path(path...).
			Value(v).
			Detail("%q is not one of %v", s, t.Cases).
			Build()
	case Bytes:
		return toBytes(v, path)
	case List:
		return c.mapList(v, t.Elem, path, errors.PhaseToNative, c.toNative)
	case Set:
		items, err := c.mapList(v, t.Elem, path, errors.PhaseToNative, c.toNative)
		if err != nil {
			return nil, err
		}
		return dedupe(items, path, errors.PhaseToNative)
	case Map:
		return c.mapRecord(v, t.Value, path, errors.PhaseToNative, c.toNative)
	case Record:
		return c.record(v, t, path, errors.PhaseToNative, c.toNative)
	default:
		return nil, errors.Unsupported(errors.PhaseToNative, "rule "+typeName(t))
	}
}

func (c *Converter) handleToNative(v any, t Handle, path []string) (any, error) {
	if isNil(v) {
		return nil, mismatch(errors.PhaseToNative, path, v, TypeString(t))
	}
	d := v
	if u, ok := v.(webbind.Unwrapper); ok {
		d = u.Delegate()
	}
	if c.binder != nil && t.Class != "" && !c.binder.Accepts(d, t.Class) {
		return nil, mismatch(errors.PhaseToNative, path, d, TypeString(t))
	}
	return d, nil
}

// ToHost converts a delegate value into the host representation for t.
func (c *Converter) ToHost(v any, t Type) (any, error) {
	return c.toHost(v, t, nil)
}

// ToHostFrom converts a value returned by a cacheable accessor. Handle
// results are memoised per (owner, accessor) so repeated calls yield the
// identical proxy.
func (c *Converter) ToHostFrom(owner resource.Handle, accessor string, v any, t Type) (any, error) {
	if _, ok := t.(Handle); !ok || c.cache == nil {
		return c.ToHost(v, t)
	}
	return c.cache.GetOrCreate(owner, accessor, func() (any, error) {
		return c.ToHost(v, t)
	})
}

func (c *Converter) toHost(v any, t Type, path []string) (any, error) {
	switch t := t.(type) {
	case Void:
		return nil, nil
	case Optional:
		if isNil(v) {
			return nil, nil
		}
		return c.toHost(deref(v), t.Elem, path)
	case JSON:
		return c.normalize(v, path, errors.PhaseToHost)
	case Func:
		return v, nil
	case Handle:
		if isNil(v) {
			return nil, nil
		}
		if _, ok := v.(webbind.Unwrapper); ok || c.binder == nil {
			return v, nil
		}
		return c.binder.Wrap(v, t.Class)
	}

	if isNil(v) {
		return nil, mismatch(errors.PhaseToHost, path, v, TypeString(t))
	}
	v = deref(v)

	switch t := t.(type) {
	case String, Enum:
		s, ok := asString(v)
		if !ok {
			return nil, mismatch(errors.PhaseToHost, path, v, TypeString(t))
		}
		return s, nil
	case Bool:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Bool {
			return nil, mismatch(errors.PhaseToHost, path, v, "bool")
		}
		return rv.Bool(), nil
	case Int:
		return checkInt(v, t, path, errors.PhaseToHost)
	case Float:
		return checkFloat(v, t, path, errors.PhaseToHost)
	case Char:
		r, err := toRune(v, path)
		if err != nil {
			return nil, err
		}
		return string(r.(rune)), nil
	case Bytes:
		b, err := toBytes(v, path)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), b.([]byte)...), nil
	case List:
		return c.mapList(v, t.Elem, path, errors.PhaseToHost, c.toHost)
	case Set:
		items, err := c.mapSet(v, t.Elem, path)
		if err != nil {
			return nil, err
		}
		return dedupe(items, path, errors.PhaseToHost)
	case Map:
		return c.mapRecord(v, t.Value, path, errors.PhaseToHost, c.toHost)
	case Record:
		return c.record(v, t, path, errors.PhaseToHost, c.toHost)
	default:
		return nil, errors.Unsupported(errors.PhaseToHost, "rule "+typeName(t))
	}
}

type convertFunc func(v any, t Type, path []string) (any, error)

func (c *Converter) mapList(v any, elem Type, path []string, phase errors.Phase, conv convertFunc) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, mismatch(phase, path, v, "list")
	}
	out := make([]any, rv.Len())
	for i := range out {
		item, err := conv(rv.Index(i).Interface(), elem, appendPath(path, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		out[i] = item
	}
	return out, nil
}

// mapSet accepts Go set idioms (map[K]struct{}, map[K]bool) as well as slices.
func (c *Converter) mapSet(v any, elem Type, path []string) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return c.mapList(v, elem, path, errors.PhaseToHost, c.toHost)
	}
	out := make([]any, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		if iter.Value().Kind() == reflect.Bool && !iter.Value().Bool() {
			continue
		}
		item, err := c.toHost(iter.Key().Interface(), elem, path)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (c *Converter) mapRecord(v any, value Type, path []string, phase errors.Phase, conv convertFunc) (map[string]any, error) {
	src, err := asRecord(v, path, phase)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(src))
	for k, item := range src {
		converted, err := conv(item, value, appendPath(path, k))
		if err != nil {
			return nil, err
		}
		out[k] = converted
	}
	return out, nil
}

func (c *Converter) record(v any, t Record, path []string, phase errors.Phase, conv convertFunc) (map[string]any, error) {
	if len(t.Fields) == 0 {
		return c.mapRecord(v, JSON{}, path, phase, conv)
	}
	src, err := asRecord(v, path, phase)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(t.Fields))
	for _, f := range t.Fields {
		item, present := src[f.Name]
		if !present {
			if _, optional := f.Type.(Optional); optional {
				continue
			}
			return nil, errors.New(phase, errors.KindInvalidArguments).
				Path(appendPath(path, f.Name)...).
				Detail("missing field").
				Build()
		}
		converted, err := conv(item, f.Type, appendPath(path, f.Name))
		if err != nil {
			return nil, err
		}
		out[f.Name] = converted
	}
	return out, nil
}

// normalize rewrites a free-form value into plain maps, slices and scalars.
func (c *Converter) normalize(v any, path []string, phase errors.Phase) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return x, nil
	case []byte:
		return append([]byte(nil), x...), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, mismatch(phase, path, v, "number")
		}
		return f, nil
	case webbind.Unwrapper:
		if phase == errors.PhaseToNative {
			return x.Delegate(), nil
		}
		return x, nil
	case webbind.Recorder, mapper, map[string]any:
		return c.mapRecord(x, JSON{}, path, phase, func(v any, _ Type, p []string) (any, error) {
			return c.normalize(v, p, phase)
		})
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Elem().Kind() == reflect.Struct {
			return c.normalizeStruct(v, path, phase)
		}
		return c.normalize(rv.Elem().Interface(), path, phase)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		return c.mapList(v, JSON{}, path, phase, func(v any, _ Type, p []string) (any, error) {
			return c.normalize(v, p, phase)
		})
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, mismatch(phase, path, v, "record")
		}
		return c.mapRecord(v, JSON{}, path, phase, func(v any, _ Type, p []string) (any, error) {
			return c.normalize(v, p, phase)
		})
	case reflect.Struct:
		return c.normalizeStruct(v, path, phase)
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Func:
		return v, nil
	default:
		return nil, errors.New(phase, errors.KindInvalidArguments).
			Path(path...).
			GoType(typeName(v)).
			Detail("value has no host representation").
			Build()
	}
}

func (c *Converter) normalizeStruct(v any, path []string, phase errors.Phase) (any, error) {
	m, ok := structRecord(v)
	if !ok {
		return nil, errors.New(phase, errors.KindInvalidArguments).
			Path(path...).
			GoType(typeName(v)).
			Detail("struct has no record form").
			Build()
	}
	return m, nil
}

// structRecord returns the JSON record form of a plain struct.
func structRecord(v any) (map[string]any, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}

func asRecord(v any, path []string, phase errors.Phase) (map[string]any, error) {
	switch x := v.(type) {
	case map[string]any:
		return x, nil
	case webbind.Recorder:
		return x.ToRecord(), nil
	case mapper:
		return x.AsMap(), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, nil
	}
	if rv.Kind() == reflect.Struct || (rv.Kind() == reflect.Pointer && rv.Elem().Kind() == reflect.Struct) {
		if m, ok := structRecord(v); ok {
			return m, nil
		}
	}
	return nil, mismatch(phase, path, v, "record")
}

// dedupe drops elements equal by canonical JSON, keeping first occurrences.
func dedupe(items []any, path []string, phase errors.Phase) ([]any, error) {
	seen := make(map[string]struct{}, len(items))
	out := make([]any, 0, len(items))
	for i, item := range items {
		key, err := canonicalKey(item)
		if err != nil {
			return nil, errors.New(phase, errors.KindInvalidArguments).
				Path(appendPath(path, strconv.Itoa(i))...).
				Cause(err).
				Detail("set element has no canonical form").
				Build()
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	if dropped := len(items) - len(out); dropped > 0 {
		Logger().Debug("set duplicates dropped", zap.Int("count", dropped))
	}
	return out, nil
}

// canonicalKey encodes v as JSON; encoding/json sorts map keys, which makes
// equal records encode identically regardless of insertion order.
func canonicalKey(v any) (string, error) {
	if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		v = int64(f)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func checkInt(v any, t Int, path []string, phase errors.Phase) (any, error) {
	bits := t.Bits
	if bits == 0 {
		bits = 64
	}
	rv := reflect.ValueOf(v)
	var (
		i        int64
		u        uint64
		negative bool
		big      bool // exceeds MaxInt64
	)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i = rv.Int()
		negative = i < 0
		u = uint64(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u = rv.Uint()
		big = u > math.MaxInt64
		i = int64(u)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return nil, errors.Overflow(phase, path, v, TypeString(t))
		}
		if f < -(1<<63) || f >= 1<<64 {
			return nil, errors.Overflow(phase, path, v, TypeString(t))
		}
		negative = f < 0
		if negative {
			i = int64(f)
			u = uint64(i)
		} else if f >= 1<<63 {
			u = uint64(f)
			big = true
		} else {
			i = int64(f)
			u = uint64(i)
		}
	default:
		if n, ok := v.(json.Number); ok {
			if parsed, err := n.Int64(); err == nil {
				return checkInt(parsed, t, path, phase)
			}
			if parsed, err := n.Float64(); err == nil {
				return checkInt(parsed, t, path, phase)
			}
		}
		return nil, mismatch(phase, path, v, TypeString(t))
	}

	if t.Signed {
		if big {
			return nil, errors.Overflow(phase, path, v, TypeString(t))
		}
		if bits < 64 {
			limit := int64(1) << (bits - 1)
			if i < -limit || i >= limit {
				return nil, errors.Overflow(phase, path, v, TypeString(t))
			}
		}
		return i, nil
	}
	if negative {
		return nil, errors.Overflow(phase, path, v, TypeString(t))
	}
	if bits < 64 && u >= uint64(1)<<bits {
		return nil, errors.Overflow(phase, path, v, TypeString(t))
	}
	return u, nil
}

func checkFloat(v any, t Float, path []string, phase errors.Phase) (any, error) {
	rv := reflect.ValueOf(v)
	var f float64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f = float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f = float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		f = rv.Float()
	default:
		if n, ok := v.(json.Number); ok {
			parsed, err := n.Float64()
			if err == nil {
				return checkFloat(parsed, t, path, phase)
			}
		}
		return nil, mismatch(phase, path, v, TypeString(t))
	}
	if t.Bits == 32 && !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
		return nil, errors.Overflow(phase, path, v, TypeString(t))
	}
	return f, nil
}

func toRune(v any, path []string) (any, error) {
	if s, ok := asString(v); ok {
		if utf8.RuneCountInString(s) != 1 {
			return nil, mismatch(errors.PhaseToNative, path, v, "char")
		}
		r, _ := utf8.DecodeRuneInString(s)
		return r, nil
	}
	n, err := checkInt(v, Int{Bits: 32, Signed: true}, path, errors.PhaseToNative)
	if err != nil {
		return nil, err
	}
	r := rune(n.(int64))
	if !utf8.ValidRune(r) {
		return nil, errors.Overflow(errors.PhaseToNative, path, v, "char")
	}
	return r, nil
}

func toBytes(v any, path []string) (any, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, mismatch(errors.PhaseToNative, path, v, "bytes")
	}
	out := make([]byte, rv.Len())
	for i := range out {
		b, err := checkInt(rv.Index(i).Interface(), Int{Bits: 8}, appendPath(path, strconv.Itoa(i)), errors.PhaseToNative)
		if err != nil {
			return nil, err
		}
		out[i] = byte(b.(uint64))
	}
	return out, nil
}

func asString(v any) (string, bool) {
	if s, ok := v.(string); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		if _, ok := rv.Interface().(webbind.Unwrapper); ok {
			break
		}
		if _, ok := rv.Interface().(webbind.Recorder); ok {
			break
		}
		if _, ok := rv.Interface().(mapper); ok {
			break
		}
		if rv.Elem().Kind() == reflect.Struct {
			break
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func mismatch(phase errors.Phase, path []string, v any, want string) *errors.Error {
	return errors.New(phase, errors.KindInvalidArguments).
		Path(path...).
		GoType(typeName(v)).
		HostType(want).
		Value(v).
		Detail("expected %s, got %s", want, shape.Of(v)).
		Build()
}

func appendPath(path []string, elem string) []string {
	return append(append(make([]string, 0, len(path)+1), path...), elem)
}
