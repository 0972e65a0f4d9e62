package query

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the canonical Go type a column is read as.
type Kind int

const (
	KindID       Kind = iota + 1 // uuid.UUID
	KindBool                     // bool
	KindInt32                    // int32
	KindInt64                    // int64
	KindFloat                    // float64
	KindString                   // string
	KindTime                     // time.Time, always UTC
	KindDuration                 // time.Duration
)

func (k Kind) String() string {
	switch k {
	case KindID:
		return "identifier"
	case KindBool:
		return "boolean"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTime:
		return "timestamp"
	case KindDuration:
		return "duration"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Backend names a supported database engine.
type Backend string

const (
	SQLite   Backend = "sqlite"
	Postgres Backend = "postgres"
	MySQL    Backend = "mysql"
)

// ParseBackend accepts the backend name plus the common driver aliases.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	}
	return "", fmt.Errorf("query: unsupported backend %q", name)
}

// codec is one backend's conversion table. Kinds every backend returns the
// same way (integers, floats, strings, identifiers, timestamps) are decoded by
// shared helpers; only the entries that genuinely differ live here.
type codec struct {
	decodeBool     func(raw any) (bool, error)
	decodeDuration func(raw any) (time.Duration, error)

	encodeID       func(uuid.UUID) any
	encodeBool     func(bool) any
	encodeTime     func(time.Time) any
	encodeDuration func(time.Duration) any
}

// Normalizer converts backend-native values to canonical Go values and back.
//
// One Normalizer is built per process for the configured backend and shared by
// every component that reads or writes rows. It holds no mutable state, so it
// is safe for concurrent use.
//
// Conversion table:
//
//	kind      sqlite                  postgres                 mysql
//	ID        TEXT                    uuid (text via pgx)      CHAR(36)
//	Bool      INTEGER 0/1             boolean                  TINYINT 0/1
//	Time      TEXT, fixed-width UTC   timestamptz              DATETIME(6), UTC
//	Duration  TEXT [-][d.]hh:mm:ss.f  interval                 BIGINT microseconds
//
// Durations are written at DurationPrecision on every backend.
type Normalizer struct {
	backend Backend
	codec   codec
}

// DurationPrecision is the finest duration every backend can hold. Encode
// truncates durations to it so all backends store the same value.
const DurationPrecision = time.Microsecond

// CanonicalDuration is d as it reads back after a write.
func CanonicalDuration(d time.Duration) time.Duration {
	return d.Truncate(DurationPrecision)
}

// sqliteTimeLayout is fixed width so TEXT comparisons order chronologically.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000-07:00"

// NewNormalizer returns the normalizer for backend b.
func NewNormalizer(b Backend) (*Normalizer, error) {
	textID := func(id uuid.UUID) any { return id.String() }
	intBool := func(v bool) any {
		if v {
			return int64(1)
		}
		return int64(0)
	}

	var c codec
	switch b {
	case SQLite:
		c = codec{
			decodeBool:     decodeIntBool,
			decodeDuration: decodeTimeSpan,
			encodeID:       textID,
			encodeBool:     intBool,
			encodeTime:     func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
			encodeDuration: func(d time.Duration) any { return FormatTimeSpan(d) },
		}
	case Postgres:
		c = codec{
			decodeBool:     decodeNativeBool,
			decodeDuration: decodeInterval,
			encodeID:       textID,
			encodeBool:     func(v bool) any { return v },
			encodeTime:     func(t time.Time) any { return t.UTC() },
			encodeDuration: func(d time.Duration) any { return FormatInterval(d) },
		}
	case MySQL:
		c = codec{
			decodeBool:     decodeIntBool,
			decodeDuration: decodeMicroseconds,
			encodeID:       textID,
			encodeBool:     intBool,
			encodeTime:     func(t time.Time) any { return t.UTC() },
			encodeDuration: func(d time.Duration) any { return d.Microseconds() },
		}
	default:
		return nil, fmt.Errorf("query: unsupported backend %q", b)
	}
	return &Normalizer{backend: b, codec: c}, nil
}

// Backend reports which conversion table n applies.
func (n *Normalizer) Backend() Backend { return n.backend }

// Normalize converts raw to the canonical value for kind. A SQL NULL (nil)
// yields (nil, nil): absent, never a zero value.
func (n *Normalizer) Normalize(raw any, kind Kind) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch kind {
	case KindID:
		return decodeID(raw)
	case KindBool:
		return n.codec.decodeBool(raw)
	case KindInt32:
		v, err := decodeInt(raw)
		if err != nil {
			return nil, err
		}
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, fmt.Errorf("%d overflows int32", v)
		}
		return int32(v), nil
	case KindInt64:
		return decodeInt(raw)
	case KindFloat:
		return decodeFloat(raw)
	case KindString:
		return decodeString(raw)
	case KindTime:
		return decodeTime(raw)
	case KindDuration:
		return n.codec.decodeDuration(raw)
	}
	return nil, fmt.Errorf("unsupported kind %s", kind)
}

// Encode converts a canonical Go value to the form written to the backend.
// Pointers are dereferenced (nil becomes NULL) and named string types are
// reduced to string so every driver accepts them.
func (n *Normalizer) Encode(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case uuid.UUID:
		return n.codec.encodeID(x)
	case bool:
		return n.codec.encodeBool(x)
	case time.Time:
		return n.codec.encodeTime(x)
	case time.Duration:
		return n.codec.encodeDuration(CanonicalDuration(x))
	case string, []byte, int, int32, int64, float64:
		return x
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return n.Encode(rv.Elem().Interface())
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Bool:
		return n.codec.encodeBool(rv.Bool())
	}
	return v
}

// EncodeAll encodes each argument in place order.
func (n *Normalizer) EncodeAll(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = n.Encode(a)
	}
	return out
}

func decodeID(raw any) (uuid.UUID, error) {
	switch v := raw.(type) {
	case uuid.UUID:
		return v, nil
	case [16]byte:
		return uuid.UUID(v), nil
	case string:
		return uuid.Parse(v)
	case []byte:
		if len(v) == 16 {
			return uuid.FromBytes(v)
		}
		return uuid.ParseBytes(v)
	}
	return uuid.Nil, fmt.Errorf("cannot read %T as identifier", raw)
}

// decodeIntBool reads booleans stored as integers: zero is false, anything
// else is true.
func decodeIntBool(raw any) (bool, error) {
	if b, ok := raw.(bool); ok {
		return b, nil
	}
	v, err := decodeInt(raw)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func decodeNativeBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		return parseBoolText(v)
	case []byte:
		return parseBoolText(string(v))
	}
	return decodeIntBool(raw)
}

func parseBoolText(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "true", "1", "y", "yes", "on":
		return true, nil
	case "f", "false", "0", "n", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("cannot read %q as boolean", s)
}

func decodeInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int64(v), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
	}
	return 0, fmt.Errorf("cannot read %T as integer", raw)
}

func decodeFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	}
	i, err := decodeInt(raw)
	if err != nil {
		return 0, fmt.Errorf("cannot read %T as float", raw)
	}
	return float64(i), nil
}

func decodeString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", fmt.Errorf("cannot read %T as string", raw)
}

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func decodeTime(raw any) (time.Time, error) {
	var s string
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return time.Time{}, fmt.Errorf("cannot read %T as timestamp", raw)
	}

	s = strings.TrimSpace(s)
	// time.Time.String appends a monotonic clock reading; drop it.
	if i := strings.Index(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as timestamp", s)
}

// maxHours bounds hour fields so the result fits in a time.Duration.
const maxHours = int64(math.MaxInt64 / int64(time.Hour))

var errEmptyDuration = errors.New("empty duration")

func durationText(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), true
	case []byte:
		return strings.TrimSpace(string(v)), true
	}
	return "", false
}

func decodeTimeSpan(raw any) (time.Duration, error) {
	if d, ok := raw.(time.Duration); ok {
		return d, nil
	}
	s, ok := durationText(raw)
	if !ok {
		return 0, fmt.Errorf("cannot read %T as duration", raw)
	}
	return ParseTimeSpan(s)
}

func decodeInterval(raw any) (time.Duration, error) {
	if d, ok := raw.(time.Duration); ok {
		return d, nil
	}
	s, ok := durationText(raw)
	if !ok {
		return 0, fmt.Errorf("cannot read %T as interval", raw)
	}
	return ParseInterval(s)
}

func decodeMicroseconds(raw any) (time.Duration, error) {
	if d, ok := raw.(time.Duration); ok {
		return d, nil
	}
	us, err := decodeInt(raw)
	if err != nil {
		return 0, err
	}
	if us > math.MaxInt64/int64(time.Microsecond) || us < math.MinInt64/int64(time.Microsecond) {
		return 0, fmt.Errorf("%d microseconds overflows duration", us)
	}
	return time.Duration(us) * time.Microsecond, nil
}

// FormatTimeSpan renders d as [-][d.]hh:mm:ss[.fffffff] with 100ns ticks,
// the text form durations take in SQLite.
func FormatTimeSpan(d time.Duration) string {
	neg := d < 0
	if neg {
		d = -d
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ticks := d / 100

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	if days > 0 {
		fmt.Fprintf(&b, "%d.", days)
	}
	fmt.Fprintf(&b, "%02d:%02d:%02d", h, m, s)
	if ticks > 0 {
		fmt.Fprintf(&b, ".%07d", ticks)
	}
	return b.String()
}

// ParseTimeSpan is the inverse of FormatTimeSpan.
func ParseTimeSpan(s string) (time.Duration, error) {
	orig := s
	if s == "" {
		return 0, errEmptyDuration
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	colon := strings.IndexByte(s, ':')
	if colon < 0 {
		return 0, fmt.Errorf("duration %q: missing hh:mm:ss", orig)
	}
	var days int64
	if dot := strings.IndexByte(s[:colon], '.'); dot >= 0 {
		v, err := strconv.ParseInt(s[:dot], 10, 64)
		if err != nil || v < 0 || v > maxHours/24 {
			return 0, fmt.Errorf("duration %q: bad day count", orig)
		}
		days = v
		s = s[dot+1:]
	}
	clock, err := parseClock(s, 7)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", orig, err)
	}
	total := time.Duration(days)*24*time.Hour + clock
	if total < 0 {
		return 0, fmt.Errorf("duration %q: overflows", orig)
	}
	if neg {
		total = -total
	}
	return total, nil
}

// FormatInterval renders d in PostgreSQL's default interval output style
// with unbounded hours: [-]hh:mm:ss[.ffffff].
func FormatInterval(d time.Duration) string {
	neg := d < 0
	if neg {
		d = -d
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	us := (d - s*time.Second) / time.Microsecond

	out := fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	if us > 0 {
		out += fmt.Sprintf(".%06d", us)
	}
	if neg {
		out = "-" + out
	}
	return out
}

// ParseInterval reads PostgreSQL interval output such as "01:30:00",
// "3 days 04:00:00" or "-1 days +02:00:00". Month and year components are
// rejected because they have no fixed length.
func ParseInterval(s string) (time.Duration, error) {
	if s == "" {
		return 0, errEmptyDuration
	}
	fields := strings.Fields(s)
	var total time.Duration
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if strings.Contains(f, ":") {
			neg := strings.HasPrefix(f, "-")
			clock, err := parseClock(strings.TrimLeft(f, "+-"), 6)
			if err != nil {
				return 0, fmt.Errorf("interval %q: %w", s, err)
			}
			if neg {
				clock = -clock
			}
			total += clock
			continue
		}
		if i+1 >= len(fields) {
			return 0, fmt.Errorf("interval %q: dangling %q", s, f)
		}
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("interval %q: %w", s, err)
		}
		unit := strings.TrimSuffix(fields[i+1], "s")
		i++
		switch unit {
		case "day":
			if n > maxHours/24 || n < -maxHours/24 {
				return 0, fmt.Errorf("interval %q: overflows", s)
			}
			total += time.Duration(n) * 24 * time.Hour
		case "year", "mon":
			if n != 0 {
				return 0, fmt.Errorf("interval %q: %s component has no fixed length", s, unit)
			}
		default:
			return 0, fmt.Errorf("interval %q: unknown unit %q", s, fields[i])
		}
	}
	return total, nil
}

// parseClock reads hh:mm:ss[.fraction] with unbounded hours and at most
// maxFrac fractional digits.
func parseClock(s string, maxFrac int) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("clock %q: want hh:mm:ss", s)
	}
	h, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || h < 0 || h > maxHours {
		return 0, fmt.Errorf("clock %q: bad hours", s)
	}
	m, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q: bad minutes", s)
	}

	secText, fracText, hasFrac := strings.Cut(parts[2], ".")
	sec, err := strconv.ParseInt(secText, 10, 64)
	if err != nil || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("clock %q: bad seconds", s)
	}
	var nanos int64
	if hasFrac {
		if fracText == "" || len(fracText) > maxFrac {
			return 0, fmt.Errorf("clock %q: bad fraction", s)
		}
		for _, r := range fracText {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("clock %q: bad fraction", s)
			}
		}
		padded := fracText + strings.Repeat("0", 9-len(fracText))
		nanos, _ = strconv.ParseInt(padded, 10, 64)
	}

	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second + time.Duration(nanos)
	if d < 0 {
		return 0, fmt.Errorf("clock %q: overflows", s)
	}
	return d, nil
}
