package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/bnema/radialmx/internal/battery"
	"github.com/bnema/radialmx/internal/display"
	"github.com/bnema/radialmx/internal/session"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Methods understood by the control socket.
const (
	MethodStatus   = "status"
	MethodActive   = "active"
	MethodHover    = "hover"
	MethodAck      = "ack"
	MethodReload   = "reload-profiles"
	MethodMonitors = "monitors"
)

// MaxFrameSize bounds a single frame on the wire.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned for frames above MaxFrameSize.
var ErrFrameTooLarge = errors.New("ipc frame too large")

// ErrBadRequest means the daemon could not interpret a request.
var ErrBadRequest = errors.New("bad request")

// Request is one call on the control socket.
type Request struct {
	ID     string
	Method string
	Params map[string]any
}

// Response answers the request with the same ID.
type Response struct {
	ID     string
	OK     bool
	Code   string
	Error  string
	Result map[string]any
}

// NewRequest stamps a request with a fresh id.
func NewRequest(method string, params map[string]any) Request {
	if params == nil {
		params = map[string]any{}
	}
	return Request{ID: uuid.NewString(), Method: method, Params: params}
}

func (r Request) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":     r.ID,
		"method": r.Method,
		"params": r.Params,
	})
}

func requestFromStruct(s *structpb.Struct) (Request, error) {
	m := s.AsMap()
	r := Request{
		ID:     stringField(m, "id"),
		Method: stringField(m, "method"),
	}
	if r.ID == "" || r.Method == "" {
		return r, fmt.Errorf("%w: missing id or method", ErrBadRequest)
	}
	if p, ok := m["params"].(map[string]any); ok {
		r.Params = p
	} else {
		r.Params = map[string]any{}
	}
	return r, nil
}

func (r Response) toStruct() (*structpb.Struct, error) {
	m := map[string]any{
		"id": r.ID,
		"ok": r.OK,
	}
	if r.Code != "" {
		m["code"] = r.Code
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.Result != nil {
		m["result"] = r.Result
	}
	return structpb.NewStruct(m)
}

func responseFromStruct(s *structpb.Struct) Response {
	m := s.AsMap()
	r := Response{
		ID:    stringField(m, "id"),
		Code:  stringField(m, "code"),
		Error: stringField(m, "error"),
	}
	r.OK, _ = m["ok"].(bool)
	if res, ok := m["result"].(map[string]any); ok {
		r.Result = res
	}
	return r
}

// Err converts a failed response back into an error.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	if sentinel, ok := errorCodes[r.Code]; ok {
		return fmt.Errorf("%w (%s)", sentinel, r.Error)
	}
	return fmt.Errorf("daemon error: %s", r.Error)
}

var errorCodes = map[string]error{
	"no_session":      session.ErrNoSession,
	"stale_session":   session.ErrStaleSession,
	"not_open":        session.ErrNotOpen,
	"unknown_session": session.ErrUnknownSession,
	"invalid_hover":   session.ErrInvalidHover,
	"stopped":         session.ErrStopped,
	"bad_request":     ErrBadRequest,
}

func errorResponse(id string, err error) Response {
	code := "internal"
	for c, sentinel := range errorCodes {
		if errors.Is(err, sentinel) {
			code = c
			break
		}
	}
	return Response{ID: id, Code: code, Error: err.Error()}
}

// readFrame reads one length-prefixed protobuf Struct.
func readFrame(r io.Reader) (*structpb.Struct, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read message length: %w", err)
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read message data: %w", err)
	}

	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}

// writeFrame writes one length-prefixed protobuf Struct.
func writeFrame(w io.Writer, msg *structpb.Struct) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// SessionInfo is the wire view of an active session.
type SessionInfo struct {
	ID          uint64
	State       string
	Profile     string
	WindowClass string
	X, Y        float64
	Strategy    string
	Highlighted int
}

// LastOutcome is the wire view of the most recent finished session.
type LastOutcome struct {
	ID           uint64
	Outcome      string
	Acknowledged bool
}

// BatteryInfo is the wire view of the last battery reading.
type BatteryInfo struct {
	Available bool
	Percent   uint8
	Charging  bool
	Error     string
}

// StatusReply answers MethodStatus. Battery is nil when the daemon does not
// poll the battery.
type StatusReply struct {
	Device   string
	Sessions uint64
	Active   *SessionInfo
	Last     *LastOutcome
	Battery  *BatteryInfo
}

func summaryToMap(s *session.Summary) map[string]any {
	return map[string]any{
		"session_id":   s.ID,
		"state":        s.State.String(),
		"profile":      s.Profile,
		"window_class": s.WindowClass,
		"anchor_x":     s.Anchor.X,
		"anchor_y":     s.Anchor.Y,
		"strategy":     s.Anchor.Strategy,
		"highlighted":  s.Highlighted,
	}
}

func sessionFromMap(m map[string]any) *SessionInfo {
	return &SessionInfo{
		ID:          uintField(m, "session_id"),
		State:       stringField(m, "state"),
		Profile:     stringField(m, "profile"),
		WindowClass: stringField(m, "window_class"),
		X:           floatField(m, "anchor_x"),
		Y:           floatField(m, "anchor_y"),
		Strategy:    stringField(m, "strategy"),
		Highlighted: intField(m, "highlighted", session.NoSlice),
	}
}

func statusToMap(st session.Status, bat *battery.Status) map[string]any {
	m := map[string]any{
		"device":   st.Device,
		"sessions": st.Sessions,
	}
	if bat != nil {
		m["battery"] = map[string]any{
			"available": bat.Available,
			"percent":   int(bat.Percent),
			"charging":  bat.Charging,
			"error":     bat.Error,
		}
	}
	if st.Active != nil {
		m["active"] = summaryToMap(st.Active)
	}
	if st.Last != nil {
		m["last"] = map[string]any{
			"session_id":   st.Last.ID,
			"outcome":      st.Last.Outcome.String(),
			"acknowledged": st.Last.Acknowledged,
		}
	}
	return m
}

func statusFromMap(m map[string]any) *StatusReply {
	st := &StatusReply{
		Device:   stringField(m, "device"),
		Sessions: uintField(m, "sessions"),
	}
	if a, ok := m["active"].(map[string]any); ok {
		st.Active = sessionFromMap(a)
	}
	if b, ok := m["battery"].(map[string]any); ok {
		st.Battery = &BatteryInfo{
			Available: boolField(b, "available"),
			Percent:   uint8(uintField(b, "percent")),
			Charging:  boolField(b, "charging"),
			Error:     stringField(b, "error"),
		}
	}
	if l, ok := m["last"].(map[string]any); ok {
		st.Last = &LastOutcome{
			ID:           uintField(l, "session_id"),
			Outcome:      stringField(l, "outcome"),
			Acknowledged: boolField(l, "acknowledged"),
		}
	}
	return st
}

func monitorsToMap(monitors []display.Monitor) map[string]any {
	list := make([]any, 0, len(monitors))
	for _, mon := range monitors {
		list = append(list, map[string]any{
			"id":      mon.ID,
			"name":    mon.Name,
			"x":       mon.X,
			"y":       mon.Y,
			"width":   mon.Width,
			"height":  mon.Height,
			"primary": mon.Primary,
			"scale":   mon.Scale,
		})
	}
	return map[string]any{"monitors": list}
}

func monitorsFromMap(m map[string]any) []display.Monitor {
	list, _ := m["monitors"].([]any)
	monitors := make([]display.Monitor, 0, len(list))
	for _, item := range list {
		mm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		monitors = append(monitors, display.Monitor{
			ID:      stringField(mm, "id"),
			Name:    stringField(mm, "name"),
			X:       int32(intField(mm, "x", 0)),
			Y:       int32(intField(mm, "y", 0)),
			Width:   int32(intField(mm, "width", 0)),
			Height:  int32(intField(mm, "height", 0)),
			Primary: boolField(mm, "primary"),
			Scale:   floatField(mm, "scale"),
		})
	}
	return monitors
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func floatField(m map[string]any, key string) float64 {
	f, ok := m[key].(float64)
	if !ok {
		return math.NaN()
	}
	return f
}

func intField(m map[string]any, key string, def int) int {
	f := floatField(m, key)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return int(f)
}

func uintField(m map[string]any, key string) uint64 {
	f := floatField(m, key)
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	return uint64(f)
}
