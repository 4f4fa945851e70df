package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/diag"
	"github.com/cuemby/burrow/pkg/framework"
	"github.com/cuemby/burrow/pkg/log"
)

// Command is the JSON payload of a session administration request.
type Command struct {
	Op      string `json:"op"`
	Session string `json:"session,omitempty"`
	Type    string `json:"type,omitempty"`
	Name    string `json:"name,omitempty"`
	Value   string `json:"value,omitempty"`
}

// Entry is one session in a SessionList reply.
type Entry struct {
	SessionID      string `json:"session_id"`
	Label          string `json:"label,omitempty"`
	Application    string `json:"application,omitempty"`
	User           string `json:"user,omitempty"`
	StartAt        string `json:"start_at"`
	ConnectionType string `json:"connection_type"`
	ConnectionInfo string `json:"connection_info,omitempty"`
}

// Reply is the JSON body of a session administration response.
type Reply struct {
	Error    *diag.Record `json:"error,omitempty"`
	Sessions []Entry      `json:"sessions,omitempty"`
	Value    string       `json:"value,omitempty"`
}

// Service answers session administration requests (list, get, shutdown,
// variable access) against the registry held by the session bridge.
type Service struct {
	registry *Registry
}

// NewService creates the session administration service.
func NewService() *Service {
	return &Service{}
}

// ID implements framework.Service.
func (s *Service) ID() uint32 {
	return framework.ServiceIDSession
}

// Label implements framework.Component.
func (s *Service) Label() string {
	return "session_service"
}

// Setup resolves the session resource bridge.
func (s *Service) Setup(env *framework.Environment) error {
	res := env.Resources().Find(framework.ResourceIDSession)
	bridge, ok := res.(*Bridge)
	if !ok || bridge == nil {
		return errors.New("session resource is not registered")
	}
	s.registry = bridge.Registry()
	return nil
}

// Start implements framework.Component.
func (s *Service) Start(*framework.Environment) error {
	return nil
}

// Shutdown implements framework.Component.
func (s *Service) Shutdown(*framework.Environment) error {
	return nil
}

// Handle decodes one command and answers it.
func (s *Service) Handle(req api.Request, res api.Response) error {
	res.SetSessionID(req.SessionID())

	var cmd Command
	if err := json.Unmarshal(req.Payload(), &cmd); err != nil {
		l := log.WithComponent("session_service")
		l.Info().Err(err).Msg("request parse error")
		res.Error(diag.NewRecord(diag.CodeUnknown, "request parse error"))
		return nil
	}

	var reply Reply
	switch cmd.Op {
	case "list":
		reply = s.list()
	case "get":
		reply = s.get(cmd.Session)
	case "shutdown":
		reply = s.shutdown(cmd.Session, cmd.Type)
	case "get_variable":
		reply = s.getVariable(cmd.Session, cmd.Name)
	case "set_variable":
		reply = s.setVariable(cmd.Session, cmd.Name, cmd.Value)
	default:
		reply = Reply{Error: &diag.Record{Code: diag.CodeUnknown, Message: fmt.Sprintf("unknown op %q", cmd.Op)}}
	}

	body, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	if reply.Error != nil {
		res.SetCode(api.ApplicationError)
	} else {
		res.SetCode(api.Success)
	}
	return res.Body(body)
}

func (s *Service) list() Reply {
	var out []Entry
	for _, ctx := range s.registry.List() {
		out = append(out, entryOf(ctx))
	}
	return Reply{Sessions: out}
}

func (s *Service) get(spec string) Reply {
	ctx, err := s.registry.Find(spec)
	if err != nil {
		return errorReply(err)
	}
	return Reply{Sessions: []Entry{entryOf(ctx)}}
}

func (s *Service) shutdown(spec, kind string) Reply {
	ctx, err := s.registry.Find(spec)
	if err != nil {
		return errorReply(err)
	}
	var t ShutdownRequestType
	switch kind {
	case "graceful", "":
		t = ShutdownGraceful
	case "forceful":
		t = ShutdownForceful
	default:
		return Reply{Error: &diag.Record{Code: diag.CodeUnknown, Message: fmt.Sprintf("unknown shutdown type %q", kind)}}
	}
	if !ctx.RequestShutdown(t) {
		return Reply{Error: &diag.Record{Code: diag.CodeSessionAlreadyTerminated, Message: "shutdown is already requested"}}
	}
	return Reply{}
}

func (s *Service) getVariable(spec, name string) Reply {
	ctx, err := s.registry.Find(spec)
	if err != nil {
		return errorReply(err)
	}
	vars := ctx.Variables()
	if !vars.Declared(name) {
		return Reply{Error: &diag.Record{Code: diag.CodeSessionVariableNotDeclared, Message: fmt.Sprintf("session variable %q is not declared", name)}}
	}
	v, _ := vars.Get(name)
	if v == nil {
		return Reply{}
	}
	return Reply{Value: fmt.Sprintf("%v", v)}
}

func (s *Service) setVariable(spec, name, value string) Reply {
	ctx, err := s.registry.Find(spec)
	if err != nil {
		return errorReply(err)
	}
	vars := ctx.Variables()
	t, ok := vars.Type(name)
	if !ok {
		return Reply{Error: &diag.Record{Code: diag.CodeSessionVariableNotDeclared, Message: fmt.Sprintf("session variable %q is not declared", name)}}
	}
	parsed, err := parseValue(t, value)
	if err != nil {
		return Reply{Error: &diag.Record{Code: diag.CodeSessionVariableInvalidValue, Message: err.Error()}}
	}
	if err := vars.Set(name, parsed); err != nil {
		return Reply{Error: &diag.Record{Code: diag.CodeSessionVariableInvalidValue, Message: err.Error()}}
	}
	return Reply{}
}

func parseValue(t VariableType, value string) (any, error) {
	switch t {
	case SignedInteger:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a signed integer", value)
		}
		return v, nil
	case UnsignedInteger:
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an unsigned integer", value)
		}
		return v, nil
	case Float:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a float", value)
		}
		return v, nil
	case Boolean:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", value)
		}
		return v, nil
	case String:
		return value, nil
	}
	return nil, fmt.Errorf("unsupported variable type %v", t)
}

func errorReply(err error) Reply {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return Reply{Error: &diag.Record{Code: diag.CodeSessionNotFound, Message: err.Error()}}
	case errors.Is(err, ErrSessionAmbiguous):
		return Reply{Error: &diag.Record{Code: diag.CodeSessionAmbiguous, Message: err.Error()}}
	}
	return Reply{Error: &diag.Record{Code: diag.CodeUnknown, Message: err.Error()}}
}

func entryOf(ctx *Context) Entry {
	info := ctx.Info()
	id := ":" + strconv.FormatUint(info.ID, 10)
	if info.SymbolicID != "" {
		id = info.SymbolicID
	}
	return Entry{
		SessionID:      id,
		Label:          info.Label,
		Application:    info.ApplicationName,
		User:           info.UserName,
		StartAt:        info.StartedAt.Format(time.RFC3339),
		ConnectionType: info.ConnectionKind.String(),
		ConnectionInfo: info.ConnectionInfo,
	}
}
