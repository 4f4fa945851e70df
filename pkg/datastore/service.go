package datastore

import (
	"encoding/json"
	"errors"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/diag"
	"github.com/cuemby/burrow/pkg/framework"
	"github.com/cuemby/burrow/pkg/log"
)

// Command is the JSON payload of a datastore request.
type Command struct {
	Op  string `json:"op"`
	Tag string `json:"tag,omitempty"`
}

// Reply is the JSON body of a datastore response.
type Reply struct {
	Error         *diag.Record `json:"error,omitempty"`
	Files         []string     `json:"files,omitempty"`
	NumberOfFiles uint64       `json:"number_of_files,omitempty"`
	NumberOfBytes uint64       `json:"number_of_bytes,omitempty"`
}

// backupEstimate returns placeholder figures until the real datastore is
// wired in.
const (
	estimateFiles uint64 = 123
	estimateBytes uint64 = 456
)

// Service answers datastore administration requests. It is a mock: the ops
// honour the documented contract (backup_begin lists the files to copy,
// backup_estimate reports size figures, restore acknowledges) but no data
// is moved. The tag operations are accepted and answered empty. TODO wire
// the real datastore implementation.
type Service struct {
	resource *Resource
}

// NewService creates the datastore service.
func NewService() *Service {
	return &Service{}
}

// ID implements framework.Service.
func (s *Service) ID() uint32 {
	return framework.ServiceIDDatastore
}

// Label implements framework.Component.
func (s *Service) Label() string {
	return "datastore_service"
}

// Setup resolves the datastore resource.
func (s *Service) Setup(env *framework.Environment) error {
	res, ok := env.Resources().Find(framework.ResourceIDDatastore).(*Resource)
	if !ok || res == nil {
		return errors.New("datastore resource is not registered")
	}
	s.resource = res
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
	var cmd Command
	if err := json.Unmarshal(req.Payload(), &cmd); err != nil {
		l := log.WithComponent("datastore_service")
		l.Info().Err(err).Msg("request parse error")
		res.SetSessionID(req.SessionID())
		res.Error(diag.NewRecord(diag.CodeUnknown, "request parse error"))
		return nil
	}

	var reply Reply
	switch cmd.Op {
	case "backup_begin":
		reply.Files = s.resource.ListBackupFiles()
		res.SetSessionID(req.SessionID())
	case "backup_estimate":
		reply.NumberOfFiles = estimateFiles
		reply.NumberOfBytes = estimateBytes
		res.SetSessionID(api.UnknownSessionID)
	case "restore_backup", "restore_tag":
		res.SetSessionID(api.UnknownSessionID)
	case "backup_end", "backup_continue", "tag_list", "tag_add", "tag_get", "tag_remove":
		res.SetSessionID(req.SessionID())
	default:
		res.SetSessionID(req.SessionID())
		reply.Error = &diag.Record{Code: diag.CodeUnknown, Message: "unknown datastore op"}
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
