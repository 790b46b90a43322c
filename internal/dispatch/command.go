// Package dispatch routes commands originating from sandboxed agent
// processes to permission-checked host-side handlers. It is the only door
// through which agent code reaches privileged actions.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hivebot/hivebot/internal/tenant"
)

// Kind identifies a command type. The set is closed: decoding an unknown
// kind fails and dispatching one is a logged no-op.
type Kind string

const (
	KindScheduleCreate  Kind = "schedule_create"
	KindSchedulePause   Kind = "schedule_pause"
	KindScheduleResume  Kind = "schedule_resume"
	KindScheduleCancel  Kind = "schedule_cancel"
	KindScheduleList    Kind = "schedule_list"
	KindSendMessage     Kind = "send_message"
	KindSendMedia       Kind = "send_media"
	KindGenerateImage   Kind = "generate_image"
	KindCacheInvalidate Kind = "cache_invalidate"
	KindSetPreference   Kind = "set_preference"
	KindRegisterTenant  Kind = "register_tenant"
)

// Permission is the privilege a handler requires from the command source.
type Permission int

const (
	// PermAny allows every tenant.
	PermAny Permission = iota
	// PermOwnGroup allows the main tenant and the command's target tenant.
	// The dispatcher cannot see the target of a heterogeneous command, so
	// the handler performs the comparison itself.
	PermOwnGroup
	// PermMain allows only the main tenant.
	PermMain
)

func (p Permission) String() string {
	switch p {
	case PermMain:
		return "main"
	case PermOwnGroup:
		return "own_group"
	default:
		return "any"
	}
}

// Command is one decoded agent request.
type Command interface {
	Kind() Kind
}

// ScheduleCreate registers a new scheduled task. An empty TenantFolder
// targets the source tenant.
type ScheduleCreate struct {
	TenantFolder  string `json:"tenant_folder,omitempty"`
	ChatID        string `json:"chat_id"`
	Prompt        string `json:"prompt"`
	ScheduleType  string `json:"schedule_type"`
	ScheduleValue string `json:"schedule_value"`
	ContextMode   string `json:"context_mode,omitempty"`
}

func (ScheduleCreate) Kind() Kind { return KindScheduleCreate }

// SchedulePause pauses an active task.
type SchedulePause struct {
	TaskID string `json:"task_id"`
}

func (SchedulePause) Kind() Kind { return KindSchedulePause }

// ScheduleResume resumes a paused task.
type ScheduleResume struct {
	TaskID string `json:"task_id"`
}

func (ScheduleResume) Kind() Kind { return KindScheduleResume }

// ScheduleCancel deletes a task.
type ScheduleCancel struct {
	TaskID string `json:"task_id"`
}

func (ScheduleCancel) Kind() Kind { return KindScheduleCancel }

// ScheduleList reports the requester's tasks back to a chat.
type ScheduleList struct {
	ChatID string `json:"chat_id"`
}

func (ScheduleList) Kind() Kind { return KindScheduleList }

// SendMessage delivers text to a chat. Edit marks an update to an in-flight
// response, which is gated by the rate limiter.
type SendMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
	Edit   bool   `json:"edit,omitempty"`
}

func (SendMessage) Kind() Kind { return KindSendMessage }

// SendMedia delivers a local file to a chat.
type SendMedia struct {
	ChatID   string `json:"chat_id"`
	FilePath string `json:"file_path"`
	Caption  string `json:"caption,omitempty"`
}

func (SendMedia) Kind() Kind { return KindSendMedia }

// GenerateImage renders an image from a prompt and delivers it to a chat.
type GenerateImage struct {
	ChatID string `json:"chat_id"`
	Prompt string `json:"prompt"`
}

func (GenerateImage) Kind() Kind { return KindGenerateImage }

// CacheInvalidate drops a tenant's content cache. An empty TenantFolder
// targets the source tenant.
type CacheInvalidate struct {
	TenantFolder string `json:"tenant_folder,omitempty"`
}

func (CacheInvalidate) Kind() Kind { return KindCacheInvalidate }

// SetPreference stores a tenant preference. An empty TenantFolder targets
// the source tenant.
type SetPreference struct {
	TenantFolder string `json:"tenant_folder,omitempty"`
	Key          string `json:"key"`
	Value        string `json:"value"`
}

func (SetPreference) Kind() Kind { return KindSetPreference }

// RegisterTenant creates a new tenant for a chat. Main only.
type RegisterTenant struct {
	ChatID  string `json:"chat_id"`
	Folder  string `json:"folder"`
	Name    string `json:"name"`
	Channel string `json:"channel,omitempty"`
	Model   string `json:"model,omitempty"`
}

func (RegisterTenant) Kind() Kind { return KindRegisterTenant }

// envelope is the wire shape a sandboxed agent writes: a kind tag plus the
// command's own fields.
type envelope struct {
	Type Kind            `json:"type"`
	Args json.RawMessage `json:"args"`
}

// Decode parses a raw IPC command into its typed form.
func Decode(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("dispatch: malformed command: %w", err)
	}

	var cmd Command
	switch env.Type {
	case KindScheduleCreate:
		cmd = &ScheduleCreate{}
	case KindSchedulePause:
		cmd = &SchedulePause{}
	case KindScheduleResume:
		cmd = &ScheduleResume{}
	case KindScheduleCancel:
		cmd = &ScheduleCancel{}
	case KindScheduleList:
		cmd = &ScheduleList{}
	case KindSendMessage:
		cmd = &SendMessage{}
	case KindSendMedia:
		cmd = &SendMedia{}
	case KindGenerateImage:
		cmd = &GenerateImage{}
	case KindCacheInvalidate:
		cmd = &CacheInvalidate{}
	case KindSetPreference:
		cmd = &SetPreference{}
	case KindRegisterTenant:
		cmd = &RegisterTenant{}
	default:
		return nil, fmt.Errorf("dispatch: unknown command type %q", env.Type)
	}

	if len(env.Args) > 0 {
		if err := json.Unmarshal(env.Args, cmd); err != nil {
			return nil, fmt.Errorf("dispatch: bad %s args: %w", env.Type, err)
		}
	}
	return cmd, nil
}

// Context carries the per-command environment. It is built once per inbound
// command and never persisted.
type Context struct {
	// SourceTenant is the workspace folder of the tenant whose sandbox
	// emitted the command.
	SourceTenant string
	// IsMain marks commands from the main tenant.
	IsMain bool
	// Tenants is the read-only view of registered tenants.
	Tenants *tenant.Registry
	// Send delivers text to a chat.
	Send func(ctx context.Context, chatID, text string) error
	// SendMedia delivers a file to a chat. Optional.
	SendMedia func(ctx context.Context, chatID, filePath, caption string) error
	// RegisterTenant creates a new tenant. Optional; main-only commands
	// without it are refused.
	RegisterTenant func(chatID string, cfg *tenant.Config) error
}
