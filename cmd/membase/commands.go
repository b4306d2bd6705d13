package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	membase "github.com/membase-hub/plugin-membase"
	"github.com/membase-hub/plugin-membase/agent"
	"github.com/membase-hub/plugin-membase/character"
	"github.com/membase-hub/plugin-membase/hub"
	"github.com/membase-hub/plugin-membase/plugin"
	"github.com/membase-hub/plugin-membase/queue"
	"github.com/membase-hub/plugin-membase/serve"
)

var errMissingAccount = errors.New("no account: set --account or " + membase.SettingAccount)

type app struct {
	flags  flags
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer

	// queue is shared by every hub client when --redis is set.
	queue queue.Queue
}

func (a *app) dispatch(ctx context.Context, command string, args []string) error {
	if a.flags.redisURL != "" {
		q, err := queue.NewRedisQueue(queue.RedisOptions{URL: a.flags.redisURL})
		if err != nil {
			return err
		}
		defer membase.CloseWithLog(q, a.logger, "redis queue")
		a.queue = q
	}

	switch command {
	case "upload":
		if len(args) != 2 {
			return errors.New("usage: membase upload <id> <message>")
		}
		return a.upload(ctx, args[0], args[1])
	case "upload-data":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: membase upload-data <file> [name]")
		}
		name := filepath.Base(args[0])
		if len(args) == 2 {
			name = args[1]
		}
		return a.uploadData(ctx, args[0], name)
	case "conversations":
		if len(args) != 0 {
			return errors.New("usage: membase conversations")
		}
		return a.withHub(ctx, func(c *hub.Client, owner string) error {
			resp, err := c.ListConversations(ctx, owner)
			if err != nil {
				return err
			}
			return a.printJSON(resp)
		})
	case "conversation":
		if len(args) != 1 {
			return errors.New("usage: membase conversation <id>")
		}
		return a.withHub(ctx, func(c *hub.Client, owner string) error {
			resp, err := c.GetConversation(ctx, owner, args[0])
			if err != nil {
				return err
			}
			return a.printJSON(resp)
		})
	case "download":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: membase download <name> [out]")
		}
		out := ""
		if len(args) == 2 {
			out = args[1]
		}
		return a.download(ctx, args[0], out)
	case "run":
		return a.runCharacters(ctx)
	case "serve":
		return a.serve(ctx)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// settings layers the command-line overrides over a character's settings.
func (a *app) settings(c *character.Character) agent.Settings {
	overrides := agent.MapSettings{}
	if a.flags.hub != "" {
		overrides[membase.SettingHub] = a.flags.hub
	}
	if a.flags.account != "" {
		overrides[membase.SettingAccount] = a.flags.account
	}
	return agent.ChainSettings{overrides, c.SettingsChain()}
}

func (a *app) characters() ([]*character.Character, error) {
	var paths []string
	if a.flags.characters != "" {
		paths = strings.Split(a.flags.characters, ",")
	}
	return character.LoadAll(paths)
}

func (a *app) hubOptions() []hub.Option {
	opts := []hub.Option{
		hub.WithRequestTimeout(a.flags.timeout),
		hub.WithInsecureSkipVerify(a.flags.insecure),
	}
	if a.queue != nil {
		opts = append(opts, hub.WithQueue(a.queue))
	}
	return opts
}

// withHub opens a hub client for the first character's settings and closes
// it when fn returns.
func (a *app) withHub(ctx context.Context, fn func(c *hub.Client, owner string) error) error {
	characters, err := a.characters()
	if err != nil {
		return err
	}
	settings := a.settings(characters[0])

	owner := settings.GetSetting(membase.SettingAccount)
	if owner == "" {
		return membase.NewConfigurationError("cli", errMissingAccount)
	}
	baseURL := settings.GetSetting(membase.SettingHub)
	if baseURL == "" {
		baseURL = membase.DefaultHubURL
	}

	opts := append([]hub.Option{hub.WithLogger(a.logger)}, a.hubOptions()...)
	client, err := hub.New(baseURL, opts...)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.flags.timeout)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			a.logger.Warn("failed to close hub client", "error", err)
		}
	}()

	return fn(client, owner)
}

func (a *app) upload(ctx context.Context, id, message string) error {
	return a.withHub(ctx, func(c *hub.Client, owner string) error {
		result, err := c.EnqueueUpload(ctx, owner, id, message, true)
		if err != nil {
			return err
		}
		if result == nil {
			return membase.NewNetworkError("cli.upload", membase.ErrNoResult)
		}
		agent.LogSuccess(ctx, a.logger, "memory uploaded", "id", id, "owner", owner)
		return a.printValue(result)
	})
}

func (a *app) uploadData(ctx context.Context, path, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return a.withHub(ctx, func(c *hub.Client, owner string) error {
		resp, err := c.UploadBinaryData(ctx, owner, name, data)
		if err != nil {
			return err
		}
		agent.LogSuccess(ctx, a.logger, "file uploaded", "name", name, "bytes", len(data))
		return a.printJSON(resp)
	})
}

func (a *app) download(ctx context.Context, name, out string) error {
	return a.withHub(ctx, func(c *hub.Client, owner string) error {
		data, err := c.DownloadFile(ctx, owner, name)
		if err != nil {
			return err
		}
		if out == "" {
			_, err = a.stdout.Write(data)
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		a.logger.Info("file downloaded", "name", name, "path", out, "bytes", len(data))
		return nil
	})
}

func (a *app) printJSON(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return a.printValue(v)
}

func (a *app) printValue(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// session is one character with its runtime and initialized plugins.
type session struct {
	character *character.Character
	runtime   *agent.LocalRuntime
	plugins   []plugin.Plugin
}

// startSessions builds a runtime for every character. Each character gets
// its own plugin instances, initialized with its settings.
func (a *app) startSessions(ctx context.Context) ([]*session, func(), error) {
	characters, err := a.characters()
	if err != nil {
		return nil, nil, err
	}

	var sessions []*session
	shutdown := func() {
		for _, s := range sessions {
			for _, p := range s.plugins {
				if err := p.Shutdown(context.WithoutCancel(ctx)); err != nil {
					a.logger.Warn("plugin shutdown failed", "plugin", p.Name(), "error", err)
				}
			}
		}
	}

	for _, c := range characters {
		reg := plugin.NewRegistry()
		if err := membase.Register(reg,
			membase.WithLogger(a.logger),
			membase.WithHubOptions(a.hubOptions()...),
		); err != nil {
			shutdown()
			return nil, nil, err
		}

		plugins, err := reg.Resolve(c.Plugins)
		if err != nil {
			shutdown()
			return nil, nil, fmt.Errorf("character %s: %w", c.Name, err)
		}

		settings := a.settings(c)
		s := &session{character: c}
		sessions = append(sessions, s)
		for _, p := range plugins {
			if err := p.Initialize(ctx, settings); err != nil {
				shutdown()
				return nil, nil, fmt.Errorf("character %s: plugin %s: %w", c.Name, p.Name(), err)
			}
			s.plugins = append(s.plugins, p)
		}

		opts := append(plugin.RuntimeOptions(plugins...), c.RuntimeOptions()...)
		opts = append(opts, agent.WithRuntimeLogger(a.logger))
		s.runtime = agent.NewLocalRuntime(settings, opts...)

		a.logger.Info("character started",
			"character", c.Name,
			"plugins", len(plugins),
			"settings", c.SettingKeys())
	}

	return sessions, shutdown, nil
}

// inbound is one message read by the run command.
type inbound struct {
	Character string     `json:"character,omitempty"`
	ID        *uuid.UUID `json:"id,omitempty"`
	UserID    *uuid.UUID `json:"userId,omitempty"`
	RoomID    *uuid.UUID `json:"roomId,omitempty"`
	Text      string     `json:"text"`
	Action    string     `json:"action,omitempty"`
}

// processed reports what happened to one inbound message.
type processed struct {
	ID         uuid.UUID `json:"id"`
	Character  string    `json:"character"`
	Action     string    `json:"action,omitempty"`
	Outcome    string    `json:"outcome"`
	Evaluators []string  `json:"evaluators,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// runCharacters reads a stream of JSON messages from stdin and hands each to
// its character's runtime. Messages without a character go to the first one.
func (a *app) runCharacters(ctx context.Context) error {
	sessions, shutdown, err := a.startSessions(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	userID := uuid.New()
	roomID := uuid.New()

	dec := json.NewDecoder(a.stdin)
	enc := json.NewEncoder(a.stdout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var in inbound
		if err := dec.Decode(&in); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		s, err := pickSession(sessions, in.Character)
		if err != nil {
			return err
		}

		msg := agent.NewMemory(orDefault(in.UserID, userID), s.runtime.AgentID(), orDefault(in.RoomID, roomID),
			agent.Content{Text: in.Text, Action: in.Action})
		if in.ID != nil {
			msg.ID = *in.ID
		}

		if err := enc.Encode(a.process(ctx, s, &msg)); err != nil {
			return err
		}
	}
}

func (a *app) process(ctx context.Context, s *session, msg *agent.Memory) processed {
	s.runtime.Remember(*msg)

	out := processed{
		ID:        msg.ID,
		Character: s.character.Name,
		Action:    msg.Content.Action,
		Outcome:   agent.OutcomeNone.String(),
	}

	if msg.Content.Action != "" {
		outcome, err := s.runtime.ProcessActions(ctx, msg, nil)
		out.Outcome = outcome.String()
		if err != nil {
			out.Error = err.Error()
			return out
		}
	}

	ran, err := s.runtime.Evaluate(ctx, msg, nil)
	out.Evaluators = ran
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func pickSession(sessions []*session, name string) (*session, error) {
	if name == "" {
		return sessions[0], nil
	}
	for _, s := range sessions {
		if strings.EqualFold(s.character.Name, name) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unknown character %q", name)
}

func orDefault(id *uuid.UUID, fallback uuid.UUID) uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return fallback
	}
	return *id
}

// serve publishes the health of every character's plugins until ctx is done.
func (a *app) serve(ctx context.Context) error {
	sessions, shutdown, err := a.startSessions(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	var plugins []plugin.Plugin
	for _, s := range sessions {
		plugins = append(plugins, s.plugins...)
	}

	err = serve.Plugins(ctx, plugins,
		serve.WithPort(a.flags.port),
		serve.WithLogger(a.logger),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
