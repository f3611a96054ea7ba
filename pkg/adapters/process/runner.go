package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/tendril/pkg/ports"
)

// EnvPrefix prefixes every variable the runner sets from conversation data.
const EnvPrefix = "TENDRIL_"

// waitDelay bounds how long a cancelled command may hold its output pipes.
const waitDelay = time.Second

// runner executes a configured command with data on stdin.
type runner struct {
	cfg Config
}

func (r runner) run(ctx context.Context, stdin []byte, vars map[string]any) (string, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.cfg.Command, r.cfg.Args...)
	cmd.Dir = r.cfg.Dir
	cmd.Env = append(cmd.Environ(), environment(r.cfg.Environment, vars)...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s failed: %w. Stderr: %s", r.cfg.Command, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// environment renders vars as TENDRIL_<KEY>=value. Primitives are formatted
// directly, anything else as JSON.
func environment(static map[string]string, vars map[string]any) []string {
	env := make([]string, 0, len(static)+len(vars))
	for k, v := range static {
		env = append(env, k+"="+v)
	}
	for k, v := range vars {
		var val string
		switch v.(type) {
		case string, int, int64, float64, bool:
			val = fmt.Sprintf("%v", v)
		case nil:
		default:
			if data, err := json.Marshal(v); err == nil {
				val = string(data)
			} else {
				val = fmt.Sprintf("%v", v)
			}
		}
		env = append(env, fmt.Sprintf("%s%s=%s", EnvPrefix, strings.ToUpper(k), val))
	}
	slices.Sort(env)
	return env
}

// Completion answers prompts with an external command: the system prompt is
// in TENDRIL_SYSTEM, the user prompt on stdin and the answer on stdout.
type Completion struct {
	r runner
}

var _ ports.CompletionService = (*Completion)(nil)

// NewCompletion creates a completion service over cfg.
func NewCompletion(cfg Config) (*Completion, error) {
	if err := cfg.Validate("completion"); err != nil {
		return nil, err
	}
	return &Completion{r: runner{cfg: cfg}}, nil
}

// Complete implements ports.CompletionService.
func (c *Completion) Complete(ctx context.Context, system, user string) (string, error) {
	out, err := c.r.run(ctx, []byte(user), map[string]any{"system": system})
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("%s returned an empty answer", c.r.cfg.Command)
	}
	return out, nil
}

// Saver hands validated models to an external command as JSON on stdin,
// with the model kind in TENDRIL_KIND.
type Saver struct {
	r runner
}

var _ ports.ModelSaver = (*Saver)(nil)

// NewSaver creates a model saver over cfg.
func NewSaver(cfg Config) (*Saver, error) {
	if err := cfg.Validate("saver"); err != nil {
		return nil, err
	}
	return &Saver{r: runner{cfg: cfg}}, nil
}

// SaveModel implements ports.ModelSaver.
func (s *Saver) SaveModel(ctx context.Context, kind string, model any) error {
	data, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	_, err = s.r.run(ctx, data, map[string]any{"kind": kind})
	return err
}
