// Package stagedriver is the Stage Driver (spec.md §4.2): the single
// choke point through which every external tool invocation — asset
// generation, compositing, video rendering, narration/TTS, SFX, final
// assembly — passes. Grounded on the teacher's
// internal/services/media_tools.go (soffice/pdftoppm/ffmpeg wrapped via
// exec.CommandContext + CombinedOutput, exec.LookPath preflight,
// deterministic output-path resolution) and
// internal/services/video_provider.go (classification of a failure
// into a retry-or-not decision via an exponential backoff helper).
package stagedriver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/apierr"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/observability"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
)

// identifierRe allowlists every value that gets interpolated into an
// argv template or a filesystem path: stage names, channel ids, task
// ids, sub-item indices. Anything else is rejected rather than
// shell-escaped, since these argv are passed directly to
// exec.CommandContext and never through a shell.
var identifierRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// DefaultTimeouts is the per-stage ceiling from spec.md §5 ("no single
// subprocess call runs unbounded").
var DefaultTimeouts = map[domain.Stage]time.Duration{
	domain.StageAssets:     60 * time.Second,
	domain.StageComposites: 10 * time.Second,
	domain.StageVideo:      600 * time.Second,
	domain.StageAudio:      120 * time.Second,
	domain.StageSFX:        120 * time.Second,
	domain.StageAssembly:   180 * time.Second,
}

// Spec describes one stage's external tool invocation. Binary is
// resolved via exec.LookPath at AssertReady time; Argv is a template
// whose {name} placeholders are filled from the Params passed to
// Invoke, each validated against identifierRe before substitution.
type Spec struct {
	Stage          domain.Stage
	Binary         string
	Argv           []string
	DefaultTimeout time.Duration
	// Validate inspects the produced output path (and stdout/stderr) to
	// confirm the sub-item actually landed on storage before the
	// Orchestrator marks it done in the Resume Ledger (spec.md §4.3
	// "verified on storage").
	Validate func(outputPath string, stdout []byte) error
}

// Params is the per-invocation substitution set for one Argv template
// slot, plus the resolved output path the Orchestrator expects back.
type Params struct {
	ChannelID  string
	TaskID     string
	SubItem    int
	OutputPath string
	Extra      map[string]string
}

type Driver struct {
	log      *logger.Logger
	specs    map[domain.Stage]Spec
	workRoot string
}

func New(log *logger.Logger, workRoot string, specs map[domain.Stage]Spec) *Driver {
	return &Driver{
		log:      log.With("component", "StageDriver"),
		specs:    specs,
		workRoot: workRoot,
	}
}

// AssertReady preflights every configured binary's presence in PATH, the
// way media_tools.AssertReady does for soffice/pdftoppm/ffmpeg.
func (d *Driver) AssertReady() error {
	seen := map[string]bool{}
	for _, s := range d.specs {
		if seen[s.Binary] {
			continue
		}
		seen[s.Binary] = true
		if _, err := exec.LookPath(s.Binary); err != nil {
			return apierr.New(apierr.KindPermanent, fmt.Errorf("missing required binary %q: %w", s.Binary, err))
		}
	}
	return os.MkdirAll(d.workRoot, 0o755)
}

// ResolveOutputPath builds a channel-isolated, traversal-safe output
// path for one sub-item: <workRoot>/<channelID>/<taskID>/<stage>/<subItem>.
func (d *Driver) ResolveOutputPath(channelID, taskID string, stage domain.Stage, subItem int) (string, error) {
	if !identifierRe.MatchString(channelID) || !identifierRe.MatchString(taskID) {
		return "", apierr.New(apierr.KindBadInput, fmt.Errorf("channel_id/task_id must match %s", identifierRe.String()))
	}
	dir := filepath.Join(d.workRoot, channelID, taskID, string(stage))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir stage output dir: %w", err)
	}
	name := fmt.Sprintf("%03d", subItem)
	path := filepath.Join(dir, name)
	// Defense against a future template accidentally introducing ".."
	// segments: resolved path must stay inside workRoot.
	absRoot, err := filepath.Abs(d.workRoot)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absPath, absRoot) {
		return "", apierr.New(apierr.KindBadInput, fmt.Errorf("resolved output path escapes work root"))
	}
	return path, nil
}

// InvokeStage runs the stage's external tool for one sub-item and
// classifies the result. On success it returns the verified output
// path; on failure it returns an *apierr.Error whose Kind drives the
// Orchestrator's retry-vs-permanent-failure branch (spec.md §4.6 step
// 6, §7).
func (d *Driver) InvokeStage(ctx context.Context, stage domain.Stage, p Params) (string, error) {
	spec, ok := d.specs[stage]
	if !ok {
		return "", apierr.New(apierr.KindPermanent, fmt.Errorf("no stage driver spec registered for stage %q", stage))
	}
	if !identifierRe.MatchString(p.ChannelID) || !identifierRe.MatchString(p.TaskID) {
		return "", apierr.New(apierr.KindBadInput, fmt.Errorf("invalid channel_id/task_id"))
	}

	ctx, span := observability.StartStage(ctx, string(stage), p.TaskID, p.SubItem)
	defer span.End()

	timeout := spec.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultTimeouts[stage]
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv, err := renderArgv(spec.Argv, p)
	if err != nil {
		return "", apierr.New(apierr.KindBadInput, err)
	}

	cmd := exec.CommandContext(runCtx, spec.Binary, argv...)
	cmd.Env = buildEnv(p.Extra)

	start := time.Now()
	out, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if err != nil {
		classified := classify(runCtx, err, out)
		d.log.Warn("stage driver invocation failed",
			"stage", stage, "task_id", p.TaskID, "sub_item", p.SubItem,
			"elapsed_ms", elapsed.Milliseconds(), "kind", classified.Kind,
			"stderr", truncate(redact(string(out)), 500))
		return "", classified
	}

	if spec.Validate != nil {
		if verr := spec.Validate(p.OutputPath, out); verr != nil {
			return "", apierr.New(apierr.KindPermanent, fmt.Errorf("output validation failed: %w", verr))
		}
	} else if p.OutputPath != "" {
		if fi, statErr := os.Stat(p.OutputPath); statErr != nil || fi.Size() == 0 {
			return "", apierr.New(apierr.KindPermanent, fmt.Errorf("expected output %s missing or empty", p.OutputPath))
		}
	}

	d.log.Info("stage driver invocation succeeded",
		"stage", stage, "task_id", p.TaskID, "sub_item", p.SubItem, "elapsed_ms", elapsed.Milliseconds())
	return p.OutputPath, nil
}

func renderArgv(template []string, p Params) ([]string, error) {
	repl := map[string]string{
		"{channel_id}":  p.ChannelID,
		"{task_id}":     p.TaskID,
		"{sub_item}":    fmt.Sprintf("%d", p.SubItem),
		"{output_path}": p.OutputPath,
	}
	for k, v := range p.Extra {
		if !identifierRe.MatchString(k) {
			continue
		}
		repl["{"+k+"}"] = v
	}
	out := make([]string, len(template))
	for i, arg := range template {
		resolved := arg
		for ph, val := range repl {
			resolved = strings.ReplaceAll(resolved, ph, val)
		}
		out[i] = resolved
	}
	return out, nil
}

// buildEnv copies the worker's own environment and appends Extra as
// upper-cased variables, so a decrypted credential placed into Extra is
// visible only to this one subprocess and never set in the worker's own
// environment (spec.md §5 "never logged, never written to disk").
func buildEnv(extra map[string]string) []string {
	env := append([]string{}, os.Environ()...)
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", strings.ToUpper(k), v))
	}
	return env
}

// classify maps a subprocess failure onto the shared error-kind
// vocabulary, following video_provider.go's approach of inspecting the
// concrete failure rather than treating every error alike.
func classify(ctx context.Context, err error, out []byte) *apierr.Error {
	if ctx.Err() == context.DeadlineExceeded {
		return apierr.New(apierr.KindTimeout, err)
	}
	lower := strings.ToLower(string(out))
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429"):
		return apierr.New(apierr.KindRateLimited, err)
	case strings.Contains(lower, "quota"):
		return apierr.New(apierr.KindQuotaExhausted, err)
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "forbidden") || strings.Contains(lower, "401") || strings.Contains(lower, "403"):
		return apierr.New(apierr.KindAuthFailed, err)
	case strings.Contains(lower, "invalid") || strings.Contains(lower, "bad request"):
		return apierr.New(apierr.KindBadInput, err)
	}
	var exitErr *exec.ExitError
	if ee, ok := err.(*exec.ExitError); ok {
		exitErr = ee
		if exitErr.ExitCode() >= 1 && exitErr.ExitCode() < 100 {
			// Low exit codes from these tools are almost always
			// deterministic argument/input problems, not flaky
			// infrastructure; treat as permanent so the Orchestrator
			// doesn't burn retry budget re-running a doomed call.
			return apierr.New(apierr.KindPermanent, err)
		}
	}
	return apierr.New(apierr.KindTransient, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

// redact strips the same credential-shaped substrings the logger
// sanitizer would, so stderr captured from a misbehaving tool never
// leaks a secret that happened to appear in its output.
func redact(s string) string {
	lower := strings.ToLower(s)
	for _, marker := range []string{"authorization:", "api_key=", "apikey=", "token=", "secret="} {
		if idx := strings.Index(lower, marker); idx >= 0 {
			end := idx + len(marker)
			lineEnd := strings.IndexByte(s[end:], '\n')
			if lineEnd < 0 {
				return s[:end] + "[redacted]"
			}
			s = s[:end] + "[redacted]" + s[end+lineEnd:]
			lower = strings.ToLower(s)
		}
	}
	return s
}
