// Package helpers is the job-facing helper library: envelope emitters, the
// job log, parameter access and the remote bucket, tag and email helpers.
// Both executors bind their surface to a Library.
package helpers

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattjoyce/xyrun/internal/config"
	"github.com/mattjoyce/xyrun/internal/output"
	"github.com/mattjoyce/xyrun/internal/params"
	"github.com/mattjoyce/xyrun/internal/protocol"
	"github.com/mattjoyce/xyrun/internal/xyapi"
)

// Library holds everything a running job can reach.
type Library struct {
	job    *protocol.JobContext
	out    *output.Writer
	log    *output.JobLog
	params *params.Resolver
	cfg    *config.Config
	diag   *slog.Logger

	newRemote RemoteFactory
	remoteMu  sync.Mutex
	remote    Remote
}

// Option configures a Library.
type Option func(*Library)

// WithRemoteFactory replaces the REST client constructor.
func WithRemoteFactory(f RemoteFactory) Option {
	return func(l *Library) { l.newRemote = f }
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Library) { l.diag = logger }
}

// New builds a Library for one job. cfg may be nil for defaults.
func New(job *protocol.JobContext, out *output.Writer, jobLog *output.JobLog, cfg *config.Config, opts ...Option) *Library {
	if cfg == nil {
		cfg = config.Defaults()
	}
	l := &Library{
		job:    job,
		out:    out,
		log:    jobLog,
		params: params.NewResolver(job),
		cfg:    cfg,
		diag:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.newRemote == nil {
		l.newRemote = func(baseURL, apiKey string) (Remote, error) {
			return xyapi.New(baseURL, apiKey, l.cfg.API, l.diag)
		}
	}
	return l
}

// Job returns the job context.
func (l *Library) Job() *protocol.JobContext {
	return l.job
}

// JobLog returns the protocol job log.
func (l *Library) JobLog() *output.JobLog {
	return l.log
}

// Emit writes an arbitrary value to the host.
func (l *Library) Emit(value any) error {
	return l.out.Emit(value)
}

func (l *Library) Progress(percent float64, status string) error {
	return l.out.Emit(protocol.Progress(percent, status))
}

func (l *Library) Status(text string) error {
	return l.out.Emit(protocol.Status(text))
}

func (l *Library) Label(text string) error {
	return l.out.Emit(protocol.Label(text))
}

func (l *Library) Data(value any) error {
	return l.out.Emit(protocol.Data(value))
}

func (l *Library) File(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("file: empty path")
	}
	return l.out.Emit(protocol.File(path))
}

func (l *Library) Perf(metrics map[string]any, scale float64) error {
	return l.out.Emit(protocol.Perf(metrics, scale))
}

func (l *Library) Table(t protocol.Table) error {
	return l.out.Emit(protocol.TableEnvelope(t))
}

func (l *Library) HTML(content, title, caption string) error {
	return l.out.Emit(protocol.HTML(content, title, caption))
}

func (l *Library) Text(content, title, caption string) error {
	return l.out.Emit(protocol.Text(content, title, caption))
}

// Markdown emits a markdown panel, or an html panel rendered from it when
// output.markdown_as_html is set.
func (l *Library) Markdown(content, title, caption string) error {
	if !l.cfg.Output.MarkdownAsHTML {
		return l.out.Emit(protocol.Markdown(content, title, caption))
	}
	env, err := protocol.MarkdownAsHTML(content, title, caption)
	if err != nil {
		return err
	}
	return l.out.Emit(env)
}

// Log writes a job log line at level (info, warning, error).
func (l *Library) Log(message, level string) error {
	return l.log.Log(message, level)
}

// Param resolves name from the environment, then params, then def.
func (l *Library) Param(name string, def any) any {
	return l.params.Lookup(name, def)
}

// Params emits the env and param listing as a raw line.
func (l *Library) Params() error {
	return l.out.Emit(l.params.Listing())
}

func (l *Library) InputFiles() []protocol.FileRef {
	return l.job.InputFiles()
}

// GetBucketFile downloads filename from the bucket and returns the local
// path. An empty dest saves it under the job's cwd.
func (l *Library) GetBucketFile(ctx context.Context, id, filename, dest string) (string, error) {
	remote, err := l.client()
	if err != nil {
		return "", err
	}
	if dest == "" {
		dest = filepath.Join(l.job.Cwd, filepath.Base(filename))
	}
	if _, err := remote.DownloadBucketFile(ctx, id, filename, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (l *Library) PutBucketFile(ctx context.Context, id, path string) error {
	remote, err := l.client()
	if err != nil {
		return err
	}
	_, err = remote.UploadBucketFile(ctx, id, path)
	return err
}

func (l *Library) DeleteBucketFile(ctx context.Context, id, filename string) error {
	remote, err := l.client()
	if err != nil {
		return err
	}
	return remote.DeleteBucketFile(ctx, id, filename)
}

func (l *Library) GetBucketData(ctx context.Context, id string) (map[string]any, error) {
	remote, err := l.client()
	if err != nil {
		return nil, err
	}
	return remote.GetBucketData(ctx, id)
}

func (l *Library) PutBucketData(ctx context.Context, id string, data map[string]any) error {
	remote, err := l.client()
	if err != nil {
		return err
	}
	return remote.PutBucketData(ctx, id, data)
}

// CacheGet returns the value stored under key in the cache bucket, or nil.
func (l *Library) CacheGet(ctx context.Context, key string) (any, error) {
	id, err := l.cacheBucket()
	if err != nil {
		return nil, err
	}
	data, err := l.GetBucketData(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cache get %q: %w", key, err)
	}
	return data[key], nil
}

// CacheSet stores value under key in the cache bucket. It is a plain read,
// modify, write of the bucket data; concurrent writers can lose updates.
func (l *Library) CacheSet(ctx context.Context, key string, value any) error {
	id, err := l.cacheBucket()
	if err != nil {
		return err
	}
	data, err := l.GetBucketData(ctx, id)
	if err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	data[key] = value
	if err := l.PutBucketData(ctx, id, data); err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

// GetTags returns the host's tag catalog narrowed by filter.
func (l *Library) GetTags(ctx context.Context, filter xyapi.TagFilter) ([]xyapi.Tag, error) {
	remote, err := l.client()
	if err != nil {
		return nil, err
	}
	catalog, err := remote.GetTags(ctx)
	if err != nil {
		return nil, err
	}
	return xyapi.FilterTags(catalog, filter), nil
}

// PushTags resolves each name by title, then id, and attaches the resolved
// ids to the job. Unknown names are logged and skipped.
func (l *Library) PushTags(ctx context.Context, names []string) error {
	catalog, err := l.GetTags(ctx, xyapi.TagFilter{})
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(names))
	for _, name := range names {
		tag, ok := xyapi.ResolveTag(catalog, name)
		if !ok {
			if err := l.log.Warning(fmt.Sprintf("Tag '%s' not found, skipping", name)); err != nil {
				return err
			}
			continue
		}
		ids = append(ids, tag.ID)
	}
	return l.out.Emit(protocol.PushTags(ids))
}

func (l *Library) SendEmail(ctx context.Context, msg xyapi.Email) error {
	remote, err := l.client()
	if err != nil {
		return err
	}
	return remote.SendEmail(ctx, msg)
}

// client builds the REST client on first use. The key secret name comes
// from param apikey_var when set.
func (l *Library) client() (Remote, error) {
	l.remoteMu.Lock()
	defer l.remoteMu.Unlock()
	if l.remote != nil {
		return l.remote, nil
	}

	keyVar := l.job.ParamString("apikey_var")
	if keyVar == "" {
		keyVar = l.cfg.API.KeySecret
	}
	apiKey, err := xyapi.Secret(l.job, keyVar)
	if err != nil {
		return nil, err
	}
	remote, err := l.newRemote(l.job.BaseURL, apiKey)
	if err != nil {
		return nil, err
	}
	l.remote = remote
	return remote, nil
}

func (l *Library) cacheBucket() (string, error) {
	id, err := xyapi.Secret(l.job, l.cfg.API.CacheBucketSecret)
	if err != nil {
		return "", fmt.Errorf("cache bucket: %w", err)
	}
	return id, nil
}
