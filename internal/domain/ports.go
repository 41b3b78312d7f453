package domain

import "context"

// JobRepository is the driven port for job persistence.
type JobRepository interface {
	Create(ctx context.Context, url string, opts Options) (*Job, error)
	Get(ctx context.Context, id int64) (*Job, error)
	List(ctx context.Context, limit int) ([]Job, error)
	FindPending(ctx context.Context, limit int) ([]Job, error)
	Claim(ctx context.Context, id int64) error
	Complete(ctx context.Context, id int64, result *Result) error
	Fail(ctx context.Context, id int64, reason string) error
	RecoverStale(ctx context.Context) (int64, error)
	AppendProgress(ctx context.Context, id int64, line string) error
	Progress(ctx context.Context, id int64) ([]ProgressLine, error)
}

// MetadataResolver looks up a video's title and id without downloading.
type MetadataResolver interface {
	Resolve(ctx context.Context, url string) (VideoRef, error)
}

// Downloader extracts audio into workDir and reports what it produced.
type Downloader interface {
	Download(ctx context.Context, ref VideoRef, workDir string, opts Options, onProgress ProgressSink) (Outcome, error)
}

// Normalizer applies loudness normalization to each file, best effort.
type Normalizer interface {
	Normalize(ctx context.Context, files []string, sink ProgressSink) NormalizeReport
}

// Runner executes a full pipeline run for a URL.
type Runner interface {
	Run(ctx context.Context, url string, opts Options, sink ProgressSink) (*Result, error)
}
